package sse

import "time"

// Kind identifies a stream message. The two transport kinds carry no
// notification content; every other kind is a domain event.
type Kind string

const (
	KindConnectionEstablished Kind = "connection_established"
	KindHeartbeat             Kind = "heartbeat"

	KindUserCreated       Kind = "user_created"
	KindUserUpdated       Kind = "user_updated"
	KindRoleChanged       Kind = "role_changed"
	KindSystemAlert       Kind = "system_alert"
	KindAuditEvent        Kind = "audit_event"
	KindIntegrationStatus Kind = "integration_status"
)

// DomainKinds lists every domain event kind in a stable order.
var DomainKinds = []Kind{
	KindUserCreated,
	KindUserUpdated,
	KindRoleChanged,
	KindSystemAlert,
	KindAuditEvent,
	KindIntegrationStatus,
}

func (k Kind) IsTransport() bool {
	return k == KindConnectionEstablished || k == KindHeartbeat
}

func (k Kind) IsDomain() bool {
	switch k {
	case KindUserCreated, KindUserUpdated, KindRoleChanged,
		KindSystemAlert, KindAuditEvent, KindIntegrationStatus:
		return true
	}
	return false
}

// TimestampLayout renders UTC times the way browsers' toISOString does.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type Payload map[string]any

// String returns the payload value at key when it is a string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Message is one frame on the wire. It never references earlier frames.
type Message struct {
	Type      Kind    `json:"type"`
	Timestamp string  `json:"timestamp"`
	Payload   Payload `json:"payload,omitempty"`
}

func NewMessage(kind Kind, payload Payload, now time.Time) Message {
	return Message{
		Type:      kind,
		Timestamp: FormatTimestamp(now),
		Payload:   payload,
	}
}

// Event is a domain message together with the admins it is addressed to.
// An empty Audience reaches every connected admin.
type Event struct {
	ID       string
	Message  Message
	Audience []string
}

func (e Event) Reaches(adminID string) bool {
	if len(e.Audience) == 0 {
		return true
	}
	for _, id := range e.Audience {
		if id == adminID {
			return true
		}
	}
	return false
}
