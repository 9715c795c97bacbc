package notification

import "github.com/trusttai/api/internal/sse"

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// AdminNotification is the client-side view of one domain event.
type AdminNotification struct {
	ID        string      `json:"id"`
	Type      Severity    `json:"type"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	CreatedAt string      `json:"createdAt"`
	IsRead    bool        `json:"isRead"`
	ActionURL string      `json:"actionUrl,omitempty"`
	Metadata  sse.Payload `json:"metadata"`
	Kind      sse.Kind    `json:"-"`
}

// NotificationID is stable for a given kind and emission timestamp.
func NotificationID(kind sse.Kind, timestamp string) string {
	return string(kind) + "-" + timestamp
}

type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)
