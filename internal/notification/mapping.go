package notification

import (
	"fmt"
	"strings"

	"github.com/trusttai/api/internal/sse"
)

type template struct {
	title     string
	message   string
	actionURL string
	severity  func(sse.Payload) Severity
}

func always(s Severity) func(sse.Payload) Severity {
	return func(sse.Payload) Severity { return s }
}

// templates holds one entry per domain kind. Placeholders are payload keys
// in braces.
var templates = map[sse.Kind]template{
	sse.KindUserCreated: {
		title:     "New User Created",
		message:   "User {email} has been created",
		actionURL: "/admin/users/{userId}",
		severity:  always(SeverityInfo),
	},
	sse.KindUserUpdated: {
		title:     "User Updated",
		message:   "User {email} has been updated",
		actionURL: "/admin/users/{userId}",
		severity:  always(SeverityInfo),
	},
	sse.KindRoleChanged: {
		title:     "Role Change Request",
		message:   "Role change requested for {userEmail}",
		actionURL: "/admin/users/{userId}",
		severity:  always(SeverityWarning),
	},
	sse.KindSystemAlert: {
		title:     "System Alert",
		message:   "{message}",
		actionURL: "/admin/system-health",
		severity: func(p sse.Payload) Severity {
			if valueString(p["severity"]) == "critical" {
				return SeverityError
			}
			return SeverityWarning
		},
	},
	sse.KindAuditEvent: {
		title:     "Audit Event",
		message:   "{action} on {resource}",
		actionURL: "/admin/audit",
		severity:  always(SeverityInfo),
	},
	sse.KindIntegrationStatus: {
		title:     "Integration Status",
		message:   "{name}: {status}",
		actionURL: "/admin/integrations",
		severity: func(p sse.Payload) Severity {
			if valueString(p["status"]) == "failed" {
				return SeverityError
			}
			return SeverityInfo
		},
	},
}

// FromMessage builds the notification for a domain message. It reports false
// for transport kinds and kinds it has no template for.
func FromMessage(msg sse.Message) (AdminNotification, bool) {
	tmpl, ok := templates[msg.Type]
	if !ok {
		return AdminNotification{}, false
	}

	payload := msg.Payload
	if payload == nil {
		payload = sse.Payload{}
	}

	return AdminNotification{
		ID:        NotificationID(msg.Type, msg.Timestamp),
		Type:      tmpl.severity(payload),
		Title:     tmpl.title,
		Message:   expand(tmpl.message, payload),
		CreatedAt: msg.Timestamp,
		ActionURL: expand(tmpl.actionURL, payload),
		Metadata:  payload,
		Kind:      msg.Type,
	}, true
}

// expand substitutes {key} placeholders. Missing keys render as empty.
func expand(s string, payload sse.Payload) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:open])
		b.WriteString(valueString(payload[s[open+1:open+end]]))
		s = s[open+end+1:]
	}
}

func valueString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; integral ids should not grow a ".0".
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}
