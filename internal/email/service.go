package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"sort"
	"strings"
	texttemplate "text/template"

	"github.com/trusttai/api/internal/config"
	"github.com/trusttai/api/internal/notification"
	"github.com/trusttai/api/internal/sse"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

type Service struct {
	sender     Sender
	html       *htmltemplate.Template
	text       *texttemplate.Template
	publicURL  string
	recipients []string
	enabled    bool
}

func NewService(cfg config.EmailConfig, publicURL string) (*Service, error) {
	var sender Sender
	if cfg.Enabled {
		sender = NewSMTPSender(cfg)
	} else {
		sender = &NoOpSender{}
	}
	return newService(sender, cfg, publicURL)
}

func newService(sender Sender, cfg config.EmailConfig, publicURL string) (*Service, error) {
	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing html templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parsing text templates: %w", err)
	}

	return &Service{
		sender:     sender,
		html:       html,
		text:       text,
		publicURL:  strings.TrimRight(publicURL, "/"),
		recipients: cfg.AlertRecipients,
		enabled:    cfg.Enabled,
	}, nil
}

func (s *Service) IsEnabled() bool {
	return s.enabled
}

// ShouldAlert reports whether event warrants an email: critical system
// alerts and failed integrations.
func ShouldAlert(msg sse.Message) bool {
	switch msg.Type {
	case sse.KindSystemAlert:
		return msg.Payload.String("severity") == "critical"
	case sse.KindIntegrationStatus:
		return msg.Payload.String("status") == "failed"
	}
	return false
}

type detail struct {
	Key   string
	Value string
}

type alertData struct {
	Title     string
	Message   string
	Kind      sse.Kind
	Severity  notification.Severity
	Timestamp string
	ActionURL string
	Details   []detail
}

// SendAlert emails every alert recipient about event. Events that do not
// warrant an alert are ignored.
func (s *Service) SendAlert(ctx context.Context, event sse.Event) error {
	if !ShouldAlert(event.Message) {
		return nil
	}
	n, ok := notification.FromMessage(event.Message)
	if !ok {
		return nil
	}
	if len(s.recipients) == 0 {
		slog.Debug("no alert recipients configured", "component", "email", "type", event.Message.Type)
		return nil
	}

	data := alertData{
		Title:     n.Title,
		Message:   n.Message,
		Kind:      event.Message.Type,
		Severity:  n.Type,
		Timestamp: event.Message.Timestamp,
		ActionURL: s.publicURL + n.ActionURL,
		Details:   details(event.Message.Payload),
	}

	var textBody, htmlBody bytes.Buffer
	if err := s.text.ExecuteTemplate(&textBody, "alert.txt", data); err != nil {
		return fmt.Errorf("rendering alert text: %w", err)
	}
	if err := s.html.ExecuteTemplate(&htmlBody, "alert.html", data); err != nil {
		return fmt.Errorf("rendering alert html: %w", err)
	}

	subject := singleLine("[" + strings.ToUpper(string(n.Type)) + "] " + n.Title + ": " + n.Message)

	var errs []error
	for _, to := range s.recipients {
		if err := s.sender.Send(ctx, to, subject, textBody.String(), htmlBody.String()); err != nil {
			errs = append(errs, fmt.Errorf("sending alert to %s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}

func details(payload sse.Payload) []detail {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]detail, 0, len(keys))
	for _, k := range keys {
		out = append(out, detail{Key: k, Value: fmt.Sprint(payload[k])})
	}
	return out
}

// GetPublicURL returns the public URL for the service
func (s *Service) GetPublicURL() string {
	return s.publicURL
}
