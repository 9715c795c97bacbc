package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trusttai/api/internal/dispatch"
	"github.com/trusttai/api/internal/eventlog"
	"github.com/trusttai/api/internal/sse"
)

const maxPublishBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// PublishEventRequest is the body of POST /api/admin/events. The timestamp
// is optional; the server stamps the event when it is absent.
type PublishEventRequest struct {
	Type      string         `json:"type" validate:"required,oneof=user_created user_updated role_changed system_alert audit_event integration_status"`
	Timestamp string         `json:"timestamp,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Payload   map[string]any `json:"payload,omitempty"`
	Audience  []string       `json:"audience,omitempty" validate:"omitempty,dive,required"`
}

type PublishEventResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// EventRecord is one event in the backfill listing.
type EventRecord struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
	Audience  []string       `json:"audience,omitempty"`
}

type ListEventsResponse struct {
	Events     []EventRecord `json:"events"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// PublishEvent accepts a domain event and hands it to the dispatcher.
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var req PublishEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBody)).Decode(&req); err != nil {
		badRequest(w, ErrCodeInvalidJSON, "Invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		badRequest(w, ErrCodeValidationError, validationMessage(err))
		return
	}

	event, err := h.dispatcher.Dispatch(r.Context(), sse.Event{
		Message: sse.Message{
			Type:      sse.Kind(req.Type),
			Timestamp: req.Timestamp,
			Payload:   sse.Payload(req.Payload),
		},
		Audience: req.Audience,
	})
	if errors.Is(err, dispatch.ErrUnknownKind) {
		badRequest(w, ErrCodeValidationError, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to dispatch event", "component", "handler", "type", req.Type, "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "Event could not be delivered")
		return
	}

	writeJSON(w, http.StatusAccepted, PublishEventResponse{
		ID:        event.ID,
		Type:      string(event.Message.Type),
		Timestamp: event.Message.Timestamp,
	})
}

// ListEvents returns recorded events after the since cursor, oldest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := eventlog.ListOptions{
		Since:   q.Get("since"),
		AdminID: q.Get(sse.AdminIDParam),
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > eventlog.MaxListLimit {
			badRequest(w, ErrCodeValidationError, fmt.Sprintf("limit must be between 1 and %d", eventlog.MaxListLimit))
			return
		}
		opts.Limit = limit
	}

	events, err := h.events.ListSince(r.Context(), opts)
	if err != nil {
		slog.Error("failed to list events", "component", "handler", "error", err)
		internalError(w)
		return
	}

	resp := ListEventsResponse{Events: make([]EventRecord, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, EventRecord{
			ID:        e.ID,
			Type:      string(e.Message.Type),
			Timestamp: e.Message.Timestamp,
			Payload:   e.Message.Payload,
			Audience:  e.Audience,
		})
	}
	if len(events) > 0 {
		resp.NextCursor = events[len(events)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "datetime":
			msgs = append(msgs, fe.Field()+" must be an RFC 3339 timestamp")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
