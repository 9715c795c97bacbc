package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trusttai/api/internal/dispatch"
	"github.com/trusttai/api/internal/eventlog"
	"github.com/trusttai/api/internal/sse"
	"github.com/trusttai/api/internal/testutil"
)

type capturePublisher struct {
	events []sse.Event
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, event sse.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type testEnv struct {
	h    *Handler
	pub  *capturePublisher
	repo *eventlog.Repository
	hub  *sse.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := eventlog.NewRepository(testutil.TestDB(t))
	pub := &capturePublisher{}
	hub := sse.NewHub(nil)
	d := dispatch.New(dispatch.Options{
		Publisher: pub,
		Recorder:  repo,
		Now:       func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	return &testEnv{
		h:    New(Dependencies{Dispatcher: d, Events: repo, Hub: hub}),
		pub:  pub,
		repo: repo,
		hub:  hub,
	}
}

func publish(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/admin/events", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.PublishEvent(w, r)
	return w
}

func TestPublishEvent_Accepted(t *testing.T) {
	env := newTestEnv(t)

	w := publish(t, env.h, `{"type":"user_created","payload":{"email":"a@example.com"},"audience":["adm_1"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp PublishEventResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == "" || resp.Type != "user_created" || resp.Timestamp != "2024-01-01T00:00:00.000Z" {
		t.Fatalf("unexpected response %+v", resp)
	}

	if len(env.pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(env.pub.events))
	}
	got := env.pub.events[0]
	if got.Message.Payload.String("email") != "a@example.com" {
		t.Errorf("payload = %v", got.Message.Payload)
	}
	if len(got.Audience) != 1 || got.Audience[0] != "adm_1" {
		t.Errorf("audience = %v", got.Audience)
	}
}

func TestPublishEvent_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"type":`, ErrCodeInvalidJSON},
		{"missing type", `{"payload":{}}`, ErrCodeValidationError},
		{"transport kind", `{"type":"heartbeat"}`, ErrCodeValidationError},
		{"unknown kind", `{"type":"user_deleted"}`, ErrCodeValidationError},
		{"bad timestamp", `{"type":"audit_event","timestamp":"yesterday"}`, ErrCodeValidationError},
		{"empty audience entry", `{"type":"audit_event","audience":[""]}`, ErrCodeValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := publish(t, env.h, tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if resp := decodeError(t, w); resp.Error.Code != tt.code {
				t.Errorf("expected code %q, got %q (%s)", tt.code, resp.Error.Code, resp.Error.Message)
			}
			if len(env.pub.events) != 0 {
				t.Error("rejected events must not be published")
			}
		})
	}
}

func TestPublishEvent_ValidationMessageUsesJSONNames(t *testing.T) {
	env := newTestEnv(t)
	w := publish(t, env.h, `{"type":"nope"}`)

	msg := decodeError(t, w).Error.Message
	if !strings.HasPrefix(msg, "type must be one of: ") {
		t.Fatalf("message = %q", msg)
	}
}

func TestPublishEvent_AcceptsCallerTimestamp(t *testing.T) {
	env := newTestEnv(t)
	w := publish(t, env.h, `{"type":"audit_event","timestamp":"2024-03-05T14:07:09.5+02:00"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp PublishEventResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Timestamp != "2024-03-05T12:07:09.500Z" {
		t.Fatalf("timestamp = %q", resp.Timestamp)
	}
}

func TestPublishEvent_BusFailure(t *testing.T) {
	env := newTestEnv(t)
	env.pub.err = errors.New("nats: no servers available for connection")

	w := publish(t, env.h, `{"type":"role_changed","payload":{"email":"a@example.com","newRole":"admin"}}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != ErrCodeUnavailable {
		t.Errorf("expected code %q, got %q", ErrCodeUnavailable, resp.Error.Code)
	}
}

func listEvents(t *testing.T, h *Handler, query string) (*httptest.ResponseRecorder, ListEventsResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ListEvents(w, httptest.NewRequest(http.MethodGet, "/api/admin/events?"+query, nil))

	var resp ListEventsResponse
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return w, resp
}

func TestListEvents_Backfill(t *testing.T) {
	env := newTestEnv(t)
	publish(t, env.h, `{"type":"user_created","payload":{"email":"a@example.com"}}`)
	publish(t, env.h, `{"type":"user_updated","payload":{"email":"b@example.com"},"audience":["adm_2"]}`)
	publish(t, env.h, `{"type":"audit_event","payload":{"action":"login","user":"c"}}`)

	w, all := listEvents(t, env.h, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(all.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(all.Events))
	}
	if all.Events[0].Type != "user_created" || all.Events[2].Type != "audit_event" {
		t.Errorf("events not oldest first: %+v", all.Events)
	}
	if all.NextCursor != all.Events[2].ID {
		t.Errorf("nextCursor = %q, want last id", all.NextCursor)
	}

	_, after := listEvents(t, env.h, "since="+all.Events[0].ID)
	if len(after.Events) != 2 {
		t.Fatalf("since: got %d events, want 2", len(after.Events))
	}

	_, scoped := listEvents(t, env.h, "adminId=adm_1")
	if len(scoped.Events) != 2 {
		t.Fatalf("adm_1 should not see events addressed to adm_2, got %d", len(scoped.Events))
	}

	_, limited := listEvents(t, env.h, "limit=1")
	if len(limited.Events) != 1 {
		t.Fatalf("limit: got %d events, want 1", len(limited.Events))
	}
}

func TestListEvents_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	w, _ := listEvents(t, env.h, "")
	if !strings.Contains(w.Body.String(), `"events":[]`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestListEvents_InvalidLimit(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"limit=abc", "limit=0", "limit=501"} {
		w, _ := listEvents(t, env.h, q)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestListConnections(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.hub.Run(ctx)

	for _, c := range []*sse.Client{
		{ID: "c1", AdminID: "adm_b", Send: make(chan sse.Message, 1), Done: make(chan struct{})},
		{ID: "c2", AdminID: "adm_a", Send: make(chan sse.Message, 1), Done: make(chan struct{})},
		{ID: "c3", AdminID: "adm_a", Send: make(chan sse.Message, 1), Done: make(chan struct{})},
	} {
		env.hub.Register(c)
	}
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() != 3 {
		if time.Now().After(deadline) {
			t.Fatal("clients never registered")
		}
		time.Sleep(time.Millisecond)
	}

	w := httptest.NewRecorder()
	env.h.ListConnections(w, httptest.NewRequest(http.MethodGet, "/api/admin/connections", nil))

	var resp ConnectionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ClientCount != 3 {
		t.Errorf("clientCount = %d, want 3", resp.ClientCount)
	}
	if len(resp.AdminIDs) != 2 || resp.AdminIDs[0] != "adm_a" || resp.AdminIDs[1] != "adm_b" {
		t.Errorf("adminIds = %v", resp.AdminIDs)
	}
}
