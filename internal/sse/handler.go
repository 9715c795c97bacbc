package sse

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	HeartbeatInterval = 30 * time.Second
	ClientBufferSize  = 256

	// AdminIDParam scopes a stream to one admin's audience.
	AdminIDParam = "adminId"
)

// Ticker is the part of time.Ticker the stream loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type HandlerOptions struct {
	HeartbeatInterval time.Duration
	ClientBufferSize  int
	Metrics           Metrics

	// Overridable for tests.
	Now       func() time.Time
	NewTicker func(time.Duration) Ticker
}

type Handler struct {
	hub        *Hub
	heartbeat  time.Duration
	bufferSize int
	metrics    Metrics
	now        func() time.Time
	newTicker  func(time.Duration) Ticker
}

func NewHandler(hub *Hub, opts HandlerOptions) *Handler {
	h := &Handler{
		hub:        hub,
		heartbeat:  opts.HeartbeatInterval,
		bufferSize: opts.ClientBufferSize,
		metrics:    opts.Metrics,
		now:        opts.Now,
		newTicker:  opts.NewTicker,
	}
	if h.heartbeat <= 0 {
		h.heartbeat = HeartbeatInterval
	}
	if h.bufferSize <= 0 {
		h.bufferSize = ClientBufferSize
	}
	if h.metrics == nil {
		h.metrics = nopMetrics{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.newTicker == nil {
		h.newTicker = newRealTicker
	}
	return h
}

// Events holds the response open as an event stream for one admin until the
// client goes away, a write fails or the hub shuts down.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	adminID := r.URL.Query().Get(AdminIDParam)
	if adminID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "adminId query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Streaming not supported")
		return
	}

	client := &Client{
		ID:      ulid.Make().String(),
		AdminID: adminID,
		Send:    make(chan Message, h.bufferSize),
		Done:    make(chan struct{}),
	}

	if !h.hub.Register(client) {
		writeError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Server is shutting down")
		return
	}
	defer h.hub.Unregister(client)

	// The ticker must be released on every exit path, including aborts.
	heartbeat := h.newTicker(h.heartbeat)
	defer heartbeat.Stop()

	h.metrics.StreamOpened()
	defer h.metrics.StreamClosed()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	log := slog.With("component", "sse", "admin_id", adminID, "client_id", client.ID)
	log.Info("stream opened")

	if err := h.write(w, flusher, NewMessage(KindConnectionEstablished, Payload{"clientId": client.ID}, h.now())); err != nil {
		log.Info("stream closed", "reason", "write failed", "error", err)
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Info("stream closed", "reason", "client aborted")
			return
		case <-client.Done:
			log.Info("stream closed", "reason", "hub stopped")
			return
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if err := h.write(w, flusher, msg); err != nil {
				log.Info("stream closed", "reason", "write failed", "error", err)
				return
			}
		case <-heartbeat.C():
			if err := h.write(w, flusher, NewMessage(KindHeartbeat, nil, h.now())); err != nil {
				log.Info("stream closed", "reason", "write failed", "error", err)
				return
			}
		}
	}
}

func (h *Handler) write(w http.ResponseWriter, flusher http.Flusher, msg Message) error {
	if err := WriteFrame(w, msg); err != nil {
		return err
	}
	flusher.Flush()
	h.metrics.FrameWritten(msg.Type)
	return nil
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
