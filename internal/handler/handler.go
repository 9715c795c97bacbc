package handler

import (
	"context"

	"github.com/trusttai/api/internal/eventlog"
	"github.com/trusttai/api/internal/sse"
)

// Dispatcher accepts domain events for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, event sse.Event) (sse.Event, error)
}

// EventLister serves the backfill listing.
type EventLister interface {
	ListSince(ctx context.Context, opts eventlog.ListOptions) ([]sse.Event, error)
}

// Handler serves the admin events REST API. The stream itself is served by
// sse.Handler.
type Handler struct {
	dispatcher Dispatcher
	events     EventLister
	hub        *sse.Hub
}

// Dependencies holds all dependencies for the Handler
type Dependencies struct {
	Dispatcher Dispatcher
	Events     EventLister
	Hub        *sse.Hub
}

func New(deps Dependencies) *Handler {
	return &Handler{
		dispatcher: deps.Dispatcher,
		events:     deps.Events,
		hub:        deps.Hub,
	}
}
