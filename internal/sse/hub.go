package sse

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

type Client struct {
	ID      string
	AdminID string
	Send    chan Message
	Done    chan struct{}
}

// Metrics receives stream lifecycle counts. Implementations must be safe
// for concurrent use.
type Metrics interface {
	StreamOpened()
	StreamClosed()
	FrameWritten(kind Kind)
	EventDropped(kind Kind)
}

type nopMetrics struct{}

func (nopMetrics) StreamOpened()     {}
func (nopMetrics) StreamClosed()     {}
func (nopMetrics) FrameWritten(Kind) {}
func (nopMetrics) EventDropped(Kind) {}

type Hub struct {
	mu sync.RWMutex

	// adminID -> clientID -> client
	admins map[string]map[string]*Client

	metrics Metrics

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	// regMu orders Register against stop: once stopped is set, nothing more
	// is queued on register.
	regMu   sync.RWMutex
	stopped bool
}

func NewHub(metrics Metrics) *Hub {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Hub{
		admins:     make(map[string]map[string]*Client),
		metrics:    metrics,
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until ctx is cancelled, then ends every open
// stream so that server shutdown is not held up by long-lived responses.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			if h.addClient(client) {
				slog.Debug("admin connected", "component", "sse", "admin_id", client.AdminID)
			}
		case client := <-h.unregister:
			if h.removeClient(client) {
				slog.Debug("admin disconnected", "component", "sse", "admin_id", client.AdminID)
			}
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.regMu.Lock()
		h.stopped = true
		h.regMu.Unlock()

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, clients := range h.admins {
			for _, client := range clients {
				close(client.Done)
			}
		}

		// Registrations that raced with shutdown never reached addClient.
		for {
			select {
			case client := <-h.register:
				close(client.Done)
			default:
				return
			}
		}
	})
}

// Register queues client for fan-out. It returns false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	h.regMu.RLock()
	defer h.regMu.RUnlock()

	if h.stopped {
		return false
	}
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// addClient reports whether this is the admin's first open stream.
func (h *Hub) addClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.admins[client.AdminID]
	if clients == nil {
		clients = make(map[string]*Client)
		h.admins[client.AdminID] = clients
	}
	clients[client.ID] = client
	return len(clients) == 1
}

// removeClient closes the client's send channel exactly once and reports
// whether the admin has no streams left.
func (h *Hub) removeClient(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.admins[client.AdminID]
	if !ok {
		return false
	}
	if _, ok := clients[client.ID]; !ok {
		return false
	}
	delete(clients, client.ID)
	close(client.Send)

	if len(clients) == 0 {
		delete(h.admins, client.AdminID)
		return true
	}
	return false
}

// Broadcast hands event to every stream in its audience without blocking.
// A stream whose buffer is full misses the event.
func (h *Hub) Broadcast(event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for adminID, clients := range h.admins {
		if !event.Reaches(adminID) {
			continue
		}
		for _, client := range clients {
			select {
			case client.Send <- event.Message:
				delivered++
			default:
				h.metrics.EventDropped(event.Message.Type)
				slog.Warn("client buffer full, dropping event",
					"component", "sse",
					"admin_id", adminID,
					"client_id", client.ID,
					"type", event.Message.Type,
				)
			}
		}
	}
	return delivered
}

func (h *Hub) ConnectedAdminIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.admins))
	for id := range h.admins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) IsAdminConnected(adminID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.admins[adminID]
	return ok
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.admins {
		n += len(clients)
	}
	return n
}
