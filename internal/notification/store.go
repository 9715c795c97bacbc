package notification

import "sync"

const DefaultMaxNotifications = 100

// Store keeps the most recent notifications, newest first.
type Store struct {
	mu    sync.RWMutex
	items []AdminNotification
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultMaxNotifications
	}
	return &Store{limit: limit}
}

// Add prepends n, evicting the oldest entries beyond the limit.
func (s *Store) Add(n AdminNotification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]AdminNotification, 0, min(len(s.items)+1, s.limit))
	items = append(items, n)
	for _, existing := range s.items {
		if len(items) == s.limit {
			break
		}
		items = append(items, existing)
	}
	s.items = items
}

// Notifications returns a copy, most recent first.
func (s *Store) Notifications() []AdminNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AdminNotification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, item := range s.items {
		if !item.IsRead {
			n++
		}
	}
	return n
}

// MarkAsRead marks every notification with id as read. Ids derive from
// kind and timestamp, so more than one entry can share an id.
func (s *Store) MarkAsRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].IsRead = true
		}
	}
}

func (s *Store) MarkAllAsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		s.items[i].IsRead = true
	}
}

func (s *Store) ClearNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	for _, item := range s.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	clear(s.items[len(kept):])
	s.items = kept
}

func (s *Store) ClearAllNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
}
