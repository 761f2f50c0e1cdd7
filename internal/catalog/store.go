package catalog

import (
	"sync"
	"time"

	"storeprice/internal/feed"
	"storeprice/models"
)

// Snapshot is one consistent view of the catalog.
type Snapshot struct {
	Items     []models.Item    `json:"items"`
	Version   uint64           `json:"version"`
	State     models.LoadState `json:"state"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store holds the most recent normalized catalog. Item slices handed out by
// the store are never modified afterwards; Replace swaps in a new slice.
type Store struct {
	mu        sync.RWMutex
	items     []models.Item
	index     map[string]int
	version   uint64
	ready     bool
	updatedAt time.Time

	changes *feed.Broadcaster
}

func NewStore() *Store {
	return &Store{
		items:   []models.Item{},
		index:   map[string]int{},
		changes: feed.NewBroadcaster(),
	}
}

// Items returns the current catalog in first-seen order. Callers must treat
// the result as read-only.
func (s *Store) Items() []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items
}

// Replace installs a freshly normalized catalog and notifies subscribers.
// The loading state is left as is.
func (s *Store) Replace(items []models.Item) {
	s.Publish(items, false)
}

// Publish installs items and, when ready is set, ends the loading phase in
// the same critical section. Subscribers get one notification and never see
// the new items while the store still reports loading.
func (s *Store) Publish(items []models.Item, ready bool) {
	index := make(map[string]int, len(items))
	for i, it := range items {
		index[it.ID] = i
	}

	s.mu.Lock()
	s.items = items
	s.index = index
	s.version++
	s.updatedAt = time.Now()
	if ready {
		s.ready = true
	}
	s.mu.Unlock()

	s.changes.Notify()
}

// Lookup returns a copy of the item with the given id.
func (s *Store) Lookup(id string) (models.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Item{}, false
	}
	return s.items[i].Clone(), true
}

func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// State reports loading until the store has been marked ready, then
// ready-empty or ready depending on whether any item exists.
func (s *Store) State() models.LoadState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() models.LoadState {
	switch {
	case !s.ready:
		return models.LoadStateLoading
	case len(s.items) == 0:
		return models.LoadStateReadyEmpty
	default:
		return models.LoadStateReady
	}
}

// MarkReady ends the loading phase. It reports whether the state changed.
func (s *Store) MarkReady() bool {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return false
	}
	s.ready = true
	s.mu.Unlock()

	s.changes.Notify()
	return true
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Items:     s.items,
		Version:   s.version,
		State:     s.stateLocked(),
		UpdatedAt: s.updatedAt,
	}
}

// Subscribe notifies on every Replace and on the end of loading.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}
