package selection

import (
	"errors"
	"sync"

	"storeprice/models"
)

// Capacity is the maximum number of items compared side by side.
const Capacity = 3

var ErrLimitReached = errors.New("selection limit reached")

// Selection is an ordered set of item ids bounded by Capacity.
type Selection struct {
	mu  sync.RWMutex
	ids []string
}

func New() *Selection {
	return &Selection{ids: make([]string, 0, Capacity)}
}

// Toggle removes id when selected and adds it otherwise. Adding to a full
// selection returns ErrLimitReached and leaves the selection unchanged. The
// result reports whether id is selected afterwards.
func (s *Selection) Toggle(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, cur := range s.ids {
		if cur == id {
			s.ids = append(s.ids[:i:i], s.ids[i+1:]...)
			return false, nil
		}
	}
	if len(s.ids) >= Capacity {
		return false, ErrLimitReached
	}
	s.ids = append(s.ids, id)
	return true, nil
}

// Remove deletes id and reports whether it was selected.
func (s *Selection) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.ids {
		if cur == id {
			s.ids = append(s.ids[:i:i], s.ids[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Selection) Clear() {
	s.mu.Lock()
	s.ids = make([]string, 0, Capacity)
	s.mu.Unlock()
}

// IDs returns the selected ids in selection order.
func (s *Selection) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ids...)
}

func (s *Selection) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cur := range s.ids {
		if cur == id {
			return true
		}
	}
	return false
}

func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Items returns the selected items in catalog order. Ids missing from the
// catalog are skipped.
func (s *Selection) Items(catalog []models.Item) []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Item, 0, len(s.ids))
	for _, it := range catalog {
		for _, id := range s.ids {
			if it.ID == id {
				out = append(out, it)
				break
			}
		}
	}
	return out
}
