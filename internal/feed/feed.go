package feed

import (
	"reflect"
	"sync"

	"storeprice/logger"
	"storeprice/models"
)

// MinRowLen is the arity a row needs to be admitted.
const MinRowLen = 3

type Stats struct {
	Admitted      int64
	Rejected      int64
	Notifications int64
	Coalesced     int64
}

// Feed is the append-only row source. Rows are never removed or reordered;
// every Append that admits at least one row wakes each subscriber once.
type Feed struct {
	mu   sync.RWMutex
	rows []models.RawRow

	changes *Broadcaster

	stats      Stats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func New() *Feed {
	return &Feed{
		changes: NewBroadcaster(),
		log:     logger.GetLogger(),
	}
}

// Seed admits the bundled startup rows.
func (f *Feed) Seed(rows []models.RawRow) int {
	n := f.Append(rows...)
	f.log.WithComponent("feed").WithFields(logger.Fields{
		"offered":  len(rows),
		"admitted": n,
	}).Info("feed seeded")
	return n
}

// Append admits every row that is a sequence of at least MinRowLen
// elements and returns how many were admitted.
func (f *Feed) Append(rows ...models.RawRow) int {
	admitted := make([]models.RawRow, 0, len(rows))
	for _, r := range rows {
		if IsRow(r) {
			admitted = append(admitted, r)
		}
	}

	f.statsMutex.Lock()
	f.stats.Admitted += int64(len(admitted))
	f.stats.Rejected += int64(len(rows) - len(admitted))
	f.statsMutex.Unlock()

	if len(rows) != len(admitted) {
		f.log.WithComponent("feed").WithFields(logger.Fields{
			"rejected": len(rows) - len(admitted),
		}).Debug("malformed rows rejected")
	}
	if len(admitted) == 0 {
		return 0
	}

	f.mu.Lock()
	f.rows = append(f.rows, admitted...)
	f.mu.Unlock()

	f.notify()
	return len(admitted)
}

// Rows returns a copy of the full current row set.
func (f *Feed) Rows() []models.RawRow {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.RawRow, len(f.rows))
	copy(out, f.rows)
	return out
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rows)
}

// Subscribe registers for payload-free append notifications. Notifications
// coalesce while the subscriber is busy. The returned func unsubscribes and
// may be called more than once.
func (f *Feed) Subscribe() (<-chan struct{}, func()) {
	return f.changes.Subscribe()
}

func (f *Feed) Subscribers() int {
	return f.changes.Subscribers()
}

func (f *Feed) notify() {
	sent, coalesced := f.changes.Notify()
	f.statsMutex.Lock()
	f.stats.Notifications += int64(sent)
	f.stats.Coalesced += int64(coalesced)
	f.statsMutex.Unlock()
}

func (f *Feed) GetStats() Stats {
	f.statsMutex.RLock()
	defer f.statsMutex.RUnlock()
	return f.stats
}

// IsRow reports whether v is a sequence with at least MinRowLen elements.
func IsRow(v models.RawRow) bool {
	switch s := v.(type) {
	case nil, string, []byte:
		return false
	case []any:
		return len(s) >= MinRowLen
	case []string:
		return len(s) >= MinRowLen
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() >= MinRowLen
	}
	return false
}
