package session

import (
	"sync"
	"time"

	"storeprice/internal/catalog"
	"storeprice/internal/currency"
	"storeprice/logger"
)

// Manager owns the live sessions.
type Manager struct {
	store *catalog.Store
	table *currency.Table

	mu       sync.RWMutex
	sessions map[string]*Session
	log      *logger.Log
}

func NewManager(store *catalog.Store, table *currency.Table) *Manager {
	return &Manager{
		store:    store,
		table:    table,
		sessions: make(map[string]*Session),
		log:      logger.GetLogger(),
	}
}

// Create opens a session displaying prices in currencyCode, or the default
// currency when the code is unknown.
func (m *Manager) Create(currencyCode string) *Session {
	s := newSession(m.store, m.table, currencyCode)
	m.mu.Lock()
	m.sessions[s.id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.log.WithComponent("sessions").WithFields(logger.Fields{
		"session_id": s.id,
		"currency":   s.code,
		"sessions":   count,
	}).Debug("session created")
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than maxIdle and returns how many
// were removed.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.log.WithComponent("sessions").WithFields(logger.Fields{
			"removed":   removed,
			"remaining": len(m.sessions),
		}).Info("idle sessions swept")
	}
	return removed
}
