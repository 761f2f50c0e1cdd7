package dashboard

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"storeprice/internal/metrics"
)

const defaultHistory = 200

// history is a bounded, concurrency safe buffer that keeps the newest items.
type history[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newHistory[T any](limit int) *history[T] {
	if limit <= 0 {
		limit = defaultHistory
	}
	return &history[T]{limit: limit}
}

func (h *history[T]) add(item T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, item)
	if len(h.items) > h.limit {
		h.items = append([]T(nil), h.items[len(h.items)-h.limit:]...)
	}
}

func (h *history[T]) snapshot() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]T, len(h.items))
	copy(out, h.items)
	return out
}

// metricStore keeps the most recent metric events for /api/metrics.
type metricStore struct {
	*history[metrics.Event]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{history: newHistory[metrics.Event](limit)}
}

func (s *metricStore) handle(ev metrics.Event) { s.add(ev) }

// latest returns the newest event of every series.
func (s *metricStore) latest() map[string]metrics.Event {
	out := make(map[string]metrics.Event)
	for _, ev := range s.snapshot() {
		out[ev.Key()] = ev
	}
	return out
}

// logRecord is a captured log entry as rendered by the dashboard.
type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook that retains the newest log entries.
type logStore struct {
	*history[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{history: newHistory[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}
	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}
			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}

	s.add(record)
	return nil
}

// query returns the retained records at or above minLevel, optionally
// restricted to one component.
func (s *logStore) query(minLevel, component string) []logRecord {
	threshold := logrus.TraceLevel
	if minLevel != "" {
		if lvl, err := logrus.ParseLevel(minLevel); err == nil {
			threshold = lvl
		}
	}

	all := s.snapshot()
	out := make([]logRecord, 0, len(all))
	for _, r := range all {
		lvl, err := logrus.ParseLevel(r.Level)
		if err == nil && lvl > threshold {
			continue
		}
		if component != "" && !strings.EqualFold(r.Component, component) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
