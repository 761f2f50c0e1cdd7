package metrics

import (
	"context"
	"sync"
	"time"

	"storeprice/logger"
)

// Kind tells consumers how to aggregate an event's value.
type Kind string

const (
	Counter Kind = "counter"
	Gauge   Kind = "gauge"
)

// Event is one observation emitted by a catalog component: rows admitted by
// a feed reader, items after a catalog pass, a rate refresh.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component"`
	Name      string        `json:"name"`
	Value     float64       `json:"value"`
	Kind      Kind          `json:"kind"`
	Fields    logger.Fields `json:"fields,omitempty"`
}

// Key names the series the event belongs to.
func (e Event) Key() string { return e.Component + "." + e.Name }

// Subscription identifies a registered event consumer. Zero is never issued.
type Subscription uint64

type bus struct {
	mu   sync.RWMutex
	next Subscription
	subs map[Subscription]func(Event)
}

var events = &bus{subs: make(map[Subscription]func(Event))}

// Subscribe registers fn for every future event. A nil fn is ignored and
// yields the zero Subscription.
func Subscribe(fn func(Event)) Subscription {
	if fn == nil {
		return 0
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	events.next++
	events.subs[events.next] = fn
	return events.next
}

// Unsubscribe removes the consumer registered under id.
func Unsubscribe(id Subscription) {
	if id == 0 {
		return
	}
	events.mu.Lock()
	delete(events.subs, id)
	events.mu.Unlock()
}

func (b *bus) publish(ev Event) {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Emit logs an event, fans it out to subscribers and publishes it to
// CloudWatch when that is configured. Events without a name are dropped.
// The caller's fields map is copied, never retained.
func Emit(log *logger.Log, component, name string, value float64, kind Kind, fields logger.Fields) {
	if name == "" {
		return
	}
	if kind == "" {
		kind = Counter
	}
	if log == nil {
		log = logger.GetLogger()
	}

	ev := Event{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Kind:      kind,
		Fields:    make(logger.Fields, len(fields)),
	}
	for k, v := range fields {
		ev.Fields[k] = v
	}

	log.WithComponent(component).WithFields(ev.Fields).WithFields(logger.Fields{
		"metric":      name,
		"metric_kind": string(kind),
		"value":       value,
	}).Debug("metric")

	events.publish(ev)
	logger.PublishMetric(context.Background(), component, name, value, ev.Fields)
}
