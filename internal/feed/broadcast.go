package feed

import "sync"

// Broadcaster fans payload-free change signals out to subscribers. Each
// subscriber channel holds at most one pending signal, so bursts coalesce
// and a slow subscriber never blocks the sender.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan struct{})}
}

// Subscribe returns the signal channel and an idempotent unsubscribe func.
func (b *Broadcaster) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Notify signals every subscriber and reports how many signals were
// delivered and how many merged into an already pending one.
func (b *Broadcaster) Notify() (sent, coalesced int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
			sent++
		default:
			coalesced++
		}
	}
	return sent, coalesced
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
