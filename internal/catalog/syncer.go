package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storeprice/logger"
	"storeprice/models"
	"storeprice/processor"
)

// Source is the row feed the syncer follows.
type Source interface {
	Rows() []models.RawRow
	Len() int
	Subscribe() (<-chan struct{}, func())
}

// Timing controls how often the syncer polls the source.
type Timing struct {
	FastInterval    time.Duration
	SlowInterval    time.Duration
	Warmup          time.Duration
	FailsafeTimeout time.Duration
}

// DefaultTiming polls quickly while seed rows are still arriving and backs
// off once the warmup window has passed.
func DefaultTiming() Timing {
	return Timing{
		FastInterval:    500 * time.Millisecond,
		SlowInterval:    3 * time.Second,
		Warmup:          10 * time.Second,
		FailsafeTimeout: 8 * time.Second,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.FastInterval <= 0 {
		t.FastInterval = d.FastInterval
	}
	if t.SlowInterval <= 0 {
		t.SlowInterval = d.SlowInterval
	}
	if t.Warmup < 0 {
		t.Warmup = d.Warmup
	}
	if t.FailsafeTimeout <= 0 {
		t.FailsafeTimeout = d.FailsafeTimeout
	}
	return t
}

// Syncer keeps a Store in step with a Source. Every pass runs on the
// syncer's own goroutine, so normalization passes never overlap.
type Syncer struct {
	source     Source
	store      *Store
	normalizer *processor.Normalizer
	timing     Timing

	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	lastLen int
	passes  int64
	onPass  func(PassInfo)
}

// PassInfo describes one completed normalization pass.
type PassInfo struct {
	Trigger  string
	Rows     int
	Items    int
	Duration time.Duration
}

func NewSyncer(source Source, store *Store, timing Timing) *Syncer {
	log := logger.GetLogger()
	return &Syncer{
		source:     source,
		store:      store,
		normalizer: processor.NewNormalizer(log),
		timing:     timing.withDefaults(),
		wg:         &sync.WaitGroup{},
		log:        log,
		lastLen:    -1,
	}
}

// OnPass registers a callback invoked after every pass. It must be set
// before Start.
func (s *Syncer) OnPass(fn func(PassInfo)) {
	s.onPass = fn
}

// Start runs one synchronous pass, then follows the source until ctx ends
// or Stop is called.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("syncer already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	log := s.log.WithComponent("catalog_syncer")
	log.WithFields(logger.Fields{
		"fast_interval": s.timing.FastInterval.String(),
		"slow_interval": s.timing.SlowInterval.String(),
		"warmup":        s.timing.Warmup.String(),
		"failsafe":      s.timing.FailsafeTimeout.String(),
	}).Info("starting catalog syncer")

	notify, unsubscribe := s.source.Subscribe()
	s.sync("initial")

	s.wg.Add(1)
	go s.loop(notify, unsubscribe)
	return nil
}

// Stop cancels the loop and waits for it to release its ticker and
// subscription.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	s.log.WithComponent("catalog_syncer").Info("stopping catalog syncer")
	cancel()
	s.wg.Wait()
	s.log.WithComponent("catalog_syncer").Info("catalog syncer stopped")
}

func (s *Syncer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Passes returns how many normalization passes have run.
func (s *Syncer) Passes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passes
}

func (s *Syncer) loop(notify <-chan struct{}, unsubscribe func()) {
	defer s.wg.Done()
	defer unsubscribe()

	log := s.log.WithComponent("catalog_syncer")

	ticker := time.NewTicker(s.timing.FastInterval)
	defer ticker.Stop()
	warmup := time.NewTimer(s.timing.Warmup)
	defer warmup.Stop()
	failsafe := time.NewTimer(s.timing.FailsafeTimeout)
	defer failsafe.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Info("syncer stopped due to context cancellation")
			return
		case <-notify:
			s.sync("event")
		case <-ticker.C:
			s.sync("poll")
		case <-warmup.C:
			ticker.Reset(s.timing.SlowInterval)
			log.WithFields(logger.Fields{"interval": s.timing.SlowInterval.String()}).Debug("warmup over, polling slowly")
		case <-failsafe.C:
			if s.store.MarkReady() {
				log.WithFields(logger.Fields{"items": s.store.Len()}).Warn("failsafe timeout reached before any rows arrived")
			}
		}
	}
}

// sync re-normalizes the full row set when the source length changed since
// the last pass.
func (s *Syncer) sync(trigger string) {
	n := s.source.Len()
	if n == s.lastLen {
		return
	}

	start := time.Now()
	rows := s.source.Rows()
	items := s.normalizer.Run(rows)
	s.lastLen = len(rows)
	s.store.Publish(items, len(rows) > 0)

	s.mu.Lock()
	s.passes++
	s.mu.Unlock()

	if s.onPass != nil {
		s.onPass(PassInfo{Trigger: trigger, Rows: len(rows), Items: len(items), Duration: time.Since(start)})
	}

	logger.LogDataFlowEntry(s.log.WithComponent("catalog_syncer").WithFields(logger.Fields{
		"trigger": trigger,
		"version": s.store.Version(),
	}), "feed", "catalog", len(items), "items")
}
