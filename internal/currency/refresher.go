package currency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storeprice/logger"
)

// Refresher pulls rates from a RateService into a Table: once at start and
// then every interval. Failed fetches leave the table untouched.
type Refresher struct {
	table    *Table
	service  RateService
	interval time.Duration
	timeout  time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	refreshMu sync.Mutex
	successes int64
	failures  int64
	lastErr   error
	onResult  func(error)
}

func NewRefresher(table *Table, service RateService, interval, timeout time.Duration) *Refresher {
	if interval <= 0 {
		interval = time.Hour
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Refresher{
		table:    table,
		service:  service,
		interval: interval,
		timeout:  timeout,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// OnResult registers a callback invoked after every refresh attempt. It
// must be set before Start.
func (r *Refresher) OnResult(fn func(error)) {
	r.onResult = fn
}

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.log.WithComponent("rate_refresher").WithFields(logger.Fields{
		"interval": r.interval.String(),
	}).Info("starting rate refresher")

	r.wg.Add(1)
	go r.loop()
	return nil
}

func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	r.log.WithComponent("rate_refresher").Info("stopping rate refresher")
	cancel()
	r.wg.Wait()
	r.log.WithComponent("rate_refresher").Info("rate refresher stopped")
}

func (r *Refresher) loop() {
	defer r.wg.Done()

	r.Refresh(r.ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(r.ctx)
		}
	}
}

// Refresh performs one fetch and applies it on success. Concurrent calls
// are serialized.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	log := r.log.WithComponent("rate_refresher")
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rates, err := r.service.FetchRates(fetchCtx)
	if err != nil {
		r.failures++
		r.lastErr = err
		log.WithError(err).Warn("rate refresh failed, keeping previous rates")
		if r.onResult != nil {
			r.onResult(err)
		}
		return err
	}

	updated := r.table.Apply(rates)
	r.successes++
	r.lastErr = nil
	log.WithFields(logger.Fields{
		"received": len(rates),
		"updated":  updated,
	}).Info("rates refreshed")
	if r.onResult != nil {
		r.onResult(nil)
	}
	return nil
}

// Stats returns the success and failure counts and the last error.
func (r *Refresher) Stats() (successes, failures int64, lastErr error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	return r.successes, r.failures, r.lastErr
}
