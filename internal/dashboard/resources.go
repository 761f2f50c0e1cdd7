package dashboard

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"storeprice/logger"
)

// appCounters are the catalog side numbers sampled next to process usage.
type appCounters struct {
	Rows     int    `json:"rows"`
	Items    int    `json:"items"`
	Version  uint64 `json:"version"`
	Sessions int    `json:"sessions"`
}

// resourceSnapshot is one sample of this process's footprint and the
// catalog size at that moment.
type resourceSnapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	RSS        uint64    `json:"rss"`
	HostTotal  uint64    `json:"host_memory_total"`
	MemoryPct  float64   `json:"memory_percent"`
	Goroutines int       `json:"goroutines"`
	appCounters
}

type processProbe interface {
	CPUPercentWithContext(ctx context.Context) (float64, error)
	MemoryInfoWithContext(ctx context.Context) (*process.MemoryInfoStat, error)
}

var (
	newProbe = func() (processProbe, error) {
		return process.NewProcess(int32(os.Getpid()))
	}
	hostMemoryFn = mem.VirtualMemoryWithContext
)

type resourceSampler struct {
	samples  *history[resourceSnapshot]
	interval time.Duration
	counters func() appCounters
	log      *logger.Log

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newResourceSampler(limit int, interval time.Duration, counters func() appCounters, log *logger.Log) *resourceSampler {
	if interval <= 0 {
		interval = time.Second
	}
	if counters == nil {
		counters = func() appCounters { return appCounters{} }
	}
	return &resourceSampler{
		samples:  newHistory[resourceSnapshot](limit),
		interval: interval,
		counters: counters,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	probe, err := newProbe()
	if err != nil {
		s.log.WithComponent("resource_sampler").WithError(err).Warn("process probe unavailable; resource sampling disabled")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, probe, s.done)
}

func (s *resourceSampler) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *resourceSampler) snapshot() []resourceSnapshot {
	if s == nil {
		return nil
	}
	return s.samples.snapshot()
}

func (s *resourceSampler) run(ctx context.Context, probe processProbe, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if snap, ok := s.sample(ctx, probe); ok {
			s.samples.add(snap)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sample reads one snapshot. A failed probe read drops the sample; the host
// total is optional.
func (s *resourceSampler) sample(ctx context.Context, probe processProbe) (resourceSnapshot, bool) {
	log := s.log.WithComponent("resource_sampler")

	cpuPct, err := probe.CPUPercentWithContext(ctx)
	if err != nil {
		log.WithError(err).Debug("failed to sample cpu usage")
		return resourceSnapshot{}, false
	}
	info, err := probe.MemoryInfoWithContext(ctx)
	if err != nil {
		log.WithError(err).Debug("failed to sample memory usage")
		return resourceSnapshot{}, false
	}

	snap := resourceSnapshot{
		Timestamp:   time.Now(),
		CPUPercent:  cpuPct,
		RSS:         info.RSS,
		Goroutines:  runtime.NumGoroutine(),
		appCounters: s.counters(),
	}
	if host, err := hostMemoryFn(ctx); err == nil && host.Total > 0 {
		snap.HostTotal = host.Total
		snap.MemoryPct = float64(info.RSS) / float64(host.Total) * 100
	}
	return snap, true
}
