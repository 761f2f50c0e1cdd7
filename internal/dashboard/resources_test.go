package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"storeprice/logger"
)

type fakeProbe struct {
	calls  atomic.Int32
	cpuErr error
}

func (p *fakeProbe) CPUPercentWithContext(context.Context) (float64, error) {
	p.calls.Add(1)
	if p.cpuErr != nil {
		return 0, p.cpuErr
	}
	return 42.5, nil
}

func (p *fakeProbe) MemoryInfoWithContext(context.Context) (*process.MemoryInfoStat, error) {
	return &process.MemoryInfoStat{RSS: 512}, nil
}

func stubProbe(t *testing.T, probe *fakeProbe, probeErr error) {
	t.Helper()
	originalProbe, originalHost := newProbe, hostMemoryFn
	t.Cleanup(func() {
		newProbe, hostMemoryFn = originalProbe, originalHost
	})
	newProbe = func() (processProbe, error) {
		if probeErr != nil {
			return nil, probeErr
		}
		return probe, nil
	}
	hostMemoryFn = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 2048}, nil
	}
}

func TestResourceSamplerCollectsSamples(t *testing.T) {
	stubProbe(t, &fakeProbe{}, nil)
	counters := func() appCounters { return appCounters{Rows: 7, Items: 3, Version: 2, Sessions: 1} }
	sampler := newResourceSampler(3, 2*time.Millisecond, counters, logger.GetLogger())

	sampler.start(context.Background())
	deadline := time.Now().Add(time.Second)
	for len(sampler.snapshot()) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("resource sampler did not collect samples in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
	sampler.stop()

	snapshots := sampler.snapshot()
	if len(snapshots) != 3 {
		t.Fatalf("expected history to be capped at 3, got %d", len(snapshots))
	}
	latest := snapshots[len(snapshots)-1]
	if latest.CPUPercent != 42.5 || latest.RSS != 512 || latest.MemoryPct != 25 {
		t.Fatalf("unexpected process data: %#v", latest)
	}
	if latest.Items != 3 || latest.Rows != 7 || latest.Sessions != 1 {
		t.Fatalf("unexpected counters: %#v", latest.appCounters)
	}
}

func TestResourceSamplerSurvivesProbeErrors(t *testing.T) {
	probe := &fakeProbe{cpuErr: errors.New("no cpu")}
	stubProbe(t, probe, nil)
	sampler := newResourceSampler(3, 2*time.Millisecond, nil, logger.GetLogger())

	sampler.start(context.Background())
	deadline := time.Now().Add(time.Second)
	for probe.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	sampler.stop()

	if probe.calls.Load() < 2 {
		t.Fatalf("sampler stopped retrying after an error")
	}
	if len(sampler.snapshot()) != 0 {
		t.Fatalf("failed samples should not be recorded")
	}
}

func TestResourceSamplerWithoutProbe(t *testing.T) {
	stubProbe(t, nil, errors.New("no such process"))
	sampler := newResourceSampler(3, time.Millisecond, nil, logger.GetLogger())

	sampler.start(context.Background())
	sampler.stop()
	sampler.stop()

	if len(sampler.snapshot()) != 0 {
		t.Fatal("expected no samples without a probe")
	}
}
