package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const reportPrefix = "StorePrice"

type sourceStat struct {
	batches int64
	rows    int64
}

var (
	errorCounts   sync.Map // map[string]*int64, keyed by component
	warnCounts    sync.Map // map[string]*int64, keyed by component
	sources       sync.Map // map[string]*sourceStat
	catalogPasses int64
	catalogItems  int64
)

func bump(m *sync.Map, key string) {
	v, _ := m.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordWarn(component string) {
	bump(&warnCounts, component)
}

func recordError(component string) {
	bump(&errorCounts, component)
}

// RecordFeedBatch counts one batch of rows admitted from a feed source.
func RecordFeedBatch(source string, rows int) {
	v, _ := sources.LoadOrStore(source, &sourceStat{})
	st := v.(*sourceStat)
	atomic.AddInt64(&st.batches, 1)
	atomic.AddInt64(&st.rows, int64(rows))
}

// RecordCatalogPass counts a normalization pass and the resulting item count.
func RecordCatalogPass(items int) {
	atomic.AddInt64(&catalogPasses, 1)
	atomic.StoreInt64(&catalogItems, int64(items))
}

func sumCounts(m *sync.Map) (int64, map[string]int64) {
	total := int64(0)
	per := map[string]int64{}
	m.Range(func(k, v any) bool {
		n := atomic.LoadInt64(v.(*int64))
		per[k.(string)] = n
		total += n
		return true
	})
	return total, per
}

// StartReport begins periodic logging of system, feed and catalog
// statistics until ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memUsedMB := 0.0
	if memStats, err := mem.VirtualMemory(); err == nil {
		memUsedMB = float64(memStats.Used) / 1024 / 1024
	}

	sourceData := map[string]map[string]int64{}
	feedRows := int64(0)
	sources.Range(func(k, v any) bool {
		st := v.(*sourceStat)
		rows := atomic.LoadInt64(&st.rows)
		sourceData[k.(string)] = map[string]int64{
			"batches": atomic.LoadInt64(&st.batches),
			"rows":    rows,
		}
		feedRows += rows
		return true
	})

	errorsTotal, errorsBy := sumCounts(&errorCounts)
	warnsTotal, warnsBy := sumCounts(&warnCounts)
	items := atomic.LoadInt64(&catalogItems)

	log.WithComponent("report").WithFields(Fields{
		"errors":         errorsTotal,
		"errors_by":      errorsBy,
		"warns":          warnsTotal,
		"warns_by":       warnsBy,
		"feed_rows":      feedRows,
		"sources":        sourceData,
		"catalog_passes": atomic.LoadInt64(&catalogPasses),
		"catalog_items":  items,
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memUsedMB),
	}).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String(reportPrefix + "-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String(reportPrefix + "-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memUsedMB)},
		{MetricName: aws.String(reportPrefix + "-Errors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(errorsTotal))},
		{MetricName: aws.String(reportPrefix + "-Warns"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(warnsTotal))},
		{MetricName: aws.String(reportPrefix + "-FeedRows"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(feedRows))},
		{MetricName: aws.String(reportPrefix + "-CatalogItems"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(items))},
	}
	for name, stats := range sourceData {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(reportPrefix + "-SourceRows"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Source"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(stats["rows"])),
		})
	}

	publishMetrics(ctx, data)
}
