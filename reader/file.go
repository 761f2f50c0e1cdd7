package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"storeprice/config"
	"storeprice/logger"
)

const defaultScanInterval = 5 * time.Second

// FileReader watches glob patterns and appends every new row file to the sink.
type FileReader struct {
	patterns []string
	interval time.Duration
	sink     Sink
	onBatch  BatchFunc
	seen     map[string]struct{}
	seenMu   sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func NewFileReader(cfg config.FileFeedConfig, sink Sink) *FileReader {
	interval := cfg.ScanInterval
	if interval <= 0 {
		interval = defaultScanInterval
	}
	return &FileReader{
		patterns: cfg.Paths,
		interval: interval,
		sink:     sink,
		seen:     make(map[string]struct{}),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// OnBatch sets the per batch hook. Call before Start.
func (r *FileReader) OnBatch(fn BatchFunc) { r.onBatch = fn }

// MarkSeen records files that were already loaded elsewhere, such as seed
// files, so the first scan does not append them twice.
func (r *FileReader) MarkSeen(paths ...string) {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		r.seen[p] = struct{}{}
	}
}

func (r *FileReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("file reader already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.log.WithComponent("file_reader").WithFields(logger.Fields{
		"patterns": r.patterns,
		"interval": r.interval.String(),
	}).Info("starting file reader")

	r.wg.Add(1)
	go r.loop()
	return nil
}

func (r *FileReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.log.WithComponent("file_reader").Info("file reader stopped")
}

func (r *FileReader) loop() {
	defer r.wg.Done()

	r.Scan()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Scan()
		}
	}
}

// Scan loads every matching file not seen before and returns the number of
// files delivered. Files that fail to read or decode are marked seen and
// skipped.
func (r *FileReader) Scan() int {
	log := r.log.WithComponent("file_reader")

	var matches []string
	for _, pattern := range r.patterns {
		m, err := filepath.Glob(pattern)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"pattern": pattern}).Warn("invalid glob pattern")
			continue
		}
		matches = append(matches, m...)
	}
	sort.Strings(matches)

	delivered := 0
	for _, path := range matches {
		if !Supported(path) {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		r.seenMu.Lock()
		_, done := r.seen[abs]
		if !done {
			r.seen[abs] = struct{}{}
		}
		r.seenMu.Unlock()
		if done {
			continue
		}

		rows, err := LoadFile(path)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"path": path}).Warn("skipping row file")
			continue
		}
		deliver(r.log, r.sink, "file_reader", path, rows, r.onBatch)
		delivered++
	}
	return delivered
}

// LoadFile reads and decodes one row file.
func LoadFile(path string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read row file: %w", err)
	}
	return DecodeRows(path, data)
}

// LoadGlobs reads every supported file matching patterns, in sorted order per
// pattern. It returns the concatenated rows and the files that were loaded.
func LoadGlobs(patterns []string) ([]any, []string, error) {
	var rows []any
	var loaded []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, path := range matches {
			if !Supported(path) {
				continue
			}
			r, err := LoadFile(path)
			if err != nil {
				return nil, nil, err
			}
			rows = append(rows, r...)
			loaded = append(loaded, path)
		}
	}
	return rows, loaded, nil
}
