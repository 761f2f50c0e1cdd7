package processor

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"storeprice/internal/classifier"
	"storeprice/internal/slug"
	"storeprice/logger"
	"storeprice/models"
)

// missingName is the literal some loaders emit for an absent name.
const missingName = "undefined"

// SkipReason explains why a row did not contribute a price.
type SkipReason string

const (
	SkipNotSequence SkipReason = "not_sequence"
	SkipShortRow    SkipReason = "short_row"
	SkipEmptyName   SkipReason = "empty_name"
	SkipBadPrice    SkipReason = "bad_price"
	SkipCollision   SkipReason = "id_collision"
	SkipDuplicate   SkipReason = "duplicate_market"
)

// Stats summarises one normalization pass.
type Stats struct {
	Rows     int
	Accepted int
	Items    int
	Skipped  map[SkipReason]int
}

func (s *Stats) skip(reason SkipReason) {
	if s.Skipped == nil {
		s.Skipped = make(map[SkipReason]int)
	}
	s.Skipped[reason]++
}

// Normalize folds the complete row set into canonical items. It never fails:
// malformed rows are skipped. The same input always yields the same output,
// with items and prices in first-seen order.
func Normalize(rows []models.RawRow) []models.Item {
	items, _ := NormalizeWithStats(rows)
	return items
}

// NormalizeWithStats is Normalize plus per-reason skip counters.
func NormalizeWithStats(rows []models.RawRow) ([]models.Item, Stats) {
	stats := Stats{Rows: len(rows)}
	items := make([]models.Item, 0)
	index := make(map[string]int)

	for _, raw := range rows {
		name, market, price, reason := parseRow(raw)
		if reason != "" {
			stats.skip(reason)
			continue
		}

		id := slug.ID(name)
		pos, ok := index[id]
		if !ok {
			items = append(items, models.Item{
				ID:       id,
				Name:     name,
				Category: classifier.Classify(name),
				Prices:   make([]models.MarketPrice, 0, 4),
			})
			pos = len(items) - 1
			index[id] = pos
		}

		item := &items[pos]
		if item.Name != name {
			stats.skip(SkipCollision)
			continue
		}
		if item.HasMarket(market) {
			stats.skip(SkipDuplicate)
			continue
		}
		item.Prices = append(item.Prices, models.MarketPrice{Market: market, Price: price})
		stats.Accepted++
	}

	stats.Items = len(items)
	return items, stats
}

// ParseRow extracts the name, market and price of one row. It reports the
// reason the row would be skipped, or "" when it is usable.
func ParseRow(raw models.RawRow) (name, market string, price float64, reason SkipReason) {
	return parseRow(raw)
}

func parseRow(raw models.RawRow) (name, market string, price float64, reason SkipReason) {
	fields, ok := asSequence(raw)
	if !ok {
		return "", "", 0, SkipNotSequence
	}
	if len(fields) < 3 {
		return "", "", 0, SkipShortRow
	}

	name, ok = asString(fields[0])
	if !ok || name == "" || name == missingName {
		return "", "", 0, SkipEmptyName
	}

	market, _ = asString(fields[1])

	price, ok = asPrice(fields[2])
	if !ok {
		return "", "", 0, SkipBadPrice
	}
	return name, market, price, ""
}

func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case string, []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asString coerces a field to a trimmed string. nil reports false.
func asString(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(s), true
	case json.Number:
		return strings.TrimSpace(s.String()), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case fmt.Stringer:
		return strings.TrimSpace(s.String()), true
	default:
		return strings.TrimSpace(fmt.Sprint(s)), true
	}
}

// asPrice accepts numeric values of any width as-is and parses string-like
// values. The
// result must be a finite, non-negative number.
func asPrice(v any) (float64, bool) {
	var f float64
	switch p := v.(type) {
	case float64:
		f = p
	case float32:
		f = float64(p)
	case int:
		f = float64(p)
	case int32:
		f = float64(p)
	case int64:
		f = float64(p)
	case uint:
		f = float64(p)
	case uint32:
		f = float64(p)
	case uint64:
		f = float64(p)
	case json.Number:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(p.String()), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		// Remaining integer and float kinds, including named types.
		rv := reflect.ValueOf(v)
		switch {
		case rv.CanInt():
			f = float64(rv.Int())
		case rv.CanUint():
			f = float64(rv.Uint())
		case rv.CanFloat():
			f = rv.Float()
		default:
			return 0, false
		}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// Normalizer runs Normalize and reports each pass through the logger.
type Normalizer struct {
	log *logger.Log
}

func NewNormalizer(log *logger.Log) *Normalizer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Normalizer{log: log}
}

// Run normalizes rows and logs the pass statistics.
func (n *Normalizer) Run(rows []models.RawRow) []models.Item {
	start := time.Now()
	items, stats := NormalizeWithStats(rows)

	log := n.log.WithComponent("normalizer")
	fields := logger.Fields{
		"rows":     stats.Rows,
		"accepted": stats.Accepted,
		"items":    stats.Items,
	}
	for reason, count := range stats.Skipped {
		fields["skipped_"+string(reason)] = count
	}
	log.WithFields(fields).Debug("rows normalized")
	logger.LogPerformanceEntry(log, "normalizer", "normalize", time.Since(start), logger.Fields{"rows": stats.Rows})

	return items
}
