package currency

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"storeprice/models"
)

// DefaultCode is the base unit every feed price is quoted in.
const DefaultCode = "USD"

var ErrUnknownCurrency = errors.New("unknown currency")

// Builtin returns the bundled display table. Rates are the fallback
// multipliers used until a refresh succeeds.
func Builtin() []models.Currency {
	return []models.Currency{
		{Code: "USD", Rate: 1.0, Symbol: "$", Position: models.PositionPrefix, Precision: 4, Label: "US Dollar"},
		{Code: "SAR", Rate: 3.75, Symbol: "ر.س", Position: models.PositionSuffix, Precision: 2, Label: "Saudi Riyal"},
		{Code: "EUR", Rate: 0.92, Symbol: "€", Position: models.PositionPrefix, Precision: 2, Label: "Euro"},
		{Code: "AED", Rate: 3.67, Symbol: "د.إ", Position: models.PositionSuffix, Precision: 2, Label: "UAE Dirham"},
		{Code: "TRY", Rate: 34.0, Symbol: "₺", Position: models.PositionPrefix, Precision: 2, Label: "Turkish Lira"},
		{Code: "EGP", Rate: 48.4, Symbol: "ج.م", Position: models.PositionSuffix, Precision: 2, Label: "Egyptian Pound"},
		{Code: "KWD", Rate: 0.31, Symbol: "د.ك", Position: models.PositionSuffix, Precision: 3, Label: "Kuwaiti Dinar"},
		{Code: "GBP", Rate: 0.79, Symbol: "£", Position: models.PositionPrefix, Precision: 2, Label: "British Pound"},
		{Code: "BHD", Rate: 0.37, Symbol: "ب.د", Position: models.PositionSuffix, Precision: 3, Label: "Bahraini Dinar"},
		{Code: "QAR", Rate: 3.64, Symbol: "ر.ق", Position: models.PositionSuffix, Precision: 2, Label: "Qatari Riyal"},
	}
}

// Table is the live currency table. Rates are replaced wholesale by Apply;
// display attributes never change.
type Table struct {
	mu          sync.RWMutex
	order       []string
	byCode      map[string]models.Currency
	defaultCode string
	live        bool
	refreshedAt time.Time
}

// NewTable builds a table from currencies. defaultCode must be one of them;
// otherwise the first currency becomes the default.
func NewTable(currencies []models.Currency, defaultCode string) (*Table, error) {
	if len(currencies) == 0 {
		return nil, fmt.Errorf("currency table is empty")
	}
	t := &Table{byCode: make(map[string]models.Currency, len(currencies))}
	for _, c := range currencies {
		code := normalizeCode(c.Code)
		if code == "" {
			return nil, fmt.Errorf("currency without code")
		}
		if _, dup := t.byCode[code]; dup {
			return nil, fmt.Errorf("duplicate currency %s", code)
		}
		if !validRate(c.Rate) {
			return nil, fmt.Errorf("currency %s: invalid rate %v", code, c.Rate)
		}
		if c.Position != models.PositionSuffix {
			c.Position = models.PositionPrefix
		}
		if c.Precision < 0 {
			c.Precision = 0
		}
		c.Code = code
		t.byCode[code] = c
		t.order = append(t.order, code)
	}

	t.defaultCode = normalizeCode(defaultCode)
	if _, ok := t.byCode[t.defaultCode]; !ok {
		t.defaultCode = t.order[0]
	}
	return t, nil
}

// NewBuiltinTable is NewTable over Builtin with USD as default.
func NewBuiltinTable() *Table {
	t, _ := NewTable(Builtin(), DefaultCode)
	return t
}

func (t *Table) Get(code string) (models.Currency, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byCode[normalizeCode(code)]
	if !ok {
		return models.Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return c, nil
}

// Resolve returns the currency for code, or the default for unknown codes.
func (t *Table) Resolve(code string) models.Currency {
	if c, err := t.Get(code); err == nil {
		return c
	}
	return t.Default()
}

func (t *Table) Default() models.Currency {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byCode[t.defaultCode]
}

// All returns the currencies in table order.
func (t *Table) All() []models.Currency {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Currency, 0, len(t.order))
	for _, code := range t.order {
		out = append(out, t.byCode[code])
	}
	return out
}

// Apply installs freshly fetched rates and returns how many currencies were
// updated. Codes absent from rates keep their previous multiplier; zero,
// negative and non-finite values are ignored. The default currency is the
// base unit and always stays at 1.
func (t *Table) Apply(rates map[string]float64) int {
	next := make(map[string]models.Currency, len(t.byCode))

	t.mu.Lock()
	defer t.mu.Unlock()

	updated := 0
	for code, c := range t.byCode {
		if code != t.defaultCode {
			if r, ok := lookupRate(rates, code); ok && validRate(r) {
				if r != c.Rate {
					updated++
				}
				c.Rate = r
			}
		}
		next[code] = c
	}
	t.byCode = next
	t.live = true
	t.refreshedAt = time.Now()
	return updated
}

// Live reports whether at least one refresh has been applied.
func (t *Table) Live() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

func (t *Table) RefreshedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refreshedAt
}

func lookupRate(rates map[string]float64, code string) (float64, bool) {
	if r, ok := rates[code]; ok {
		return r, true
	}
	for k, r := range rates {
		if normalizeCode(k) == code {
			return r, true
		}
	}
	return 0, false
}

func validRate(r float64) bool {
	return r > 0 && !math.IsNaN(r) && !math.IsInf(r, 0)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
