package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"storeprice/internal/catalog"
	"storeprice/internal/currency"
	"storeprice/internal/i18n"
	"storeprice/internal/selection"
	"storeprice/internal/slug"
	"storeprice/internal/view"
	"storeprice/models"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrUnknownItem = errors.New("unknown item")
)

// PriceView is one market price ready for display.
type PriceView struct {
	Market      string  `json:"market"`
	MarketLabel string  `json:"market_label"`
	Price       float64 `json:"price"`
	Display     string  `json:"display"`
	Cheapest    bool    `json:"cheapest"`
}

// ItemView is an item with its prices ranked and formatted.
type ItemView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	LocalName string          `json:"local_name"`
	Category  models.Category `json:"category"`
	Images    []string        `json:"images"`
	Prices    []PriceView     `json:"prices"`
	Selected  bool            `json:"selected"`
}

// View is everything the presentation layer renders for one session.
type View struct {
	SessionID      string                     `json:"session_id"`
	Language       string                     `json:"language"`
	Strings        i18n.UI                    `json:"strings"`
	CategoryLabels map[models.Category]string `json:"category_labels"`
	Search         string                     `json:"search"`
	Category       models.Category            `json:"category"`
	Currency       models.Currency            `json:"currency"`
	State          models.LoadState           `json:"state"`
	RatesLive      bool                       `json:"rates_live"`
	Version        uint64                     `json:"version"`
	Counts         map[models.Category]int    `json:"counts"`
	Items          []ItemView                 `json:"items"`
	Selection      []string                   `json:"selection"`
	Compare        []ItemView                 `json:"compare"`
}

// Session is one browser's view state over the shared catalog.
type Session struct {
	id      string
	store   *catalog.Store
	table   *currency.Table
	created time.Time

	mu       sync.RWMutex
	search   string
	category models.Category
	code     string
	lang     string
	lastSeen time.Time

	selection *selection.Selection
}

func newSession(store *catalog.Store, table *currency.Table, currencyCode string) *Session {
	now := time.Now()
	return &Session{
		id:        uuid.NewString(),
		store:     store,
		table:     table,
		created:   now,
		category:  models.CategoryAll,
		code:      table.Resolve(currencyCode).Code,
		lang:      i18n.English,
		lastSeen:  now,
		selection: selection.New(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Session) SetFilter(search string, category models.Category) {
	s.mu.Lock()
	s.search = search
	s.category = models.ParseCategory(string(category))
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// SetCurrency switches the display currency. Unknown codes fall back to the
// default currency, which is returned.
func (s *Session) SetCurrency(code string) models.Currency {
	c := s.table.Resolve(code)
	s.mu.Lock()
	s.code = c.Code
	s.lastSeen = time.Now()
	s.mu.Unlock()
	return c
}

// SetLanguage switches the display language. Unsupported languages fall
// back to English, which is returned.
func (s *Session) SetLanguage(lang string) string {
	lang = i18n.Language(lang)
	s.mu.Lock()
	s.lang = lang
	s.lastSeen = time.Now()
	s.mu.Unlock()
	return lang
}

func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lang
}

func (s *Session) Currency() models.Currency {
	s.mu.RLock()
	code := s.code
	s.mu.RUnlock()
	return s.table.Resolve(code)
}

// Toggle flips the selection state of an item from the catalog.
func (s *Session) Toggle(id string) (bool, error) {
	s.touch()
	if _, ok := s.store.Lookup(id); !ok && !s.selection.Contains(id) {
		return false, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return s.selection.Toggle(id)
}

// Deselect removes id from the selection if present.
func (s *Session) Deselect(id string) {
	s.touch()
	s.selection.Remove(id)
}

func (s *Session) ClearSelection() {
	s.touch()
	s.selection.Clear()
}

func (s *Session) Selection() []string {
	return s.selection.IDs()
}

// View projects the current catalog through the session's filter, currency
// and selection.
func (s *Session) View() View {
	s.mu.RLock()
	search, category, code, lang := s.search, s.category, s.code, s.lang
	s.mu.RUnlock()

	snap := s.store.Snapshot()
	cur := s.table.Resolve(code)
	selected := s.selection.IDs()

	filtered := view.Filter(snap.Items, search, category)
	items := make([]ItemView, 0, len(filtered))
	for _, it := range filtered {
		items = append(items, itemView(it, cur, lang, selected))
	}

	compare := make([]ItemView, 0, len(selected))
	for _, it := range s.selection.Items(snap.Items) {
		compare = append(compare, itemView(it, cur, lang, selected))
	}

	return View{
		SessionID:      s.id,
		Language:       lang,
		Strings:        i18n.Strings(lang),
		CategoryLabels: i18n.CategoryLabels(lang),
		Search:         search,
		Category:       category,
		Currency:       cur,
		State:          snap.State,
		RatesLive:      s.table.Live(),
		Version:        snap.Version,
		Counts:         view.CountByCategory(snap.Items),
		Items:          items,
		Selection:      selected,
		Compare:        compare,
	}
}

// ItemDetail renders a single catalog item in the session currency.
func (s *Session) ItemDetail(id string) (ItemView, error) {
	it, ok := s.store.Lookup(id)
	if !ok {
		return ItemView{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return itemView(it, s.Currency(), s.Language(), s.selection.IDs()), nil
}

// RenderItem renders an item outside of any session.
func RenderItem(it models.Item, cur models.Currency, lang string) ItemView {
	return itemView(it, cur, lang, nil)
}

func itemView(it models.Item, cur models.Currency, lang string, selected []string) ItemView {
	ranked := view.RankPrices(it)
	prices := make([]PriceView, 0, len(ranked))
	for _, p := range ranked {
		prices = append(prices, PriceView{
			Market:      p.Market,
			MarketLabel: i18n.MarketName(lang, p.Market),
			Price:       p.Price,
			Display:     currency.Format(p.Price, cur),
			Cheapest:    p.Cheapest,
		})
	}
	return ItemView{
		ID:        it.ID,
		Name:      it.Name,
		LocalName: i18n.ItemName(lang, it.Name),
		Category:  it.Category,
		Images:    slices.Collect(slug.ImageCandidates(it.Name)),
		Prices:    prices,
		Selected:  slices.Contains(selected, it.ID),
	}
}
