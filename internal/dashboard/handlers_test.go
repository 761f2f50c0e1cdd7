package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"storeprice/config"
	"storeprice/internal/catalog"
	"storeprice/internal/currency"
	"storeprice/internal/feed"
	"storeprice/internal/i18n"
	"storeprice/internal/metrics"
	"storeprice/internal/prefs"
	"storeprice/internal/session"
	"storeprice/logger"
	"storeprice/models"
	"storeprice/processor"
)

var testRows = []models.RawRow{
	[]any{"Iron Chest", "M1", 5},
	[]any{"Iron Chest", "M2", 3},
	[]any{"Iron Chest", "M3", 3},
	[]any{"Iron Sword", "M1", 2},
	[]any{"Food Chest", "M1", 1.5},
	[]any{"Hero Shard", "M1", 1.2345},
	[]any{"Tower", "M1", 4},
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	f := feed.New()
	f.Seed(testRows)
	store := catalog.NewStore()
	store.Replace(processor.Normalize(f.Rows()))
	store.MarkReady()
	table := currency.NewBuiltinTable()
	return Deps{
		Feed:       f,
		Store:      store,
		Sessions:   session.NewManager(store, table),
		Currencies: table,
		Metrics:    metrics.NewRegistry(),
	}
}

type harness struct {
	t      *testing.T
	srv    *Server
	router *gin.Engine
	deps   Deps
}

func newHarness(t *testing.T, cfg config.DashboardConfig, mutate func(*Deps)) *harness {
	t.Helper()
	cfg.Enabled = true
	deps := newTestDeps(t)
	if mutate != nil {
		mutate(&deps)
	}
	srv, err := NewServer(cfg, logger.GetLogger(), deps)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(srv.cleanup)
	router, err := srv.buildRouter("StorePrice")
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	return &harness{t: t, srv: srv, router: router, deps: deps}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			h.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", res.Body.String(), err)
	}
	return out
}

func (h *harness) createSession(currency string) session.View {
	h.t.Helper()
	res := h.do(http.MethodPost, "/api/sessions", map[string]string{"currency": currency})
	if res.Code != http.StatusCreated {
		h.t.Fatalf("create session: %d %s", res.Code, res.Body.String())
	}
	return decode[session.View](h.t, res)
}

func TestIndexPageRenders(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ar-SA,ar;q=0.9")
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `dir="rtl"`) {
		t.Fatalf("arabic request should render rtl")
	}
	if !strings.Contains(res.Body.String(), i18n.Strings(i18n.Arabic).ClearAll) {
		t.Fatalf("arabic request should render arabic labels")
	}

	asset := h.do(http.MethodGet, "/assets/app.js", nil)
	if asset.Code != http.StatusOK {
		t.Fatalf("asset not served: %d", asset.Code)
	}
}

func TestStateCategoriesAndCurrencies(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{}, nil)

	state := decode[map[string]any](t, h.do(http.MethodGet, "/api/state", nil))
	if state["state"] != string(models.LoadStateReady) || state["items"] != float64(5) || state["rows"] != float64(7) {
		t.Fatalf("unexpected state: %v", state)
	}

	cats := decode[struct {
		Categories []struct {
			Category string `json:"category"`
			Count    int    `json:"count"`
		} `json:"categories"`
	}](t, h.do(http.MethodGet, "/api/categories", nil))
	if len(cats.Categories) != len(models.Categories) || cats.Categories[0].Category != "all" || cats.Categories[0].Count != 5 {
		t.Fatalf("unexpected categories: %+v", cats)
	}

	curs := decode[struct {
		Default    string            `json:"default"`
		Currencies []models.Currency `json:"currencies"`
	}](t, h.do(http.MethodGet, "/api/currencies", nil))
	if curs.Default != "USD" || len(curs.Currencies) != len(currency.Builtin()) {
		t.Fatalf("unexpected currencies: %+v", curs)
	}
}

func TestItemEndpoint(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{}, nil)

	item := decode[session.ItemView](t, h.do(http.MethodGet, "/api/items/iron-chest?currency=SAR", nil))
	if item.Name != "Iron Chest" || item.Prices[0].Market != "M2" || item.Prices[0].Display != "11.25 ر.س" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if res := h.do(http.MethodGet, "/api/items/nope", nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestSessionFilterAndCurrency(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{}, nil)
	v := h.createSession("EUR")
	if v.Currency.Code != "EUR" || len(v.Items) != 5 {
		t.Fatalf("unexpected initial view: %+v", v)
	}

	res := h.do(http.MethodPut, "/api/sessions/"+v.SessionID+"/filter", filterRequest{Search: "chest", Category: "resources"})
	filtered := decode[session.View](t, res)
	if len(filtered.Items) != 2 || filtered.Category != models.CategoryResources {
		t.Fatalf("unexpected filtered view: %+v", filtered.Items)
	}

	res = h.do(http.MethodPut, "/api/sessions/"+v.SessionID+"/currency", currencyRequest{Code: "ZZZ"})
	if got := decode[session.View](t, res); got.Currency.Code != "USD" {
		t.Fatalf("unknown currency should fall back to USD, got %s", got.Currency.Code)
	}

	if res := h.do(http.MethodPut, "/api/sessions/"+v.SessionID+"/filter", "{"); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", res.Code)
	}
	if res := h.do(http.MethodGet, "/api/sessions/missing/items", nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", res.Code)
	}

	if res := h.do(http.MethodDelete, "/api/sessions/"+v.SessionID, nil); res.Code != http.StatusNoContent {
		t.Fatalf("close: %d", res.Code)
	}
	if res := h.do(http.MethodDelete, "/api/sessions/"+v.SessionID, nil); res.Code != http.StatusNotFound {
		t.Fatalf("second close: %d", res.Code)
	}
}

func TestSelectionLimitReturnsConflict(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{}, nil)
	sid := h.createSession("USD").SessionID
	base := "/api/sessions/" + sid + "/selection/"

	for _, id := range []string{"iron-chest", "tower", "hero-shard"} {
		if res := h.do(http.MethodPost, base+id, nil); res.Code != http.StatusOK {
			t.Fatalf("select %s: %d %s", id, res.Code, res.Body.String())
		}
	}

	res := h.do(http.MethodPost, base+"food-chest", nil)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
	body := decode[map[string]any](t, res)
	if body["notice"] != i18n.Strings(i18n.English).MaxItems || len(body["selection"].([]any)) != 3 {
		t.Fatalf("unexpected conflict body: %v", body)
	}

	if res := h.do(http.MethodPost, base+"no-such-item", nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown item, got %d", res.Code)
	}

	cmp := decode[struct {
		Items []session.ItemView `json:"items"`
	}](t, h.do(http.MethodGet, "/api/sessions/"+sid+"/compare", nil))
	if len(cmp.Items) != 3 || cmp.Items[0].ID != "iron-chest" || cmp.Items[1].ID != "hero-shard" || cmp.Items[2].ID != "tower" {
		t.Fatalf("compare should follow catalog order: %+v", cmp.Items)
	}

	h.do(http.MethodDelete, base+"tower", nil)
	if res := h.do(http.MethodPost, base+"food-chest", nil); res.Code != http.StatusOK {
		t.Fatalf("select after deselect: %d", res.Code)
	}
	cleared := decode[map[string]any](t, h.do(http.MethodDelete, "/api/sessions/"+sid+"/selection", nil))
	if len(cleared["selection"].([]any)) != 0 {
		t.Fatalf("selection not cleared: %v", cleared)
	}
}

func TestPushRows(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{Push: config.PushConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		BurstSize:         2,
		MaxRows:           2,
	}}, nil)

	res := h.do(http.MethodPost, "/api/rows", `[["New Item","M9",2],["bad"]]`)
	if res.Code != http.StatusOK {
		t.Fatalf("push: %d %s", res.Code, res.Body.String())
	}
	got := decode[pushResult](t, res)
	if got.Offered != 2 || got.Admitted != 1 || got.Rows != 8 {
		t.Fatalf("unexpected push result: %+v", got)
	}

	if res := h.do(http.MethodPost, "/api/rows", `{"not":"rows"}`); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if res := h.do(http.MethodPost, "/api/rows", `[]`); res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is spent, got %d", res.Code)
	}
}

func TestPushRowsDisabledAndTooLarge(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{}, nil)
	if res := h.do(http.MethodPost, "/api/rows", `[]`); res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when push disabled, got %d", res.Code)
	}

	h = newHarness(t, config.DashboardConfig{Push: config.PushConfig{Enabled: true, RequestsPerSecond: 10, BurstSize: 10, MaxRows: 1}}, nil)
	if res := h.do(http.MethodPost, "/api/rows", `[["A","M",1],["B","M",2]]`); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 over row limit, got %d", res.Code)
	}
}

func TestPushSocket(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{Push: config.PushConfig{Enabled: true, RequestsPerSecond: 100, BurstSize: 100, MaxRows: 10}}, nil)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/rows/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`[["Socket Item","M1",1]]`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var res pushResult
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.Admitted != 1 || res.Error != "" {
		t.Fatalf("unexpected result %+v", res)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`nope`))
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.Error == "" {
		t.Fatalf("expected decode error in reply")
	}
	if h.deps.Feed.Len() != len(testRows)+1 {
		t.Fatalf("feed len = %d", h.deps.Feed.Len())
	}
}

type failingRates struct{}

func (failingRates) FetchRates(context.Context) (map[string]float64, error) {
	return nil, errors.New("upstream down")
}

type fixedRates map[string]float64

func (f fixedRates) FetchRates(context.Context) (map[string]float64, error) { return f, nil }

func TestRefreshRates(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{}, nil)
	if res := h.do(http.MethodPost, "/api/rates/refresh", nil); res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without provider, got %d", res.Code)
	}

	h = newHarness(t, config.DashboardConfig{}, func(d *Deps) {
		d.Refresher = currency.NewRefresher(d.Currencies, failingRates{}, time.Hour, time.Second)
	})
	if res := h.do(http.MethodPost, "/api/rates/refresh", nil); res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on provider failure, got %d", res.Code)
	}

	h = newHarness(t, config.DashboardConfig{}, func(d *Deps) {
		d.Refresher = currency.NewRefresher(d.Currencies, fixedRates{"SAR": 4}, time.Hour, time.Second)
	})
	if res := h.do(http.MethodPost, "/api/rates/refresh", nil); res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if h.deps.Currencies.Resolve("SAR").Rate != 4 {
		t.Fatalf("rate not applied")
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	store, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("open prefs: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := newHarness(t, config.DashboardConfig{}, func(d *Deps) { d.Prefs = store })

	res := h.do(http.MethodPut, "/api/preferences", prefs.Preferences{Language: "ar", Theme: "LIGHT", Currency: "xyz"})
	if res.Code != http.StatusOK {
		t.Fatalf("put: %d %s", res.Code, res.Body.String())
	}

	got := decode[struct {
		Preferences prefs.Preferences `json:"preferences"`
		Direction   string            `json:"direction"`
		Persisted   bool              `json:"persisted"`
	}](t, h.do(http.MethodGet, "/api/preferences", nil))
	want := prefs.Preferences{Language: "ar", Theme: "light", Currency: "USD"}
	if got.Preferences != want || got.Direction != "rtl" || !got.Persisted {
		t.Fatalf("unexpected preferences: %+v", got)
	}

	v := h.createSession("")
	if v.Currency.Code != "USD" {
		t.Fatalf("session should use stored currency, got %s", v.Currency.Code)
	}
}

func TestPreferencesFollowAcceptLanguageUntilStored(t *testing.T) {
	store, err := prefs.Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("open prefs: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	h := newHarness(t, config.DashboardConfig{}, func(d *Deps) { d.Prefs = store })

	get := func(acceptLanguage string) (prefs.Preferences, string) {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/preferences", nil)
		req.Header.Set("Accept-Language", acceptLanguage)
		res := httptest.NewRecorder()
		h.router.ServeHTTP(res, req)
		got := decode[struct {
			Preferences prefs.Preferences `json:"preferences"`
			Direction   string            `json:"direction"`
		}](t, res)
		return got.Preferences, got.Direction
	}

	if p, dir := get("ar-SA,en;q=0.5"); p.Language != "ar" || dir != "rtl" {
		t.Fatalf("empty store should follow Accept-Language, got %+v %s", p, dir)
	}

	if res := h.do(http.MethodPut, "/api/preferences", prefs.Preferences{Language: "en", Theme: "dark", Currency: "USD"}); res.Code != http.StatusOK {
		t.Fatalf("put: %d", res.Code)
	}
	if p, _ := get("ar"); p.Language != "en" {
		t.Fatalf("stored language should win over Accept-Language, got %+v", p)
	}
}

func TestLocalizedSessionView(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{}, func(d *Deps) {
		d.Store.Replace(processor.Normalize([]models.RawRow{
			[]any{"1h Speed-Up", "Bounty Hunter (Wandering Merchant)", 0.1667},
			[]any{"Iron Chest", "M1", 5},
			[]any{"Tower", "M1", 4},
			[]any{"Hero Shard", "M1", 1},
		}))
	})

	res := h.do(http.MethodPost, "/api/sessions", map[string]string{"language": "ar"})
	if res.Code != http.StatusCreated {
		t.Fatalf("create session: %d", res.Code)
	}
	v := decode[session.View](t, res)
	if v.Language != "ar" || v.Strings.Cheapest != "الأرخص" || v.CategoryLabels[models.CategorySpeed] != "تسريعات" {
		t.Fatalf("view not localized: lang=%s strings=%+v labels=%v", v.Language, v.Strings, v.CategoryLabels)
	}
	for _, it := range v.Items {
		switch it.Name {
		case "1h Speed-Up":
			if it.LocalName != "تسريع ساعة" || it.Prices[0].MarketLabel != "صائد الجوائز (التاجر المتجول)" {
				t.Fatalf("speed-up not translated: %+v", it)
			}
		case "Iron Chest":
			if it.LocalName != "Iron Chest" || it.Prices[0].MarketLabel != "M1" {
				t.Fatalf("untranslated names should pass through: %+v", it)
			}
		}
	}

	base := "/api/sessions/" + v.SessionID
	for _, id := range []string{"1h-speed-up", "iron-chest", "tower"} {
		h.do(http.MethodPost, base+"/selection/"+id, nil)
	}
	conflict := decode[map[string]any](t, h.do(http.MethodPost, base+"/selection/hero-shard", nil))
	if conflict["notice"] != "الحد 3 عناصر" {
		t.Fatalf("limit notice not localized: %v", conflict["notice"])
	}

	res = h.do(http.MethodPut, base+"/language", map[string]string{"language": "en-US"})
	if res.Code != http.StatusOK {
		t.Fatalf("set language: %d", res.Code)
	}
	v = decode[session.View](t, res)
	if v.Language != "en" || v.Strings.MaxItems != "Max 3 items" {
		t.Fatalf("language not switched: %s %+v", v.Language, v.Strings)
	}

	cats := decode[struct {
		Categories []struct {
			Category models.Category `json:"category"`
			Label    string          `json:"label"`
		} `json:"categories"`
	}](t, h.do(http.MethodGet, "/api/categories?lang=ar", nil))
	if len(cats.Categories) == 0 || cats.Categories[0].Label != "الكل" {
		t.Fatalf("category labels not localized: %+v", cats.Categories)
	}
}

func TestPreferencesWithoutStore(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{}, nil)
	if res := h.do(http.MethodPut, "/api/preferences", prefs.Preferences{Theme: "light"}); res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestMetricsLogsAndPrometheus(t *testing.T) {
	h := newHarness(t, config.DashboardConfig{MetricsHistory: 10, LogHistory: 10}, nil)

	metrics.Emit(logger.GetLogger(), "catalog", "items", 5, metrics.Gauge, logger.Fields{"version": 1})
	logger.GetLogger().WithComponent("dashboard_test").Warn("visible warning")

	res := h.do(http.MethodGet, "/api/metrics", nil)
	if res.Code != http.StatusOK || len(h.srv.metricStore.snapshot()) == 0 {
		t.Fatalf("metrics endpoint: %d, stored=%d", res.Code, len(h.srv.metricStore.snapshot()))
	}

	logs := decode[struct {
		Logs []logRecord `json:"logs"`
	}](t, h.do(http.MethodGet, "/api/logs?level=warn&component=dashboard_test", nil))
	if len(logs.Logs) != 1 || logs.Logs[0].Message != "visible warning" {
		t.Fatalf("unexpected logs: %+v", logs.Logs)
	}

	h.do(http.MethodGet, "/api/state", nil)
	prom := h.do(http.MethodGet, "/metrics", nil)
	if prom.Code != http.StatusOK || !strings.Contains(prom.Body.String(), `storeprice_http_requests_total{code="200",route="/api/state"}`) {
		t.Fatalf("prometheus output missing request counter:\n%s", prom.Body.String())
	}
}
