package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"storeprice/config"
	"storeprice/logger"
)

// RateService fetches multipliers from the base unit to other currencies,
// keyed by ISO code.
type RateService interface {
	FetchRates(ctx context.Context) (map[string]float64, error)
}

// NewService builds the rate service selected by cfg. It returns nil for
// the "none" provider.
func NewService(cfg config.CurrencyConfig, table *Table) RateService {
	switch cfg.Provider {
	case config.ProviderHTTP:
		return NewHTTPService(cfg.URL, cfg.Timeout, cfg.RequestsPerMinute)
	case config.ProviderBinance:
		all := table.All()
		codes := make([]string, 0, len(all))
		for _, c := range all {
			codes = append(codes, c.Code)
		}
		return NewBinanceService(codes, cfg.BinanceURL, cfg.Timeout)
	}
	return nil
}

// HTTPService reads a JSON rate document such as
// {"base":"USD","rates":{"EUR":0.92}}. The "conversion_rates" and
// "base_code" spellings are accepted too.
type HTTPService struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

type rateDocument struct {
	Base            string             `json:"base"`
	BaseCode        string             `json:"base_code"`
	Rates           map[string]float64 `json:"rates"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// NewHTTPService creates a service for url. requestsPerMinute bounds how
// often the endpoint is hit, including manual refreshes.
func NewHTTPService(url string, timeout time.Duration, requestsPerMinute int) *HTTPService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 6
	}
	return &HTTPService{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		log:     logger.GetLogger(),
	}
}

func (s *HTTPService) FetchRates(ctx context.Context) (map[string]float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch rates: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var doc rateDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}

	rates := doc.Rates
	if len(rates) == 0 {
		rates = doc.ConversionRates
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("decode rates: document has no rates")
	}

	base := doc.Base
	if base == "" {
		base = doc.BaseCode
	}
	rates, err = rebase(rates, base)
	if err != nil {
		return nil, err
	}

	logger.LogPerformanceEntry(s.log.WithComponent("rate_service"), "rate_service", "fetch_http", time.Since(start), logger.Fields{"rates": len(rates)})
	return rates, nil
}

// rebase converts rates quoted against base into rates against DefaultCode.
func rebase(rates map[string]float64, base string) (map[string]float64, error) {
	base = normalizeCode(base)
	if base == "" || base == DefaultCode {
		return rates, nil
	}
	pivot, ok := lookupRate(rates, DefaultCode)
	if !ok || !validRate(pivot) {
		return nil, fmt.Errorf("rates quoted in %s carry no %s rate", base, DefaultCode)
	}
	out := make(map[string]float64, len(rates)+1)
	for code, r := range rates {
		out[normalizeCode(code)] = r / pivot
	}
	out[base] = 1 / pivot
	out[DefaultCode] = 1
	return out, nil
}

// BinanceService derives fiat multipliers from Binance spot tickers, using
// USDT as a stand-in for USD.
type BinanceService struct {
	client *binance.Client
	codes  []string
	log    *logger.Log
}

// NewBinanceService queries prices for codes. An empty baseURL keeps the
// client's default endpoint.
func NewBinanceService(codes []string, baseURL string, timeout time.Duration) *BinanceService {
	client := binance.NewClient("", "")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	if baseURL != "" {
		client.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &BinanceService{client: client, codes: codes, log: logger.GetLogger()}
}

func (s *BinanceService) FetchRates(ctx context.Context) (map[string]float64, error) {
	start := time.Now()
	prices, err := s.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance ticker prices: %w", err)
	}

	tickers := make(map[string]string, len(prices))
	for _, p := range prices {
		tickers[p.Symbol] = p.Price
	}

	rates := ratesFromTickers(tickers, s.codes)
	if len(rates) <= 1 {
		return nil, fmt.Errorf("binance ticker prices: no usable fiat pairs")
	}

	logger.LogPerformanceEntry(s.log.WithComponent("rate_service"), "rate_service", "fetch_binance", time.Since(start), logger.Fields{"rates": len(rates)})
	return rates, nil
}

// ratesFromTickers maps symbol prices to fiat multipliers. USDT<code> is a
// direct quote; <code>USDT is inverted.
func ratesFromTickers(tickers map[string]string, codes []string) map[string]float64 {
	rates := map[string]float64{DefaultCode: 1}
	for _, code := range codes {
		code = normalizeCode(code)
		if code == DefaultCode {
			continue
		}
		if p, ok := parseTicker(tickers["USDT"+code]); ok {
			rates[code] = p
			continue
		}
		if p, ok := parseTicker(tickers[code+"USDT"]); ok {
			rates[code] = 1 / p
		}
	}
	return rates
}

func parseTicker(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || !validRate(p) {
		return 0, false
	}
	return p, true
}
