package models

import "strings"

// RawRow is a single untyped value delivered by the row feed. Well formed rows
// are sequences of at least three elements: name, market and price.
type RawRow = any

// Category is the closed set of item categories. CategoryAll doubles as the
// bucket for unclassified items and as the "no filter" tab.
type Category string

const (
	CategoryAll       Category = "all"
	CategorySpeed     Category = "speedups"
	CategoryResources Category = "resources"
	CategoryHero      Category = "hero"
	CategoryGear      Category = "gear"
	CategoryDecor     Category = "decor"
)

// Categories lists every category in tab order.
var Categories = []Category{
	CategoryAll,
	CategorySpeed,
	CategoryResources,
	CategoryHero,
	CategoryGear,
	CategoryDecor,
}

// ParseCategory maps a wire value to a Category. Unknown values map to
// CategoryAll.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryAll
}

// MarketPrice is the unit price of an item at one market.
type MarketPrice struct {
	Market string  `json:"market"`
	Price  float64 `json:"price"`
}

// Item groups every known price of one named good.
type Item struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Category Category      `json:"category"`
	Prices   []MarketPrice `json:"prices"`
}

// HasMarket reports whether the item already carries a price for market.
func (i *Item) HasMarket(market string) bool {
	for _, p := range i.Prices {
		if p.Market == market {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand items out without sharing
// the price slice.
func (i Item) Clone() Item {
	out := i
	out.Prices = append([]MarketPrice(nil), i.Prices...)
	return out
}

// LoadState is the ternary readiness signal exposed to the presentation layer.
type LoadState string

const (
	LoadStateLoading    LoadState = "loading"
	LoadStateReadyEmpty LoadState = "ready-empty"
	LoadStateReady      LoadState = "ready"
)
