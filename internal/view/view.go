package view

import (
	"sort"
	"strings"

	"storeprice/models"
)

// RankedPrice is a market price in cheapest-first order.
type RankedPrice struct {
	models.MarketPrice
	Cheapest bool `json:"cheapest"`
}

// Filter keeps the items whose name contains search (case-insensitive,
// surrounding whitespace ignored) and whose category matches. CategoryAll
// matches every item. Input order is preserved.
func Filter(items []models.Item, search string, category models.Category) []models.Item {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if category != models.CategoryAll && it.Category != category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(it.Name), needle) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// RankPrices orders the item's prices ascending. Equal prices keep their
// arrival order and only the first entry is flagged cheapest. The item is
// not modified.
func RankPrices(item models.Item) []RankedPrice {
	ranked := make([]RankedPrice, len(item.Prices))
	for i, p := range item.Prices {
		ranked[i] = RankedPrice{MarketPrice: p}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Price < ranked[j].Price
	})
	if len(ranked) > 0 {
		ranked[0].Cheapest = true
	}
	return ranked
}

// Cheapest returns the lowest price of the item, earliest market on ties.
func Cheapest(item models.Item) (models.MarketPrice, bool) {
	if len(item.Prices) == 0 {
		return models.MarketPrice{}, false
	}
	best := item.Prices[0]
	for _, p := range item.Prices[1:] {
		if p.Price < best.Price {
			best = p
		}
	}
	return best, true
}

// Categories returns the category tabs in display order.
func Categories() []models.Category {
	return append([]models.Category(nil), models.Categories...)
}

// CountByCategory counts items per tab. The CategoryAll entry counts every
// item, not just the unclassified ones.
func CountByCategory(items []models.Item) map[models.Category]int {
	counts := make(map[models.Category]int, len(models.Categories))
	for _, c := range models.Categories {
		counts[c] = 0
	}
	for _, it := range items {
		counts[models.CategoryAll]++
		if it.Category != models.CategoryAll {
			counts[it.Category]++
		}
	}
	return counts
}
