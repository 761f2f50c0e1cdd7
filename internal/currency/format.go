package currency

import (
	"math"

	"github.com/shopspring/decimal"

	"storeprice/models"
)

// Convert multiplies a base price by the currency rate and rounds half away
// from zero to the currency precision.
func Convert(base float64, c models.Currency) decimal.Decimal {
	if math.IsNaN(base) || math.IsInf(base, 0) || base < 0 {
		base = 0
	}
	rate := c.Rate
	if !validRate(rate) {
		rate = 0
	}
	return decimal.NewFromFloat(base).Mul(decimal.NewFromFloat(rate)).Round(precision(c))
}

// Format renders a base price in the given currency: fixed precision, symbol
// before the value for prefix currencies and after a space for suffix ones.
func Format(base float64, c models.Currency) string {
	value := Convert(base, c).StringFixed(precision(c))
	if c.Position == models.PositionSuffix {
		return value + " " + c.Symbol
	}
	return c.Symbol + value
}

func precision(c models.Currency) int32 {
	if c.Precision < 0 {
		return 0
	}
	return int32(c.Precision)
}
