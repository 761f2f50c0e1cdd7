package models

// Position places the currency symbol before or after the amount.
type Position string

const (
	PositionPrefix Position = "prefix"
	PositionSuffix Position = "suffix"
)

// Currency describes how base prices are converted and displayed. Rate is a
// multiplier from the base unit (USD) to this currency.
type Currency struct {
	Code      string   `json:"code"`
	Rate      float64  `json:"rate"`
	Symbol    string   `json:"symbol"`
	Position  Position `json:"position"`
	Precision int      `json:"precision"`
	Label     string   `json:"label"`
}
