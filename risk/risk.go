package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

// roundPrice rounds to the exchange tick expressed as decimal places.
// Decimal arithmetic keeps 155.385 from becoming 155.38 through binary
// representation error.
func roundPrice(v float64, places int) float64 {
	if places < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(int32(places)).InexactFloat64()
}

// LotQuantity converts a lot count into contract units.
func LotQuantity(lots, lotSize int) float64 {
	if lots <= 0 || lotSize <= 0 {
		return 0
	}
	return float64(lots * lotSize)
}
