// Package journal persists closed trades.
package journal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is one closed trade.
type TradeRecord struct {
	TradeID    string
	Symbol     string
	Instrument string
	Type       string // CE or PE
	Strike     float64
	Quantity   float64
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	PnL        float64 // quantity weighted
	PnLPercent float64
	ExitReason string
}

type Journal interface {
	RecordTrade(TradeRecord) error
	Close() error
}

// Open builds the journal named by kind: csv, sqlite or none.
func Open(kind, path string) (Journal, error) {
	switch kind {
	case "csv":
		return NewCSV(path)
	case "sqlite":
		return NewSQLite(path)
	case "", "none":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unknown journal type %q", kind)
}

// Nop discards records.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error { return nil }
func (Nop) Close() error                  { return nil }

// money renders a price or P&L with two decimals, rounding half away from
// zero.
func money(x float64) string {
	return decimal.NewFromFloat(x).StringFixed(2)
}
