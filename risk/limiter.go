package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Limits caps a session. Zero MaxTrades or MaxDailyLoss disables that cap.
type Limits struct {
	MaxTrades    int
	MaxDailyLoss float64
	// HaltOnExit lists exit reasons that end trading for the session on
	// their own, independent of the caps.
	HaltOnExit []ExitReason
}

// Counters is the per-session tally.
type Counters struct {
	TradeCount    int     `json:"trade_count"`
	CumulativePnL float64 `json:"cumulative_pnl"`
	Halted        bool    `json:"halted"`
	HaltReason    string  `json:"halt_reason,omitempty"`
}

// DailyLimiter gates new entries. Once halted it stays halted until Reset.
type DailyLimiter struct {
	limits Limits
	trades int
	pnl    decimal.Decimal
	halted bool
	reason string
}

func NewDailyLimiter(l Limits) *DailyLimiter {
	return &DailyLimiter{limits: l}
}

// Record books one closed trade and reports whether trading is now halted.
func (d *DailyLimiter) Record(pnl float64, reason ExitReason) bool {
	d.trades++
	d.pnl = d.pnl.Add(decimal.NewFromFloat(pnl))

	if d.halted {
		return true
	}
	switch {
	case d.limits.MaxTrades > 0 && d.trades >= d.limits.MaxTrades:
		d.halt(fmt.Sprintf("max trades reached (%d)", d.limits.MaxTrades))
	case d.limits.MaxDailyLoss > 0 && d.pnl.LessThanOrEqual(decimal.NewFromFloat(-d.limits.MaxDailyLoss)):
		d.halt(fmt.Sprintf("max daily loss reached (%s <= -%.2f)", d.pnl.StringFixed(2), d.limits.MaxDailyLoss))
	default:
		for _, r := range d.limits.HaltOnExit {
			if r == reason {
				d.halt(fmt.Sprintf("exit %s halts the session", reason))
				break
			}
		}
	}
	return d.halted
}

func (d *DailyLimiter) halt(reason string) {
	d.halted = true
	d.reason = reason
}

// Halt stops trading for the rest of the session.
func (d *DailyLimiter) Halt(reason string) {
	if !d.halted {
		d.halt(reason)
	}
}

func (d *DailyLimiter) CanTrade() bool { return !d.halted }

func (d *DailyLimiter) Counters() Counters {
	return Counters{
		TradeCount:    d.trades,
		CumulativePnL: d.pnl.InexactFloat64(),
		Halted:        d.halted,
		HaltReason:    d.reason,
	}
}

// Reset starts a new session.
func (d *DailyLimiter) Reset() {
	d.trades = 0
	d.pnl = decimal.Zero
	d.halted = false
	d.reason = ""
}
