package risk

import (
	"errors"
	"math"
	"time"

	"github.com/evdnx/gorb/types"
)

var (
	ErrPositionOpen          = errors.New("risk: a position is already open")
	ErrNoPosition            = errors.New("risk: no open position")
	ErrVolatilityUnavailable = errors.New("risk: volatility estimate unavailable")
	ErrInvalidEntry          = errors.New("risk: invalid entry")
	ErrInvalidPrice          = errors.New("risk: invalid price")
)

// ExitReason says why a position left the book. The zero value means "stay".
type ExitReason string

const (
	ExitNone        ExitReason = ""
	ExitTargetHit   ExitReason = "target_hit"
	ExitStopLoss    ExitReason = "stop_loss"
	ExitMarketClose ExitReason = "market_close"
	ExitManual      ExitReason = "manual"
)

// Position is the single open long-option position.
type Position struct {
	ID         string
	Instrument string
	Option     types.OptionType
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	// Target is +Inf when the policy has no bounded exit.
	Target       float64
	StopDistance float64
	MaxPriceSeen float64
	OpenedAt     time.Time
}

// HasTarget reports whether the position carries a finite target.
func (p Position) HasTarget() bool { return !math.IsInf(p.Target, 1) }

// MaxPnL is the open profit at the high-water mark.
func (p Position) MaxPnL() float64 { return (p.MaxPriceSeen - p.EntryPrice) * p.Quantity }

// UnrealisedPnL values the position at price.
func (p Position) UnrealisedPnL(price float64) float64 { return (price - p.EntryPrice) * p.Quantity }

// OpenRequest carries everything Engine.Open needs.
type OpenRequest struct {
	Instrument string
	Option     types.OptionType
	EntryPrice float64
	Quantity   float64
	// Volatility is the underlying's estimate; only volatility policies read it.
	Volatility    float64
	HasVolatility bool
}

// CloseResult is the accounting of a closed position.
type CloseResult struct {
	Position   Position
	ExitPrice  float64
	PnL        float64
	PnLPercent float64
	ClosedAt   time.Time
}
