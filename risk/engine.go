package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/gorb/id"
)

// ExitPriority breaks the tie when one observation is both at/above the
// target and at/below the stop.
type ExitPriority int

const (
	TargetFirst ExitPriority = iota
	StopFirst
)

// ParseExitPriority accepts "target" or "stop".
func ParseExitPriority(s string) (ExitPriority, error) {
	switch s {
	case "", "target", "target_first":
		return TargetFirst, nil
	case "stop", "stop_first":
		return StopFirst, nil
	}
	return TargetFirst, fmt.Errorf("unknown exit priority %q", s)
}

func (p ExitPriority) String() string {
	if p == StopFirst {
		return "stop"
	}
	return "target"
}

// Engine owns the lifecycle of at most one open position. It is driven by a
// single caller and holds no locks.
type Engine struct {
	policy   Policy
	priority ExitPriority
	decimals int
	now      func() time.Time
	newID    func(time.Time) string

	pos *Position
}

type EngineOption func(*Engine)

func WithExitPriority(p ExitPriority) EngineOption {
	return func(e *Engine) { e.priority = p }
}

// WithStopDecimals rounds every stop level to n decimal places (the
// exchange tick). A negative n disables rounding.
func WithStopDecimals(n int) EngineOption {
	return func(e *Engine) { e.decimals = n }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(policy Policy, opts ...EngineOption) *Engine {
	e := &Engine{
		policy:   policy,
		priority: TargetFirst,
		decimals: 2,
		now:      time.Now,
		newID:    id.At,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Policy returns the configured trailing policy.
func (e *Engine) Policy() Policy { return e.policy }

// Position returns a copy of the open position.
func (e *Engine) Position() (Position, bool) {
	if e.pos == nil {
		return Position{}, false
	}
	return *e.pos, true
}

// Open creates the position. On any error nothing is mutated.
func (e *Engine) Open(req OpenRequest) (Position, error) {
	if e.pos != nil {
		return Position{}, ErrPositionOpen
	}
	if !validPrice(req.EntryPrice) || !validPrice(req.Quantity) {
		return Position{}, fmt.Errorf("%w: entry %.4f qty %.4f", ErrInvalidEntry, req.EntryPrice, req.Quantity)
	}
	dist, target, err := e.policy.Initial(req.EntryPrice, req.Quantity, req.Volatility, req.HasVolatility)
	if err != nil {
		return Position{}, err
	}

	opened := e.now()
	p := &Position{
		ID:           e.newID(opened),
		Instrument:   req.Instrument,
		Option:       req.Option,
		EntryPrice:   req.EntryPrice,
		Quantity:     req.Quantity,
		StopLoss:     roundPrice(req.EntryPrice-dist, e.decimals),
		Target:       target,
		StopDistance: dist,
		MaxPriceSeen: req.EntryPrice,
		OpenedAt:     opened,
	}
	if p.HasTarget() {
		p.Target = roundPrice(target, e.decimals)
	}
	e.pos = p
	return *p, nil
}

// Update feeds one price observation. The stop only ever moves up.
func (e *Engine) Update(price float64) (ExitReason, error) {
	if e.pos == nil {
		return ExitNone, ErrNoPosition
	}
	if !validPrice(price) {
		return ExitNone, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	p := e.pos
	if price > p.MaxPriceSeen {
		p.MaxPriceSeen = price
	}
	if c, ok := e.policy.Candidate(*p); ok {
		c = roundPrice(c, e.decimals)
		if c > p.StopLoss {
			p.StopLoss = c
		}
	}

	targetHit := p.HasTarget() && price >= p.Target
	stopHit := price <= p.StopLoss
	switch {
	case targetHit && stopHit:
		if e.priority == StopFirst {
			return ExitStopLoss, nil
		}
		return ExitTargetHit, nil
	case targetHit:
		return ExitTargetHit, nil
	case stopHit:
		return ExitStopLoss, nil
	}
	return ExitNone, nil
}

// Close books the exit and clears the position. This is the only place
// quantity-weighted P&L is computed.
func (e *Engine) Close(exitPrice float64) (CloseResult, error) {
	if e.pos == nil {
		return CloseResult{}, ErrNoPosition
	}
	if math.IsNaN(exitPrice) || math.IsInf(exitPrice, 0) || exitPrice < 0 {
		return CloseResult{}, fmt.Errorf("%w: %v", ErrInvalidPrice, exitPrice)
	}
	p := *e.pos
	res := CloseResult{
		Position:   p,
		ExitPrice:  exitPrice,
		PnL:        (exitPrice - p.EntryPrice) * p.Quantity,
		PnLPercent: (exitPrice - p.EntryPrice) / p.EntryPrice * 100,
		ClosedAt:   e.now(),
	}
	e.pos = nil
	return res, nil
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
