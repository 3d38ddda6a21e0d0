package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Policy decides the initial risk envelope and the trailing candidate of a
// position. The Engine owns the "never lower the stop" rule, so a policy
// may return any candidate it likes.
type Policy interface {
	Name() string
	// Initial returns the stop distance (in price units) and the target
	// price (+Inf for none) for a fresh entry.
	Initial(entry, qty, volatility float64, hasVolatility bool) (stopDistance, target float64, err error)
	// Candidate proposes a new stop for p, or false when no tier applies.
	Candidate(p Position) (float64, bool)
}

// CurrencyTiered trails in account-currency terms: a flat lock once the
// peak open profit reaches LockActivation, then a continuous trail
// TrailingStep behind the peak once it reaches ProfitTarget. Exit is
// trailing-only.
type CurrencyTiered struct {
	InitialStopLoss float64 // e.g. -1000; the sign is ignored
	ProfitTarget    float64
	TrailingStep    float64
	LockActivation  float64
	LockAmount      float64
}

func (c CurrencyTiered) Name() string { return "currency_tiered" }

// Validate checks the tier ordering.
func (c CurrencyTiered) Validate() error {
	if c.InitialStopLoss == 0 {
		return errors.New("currency policy: initial stop loss must be non-zero")
	}
	if c.ProfitTarget <= 0 || c.TrailingStep <= 0 {
		return errors.New("currency policy: profit target and trailing step must be positive")
	}
	if c.LockActivation <= 0 || c.LockAmount < 0 {
		return errors.New("currency policy: lock activation must be positive and lock amount non-negative")
	}
	if c.LockAmount >= c.LockActivation {
		return fmt.Errorf("currency policy: lock amount %.2f must be below its activation %.2f", c.LockAmount, c.LockActivation)
	}
	if c.TrailingStep >= c.ProfitTarget {
		return fmt.Errorf("currency policy: trailing step %.2f must be below profit target %.2f", c.TrailingStep, c.ProfitTarget)
	}
	return nil
}

func (c CurrencyTiered) Initial(entry, qty, _ float64, _ bool) (float64, float64, error) {
	return math.Abs(c.InitialStopLoss) / qty, math.Inf(1), nil
}

func (c CurrencyTiered) Candidate(p Position) (float64, bool) {
	maxPnL := p.MaxPnL()
	switch {
	case maxPnL >= c.ProfitTarget:
		return p.EntryPrice + (maxPnL-c.TrailingStep)/p.Quantity, true
	case maxPnL >= c.LockActivation:
		return p.EntryPrice + c.LockAmount/p.Quantity, true
	}
	return 0, false
}

// LockTier moves the stop to Entry*StopMultiple once the peak gain reaches
// MinGain (a fraction of entry).
type LockTier struct {
	MinGain      float64 `yaml:"min_gain" json:"min_gain"`
	StopMultiple float64 `yaml:"stop_multiple" json:"stop_multiple"`
}

// DefaultLockTiers lock +15% at a +20% peak and +5% at a +8% peak.
func DefaultLockTiers() []LockTier {
	return []LockTier{
		{MinGain: 0.20, StopMultiple: 1.15},
		{MinGain: 0.08, StopMultiple: 1.05},
	}
}

// VolatilityTiered sizes stop and target from the underlying's ATR scaled
// into option terms by OptionDelta, and trails once the peak clears
// ActivationFraction above entry.
type VolatilityTiered struct {
	OptionDelta        float64
	SLMultiplier       float64
	TargetMultiplier   float64 // 0 disables the bounded target
	ActivationFraction float64
	Locks              []LockTier
}

func (v VolatilityTiered) Name() string { return "volatility_tiered" }

func (v VolatilityTiered) Validate() error {
	if v.OptionDelta <= 0 || v.OptionDelta > 1 {
		return fmt.Errorf("volatility policy: option delta %.2f must be in (0,1]", v.OptionDelta)
	}
	if v.SLMultiplier <= 0 {
		return errors.New("volatility policy: stop multiplier must be positive")
	}
	if v.TargetMultiplier < 0 {
		return errors.New("volatility policy: target multiplier cannot be negative")
	}
	if v.ActivationFraction < 0 {
		return errors.New("volatility policy: activation fraction cannot be negative")
	}
	for _, l := range v.Locks {
		if l.MinGain <= 0 || l.StopMultiple <= 1 {
			return fmt.Errorf("volatility policy: lock tier %+v must lock a gain above entry", l)
		}
		if l.StopMultiple >= 1+l.MinGain {
			return fmt.Errorf("volatility policy: lock tier %+v locks more than it requires", l)
		}
	}
	return nil
}

func (v VolatilityTiered) Initial(entry, _ float64, volatility float64, hasVolatility bool) (float64, float64, error) {
	if !hasVolatility || math.IsNaN(volatility) || volatility < 0 {
		return 0, 0, ErrVolatilityUnavailable
	}
	scaled := volatility * v.OptionDelta
	target := math.Inf(1)
	if v.TargetMultiplier > 0 {
		target = entry + scaled*v.TargetMultiplier
	}
	return scaled * v.SLMultiplier, target, nil
}

func (v VolatilityTiered) Candidate(p Position) (float64, bool) {
	if p.MaxPriceSeen < p.EntryPrice*(1+v.ActivationFraction) {
		return 0, false
	}
	candidate := p.MaxPriceSeen - p.StopDistance
	gain := (p.MaxPriceSeen - p.EntryPrice) / p.EntryPrice
	if lock, ok := v.lockLevel(p.EntryPrice, gain); ok {
		return math.Max(candidate, lock), true
	}
	// breakeven floor once trailing is live
	return math.Max(candidate, p.EntryPrice), true
}

func (v VolatilityTiered) lockLevel(entry, gain float64) (float64, bool) {
	tiers := append([]LockTier(nil), v.Locks...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinGain > tiers[j].MinGain })
	for _, t := range tiers {
		if gain >= t.MinGain {
			return entry * t.StopMultiple, true
		}
	}
	return 0, false
}
