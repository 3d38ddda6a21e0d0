package strategy

import (
	"errors"

	"github.com/evdnx/gorb/market"
	"github.com/evdnx/gorb/types"
)

// ErrRangeFormed is returned when a second range is set in one session.
var ErrRangeFormed = errors.New("opening range already formed")

// BreakoutDetector turns spot prices into one-shot breakout signals. After
// a signal it stays disarmed until price trades back inside the range.
// Not safe for concurrent use.
type BreakoutDetector struct {
	buffer float64
	rng    market.Range
	formed bool
	armed  bool
}

func NewBreakoutDetector(buffer float64) *BreakoutDetector {
	return &BreakoutDetector{buffer: buffer}
}

// SetRange stores the session's range and arms the detector.
func (d *BreakoutDetector) SetRange(r market.Range) error {
	if d.formed {
		return ErrRangeFormed
	}
	d.rng = r
	d.formed = true
	d.armed = true
	return nil
}

func (d *BreakoutDetector) Range() (market.Range, bool) { return d.rng, d.formed }

func (d *BreakoutDetector) Armed() bool { return d.armed }

func (d *BreakoutDetector) Buffer() float64 { return d.buffer }

// Evaluate consumes one spot observation.
func (d *BreakoutDetector) Evaluate(price float64) types.Signal {
	if !d.formed {
		return types.SignalNone
	}
	switch {
	case d.rng.Contains(price):
		d.armed = true
	case !d.armed:
	case price > d.rng.High+d.buffer:
		d.armed = false
		return types.SignalUpside
	case price < d.rng.Low-d.buffer:
		d.armed = false
		return types.SignalDownside
	}
	return types.SignalNone
}
