package market

import (
	"fmt"
	"time"

	"github.com/evdnx/gorb/types"
)

// Range is the opening range of one session.
type Range struct {
	High        float64
	Low         float64
	WindowStart time.Time
	WindowEnd   time.Time
	Bars        int
}

// Width is High-Low.
func (r Range) Width() float64 { return r.High - r.Low }

// Contains reports whether price lies inside the closed band [Low, High].
func (r Range) Contains(price float64) bool {
	return price >= r.Low && price <= r.High
}

// OpeningRange folds the bars that start inside w into a Range. The window is
// applied against the date of the earliest bar, so a call processes exactly
// one session. No smoothing or outlier rejection is applied.
func OpeningRange(bars []types.Bar, w Window) (Range, error) {
	bars = Dedupe(bars)
	if len(bars) == 0 {
		return Range{}, ErrNoData
	}
	start, end := w.Bounds(bars[0].Start)

	r := Range{WindowStart: start, WindowEnd: end}
	for _, b := range bars {
		if b.Start.Before(start) || !b.Start.Before(end) {
			continue
		}
		if r.Bars == 0 || b.High > r.High {
			r.High = b.High
		}
		if r.Bars == 0 || b.Low < r.Low {
			r.Low = b.Low
		}
		r.Bars++
	}
	if r.Bars == 0 {
		return Range{}, fmt.Errorf("%w: no bars in %s-%s", ErrNoData, w.Start, w.End)
	}
	return r, nil
}
