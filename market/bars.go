// Package market holds the pure bar arithmetic used by the strategy:
// de-duplication, fixed-interval resampling, the opening range and the
// Wilder-smoothed average true range.
package market

import (
	"errors"
	"sort"
	"time"

	"github.com/evdnx/gorb/types"
)

var (
	// ErrNoData is returned when a window or series holds no usable bars.
	// It is recoverable: retry with fresher data on the next cycle.
	ErrNoData = errors.New("market: no data")

	// ErrUnavailable is returned when there is not enough history to
	// produce an estimate.
	ErrUnavailable = errors.New("market: estimate unavailable")
)

// Dedupe returns a copy of bars sorted by start time with duplicate start
// times collapsed. The bar that appears last in the input wins.
func Dedupe(bars []types.Bar) []types.Bar {
	if len(bars) == 0 {
		return nil
	}
	latest := make(map[int64]int, len(bars))
	for i, b := range bars {
		latest[b.Start.UnixNano()] = i
	}
	out := make([]types.Bar, 0, len(latest))
	for i, b := range bars {
		if latest[b.Start.UnixNano()] == i {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Resample folds bars into fixed-width buckets aligned on interval
// boundaries. Buckets without input bars are not emitted. The input must be
// sorted ascending (see Dedupe).
func Resample(bars []types.Bar, interval time.Duration) []types.Bar {
	if interval <= 0 || len(bars) == 0 {
		return nil
	}
	out := make([]types.Bar, 0, len(bars))
	var cur types.Bar
	open := false
	for _, b := range bars {
		bucket := b.Start.Truncate(interval)
		if open && bucket.Equal(cur.Start) {
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		if open {
			out = append(out, cur)
		}
		cur = types.Bar{
			Start:  bucket,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
		open = true
	}
	if open {
		out = append(out, cur)
	}
	return out
}
