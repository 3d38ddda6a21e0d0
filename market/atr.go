package market

import (
	"fmt"
	"math"
	"time"

	"github.com/evdnx/gorb/types"
)

const (
	DefaultATRPeriod   = 14
	DefaultATRInterval = 5 * time.Minute
)

// TrueRanges returns the per-bar true range. The first bar has no previous
// close and contributes high-low.
func TrueRanges(bars []types.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATR estimates volatility from raw bars: de-duplicate, resample into
// interval buckets, then Wilder-smooth the true range over period buckets.
// The estimate is rebuilt from the full history on every call.
func ATR(bars []types.Bar, period int, interval time.Duration) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("atr: period must be positive, got %d", period)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("atr: interval must be positive, got %s", interval)
	}
	buckets := Resample(Dedupe(bars), interval)
	if len(buckets) < period+1 {
		return 0, fmt.Errorf("%w: need %d buckets of %s, got %d", ErrUnavailable, period+1, interval, len(buckets))
	}
	return wilder(TrueRanges(buckets), period), nil
}

// wilder seeds with the simple mean of the first period values and then
// applies atr += (tr-atr)/period.
func wilder(tr []float64, period int) float64 {
	sum := 0.0
	for _, v := range tr[:period] {
		sum += v
	}
	atr := sum / float64(period)
	for _, v := range tr[period:] {
		atr += (v - atr) / float64(period)
	}
	return math.Max(atr, 0)
}
