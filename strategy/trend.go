package strategy

import (
	"errors"
	"math"
	"time"

	"github.com/evdnx/goti"

	"github.com/evdnx/gorb/logger"
	"github.com/evdnx/gorb/market"
	"github.com/evdnx/gorb/types"
)

// ErrTrendUnavailable is returned when neither the indicators nor the
// fallback price statistics can score the trend.
var ErrTrendUnavailable = errors.New("trend unavailable")

// TrendFilter confirms a breakout against the ATSO trend oscillator computed
// on resampled bars of the underlying. A fresh indicator suite is built for
// every check so the verdict depends only on the bars passed in.
type TrendFilter struct {
	interval     time.Duration
	suiteFactory func() (*goti.IndicatorSuite, error)
	log          logger.Logger
}

func NewTrendFilter(interval time.Duration, atsoEMAPeriod int, log logger.Logger) *TrendFilter {
	if log == nil {
		log = logger.Nop()
	}
	return &TrendFilter{
		interval: interval,
		suiteFactory: func() (*goti.IndicatorSuite, error) {
			ic := goti.DefaultConfig()
			if atsoEMAPeriod > 0 {
				ic.ATSEMAperiod = atsoEMAPeriod
			}
			return goti.NewIndicatorSuiteWithConfig(ic)
		},
		log: log,
	}
}

// Score returns the trend direction of bars: positive for up, negative for
// down. The ATSO value is used once the suite has enough data, otherwise the
// direction of recent closes.
func (f *TrendFilter) Score(bars []types.Bar) (float64, error) {
	if f.interval > 0 {
		bars = market.Resample(bars, f.interval)
	}
	if len(bars) == 0 {
		return 0, ErrTrendUnavailable
	}
	closes := newPriceBuffer(len(bars))
	suite, err := f.suiteFactory()
	if err != nil {
		return 0, err
	}
	fed := true
	for _, b := range bars {
		closes.Add(b.Close)
		if !fed {
			continue
		}
		// index bars carry no volume
		if err := suite.Add(b.High, b.Low, b.Close, math.Max(b.Volume, 1)); err != nil {
			f.log.Debug("trend_suite_add_failed", logger.Err(err))
			fed = false
		}
	}
	if fed {
		if v, err := suite.GetATSO().Calculate(); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, nil
		}
	}
	switch {
	case closes.Trend() > 0 && closes.Slope() > 0:
		return 1, nil
	case closes.Trend() < 0 && closes.Slope() < 0:
		return -1, nil
	}
	return 0, ErrTrendUnavailable
}

// Confirms reports whether the trend agrees with sig. A flat trend confirms
// neither direction.
func Confirms(score float64, sig types.Signal) bool {
	switch sig {
	case types.SignalUpside:
		return score > 0
	case types.SignalDownside:
		return score < 0
	}
	return false
}
