package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gorb/types"
)

func ramp(start float64, step float64, n int) []types.Bar {
	t0 := time.Date(2025, 3, 4, 9, 15, 0, 0, time.UTC)
	bars := make([]types.Bar, 0, n)
	for i := 1; i <= n; i++ {
		p := start + step*float64(i)
		bars = append(bars, types.Bar{
			Start: t0.Add(time.Duration(i) * time.Minute),
			Open:  p - step,
			High:  p + 0.5,
			Low:   p - 0.5,
			Close: p,
		})
	}
	return bars
}

func TestTrendFilterScoresDirection(t *testing.T) {
	f := NewTrendFilter(0, 5, nil)

	up, err := f.Score(ramp(100, 1, 15))
	require.NoError(t, err)
	assert.Greater(t, up, 0.0)
	assert.True(t, Confirms(up, types.SignalUpside))
	assert.False(t, Confirms(up, types.SignalDownside))

	down, err := f.Score(ramp(115, -1, 15))
	require.NoError(t, err)
	assert.Less(t, down, 0.0)
	assert.True(t, Confirms(down, types.SignalDownside))
}

func TestTrendFilterWithoutBars(t *testing.T) {
	_, err := NewTrendFilter(5*time.Minute, 5, nil).Score(nil)
	assert.True(t, errors.Is(err, ErrTrendUnavailable))
}

func TestConfirms(t *testing.T) {
	assert.False(t, Confirms(0, types.SignalUpside))
	assert.False(t, Confirms(0, types.SignalDownside))
	assert.False(t, Confirms(5, types.SignalNone))
	assert.True(t, Confirms(-0.1, types.SignalDownside))
}

func TestPriceBuffer(t *testing.T) {
	p := newPriceBuffer(3)
	for _, v := range []float64{1, 2, 3, 4} {
		p.Add(v)
	}
	assert.Equal(t, []float64{2, 3, 4}, p.Values())
	assert.Equal(t, 4.0, p.Last())
	assert.Equal(t, 1, p.Trend())
	assert.InDelta(t, 1.0, p.Slope(), 1e-9)
	p.Reset()
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0.0, p.Last())
}
