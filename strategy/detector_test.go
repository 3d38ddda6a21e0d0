package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gorb/market"
	"github.com/evdnx/gorb/types"
)

func TestDetectorSequence(t *testing.T) {
	d := NewBreakoutDetector(5)
	require.NoError(t, d.SetRange(market.Range{High: 110, Low: 100}))

	steps := []struct {
		price float64
		want  types.Signal
		armed bool
	}{
		{107, types.SignalNone, true},
		{116, types.SignalUpside, false},
		{116, types.SignalNone, false},
		{105, types.SignalNone, true},
		{95, types.SignalNone, true}, // 95 is not below 100-5
		{94.99, types.SignalDownside, false},
	}
	for i, s := range steps {
		assert.Equal(t, s.want, d.Evaluate(s.price), "step %d price %.2f", i, s.price)
		assert.Equal(t, s.armed, d.Armed(), "armed after step %d", i)
	}
}

func TestDetectorBufferZoneAndEdges(t *testing.T) {
	d := NewBreakoutDetector(10)
	require.NoError(t, d.SetRange(market.Range{High: 24850, Low: 24800}))

	// between the band and the buffer: nothing, still armed
	assert.Equal(t, types.SignalNone, d.Evaluate(24860))
	assert.True(t, d.Armed())
	// exactly at high+buffer is not a breakout
	assert.Equal(t, types.SignalNone, d.Evaluate(24860))
	assert.Equal(t, types.SignalUpside, d.Evaluate(24860.05))

	// band edges count as inside and re-arm
	assert.Equal(t, types.SignalNone, d.Evaluate(24850))
	assert.True(t, d.Armed())
}

func TestDetectorWithoutRange(t *testing.T) {
	d := NewBreakoutDetector(10)
	assert.Equal(t, types.SignalNone, d.Evaluate(1e9))
	_, ok := d.Range()
	assert.False(t, ok)
	assert.False(t, d.Armed())
}

func TestDetectorRangeIsImmutable(t *testing.T) {
	d := NewBreakoutDetector(0)
	require.NoError(t, d.SetRange(market.Range{High: 110, Low: 100}))
	err := d.SetRange(market.Range{High: 200, Low: 150})
	assert.True(t, errors.Is(err, ErrRangeFormed))
	r, _ := d.Range()
	assert.Equal(t, 110.0, r.High)
}
