package testutils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gorb/logger"
	"github.com/evdnx/gorb/marketdata"
	"github.com/evdnx/gorb/types"
)

func TestMockLogger(t *testing.T) {
	l := NewMockLogger()
	assert.Equal(t, "", l.LastMessage())
	l.Info("first", logger.String("k", "v"))
	l.Warn("second")
	assert.Equal(t, "second", l.LastMessage())
	assert.Equal(t, []string{"first", "second"}, l.Messages())
	assert.True(t, l.Has("warn", "second"))
	assert.False(t, l.Has("error", "second"))
	f, ok := l.Field("first", "k")
	require.True(t, ok)
	assert.Equal(t, "v", f.String)
}

func TestMockExecutor(t *testing.T) {
	m := NewMockExecutor()
	ctx := context.Background()
	res, err := m.Place(ctx, types.Order{Instrument: "X", Side: types.Buy, Kind: types.Market, Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, "mock-1", res.OrderID)
	res, err = m.Place(ctx, types.Order{Instrument: "X", Side: types.Sell, Kind: types.StopLimit, Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, "trigger pending", res.Status)
	require.NoError(t, m.Modify(ctx, res.OrderID, 10, 9.5))
	require.NoError(t, m.Cancel(ctx, res.OrderID))

	assert.Len(t, m.Orders(), 2)
	assert.Equal(t, "mock-2", m.OrderID(1))
	assert.Equal(t, "", m.OrderID(5))
	assert.Equal(t, []Modification{{OrderID: "mock-2", Trigger: 10, Price: 9.5}}, m.Modifications())
	assert.Equal(t, []string{"mock-2"}, m.Cancelled())

	boom := errors.New("rejected")
	m.PlaceErr = func(types.Order) error { return boom }
	_, err = m.Place(ctx, types.Order{Instrument: "X", Side: types.Buy, Qty: 1})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, m.Orders(), 2)
}

func TestMockSource(t *testing.T) {
	s := NewMockSource()
	ctx := context.Background()
	_, err := s.Quote(ctx, "X")
	assert.ErrorIs(t, err, marketdata.ErrUnavailable)

	now := time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC)
	s.SetQuote("X", 101, now)
	q, err := s.Quote(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, 101.0, q.Price)

	s.SetBars("X", []types.Bar{{Start: now}, {Start: now.Add(time.Minute)}})
	bars, err := s.Bars(ctx, "X", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 2, s.Calls("quote:X"))
	assert.Equal(t, 1, s.Calls("bars:X"))
}
