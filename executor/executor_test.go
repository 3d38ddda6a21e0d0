package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gorb/types"
)

const ce = "NIFTY25030424850CE"

func TestPaperExecutor_BuyAndSell(t *testing.T) {
	ctx := context.Background()
	ex := NewPaperExecutor(10_000, nil)

	res, err := ex.Place(ctx, types.Order{Instrument: ce, Side: types.Buy, Kind: types.Market, Qty: 65, Price: 150})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.OrderID, "paper-"))
	assert.Equal(t, StatusComplete, res.Status)
	assert.Equal(t, 250.0, ex.Cash())

	qty, avg := ex.Position(ce)
	assert.Equal(t, 65.0, qty)
	assert.Equal(t, 150.0, avg)

	_, err = ex.Place(ctx, types.Order{Instrument: ce, Side: types.Sell, Kind: types.Market, Qty: 65, Price: 155})
	require.NoError(t, err)
	assert.Equal(t, 10_325.0, ex.Cash())
	qty, _ = ex.Position(ce)
	assert.Zero(t, qty)
}

func TestPaperExecutor_InsufficientCash(t *testing.T) {
	ex := NewPaperExecutor(1000, nil)
	_, err := ex.Place(context.Background(), types.Order{Instrument: ce, Side: types.Buy, Qty: 65, Price: 150})
	assert.True(t, errors.Is(err, ErrInsufficientCash))
	assert.Equal(t, 1000.0, ex.Cash())
}

func TestPaperExecutor_InvalidOrder(t *testing.T) {
	ex := NewPaperExecutor(1000, nil)
	_, err := ex.Place(context.Background(), types.Order{Instrument: ce, Side: types.Buy, Qty: 0, Price: 1})
	assert.True(t, errors.Is(err, ErrInvalidOrder))
	_, err = ex.Place(context.Background(), types.Order{Instrument: ce, Side: types.Sell, Kind: types.StopLimit, Qty: 65})
	assert.True(t, errors.Is(err, ErrInvalidOrder))
}

func TestPaperExecutor_StopOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	ex := NewPaperExecutor(100_000, nil)
	_, err := ex.Place(ctx, types.Order{Instrument: ce, Side: types.Buy, Kind: types.Market, Qty: 65, Price: 150})
	require.NoError(t, err)

	sl, err := ex.Place(ctx, types.Order{
		Instrument: ce, Side: types.Sell, Kind: types.StopLimit, Qty: 65,
		TriggerPrice: 134.62, Price: 134.12,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusTriggerPending, sl.Status)

	require.NoError(t, ex.Modify(ctx, sl.OrderID, 155.38, 154.88))
	o, ok := ex.Resting(sl.OrderID)
	require.True(t, ok)
	assert.Equal(t, 155.38, o.TriggerPrice)

	assert.Empty(t, ex.Mark(ce, 160))
	assert.Empty(t, ex.Mark("OTHER", 1))

	filled := ex.Mark(ce, 155)
	require.Len(t, filled, 1)
	assert.Equal(t, sl.OrderID, filled[0].OrderID)
	_, ok = ex.Resting(sl.OrderID)
	assert.False(t, ok)
	qty, _ := ex.Position(ce)
	assert.Zero(t, qty)
	assert.InDelta(t, 100_000+(155.38-150)*65, ex.Cash(), 1e-6)

	assert.True(t, errors.Is(ex.Modify(ctx, sl.OrderID, 1, 1), ErrUnknownOrder))
}

func TestPaperExecutor_Cancel(t *testing.T) {
	ctx := context.Background()
	ex := NewPaperExecutor(100_000, nil)
	sl, err := ex.Place(ctx, types.Order{Instrument: ce, Side: types.Sell, Kind: types.StopMarket, Qty: 65, TriggerPrice: 100})
	require.NoError(t, err)
	require.NoError(t, ex.Cancel(ctx, sl.OrderID))
	assert.Empty(t, ex.Mark(ce, 50))
	assert.True(t, errors.Is(ex.Cancel(ctx, sl.OrderID), ErrUnknownOrder))
}
