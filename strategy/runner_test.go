package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gorb/config"
	"github.com/evdnx/gorb/market"
	"github.com/evdnx/gorb/types"
)

func (f *fixture) runner(s *Session, exitOnHalt bool) *Runner {
	return NewRunner(s, RunnerConfig{
		FormationPoll: time.Millisecond,
		WatchPoll:     time.Millisecond,
		MonitorPoll:   time.Millisecond,
		MarketClose:   market.TimeOfDay{Hour: 15, Minute: 15},
		Location:      ist,
		ExitOnHalt:    exitOnHalt,
	}, f.log)
}

func runAsync(ctx context.Context, r *Runner) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerStages(t *testing.T) {
	f := newFixture(t, config.ModeCurrency)
	s := f.session(t)
	r := f.runner(s, true)

	assert.Equal(t, StageForming, r.Stage(at(9, 20, 0)))
	assert.Equal(t, StageRangeCalc, r.Stage(at(9, 30, 0)))
	assert.Equal(t, StageClosed, r.Stage(at(15, 15, 0)))

	f.src.SetBars(underlying, windowBars())
	require.NoError(t, s.FormRange(context.Background()))
	assert.Equal(t, StageWatch, r.Stage(at(9, 31, 0)))

	s.Halt("operator")
	assert.Equal(t, StageHalted, r.Stage(at(9, 31, 0)))
	assert.Equal(t, StageIdle, f.runner(s, false).Stage(at(9, 31, 0)))
	assert.Equal(t, "position_monitor", StageMonitor.String())
}

func TestRunnerTradesAndFlattensAtClose(t *testing.T) {
	f := newFixture(t, config.ModeCurrency)
	f.src.SetBars(underlying, windowBars())
	f.src.SetQuote(underlying, 24865, at(9, 31, 0))
	f.src.SetQuote(callKey, 150, at(9, 31, 0))
	s := f.session(t)
	done := runAsync(context.Background(), f.runner(s, true))

	require.Eventually(t, func() bool { return s.Snapshot().Position != nil },
		5*time.Second, time.Millisecond)

	f.src.SetQuote(callKey, 158, at(15, 15, 0))
	f.clock.Set(at(15, 15, 0))
	waitDone(t, done)

	trades := f.journal.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "market_close", trades[0].ExitReason)
	assert.Equal(t, 158.0, trades[0].ExitPrice)
	assert.True(t, f.log.Has("info", "session_stopped"))
}

func TestRunnerStopsWhenHalted(t *testing.T) {
	f := newFixture(t, config.ModeCurrency)
	f.src.SetBars(underlying, windowBars())
	f.src.SetQuote(underlying, 24785, at(9, 31, 0))
	f.src.SetQuote("NIFTY25030424800PE", 150, at(9, 31, 0))
	s := f.session(t)
	done := runAsync(context.Background(), f.runner(s, true))

	require.Eventually(t, func() bool { return s.Snapshot().Position != nil },
		5*time.Second, time.Millisecond)
	f.src.SetQuote("NIFTY25030424800PE", 130, at(9, 32, 0))
	waitDone(t, done)

	trades := f.journal.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "stop_loss", trades[0].ExitReason)
	assert.Equal(t, string(types.Put), trades[0].Type)
	assert.True(t, s.Snapshot().Counters.Halted)
}

func TestRunnerCancelFlattens(t *testing.T) {
	f := newFixture(t, config.ModeCurrency)
	f.src.SetBars(underlying, windowBars())
	f.src.SetQuote(underlying, 24865, at(9, 31, 0))
	f.src.SetQuote(callKey, 150, at(9, 31, 0))
	s := f.session(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, f.runner(s, true))

	require.Eventually(t, func() bool { return s.Snapshot().Position != nil },
		5*time.Second, time.Millisecond)
	cancel()
	waitDone(t, done)

	trades := f.journal.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "manual", trades[0].ExitReason)
	assert.Nil(t, s.Snapshot().Position)
}
