package strategy

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/evdnx/gorb/logger"
	"github.com/evdnx/gorb/market"
	"github.com/evdnx/gorb/risk"
)

// Stage is where the runner is in the trading day.
type Stage int

const (
	StageForming Stage = iota
	StageRangeCalc
	StageWatch
	StageMonitor
	StageIdle
	StageHalted
	StageClosed
)

func (s Stage) String() string {
	switch s {
	case StageForming:
		return "range_forming"
	case StageRangeCalc:
		return "range_calc"
	case StageWatch:
		return "breakout_watch"
	case StageMonitor:
		return "position_monitor"
	case StageIdle:
		return "idle"
	case StageHalted:
		return "halted"
	case StageClosed:
		return "market_closed"
	}
	return "unknown"
}

// RunnerConfig paces the stages of the day.
type RunnerConfig struct {
	FormationPoll     time.Duration
	WatchPoll         time.Duration
	MonitorPoll       time.Duration
	VolatilityRefresh time.Duration
	MarketClose       market.TimeOfDay
	Location          *time.Location
	// ExitOnHalt ends the run as soon as the limiter latches and the
	// session is flat.
	ExitOnHalt bool
}

// Runner drives a Session through the trading day from one goroutine.
type Runner struct {
	s   *Session
	cfg RunnerConfig
	log logger.Logger
	now func() time.Time

	formation *rate.Limiter
	watch     *rate.Limiter
	monitor   *rate.Limiter

	stage   Stage
	volDone time.Time
}

func NewRunner(s *Session, cfg RunnerConfig, log logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		s:         s,
		cfg:       cfg,
		log:       log,
		now:       s.now,
		formation: newPacer(cfg.FormationPoll, 5*time.Second),
		watch:     newPacer(cfg.WatchPoll, time.Second),
		monitor:   newPacer(cfg.MonitorPoll, time.Second),
		stage:     -1,
	}
}

func newPacer(every, def time.Duration) *rate.Limiter {
	if every <= 0 {
		every = def
	}
	return rate.NewLimiter(rate.Every(every), 1)
}

// Stage returns the stage for now.
func (r *Runner) Stage(now time.Time) Stage {
	loc := r.cfg.Location
	if loc == nil {
		loc = now.Location()
	}
	closeAt := r.cfg.MarketClose.On(now, loc)
	_, windowEnd := r.s.params.Window.Bounds(now)
	switch {
	case !now.Before(closeAt):
		return StageClosed
	case r.s.HasPosition():
		return StageMonitor
	case !r.s.CanTrade() && r.cfg.ExitOnHalt:
		return StageHalted
	case !r.s.CanTrade():
		return StageIdle
	case r.s.RangeFormed():
		return StageWatch
	case now.Before(windowEnd):
		return StageForming
	}
	return StageRangeCalc
}

// Run loops until market close, a halt with ExitOnHalt, or ctx is done. An
// open position is flattened before returning.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("session_started",
		logger.String("underlying", r.s.params.Underlying),
		logger.String("market_close", r.cfg.MarketClose.String()))
	for {
		if ctx.Err() != nil {
			r.flatten(risk.ExitManual)
			r.log.Info("session_stopped", logger.String("reason", "cancelled"))
			return nil
		}
		now := r.now()
		stage := r.Stage(now)
		if stage != r.stage {
			r.log.Info("stage_changed",
				logger.String("from", r.stage.String()),
				logger.String("to", stage.String()))
			r.stage = stage
		}

		var pace *rate.Limiter
		switch stage {
		case StageClosed:
			r.flatten(risk.ExitMarketClose)
			r.log.Info("session_stopped", logger.String("reason", "market_close"))
			return nil
		case StageHalted:
			r.log.Info("session_stopped", logger.String("reason", "halted"),
				logger.String("halt_reason", r.s.limiter.Counters().HaltReason))
			return nil
		case StageForming:
			r.observe(ctx)
			pace = r.formation
		case StageRangeCalc:
			if err := r.s.FormRange(ctx); err != nil {
				r.log.Warn("range_not_ready", logger.Err(err))
			}
			pace = r.formation
		case StageWatch:
			r.watchOnce(ctx)
			pace = r.watch
		case StageMonitor:
			if _, err := r.s.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Warn("monitor_failed", logger.Err(err))
			}
			pace = r.monitor
		case StageIdle:
			pace = r.watch
		}
		r.refreshVolatility(ctx, now)
		// Wait only fails on cancellation, handled at the top of the loop.
		_ = pace.Wait(ctx)
	}
}

// observe logs the spot while the range is still forming.
func (r *Runner) observe(ctx context.Context) {
	q, err := r.s.src.Quote(ctx, r.s.params.Underlying)
	if err != nil {
		return
	}
	r.log.Debug("range_forming",
		logger.Float64("spot", q.Price),
		logger.Time("window_end", r.s.WindowEnd()))
}

func (r *Runner) watchOnce(ctx context.Context) {
	q, err := r.s.src.Quote(ctx, r.s.params.Underlying)
	if err != nil {
		r.log.Debug("spot_unavailable", logger.Err(err))
		return
	}
	if _, err := r.s.OnSpot(ctx, q); err != nil {
		r.log.Warn("breakout_entry_failed", logger.Err(err))
	}
}

func (r *Runner) refreshVolatility(ctx context.Context, now time.Time) {
	if r.cfg.VolatilityRefresh <= 0 || now.Sub(r.volDone) < r.cfg.VolatilityRefresh {
		return
	}
	if err := r.s.RefreshVolatility(ctx); err != nil {
		r.log.Debug("volatility_unavailable", logger.Err(err))
		return
	}
	r.volDone = now
}

// flatten closes any open position. It uses a fresh context so a
// cancelled run still unwinds.
func (r *Runner) flatten(reason risk.ExitReason) {
	if !r.s.HasPosition() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.s.ManualExit(ctx, reason); err != nil {
		r.log.Error("flatten_failed", logger.String("reason", string(reason)), logger.Err(err))
	}
}
