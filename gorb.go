// Package gorb wires an opening-range-breakout options session: market
// data, paper execution, the risk engine, journal, alerts and the status
// server.
package gorb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evdnx/gorb/config"
	"github.com/evdnx/gorb/executor"
	"github.com/evdnx/gorb/journal"
	"github.com/evdnx/gorb/logger"
	"github.com/evdnx/gorb/market"
	"github.com/evdnx/gorb/marketdata"
	"github.com/evdnx/gorb/notify"
	"github.com/evdnx/gorb/options"
	"github.com/evdnx/gorb/risk"
	"github.com/evdnx/gorb/server"
	"github.com/evdnx/gorb/strategy"
)

// App is one configured trading day.
type App struct {
	Cfg      *config.Config
	Log      logger.Logger
	Store    *marketdata.Store
	Feed     *marketdata.WSFeed // nil without feed.url
	Exec     *executor.PaperExecutor
	Journal  journal.Journal
	Notifier notify.Notifier
	Session  *strategy.Session
	Runner   *strategy.Runner
	Server   *server.Server // nil when disabled
}

// New builds every component from cfg. The caller owns Close.
func New(cfg *config.Config, log logger.Logger, version string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	if !cfg.Execution.Paper {
		return nil, errors.New("no broker executor is configured; set execution.paper")
	}
	now := time.Now

	st, err := loadSettings(cfg)
	if err != nil {
		return nil, err
	}
	loc, window, closeAt, policy := st.loc, st.window, st.closeAt, st.policy

	contracts, err := contractResolver(cfg, now().In(loc))
	if err != nil {
		return nil, err
	}

	a := &App{Cfg: cfg, Log: log}
	a.Store = marketdata.NewStore(marketdata.WithMaxAge(time.Minute))
	if cfg.Feed.URL != "" {
		a.Feed = marketdata.NewWSFeed(marketdata.FeedConfig{
			URL:          cfg.Feed.URL,
			Token:        cfg.Feed.Token,
			MaxReconnect: cfg.Feed.MaxReconnect,
		}, a.Store, log)
		if err := a.Feed.Subscribe(cfg.Instrument.Underlying); err != nil {
			return nil, err
		}
	} else {
		log.Warn("no_feed_configured", logger.String("hint", "set feed.url or GORB_FEED_URL"))
	}
	a.Exec = executor.NewPaperExecutor(cfg.Execution.InitialCash, log)

	a.Journal, err = journal.Open(cfg.Journal.Type, cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	a.Notifier = notify.Nop{}
	if cfg.Notify.WebhookURL != "" {
		hook, err := notify.NewWebhook(notify.WebhookConfig{
			URL:      cfg.Notify.WebhookURL,
			Username: cfg.Notify.Username,
			Timeout:  cfg.Notify.Timeout,
			Retries:  cfg.Notify.Retries,
		})
		if err != nil {
			_ = a.Journal.Close()
			return nil, err
		}
		a.Notifier = hook
	}

	var filter *strategy.TrendFilter
	if cfg.TrendFilter.Enabled {
		filter = strategy.NewTrendFilter(cfg.TrendFilter.Interval, cfg.TrendFilter.ATSEMAPeriod, log)
	}
	deps := strategy.Deps{
		Source:    a.Store,
		Exec:      a.Exec,
		Contracts: contracts,
		Engine:    risk.NewEngine(policy, st.engineOpts...),
		Limiter:   risk.NewDailyLimiter(st.limits),
		Journal:   a.Journal,
		Notifier:  a.Notifier,
		Filter:    filter,
		Log:       log,
		Clock:     now,
	}
	if a.Feed != nil {
		deps.Subscriber = a.Feed
	}
	a.Session, err = strategy.NewSession(strategy.Params{
		Underlying:      cfg.Instrument.Underlying,
		Window:          window,
		Buffer:          cfg.Breakout.Buffer,
		ATRPeriod:       cfg.Volatility.Period,
		ATRInterval:     cfg.Volatility.Interval,
		StrikeStep:      cfg.Options.StrikeStep,
		Quantity:        cfg.Quantity(),
		StopOrder:       cfg.Execution.StopOrder,
		StopOrderOffset: cfg.Execution.StopOrderOffset,
		StopDecimals:    cfg.Risk.StopDecimals,
	}, deps)
	if err != nil {
		_ = a.Journal.Close()
		return nil, err
	}
	a.Runner = strategy.NewRunner(a.Session, strategy.RunnerConfig{
		FormationPoll:     cfg.Execution.FormationPoll,
		WatchPoll:         cfg.Execution.WatchPoll,
		MonitorPoll:       cfg.Execution.MonitorPoll,
		VolatilityRefresh: cfg.Volatility.Refresh,
		MarketClose:       closeAt,
		Location:          loc,
		ExitOnHalt:        cfg.Limits.ExitOnHalt,
	}, log)
	if cfg.Server.Enabled {
		a.Server = server.New(server.Config{Addr: cfg.Server.Addr, Version: version}, a.Session, log)
	}

	log.Info("app_configured",
		logger.String("underlying", cfg.Instrument.Underlying),
		logger.String("risk_mode", cfg.Risk.Mode),
		logger.String("policy", policy.Name()),
		logger.String("window", cfg.Range.Start+"-"+cfg.Range.End),
		logger.Float64("quantity", cfg.Quantity()),
		logger.String("journal", cfg.Journal.Type),
		logger.Bool("trend_filter", cfg.TrendFilter.Enabled),
	)
	return a, nil
}

// settings are the typed values New builds from the raw config.
type settings struct {
	loc        *time.Location
	window     market.Window
	closeAt    market.TimeOfDay
	policy     risk.Policy
	engineOpts []risk.EngineOption
	limits     risk.Limits
}

func loadSettings(cfg *config.Config) (settings, error) {
	var (
		st  settings
		err error
	)
	if st.loc, err = cfg.Location(); err != nil {
		return st, fmt.Errorf("timezone: %w", err)
	}
	if st.window, err = cfg.Window(); err != nil {
		return st, fmt.Errorf("range window: %w", err)
	}
	if st.closeAt, err = cfg.MarketClose(); err != nil {
		return st, fmt.Errorf("market close: %w", err)
	}
	if st.policy, err = cfg.RiskPolicy(); err != nil {
		return st, fmt.Errorf("risk policy: %w", err)
	}
	if st.engineOpts, err = cfg.EngineOptions(); err != nil {
		return st, fmt.Errorf("risk engine: %w", err)
	}
	if st.limits, err = cfg.DailyLimits(); err != nil {
		return st, fmt.Errorf("daily limits: %w", err)
	}
	return st, nil
}

func contractResolver(cfg *config.Config, now time.Time) (options.Resolver, error) {
	weekday, _ := cfg.ExpiryWeekday()
	cutoff, err := cfg.ExpiryCutoff()
	if err != nil {
		return nil, err
	}
	expiry := options.NextWeeklyExpiry(now, weekday, cutoff)
	if cfg.Options.ContractsFile == "" {
		return options.Synthetic{Name: cfg.Instrument.Name, Expiry: expiry}, nil
	}
	book, err := options.LoadBook(cfg.Options.ContractsFile, expiry)
	if err != nil {
		return nil, fmt.Errorf("load contracts: %w", err)
	}
	return book, nil
}

// Run trades until the runner stops, then shuts the feed and server down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	feedCtx, stopFeed := context.WithCancel(gctx)
	defer stopFeed()

	if a.Feed != nil {
		g.Go(func() error { return a.Feed.Run(feedCtx) })
	}
	if a.Server != nil {
		g.Go(a.Server.Start)
		g.Go(func() error {
			<-feedCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.Server.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		defer stopFeed()
		return a.Runner.Run(gctx)
	})
	return g.Wait()
}

// Close flushes the journal.
func (a *App) Close() error {
	return a.Journal.Close()
}
