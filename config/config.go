package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // session timezone on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/evdnx/gorb/logger"
	"github.com/evdnx/gorb/market"
	"github.com/evdnx/gorb/risk"
)

// Risk modes.
const (
	ModeCurrency   = "currency"
	ModeVolatility = "volatility"
)

// Config holds every tunable of a session. The zero value is not usable;
// start from Default or Preset.
type Config struct {
	Instrument  InstrumentConfig  `yaml:"instrument" json:"instrument"`
	Range       RangeConfig       `yaml:"range" json:"range"`
	Breakout    BreakoutConfig    `yaml:"breakout" json:"breakout"`
	Volatility  VolatilityConfig  `yaml:"volatility" json:"volatility"`
	Risk        RiskConfig        `yaml:"risk" json:"risk"`
	Limits      LimitsConfig      `yaml:"limits" json:"limits"`
	Options     OptionsConfig     `yaml:"options" json:"options"`
	Execution   ExecutionConfig   `yaml:"execution" json:"execution"`
	Journal     JournalConfig     `yaml:"journal" json:"journal"`
	Notify      NotifyConfig      `yaml:"notify" json:"notify"`
	Logging     logger.Config     `yaml:"logging" json:"logging"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Feed        FeedConfig        `yaml:"feed" json:"feed"`
	TrendFilter TrendFilterConfig `yaml:"trend_filter" json:"trend_filter"`
}

type InstrumentConfig struct {
	Underlying string `yaml:"underlying" json:"underlying"` // quote key of the index
	Name       string `yaml:"name" json:"name"`             // contract prefix, e.g. NIFTY
	Timezone   string `yaml:"timezone" json:"timezone"`
}

type RangeConfig struct {
	Start string `yaml:"start" json:"start"` // HH:MM
	End   string `yaml:"end" json:"end"`
}

type BreakoutConfig struct {
	Buffer float64 `yaml:"buffer" json:"buffer"` // points beyond the band
}

type VolatilityConfig struct {
	Period   int           `yaml:"period" json:"period"`
	Interval time.Duration `yaml:"interval" json:"interval"`
	Refresh  time.Duration `yaml:"refresh" json:"refresh"`
}

type RiskConfig struct {
	Mode         string               `yaml:"mode" json:"mode"`
	ExitPriority string               `yaml:"exit_priority" json:"exit_priority"` // target or stop
	StopDecimals int                  `yaml:"stop_decimals" json:"stop_decimals"`
	Currency     CurrencyRiskConfig   `yaml:"currency" json:"currency"`
	Volatility   VolatilityRiskConfig `yaml:"volatility" json:"volatility"`
}

type CurrencyRiskConfig struct {
	InitialStopLoss float64 `yaml:"initial_stop_loss" json:"initial_stop_loss"`
	ProfitTarget    float64 `yaml:"profit_target" json:"profit_target"`
	TrailingStep    float64 `yaml:"trailing_step" json:"trailing_step"`
	LockActivation  float64 `yaml:"lock_activation" json:"lock_activation"`
	LockAmount      float64 `yaml:"lock_amount" json:"lock_amount"`
}

type VolatilityRiskConfig struct {
	OptionDelta        float64         `yaml:"option_delta" json:"option_delta"`
	SLMultiplier       float64         `yaml:"sl_multiplier" json:"sl_multiplier"`
	TargetMultiplier   float64         `yaml:"target_multiplier" json:"target_multiplier"`
	ActivationFraction float64         `yaml:"activation_fraction" json:"activation_fraction"`
	Locks              []risk.LockTier `yaml:"locks" json:"locks"`
}

type LimitsConfig struct {
	MaxTrades    int      `yaml:"max_trades" json:"max_trades"`
	MaxDailyLoss float64  `yaml:"max_daily_loss" json:"max_daily_loss"`
	HaltOnExit   []string `yaml:"halt_on_exit" json:"halt_on_exit"`
	// ExitOnHalt ends the session loop as soon as the limiter halts instead
	// of idling until market close.
	ExitOnHalt bool `yaml:"exit_on_halt" json:"exit_on_halt"`
}

type OptionsConfig struct {
	StrikeStep    float64 `yaml:"strike_step" json:"strike_step"`
	ExpiryWeekday string  `yaml:"expiry_weekday" json:"expiry_weekday"`
	ExpiryCutoff  string  `yaml:"expiry_cutoff" json:"expiry_cutoff"` // HH:MM on expiry day
	LotSize       int     `yaml:"lot_size" json:"lot_size"`
	Lots          int     `yaml:"lots" json:"lots"`
	ContractsFile string  `yaml:"contracts_file" json:"contracts_file"`
}

type ExecutionConfig struct {
	Paper           bool          `yaml:"paper" json:"paper"`
	InitialCash     float64       `yaml:"initial_cash" json:"initial_cash"`
	StopOrder       bool          `yaml:"stop_order" json:"stop_order"`
	StopOrderOffset float64       `yaml:"stop_order_offset" json:"stop_order_offset"`
	FormationPoll   time.Duration `yaml:"formation_poll" json:"formation_poll"`
	WatchPoll       time.Duration `yaml:"watch_poll" json:"watch_poll"`
	MonitorPoll     time.Duration `yaml:"monitor_poll" json:"monitor_poll"`
	MarketClose     string        `yaml:"market_close" json:"market_close"`
}

type JournalConfig struct {
	Type string `yaml:"type" json:"type"` // csv, sqlite or none
	Path string `yaml:"path" json:"path"`
}

type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url" json:"webhook_url"`
	Username   string        `yaml:"username" json:"username"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	Retries    int           `yaml:"retries" json:"retries"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

type FeedConfig struct {
	URL          string        `yaml:"url" json:"url"`
	Token        string        `yaml:"token" json:"token"`
	MaxReconnect time.Duration `yaml:"max_reconnect" json:"max_reconnect"`
}

type TrendFilterConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Interval     time.Duration `yaml:"interval" json:"interval"`
	ATSEMAPeriod int           `yaml:"atso_ema_period" json:"atso_ema_period"`
}

// Default returns the currency-tiered preset.
func Default() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Underlying: "NSE_INDEX|Nifty 50",
			Name:       "NIFTY",
			Timezone:   "Asia/Kolkata",
		},
		Range:    RangeConfig{Start: "09:15", End: "09:30"},
		Breakout: BreakoutConfig{Buffer: 10},
		Volatility: VolatilityConfig{
			Period:   market.DefaultATRPeriod,
			Interval: market.DefaultATRInterval,
			Refresh:  time.Minute,
		},
		Risk: RiskConfig{
			Mode:         ModeCurrency,
			ExitPriority: "target",
			StopDecimals: 2,
			Currency: CurrencyRiskConfig{
				InitialStopLoss: -1000,
				ProfitTarget:    1000,
				TrailingStep:    500,
				LockActivation:  700,
				LockAmount:      350,
			},
			Volatility: VolatilityRiskConfig{
				OptionDelta:        0.5,
				SLMultiplier:       1.5,
				TargetMultiplier:   3,
				ActivationFraction: 0.05,
				Locks:              risk.DefaultLockTiers(),
			},
		},
		Limits: LimitsConfig{
			MaxTrades:    1,
			MaxDailyLoss: 1000,
			ExitOnHalt:   true,
		},
		Options: OptionsConfig{
			StrikeStep:    50,
			ExpiryWeekday: "tuesday",
			ExpiryCutoff:  "15:30",
			LotSize:       65,
			Lots:          1,
		},
		Execution: ExecutionConfig{
			Paper:           true,
			InitialCash:     100000,
			StopOrder:       true,
			StopOrderOffset: 0.5,
			FormationPoll:   5 * time.Second,
			WatchPoll:       time.Second,
			MonitorPoll:     time.Second,
			MarketClose:     "15:15",
		},
		Journal: JournalConfig{Type: "csv", Path: "trades/trades.csv"},
		Notify:  NotifyConfig{Username: "gorb", Timeout: 10 * time.Second, Retries: 3},
		Logging: logger.Config{Level: "info", Encoding: "json"},
		Server:  ServerConfig{Enabled: true, Addr: ":8080"},
		Feed:    FeedConfig{MaxReconnect: time.Minute},
		TrendFilter: TrendFilterConfig{
			Interval:     5 * time.Minute,
			ATSEMAPeriod: 5,
		},
	}
}

// Preset returns the defaults for a risk mode. The volatility preset keeps
// trading after a stop-loss and halts on the first target.
func Preset(mode string) (*Config, error) {
	c := Default()
	switch mode {
	case ModeCurrency:
	case ModeVolatility:
		c.Risk.Mode = ModeVolatility
		c.Limits.MaxTrades = 3
		c.Limits.HaltOnExit = []string{string(risk.ExitTargetHit)}
		c.Limits.ExitOnHalt = false
	default:
		return nil, fmt.Errorf("unknown risk mode %q", mode)
	}
	return c, nil
}

// Load reads a YAML (or JSON) file over the defaults, then applies .env and
// GORB_* overrides and validates the result. An empty path loads defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			c = Default()
			if jerr := json.Unmarshal(data, c); jerr != nil {
				return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
			}
		}
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GORB_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := os.Getenv("GORB_FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("GORB_FEED_TOKEN"); v != "" {
		c.Feed.Token = v
	}
	if v := os.Getenv("GORB_PAPER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GORB_PAPER: %w", err)
		}
		c.Execution.Paper = b
	}
	return nil
}

// SaveToFile writes YAML, or JSON when the path ends in .json.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate returns the first configuration problem found.
func (c *Config) Validate() error {
	if c.Instrument.Underlying == "" {
		return errors.New("instrument.underlying is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Window(); err != nil {
		return err
	}
	if c.Breakout.Buffer < 0 {
		return errors.New("breakout.buffer cannot be negative")
	}
	if c.Volatility.Period <= 0 {
		return errors.New("volatility.period must be positive")
	}
	if c.Volatility.Interval <= 0 {
		return errors.New("volatility.interval must be positive")
	}
	if _, err := c.RiskPolicy(); err != nil {
		return err
	}
	if _, err := risk.ParseExitPriority(c.Risk.ExitPriority); err != nil {
		return fmt.Errorf("risk.exit_priority: %w", err)
	}
	if c.Risk.StopDecimals > 8 {
		return fmt.Errorf("risk.stop_decimals (%d) out of range", c.Risk.StopDecimals)
	}
	if c.Limits.MaxTrades < 0 || c.Limits.MaxDailyLoss < 0 {
		return errors.New("limits cannot be negative")
	}
	if _, err := c.DailyLimits(); err != nil {
		return err
	}
	if c.Options.StrikeStep <= 0 {
		return errors.New("options.strike_step must be positive")
	}
	if _, err := c.ExpiryWeekday(); err != nil {
		return err
	}
	if _, err := c.ExpiryCutoff(); err != nil {
		return err
	}
	if c.Options.LotSize <= 0 || c.Options.Lots <= 0 {
		return errors.New("options.lot_size and options.lots must be positive")
	}
	if c.Execution.StopOrderOffset < 0 {
		return errors.New("execution.stop_order_offset cannot be negative")
	}
	if c.Execution.FormationPoll <= 0 || c.Execution.WatchPoll <= 0 || c.Execution.MonitorPoll <= 0 {
		return errors.New("execution poll intervals must be positive")
	}
	if _, err := c.MarketClose(); err != nil {
		return err
	}
	switch c.Journal.Type {
	case "none", "":
	case "csv", "sqlite":
		if c.Journal.Path == "" {
			return fmt.Errorf("journal.path required for %s journal", c.Journal.Type)
		}
	default:
		return fmt.Errorf("journal.type must be csv, sqlite or none, got %q", c.Journal.Type)
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return errors.New("server.addr required when server is enabled")
	}
	if !c.Execution.Paper && c.Feed.URL == "" {
		return errors.New("feed.url required for live execution")
	}
	if c.TrendFilter.Enabled && (c.TrendFilter.Interval <= 0 || c.TrendFilter.ATSEMAPeriod <= 0) {
		return errors.New("trend_filter interval and atso_ema_period must be positive")
	}
	return nil
}

// Location resolves the session timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Instrument.Timezone)
	if err != nil {
		return nil, fmt.Errorf("instrument.timezone: %w", err)
	}
	return loc, nil
}

// Window builds the opening-range window.
func (c *Config) Window() (market.Window, error) {
	loc, err := c.Location()
	if err != nil {
		return market.Window{}, err
	}
	start, err := market.ParseTimeOfDay(c.Range.Start)
	if err != nil {
		return market.Window{}, fmt.Errorf("range.start: %w", err)
	}
	end, err := market.ParseTimeOfDay(c.Range.End)
	if err != nil {
		return market.Window{}, fmt.Errorf("range.end: %w", err)
	}
	if !start.Before(end) {
		return market.Window{}, fmt.Errorf("range.start %s must be before range.end %s", start, end)
	}
	return market.Window{Start: start, End: end, Location: loc}, nil
}

// MarketClose parses the flatten time.
func (c *Config) MarketClose() (market.TimeOfDay, error) {
	t, err := market.ParseTimeOfDay(c.Execution.MarketClose)
	if err != nil {
		return market.TimeOfDay{}, fmt.Errorf("execution.market_close: %w", err)
	}
	return t, nil
}

// RiskPolicy builds and validates the policy for the configured mode.
func (c *Config) RiskPolicy() (risk.Policy, error) {
	switch c.Risk.Mode {
	case ModeCurrency:
		p := risk.CurrencyTiered{
			InitialStopLoss: c.Risk.Currency.InitialStopLoss,
			ProfitTarget:    c.Risk.Currency.ProfitTarget,
			TrailingStep:    c.Risk.Currency.TrailingStep,
			LockActivation:  c.Risk.Currency.LockActivation,
			LockAmount:      c.Risk.Currency.LockAmount,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	case ModeVolatility:
		v := c.Risk.Volatility
		p := risk.VolatilityTiered{
			OptionDelta:        v.OptionDelta,
			SLMultiplier:       v.SLMultiplier,
			TargetMultiplier:   v.TargetMultiplier,
			ActivationFraction: v.ActivationFraction,
			Locks:              append([]risk.LockTier(nil), v.Locks...),
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("risk.mode must be %q or %q, got %q", ModeCurrency, ModeVolatility, c.Risk.Mode)
}

// EngineOptions returns the engine options implied by the risk section.
func (c *Config) EngineOptions() ([]risk.EngineOption, error) {
	prio, err := risk.ParseExitPriority(c.Risk.ExitPriority)
	if err != nil {
		return nil, err
	}
	return []risk.EngineOption{
		risk.WithExitPriority(prio),
		risk.WithStopDecimals(c.Risk.StopDecimals),
	}, nil
}

// DailyLimits converts the limits section.
func (c *Config) DailyLimits() (risk.Limits, error) {
	l := risk.Limits{MaxTrades: c.Limits.MaxTrades, MaxDailyLoss: c.Limits.MaxDailyLoss}
	for _, s := range c.Limits.HaltOnExit {
		r := risk.ExitReason(s)
		switch r {
		case risk.ExitTargetHit, risk.ExitStopLoss, risk.ExitMarketClose, risk.ExitManual:
			l.HaltOnExit = append(l.HaltOnExit, r)
		default:
			return risk.Limits{}, fmt.Errorf("limits.halt_on_exit: unknown exit reason %q", s)
		}
	}
	return l, nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// ExpiryWeekday parses options.expiry_weekday.
func (c *Config) ExpiryWeekday() (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(c.Options.ExpiryWeekday)]
	if !ok {
		return 0, fmt.Errorf("options.expiry_weekday: unknown weekday %q", c.Options.ExpiryWeekday)
	}
	return d, nil
}

// ExpiryCutoff parses options.expiry_cutoff.
func (c *Config) ExpiryCutoff() (market.TimeOfDay, error) {
	t, err := market.ParseTimeOfDay(c.Options.ExpiryCutoff)
	if err != nil {
		return market.TimeOfDay{}, fmt.Errorf("options.expiry_cutoff: %w", err)
	}
	return t, nil
}

// Quantity is the order size in contract units.
func (c *Config) Quantity() float64 {
	return risk.LotQuantity(c.Options.Lots, c.Options.LotSize)
}
