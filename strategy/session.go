package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/gorb/executor"
	"github.com/evdnx/gorb/journal"
	"github.com/evdnx/gorb/logger"
	"github.com/evdnx/gorb/market"
	"github.com/evdnx/gorb/marketdata"
	"github.com/evdnx/gorb/metrics"
	"github.com/evdnx/gorb/notify"
	"github.com/evdnx/gorb/options"
	"github.com/evdnx/gorb/risk"
	"github.com/evdnx/gorb/types"
)

var (
	// ErrStaleTick is returned for an observation older than the last one
	// accepted for the same instrument.
	ErrStaleTick = errors.New("stale tick")
	// ErrHalted is returned when an entry is attempted after the daily
	// limiter latched.
	ErrHalted = errors.New("trading halted for the session")
	// ErrRangeNotFormed is returned when spot ticks arrive before the range.
	ErrRangeNotFormed = errors.New("opening range not formed")
	// ErrTrendRejected is returned when the trend filter vetoes a signal.
	ErrTrendRejected = errors.New("signal rejected by trend filter")
)

// Order purposes, used as log context and metric labels.
const (
	purposeEntry   = "entry"
	purposeStop    = "stop_loss_order"
	purposeExit    = "exit"
	purposeFlatten = "flatten"
)

// Params are the session's static settings.
type Params struct {
	Underlying  string
	Window      market.Window
	Buffer      float64
	ATRPeriod   int
	ATRInterval time.Duration
	StrikeStep  float64
	Quantity    float64
	// StopOrder places a resting stop order at the broker after entry.
	StopOrder       bool
	StopOrderOffset float64
	StopDecimals    int
}

// Deps are the collaborators the session drives. Journal, Notifier, Filter
// and Subscriber are optional.
type Deps struct {
	Source     marketdata.Source
	Exec       executor.Executor
	Contracts  options.Resolver
	Engine     *risk.Engine
	Limiter    *risk.DailyLimiter
	Journal    journal.Journal
	Notifier   notify.Notifier
	Filter     *TrendFilter
	Subscriber interface{ Subscribe(instruments ...string) error }
	Log        logger.Logger
	Clock      func() time.Time
}

// trade is the broker-side view of the open position.
type trade struct {
	contract    options.Contract
	signal      types.Signal
	spot        float64
	stopOrderID string
	lastQuote   types.Quote
}

// Session runs one trading day for one underlying. All methods except
// Snapshot must be called from a single goroutine.
type Session struct {
	params   Params
	src      marketdata.Source
	exec     executor.Executor
	book     options.Resolver
	engine   *risk.Engine
	limiter  *risk.DailyLimiter
	journal  journal.Journal
	notifier notify.Notifier
	filter   *TrendFilter
	sub      interface{ Subscribe(...string) error }
	log      logger.Logger
	now      func() time.Time

	detector *BreakoutDetector
	ticks    *priceBuffer
	lastSpot types.Quote
	vol      float64
	hasVol   bool
	volAt    time.Time
	open     *trade

	mu   sync.RWMutex
	snap Snapshot
}

func NewSession(p Params, d Deps) (*Session, error) {
	if d.Source == nil || d.Exec == nil || d.Contracts == nil || d.Engine == nil || d.Limiter == nil {
		return nil, errors.New("session needs a source, executor, contract resolver, engine and limiter")
	}
	if p.Underlying == "" {
		return nil, errors.New("session needs an underlying")
	}
	if p.Quantity <= 0 {
		return nil, fmt.Errorf("session quantity must be positive, got %.2f", p.Quantity)
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = market.DefaultATRPeriod
	}
	if p.ATRInterval <= 0 {
		p.ATRInterval = market.DefaultATRInterval
	}
	if d.Journal == nil {
		d.Journal = journal.Nop{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	s := &Session{
		params:   p,
		src:      d.Source,
		exec:     d.Exec,
		book:     d.Contracts,
		engine:   d.Engine,
		limiter:  d.Limiter,
		journal:  d.Journal,
		notifier: d.Notifier,
		filter:   d.Filter,
		sub:      d.Subscriber,
		log:      d.Log,
		now:      d.Clock,
		detector: NewBreakoutDetector(p.Buffer),
		ticks:    newPriceBuffer(64),
	}
	s.publish()
	return s, nil
}

func (s *Session) RangeFormed() bool {
	_, ok := s.detector.Range()
	return ok
}

func (s *Session) HasPosition() bool {
	_, ok := s.engine.Position()
	return ok
}

func (s *Session) CanTrade() bool { return s.limiter.CanTrade() }

// WindowEnd is the end of today's opening-range window.
func (s *Session) WindowEnd() time.Time {
	_, end := s.params.Window.Bounds(s.now())
	return end
}

// FormRange folds today's window bars into the opening range and arms the
// detector. It fails with market.ErrNoData or marketdata.ErrUnavailable
// while the data is not there yet; the caller retries.
func (s *Session) FormRange(ctx context.Context) error {
	start, end := s.params.Window.Bounds(s.now())
	bars, err := s.src.Bars(ctx, s.params.Underlying, start)
	if err != nil {
		return fmt.Errorf("range bars: %w", err)
	}
	var inWindow []types.Bar
	for _, b := range bars {
		if b.Start.Before(end) {
			inWindow = append(inWindow, b)
		}
	}
	r, err := market.OpeningRange(inWindow, s.params.Window)
	if err != nil {
		return err
	}
	if err := s.detector.SetRange(r); err != nil {
		return err
	}
	metrics.RangeHigh.Set(r.High)
	metrics.RangeLow.Set(r.Low)
	s.log.Info("orb_formed",
		logger.String("underlying", s.params.Underlying),
		logger.Float64("high", r.High),
		logger.Float64("low", r.Low),
		logger.Float64("width", r.Width()),
		logger.Int("bars", r.Bars),
		logger.Float64("upper_trigger", r.High+s.params.Buffer),
		logger.Float64("lower_trigger", r.Low-s.params.Buffer),
	)
	s.publish()
	return nil
}

// RefreshVolatility recomputes the ATR of the underlying from its full bar
// history. On failure the previous estimate is kept.
func (s *Session) RefreshVolatility(ctx context.Context) error {
	bars, err := s.src.Bars(ctx, s.params.Underlying, time.Time{})
	if err != nil {
		return fmt.Errorf("volatility bars: %w", err)
	}
	atr, err := market.ATR(bars, s.params.ATRPeriod, s.params.ATRInterval)
	if err != nil {
		return err
	}
	s.vol, s.hasVol, s.volAt = atr, true, s.now()
	metrics.ATR.Set(atr)
	s.log.Debug("volatility_refreshed", logger.Float64("atr", atr), logger.Int("bars", len(bars)))
	s.publish()
	return nil
}

// Volatility returns the latest ATR estimate.
func (s *Session) Volatility() (float64, bool) { return s.vol, s.hasVol }

// OnSpot feeds one underlying observation to the detector and enters on a
// signal. The returned signal is the detector's verdict; an entry failure
// is returned alongside it and the signal stays consumed.
func (s *Session) OnSpot(ctx context.Context, q types.Quote) (types.Signal, error) {
	if !s.lastSpot.Time.IsZero() && q.Time.Before(s.lastSpot.Time) {
		return types.SignalNone, fmt.Errorf("%w: %s before %s", ErrStaleTick,
			q.Time.Format(time.RFC3339Nano), s.lastSpot.Time.Format(time.RFC3339Nano))
	}
	s.lastSpot = q
	s.ticks.Add(q.Price)
	defer s.publish()

	if !s.RangeFormed() {
		return types.SignalNone, ErrRangeNotFormed
	}
	if s.HasPosition() || !s.limiter.CanTrade() {
		return types.SignalNone, nil
	}
	sig := s.detector.Evaluate(q.Price)
	if sig == types.SignalNone {
		return sig, nil
	}
	metrics.SignalsEmitted.WithLabelValues(sig.String()).Inc()
	r, _ := s.detector.Range()
	s.log.Info("breakout_signal",
		logger.String("direction", sig.String()),
		logger.Float64("spot", q.Price),
		logger.Float64("range_high", r.High),
		logger.Float64("range_low", r.Low),
	)
	return sig, s.Enter(ctx, sig, q)
}

// Enter buys the at-the-money option for sig and protects it.
func (s *Session) Enter(ctx context.Context, sig types.Signal, spot types.Quote) error {
	if !s.limiter.CanTrade() {
		return ErrHalted
	}
	if s.HasPosition() {
		return risk.ErrPositionOpen
	}
	optType, ok := sig.Option()
	if !ok {
		return fmt.Errorf("no option for signal %s", sig)
	}
	if s.filter != nil {
		if err := s.confirmTrend(ctx, sig); err != nil {
			return err
		}
	}

	strike := options.ATMStrike(spot.Price, s.params.StrikeStep)
	contract, err := s.book.Resolve(strike, optType)
	if err != nil {
		s.log.Warn("entry_skipped", logger.String("stage", "contract"), logger.Err(err))
		return err
	}
	if s.sub != nil {
		if err := s.sub.Subscribe(contract.InstrumentKey); err != nil {
			s.log.Warn("subscribe_failed", logger.String("instrument", contract.InstrumentKey), logger.Err(err))
		}
	}
	oq, err := s.src.Quote(ctx, contract.InstrumentKey)
	if err != nil {
		s.log.Warn("entry_skipped", logger.String("stage", "option_quote"),
			logger.String("instrument", contract.InstrumentKey), logger.Err(err))
		return err
	}

	pos, err := s.engine.Open(risk.OpenRequest{
		Instrument:    contract.InstrumentKey,
		Option:        optType,
		EntryPrice:    oq.Price,
		Quantity:      s.params.Quantity,
		Volatility:    s.vol,
		HasVolatility: s.hasVol,
	})
	if err != nil {
		s.log.Warn("entry_skipped", logger.String("stage", "risk"),
			logger.String("instrument", contract.InstrumentKey), logger.Err(err))
		return err
	}

	buy := types.Order{
		Instrument: contract.InstrumentKey,
		Side:       types.Buy,
		Kind:       types.Market,
		Qty:        pos.Quantity,
		Price:      oq.Price,
		Comment:    pos.ID,
	}
	if _, err := s.submitOrder(ctx, buy, purposeEntry); err != nil {
		// never filled
		_, _ = s.engine.Close(oq.Price)
		return err
	}

	t := &trade{contract: contract, signal: sig, spot: spot.Price, lastQuote: oq}
	if s.params.StopOrder {
		res, err := s.submitOrder(ctx, s.stopOrder(pos), purposeStop)
		if err != nil {
			s.flatten(ctx, pos, oq.Price, err)
			return err
		}
		t.stopOrderID = res.OrderID
	}
	s.open = t

	metrics.PositionsOpen.Set(1)
	metrics.StopLoss.Set(pos.StopLoss)
	fields := []logger.Field{
		logger.String("position_id", pos.ID),
		logger.String("instrument", contract.InstrumentKey),
		logger.String("symbol", contract.TradingSymbol),
		logger.Float64("strike", strike),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("qty", pos.Quantity),
		logger.Float64("stop_loss", pos.StopLoss),
	}
	if pos.HasTarget() {
		fields = append(fields, logger.Float64("target", pos.Target))
	}
	s.log.Info("position_opened", fields...)
	s.alert(ctx, notify.Event{
		Kind:       notify.KindEntry,
		Title:      "TRADE ENTRY",
		Message:    fmt.Sprintf("Bought %s (%s %s) at %.2f, stop %.2f", contract.TradingSymbol, sig, optType, pos.EntryPrice, pos.StopLoss),
		Instrument: contract.InstrumentKey,
		Price:      pos.EntryPrice,
		Time:       pos.OpenedAt,
	})
	s.publish()
	return nil
}

func (s *Session) confirmTrend(ctx context.Context, sig types.Signal) error {
	bars, err := s.src.Bars(ctx, s.params.Underlying, time.Time{})
	if err != nil {
		s.log.Warn("trend_filter_skipped", logger.Err(err))
		return nil
	}
	score, err := s.filter.Score(bars)
	if err != nil {
		s.log.Warn("trend_filter_skipped", logger.Err(err))
		return nil
	}
	if !Confirms(score, sig) {
		s.log.Info("signal_rejected",
			logger.String("direction", sig.String()),
			logger.Float64("trend_score", score))
		return ErrTrendRejected
	}
	return nil
}

func (s *Session) stopOrder(pos risk.Position) types.Order {
	return types.Order{
		Instrument:   pos.Instrument,
		Side:         types.Sell,
		Kind:         types.StopLimit,
		Qty:          pos.Quantity,
		TriggerPrice: pos.StopLoss,
		Price:        s.stopLimit(pos.StopLoss),
		Comment:      pos.ID,
	}
}

func (s *Session) stopLimit(stop float64) float64 {
	return roundTo(stop-s.params.StopOrderOffset, s.params.StopDecimals)
}

// flatten unwinds a fill that could not be protected. The round trip is
// not booked against the daily limits.
func (s *Session) flatten(ctx context.Context, pos risk.Position, price float64, cause error) {
	s.log.Error("stop_order_failed_flattening",
		logger.String("position_id", pos.ID),
		logger.String("instrument", pos.Instrument),
		logger.Err(cause))
	sell := types.Order{
		Instrument: pos.Instrument,
		Side:       types.Sell,
		Kind:       types.Market,
		Qty:        pos.Quantity,
		Price:      price,
		Comment:    pos.ID,
	}
	_, _ = s.submitOrder(ctx, sell, purposeFlatten)
	_, _ = s.engine.Close(price)
	metrics.PositionsOpen.Set(0)
	s.alert(ctx, notify.Event{
		Kind:       notify.KindError,
		Title:      "ENTRY ABORTED",
		Message:    fmt.Sprintf("Stop order for %s failed, position flattened: %v", pos.Instrument, cause),
		Instrument: pos.Instrument,
		Price:      price,
		Time:       s.now(),
	})
}

// Monitor polls the option price once and applies it to the open position.
// It returns the exit reason when the position was closed.
func (s *Session) Monitor(ctx context.Context) (risk.ExitReason, error) {
	pos, ok := s.engine.Position()
	if !ok || s.open == nil {
		return risk.ExitNone, risk.ErrNoPosition
	}
	q, err := s.src.Quote(ctx, pos.Instrument)
	if err != nil {
		return risk.ExitNone, err
	}
	return s.OnOption(ctx, q)
}

// OnOption applies one option observation: trail the stop, mirror it to the
// broker, and close on an exit condition.
func (s *Session) OnOption(ctx context.Context, q types.Quote) (risk.ExitReason, error) {
	pos, ok := s.engine.Position()
	if !ok || s.open == nil {
		return risk.ExitNone, risk.ErrNoPosition
	}
	if q.Instrument != "" && q.Instrument != pos.Instrument {
		return risk.ExitNone, fmt.Errorf("quote for %s while holding %s", q.Instrument, pos.Instrument)
	}
	if q.Time.Before(s.open.lastQuote.Time) {
		return risk.ExitNone, fmt.Errorf("%w: %s", ErrStaleTick, pos.Instrument)
	}
	reason, err := s.engine.Update(q.Price)
	if err != nil {
		return risk.ExitNone, err
	}
	s.open.lastQuote = q

	cur, _ := s.engine.Position()
	if cur.StopLoss > pos.StopLoss {
		metrics.StopLoss.Set(cur.StopLoss)
		s.log.Info("trailing_stop_raised",
			logger.String("position_id", cur.ID),
			logger.Float64("price", q.Price),
			logger.Float64("max_price", cur.MaxPriceSeen),
			logger.Float64("from", pos.StopLoss),
			logger.Float64("to", cur.StopLoss),
			logger.Float64("locked_pnl", (cur.StopLoss-cur.EntryPrice)*cur.Quantity),
		)
		if s.open.stopOrderID != "" {
			if err := s.exec.Modify(ctx, s.open.stopOrderID, cur.StopLoss, s.stopLimit(cur.StopLoss)); err != nil {
				metrics.OrderFailures.WithLabelValues(purposeStop).Inc()
				s.log.Error("stop_order_modify_failed",
					logger.String("order_id", s.open.stopOrderID),
					logger.Float64("trigger", cur.StopLoss),
					logger.Err(err))
			}
		}
	}
	if m, ok := s.exec.(executor.Marker); ok {
		m.Mark(pos.Instrument, q.Price)
	}

	if reason == risk.ExitNone {
		s.publish()
		return risk.ExitNone, nil
	}
	if _, err := s.Exit(ctx, reason, q.Price); err != nil {
		return reason, err
	}
	return reason, nil
}

// Exit closes the open position at price. A stop-loss exit with a resting
// stop order relies on that order; every other exit cancels it and sells at
// market.
func (s *Session) Exit(ctx context.Context, reason risk.ExitReason, price float64) (risk.CloseResult, error) {
	pos, ok := s.engine.Position()
	if !ok || s.open == nil {
		return risk.CloseResult{}, risk.ErrNoPosition
	}
	t := s.open
	if reason == risk.ExitStopLoss && t.stopOrderID != "" {
		s.log.Info("stop_order_trusted",
			logger.String("order_id", t.stopOrderID),
			logger.Float64("trigger", pos.StopLoss))
	} else {
		if t.stopOrderID != "" {
			if err := s.exec.Cancel(ctx, t.stopOrderID); err != nil {
				s.log.Warn("stop_order_cancel_failed", logger.String("order_id", t.stopOrderID), logger.Err(err))
			}
		}
		sell := types.Order{
			Instrument: pos.Instrument,
			Side:       types.Sell,
			Kind:       types.Market,
			Qty:        pos.Quantity,
			Price:      price,
			Comment:    string(reason),
		}
		// the position is booked even if the sell fails; the error is
		// surfaced in the log and the alert
		_, _ = s.submitOrder(ctx, sell, purposeExit)
	}

	res, err := s.engine.Close(price)
	if err != nil {
		return risk.CloseResult{}, err
	}
	s.open = nil
	halted := s.limiter.Record(res.PnL, reason)
	counters := s.limiter.Counters()

	metrics.TradesClosed.WithLabelValues(string(reason)).Inc()
	metrics.PositionsOpen.Set(0)
	metrics.SessionPnL.Set(counters.CumulativePnL)
	s.log.Info("position_closed",
		logger.String("position_id", pos.ID),
		logger.String("instrument", pos.Instrument),
		logger.String("reason", string(reason)),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("exit", price),
		logger.Float64("pnl", res.PnL),
		logger.Float64("pnl_pct", res.PnLPercent),
		logger.Int("trade_count", counters.TradeCount),
		logger.Float64("session_pnl", counters.CumulativePnL),
	)

	rec := journal.TradeRecord{
		TradeID:    pos.ID,
		Symbol:     t.contract.TradingSymbol,
		Instrument: pos.Instrument,
		Type:       string(pos.Option),
		Strike:     t.contract.Strike,
		Quantity:   pos.Quantity,
		EntryTime:  pos.OpenedAt,
		ExitTime:   res.ClosedAt,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		PnL:        res.PnL,
		PnLPercent: res.PnLPercent,
		ExitReason: string(reason),
	}
	if err := s.journal.RecordTrade(rec); err != nil {
		s.log.Error("journal_write_failed", logger.String("position_id", pos.ID), logger.Err(err))
	}

	title := "STOP LOSS HIT"
	if res.PnL > 0 {
		title = "PROFIT BOOKED"
	}
	s.alert(ctx, notify.Event{
		Kind:       notify.KindExit,
		Title:      title,
		Message:    fmt.Sprintf("Sold %s at %.2f (%s), P&L %.2f (%.2f%%)", t.contract.TradingSymbol, price, reason, res.PnL, res.PnLPercent),
		Instrument: pos.Instrument,
		Price:      price,
		PnL:        res.PnL,
		PnLPercent: res.PnLPercent,
		Time:       res.ClosedAt,
	})
	if halted {
		s.log.Warn("session_halted", logger.String("reason", counters.HaltReason))
		s.alert(ctx, notify.Event{
			Kind:    notify.KindHalt,
			Title:   "TRADING HALTED",
			Message: counters.HaltReason,
			PnL:     counters.CumulativePnL,
			Time:    res.ClosedAt,
		})
	}
	s.publish()
	return res, nil
}

// ManualExit closes the open position at the last known option price.
func (s *Session) ManualExit(ctx context.Context, reason risk.ExitReason) (risk.CloseResult, error) {
	if s.open == nil {
		return risk.CloseResult{}, risk.ErrNoPosition
	}
	if reason == risk.ExitNone {
		reason = risk.ExitManual
	}
	price := s.open.lastQuote.Price
	if q, err := s.src.Quote(ctx, s.open.contract.InstrumentKey); err == nil && !q.Time.Before(s.open.lastQuote.Time) {
		price = q.Price
	}
	return s.Exit(ctx, reason, price)
}

// Halt stops new entries for the rest of the session.
func (s *Session) Halt(reason string) {
	s.limiter.Halt(reason)
	s.log.Warn("session_halted", logger.String("reason", reason))
	s.publish()
}

// Reset prepares a flat session for a new trading day.
func (s *Session) Reset() error {
	if s.HasPosition() {
		return risk.ErrPositionOpen
	}
	s.detector = NewBreakoutDetector(s.params.Buffer)
	s.limiter.Reset()
	s.ticks.Reset()
	s.lastSpot = types.Quote{}
	s.vol, s.hasVol, s.volAt = 0, false, time.Time{}
	metrics.SessionPnL.Set(0)
	s.publish()
	return nil
}

// submitOrder is a thin wrapper that records metrics and logs.
func (s *Session) submitOrder(ctx context.Context, o types.Order, purpose string) (types.OrderResult, error) {
	res, err := s.exec.Place(ctx, o)
	if err != nil {
		metrics.OrderFailures.WithLabelValues(purpose).Inc()
		s.log.Error("order_submit_failed",
			logger.String("instrument", o.Instrument),
			logger.String("side", string(o.Side)),
			logger.String("kind", string(o.Kind)),
			logger.Float64("qty", o.Qty),
			logger.String("purpose", purpose),
			logger.Err(err),
		)
		return res, err
	}
	s.log.Info("order_submitted",
		logger.String("order_id", res.OrderID),
		logger.String("instrument", o.Instrument),
		logger.String("side", string(o.Side)),
		logger.String("kind", string(o.Kind)),
		logger.Float64("qty", o.Qty),
		logger.Float64("price", o.Price),
		logger.Float64("trigger", o.TriggerPrice),
		logger.String("purpose", purpose),
	)
	metrics.OrdersSubmitted.WithLabelValues(purpose).Inc()
	return res, nil
}

func (s *Session) alert(ctx context.Context, e notify.Event) {
	if err := s.notifier.Notify(ctx, e); err != nil {
		s.log.Warn("notify_failed",
			logger.String("notifier", s.notifier.Name()),
			logger.String("title", e.Title),
			logger.Err(err))
	}
}
