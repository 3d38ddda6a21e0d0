package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gorb/risk"
)

// RangeView is the formed opening range.
type RangeView struct {
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Width        float64   `json:"width"`
	UpperTrigger float64   `json:"upper_trigger"`
	LowerTrigger float64   `json:"lower_trigger"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

// PositionView is the open position as seen by observers.
type PositionView struct {
	ID            string    `json:"id"`
	Instrument    string    `json:"instrument"`
	Symbol        string    `json:"symbol"`
	Option        string    `json:"option"`
	Strike        float64   `json:"strike"`
	EntryPrice    float64   `json:"entry_price"`
	Quantity      float64   `json:"quantity"`
	StopLoss      float64   `json:"stop_loss"`
	Target        *float64  `json:"target,omitempty"`
	MaxPriceSeen  float64   `json:"max_price_seen"`
	LastPrice     float64   `json:"last_price"`
	UnrealisedPnL float64   `json:"unrealised_pnl"`
	StopOrderID   string    `json:"stop_order_id,omitempty"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Underlying   string        `json:"underlying"`
	Range        *RangeView    `json:"range,omitempty"`
	Armed        bool          `json:"armed"`
	Volatility   *float64      `json:"volatility,omitempty"`
	VolatilityAt *time.Time    `json:"volatility_at,omitempty"`
	LastSpot     float64       `json:"last_spot"`
	LastSpotAt   time.Time     `json:"last_spot_at"`
	RecentSpot   []float64     `json:"recent_spot"`
	Position     *PositionView `json:"position,omitempty"`
	Counters     risk.Counters `json:"counters"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Snapshot returns the state as of the last session step. Safe for
// concurrent use.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.RecentSpot = append([]float64(nil), s.snap.RecentSpot...)
	return out
}

// publish rebuilds the snapshot. Called by the session goroutine after
// every state change.
func (s *Session) publish() {
	snap := Snapshot{
		Underlying: s.params.Underlying,
		Armed:      s.detector.Armed(),
		LastSpot:   s.lastSpot.Price,
		LastSpotAt: s.lastSpot.Time,
		RecentSpot: s.ticks.Values(),
		Counters:   s.limiter.Counters(),
		UpdatedAt:  s.now(),
	}
	if r, ok := s.detector.Range(); ok {
		snap.Range = &RangeView{
			High:         r.High,
			Low:          r.Low,
			Width:        r.Width(),
			UpperTrigger: r.High + s.params.Buffer,
			LowerTrigger: r.Low - s.params.Buffer,
			WindowStart:  r.WindowStart,
			WindowEnd:    r.WindowEnd,
		}
	}
	if s.hasVol {
		v, at := s.vol, s.volAt
		snap.Volatility, snap.VolatilityAt = &v, &at
	}
	if p, ok := s.engine.Position(); ok {
		pv := &PositionView{
			ID:           p.ID,
			Instrument:   p.Instrument,
			Option:       string(p.Option),
			EntryPrice:   p.EntryPrice,
			Quantity:     p.Quantity,
			StopLoss:     p.StopLoss,
			MaxPriceSeen: p.MaxPriceSeen,
			LastPrice:    p.EntryPrice,
			OpenedAt:     p.OpenedAt,
		}
		if p.HasTarget() {
			t := p.Target
			pv.Target = &t
		}
		if s.open != nil {
			pv.Symbol = s.open.contract.TradingSymbol
			pv.Strike = s.open.contract.Strike
			pv.StopOrderID = s.open.stopOrderID
			pv.LastPrice = s.open.lastQuote.Price
		}
		pv.UnrealisedPnL = p.UnrealisedPnL(pv.LastPrice)
		snap.Position = pv
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// roundTo rounds a price to the exchange tick.
func roundTo(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	return decimal.NewFromFloat(v).Round(int32(places)).InexactFloat64()
}
