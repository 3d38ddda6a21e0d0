package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorb_signals_total",
			Help: "Breakout signals emitted (by direction).",
		},
		[]string{"direction"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorb_orders_submitted_total",
			Help: "Orders accepted by the executor (by purpose).",
		},
		[]string{"purpose"},
	)

	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorb_order_failures_total",
			Help: "Orders rejected or failed at the executor (by purpose).",
		},
		[]string{"purpose"},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorb_trades_total",
			Help: "Closed trades (by exit reason).",
		},
		[]string{"reason"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gorb_positions_open",
			Help: "1 while a position is open, 0 otherwise.",
		},
	)

	StopLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gorb_stop_loss_price",
			Help: "Current stop-loss level of the open position.",
		},
	)

	RangeHigh = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gorb_range_high",
			Help: "Opening range high of the current session.",
		},
	)

	RangeLow = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gorb_range_low",
			Help: "Opening range low of the current session.",
		},
	)

	ATR = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gorb_atr",
			Help: "Latest volatility estimate of the underlying.",
		},
	)

	SessionPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gorb_session_pnl",
			Help: "Cumulative realised P&L of the session.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsEmitted, OrdersSubmitted, OrderFailures, TradesClosed,
		PositionsOpen, StopLoss, RangeHigh, RangeLow, ATR, SessionPnL,
	)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
