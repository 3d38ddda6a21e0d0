package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderKind mirrors the broker order types the strategy needs.
type OrderKind string

const (
	Market     OrderKind = "MARKET"
	Limit      OrderKind = "LIMIT"
	StopLimit  OrderKind = "SL"
	StopMarket OrderKind = "SL-M"
)

type Order struct {
	Instrument   string
	Side         Side
	Kind         OrderKind
	Qty          float64
	Price        float64 // limit price, or the expected fill of a market order
	TriggerPrice float64 // stop orders only
	// meta
	Comment string
}

// OrderResult is what the order-placement collaborator hands back.
type OrderResult struct {
	OrderID string
	Status  string
}

// OptionType is the option leg bought on a breakout.
type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

// Signal is the output of the breakout detector.
type Signal int

const (
	SignalNone Signal = iota
	SignalUpside
	SignalDownside
)

func (s Signal) String() string {
	switch s {
	case SignalUpside:
		return "upside"
	case SignalDownside:
		return "downside"
	default:
		return "none"
	}
}

// Option maps a breakout direction onto the option that is bought.
// Both legs are mechanically long.
func (s Signal) Option() (OptionType, bool) {
	switch s {
	case SignalUpside:
		return Call, true
	case SignalDownside:
		return Put, true
	}
	return "", false
}

// Bar is one OHLCV candle keyed by its start time.
type Bar struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

var ErrInvalidBar = errors.New("invalid bar")

// Validate rejects bars that would poison range or volatility maths.
func (b Bar) Validate() error {
	if b.Start.IsZero() {
		return fmt.Errorf("%w: zero start time", ErrInvalidBar)
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: non-positive or non-finite price at %s", ErrInvalidBar, b.Start.Format(time.RFC3339))
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: high %.2f below low %.2f at %s", ErrInvalidBar, b.High, b.Low, b.Start.Format(time.RFC3339))
	}
	return nil
}

// Quote is a last-traded-price snapshot.
type Quote struct {
	Instrument string
	Price      float64
	Time       time.Time
}
