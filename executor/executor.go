package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/evdnx/gorb/logger"
	"github.com/evdnx/gorb/types"
)

var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrUnknownOrder     = errors.New("unknown order")
	ErrInvalidOrder     = errors.New("invalid order")
)

// Order statuses reported in OrderResult.
const (
	StatusComplete       = "complete"
	StatusTriggerPending = "trigger pending"
	StatusCancelled      = "cancelled"
)

// Executor places and manages orders at a broker.
type Executor interface {
	Place(ctx context.Context, o types.Order) (types.OrderResult, error)
	// Modify moves the trigger and limit of a resting stop order.
	Modify(ctx context.Context, orderID string, trigger, price float64) error
	Cancel(ctx context.Context, orderID string) error
}

// Marker is implemented by executors that simulate resting orders and need
// to see prices to fill them.
type Marker interface {
	Mark(instrument string, price float64) []types.OrderResult
}

type restingOrder struct {
	id    string
	order types.Order
}

// PaperExecutor is a paper trader: perfect fills at Order.Price for market
// orders, resting stop orders filled by Mark.
type PaperExecutor struct {
	mu        sync.Mutex
	log       logger.Logger
	cash      float64
	positions map[string]float64 // qty (positive = long)
	avgPrice  map[string]float64
	resting   map[string]*restingOrder
	newID     func() string
}

func NewPaperExecutor(startCash float64, log logger.Logger) *PaperExecutor {
	if log == nil {
		log = logger.Nop()
	}
	return &PaperExecutor{
		log:       log,
		cash:      startCash,
		positions: make(map[string]float64),
		avgPrice:  make(map[string]float64),
		resting:   make(map[string]*restingOrder),
		newID:     func() string { return "paper-" + uuid.New().String() },
	}
}

func (p *PaperExecutor) Place(_ context.Context, o types.Order) (types.OrderResult, error) {
	if o.Qty <= 0 || o.Instrument == "" {
		return types.OrderResult{}, fmt.Errorf("%w: %s qty %.2f", ErrInvalidOrder, o.Instrument, o.Qty)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.newID()
	switch o.Kind {
	case types.StopLimit, types.StopMarket:
		if o.TriggerPrice <= 0 {
			return types.OrderResult{}, fmt.Errorf("%w: stop order needs a trigger", ErrInvalidOrder)
		}
		p.resting[id] = &restingOrder{id: id, order: o}
		p.log.Info("paper_stop_order_placed",
			logger.String("order_id", id),
			logger.String("instrument", o.Instrument),
			logger.Float64("trigger", o.TriggerPrice),
			logger.Float64("price", o.Price))
		return types.OrderResult{OrderID: id, Status: StatusTriggerPending}, nil
	}

	if err := p.fill(o, o.Price); err != nil {
		return types.OrderResult{}, err
	}
	p.log.Info("paper_order_filled",
		logger.String("order_id", id),
		logger.String("side", string(o.Side)),
		logger.String("instrument", o.Instrument),
		logger.Float64("qty", o.Qty),
		logger.Float64("price", o.Price),
		logger.Float64("cash", p.cash))
	return types.OrderResult{OrderID: id, Status: StatusComplete}, nil
}

// fill books a fill at price. Callers hold p.mu.
func (p *PaperExecutor) fill(o types.Order, price float64) error {
	cost := price * o.Qty
	if o.Side == types.Buy {
		if cost > p.cash {
			return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, cost, p.cash)
		}
		p.cash -= cost
		prevQty := p.positions[o.Instrument]
		p.positions[o.Instrument] = prevQty + o.Qty
		p.avgPrice[o.Instrument] = (p.avgPrice[o.Instrument]*prevQty + cost) / p.positions[o.Instrument]
		return nil
	}
	p.cash += cost
	p.positions[o.Instrument] -= o.Qty
	if p.positions[o.Instrument] == 0 {
		delete(p.positions, o.Instrument)
		delete(p.avgPrice, o.Instrument)
	}
	return nil
}

func (p *PaperExecutor) Modify(_ context.Context, orderID string, trigger, price float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resting[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	r.order.TriggerPrice = trigger
	r.order.Price = price
	return nil
}

func (p *PaperExecutor) Cancel(_ context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.resting[orderID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	delete(p.resting, orderID)
	return nil
}

// Mark fills resting sell stops on instrument whose trigger price has been
// reached, at the trigger price.
func (p *PaperExecutor) Mark(instrument string, price float64) []types.OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	var filled []types.OrderResult
	for id, r := range p.resting {
		o := r.order
		if o.Instrument != instrument || o.Side != types.Sell || price > o.TriggerPrice {
			continue
		}
		if err := p.fill(o, o.TriggerPrice); err != nil {
			p.log.Error("paper_stop_fill_failed", logger.String("order_id", id), logger.Err(err))
			continue
		}
		delete(p.resting, id)
		p.log.Info("paper_stop_triggered",
			logger.String("order_id", id),
			logger.Float64("trigger", o.TriggerPrice),
			logger.Float64("mark", price))
		filled = append(filled, types.OrderResult{OrderID: id, Status: StatusComplete})
	}
	return filled
}

func (p *PaperExecutor) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

func (p *PaperExecutor) Position(instrument string) (qty, avgPrice float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[instrument], p.avgPrice[instrument]
}

// Resting reports whether orderID is still waiting for its trigger.
func (p *PaperExecutor) Resting(orderID string) (types.Order, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resting[orderID]
	if !ok {
		return types.Order{}, false
	}
	return r.order, true
}
