package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/evdnx/gorb/types"
)

// Modification is one captured Modify call.
type Modification struct {
	OrderID string
	Trigger float64
	Price   float64
}

// MockExecutor implements executor.Executor in-memory. Every call is
// captured for assertions; nothing is filled.
type MockExecutor struct {
	mu        sync.RWMutex
	orders    []types.Order
	ids       []string
	modifies  []Modification
	cancelled []string
	seq       int

	// PlaceErr, when set, is consulted before an order is accepted.
	PlaceErr func(types.Order) error
	// ModifyErr is returned by every Modify call when set.
	ModifyErr error
}

func NewMockExecutor() *MockExecutor { return &MockExecutor{} }

func (m *MockExecutor) Place(_ context.Context, o types.Order) (types.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PlaceErr != nil {
		if err := m.PlaceErr(o); err != nil {
			return types.OrderResult{}, err
		}
	}
	m.seq++
	id := fmt.Sprintf("mock-%d", m.seq)
	m.orders = append(m.orders, o)
	m.ids = append(m.ids, id)
	status := "complete"
	if o.Kind == types.StopLimit || o.Kind == types.StopMarket {
		status = "trigger pending"
	}
	return types.OrderResult{OrderID: id, Status: status}, nil
}

func (m *MockExecutor) Modify(_ context.Context, orderID string, trigger, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ModifyErr != nil {
		return m.ModifyErr
	}
	m.modifies = append(m.modifies, Modification{OrderID: orderID, Trigger: trigger, Price: price})
	return nil
}

func (m *MockExecutor) Cancel(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

// Orders returns a copy of all accepted orders.
func (m *MockExecutor) Orders() []types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Order, len(m.orders))
	copy(out, m.orders)
	return out
}

// OrderID returns the ID assigned to the i-th accepted order.
func (m *MockExecutor) OrderID(i int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.ids) {
		return ""
	}
	return m.ids[i]
}

func (m *MockExecutor) Modifications() []Modification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Modification, len(m.modifies))
	copy(out, m.modifies)
	return out
}

func (m *MockExecutor) Cancelled() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.cancelled))
	copy(out, m.cancelled)
	return out
}
