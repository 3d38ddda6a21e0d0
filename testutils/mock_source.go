package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/evdnx/gorb/marketdata"
	"github.com/evdnx/gorb/types"
)

// MockSource implements marketdata.Source with scripted data. Instruments
// without a quote or bars report marketdata.ErrUnavailable.
type MockSource struct {
	mu     sync.Mutex
	quotes map[string]types.Quote
	bars   map[string][]types.Bar
	calls  map[string]int
}

func NewMockSource() *MockSource {
	return &MockSource{
		quotes: make(map[string]types.Quote),
		bars:   make(map[string][]types.Bar),
		calls:  make(map[string]int),
	}
}

func (m *MockSource) SetQuote(instrument string, price float64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[instrument] = types.Quote{Instrument: instrument, Price: price, Time: at}
}

func (m *MockSource) SetBars(instrument string, bars []types.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[instrument] = append([]types.Bar(nil), bars...)
}

func (m *MockSource) Quote(_ context.Context, instrument string) (types.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["quote:"+instrument]++
	q, ok := m.quotes[instrument]
	if !ok {
		return types.Quote{}, marketdata.ErrUnavailable
	}
	return q, nil
}

func (m *MockSource) Bars(_ context.Context, instrument string, since time.Time) ([]types.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["bars:"+instrument]++
	src, ok := m.bars[instrument]
	if !ok {
		return nil, marketdata.ErrUnavailable
	}
	var out []types.Bar
	for _, b := range src {
		if !b.Start.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Calls counts Quote ("quote:<instrument>") and Bars ("bars:<instrument>")
// requests.
func (m *MockSource) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}
