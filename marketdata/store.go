// Package marketdata supplies quotes and minute bars to the session.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evdnx/gorb/types"
)

// ErrUnavailable is returned when there is no (fresh) data for an
// instrument. Callers skip the cycle and retry.
var ErrUnavailable = errors.New("market data unavailable")

// Source is what the session polls.
type Source interface {
	Quote(ctx context.Context, instrument string) (types.Quote, error)
	// Bars returns one-minute bars starting at or after since, ascending.
	Bars(ctx context.Context, instrument string, since time.Time) ([]types.Bar, error)
}

// Store keeps the last quote per instrument and folds ticks into one-minute
// bars. It is safe for concurrent use: a feed writes while the session
// reads.
type Store struct {
	mu     sync.RWMutex
	quotes map[string]types.Quote
	bars   map[string]map[int64]types.Bar
	maxAge time.Duration
	now    func() time.Time
}

type StoreOption func(*Store)

// WithMaxAge makes quotes older than d unavailable. Zero disables the check.
func WithMaxAge(d time.Duration) StoreOption {
	return func(s *Store) { s.maxAge = d }
}

func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		quotes: make(map[string]types.Quote),
		bars:   make(map[string]map[int64]types.Bar),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Update records a tick.
func (s *Store) Update(q types.Quote) error {
	if q.Instrument == "" || !(q.Price > 0) || q.Time.IsZero() {
		return fmt.Errorf("invalid tick %+v", q)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.quotes[q.Instrument]; !ok || !q.Time.Before(last.Time) {
		s.quotes[q.Instrument] = q
	}

	start := q.Time.Truncate(time.Minute)
	series := s.series(q.Instrument)
	b, ok := series[start.UnixNano()]
	if !ok {
		series[start.UnixNano()] = types.Bar{Start: start, Open: q.Price, High: q.Price, Low: q.Price, Close: q.Price}
		return nil
	}
	if q.Price > b.High {
		b.High = q.Price
	}
	if q.Price < b.Low {
		b.Low = q.Price
	}
	b.Close = q.Price
	series[start.UnixNano()] = b
	return nil
}

// PutBar stores a complete bar, replacing any bar with the same start.
func (s *Store) PutBar(instrument string, b types.Bar) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series(instrument)[b.Start.UnixNano()] = b
	return nil
}

// Seed loads history for an instrument.
func (s *Store) Seed(instrument string, bars []types.Bar) error {
	for _, b := range bars {
		if err := s.PutBar(instrument, b); err != nil {
			return fmt.Errorf("seed %s: %w", instrument, err)
		}
	}
	return nil
}

// series returns the bar map for instrument. Callers hold s.mu.
func (s *Store) series(instrument string) map[int64]types.Bar {
	m, ok := s.bars[instrument]
	if !ok {
		m = make(map[int64]types.Bar)
		s.bars[instrument] = m
	}
	return m
}

func (s *Store) Quote(_ context.Context, instrument string) (types.Quote, error) {
	s.mu.RLock()
	q, ok := s.quotes[instrument]
	s.mu.RUnlock()
	if !ok {
		return types.Quote{}, fmt.Errorf("%w: no quote for %s", ErrUnavailable, instrument)
	}
	if s.maxAge > 0 && s.now().Sub(q.Time) > s.maxAge {
		return types.Quote{}, fmt.Errorf("%w: quote for %s is stale (%s)", ErrUnavailable, instrument, q.Time.Format(time.TimeOnly))
	}
	return q, nil
}

func (s *Store) Bars(_ context.Context, instrument string, since time.Time) ([]types.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series, ok := s.bars[instrument]
	if !ok || len(series) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s", ErrUnavailable, instrument)
	}
	out := make([]types.Bar, 0, len(series))
	for _, b := range series {
		if !b.Start.Before(since) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
