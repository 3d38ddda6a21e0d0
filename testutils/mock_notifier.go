package testutils

import (
	"context"
	"sync"

	"github.com/evdnx/gorb/journal"
	"github.com/evdnx/gorb/notify"
)

// MockNotifier records events.
type MockNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func NewMockNotifier() *MockNotifier { return &MockNotifier{} }

func (n *MockNotifier) Name() string { return "mock" }

func (n *MockNotifier) Notify(_ context.Context, e notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *MockNotifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

// MockJournal keeps trades in memory.
type MockJournal struct {
	mu     sync.Mutex
	trades []journal.TradeRecord
	closed bool
}

func NewMockJournal() *MockJournal { return &MockJournal{} }

func (j *MockJournal) RecordTrade(t journal.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return nil
}

func (j *MockJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}

func (j *MockJournal) Trades() []journal.TradeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journal.TradeRecord(nil), j.trades...)
}
