package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventColor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ColorBlue, Event{Kind: KindEntry}.Color())
	assert.Equal(t, ColorGreen, Event{Kind: KindExit, PnL: 12}.Color())
	assert.Equal(t, ColorRed, Event{Kind: KindExit, PnL: 0}.Color())
	assert.Equal(t, ColorRed, Event{Kind: KindError}.Color())
	assert.Equal(t, ColorOrange, Event{Kind: KindHalt}.Color())
}

func TestWebhookSendsEmbed(t *testing.T) {
	t.Parallel()

	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL, Username: "gorb"})
	require.NoError(t, err)
	err = wh.Notify(context.Background(), Event{
		Kind: KindExit, Title: "PROFIT BOOKED", Instrument: "NIFTY25030424850CE",
		Price: 160, PnL: 650, PnLPercent: 6.67, Time: time.Date(2025, 3, 4, 4, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "gorb", got.Username)
	require.Len(t, got.Embeds, 1)
	e := got.Embeds[0]
	assert.Equal(t, "PROFIT BOOKED", e.Title)
	assert.Equal(t, ColorGreen, e.Color)
	assert.Equal(t, "2025-03-04T04:30:00Z", e.Timestamp)
	require.Len(t, e.Fields, 3)
	assert.Equal(t, "650.00 (6.67%)", e.Fields[2].Value)
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL, Retries: 2})
	require.NoError(t, err)
	require.NoError(t, wh.Notify(context.Background(), Event{Kind: KindEntry, Title: "TRADE ENTRY"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookRejectsClientErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	assert.ErrorContains(t, wh.Notify(context.Background(), Event{Kind: KindEntry}), "status 401")

	_, err = NewWebhook(WebhookConfig{})
	assert.Error(t, err)
}

type failing struct{}

func (failing) Name() string                        { return "failing" }
func (failing) Notify(context.Context, Event) error { return errors.New("boom") }

func TestMulti(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Multi{Nop{}, Nop{}}.Notify(context.Background(), Event{}))
	err := Multi{Nop{}, failing{}}.Notify(context.Background(), Event{})
	assert.ErrorContains(t, err, "failing: boom")
}
