package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gorb/types"
)

const spot = "NSE_INDEX|Nifty 50"

var ist = time.FixedZone("IST", 5*3600+30*60)

func at(h, m, s int) time.Time { return time.Date(2025, 3, 4, h, m, s, 0, ist) }

func TestStoreQuote(t *testing.T) {
	ctx := context.Background()
	now := at(9, 31, 0)
	s := NewStore(WithMaxAge(5*time.Second), WithStoreClock(func() time.Time { return now }))

	_, err := s.Quote(ctx, spot)
	assert.True(t, errors.Is(err, ErrUnavailable))

	require.NoError(t, s.Update(types.Quote{Instrument: spot, Price: 24865, Time: at(9, 30, 58)}))
	q, err := s.Quote(ctx, spot)
	require.NoError(t, err)
	assert.Equal(t, 24865.0, q.Price)

	// an older tick does not replace the last quote
	require.NoError(t, s.Update(types.Quote{Instrument: spot, Price: 24800, Time: at(9, 30, 50)}))
	q, _ = s.Quote(ctx, spot)
	assert.Equal(t, 24865.0, q.Price)

	now = at(9, 31, 10)
	_, err = s.Quote(ctx, spot)
	assert.True(t, errors.Is(err, ErrUnavailable), "stale quote")

	assert.Error(t, s.Update(types.Quote{Instrument: spot, Price: 0, Time: now}))
}

func TestStoreFoldsTicksIntoMinuteBars(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	ticks := []struct {
		ts    time.Time
		price float64
	}{
		{at(9, 15, 1), 100},
		{at(9, 15, 20), 104},
		{at(9, 15, 40), 98},
		{at(9, 15, 59), 101},
		{at(9, 16, 0), 102},
	}
	for _, tk := range ticks {
		require.NoError(t, s.Update(types.Quote{Instrument: spot, Price: tk.price, Time: tk.ts}))
	}

	bars, err := s.Bars(ctx, spot, at(9, 0, 0))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, types.Bar{Start: at(9, 15, 0), Open: 100, High: 104, Low: 98, Close: 101}, bars[0])
	assert.Equal(t, at(9, 16, 0), bars[1].Start)

	bars, err = s.Bars(ctx, spot, at(9, 16, 0))
	require.NoError(t, err)
	assert.Len(t, bars, 1)

	_, err = s.Bars(ctx, "NSE_FO|1", at(9, 0, 0))
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestStoreSeedLastWriteWins(t *testing.T) {
	s := NewStore()
	b := types.Bar{Start: at(9, 15, 0), Open: 1, High: 2, Low: 1, Close: 2}
	require.NoError(t, s.Seed(spot, []types.Bar{b}))
	b.High = 3
	require.NoError(t, s.PutBar(spot, b))
	bars, err := s.Bars(context.Background(), spot, time.Time{})
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 3.0, bars[0].High)

	assert.Error(t, s.Seed(spot, []types.Bar{{Start: at(9, 16, 0), High: 1, Low: 2, Open: 1, Close: 1}}))
}

// feedServer upgrades one connection at a time, records subscribe frames
// and replays msgs.
type feedServer struct {
	mu   sync.Mutex
	subs []string
	auth string
	msgs []string
}

func (fs *feedServer) handler(t *testing.T) http.HandlerFunc {
	up := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		fs.mu.Lock()
		fs.auth = r.Header.Get("Authorization")
		fs.mu.Unlock()

		go func() {
			for _, m := range fs.msgs {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
					return
				}
			}
		}()
		for {
			var m subscribeMessage
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			fs.mu.Lock()
			fs.subs = append(fs.subs, m.Instruments...)
			fs.mu.Unlock()
		}
	}
}

func TestWSFeedPumpsIntoStore(t *testing.T) {
	ts := at(9, 31, 5).UnixMilli()
	fs := &feedServer{msgs: []string{
		`{"type":"heartbeat"}`,
		`{"type":"bar","instrument":"NSE_INDEX|Nifty 50","bar":{"start":` + itoa(at(9, 15, 0).UnixMilli()) + `,"open":24810,"high":24850,"low":24800,"close":24840}}`,
		`{"type":"tick","instrument":"NSE_INDEX|Nifty 50","price":24865,"ts":` + itoa(ts) + `}`,
		`not json`,
	}}
	srv := httptest.NewServer(fs.handler(t))
	defer srv.Close()

	store := NewStore()
	feed := NewWSFeed(FeedConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Token: "secret"}, store, nil)
	require.NoError(t, feed.Subscribe(spot))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	require.Eventually(t, func() bool {
		q, err := store.Quote(context.Background(), spot)
		return err == nil && q.Price == 24865
	}, 2*time.Second, 10*time.Millisecond)

	bars, err := store.Bars(context.Background(), spot, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 24850.0, bars[0].High)

	require.NoError(t, feed.Subscribe("NSE_FO|42536"))
	require.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return len(fs.subs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	fs.mu.Lock()
	assert.Equal(t, []string{spot, "NSE_FO|42536"}, fs.subs)
	assert.Equal(t, "Bearer secret", fs.auth)
	fs.mu.Unlock()
	assert.Equal(t, 1, feed.Connects())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestWSFeedStopsWhileDisconnected(t *testing.T) {
	feed := NewWSFeed(FeedConfig{URL: "ws://127.0.0.1:1/none"}, NewStore(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.NoError(t, feed.Run(ctx))
	assert.Zero(t, feed.Connects())
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
