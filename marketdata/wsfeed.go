package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/evdnx/gorb/logger"
	"github.com/evdnx/gorb/types"
)

// FeedConfig configures a websocket tick feed.
type FeedConfig struct {
	URL          string
	Token        string        // sent as a bearer token
	PingInterval time.Duration // default 20s
	ReadTimeout  time.Duration // default 60s
	MaxReconnect time.Duration // cap on the reconnect delay, default 1m
}

// wire formats: ticks carry a price, bars a full candle. Times are unix ms.
type feedMessage struct {
	Type       string   `json:"type"`
	Instrument string   `json:"instrument"`
	Price      float64  `json:"price,omitempty"`
	TS         int64    `json:"ts,omitempty"`
	Bar        *wireBar `json:"bar,omitempty"`
}

type wireBar struct {
	Start  int64   `json:"start"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type subscribeMessage struct {
	Action      string   `json:"action"`
	Instruments []string `json:"instruments"`
}

// WSFeed pumps ticks and bars from a websocket into a Store, reconnecting
// with exponential backoff until its context is cancelled.
type WSFeed struct {
	cfg    FeedConfig
	store  *Store
	log    logger.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex // guards conn writes and subs
	conn     *websocket.Conn
	subs     map[string]bool
	sessions int
}

func NewWSFeed(cfg FeedConfig, store *Store, log logger.Logger) *WSFeed {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.MaxReconnect <= 0 {
		cfg.MaxReconnect = time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WSFeed{
		cfg:   cfg,
		store: store,
		log:   log,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		subs: make(map[string]bool),
	}
}

// Subscribe adds instruments to the stream. Subscriptions survive
// reconnects.
func (f *WSFeed) Subscribe(instruments ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fresh []string
	for _, in := range instruments {
		if !f.subs[in] {
			f.subs[in] = true
			fresh = append(fresh, in)
		}
	}
	if f.conn == nil || len(fresh) == 0 {
		return nil
	}
	return f.conn.WriteJSON(subscribeMessage{Action: "subscribe", Instruments: fresh})
}

// Connects reports how many sessions have been established.
func (f *WSFeed) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

// Run blocks until ctx is done. It returns nil on cancellation.
func (f *WSFeed) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = f.cfg.MaxReconnect
	b.MaxElapsedTime = 0

	op := func() error {
		err := f.session(ctx, b.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		f.log.Warn("feed_disconnected", logger.String("url", f.cfg.URL), logger.Err(err))
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (f *WSFeed) session(ctx context.Context, connected func()) error {
	header := http.Header{}
	if f.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+f.cfg.Token)
	}
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	if err := f.attach(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer f.detach()
	connected()
	f.log.Info("feed_connected", logger.String("url", f.cfg.URL))

	deadline := func() error { return conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout)) }
	_ = deadline()
	conn.SetPongHandler(func(string) error { return deadline() })

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(f.cfg.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-stop:
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					f.log.Warn("feed_ping_failed", logger.Err(err))
				}
			}
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = deadline()
		if mt != websocket.TextMessage {
			continue
		}
		if err := f.handle(data); err != nil {
			f.log.Warn("feed_message_rejected", logger.Err(err))
		}
	}
}

func (f *WSFeed) attach(conn *websocket.Conn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = conn
	f.sessions++
	if len(f.subs) == 0 {
		return nil
	}
	all := make([]string, 0, len(f.subs))
	for in := range f.subs {
		all = append(all, in)
	}
	sort.Strings(all)
	return conn.WriteJSON(subscribeMessage{Action: "subscribe", Instruments: all})
}

func (f *WSFeed) detach() {
	f.mu.Lock()
	f.conn = nil
	f.mu.Unlock()
}

func (f *WSFeed) handle(data []byte) error {
	var m feedMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode feed message: %w", err)
	}
	switch m.Type {
	case "tick":
		return f.store.Update(types.Quote{Instrument: m.Instrument, Price: m.Price, Time: time.UnixMilli(m.TS)})
	case "bar":
		if m.Bar == nil {
			return errors.New("bar message without bar")
		}
		return f.store.PutBar(m.Instrument, types.Bar{
			Start:  time.UnixMilli(m.Bar.Start),
			Open:   m.Bar.Open,
			High:   m.Bar.High,
			Low:    m.Bar.Low,
			Close:  m.Bar.Close,
			Volume: m.Bar.Volume,
		})
	case "heartbeat":
		return nil
	}
	return fmt.Errorf("unknown feed message type %q", m.Type)
}
