// Package notify sends trade alerts to chat webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

type Kind string

const (
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
	KindHalt  Kind = "halt"
	KindError Kind = "error"
)

// Embed colours.
const (
	ColorBlue   = 3447003
	ColorGreen  = 5763719
	ColorRed    = 15548997
	ColorOrange = 15105570
)

// Event is one alert.
type Event struct {
	Kind       Kind
	Title      string
	Message    string
	Instrument string
	Price      float64
	PnL        float64
	PnLPercent float64
	Time       time.Time
}

// Color picks the embed colour: blue for entries, green for a profitable
// exit, red for losses and errors.
func (e Event) Color() int {
	switch e.Kind {
	case KindEntry:
		return ColorBlue
	case KindExit:
		if e.PnL > 0 {
			return ColorGreen
		}
		return ColorRed
	case KindHalt:
		return ColorOrange
	}
	return ColorRed
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
	Name() string
}

// WebhookConfig configures a Discord-compatible webhook.
type WebhookConfig struct {
	URL      string
	Username string
	Timeout  time.Duration
	Retries  int
}

type Webhook struct {
	url      string
	username string
	client   *retryablehttp.Client
}

func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	c := retryablehttp.NewClient()
	c.RetryMax = cfg.Retries
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.Logger = nil
	if cfg.Timeout > 0 {
		c.HTTPClient.Timeout = cfg.Timeout
	}
	return &Webhook{url: cfg.URL, username: cfg.Username, client: c}, nil
}

func (w *Webhook) Name() string { return "webhook" }

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type payload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

func (w *Webhook) Notify(ctx context.Context, e Event) error {
	em := embed{
		Title:       e.Title,
		Description: e.Message,
		Color:       e.Color(),
	}
	if !e.Time.IsZero() {
		em.Timestamp = e.Time.UTC().Format(time.RFC3339)
	}
	if e.Instrument != "" {
		em.Fields = append(em.Fields, embedField{Name: "Instrument", Value: e.Instrument, Inline: true})
	}
	if e.Price > 0 {
		em.Fields = append(em.Fields, embedField{Name: "Price", Value: fmt.Sprintf("%.2f", e.Price), Inline: true})
	}
	if e.Kind == KindExit {
		em.Fields = append(em.Fields, embedField{Name: "P&L", Value: fmt.Sprintf("%.2f (%.2f%%)", e.PnL, e.PnLPercent), Inline: true})
	}

	body, err := json.Marshal(payload{Username: w.username, Embeds: []embed{em}})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Name() string                        { return "nop" }
func (Nop) Notify(context.Context, Event) error { return nil }
