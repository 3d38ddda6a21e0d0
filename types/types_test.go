package types

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestBarValidate(t *testing.T) {
	ts := time.Date(2025, 1, 6, 9, 15, 0, 0, time.UTC)
	good := Bar{Start: ts, Open: 100, High: 101, Low: 99, Close: 100.5}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid bar, got %v", err)
	}

	cases := map[string]Bar{
		"zero time":  {Open: 1, High: 1, Low: 1, Close: 1},
		"high < low": {Start: ts, Open: 100, High: 99, Low: 101, Close: 100},
		"nan close":  {Start: ts, Open: 100, High: 101, Low: 99, Close: math.NaN()},
		"zero price": {Start: ts, Open: 0, High: 101, Low: 99, Close: 100},
	}
	for name, b := range cases {
		if err := b.Validate(); !errors.Is(err, ErrInvalidBar) {
			t.Fatalf("%s: expected ErrInvalidBar, got %v", name, err)
		}
	}
}

func TestSignalOption(t *testing.T) {
	if o, ok := SignalUpside.Option(); !ok || o != Call {
		t.Fatalf("upside should buy a call, got %q %v", o, ok)
	}
	if o, ok := SignalDownside.Option(); !ok || o != Put {
		t.Fatalf("downside should buy a put, got %q %v", o, ok)
	}
	if _, ok := SignalNone.Option(); ok {
		t.Fatal("no signal must not map to an option")
	}
	if SignalDownside.String() != "downside" {
		t.Fatalf("unexpected string %q", SignalDownside.String())
	}
}
