// Package options maps a spot price and breakout direction onto a tradable
// weekly option contract.
package options

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evdnx/gorb/market"
	"github.com/evdnx/gorb/types"
)

var (
	ErrContractNotFound = errors.New("option contract not found")
	ErrNoContracts      = errors.New("no option contracts loaded")
)

const expiryLayout = "2006-01-02"

// ATMStrike rounds spot to the nearest multiple of step. Exact halves go to
// the even multiple.
func ATMStrike(spot, step float64) float64 {
	if step <= 0 {
		return spot
	}
	return math.RoundToEven(spot/step) * step
}

// NextWeeklyExpiry returns the expiry date for contracts traded at now: the
// next occurrence of weekday, or today when today is expiry day and the
// cutoff has not passed. The result is midnight in now's location.
func NextWeeklyExpiry(now time.Time, weekday time.Weekday, cutoff market.TimeOfDay) time.Time {
	ahead := (int(weekday) - int(now.Weekday()) + 7) % 7
	if ahead == 0 && !now.Before(cutoff.On(now, now.Location())) {
		ahead = 7
	}
	y, m, d := now.Date()
	return time.Date(y, m, d+ahead, 0, 0, 0, 0, now.Location())
}

// Contract is one listed option.
type Contract struct {
	InstrumentKey string           `yaml:"instrument_key" json:"instrument_key"`
	TradingSymbol string           `yaml:"trading_symbol" json:"trading_symbol"`
	Strike        float64          `yaml:"strike" json:"strike"`
	Type          types.OptionType `yaml:"type" json:"type"`
	Expiry        string           `yaml:"expiry" json:"expiry"` // YYYY-MM-DD
}

// Resolver finds the contract to buy for a strike and option type.
type Resolver interface {
	Resolve(strike float64, typ types.OptionType) (Contract, error)
}

// Book is a set of contracts narrowed to a single expiry.
type Book struct {
	expiry    string
	contracts []Contract
}

type contractsFile struct {
	Contracts []Contract `yaml:"contracts"`
}

// LoadBook reads a YAML contracts file and selects the chain for expiry,
// falling back to the nearest listed expiry on or after it.
func LoadBook(path string, expiry time.Time) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contracts file: %w", err)
	}
	var f contractsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse contracts file: %w", err)
	}
	return NewBook(f.Contracts, expiry)
}

// NewBook selects the chain for expiry from contracts.
func NewBook(contracts []Contract, expiry time.Time) (*Book, error) {
	if len(contracts) == 0 {
		return nil, ErrNoContracts
	}
	want := expiry.Format(expiryLayout)

	seen := map[string]bool{}
	var expiries []string
	for _, c := range contracts {
		if _, err := time.Parse(expiryLayout, c.Expiry); err != nil {
			return nil, fmt.Errorf("contract %s: bad expiry %q: %w", c.TradingSymbol, c.Expiry, err)
		}
		if !seen[c.Expiry] {
			seen[c.Expiry] = true
			expiries = append(expiries, c.Expiry)
		}
	}
	sort.Strings(expiries)

	chosen := ""
	if seen[want] {
		chosen = want
	} else {
		for _, e := range expiries {
			if e >= want {
				chosen = e
				break
			}
		}
	}
	if chosen == "" {
		return nil, fmt.Errorf("%w: no expiry on or after %s", ErrNoContracts, want)
	}

	b := &Book{expiry: chosen}
	for _, c := range contracts {
		if c.Expiry == chosen {
			b.contracts = append(b.contracts, c)
		}
	}
	return b, nil
}

// Expiry is the selected chain's expiry (YYYY-MM-DD).
func (b *Book) Expiry() string { return b.expiry }

func (b *Book) Len() int { return len(b.contracts) }

func (b *Book) Resolve(strike float64, typ types.OptionType) (Contract, error) {
	for _, c := range b.contracts {
		if c.Strike == strike && c.Type == typ {
			return c, nil
		}
	}
	return Contract{}, fmt.Errorf("%w: %s %.0f %s", ErrContractNotFound, b.expiry, strike, typ)
}

// Synthetic builds contract keys from the underlying name and expiry, for
// paper sessions without a contracts file.
type Synthetic struct {
	Name   string
	Expiry time.Time
}

func (s Synthetic) Resolve(strike float64, typ types.OptionType) (Contract, error) {
	sym := fmt.Sprintf("%s%s%.0f%s", s.Name, s.Expiry.Format("060102"), strike, typ)
	return Contract{
		InstrumentKey: sym,
		TradingSymbol: sym,
		Strike:        strike,
		Type:          typ,
		Expiry:        s.Expiry.Format(expiryLayout),
	}, nil
}
