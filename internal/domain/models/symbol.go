package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrInvalidSymbol = errors.New("invalid symbol")

// Symbol identifies an instrument as EXCHANGE:TICKER, e.g. NSE:RELIANCE-EQ.
type Symbol struct {
	Exchange string
	Ticker   string
}

// ParseSymbol normalizes raw into a Symbol.
func ParseSymbol(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	exch, ticker, ok := strings.Cut(s, ":")
	if !ok || exch == "" || ticker == "" {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return Symbol{Exchange: exch, Ticker: ticker}, nil
}

// ParseSymbols parses a universe, dropping duplicates while keeping order.
func ParseSymbols(raw []string) ([]Symbol, error) {
	seen := make(map[Symbol]struct{}, len(raw))
	out := make([]Symbol, 0, len(raw))
	for _, r := range raw {
		sym, err := ParseSymbol(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out, nil
}

func (s Symbol) String() string {
	if s.IsZero() {
		return ""
	}
	return s.Exchange + ":" + s.Ticker
}

func (s Symbol) IsZero() bool { return s.Exchange == "" && s.Ticker == "" }
