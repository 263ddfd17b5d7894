// Package market abstracts the trading-calendar, price, and symbol
// services the research agents and the contest depend on. The pipeline
// only ever talks to the Provider interface; implementations wrap vendor
// APIs or, for tests and offline runs, in-memory tables.
package market

import (
	"context"
	"errors"
	"time"
)

// TriggerTimeLayout is the pipeline-wide trigger-time format.
const TriggerTimeLayout = "2006-01-02 15:04:05"

// DateLayout is the calendar-date format used for trading-day arithmetic.
const DateLayout = "2006-01-02"

var (
	// ErrSymbolNotFound indicates an unresolvable symbol name/code pair.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrPriceNotFound indicates no price row for (symbol, date).
	ErrPriceNotFound = errors.New("price not found")
	// ErrNoTradingDay indicates calendar arithmetic walked off the
	// provider's known range.
	ErrNoTradingDay = errors.New("no trading day in range")
)

// Price is one day's OHLC plus the exchange limit price.
type Price struct {
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	LimitPrice float64 `json:"limit_price"`
}

// Provider is the market/calendar/price interface.
type Provider interface {
	// IsTradingDay reports whether date (YYYY-MM-DD) is a trading day.
	IsTradingDay(marketName, date string) bool

	// PreviousTradingDate returns the trading date strictly before the
	// trigger time's date.
	PreviousTradingDate(triggerTime string) (string, error)

	// GetSymbolPrice returns the price dateDiff trading days away from
	// the trigger time's date (0 = that day, +1 = next trading day,
	// -1 = previous).
	GetSymbolPrice(ctx context.Context, marketName, symbol, triggerTime string, dateDiff int) (*Price, error)

	// GetTargetSymbolContext renders a compact text block describing the
	// configured target symbols at the trigger time, for research prompts.
	GetTargetSymbolContext(ctx context.Context, triggerTime string) (string, error)

	// FixSymbolCode resolves a possibly-partial (name, code) pair to the
	// canonical pair.
	FixSymbolCode(marketName, name, code string) (string, string, error)
}

// dateOf extracts the calendar date from a trigger time, tolerating bare
// dates.
func dateOf(triggerTime string) (time.Time, error) {
	if t, err := time.ParseInLocation(TriggerTimeLayout, triggerTime, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation(DateLayout, triggerTime, time.Local)
}
