package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryProvider implements Provider over in-memory tables: a weekday
// calendar minus holidays, a bidirectional symbol table, and per-day price
// rows. Used by tests, offline replays, and as the base for providers that
// hydrate the tables from a vendor feed at startup.
type MemoryProvider struct {
	marketName    string
	targetSymbols []string

	mu       sync.RWMutex
	holidays map[string]bool
	// nameToCode and codeToName are kept in sync by AddSymbol.
	nameToCode map[string]string
	codeToName map[string]string
	// prices[code][date] = Price
	prices map[string]map[string]Price
}

// NewMemoryProvider creates an empty provider for one market.
func NewMemoryProvider(marketName string, targetSymbols []string) *MemoryProvider {
	return &MemoryProvider{
		marketName:    marketName,
		targetSymbols: append([]string(nil), targetSymbols...),
		holidays:      make(map[string]bool),
		nameToCode:    make(map[string]string),
		codeToName:    make(map[string]string),
		prices:        make(map[string]map[string]Price),
	}
}

// AddHoliday marks date (YYYY-MM-DD) as a non-trading day.
func (p *MemoryProvider) AddHoliday(date string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holidays[date] = true
}

// AddSymbol registers a name ↔ code pair.
func (p *MemoryProvider) AddSymbol(name, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nameToCode[name] = code
	p.codeToName[code] = name
}

// SetPrice stores the price row for (code, date).
func (p *MemoryProvider) SetPrice(code, date string, price Price) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prices[code] == nil {
		p.prices[code] = make(map[string]Price)
	}
	p.prices[code][date] = price
}

// IsTradingDay implements Provider: weekdays minus holidays.
func (p *MemoryProvider) IsTradingDay(_ string, date string) bool {
	t, err := time.ParseInLocation(DateLayout, date, time.Local)
	if err != nil {
		return false
	}
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.holidays[date]
}

// PreviousTradingDate implements Provider.
func (p *MemoryProvider) PreviousTradingDate(triggerTime string) (string, error) {
	t, err := dateOf(triggerTime)
	if err != nil {
		return "", fmt.Errorf("bad trigger time %q: %w", triggerTime, err)
	}
	return p.shiftTradingDays(t, -1)
}

// GetSymbolPrice implements Provider.
func (p *MemoryProvider) GetSymbolPrice(_ context.Context, _, symbol, triggerTime string, dateDiff int) (*Price, error) {
	t, err := dateOf(triggerTime)
	if err != nil {
		return nil, fmt.Errorf("bad trigger time %q: %w", triggerTime, err)
	}
	date := t.Format(DateLayout)
	if dateDiff != 0 {
		date, err = p.shiftTradingDays(t, dateDiff)
		if err != nil {
			return nil, err
		}
	} else if !p.IsTradingDay(p.marketName, date) {
		// Trigger on a non-trading day reads the most recent session.
		date, err = p.shiftTradingDays(t, -1)
		if err != nil {
			return nil, err
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	row, ok := p.prices[symbol][date]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrPriceNotFound, symbol, date)
	}
	return &row, nil
}

// GetTargetSymbolContext implements Provider.
func (p *MemoryProvider) GetTargetSymbolContext(ctx context.Context, triggerTime string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s, as of %s\n", p.marketName, triggerTime)

	symbols := append([]string(nil), p.targetSymbols...)
	sort.Strings(symbols)
	for _, code := range symbols {
		p.mu.RLock()
		name := p.codeToName[code]
		p.mu.RUnlock()

		row, err := p.GetSymbolPrice(ctx, p.marketName, code, triggerTime, -1)
		if err != nil {
			fmt.Fprintf(&b, "- %s %s: no recent price\n", code, name)
			continue
		}
		fmt.Fprintf(&b, "- %s %s: prev open %.2f high %.2f low %.2f close %.2f\n",
			code, name, row.Open, row.High, row.Low, row.Close)
	}
	return b.String(), nil
}

// FixSymbolCode implements Provider: resolves by code first, then by name.
func (p *MemoryProvider) FixSymbolCode(_, name, code string) (string, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if code != "" {
		if n, ok := p.codeToName[code]; ok {
			if name == "" {
				name = n
			}
			return name, code, nil
		}
	}
	if name != "" {
		if c, ok := p.nameToCode[name]; ok {
			return name, c, nil
		}
	}
	return "", "", fmt.Errorf("%w: name=%q code=%q", ErrSymbolNotFound, name, code)
}

// maxCalendarScan bounds calendar walks so a gap in the holiday table
// cannot loop forever.
const maxCalendarScan = 30

// shiftTradingDays walks |n| trading days from t in the sign of n.
func (p *MemoryProvider) shiftTradingDays(t time.Time, n int) (string, error) {
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	cur := t
	for moved := 0; moved < n; {
		scanned := 0
		for {
			cur = cur.AddDate(0, 0, step)
			scanned++
			if scanned > maxCalendarScan {
				return "", ErrNoTradingDay
			}
			if p.IsTradingDay(p.marketName, cur.Format(DateLayout)) {
				break
			}
		}
		moved++
	}
	return cur.Format(DateLayout), nil
}
