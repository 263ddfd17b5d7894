package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider() *MemoryProvider {
	p := NewMemoryProvider("cn_market", []string{"600519.SH"})
	p.AddSymbol("贵州茅台", "600519.SH")
	p.SetPrice("600519.SH", "2025-01-03", Price{Open: 1500, High: 1530, Low: 1490, Close: 1520})
	p.SetPrice("600519.SH", "2025-01-06", Price{Open: 1525, High: 1560, Low: 1510, Close: 1550})
	p.SetPrice("600519.SH", "2025-01-07", Price{Open: 1555, High: 1580, Low: 1540, Close: 1570})
	return p
}

func TestIsTradingDay(t *testing.T) {
	p := newProvider()
	assert.True(t, p.IsTradingDay("cn_market", "2025-01-06"), "Monday")
	assert.False(t, p.IsTradingDay("cn_market", "2025-01-04"), "Saturday")
	assert.False(t, p.IsTradingDay("cn_market", "2025-01-05"), "Sunday")

	p.AddHoliday("2025-01-06")
	assert.False(t, p.IsTradingDay("cn_market", "2025-01-06"))
}

func TestPreviousTradingDateSkipsWeekendsAndHolidays(t *testing.T) {
	p := newProvider()

	date, err := p.PreviousTradingDate("2025-01-06 09:00:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-03", date, "Monday looks back across the weekend")

	p.AddHoliday("2025-01-03")
	date, err = p.PreviousTradingDate("2025-01-06 09:00:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02", date)
}

func TestGetSymbolPriceDateDiff(t *testing.T) {
	p := newProvider()
	ctx := context.Background()

	row, err := p.GetSymbolPrice(ctx, "cn_market", "600519.SH", "2025-01-06 09:00:00", 0)
	require.NoError(t, err)
	assert.Equal(t, 1525.0, row.Open)

	row, err = p.GetSymbolPrice(ctx, "cn_market", "600519.SH", "2025-01-06 09:00:00", 1)
	require.NoError(t, err)
	assert.Equal(t, 1555.0, row.Open)

	row, err = p.GetSymbolPrice(ctx, "cn_market", "600519.SH", "2025-01-06 09:00:00", -1)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, row.Open)

	_, err = p.GetSymbolPrice(ctx, "cn_market", "600519.SH", "2025-01-08 09:00:00", 0)
	assert.ErrorIs(t, err, ErrPriceNotFound)
}

func TestGetSymbolPriceOnNonTradingDay(t *testing.T) {
	p := newProvider()
	// A Saturday trigger reads the most recent session.
	row, err := p.GetSymbolPrice(context.Background(), "cn_market", "600519.SH", "2025-01-04 09:00:00", 0)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, row.Open)
}

func TestFixSymbolCode(t *testing.T) {
	p := newProvider()

	name, code, err := p.FixSymbolCode("cn_market", "", "600519.SH")
	require.NoError(t, err)
	assert.Equal(t, "贵州茅台", name)
	assert.Equal(t, "600519.SH", code)

	name, code, err = p.FixSymbolCode("cn_market", "贵州茅台", "")
	require.NoError(t, err)
	assert.Equal(t, "600519.SH", code)
	assert.Equal(t, "贵州茅台", name)

	// A bogus code with a known name still resolves through the name.
	_, code, err = p.FixSymbolCode("cn_market", "贵州茅台", "999999.XX")
	require.NoError(t, err)
	assert.Equal(t, "600519.SH", code)

	_, _, err = p.FixSymbolCode("cn_market", "unknown", "000000.XX")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestGetTargetSymbolContext(t *testing.T) {
	p := newProvider()
	text, err := p.GetTargetSymbolContext(context.Background(), "2025-01-06 09:00:00")
	require.NoError(t, err)
	assert.Contains(t, text, "cn_market")
	assert.Contains(t, text, "600519.SH 贵州茅台")
	assert.Contains(t, text, "1500.00", "previous session open")
}
