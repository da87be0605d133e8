package simulator

import "github.com/shopspring/decimal"

// Portfolio tracks capital across one backtest run.
//
// AvailableCapital is the cash not locked in open positions; CurrentCapital
// is realized capital. Equity adds the unrealized P&L of open positions on
// top of CurrentCapital.
type Portfolio struct {
	InitialCapital       decimal.Decimal
	CurrentCapital       decimal.Decimal
	AvailableCapital     decimal.Decimal
	CumulativePnL        decimal.Decimal
	CumulativeCommission decimal.Decimal
}

// NewPortfolio creates a portfolio with all capital available.
func NewPortfolio(initialCapital decimal.Decimal) *Portfolio {
	return &Portfolio{
		InitialCapital:   initialCapital,
		CurrentCapital:   initialCapital,
		AvailableCapital: initialCapital,
		CumulativePnL:    decimal.Zero,
	}
}

// Equity returns realized capital plus the given unrealized P&L sum.
func (p *Portfolio) Equity(unrealized decimal.Decimal) decimal.Decimal {
	return p.CurrentCapital.Add(unrealized)
}
