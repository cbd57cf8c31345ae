// Package fees implements the withdrawal fee schedule and the fee profit
// split between the customer-facing fee and the upstream network cost.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/infrastructure/config"
)

// Tier boundaries for the percentage rate selection
var (
	tierHighThreshold = decimal.NewFromInt(1000)
	tierMidThreshold  = decimal.NewFromInt(500)
	tierMidRate       = decimal.NewFromFloat(0.03)
)

// Quote is the full fee breakdown for a withdrawal amount
type Quote struct {
	Amount       decimal.Decimal `json:"amount"`
	CustomerFee  decimal.Decimal `json:"customer_fee"`
	UpstreamFee  decimal.Decimal `json:"upstream_fee"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	ProfitAmount decimal.Decimal `json:"profit_amount"`
	ProfitMargin decimal.Decimal `json:"profit_margin"`
}

// Calculator computes withdrawal fees from the configured schedule
type Calculator struct {
	fixedFee    decimal.Decimal
	upstreamFee decimal.Decimal
	percentMin  decimal.Decimal
	percentMax  decimal.Decimal
}

// NewCalculator creates a fee calculator from configuration
func NewCalculator(cfg config.FeeConfig) *Calculator {
	return &Calculator{
		fixedFee:    decimal.NewFromFloat(cfg.FixedFee),
		upstreamFee: decimal.NewFromFloat(cfg.UpstreamFee),
		percentMin:  decimal.NewFromFloat(cfg.PercentMin),
		percentMax:  decimal.NewFromFloat(cfg.PercentMax),
	}
}

// rateFor selects the percentage rate tier for an amount. Larger
// withdrawals pay a higher rate.
func (c *Calculator) rateFor(amount decimal.Decimal) decimal.Decimal {
	switch {
	case amount.GreaterThan(tierHighThreshold):
		return c.percentMax
	case amount.GreaterThan(tierMidThreshold):
		return tierMidRate
	default:
		return c.percentMin
	}
}

// CustomerFee computes the fee charged to the customer. The fee is the
// larger of the fixed fee and the tiered percentage fee, clamped to the
// configured percentage band of the amount.
func (c *Calculator) CustomerFee(amount decimal.Decimal) decimal.Decimal {
	percentFee := amount.Mul(c.rateFor(amount))

	fee := c.fixedFee
	if percentFee.GreaterThan(fee) {
		fee = percentFee
	}

	floor := amount.Mul(c.percentMin)
	ceiling := amount.Mul(c.percentMax)

	if fee.LessThan(floor) {
		fee = floor
	}
	if fee.GreaterThan(ceiling) {
		fee = ceiling
	}

	return fee
}

// Quote computes the full fee breakdown for a withdrawal amount. Profit can
// be negative when the upstream fee exceeds the customer fee; it is
// recorded either way so the books stay honest.
func (c *Calculator) Quote(amount decimal.Decimal) Quote {
	customerFee := c.CustomerFee(amount)
	profit := customerFee.Sub(c.upstreamFee)

	margin := decimal.Zero
	if customerFee.IsPositive() {
		margin = profit.Div(customerFee)
	}

	return Quote{
		Amount:       amount,
		CustomerFee:  customerFee,
		UpstreamFee:  c.upstreamFee,
		NetAmount:    amount.Sub(customerFee),
		ProfitAmount: profit,
		ProfitMargin: margin,
	}
}
