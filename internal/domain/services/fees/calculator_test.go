package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/custody-service/custody_service/internal/infrastructure/config"
)

func newTestCalculator() *Calculator {
	return NewCalculator(config.FeeConfig{
		FixedFee:    2.0,
		UpstreamFee: 1.0,
		PercentMin:  0.01,
		PercentMax:  0.05,
	})
}

func TestCustomerFeeSmallAmountUsesFixedFee(t *testing.T) {
	c := newTestCalculator()

	// 1% of 100 is 1, so the fixed fee of 2 wins
	fee := c.CustomerFee(decimal.NewFromInt(100))
	assert.True(t, fee.Equal(decimal.NewFromInt(2)), "got %s", fee)
}

func TestCustomerFeeClampedToCeiling(t *testing.T) {
	c := newTestCalculator()

	// Fixed fee of 2 exceeds 5% of 10 (0.5), so the ceiling applies
	fee := c.CustomerFee(decimal.NewFromInt(10))
	assert.True(t, fee.Equal(decimal.NewFromFloat(0.5)), "got %s", fee)
}

func TestCustomerFeeMidTier(t *testing.T) {
	c := newTestCalculator()

	// 3% of 800 = 24, above the fixed fee and inside the band
	fee := c.CustomerFee(decimal.NewFromInt(800))
	assert.True(t, fee.Equal(decimal.NewFromInt(24)), "got %s", fee)
}

func TestCustomerFeeHighTier(t *testing.T) {
	c := newTestCalculator()

	// 5% of 2000 = 100
	fee := c.CustomerFee(decimal.NewFromInt(2000))
	assert.True(t, fee.Equal(decimal.NewFromInt(100)), "got %s", fee)
}

func TestCustomerFeeNeverExceedsBand(t *testing.T) {
	c := newTestCalculator()

	amounts := []int64{1, 10, 50, 100, 499, 500, 501, 999, 1000, 1001, 5000, 100000}
	for _, a := range amounts {
		amount := decimal.NewFromInt(a)
		fee := c.CustomerFee(amount)
		floor := amount.Mul(decimal.NewFromFloat(0.01))
		ceiling := amount.Mul(decimal.NewFromFloat(0.05))
		assert.True(t, fee.GreaterThanOrEqual(floor), "amount %d: fee %s below floor %s", a, fee, floor)
		assert.True(t, fee.LessThanOrEqual(ceiling), "amount %d: fee %s above ceiling %s", a, fee, ceiling)
	}
}

func TestQuoteProfitSplit(t *testing.T) {
	c := newTestCalculator()

	q := c.Quote(decimal.NewFromInt(100))
	assert.True(t, q.CustomerFee.Equal(decimal.NewFromInt(2)))
	assert.True(t, q.UpstreamFee.Equal(decimal.NewFromInt(1)))
	assert.True(t, q.ProfitAmount.Equal(decimal.NewFromInt(1)))
	assert.True(t, q.NetAmount.Equal(decimal.NewFromInt(98)))
	assert.True(t, q.ProfitMargin.Equal(decimal.NewFromFloat(0.5)))
}

func TestQuoteNegativeProfitRecorded(t *testing.T) {
	c := NewCalculator(config.FeeConfig{
		FixedFee:    0.2,
		UpstreamFee: 1.0,
		PercentMin:  0.01,
		PercentMax:  0.05,
	})

	// Customer fee on 10 is 0.2, below the upstream fee of 1
	q := c.Quote(decimal.NewFromInt(10))
	assert.True(t, q.ProfitAmount.IsNegative(), "got %s", q.ProfitAmount)
}

func TestQuoteZeroAmount(t *testing.T) {
	c := newTestCalculator()

	q := c.Quote(decimal.Zero)
	assert.True(t, q.CustomerFee.IsZero())
	assert.True(t, q.ProfitMargin.IsZero())
}
