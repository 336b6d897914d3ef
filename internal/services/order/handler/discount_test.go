package handler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakery-system/internal/database/models"
)

func int32Ptr(i int32) *int32 {
	return &i
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func baseDiscount() models.Discount {
	return models.Discount{
		ID:                    1,
		DiscountName:          "Ten percent off",
		CouponCode:            "SAVE10",
		DiscountValue:         dec("10"),
		MaxDiscountAmount:     dec("50000"),
		MinRequiredOrderValue: dec("100000"),
		IsActive:              true,
	}
}

func TestEvaluateDiscount(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name         string
		mutate       func(*models.Discount)
		subtotal     decimal.Decimal
		lineCount    int
		customerUses int64
		wantAmount   decimal.Decimal
		wantCode     string
	}{
		{
			name:         "valid discount returns ten percent",
			mutate:       func(d *models.Discount) {},
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: -1,
			wantAmount:   dec("20000"),
		},
		{
			name:         "inactive discount rejected as expired",
			mutate:       func(d *models.Discount) { d.IsActive = false },
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: -1,
			wantCode:     DiscountReasonExpired,
		},
		{
			name:         "valid_until in past rejected even though active",
			mutate:       func(d *models.Discount) { d.ValidUntil = &pastTime },
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: -1,
			wantCode:     DiscountReasonExpired,
		},
		{
			name:         "valid_from in future rejected",
			mutate:       func(d *models.Discount) { d.ValidFrom = &futureTime },
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: -1,
			wantCode:     DiscountReasonExpired,
		},
		{
			name:         "window containing now succeeds",
			mutate:       func(d *models.Discount) { d.ValidFrom = &pastTime; d.ValidUntil = &futureTime },
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: -1,
			wantAmount:   dec("20000"),
		},
		{
			name:         "subtotal below minimum rejected",
			mutate:       func(d *models.Discount) {},
			subtotal:     dec("99999.99"),
			lineCount:    2,
			customerUses: -1,
			wantCode:     DiscountReasonBelowMinimum,
		},
		{
			name:         "subtotal exactly at minimum succeeds",
			mutate:       func(d *models.Discount) {},
			subtotal:     dec("100000"),
			lineCount:    1,
			customerUses: -1,
			wantAmount:   dec("10000"),
		},
		{
			name:         "too few lines rejected",
			mutate:       func(d *models.Discount) { d.MinRequiredProduct = int32Ptr(3) },
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: -1,
			wantCode:     DiscountReasonTooFewItems,
		},
		{
			name:         "line count at floor succeeds",
			mutate:       func(d *models.Discount) { d.MinRequiredProduct = int32Ptr(3) },
			subtotal:     dec("200000"),
			lineCount:    3,
			customerUses: -1,
			wantAmount:   dec("20000"),
		},
		{
			name:         "global cap exhausted rejected",
			mutate:       func(d *models.Discount) { d.MaxUses = int32Ptr(5); d.CurrentUses = 5 },
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: -1,
			wantCode:     DiscountReasonGloballyExhausted,
		},
		{
			name:         "global cap with room succeeds",
			mutate:       func(d *models.Discount) { d.MaxUses = int32Ptr(5); d.CurrentUses = 4 },
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: -1,
			wantAmount:   dec("20000"),
		},
		{
			name:         "per-customer cap exhausted rejected",
			mutate:       func(d *models.Discount) { d.MaxUsesPerCustomer = int32Ptr(2) },
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: 2,
			wantCode:     DiscountReasonCustomerExhausted,
		},
		{
			name:         "per-customer cap skipped without customer",
			mutate:       func(d *models.Discount) { d.MaxUsesPerCustomer = int32Ptr(2) },
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: -1,
			wantAmount:   dec("20000"),
		},
		{
			name:         "amount capped at max_discount_amount",
			mutate:       func(d *models.Discount) { d.MaxDiscountAmount = dec("15000") },
			subtotal:     dec("200000"),
			lineCount:    2,
			customerUses: -1,
			wantAmount:   dec("15000"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := baseDiscount()
			tt.mutate(&d)

			amount, rej := evaluateDiscount(&d, tt.subtotal, tt.lineCount, tt.customerUses, fixedNow)

			if tt.wantCode != "" {
				require.NotNil(t, rej)
				assert.Equal(t, tt.wantCode, rej.Code)
				assert.True(t, amount.IsZero())
				return
			}

			require.Nil(t, rej)
			assert.True(t, tt.wantAmount.Equal(amount),
				"expected amount %s, got %s", tt.wantAmount, amount)
		})
	}
}

func TestHeldAdjustedUses(t *testing.T) {
	assert.Equal(t, int32(0), heldAdjustedUses(1, true))
	assert.Equal(t, int32(4), heldAdjustedUses(5, true))
	assert.Equal(t, int32(5), heldAdjustedUses(5, false))
	assert.Equal(t, int32(0), heldAdjustedUses(0, true))
	assert.Equal(t, int32(0), heldAdjustedUses(0, false))
}

// An order that already consumed the last use of a coupon must be able to
// keep that coupon when its items are replaced: the cap is judged against the
// other orders' consumption, not its own recorded use.
func TestHeldCouponPassesGlobalCapAtBoundary(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	d := baseDiscount()
	d.MaxUses = int32Ptr(1)
	d.CurrentUses = 1

	// A fresh order sees the cap exhausted.
	_, rej := evaluateDiscount(&d, dec("200000"), 2, -1, fixedNow)
	require.NotNil(t, rej)
	assert.Equal(t, DiscountReasonGloballyExhausted, rej.Code)

	// The order holding the use re-validates against current_uses minus one.
	d.CurrentUses = heldAdjustedUses(d.CurrentUses, true)
	amount, rej := evaluateDiscount(&d, dec("200000"), 2, -1, fixedNow)
	require.Nil(t, rej)
	assert.True(t, dec("20000").Equal(amount), "got %s", amount)
}

func TestCouponAmountBankersRounding(t *testing.T) {
	d := baseDiscount()
	d.MinRequiredOrderValue = decimal.Zero

	// 10% of 101.25 is 10.125; banker's rounding lands on the even cent.
	amount, rej := evaluateDiscount(&d, dec("101.25"), 1, -1, time.Now())
	require.Nil(t, rej)
	assert.True(t, dec("10.12").Equal(amount), "got %s", amount)

	// 10% of 101.35 is 10.135, rounding up to the even cent.
	amount, rej = evaluateDiscount(&d, dec("101.35"), 1, -1, time.Now())
	require.Nil(t, rej)
	assert.True(t, dec("10.14").Equal(amount), "got %s", amount)
}
