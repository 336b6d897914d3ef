package handler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakery-system/internal/database/models"
)

func TestSumLinesExactDecimal(t *testing.T) {
	lines := []PricedLine{
		{Quantity: 3, UnitPrice: dec("35000.50"), LineTotal: dec("35000.50").Mul(decimal.NewFromInt(3))},
		{Quantity: 2, UnitPrice: dec("12000.25"), LineTotal: dec("12000.25").Mul(decimal.NewFromInt(2))},
		{Quantity: 1, UnitPrice: dec("0.10"), LineTotal: dec("0.10")},
	}

	subtotal := sumLines(lines)
	assert.True(t, dec("129002.10").Equal(subtotal), "got %s", subtotal)
}

func TestMembershipDiscount(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-time.Hour)
	futureTime := fixedNow.Add(time.Hour)
	subtotal := dec("200000")

	tests := []struct {
		name string
		tier *models.MembershipTier
		want decimal.Decimal
	}{
		{
			name: "no tier gives zero",
			tier: nil,
			want: decimal.Zero,
		},
		{
			name: "active tier gives flat percentage",
			tier: &models.MembershipTier{DiscountValue: dec("5"), IsActive: true},
			want: dec("10000"),
		},
		{
			name: "inactive tier gives zero",
			tier: &models.MembershipTier{DiscountValue: dec("5"), IsActive: false},
			want: decimal.Zero,
		},
		{
			name: "expired tier gives zero",
			tier: &models.MembershipTier{DiscountValue: dec("5"), IsActive: true, ValidUntil: &pastTime},
			want: decimal.Zero,
		},
		{
			name: "unexpired tier gives flat percentage",
			tier: &models.MembershipTier{DiscountValue: dec("5"), IsActive: true, ValidUntil: &futureTime},
			want: dec("10000"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := membershipDiscount(tt.tier, subtotal, fixedNow)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestTotalAfterDiscountsNeverNegative(t *testing.T) {
	subtotal := dec("50000")
	coupons := []AppliedCoupon{
		{DiscountID: 1, Amount: dec("30000")},
		{DiscountID: 2, Amount: dec("40000")},
	}

	total := totalAfterDiscounts(subtotal, dec("10000"), coupons)
	assert.True(t, total.IsZero(), "got %s", total)
}

func TestTotalAfterDiscountsExact(t *testing.T) {
	subtotal := dec("200000")
	coupons := []AppliedCoupon{
		{DiscountID: 1, Amount: dec("20000")},
		{DiscountID: 2, Amount: dec("15000")},
	}

	total := totalAfterDiscounts(subtotal, dec("10000"), coupons)
	assert.True(t, dec("155000").Equal(total), "got %s", total)
}

func TestCouponSummationCommutative(t *testing.T) {
	subtotal := dec("300000")
	membership := dec("15000")

	a := []AppliedCoupon{
		{DiscountID: 1, Amount: dec("30000")},
		{DiscountID: 2, Amount: dec("12345.67")},
		{DiscountID: 3, Amount: dec("0.01")},
	}
	b := []AppliedCoupon{a[2], a[0], a[1]}

	totalA := totalAfterDiscounts(subtotal, membership, a)
	totalB := totalAfterDiscounts(subtotal, membership, b)
	require.True(t, totalA.Equal(totalB), "order of coupons changed the total: %s vs %s", totalA, totalB)
}

func TestRepeatedRecomputationNoDrift(t *testing.T) {
	// Recomputing the same pricing many times must be bit-stable; decimal
	// arithmetic has no float drift to accumulate.
	subtotal := dec("99999.99")
	coupons := []AppliedCoupon{{DiscountID: 1, Amount: dec("3333.33")}}

	first := totalAfterDiscounts(subtotal, dec("4999.99"), coupons)
	for i := 0; i < 1000; i++ {
		again := totalAfterDiscounts(subtotal, dec("4999.99"), coupons)
		require.True(t, first.Equal(again))
	}
}
