package handler

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakery-system/internal/database/models"
	"bakery-system/internal/services/payment/vnpay"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCashChange(t *testing.T) {
	tests := []struct {
		name       string
		amountPaid decimal.Decimal
		finalTotal decimal.Decimal
		wantChange decimal.Decimal
		wantErr    bool
	}{
		{
			name:       "overpayment returns change",
			amountPaid: dec("100000"),
			finalTotal: dec("80000"),
			wantChange: dec("20000"),
		},
		{
			name:       "exact payment returns zero change",
			amountPaid: dec("80000"),
			finalTotal: dec("80000"),
			wantChange: decimal.Zero,
		},
		{
			name:       "insufficient payment rejected",
			amountPaid: dec("50000"),
			finalTotal: dec("80000"),
			wantErr:    true,
		},
		{
			name:       "short by one smallest unit rejected",
			amountPaid: dec("79999.99"),
			finalTotal: dec("80000"),
			wantErr:    true,
		},
		{
			name:       "zero total accepts zero payment",
			amountPaid: decimal.Zero,
			finalTotal: decimal.Zero,
			wantChange: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, err := cashChange(tt.amountPaid, tt.finalTotal)

			if tt.wantErr {
				require.ErrorIs(t, err, errInsufficientPayment)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.wantChange.Equal(change),
				"expected change %s, got %s", tt.wantChange, change)
			assert.False(t, change.IsNegative())
		})
	}
}

func TestSettleOutcome(t *testing.T) {
	tests := []struct {
		name          string
		currentStatus string
		success       bool
		orderStatus   string
		want          gatewaySettlement
	}{
		{
			name:        "first successful settlement completes the order",
			success:     true,
			orderStatus: models.OrderStatusProcessing,
			want: gatewaySettlement{
				PaymentStatus: models.PaymentStatusPaid,
				RspCode:       vnpay.RspCodeSuccess,
				Message:       "Confirm success",
				CompleteOrder: true,
				FirstSettle:   true,
			},
		},
		{
			name:          "success redelivered after settlement answers already confirmed",
			currentStatus: models.PaymentStatusPaid,
			success:       true,
			orderStatus:   models.OrderStatusCompleted,
			want: gatewaySettlement{
				PaymentStatus: models.PaymentStatusPaid,
				RspCode:       vnpay.RspCodeAlreadyConfirmed,
				Message:       "Order already confirmed",
				CompleteOrder: false,
				FirstSettle:   false,
			},
		},
		{
			name:        "failed attempt records a cancelled payment",
			success:     false,
			orderStatus: models.OrderStatusProcessing,
			want: gatewaySettlement{
				PaymentStatus: models.PaymentStatusCancelled,
				RspCode:       vnpay.RspCodeSuccess,
				Message:       "Confirm success",
			},
		},
		{
			name:          "retry after failure settles on the same row",
			currentStatus: models.PaymentStatusCancelled,
			success:       true,
			orderStatus:   models.OrderStatusProcessing,
			want: gatewaySettlement{
				PaymentStatus: models.PaymentStatusPaid,
				RspCode:       vnpay.RspCodeSuccess,
				Message:       "Confirm success",
				CompleteOrder: true,
				FirstSettle:   true,
			},
		},
		{
			name:          "failure redelivered after settlement keeps last outcome",
			currentStatus: models.PaymentStatusPaid,
			success:       false,
			orderStatus:   models.OrderStatusCompleted,
			want: gatewaySettlement{
				PaymentStatus: models.PaymentStatusCancelled,
				RspCode:       vnpay.RspCodeSuccess,
				Message:       "Confirm success",
			},
		},
		{
			name:        "success on a cancelled order records the payment without completing",
			success:     true,
			orderStatus: models.OrderStatusCancelled,
			want: gatewaySettlement{
				PaymentStatus: models.PaymentStatusPaid,
				RspCode:       vnpay.RspCodeSuccess,
				Message:       "Confirm success",
				CompleteOrder: false,
				FirstSettle:   true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := settleOutcome(tt.currentStatus, tt.success, tt.orderStatus)
			assert.Equal(t, tt.want, got)
		})
	}
}
