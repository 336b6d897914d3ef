package handler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bakery-system/internal/database/models"
	"bakery-system/internal/utils"
)

// Rejection reason codes for coupon validation, surfaced verbatim by the
// validate-discounts endpoint.
const (
	DiscountReasonNotFound          = "NOT_FOUND"
	DiscountReasonExpired           = "EXPIRED"
	DiscountReasonBelowMinimum      = "BELOW_MINIMUM"
	DiscountReasonTooFewItems       = "TOO_FEW_ITEMS"
	DiscountReasonGloballyExhausted = "GLOBALLY_EXHAUSTED"
	DiscountReasonCustomerExhausted = "PER_CUSTOMER_EXHAUSTED"
)

type DiscountRejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// couponAmount computes the coupon value off the pre-discount subtotal, capped
// at the coupon's max amount and rounded to the smallest currency unit.
func couponAmount(d *models.Discount, subtotal decimal.Decimal) decimal.Decimal {
	amount := utils.PercentOf(subtotal, d.DiscountValue)
	if amount.GreaterThan(d.MaxDiscountAmount) {
		amount = d.MaxDiscountAmount
	}
	return amount
}

// heldAdjustedUses returns the usage count the global cap is judged against.
// An order editing itself already holds one of the recorded uses, so that use
// is not counted against it again.
func heldAdjustedUses(current int32, held bool) int32 {
	if held && current > 0 {
		return current - 1
	}
	return current
}

// evaluateDiscount runs the coupon rule checks in order, short-circuiting on
// the first failure, and returns the capped amount on success. customerUses is
// the count of the customer's non-cancelled orders already carrying this
// discount; pass -1 when the order has no customer attached, which skips the
// per-customer cap. Read-only: incrementing current_uses belongs to the
// order-creation transaction.
func evaluateDiscount(d *models.Discount, subtotal decimal.Decimal, lineCount int, customerUses int64, now time.Time) (decimal.Decimal, *DiscountRejection) {
	if !d.IsActive {
		return decimal.Zero, &DiscountRejection{
			Code:    DiscountReasonExpired,
			Message: fmt.Sprintf("Discount %s is not active", d.CouponCode),
		}
	}
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return decimal.Zero, &DiscountRejection{
			Code:    DiscountReasonExpired,
			Message: fmt.Sprintf("Discount %s is not valid until %s", d.CouponCode, d.ValidFrom.Format("2006-01-02 15:04:05")),
		}
	}
	if d.ValidUntil != nil && now.After(*d.ValidUntil) {
		return decimal.Zero, &DiscountRejection{
			Code:    DiscountReasonExpired,
			Message: fmt.Sprintf("Discount %s expired on %s", d.CouponCode, d.ValidUntil.Format("2006-01-02 15:04:05")),
		}
	}

	if subtotal.LessThan(d.MinRequiredOrderValue) {
		return decimal.Zero, &DiscountRejection{
			Code:    DiscountReasonBelowMinimum,
			Message: fmt.Sprintf("Order subtotal %s is below the required minimum %s", subtotal.StringFixed(2), d.MinRequiredOrderValue.StringFixed(2)),
		}
	}

	if d.MinRequiredProduct != nil && int32(lineCount) < *d.MinRequiredProduct {
		return decimal.Zero, &DiscountRejection{
			Code:    DiscountReasonTooFewItems,
			Message: fmt.Sprintf("Discount %s requires at least %d order lines", d.CouponCode, *d.MinRequiredProduct),
		}
	}

	if d.MaxUses != nil && d.CurrentUses >= *d.MaxUses {
		return decimal.Zero, &DiscountRejection{
			Code:    DiscountReasonGloballyExhausted,
			Message: fmt.Sprintf("Discount %s has reached its usage limit", d.CouponCode),
		}
	}

	if customerUses >= 0 && d.MaxUsesPerCustomer != nil && customerUses >= int64(*d.MaxUsesPerCustomer) {
		return decimal.Zero, &DiscountRejection{
			Code:    DiscountReasonCustomerExhausted,
			Message: fmt.Sprintf("Discount %s has reached its per-customer usage limit", d.CouponCode),
		}
	}

	return couponAmount(d, subtotal), nil
}

// rejectionError maps a rejection to the error taxonomy: exhausted caps are
// conflicts, everything else is a validation failure.
func rejectionError(rej *DiscountRejection) *RequestError {
	switch rej.Code {
	case DiscountReasonGloballyExhausted, DiscountReasonCustomerExhausted:
		return conflictError(rej.Message)
	default:
		return invalidError(rej.Message)
	}
}
