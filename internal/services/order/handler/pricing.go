package handler

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bakery-system/internal/database/models"
	"bakery-system/internal/utils"
)

type OrderItemInput struct {
	ProductPriceID int64 `json:"product_price_id" binding:"required"`
	Quantity       int32 `json:"quantity" binding:"required,min=1"`
}

type PricedLine struct {
	ProductPriceID int64           `json:"product_price_id"`
	ProductName    string          `json:"product_name"`
	SizeName       string          `json:"size_name"`
	Quantity       int32           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

type AppliedCoupon struct {
	DiscountID int32           `json:"discount_id"`
	CouponCode string          `json:"coupon_code"`
	Amount     decimal.Decimal `json:"amount"`
}

type PricingResult struct {
	Lines              []PricedLine    `json:"lines"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	MembershipDiscount decimal.Decimal `json:"membership_discount"`
	Coupons            []AppliedCoupon `json:"coupons"`
	FinalTotal         decimal.Decimal `json:"final_total"`
}

// membershipDiscount returns the tier's flat percentage off the subtotal, or
// zero when no tier is attached, the tier is inactive, or it has expired.
// Unlike coupons the tier discount is uncapped.
func membershipDiscount(tier *models.MembershipTier, subtotal decimal.Decimal, now time.Time) decimal.Decimal {
	if tier == nil || !tier.IsActive {
		return decimal.Zero
	}
	if tier.ValidUntil != nil && now.After(*tier.ValidUntil) {
		return decimal.Zero
	}
	return utils.PercentOf(subtotal, tier.DiscountValue)
}

func sumLines(lines []PricedLine) decimal.Decimal {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal)
	}
	return subtotal
}

func sumCoupons(coupons []AppliedCoupon) decimal.Decimal {
	total := decimal.Zero
	for _, c := range coupons {
		total = total.Add(c.Amount)
	}
	return total
}

// totalAfterDiscounts floors the final total at zero: the order never goes
// negative no matter how large the accumulated discounts are.
func totalAfterDiscounts(subtotal, membership decimal.Decimal, coupons []AppliedCoupon) decimal.Decimal {
	total := subtotal.Sub(membership).Sub(sumCoupons(coupons))
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// resolveLines resolves each requested price variant against the catalog,
// capturing the unit price and display names at order time. Inactive or
// missing variants reject the whole set.
func (h *OrderHandler) resolveLines(tx *gorm.DB, items []OrderItemInput) ([]PricedLine, *RequestError) {
	lines := make([]PricedLine, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, invalidError("Quantity must be at least 1")
		}

		var price models.ProductPrice
		if err := tx.Where("id = ? AND is_active = ?", item.ProductPriceID, true).
			Preload("Product").
			Preload("Size").
			First(&price).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, invalidError(fmt.Sprintf("Product price %d not found or inactive", item.ProductPriceID))
			}
			return nil, internalError("Database error")
		}

		if price.Product == nil || !price.Product.IsActive {
			return nil, invalidError(fmt.Sprintf("Product for price %d is inactive", item.ProductPriceID))
		}

		sizeName := ""
		if price.Size != nil {
			sizeName = price.Size.SizeName
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		lines = append(lines, PricedLine{
			ProductPriceID: price.ID,
			ProductName:    price.Product.ProductName,
			SizeName:       sizeName,
			Quantity:       item.Quantity,
			UnitPrice:      price.Price,
			LineTotal:      price.Price.Mul(qty),
		})
	}
	return lines, nil
}

// priceOrder runs the full pricing pipeline: resolve lines, apply the
// membership tier first, then validate every requested coupon against the
// ORIGINAL subtotal (membership and coupons are independent percentages off
// the pre-discount subtotal). Coupon application is all-or-nothing: the first
// rejection aborts the whole pricing.
//
// held names the coupons the order being repriced already carries; each is
// judged against the global cap minus its own recorded use, so resending an
// order's coupon on update never trips the cap against itself.
//
// With lock set, discount rows are read FOR UPDATE so the caller's transaction
// can increment current_uses without losing a race against a concurrent order.
func (h *OrderHandler) priceOrder(tx *gorm.DB, items []OrderItemInput, customer *models.Customer, discountIDs []int32, held map[int32]bool, lock bool, now time.Time) (*PricingResult, *RequestError) {
	lines, reqErr := h.resolveLines(tx, items)
	if reqErr != nil {
		return nil, reqErr
	}
	subtotal := sumLines(lines)

	var tier *models.MembershipTier
	if customer != nil {
		tier = customer.MembershipTier
	}
	membership := membershipDiscount(tier, subtotal, now)

	coupons := make([]AppliedCoupon, 0, len(discountIDs))
	for _, id := range discountIDs {
		discount, reqErr := h.findDiscount(tx, id, lock)
		if reqErr != nil {
			return nil, reqErr
		}
		discount.CurrentUses = heldAdjustedUses(discount.CurrentUses, held[discount.ID])

		customerUses := int64(-1)
		if customer != nil {
			uses, err := countCustomerDiscountUses(tx, id, customer.ID)
			if err != nil {
				return nil, internalError("Database error")
			}
			customerUses = uses
		}

		amount, rej := evaluateDiscount(discount, subtotal, len(lines), customerUses, now)
		if rej != nil {
			return nil, rejectionError(rej)
		}

		coupons = append(coupons, AppliedCoupon{
			DiscountID: discount.ID,
			CouponCode: discount.CouponCode,
			Amount:     amount,
		})
	}

	return &PricingResult{
		Lines:              lines,
		Subtotal:           subtotal,
		MembershipDiscount: membership,
		Coupons:            coupons,
		FinalTotal:         totalAfterDiscounts(subtotal, membership, coupons),
	}, nil
}

func (h *OrderHandler) findDiscount(tx *gorm.DB, id int32, lock bool) (*models.Discount, *RequestError) {
	query := tx
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var discount models.Discount
	if err := query.Where("id = ?", id).First(&discount).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, notFoundError(fmt.Sprintf("Discount %d not found", id))
		}
		return nil, internalError("Database error")
	}
	return &discount, nil
}

// countCustomerDiscountUses counts the customer's non-cancelled orders already
// carrying this discount, for the per-customer cap.
func countCustomerDiscountUses(tx *gorm.DB, discountID int32, customerID int64) (int64, error) {
	var count int64
	err := tx.Model(&models.OrderDiscount{}).
		Joins("JOIN orders ON orders.id = order_discounts.order_id").
		Where("order_discounts.discount_id = ? AND orders.customer_id = ? AND orders.status <> ?",
			discountID, customerID, models.OrderStatusCancelled).
		Count(&count).Error
	return count, err
}
