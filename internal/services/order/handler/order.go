package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bakery-system/internal/database/models"
)

const (
	EventOrderCreated   = "order.created"
	EventOrderUpdated   = "order.updated"
	EventOrderCancelled = "order.cancelled"

	discountCacheKey = "catalog:discounts:active"
)

type OrderHandler struct {
	db    *gorm.DB
	redis *redis.Client
	now   func() time.Time
}

func NewOrderHandler(db *gorm.DB, redisClient *redis.Client) *OrderHandler {
	return &OrderHandler{
		db:    db,
		redis: redisClient,
		now:   time.Now,
	}
}

// -- Requests --

type CreateOrderRequest struct {
	EmployeeID  int64            `json:"employee_id" binding:"required"`
	CustomerID  *int64           `json:"customer_id,omitempty"`
	Note        *string          `json:"note,omitempty"`
	OrderItems  []OrderItemInput `json:"order_items" binding:"required,min=1,dive"`
	DiscountIDs []int32          `json:"discount_ids,omitempty"`
}

// UpdateOrderRequest replaces the line-item list wholesale. DiscountIDs is a
// pointer so an omitted field can be told apart from an empty list: omitted
// keeps the previously computed discount amounts untouched (sticky), while a
// supplied list (even empty) re-validates against the new subtotal.
type UpdateOrderRequest struct {
	OrderItems  []OrderItemInput `json:"order_items" binding:"required,min=1,dive"`
	Note        *string          `json:"note,omitempty"`
	DiscountIDs *[]int32         `json:"discount_ids,omitempty"`
}

type ValidateDiscountsRequest struct {
	OrderItems  []OrderItemInput `json:"order_items" binding:"required,min=1,dive"`
	CustomerID  *int64           `json:"customer_id,omitempty"`
	DiscountIDs []int32          `json:"discount_ids" binding:"required,min=1"`
}

type ListOrdersQuery struct {
	Page       int     `form:"page,default=1"`
	PageSize   int     `form:"page_size,default=20"`
	Status     *string `form:"status,omitempty"`
	EmployeeID *int64  `form:"employee_id,omitempty"`
	CustomerID *int64  `form:"customer_id,omitempty"`
}

// orderOpen reports whether an order still accepts mutation. Only PROCESSING
// orders can be updated, cancelled, or settled; COMPLETED and CANCELLED are
// terminal.
func orderOpen(status string) bool {
	return status == models.OrderStatusProcessing
}

// -- Collaborator lookups --

func (h *OrderHandler) findEmployee(tx *gorm.DB, id int64) *RequestError {
	var employee models.Employee
	if err := tx.Where("id = ? AND is_active = ?", id, true).First(&employee).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return notFoundError(fmt.Sprintf("Employee %d not found", id))
		}
		return internalError("Database error")
	}
	return nil
}

func (h *OrderHandler) findCustomer(tx *gorm.DB, id *int64) (*models.Customer, *RequestError) {
	if id == nil {
		return nil, nil
	}
	var customer models.Customer
	if err := tx.Where("id = ?", *id).Preload("MembershipTier").First(&customer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, notFoundError(fmt.Sprintf("Customer %d not found", *id))
		}
		return nil, internalError("Database error")
	}
	return &customer, nil
}

// -- Endpoints --

// CreateOrder prices the cart and persists the order, its lines, its discount
// applications, and the discount usage increments in one transaction. Any
// validation failure aborts with nothing persisted.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request body: "+err.Error()))
		return
	}

	now := h.now()

	tx := h.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if reqErr := h.findEmployee(tx, req.EmployeeID); reqErr != nil {
		tx.Rollback()
		respondError(c, reqErr)
		return
	}

	customer, reqErr := h.findCustomer(tx, req.CustomerID)
	if reqErr != nil {
		tx.Rollback()
		respondError(c, reqErr)
		return
	}

	pricing, reqErr := h.priceOrder(tx, req.OrderItems, customer, req.DiscountIDs, nil, true, now)
	if reqErr != nil {
		tx.Rollback()
		respondError(c, reqErr)
		return
	}

	order := models.Order{
		EmployeeID:         req.EmployeeID,
		CustomerID:         req.CustomerID,
		Status:             models.OrderStatusProcessing,
		Note:               req.Note,
		Subtotal:           pricing.Subtotal,
		MembershipDiscount: pricing.MembershipDiscount,
		FinalTotal:         pricing.FinalTotal,
		OrderDate:          now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to create order"))
		return
	}

	if reqErr := h.insertLines(tx, order.ID, pricing.Lines, now); reqErr != nil {
		tx.Rollback()
		respondError(c, reqErr)
		return
	}

	if reqErr := h.applyCoupons(tx, order.ID, pricing.Coupons, now); reqErr != nil {
		tx.Rollback()
		respondError(c, reqErr)
		return
	}

	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to commit transaction"))
		return
	}

	if len(pricing.Coupons) > 0 {
		// Usage counters moved; the cached coupon list is stale.
		_ = h.redis.Del(c.Request.Context(), discountCacheKey).Err()
	}

	reloaded, reqErr := h.loadOrder(order.ID)
	if reqErr != nil {
		respondError(c, reqErr)
		return
	}

	h.publishOrderEvent(c.Request.Context(), EventOrderCreated, reloaded)

	c.JSON(http.StatusCreated, successResponse("Order created successfully", reloaded))
}

func (h *OrderHandler) insertLines(tx *gorm.DB, orderID int64, lines []PricedLine, now time.Time) *RequestError {
	for _, line := range lines {
		item := models.OrderItem{
			OrderID:        orderID,
			ProductPriceID: line.ProductPriceID,
			ProductName:    line.ProductName,
			SizeName:       line.SizeName,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			LineTotal:      line.LineTotal,
			CreatedAt:      now,
		}
		if err := tx.Create(&item).Error; err != nil {
			return internalError("Failed to create order item")
		}
	}
	return nil
}

// applyCoupons persists the computed amounts and increments each coupon's
// usage counter. The discount rows were read FOR UPDATE during pricing, so the
// increment cannot race a concurrent order past a global cap.
func (h *OrderHandler) applyCoupons(tx *gorm.DB, orderID int64, coupons []AppliedCoupon, now time.Time) *RequestError {
	for _, coupon := range coupons {
		row := models.OrderDiscount{
			OrderID:        orderID,
			DiscountID:     coupon.DiscountID,
			DiscountAmount: coupon.Amount,
			CreatedAt:      now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return internalError("Failed to apply discount")
		}

		if err := tx.Model(&models.Discount{}).
			Where("id = ?", coupon.DiscountID).
			UpdateColumn("current_uses", gorm.Expr("current_uses + 1")).Error; err != nil {
			return internalError("Failed to update discount usage")
		}
	}
	return nil
}

func (h *OrderHandler) loadOrder(id int64) (*models.Order, *RequestError) {
	var order models.Order
	if err := h.db.Where("id = ?", id).
		Preload("OrderItems").
		Preload("OrderDiscounts.Discount").
		Preload("Customer.MembershipTier").
		Preload("Employee").
		Preload("Payments.PaymentMethod").
		First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, notFoundError("Order not found")
		}
		return nil, internalError("Database error")
	}
	return &order, nil
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid order ID"))
		return
	}

	order, reqErr := h.loadOrder(id)
	if reqErr != nil {
		respondError(c, reqErr)
		return
	}

	c.JSON(http.StatusOK, successResponse("Order retrieved successfully", order))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	var query ListOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}
	if query.PageSize <= 0 {
		query.PageSize = 20
	}
	if query.Page <= 0 {
		query.Page = 1
	}

	dbQuery := h.db.Model(&models.Order{})
	if query.Status != nil {
		dbQuery = dbQuery.Where("status = ?", *query.Status)
	}
	if query.EmployeeID != nil {
		dbQuery = dbQuery.Where("employee_id = ?", *query.EmployeeID)
	}
	if query.CustomerID != nil {
		dbQuery = dbQuery.Where("customer_id = ?", *query.CustomerID)
	}

	var total int64
	if err := dbQuery.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Database error counting orders"))
		return
	}

	var orders []models.Order
	offset := (query.Page - 1) * query.PageSize
	if err := dbQuery.
		Preload("OrderItems").
		Preload("OrderDiscounts.Discount").
		Preload("Payments.PaymentMethod").
		Order("orders.id DESC").
		Offset(offset).Limit(query.PageSize).
		Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Database error fetching orders"))
		return
	}

	c.JSON(http.StatusOK, successWithMetaResponse("Orders retrieved successfully", orders, gin.H{
		"page":        query.Page,
		"page_size":   query.PageSize,
		"total_count": total,
	}))
}

// UpdateOrder replaces the order's line items and reprices from scratch while
// the order is still PROCESSING. When the discounts field is omitted, the
// previously computed discount amounts are kept as-is even though the subtotal
// may have shifted; only a supplied list triggers re-validation.
func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid order ID"))
		return
	}

	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request body: "+err.Error()))
		return
	}

	now := h.now()

	tx := h.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var order models.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&order).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Order not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}

	if !orderOpen(order.Status) {
		tx.Rollback()
		c.JSON(http.StatusConflict, errorResponse(fmt.Sprintf("Order is %s and can no longer be updated", order.Status)))
		return
	}

	customer, reqErr := h.findCustomer(tx, order.CustomerID)
	if reqErr != nil {
		tx.Rollback()
		respondError(c, reqErr)
		return
	}

	if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to replace order items"))
		return
	}

	var pricing *PricingResult
	if req.DiscountIDs == nil {
		// Sticky discounts: keep existing amounts, reprice lines only.
		lines, reqErr := h.resolveLines(tx, req.OrderItems)
		if reqErr != nil {
			tx.Rollback()
			respondError(c, reqErr)
			return
		}
		subtotal := sumLines(lines)

		var tier *models.MembershipTier
		if customer != nil {
			tier = customer.MembershipTier
		}
		membership := membershipDiscount(tier, subtotal, now)

		var existing []models.OrderDiscount
		if err := tx.Where("order_id = ?", order.ID).Find(&existing).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
			return
		}
		kept := make([]AppliedCoupon, len(existing))
		for i, row := range existing {
			kept[i] = AppliedCoupon{DiscountID: row.DiscountID, Amount: row.DiscountAmount}
		}

		pricing = &PricingResult{
			Lines:              lines,
			Subtotal:           subtotal,
			MembershipDiscount: membership,
			Coupons:            kept,
			FinalTotal:         totalAfterDiscounts(subtotal, membership, kept),
		}
	} else {
		// previous names the coupons this order already holds: they are
		// exempted from the global cap during repricing and their usage
		// counters are not advanced a second time.
		previous := make(map[int32]bool)
		var existing []models.OrderDiscount
		if err := tx.Where("order_id = ?", order.ID).Find(&existing).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
			return
		}
		for _, row := range existing {
			previous[row.DiscountID] = true
		}

		if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderDiscount{}).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, errorResponse("Failed to replace order discounts"))
			return
		}

		pricing, reqErr = h.priceOrder(tx, req.OrderItems, customer, *req.DiscountIDs, previous, true, now)
		if reqErr != nil {
			tx.Rollback()
			respondError(c, reqErr)
			return
		}

		// Usage counters only advance for coupons newly attached to this order.
		fresh := make([]AppliedCoupon, 0, len(pricing.Coupons))
		carried := make([]AppliedCoupon, 0, len(pricing.Coupons))
		for _, coupon := range pricing.Coupons {
			if previous[coupon.DiscountID] {
				carried = append(carried, coupon)
			} else {
				fresh = append(fresh, coupon)
			}
		}
		if reqErr := h.applyCoupons(tx, order.ID, fresh, now); reqErr != nil {
			tx.Rollback()
			respondError(c, reqErr)
			return
		}
		for _, coupon := range carried {
			row := models.OrderDiscount{
				OrderID:        order.ID,
				DiscountID:     coupon.DiscountID,
				DiscountAmount: coupon.Amount,
				CreatedAt:      now,
			}
			if err := tx.Create(&row).Error; err != nil {
				tx.Rollback()
				c.JSON(http.StatusInternalServerError, errorResponse("Failed to apply discount"))
				return
			}
		}
	}

	if reqErr := h.insertLines(tx, order.ID, pricing.Lines, now); reqErr != nil {
		tx.Rollback()
		respondError(c, reqErr)
		return
	}

	order.Subtotal = pricing.Subtotal
	order.MembershipDiscount = pricing.MembershipDiscount
	order.FinalTotal = pricing.FinalTotal
	if req.Note != nil {
		order.Note = req.Note
	}
	order.UpdatedAt = now

	if err := tx.Save(&order).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to update order totals"))
		return
	}

	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to commit transaction"))
		return
	}

	if req.DiscountIDs != nil {
		_ = h.redis.Del(c.Request.Context(), discountCacheKey).Err()
	}

	reloaded, reqErr := h.loadOrder(order.ID)
	if reqErr != nil {
		respondError(c, reqErr)
		return
	}

	h.publishOrderEvent(c.Request.Context(), EventOrderUpdated, reloaded)

	c.JSON(http.StatusOK, successResponse("Order updated successfully", reloaded))
}

// CancelOrder moves PROCESSING to CANCELLED. Terminal orders are rejected, so
// a second cancel fails where the first succeeded.
//
// Cancelled orders keep their coupons' current_uses increments; only the
// per-customer cap ignores cancelled orders when counting.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid order ID"))
		return
	}

	tx := h.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var order models.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&order).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Order not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}

	if !orderOpen(order.Status) {
		tx.Rollback()
		c.JSON(http.StatusConflict, errorResponse(fmt.Sprintf("Order is already %s", order.Status)))
		return
	}

	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = h.now()
	if err := tx.Save(&order).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to cancel order"))
		return
	}

	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to commit transaction"))
		return
	}

	h.publishOrderEvent(c.Request.Context(), EventOrderCancelled, &order)

	c.JSON(http.StatusOK, successResponse("Order cancelled successfully", order))
}

// DeleteOrder hard-deletes the order and everything it owns, payments
// included. Deliberately not state-gated: even COMPLETED orders are deletable.
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid order ID"))
		return
	}

	tx := h.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var order models.Order
	if err := tx.Where("id = ?", id).First(&order).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Order not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}

	for _, model := range []interface{}{&models.Payment{}, &models.OrderDiscount{}, &models.OrderItem{}} {
		if err := tx.Where("order_id = ?", order.ID).Delete(model).Error; err != nil {
			tx.Rollback()
			c.JSON(http.StatusInternalServerError, errorResponse("Failed to delete order"))
			return
		}
	}
	if err := tx.Delete(&order).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to delete order"))
		return
	}

	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to commit transaction"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Order deleted successfully", nil))
}

type DiscountQuote struct {
	DiscountID int32              `json:"discount_id"`
	Valid      bool               `json:"valid"`
	Amount     decimal.Decimal    `json:"amount"`
	Rejection  *DiscountRejection `json:"rejection,omitempty"`
}

// ValidateDiscounts is the pure quote endpoint: it prices the cart and reports
// each requested discount's applicability without persisting anything or
// advancing usage counters. Results may be stale by the time the order is
// placed; order creation re-validates under lock.
func (h *OrderHandler) ValidateDiscounts(c *gin.Context) {
	var req ValidateDiscountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request body: "+err.Error()))
		return
	}

	now := h.now()

	customer, reqErr := h.findCustomer(h.db, req.CustomerID)
	if reqErr != nil {
		respondError(c, reqErr)
		return
	}

	lines, reqErr := h.resolveLines(h.db, req.OrderItems)
	if reqErr != nil {
		respondError(c, reqErr)
		return
	}
	subtotal := sumLines(lines)

	quotes := make([]DiscountQuote, 0, len(req.DiscountIDs))
	for _, id := range req.DiscountIDs {
		var discount models.Discount
		if err := h.db.Where("id = ?", id).First(&discount).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				quotes = append(quotes, DiscountQuote{
					DiscountID: id,
					Valid:      false,
					Amount:     decimal.Zero,
					Rejection: &DiscountRejection{
						Code:    DiscountReasonNotFound,
						Message: fmt.Sprintf("Discount %d does not exist", id),
					},
				})
				continue
			}
			c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
			return
		}

		customerUses := int64(-1)
		if customer != nil {
			uses, err := countCustomerDiscountUses(h.db, id, customer.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
				return
			}
			customerUses = uses
		}

		amount, rej := evaluateDiscount(&discount, subtotal, len(lines), customerUses, now)
		quotes = append(quotes, DiscountQuote{
			DiscountID: id,
			Valid:      rej == nil,
			Amount:     amount,
			Rejection:  rej,
		})
	}

	c.JSON(http.StatusOK, successResponse("Discounts validated", gin.H{
		"subtotal":  subtotal,
		"discounts": quotes,
	}))
}

// -- Pub/Sub Related --

type OrderEvent struct {
	EventType  string          `json:"event_type"`
	OrderID    int64           `json:"order_id"`
	EmployeeID int64           `json:"employee_id"`
	Status     string          `json:"status"`
	FinalTotal decimal.Decimal `json:"final_total"`
	Timestamp  time.Time       `json:"timestamp"`
	OrderData  *models.Order   `json:"order_data,omitempty"`
}

func (h *OrderHandler) publishOrderEvent(ctx context.Context, eventType string, order *models.Order) {
	event := OrderEvent{
		EventType:  eventType,
		OrderID:    order.ID,
		EmployeeID: order.EmployeeID,
		Status:     order.Status,
		FinalTotal: order.FinalTotal,
		Timestamp:  h.now(),
		OrderData:  order,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal order event: %v", err)
		return
	}

	channel := fmt.Sprintf("pos:events:%s", eventType)
	if err := h.redis.Publish(ctx, channel, eventJSON).Err(); err != nil {
		log.Printf("failed to publish order event: %v", err)
	}
	if err := h.redis.Publish(ctx, "pos:events:all", eventJSON).Err(); err != nil {
		log.Printf("failed to publish order event to all channel: %v", err)
	}
}
