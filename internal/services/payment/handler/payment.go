package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bakery-system/internal/database/models"
	"bakery-system/internal/services/payment/vnpay"
	"bakery-system/internal/utils"
)

const (
	EventPaymentProcessed = "payment.processed"
	EventInvoiceRequested = "invoice.requested"
)

var errInsufficientPayment = fmt.Errorf("paid amount is below the order total")

type PaymentHandler struct {
	db      *gorm.DB
	redis   *redis.Client
	gateway *vnpay.Gateway
	now     func() time.Time
}

func NewPaymentHandler(db *gorm.DB, redisClient *redis.Client, gateway *vnpay.Gateway) *PaymentHandler {
	return &PaymentHandler{
		db:      db,
		redis:   redisClient,
		gateway: gateway,
		now:     time.Now,
	}
}

// -- Requests --

type CashPaymentRequest struct {
	OrderID    int64  `json:"order_id" binding:"required"`
	AmountPaid string `json:"amount_paid" binding:"required"`
}

type VNPayCreateRequest struct {
	OrderID   int64   `json:"order_id" binding:"required"`
	ReturnURL *string `json:"return_url,omitempty"`
}

// cashChange computes the change owed for a cash settlement. Insufficient
// payments are rejected before anything is persisted.
func cashChange(amountPaid, finalTotal decimal.Decimal) (decimal.Decimal, error) {
	if amountPaid.LessThan(finalTotal) {
		return decimal.Zero, errInsufficientPayment
	}
	return amountPaid.Sub(finalTotal), nil
}

// CreateCashPayment settles an order in cash: single round trip, no
// suspension. The payment is persisted PAID and the order completed in one
// transaction.
func (h *PaymentHandler) CreateCashPayment(c *gin.Context) {
	var req CashPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request body: "+err.Error()))
		return
	}

	amountPaid, err := utils.ParseMoney(req.AmountPaid)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorResponse("Invalid paid amount format"))
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
		Where("id = ?", req.OrderID).First(&order).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Order not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}

	if order.Status != models.OrderStatusProcessing {
		tx.Rollback()
		c.JSON(http.StatusConflict, errorResponse(fmt.Sprintf("Order is already %s", order.Status)))
		return
	}

	change, err := cashChange(amountPaid, order.FinalTotal)
	if err != nil {
		tx.Rollback()
		c.JSON(http.StatusUnprocessableEntity, errorResponse("Insufficient payment amount"))
		return
	}

	payment := models.Payment{
		OrderID:         order.ID,
		PaymentMethodID: models.PaymentMethodCashID,
		AmountPaid:      amountPaid,
		ChangeAmount:    change,
		Status:          models.PaymentStatusPaid,
		PaymentTime:     &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Create(&payment).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to create payment"))
		return
	}

	order.Status = models.OrderStatusCompleted
	order.UpdatedAt = now
	if err := tx.Save(&order).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to update order"))
		return
	}

	if err := tx.Commit().Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Failed to commit transaction"))
		return
	}

	h.publishPaymentEvent(c.Request.Context(), &payment, &order)
	h.requestInvoice(c.Request.Context(), &order, &payment)

	c.JSON(http.StatusCreated, successResponse("Payment processed successfully", gin.H{
		"payment":       payment,
		"change_amount": change,
	}))
}

// CreateVNPayRedirect builds the signed gateway URL for an order. No payment
// row exists until the gateway calls back.
func (h *PaymentHandler) CreateVNPayRedirect(c *gin.Context) {
	var req VNPayCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request body: "+err.Error()))
		return
	}

	if !h.gateway.Enabled() {
		c.JSON(http.StatusServiceUnavailable, errorResponse("Payment gateway is unavailable"))
		return
	}

	var order models.Order
	if err := h.db.Where("id = ?", req.OrderID).First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Order not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}

	if order.Status != models.OrderStatusProcessing {
		c.JSON(http.StatusConflict, errorResponse(fmt.Sprintf("Order is already %s", order.Status)))
		return
	}

	if !order.FinalTotal.IsPositive() {
		c.JSON(http.StatusUnprocessableEntity, errorResponse("Order total must be greater than zero"))
		return
	}

	returnURL := ""
	if req.ReturnURL != nil {
		returnURL = *req.ReturnURL
	}

	payURL, txnRef, err := h.gateway.BuildPaymentURL(vnpay.PaymentRequest{
		OrderID:   order.ID,
		Amount:    order.FinalTotal,
		ClientIP:  c.ClientIP(),
		ReturnURL: returnURL,
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse("Payment gateway is unavailable"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Payment URL created", gin.H{
		"payment_url": payURL,
		"txn_ref":     txnRef,
	}))
}

// reconcileOutcome carries the gateway-facing response code plus the applied
// state, shared by the callback and webhook transports.
type reconcileOutcome struct {
	RspCode string
	Message string
	OrderID int64
	Payment *models.Payment
	Order   *models.Order
	// FirstSettle is true when this delivery flipped the payment to PAID for
	// the first time; only then is the invoice requested.
	FirstSettle bool
}

// gatewaySettlement is the decision part of reconciliation: what the payment
// row becomes, whether the order completes, and how the gateway is answered.
type gatewaySettlement struct {
	PaymentStatus string
	RspCode       string
	Message       string
	CompleteOrder bool
	FirstSettle   bool
}

// settleOutcome keeps redelivered gateway events idempotent. The payment row
// always reflects the last processed outcome; a success redelivered after
// settlement answers ALREADY_CONFIRMED; only the first successful settlement
// completes the order and fires the follow-up events. currentStatus is the
// existing payment row's status, empty when no row exists yet.
func settleOutcome(currentStatus string, success bool, orderStatus string) gatewaySettlement {
	alreadyPaid := currentStatus == models.PaymentStatusPaid

	s := gatewaySettlement{
		PaymentStatus: models.PaymentStatusCancelled,
		RspCode:       vnpay.RspCodeSuccess,
		Message:       "Confirm success",
	}
	if success {
		s.PaymentStatus = models.PaymentStatusPaid
		s.CompleteOrder = orderStatus == models.OrderStatusProcessing
		s.FirstSettle = !alreadyPaid
	}
	if success && alreadyPaid {
		s.RspCode = vnpay.RspCodeAlreadyConfirmed
		s.Message = "Order already confirmed"
	}
	return s
}

// reconcileGateway is the single reconciliation function behind both the
// browser callback and the server webhook. Signature verification happens
// before any state change; the payment row is upserted by (order, method) so
// racing deliveries of the same logical event never produce two rows, and the
// row always reflects the last processed outcome.
func (h *PaymentHandler) reconcileGateway(ctx context.Context, values url.Values) reconcileOutcome {
	if !h.gateway.VerifySignature(values) {
		return reconcileOutcome{RspCode: vnpay.RspCodeInvalidSignature, Message: "Invalid signature"}
	}

	cb, err := vnpay.ParseCallback(values)
	if err != nil {
		return reconcileOutcome{RspCode: vnpay.RspCodeOrderNotFound, Message: "Order not found"}
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
		Where("id = ?", cb.OrderID).First(&order).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return reconcileOutcome{RspCode: vnpay.RspCodeOrderNotFound, Message: "Order not found", OrderID: cb.OrderID}
		}
		return reconcileOutcome{RspCode: vnpay.RspCodeUnknownError, Message: "Database error", OrderID: cb.OrderID}
	}

	if !cb.Amount.Equal(order.FinalTotal) {
		tx.Rollback()
		return reconcileOutcome{RspCode: vnpay.RspCodeInvalidAmount, Message: "Invalid amount", OrderID: order.ID}
	}

	var payment models.Payment
	currentStatus := ""
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ? AND payment_method_id = ?", order.ID, models.PaymentMethodVNPayID).
		First(&payment).Error
	switch {
	case err == nil:
		currentStatus = payment.Status
	case err == gorm.ErrRecordNotFound:
		payment = models.Payment{
			OrderID:         order.ID,
			PaymentMethodID: models.PaymentMethodVNPayID,
			CreatedAt:       now,
		}
	default:
		tx.Rollback()
		return reconcileOutcome{RspCode: vnpay.RspCodeUnknownError, Message: "Database error", OrderID: order.ID}
	}

	settle := settleOutcome(currentStatus, cb.Success, order.Status)

	payment.TransactionRef = &cb.TxnRef
	if cb.TransactionNo != "" {
		payment.GatewayTransactionNo = &cb.TransactionNo
	}
	if cb.BankCode != "" {
		payment.BankCode = &cb.BankCode
	}
	payment.AmountPaid = cb.Amount
	payment.ChangeAmount = decimal.Zero
	payment.UpdatedAt = now
	payment.Status = settle.PaymentStatus
	if settle.PaymentStatus == models.PaymentStatusPaid {
		payment.PaymentTime = &now
	}

	if err := tx.Save(&payment).Error; err != nil {
		tx.Rollback()
		return reconcileOutcome{RspCode: vnpay.RspCodeUnknownError, Message: "Failed to record payment", OrderID: order.ID}
	}

	if settle.CompleteOrder {
		order.Status = models.OrderStatusCompleted
		order.UpdatedAt = now
		if err := tx.Save(&order).Error; err != nil {
			tx.Rollback()
			return reconcileOutcome{RspCode: vnpay.RspCodeUnknownError, Message: "Failed to update order", OrderID: order.ID}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return reconcileOutcome{RspCode: vnpay.RspCodeUnknownError, Message: "Failed to commit transaction", OrderID: order.ID}
	}

	return reconcileOutcome{
		RspCode:     settle.RspCode,
		Message:     settle.Message,
		OrderID:     order.ID,
		Payment:     &payment,
		Order:       &order,
		FirstSettle: settle.FirstSettle,
	}
}

// VNPayCallback handles the user-facing browser redirect. Same reconciliation
// as the webhook, different response shape.
func (h *PaymentHandler) VNPayCallback(c *gin.Context) {
	outcome := h.reconcileGateway(c.Request.Context(), c.Request.URL.Query())

	if outcome.FirstSettle {
		h.publishPaymentEvent(c.Request.Context(), outcome.Payment, outcome.Order)
		h.requestInvoice(c.Request.Context(), outcome.Order, outcome.Payment)
	}

	settled := outcome.RspCode == vnpay.RspCodeSuccess || outcome.RspCode == vnpay.RspCodeAlreadyConfirmed
	paid := settled && outcome.Payment != nil && outcome.Payment.Status == models.PaymentStatusPaid

	status := http.StatusOK
	if !settled {
		status = http.StatusUnprocessableEntity
	}

	c.JSON(status, gin.H{
		"success":  paid,
		"message":  outcome.Message,
		"order_id": outcome.OrderID,
		"rsp_code": outcome.RspCode,
	})
}

// VNPayWebhook handles the authoritative server-to-server IPN call. Business
// rejections answer with the gateway's response codes in the body, never a
// bare 5xx, so VNPay's redelivery logic can tell unrecoverable cases from
// transient ones.
func (h *PaymentHandler) VNPayWebhook(c *gin.Context) {
	values := c.Request.URL.Query()
	if len(values) == 0 {
		if err := c.Request.ParseForm(); err == nil {
			values = c.Request.PostForm
		}
	}

	outcome := h.reconcileGateway(c.Request.Context(), values)

	if outcome.FirstSettle {
		h.publishPaymentEvent(c.Request.Context(), outcome.Payment, outcome.Order)
		h.requestInvoice(c.Request.Context(), outcome.Order, outcome.Payment)
	}

	c.JSON(http.StatusOK, gin.H{
		"RspCode": outcome.RspCode,
		"Message": outcome.Message,
	})
}

func (h *PaymentHandler) GetOrderPayments(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid order ID"))
		return
	}

	var payments []models.Payment
	if err := h.db.Where("order_id = ?", orderID).
		Preload("PaymentMethod").
		Order("payments.id").
		Find(&payments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Payments retrieved successfully", payments))
}

// -- Pub/Sub Related --

type PaymentEvent struct {
	EventType       string          `json:"event_type"`
	PaymentID       int64           `json:"payment_id"`
	OrderID         int64           `json:"order_id"`
	PaymentMethodID int32           `json:"payment_method_id"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	Status          string          `json:"status"`
	Timestamp       time.Time       `json:"timestamp"`
}

func (h *PaymentHandler) publishPaymentEvent(ctx context.Context, payment *models.Payment, order *models.Order) {
	event := PaymentEvent{
		EventType:       EventPaymentProcessed,
		PaymentID:       payment.ID,
		OrderID:         order.ID,
		PaymentMethodID: payment.PaymentMethodID,
		AmountPaid:      payment.AmountPaid,
		Status:          payment.Status,
		Timestamp:       h.now(),
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal payment event: %v", err)
		return
	}

	channel := fmt.Sprintf("pos:events:%s", EventPaymentProcessed)
	if err := h.redis.Publish(ctx, channel, eventJSON).Err(); err != nil {
		log.Printf("failed to publish payment event: %v", err)
	}
	if err := h.redis.Publish(ctx, "pos:events:all", eventJSON).Err(); err != nil {
		log.Printf("failed to publish payment event to all channel: %v", err)
	}
}

// requestInvoice fires the invoice-generation event. Fire-and-forget: a
// failure here must not roll back the settled payment.
func (h *PaymentHandler) requestInvoice(ctx context.Context, order *models.Order, payment *models.Payment) {
	event := gin.H{
		"event_type": EventInvoiceRequested,
		"request_id": uuid.New().String(),
		"order_id":   order.ID,
		"payment_id": payment.ID,
		"timestamp":  h.now(),
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal invoice request: %v", err)
		return
	}

	channel := fmt.Sprintf("pos:events:%s", EventInvoiceRequested)
	if err := h.redis.Publish(ctx, channel, eventJSON).Err(); err != nil {
		log.Printf("failed to request invoice for order %d: %v", order.ID, err)
	}
}
