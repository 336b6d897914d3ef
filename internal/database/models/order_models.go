package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusProcessing = "PROCESSING"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
)

const (
	PaymentStatusProcessing = "PROCESSING"
	PaymentStatusPaid       = "PAID"
	PaymentStatusCancelled  = "CANCELLED"
)

// Well-known payment method rows seeded at migration time.
const (
	PaymentMethodCashID  int32 = 1
	PaymentMethodVNPayID int32 = 2
)

// Discount is a coupon-style promotion. This service consumes it read-only
// except for CurrentUses, which is incremented inside the order-creation
// transaction under a row lock.
type Discount struct {
	ID                    int32           `gorm:"primaryKey;autoIncrement"`
	DiscountName          string          `gorm:"type:varchar(128);not null"`
	CouponCode            string          `gorm:"type:varchar(32);uniqueIndex;not null"`
	DiscountValue         decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	MaxDiscountAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	MinRequiredOrderValue decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	MinRequiredProduct    *int32
	ValidFrom             *time.Time
	ValidUntil            *time.Time
	IsActive              bool `gorm:"not null;default:true"`
	MaxUses               *int32
	MaxUsesPerCustomer    *int32
	CurrentUses           int32 `gorm:"not null;default:0"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Order struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	EmployeeID int64 `gorm:"not null;index"`
	CustomerID *int64
	Status     string  `gorm:"type:varchar(16);not null;index"`
	Note       *string `gorm:"type:text"`

	Subtotal           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	MembershipDiscount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	FinalTotal         decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	OrderDate time.Time `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time

	OrderItems     []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	OrderDiscounts []OrderDiscount `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments       []Payment       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Employee       *Employee       `gorm:"foreignKey:EmployeeID"`
	Customer       *Customer       `gorm:"foreignKey:CustomerID"`
}

// OrderItem captures the unit price, product and size names at order time so
// historical totals stay reproducible when the catalog changes later.
type OrderItem struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	OrderID        int64           `gorm:"index;not null"`
	ProductPriceID int64           `gorm:"not null"`
	ProductName    string          `gorm:"type:varchar(128);not null"`
	SizeName       string          `gorm:"type:varchar(32);not null"`
	Quantity       int32           `gorm:"not null"`
	UnitPrice      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	LineTotal      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt      time.Time

	ProductPrice *ProductPrice `gorm:"foreignKey:ProductPriceID"`
}

// OrderDiscount records the coupon amount computed at application time. It is
// never recomputed from the live Discount row.
type OrderDiscount struct {
	ID             int64           `gorm:"primaryKey;autoIncrement"`
	OrderID        int64           `gorm:"index;not null"`
	DiscountID     int32           `gorm:"not null"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt      time.Time

	Discount *Discount `gorm:"foreignKey:DiscountID"`
}

type PaymentMethod struct {
	ID         int32  `gorm:"primaryKey;autoIncrement"`
	MethodName string `gorm:"type:varchar(64);uniqueIndex;not null"`
	IsActive   bool   `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Payment settles an order. The composite unique index on
// (order_id, payment_method_id) backs the idempotent upsert on the gateway
// path: the browser callback and the server webhook race for the same logical
// event and must land on one row.
type Payment struct {
	ID                   int64 `gorm:"primaryKey;autoIncrement"`
	OrderID              int64 `gorm:"not null;uniqueIndex:idx_payments_order_method"`
	PaymentMethodID      int32 `gorm:"not null;uniqueIndex:idx_payments_order_method"`
	TransactionRef       *string `gorm:"type:varchar(64);index"`
	GatewayTransactionNo *string `gorm:"type:varchar(64)"`
	BankCode             *string `gorm:"type:varchar(32)"`

	AmountPaid   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ChangeAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status       string          `gorm:"type:varchar(16);not null"`
	PaymentTime  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Order         *Order         `gorm:"foreignKey:OrderID"`
	PaymentMethod *PaymentMethod `gorm:"foreignKey:PaymentMethodID"`
}
