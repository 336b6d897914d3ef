package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Employee struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	EmployeeName string `gorm:"type:varchar(128);not null"`
	Phone        string `gorm:"type:varchar(20)"`
	Email        string `gorm:"type:varchar(128)"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MembershipTier grants a flat percentage off the order subtotal. It is applied
// automatically before coupon discounts and is never persisted as an
// order_discount row.
type MembershipTier struct {
	ID            int32           `gorm:"primaryKey;autoIncrement"`
	TierName      string          `gorm:"type:varchar(64);not null"`
	DiscountValue decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	IsActive      bool            `gorm:"not null;default:true"`
	ValidUntil    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Customer struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	CustomerName     string `gorm:"type:varchar(128);not null"`
	Phone            string `gorm:"type:varchar(20);index"`
	Email            string `gorm:"type:varchar(128)"`
	MembershipTierID *int32
	CreatedAt        time.Time
	UpdatedAt        time.Time

	MembershipTier *MembershipTier `gorm:"foreignKey:MembershipTierID"`
}
