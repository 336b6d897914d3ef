package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID           int32  `gorm:"primaryKey;autoIncrement"`
	CategoryName string `gorm:"type:varchar(128);not null"`
	IsActive     bool   `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Products []Product `gorm:"foreignKey:CategoryID"`
}

type Product struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	ProductName string `gorm:"type:varchar(128);not null"`
	CategoryID  *int32
	Description *string `gorm:"type:text"`
	ImageURL    *string `gorm:"type:varchar(256)"`
	IsActive    bool    `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Category *Category      `gorm:"foreignKey:CategoryID"`
	Prices   []ProductPrice `gorm:"foreignKey:ProductID"`
}

type Size struct {
	ID       int32  `gorm:"primaryKey;autoIncrement"`
	SizeName string `gorm:"type:varchar(32);not null"`
}

// ProductPrice is the sellable catalog variant: one product in one size at one
// price. Order lines reference it by id and capture its price at order time.
type ProductPrice struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	ProductID int64           `gorm:"index;not null"`
	SizeID    int32           `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IsActive  bool            `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
	Size    *Size    `gorm:"foreignKey:SizeID"`
}
