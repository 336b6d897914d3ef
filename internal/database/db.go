package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"bakery-system/internal/database/models"
)

func NewConnection(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		log.Fatal("DSN is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Category{},
		&models.Product{},
		&models.Size{},
		&models.ProductPrice{},
		&models.Employee{},
		&models.MembershipTier{},
		&models.Customer{},
		&models.Discount{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderDiscount{},
		&models.PaymentMethod{},
		&models.Payment{},
	); err != nil {
		return err
	}

	return seedPaymentMethods(db)
}

func seedPaymentMethods(db *gorm.DB) error {
	methods := []models.PaymentMethod{
		{ID: models.PaymentMethodCashID, MethodName: "Cash", IsActive: true},
		{ID: models.PaymentMethodVNPayID, MethodName: "VNPay", IsActive: true},
	}
	for _, m := range methods {
		if err := db.Where("id = ?", m.ID).FirstOrCreate(&m).Error; err != nil {
			return fmt.Errorf("seed payment method %s: %w", m.MethodName, err)
		}
	}
	return nil
}
