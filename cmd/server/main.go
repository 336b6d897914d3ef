package main

import (
	"log"

	"bakery-system/config"
	"bakery-system/internal/database"
	catalogHandler "bakery-system/internal/services/catalog/handler"
	orderHandler "bakery-system/internal/services/order/handler"
	paymentHandler "bakery-system/internal/services/payment/handler"
	"bakery-system/internal/services/payment/vnpay"
	"bakery-system/internal/utils"
)

func main() {
	cfg := config.LoadConfig()
	utils.SetJwtSecret(cfg.Auth.JWTSecret)

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisClient := config.NewRedisClient(cfg.Redis)

	gateway := vnpay.New(vnpay.Config{
		TmnCode:    cfg.VNPay.TmnCode,
		HashSecret: cfg.VNPay.HashSecret,
		PayURL:     cfg.VNPay.PayURL,
		ReturnURL:  cfg.VNPay.ReturnURL,
	})
	if !gateway.Enabled() {
		log.Println("Warning: VNPay credentials missing, gateway payments disabled")
	}

	orders := orderHandler.NewOrderHandler(db, redisClient)
	payments := paymentHandler.NewPaymentHandler(db, redisClient, gateway)
	catalog := catalogHandler.NewCatalogHandler(db, redisClient)

	r := setupRouter(db, redisClient, orders, payments, catalog)

	addr := ":" + cfg.Server.Port
	log.Printf("Starting server on port %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
