package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"bakery-system/internal/gateway/middleware"
	catalogHandler "bakery-system/internal/services/catalog/handler"
	orderHandler "bakery-system/internal/services/order/handler"
	paymentHandler "bakery-system/internal/services/payment/handler"
)

func setupRouter(
	db *gorm.DB,
	redisClient *redis.Client,
	orders *orderHandler.OrderHandler,
	payments *paymentHandler.PaymentHandler,
	catalog *catalogHandler.CatalogHandler,
) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit("60-M"))

	// --- Public API Group ---
	// The gateway calls back without credentials, so these stay unauthenticated.
	public := r.Group("/api/v1")
	{
		public.GET("/payments/vnpay/callback", payments.VNPayCallback)
		public.POST("/payments/vnpay/webhook", payments.VNPayWebhook)
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		ordersGroup := protected.Group("/orders")
		{
			ordersGroup.POST("", orders.CreateOrder)
			ordersGroup.GET("", orders.ListOrders)
			ordersGroup.GET("/:id", orders.GetOrder)
			ordersGroup.PATCH("/:id", orders.UpdateOrder)
			ordersGroup.PATCH("/:id/cancel", orders.CancelOrder)
			ordersGroup.DELETE("/:id", orders.DeleteOrder)
			ordersGroup.POST("/validate-discounts", orders.ValidateDiscounts)
		}

		paymentsGroup := protected.Group("/payments")
		{
			paymentsGroup.POST("", payments.CreateCashPayment)
			paymentsGroup.POST("/vnpay/create", payments.CreateVNPayRedirect)
			paymentsGroup.GET("/order/:orderId", payments.GetOrderPayments)
		}

		catalogGroup := protected.Group("")
		{
			catalogGroup.GET("/products", catalog.ListProducts)
			catalogGroup.GET("/products/:id", catalog.GetProduct)
			catalogGroup.GET("/discounts", catalog.ListDiscounts)
			catalogGroup.GET("/payment-methods", catalog.ListPaymentMethods)
		}
	}

	r.GET("/health", healthCheckHandler(db, redisClient))

	return r
}

func healthCheckHandler(db *gorm.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := "healthy"
		httpStatus := http.StatusOK
		services := gin.H{}

		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			services["database"] = "unavailable"
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			services["database"] = "healthy"
		}

		if err := redisClient.Ping(ctx).Err(); err != nil {
			services["redis"] = "unavailable"
			status = "degraded"
		} else {
			services["redis"] = "healthy"
		}

		c.JSON(httpStatus, gin.H{
			"status":    status,
			"services":  services,
			"timestamp": time.Now(),
		})
	}
}
