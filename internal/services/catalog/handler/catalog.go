package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"bakery-system/internal/database/models"
)

const (
	productCacheKey  = "catalog:products:active"
	discountCacheKey = "catalog:discounts:active"
	cacheTTL         = 5 * time.Minute
)

// CatalogHandler serves the read-only catalog the POS UI needs: products with
// their priced variants, active coupons, and payment methods. Reads are
// cache-first and may be stale by design; order creation resolves prices
// inside its own transaction.
type CatalogHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewCatalogHandler(db *gorm.DB, redisClient *redis.Client) *CatalogHandler {
	return &CatalogHandler{
		db:    db,
		redis: redisClient,
	}
}

func (h *CatalogHandler) ListProducts(c *gin.Context) {
	ctx := c.Request.Context()

	if cached, err := h.redis.Get(ctx, productCacheKey).Result(); err == nil {
		var products []models.Product
		if err := json.Unmarshal([]byte(cached), &products); err == nil {
			c.JSON(http.StatusOK, cachedResponse("Products retrieved successfully", products))
			return
		}
	}

	var products []models.Product
	if err := h.db.Where("is_active = ?", true).
		Preload("Category").
		Preload("Prices", "is_active = ?", true).
		Preload("Prices.Size").
		Order("products.product_name").
		Find(&products).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Database error fetching products"))
		return
	}

	if encoded, err := json.Marshal(products); err == nil {
		_ = h.redis.Set(ctx, productCacheKey, encoded, cacheTTL).Err()
	}

	c.JSON(http.StatusOK, successResponse("Products retrieved successfully", products))
}

func (h *CatalogHandler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid product ID"))
		return
	}

	var product models.Product
	if err := h.db.Where("id = ?", id).
		Preload("Category").
		Preload("Prices.Size").
		First(&product).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, errorResponse("Product not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorResponse("Database error"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Product retrieved successfully", product))
}

func (h *CatalogHandler) ListDiscounts(c *gin.Context) {
	ctx := c.Request.Context()

	if cached, err := h.redis.Get(ctx, discountCacheKey).Result(); err == nil {
		var discounts []models.Discount
		if err := json.Unmarshal([]byte(cached), &discounts); err == nil {
			c.JSON(http.StatusOK, cachedResponse("Discounts retrieved successfully", discounts))
			return
		}
	}

	var discounts []models.Discount
	if err := h.db.Where("is_active = ?", true).
		Order("discounts.id").
		Find(&discounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Database error fetching discounts"))
		return
	}

	if encoded, err := json.Marshal(discounts); err == nil {
		_ = h.redis.Set(ctx, discountCacheKey, encoded, cacheTTL).Err()
	}

	c.JSON(http.StatusOK, successResponse("Discounts retrieved successfully", discounts))
}

func (h *CatalogHandler) ListPaymentMethods(c *gin.Context) {
	var methods []models.PaymentMethod
	if err := h.db.Where("is_active = ?", true).
		Order("payment_methods.id").
		Find(&methods).Error; err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("Database error fetching payment methods"))
		return
	}

	c.JSON(http.StatusOK, successResponse("Payment methods retrieved successfully", methods))
}
