package api

import (
	"net/http"
	"time"

	"maketheprint/internal/models"
	"maketheprint/internal/service"
	"maketheprint/internal/store"
	"maketheprint/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	catalog    *service.CatalogService
	carts      *service.CartService
	orders     *service.OrderService
	payments   *service.PaymentService
	reconciler *service.Reconciler
	admin      *store.Admin
	jwtSecret  string
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	carts *service.CartService,
	orders *service.OrderService,
	payments *service.PaymentService,
	reconciler *service.Reconciler,
	admin *store.Admin,
	jwtSecret string,
) *Handler {
	return &Handler{
		catalog:    catalog,
		carts:      carts,
		orders:     orders,
		payments:   payments,
		reconciler: reconciler,
		admin:      admin,
		jwtSecret:  jwtSecret,
		logger:     util.NamedLogger("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/products", h.listProducts)
		api.GET("/products/:id", h.getProduct)

		// The webhook authenticates by signature, not session.
		api.POST("/stripe/webhook", h.stripeWebhook)

		authed := api.Group("")
		authed.Use(authRequired(h.jwtSecret))
		{
			authed.GET("/cart", h.getCart)
			authed.POST("/cart/items", h.addCartItem)
			authed.PATCH("/cart/items/:id", h.updateCartItem)
			authed.DELETE("/cart/items/:id", h.removeCartItem)

			authed.GET("/orders", h.listOrders)
			authed.GET("/orders/:id", h.getOrder)
			authed.POST("/orders/create-pending", h.createPendingOrder)
			authed.POST("/orders/confirm-paid", h.confirmPaid)

			authed.POST("/stripe/create-payment-intent", h.createPaymentIntent)

			admin := authed.Group("/admin")
			admin.Use(adminRequired())
			{
				admin.PATCH("/orders/:id/status", h.updateOrderFulfillment)
				admin.POST("/products", h.createProduct)
				admin.PUT("/products/:id", h.updateProduct)
				admin.DELETE("/products/:id", h.deleteProduct)
			}
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := gin.H{"product": product}
	if cfg, ok := models.InquireConfigOf(product); ok && cfg.WhatsAppNumber != "" {
		resp["whatsapp_cta"] = gin.H{
			"number":  cfg.WhatsAppNumber,
			"message": cfg.RenderWhatsAppMessage(product.Name),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getCart(c *gin.Context) {
	checkout := c.Query("mode") == "checkout"
	view, err := h.carts.Get(c.Request.Context(), currentUserID(c), checkout)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	view, err := h.carts.AddItem(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req struct {
		Quantity int `json:"quantity" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	view, err := h.carts.UpdateQuantity(c.Request.Context(), currentUserID(c), c.Param("id"), req.Quantity)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	view, err := h.carts.RemoveItem(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, items, err := h.orders.GetOrder(c.Request.Context(), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

func (h *Handler) createPendingOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	order, err := h.orders.CreatePendingOrder(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"orderId": order.ID})
}

func (h *Handler) createPaymentIntent(c *gin.Context) {
	var req struct {
		OrderID  string `json:"orderId" binding:"required"`
		Currency string `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.payments.CreatePaymentIntent(c.Request.Context(), currentUserID(c), req.OrderID, req.Currency)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) confirmPaid(c *gin.Context) {
	var req struct {
		OrderID         string `json:"orderId" binding:"required"`
		PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	alreadyPaid, err := h.reconciler.ConfirmOrderPaid(c.Request.Context(), currentUserID(c), req.OrderID, req.PaymentIntentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if alreadyPaid {
		c.JSON(http.StatusOK, gin.H{"orderId": req.OrderID, "alreadyPaid": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": req.OrderID})
}

func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return
	}

	err = h.reconciler.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) updateOrderFulfillment(c *gin.Context) {
	var req struct {
		Status         string  `json:"status" binding:"required,oneof=shipped delivered"`
		TrackingNumber *string `json:"tracking_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	err := h.admin.UpdateOrderFulfillment(c.Request.Context(), c.Param("id"), req.Status, req.TrackingNumber)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": c.Param("id"), "status": req.Status})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req service.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
