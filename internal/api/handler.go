package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"chemsus-backend/internal/catalog"
	"chemsus-backend/internal/order"
	"chemsus-backend/internal/otp"
	"chemsus-backend/internal/payment"
	"chemsus-backend/internal/store"
	"chemsus-backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	otpManager *otp.Manager
	orders     *order.Service
	payments   *payment.Service
	resolver   *catalog.Resolver
	store      *store.Store
}

// NewHandler creates a new HTTP handler
func NewHandler(otpManager *otp.Manager, orders *order.Service, payments *payment.Service, resolver *catalog.Resolver, st *store.Store) *Handler {
	return &Handler{
		otpManager: otpManager,
		orders:     orders,
		payments:   payments,
		resolver:   resolver,
		store:      st,
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
		api.GET("/test", h.backendPing)
		api.GET("/shop-items", h.listShopItems)

		api.POST("/otp/send", h.otpSend)
		api.POST("/otp/verify", h.otpVerify)

		api.POST("/orders", h.createOrder)
		api.GET("/orders/:id", h.getOrder)

		api.POST("/receipts", h.submitReceipt)

		// Admin authentication is handled by the fronting layer.
		admin := api.Group("/admin")
		{
			admin.GET("/orders", h.adminListOrders)
			admin.GET("/payments", h.adminListPayments)
			admin.POST("/payment-status", h.adminPaymentStatus)
			admin.DELETE("/orders/:id", h.adminDeleteOrder)
			admin.DELETE("/payments/:id", h.adminDeletePayment)
		}
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

func (h *Handler) backendPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "apiBase": "/api", "backendURL": c.Request.Host})
}

func (h *Handler) listShopItems(c *gin.Context) {
	items, err := h.resolver.ListActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load catalog"})
		return
	}
	c.JSON(http.StatusOK, items)
}

type otpSendRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *Handler) otpSend(c *gin.Context) {
	var req otpSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email required"})
		return
	}

	result, err := h.otpManager.Send(c.Request.Context(), req.Email)
	if err != nil {
		var rateLimited *otp.RateLimitedError
		switch {
		case errors.As(err, &rateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":         "Please wait before requesting another code",
				"retryAfterSec": int(rateLimited.RetryAfter.Seconds()),
			})
		case errors.Is(err, otp.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue code"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challengeId":  result.ChallengeID,
		"expiresInSec": result.ExpiresInSec,
		"resendInSec":  result.ResendInSec,
		"delivery":     result.Delivery,
	})
}

type otpVerifyRequest struct {
	Email       string `json:"email" binding:"required"`
	ChallengeID string `json:"challengeId" binding:"required"`
	Otp         string `json:"otp" binding:"required"`
}

func (h *Handler) otpVerify(c *gin.Context) {
	var req otpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, challengeId and otp required"})
		return
	}

	result, err := h.otpManager.Verify(c.Request.Context(), req.Email, req.ChallengeID, req.Otp)
	if err != nil {
		switch {
		case errors.Is(err, otp.ErrAttemptsExceeded):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts, request a new code"})
		case errors.Is(err, otp.ErrNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Challenge not found"})
		case errors.Is(err, otp.ErrExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Code expired, request a new one"})
		case errors.Is(err, otp.ErrAlreadyVerified):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Already verified, request a new code"})
		case errors.Is(err, otp.ErrInvalidCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect code"})
		case errors.Is(err, otp.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"verificationToken": result.VerificationToken,
		"tokenExpiresInSec": result.TokenExpiresInSec,
	})
}

type orderItemRequest struct {
	ShopItemID int64   `json:"shopItemId"`
	PackSize   string  `json:"packSize"`
	Quantity   float64 `json:"quantity"`
}

type createOrderRequest struct {
	CustomerName string `json:"customername" binding:"required"`
	Email        string `json:"email" binding:"required"`
	Phone        string `json:"phone" binding:"required"`
	CompanyName  string `json:"companyName"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Region       string `json:"region"`
	Pincode      string `json:"pincode"`
	Country      string `json:"country"`

	Items []orderItemRequest `json:"items"`

	// Legacy single-line fields
	ShopItemID int64   `json:"shopItemId"`
	PackSize   string  `json:"packSize"`
	Quantity   float64 `json:"quantity"`

	EmailOtpToken string `json:"emailOtpToken"`

	// Clients must not dictate money amounts; presence alone is rejected.
	TotalPrice *float64 `json:"totalprice"`
	UnitPrice  *float64 `json:"unitprice"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields", "details": err.Error()})
		return
	}
	if req.TotalPrice != nil || req.UnitPrice != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Price fields are not accepted from the client"})
		return
	}

	createReq := &order.CreateRequest{
		CustomerName:      req.CustomerName,
		Email:             req.Email,
		Phone:             req.Phone,
		CompanyName:       req.CompanyName,
		Address:           req.Address,
		City:              req.City,
		Region:            req.Region,
		Pincode:           req.Pincode,
		Country:           req.Country,
		VerificationToken: req.EmailOtpToken,
	}
	for _, it := range req.Items {
		createReq.Items = append(createReq.Items, order.LineRequest{
			ShopItemID: it.ShopItemID,
			PackSize:   it.PackSize,
			Quantity:   it.Quantity,
		})
	}
	if len(createReq.Items) == 0 && req.ShopItemID != 0 {
		createReq.Legacy = &order.LineRequest{
			ShopItemID: req.ShopItemID,
			PackSize:   req.PackSize,
			Quantity:   req.Quantity,
		}
	}

	result, err := h.orders.Create(c.Request.Context(), createReq)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrValidation), errors.Is(err, order.ErrOTP):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create order"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"orderId": result.OrderID})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	ord, err := h.store.GetOrderByID(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order"})
		return
	}
	items, err := h.store.GetOrderItemsByOrderID(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order items"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": ord, "items": items})
}

func (h *Handler) submitReceipt(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.PostForm("orderid"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderid required"})
		return
	}
	amount, err := strconv.ParseFloat(c.PostForm("amount"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount required"})
		return
	}
	rating, _ := strconv.Atoi(c.PostForm("rating"))

	fileHeader, err := c.FormFile("receiptimage")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiptimage required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiptimage unreadable"})
		return
	}
	defer file.Close()

	result, err := h.payments.SubmitReceipt(c.Request.Context(), &payment.SubmitRequest{
		OrderID:  orderID,
		Amount:   amount,
		Rating:   rating,
		Feedback: c.PostForm("feedback"),
		FileName: fileHeader.Filename,
		File:     file,
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, payment.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": "Payment already submitted for this order"})
		case errors.Is(err, payment.ErrAmountMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record receipt"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"paymentId":  result.PaymentID,
		"receiptRef": result.ReceiptRef,
	})
}

func (h *Handler) adminListOrders(c *gin.Context) {
	orders, err := h.store.ListOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders"})
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) adminListPayments(c *gin.Context) {
	payments, err := h.store.ListPayments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list payments"})
		return
	}
	c.JSON(http.StatusOK, payments)
}

type paymentStatusRequest struct {
	PaymentID int64  `json:"paymentId" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

func (h *Handler) adminPaymentStatus(c *gin.Context) {
	var req paymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "paymentId and status required"})
		return
	}

	result, err := h.payments.Decide(c.Request.Context(), req.PaymentID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrBadVerdict):
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be SUCCESS or FAILED"})
		case errors.Is(err, payment.ErrPaymentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply verdict"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"paymentId":   result.PaymentID,
		"status":      result.Status,
		"orderId":     result.OrderID,
		"orderStatus": result.OrderStatus,
	})
}

func (h *Handler) adminDeleteOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
		return
	}
	if err := h.payments.DeleteOrder(c.Request.Context(), orderID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete order"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) adminDeletePayment(c *gin.Context) {
	paymentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || paymentID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment id"})
		return
	}
	if err := h.payments.DeletePayment(c.Request.Context(), paymentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete payment"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
