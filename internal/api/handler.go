package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"erp-service/internal/models"
	"erp-service/internal/service"
	"erp-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ActorHeader identifies the user performing a mutating request.
const ActorHeader = "X-Actor-ID"

const actorKey = "actor"

// OrderManager is order entry and the simple status moves.
type OrderManager interface {
	Create(ctx context.Context, req *service.CreateOrderRequest, actor string) (*models.Order, error)
	Get(ctx context.Context, orderID int64) (*models.Order, error)
	Submit(ctx context.Context, orderID int64, actor string) (*models.Order, error)
	Complete(ctx context.Context, orderID int64, actor string) (*models.Order, error)
}

// Approver decides pending orders.
type Approver interface {
	Approve(ctx context.Context, orderID int64, actor string) (*models.Order, error)
	Reject(ctx context.Context, orderID int64, actor string) (*models.Order, error)
	ReleaseClaim(ctx context.Context, orderID int64, actor string) (*models.Order, error)
}

// Invoicer issues invoices and takes payments.
type Invoicer interface {
	Issue(ctx context.Context, req *service.IssueInvoiceRequest, actor string) (*models.Invoice, error)
	Get(ctx context.Context, invoiceID int64) (*models.Invoice, error)
	RecordPayment(ctx context.Context, invoiceID int64, amount decimal.Decimal, actor string) (*models.Invoice, error)
	UpdateStatus(ctx context.Context, invoiceID int64, status, actor string) (*models.Invoice, error)
}

// StockMover applies manual stock movements.
type StockMover interface {
	Apply(ctx context.Context, m *models.StockMovement) (int, error)
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders    OrderManager
	approvals Approver
	invoices  Invoicer
	stock     StockMover
	checks    map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. checks are pinged by /ready.
func NewHandler(orders OrderManager, approvals Approver, invoices Invoicer, stock StockMover, checks map[string]Pinger) *Handler {
	return &Handler{
		orders:    orders,
		approvals: approvals,
		invoices:  invoices,
		stock:     stock,
		checks:    checks,
		logger:    util.ComponentLogger("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/invoices/:id", h.getInvoice)
	}

	mut := v1.Group("", requireActor())
	{
		mut.POST("/orders", h.createOrder)
		mut.POST("/orders/:id/submit", h.submitOrder)
		mut.POST("/orders/:id/approve", h.approveOrder)
		mut.POST("/orders/:id/reject", h.rejectOrder)
		mut.POST("/orders/:id/release", h.releaseOrder)
		mut.POST("/orders/:id/complete", h.completeOrder)

		mut.POST("/invoices", h.issueInvoice)
		mut.PUT("/invoices/:id", h.updateInvoice)

		mut.POST("/stock-movements", h.createStockMovement)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orders.Create(c.Request.Context(), &req, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) submitOrder(c *gin.Context) {
	h.orderAction(c, h.orders.Submit)
}

func (h *Handler) approveOrder(c *gin.Context) {
	h.orderAction(c, h.approvals.Approve)
}

func (h *Handler) rejectOrder(c *gin.Context) {
	h.orderAction(c, h.approvals.Reject)
}

func (h *Handler) releaseOrder(c *gin.Context) {
	h.orderAction(c, h.approvals.ReleaseClaim)
}

func (h *Handler) completeOrder(c *gin.Context) {
	h.orderAction(c, h.orders.Complete)
}

func (h *Handler) orderAction(c *gin.Context, action func(context.Context, int64, string) (*models.Order, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := action(c.Request.Context(), id, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) issueInvoice(c *gin.Context) {
	var req service.IssueInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	inv, err := h.invoices.Issue(c.Request.Context(), &req, actor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *Handler) getInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	inv, err := h.invoices.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// UpdateInvoiceRequest records a payment, changes the status, or both.
type UpdateInvoiceRequest struct {
	PaidAmount *decimal.Decimal `json:"paid_amount"`
	Status     *string          `json:"status"`
}

func (h *Handler) updateInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.PaidAmount == nil && req.Status == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "paid_amount or status is required",
			"code":  "validation",
		})
		return
	}

	ctx := c.Request.Context()
	var (
		inv *models.Invoice
		err error
	)
	if req.PaidAmount != nil {
		if inv, err = h.invoices.RecordPayment(ctx, id, *req.PaidAmount, actor(c)); err != nil {
			writeError(c, err)
			return
		}
	}
	// A payment that settled the invoice already satisfies status=paid.
	if req.Status != nil && (inv == nil || inv.Status != *req.Status) {
		if inv, err = h.invoices.UpdateStatus(ctx, id, *req.Status, actor(c)); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, inv)
}

// StockMovementRequest is a manual receipt or dispatch.
type StockMovementRequest struct {
	ProductID int64  `json:"product_id" binding:"required"`
	Type      string `json:"type" binding:"required,oneof=in out"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Reference string `json:"reference" binding:"required"`
	Location  string `json:"location"`
}

func (h *Handler) createStockMovement(c *gin.Context) {
	var req StockMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	m := &models.StockMovement{
		ProductID: req.ProductID,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Reference: req.Reference,
		Location:  req.Location,
		CreatedBy: actor(c),
	}
	stock, err := h.stock.Apply(c.Request.Context(), m)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"movement": m,
		"stock":    stock,
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"code":    "validation",
		"details": err.Error(),
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid ID",
			"code":  "validation",
		})
		return 0, false
	}
	return id, true
}

func actor(c *gin.Context) string {
	return c.GetString(actorKey)
}

// requireActor rejects mutating requests that do not say who is acting.
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ActorHeader)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": ActorHeader + " header is required",
				"code":  "validation",
			})
			return
		}
		c.Set(actorKey, id)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("actor", c.GetHeader(ActorHeader)))
	}
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
