package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/printflow/printflow/internal/api/middleware"
	"github.com/printflow/printflow/internal/core"
	"github.com/printflow/printflow/internal/db"
	"github.com/printflow/printflow/internal/payment"
)

type CreateOrderRequest struct {
	BatchID string `json:"batch_id" binding:"required"`
}

type VerifyOrderRequest struct {
	BatchID   string `json:"batch_id" binding:"required"`
	OrderID   string `json:"order_id" binding:"required"`
	PaymentID string `json:"payment_id" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

type PaymentHandler struct {
	engine  *core.Engine
	gateway *payment.Gateway
}

func NewPaymentHandler(engine *core.Engine, gateway *payment.Gateway) *PaymentHandler {
	return &PaymentHandler{engine: engine, gateway: gateway}
}

// batchTotal loads a batch the student owns and sums its amount.
func (h *PaymentHandler) batchTotal(c *gin.Context, batchID string) (int64, bool) {
	jobs, err := db.Jobs.GetJobsByBatch(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load batch"})
		return 0, false
	}
	if len(jobs) == 0 {
		writeEngineError(c, core.ErrBatchNotFound)
		return 0, false
	}
	if jobs[0].StudentID != middleware.UserID(c) {
		writeEngineError(c, core.ErrNotAuthorized)
		return 0, false
	}

	var total int64
	for _, job := range jobs {
		total += job.Amount
	}
	return total, true
}

// CreateOrder opens a gateway order for the batch total. The order amount is
// computed server side so the client cannot pay less than the batch costs.
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	total, ok := h.batchTotal(c, req.BatchID)
	if !ok {
		return
	}

	intent, err := h.gateway.CreateIntent(c.Request.Context(), total, req.BatchID, map[string]string{
		"batch_id":   req.BatchID,
		"student_id": middleware.UserID(c),
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway is unavailable"})
		return
	}

	c.JSON(http.StatusOK, intent)
}

// VerifyOrder checks the gateway callback signature, then admits the batch
// using the gateway payment id as the payment reference.
func (h *PaymentHandler) VerifyOrder(c *gin.Context) {
	var req VerifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment signature verification failed"})
		return
	}

	total, ok := h.batchTotal(c, req.BatchID)
	if !ok {
		return
	}

	jobs, err := h.engine.VerifyPayment(c.Request.Context(), req.BatchID, req.PaymentID, total)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id": req.BatchID,
		"admitted": len(jobs),
	})
}

func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/order", h.CreateOrder)
	r.POST("/payments/verify", h.VerifyOrder)
}
