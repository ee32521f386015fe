package transaction

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/fraudops/internal/validation"
)

// Handler provides HTTP endpoints for intake and operator actions.
type Handler struct {
	service *Service
}

// NewHandler creates a new transaction handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the transaction routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments/attempt", h.AttemptPayment)
	r.GET("/transactions/flagged", h.ListFlagged)
	r.GET("/transactions/stats", h.GetStats)
	r.GET("/transactions/:id", h.GetTransaction)
	r.POST("/transactions/:id/action", h.ApplyAction)
}

// AttemptPayment handles POST /api/payments/attempt
func (h *Handler) AttemptPayment(c *gin.Context) {
	var req AttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	// Attacker-controlled free text: cap lengths, strip null bytes
	req.Customer = validation.SanitizeString(req.Customer, 200)
	req.Phone = validation.SanitizeString(req.Phone, 50)
	req.Recipient = validation.SanitizeString(req.Recipient, 200)
	req.Message = validation.SanitizeString(req.Message, validation.MaxStringLength)
	req.Behavior = validation.SanitizeString(req.Behavior, validation.MaxStringLength)

	result, err := h.service.Intake(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "intake_failed",
			"message": "Failed to process payment attempt",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListFlagged handles GET /api/transactions/flagged
func (h *Handler) ListFlagged(c *gin.Context) {
	records, err := h.service.ListFlagged(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	// Bare array: the review dashboard consumes this shape directly
	c.JSON(http.StatusOK, records)
}

// GetStats handles GET /api/transactions/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetTransaction handles GET /api/transactions/:id
func (h *Handler) GetTransaction(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Transaction not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// ApplyAction handles POST /api/transactions/:id/action
func (h *Handler) ApplyAction(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "Invalid request body",
		})
		return
	}

	req.Details = validation.SanitizeString(req.Details, validation.MaxStringLength)

	rec, err := h.service.Apply(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"ok":    false,
				"error": "Transaction not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":  true,
		"txn": rec,
	})
}
