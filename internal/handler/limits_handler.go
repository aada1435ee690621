package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"solbridge/internal/service"
	"solbridge/pkg/chain"
)

type LimitsHandler struct {
	limits *service.LimitService
}

func NewLimitsHandler(limits *service.LimitService) *LimitsHandler {
	return &LimitsHandler{limits: limits}
}

// Check returns the user's used/remaining daily capacity, optionally judged
// against a proposed amount.
func (h *LimitsHandler) Check(c *gin.Context) {
	var req struct {
		UserID string  `json:"userId" binding:"required"`
		Amount float64 `json:"amount" binding:"omitempty,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	decision, err := h.limits.Check(req.UserID, chain.SolToLamports(req.Amount))
	if err != nil {
		// Fail closed: the query error is surfaced, never an implicit allow.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "limit check unavailable", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, limitsJSON(decision))
}
