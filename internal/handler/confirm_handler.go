package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"solbridge/internal/service"
	"solbridge/pkg/chain"
)

type ConfirmHandler struct {
	confirms *service.ConfirmService
}

func NewConfirmHandler(confirms *service.ConfirmService) *ConfirmHandler {
	return &ConfirmHandler{confirms: confirms}
}

// Confirm handles POST /confirm for client-submitted transactions:
// transactionId is the on-chain signature the client received when it
// submitted directly to the network.
func (h *ConfirmHandler) Confirm(c *gin.Context) {
	var req struct {
		UserID             string  `json:"userId" binding:"required"`
		TransactionID      string  `json:"transactionId" binding:"required"`
		Amount             float64 `json:"amount" binding:"required,gt=0"`
		DestinationAddress string  `json:"destinationAddress" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !chain.ValidAddress(req.DestinationAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid destination address"})
		return
	}

	result, err := h.confirms.Confirm(c.Request.Context(), req.UserID, req.TransactionID,
		req.DestinationAddress, chain.SolToLamports(req.Amount))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	log.Printf("[Confirm] user=%s sig=%s confirmed=%t updated=%t status=%s",
		req.UserID, req.TransactionID, result.Confirmed, result.DatabaseUpdated, result.Status)
	c.JSON(http.StatusOK, gin.H{
		"confirmed":       result.Confirmed,
		"databaseUpdated": result.DatabaseUpdated,
		"status":          result.Status,
	})
}
