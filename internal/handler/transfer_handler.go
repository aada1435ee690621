package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"solbridge/internal/service"
	"solbridge/pkg/chain"
)

type TransferHandler struct {
	router *service.RailRouter
}

func NewTransferHandler(router *service.RailRouter) *TransferHandler {
	return &TransferHandler{router: router}
}

// RailToRail handles POST /transfer/rail-to-rail: moving value from the
// self-custody wallet into the custodial pool, same two-phase shape as
// withdraw. autoSign marks the quote as accepted (the client submits the
// signed transaction itself and finalizes through /confirm).
func (h *TransferHandler) RailToRail(c *gin.Context) {
	var req struct {
		UserID            string  `json:"userId" binding:"required"`
		Amount            float64 `json:"amount" binding:"required,gt=0"`
		SignedTransaction string  `json:"signedTransaction"`
		AutoSign          bool    `json:"autoSign"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.router.Transfer(c.Request.Context(), service.TransferRequest{
		UserID:   req.UserID,
		Lamports: chain.SolToLamports(req.Amount),
		SignedTx: req.SignedTransaction,
		AutoSign: req.AutoSign,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	if outcome.Quote != nil {
		q := outcome.Quote
		resp := gin.H{
			"unsignedTransaction": q.UnsignedTransaction,
			"transferDetails": gin.H{
				"amount":      chain.LamportsToSol(q.Lamports),
				"source":      q.Source,
				"destination": q.Destination,
				"blockhash":   q.Blockhash,
				"memo":        q.Memo,
			},
			"dailyLimits": limitsJSON(q.Limits),
		}
		if q.Reference != "" {
			resp["reference"] = q.Reference
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	r := outcome.Receipt
	log.Printf("[Transfer] user=%s completed rail-to-rail transfer sig=%s", req.UserID, r.Signature)
	c.JSON(http.StatusOK, gin.H{
		"transactionId": r.Signature,
		"reference":     r.Reference,
		"newBalance":    chain.LamportsToSol(r.NewCustodial),
		"dailyLimits":   limitsJSON(r.Limits),
	})
}
