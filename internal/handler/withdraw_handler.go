package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"solbridge/internal/models"
	"solbridge/internal/service"
	"solbridge/pkg/chain"
)

type WithdrawHandler struct {
	router *service.RailRouter
}

func NewWithdrawHandler(router *service.RailRouter) *WithdrawHandler {
	return &WithdrawHandler{router: router}
}

// Create handles POST /withdraw. Without signedTransaction it returns a
// phase-1 quote; with it, phase-2 execution. rail=CUSTODIAL routes to the
// single-phase pool payout instead.
func (h *WithdrawHandler) Create(c *gin.Context) {
	var req struct {
		UserID             string  `json:"userId" binding:"required"`
		WalletAddress      string  `json:"walletAddress"`
		Amount             float64 `json:"amount" binding:"required,gt=0"`
		DestinationAddress string  `json:"destinationAddress" binding:"required"`
		SignedTransaction  string  `json:"signedTransaction"`
		Rail               string  `json:"rail" binding:"omitempty,oneof=CUSTODIAL SELF_CUSTODY"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !chain.ValidAddress(req.DestinationAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid destination address"})
		return
	}
	if req.Rail != models.RailCustodial && req.WalletAddress != "" && !chain.ValidAddress(req.WalletAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}

	outcome, err := h.router.Withdraw(c.Request.Context(), service.WithdrawRequest{
		UserID:        req.UserID,
		Rail:          req.Rail,
		WalletAddress: req.WalletAddress,
		Destination:   req.DestinationAddress,
		Lamports:      chain.SolToLamports(req.Amount),
		SignedTx:      req.SignedTransaction,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	switch {
	case outcome.Quote != nil:
		q := outcome.Quote
		c.JSON(http.StatusOK, gin.H{
			"unsignedTransaction": q.UnsignedTransaction,
			"withdrawalDetails": gin.H{
				"amount":      chain.LamportsToSol(q.Lamports),
				"source":      q.Source,
				"destination": q.Destination,
				"blockhash":   q.Blockhash,
				"memo":        q.Memo,
			},
			"dailyLimits": limitsJSON(q.Limits),
		})
	case outcome.Receipt != nil:
		r := outcome.Receipt
		log.Printf("[Withdraw] user=%s completed self-custody withdrawal sig=%s", req.UserID, r.Signature)
		c.JSON(http.StatusOK, gin.H{
			"transactionId": r.Signature,
			"reference":     r.Reference,
			"newBalance":    chain.LamportsToSol(r.NewBalance),
			"dailyLimits":   limitsJSON(r.Limits),
		})
	case outcome.Payout != nil:
		p := outcome.Payout
		log.Printf("[Withdraw] user=%s completed custodial payout sig=%s", req.UserID, p.Signature)
		c.JSON(http.StatusOK, gin.H{
			"transactionId": p.Signature,
			"reference":     p.Reference,
			"newBalance":    chain.LamportsToSol(p.NewBalance),
			"dailyLimits":   limitsJSON(p.Limits),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
