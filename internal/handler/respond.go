package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"solbridge/internal/models"
	"solbridge/internal/repository"
	"solbridge/internal/service"
	"solbridge/pkg/chain"
)

// dailyLimitsJSON is the SOL-denominated limits block shared by most
// responses.
type dailyLimitsJSON struct {
	Used      float64 `json:"used"`
	Remaining float64 `json:"remaining"`
	Limit     float64 `json:"limit"`
	Allowed   bool    `json:"allowed"`
}

func limitsJSON(d service.LimitDecision) dailyLimitsJSON {
	return dailyLimitsJSON{
		Used:      chain.LamportsToSol(d.Used),
		Remaining: chain.LamportsToSol(d.Remaining),
		Limit:     chain.LamportsToSol(d.Cap),
		Allowed:   d.Allowed,
	}
}

// ledgerEntryJSON is the external shape of a ledger entry: SOL amounts, no
// internal row id, references and signatures as opaque strings.
type ledgerEntryJSON struct {
	Reference   string    `json:"reference"`
	Kind        string    `json:"kind"`
	Amount      float64   `json:"amount"`
	Source      string    `json:"sourceAddress,omitempty"`
	Destination string    `json:"destinationAddress,omitempty"`
	Signature   string    `json:"signature,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func historyJSON(txs []models.Transaction) []ledgerEntryJSON {
	out := make([]ledgerEntryJSON, 0, len(txs))
	for _, tx := range txs {
		out = append(out, ledgerEntryJSON{
			Reference:   tx.Reference,
			Kind:        tx.Kind,
			Amount:      chain.LamportsToSol(tx.Lamports),
			Source:      tx.SourceAddress,
			Destination: tx.DestinationAddress,
			Signature:   tx.Signature,
			Status:      tx.Status,
			CreatedAt:   tx.CreatedAt,
			UpdatedAt:   tx.UpdatedAt,
		})
	}
	return out
}

// respondServiceError maps service errors onto the API error contract:
// 400 for validation and limit/balance rejections, 404 for unknown wallets,
// 500 for settlement or internal failures. The post-success bookkeeping
// failure class gets its own critical shape so support can act on it.
func respondServiceError(c *gin.Context, err error) {
	var inconsistency *service.LedgerInconsistencyError
	if errors.As(err, &inconsistency) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":         "transfer succeeded on-chain but bookkeeping failed; contact support",
			"details":       inconsistency.Error(),
			"critical":      true,
			"transactionId": inconsistency.Signature,
		})
		return
	}

	var bounds *service.BoundsError
	switch {
	case errors.As(err, &bounds):
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount out of bounds", "details": bounds.Error()})
	case errors.Is(err, service.ErrWalletMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet address does not belong to user"})
	case errors.Is(err, repository.ErrAddressAlreadyBound):
		c.JSON(http.StatusBadRequest, gin.H{"error": "wallet address already registered to another user"})
	case errors.Is(err, service.ErrLimitExceeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": "daily transfer limit exceeded", "details": err.Error()})
	case errors.Is(err, service.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient balance", "details": err.Error()})
	case errors.Is(err, repository.ErrInsufficientLedger):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient custodial balance"})
	case errors.Is(err, service.ErrInsufficientPool):
		c.JSON(http.StatusBadRequest, gin.H{"error": "payout temporarily unavailable", "details": "house pool cannot cover the amount"})
	case errors.Is(err, repository.ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found for user"})
	case errors.Is(err, service.ErrPoolNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "custodial rail unavailable"})
	case errors.Is(err, chain.ErrConfirmTimeout):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "confirmation timed out", "details": err.Error()})
	case errors.Is(err, service.ErrSubmissionFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transaction submission failed", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}
