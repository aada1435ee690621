package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"solbridge/internal/models"
	"solbridge/internal/service"
	"solbridge/pkg/chain"
)

type WalletHandler struct {
	wallets  service.WalletStore
	ledger   service.LedgerStore
	balances *service.BalanceService
	limits   *service.LimitService
}

func NewWalletHandler(wallets service.WalletStore, ledger service.LedgerStore,
	balances *service.BalanceService, limits *service.LimitService) *WalletHandler {
	return &WalletHandler{wallets: wallets, ledger: ledger, balances: balances, limits: limits}
}

// Register binds a self-custody wallet address to a user. The address must
// parse as a settlement-network public key.
func (h *WalletHandler) Register(c *gin.Context) {
	var req struct {
		UserID        string `json:"userId" binding:"required"`
		WalletAddress string `json:"walletAddress" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !chain.ValidAddress(req.WalletAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}
	w, err := h.wallets.RegisterSelfCustody(req.UserID, req.WalletAddress)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	log.Printf("[Wallet] registered self-custody address for user=%s", req.UserID)
	c.JSON(http.StatusOK, gin.H{"wallet": w})
}

// Balance returns the authoritative on-chain balance (refreshing the cache
// as a side effect) plus the wallet row and daily limits.
func (h *WalletHandler) Balance(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	balance, err := h.balances.RefreshCachedBalance(c.Request.Context(), req.UserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	w, err := h.wallets.GetByUserAndRail(req.UserID, models.RailSelfCustody)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	decision, err := h.limits.Check(req.UserID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "limit check unavailable", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":     chain.LamportsToSol(balance),
		"wallet":      w,
		"dailyLimits": limitsJSON(decision),
	})
}

// History returns a user's most recent ledger entries. Failed attempts are
// part of the auditable record, not hidden.
func (h *WalletHandler) History(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
		Limit  int    `json:"limit" binding:"omitempty,min=1,max=200"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	txs, err := h.ledger.ListByUser(req.UserID, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": historyJSON(txs)})
}
