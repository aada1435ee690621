package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"solbridge/config"
	"solbridge/internal/handler"
	"solbridge/internal/middleware"
	"solbridge/internal/repository"
	"solbridge/internal/service"
	"solbridge/pkg/chain"
	"solbridge/pkg/gamestate"
)

// Setup wires repositories, services and handlers onto a gin engine. The
// background sweep is built here too so it shares the per-user locks with
// the request path.
func Setup(cfg *config.Config, db *gorm.DB, chainClient *chain.Client) (*gin.Engine, *service.SweepService) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewKeyedLimiter(20, 40)))

	// Repositories
	walletRepo := repository.NewWalletRepository(db)
	txRepo := repository.NewTransactionRepository(db)

	// Services
	notifier := gamestate.NewNotifier(cfg.GameState.NotifyURL, cfg.GameState.Timeout)
	locks := service.NewUserLocks()
	limitSvc := service.NewLimitService(txRepo, cfg.Limits.DailyCapLamports)
	balanceSvc := service.NewBalanceService(chainClient, walletRepo, cfg.Solana.FeeBufferLamports)
	withdrawalSvc := service.NewWithdrawalService(chainClient, walletRepo, txRepo, limitSvc, balanceSvc, locks, notifier)
	payoutSvc := service.NewPayoutService(chainClient, walletRepo, txRepo, limitSvc, locks, notifier, cfg.Solana.FeeBufferLamports)
	transferSvc := service.NewTransferService(chainClient, walletRepo, txRepo, limitSvc, balanceSvc, locks, notifier)
	confirmSvc := service.NewConfirmService(chainClient, walletRepo, txRepo, balanceSvc, locks, notifier)
	railRouter := service.NewRailRouter(cfg.Limits, withdrawalSvc, payoutSvc, transferSvc)
	sweepSvc := service.NewSweepService(chainClient, walletRepo, txRepo, notifier, locks, cfg.Sweep.Lookback)

	// Handlers
	limitsHandler := handler.NewLimitsHandler(limitSvc)
	walletHandler := handler.NewWalletHandler(walletRepo, txRepo, balanceSvc, limitSvc)
	withdrawHandler := handler.NewWithdrawHandler(railRouter)
	transferHandler := handler.NewTransferHandler(railRouter)
	confirmHandler := handler.NewConfirmHandler(confirmSvc)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/limits", limitsHandler.Check)
		api.POST("/register", walletHandler.Register)
		api.POST("/balance", walletHandler.Balance)
		api.POST("/history", walletHandler.History)
		api.POST("/withdraw", withdrawHandler.Create)
		api.POST("/transfer/rail-to-rail", transferHandler.RailToRail)
		api.POST("/confirm", confirmHandler.Confirm)
	}

	return r, sweepSvc
}
