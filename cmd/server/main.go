package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"solbridge/config"
	"solbridge/internal/database"
	"solbridge/internal/router"
	"solbridge/pkg/chain"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	chainClient, err := chain.NewClient(
		cfg.Solana.RPCURL,
		cfg.Solana.Commitment,
		cfg.Solana.HousePoolAddress,
		cfg.Solana.HousePoolPrivateKey,
		cfg.Solana.ConfirmTimeout,
		cfg.Solana.ConfirmPollInterval,
	)
	if err != nil {
		log.Fatalf("chain client: %v", err)
	}
	if chainClient.PoolAddress() == "" {
		log.Printf("[Main] house pool not configured; custodial payouts disabled")
	}

	engine, sweep := router.Setup(cfg, db, chainClient)

	var scheduler *cron.Cron
	if cfg.Sweep.Enabled {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.Sweep.Schedule, sweep.Run); err != nil {
			log.Fatalf("sweep schedule: %v", err)
		}
		scheduler.Start()
		log.Printf("[Main] reconciliation sweep scheduled (%s)", cfg.Sweep.Schedule)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	if scheduler != nil {
		scheduler.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	log.Println("server stopped")
}
