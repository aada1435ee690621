package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Solana    SolanaConfig
	Limits    LimitsConfig
	Sweep     SweepConfig
	GameState GameStateConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// SolanaConfig configures the settlement-network client.
type SolanaConfig struct {
	RPCURL              string
	Commitment          string // processed, confirmed or finalized
	HousePoolAddress    string
	HousePoolPrivateKey string // base58, signs custodial payouts
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	FeeBufferLamports   int64 // reserved for network fees on every balance check
}

// LimitsConfig holds the shared daily cap and the per-rail amount bounds.
// All values are lamports.
type LimitsConfig struct {
	DailyCapLamports int64
	SelfCustody      RailBounds
	Custodial        RailBounds
}

type RailBounds struct {
	MinLamports int64
	MaxLamports int64
}

type SweepConfig struct {
	Enabled  bool
	Schedule string        // cron spec, e.g. "@every 5m"
	Lookback time.Duration // how far back to re-check unresolved entries
}

// GameStateConfig points at the external real-time game server. Empty URL
// disables notification entirely.
type GameStateConfig struct {
	NotifyURL string
	Timeout   time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         envStr("PORT", "8080"),
			Env:          envStr("APP_ENV", "development"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second, // phase-2 confirmation can hold a request for up to 30s
		},
		Database: DatabaseConfig{
			DSN:             envStr("DATABASE_DSN", "solbridge:solbridge@tcp(localhost:3306)/solbridge?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		Solana: SolanaConfig{
			RPCURL:              envStr("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
			Commitment:          envStr("SOLANA_COMMITMENT", "confirmed"),
			HousePoolAddress:    envStr("HOUSE_POOL_ADDRESS", ""),
			HousePoolPrivateKey: envStr("HOUSE_POOL_PRIVATE_KEY", ""),
			ConfirmTimeout:      30 * time.Second,
			ConfirmPollInterval: 2 * time.Second,
			FeeBufferLamports:   envLamports("FEE_BUFFER_LAMPORTS", 5_000_000), // 0.005 SOL
		},
		Limits: LimitsConfig{
			DailyCapLamports: envLamports("DAILY_CAP_LAMPORTS", 20_000_000_000), // 20 SOL per UTC day
			SelfCustody: RailBounds{
				MinLamports: envLamports("SELF_CUSTODY_MIN_LAMPORTS", 100_000_000),    // 0.1 SOL
				MaxLamports: envLamports("SELF_CUSTODY_MAX_LAMPORTS", 10_000_000_000), // 10 SOL
			},
			Custodial: RailBounds{
				MinLamports: envLamports("CUSTODIAL_MIN_LAMPORTS", 50_000_000),      // 0.05 SOL
				MaxLamports: envLamports("CUSTODIAL_MAX_LAMPORTS", 10_000_000_000), // 10 SOL
			},
		},
		Sweep: SweepConfig{
			Enabled:  envStr("SWEEP_ENABLED", "true") == "true",
			Schedule: envStr("SWEEP_SCHEDULE", "@every 5m"),
			Lookback: 24 * time.Hour,
		},
		GameState: GameStateConfig{
			NotifyURL: envStr("GAMESTATE_NOTIFY_URL", ""),
			Timeout:   5 * time.Second,
		},
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envLamports(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
