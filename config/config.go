package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime setting, sourced from the environment.
type Config struct {
	HTTPAddr      string
	DatabaseURL   string
	MigrationsDir string
	RedisAddr     string

	LedgerNetwork   string
	OperatorID      string
	OperatorKey     string
	MirrorNodeURL   string
	FungibleTokenID string
	AdminAccountID  string

	EncryptionMasterKey string

	PinataBaseURL string
	PinataJWT     string

	// Fallback gold price used by the risk evaluator when no feed is wired.
	GoldPricePerGram  float64
	GoldPriceCurrency string

	ReconcileInterval time.Duration
}

// Load reads configuration from the environment and fails fast on anything
// the orchestrators cannot run without.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("MIGRATIONS_DIR", "./storage/migrations")
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("LEDGER_NETWORK", "testnet")
	v.SetDefault("MIRROR_NODE_URL", "https://testnet.mirrornode.hedera.com")
	v.SetDefault("PINATA_BASE_URL", "https://api.pinata.cloud")
	v.SetDefault("GOLD_PRICE_PER_GRAM", 480.0)
	v.SetDefault("GOLD_PRICE_CURRENCY", "MYR")
	v.SetDefault("RECONCILE_INTERVAL", "5m")

	cfg := Config{
		HTTPAddr:            v.GetString("HTTP_ADDR"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		MigrationsDir:       v.GetString("MIGRATIONS_DIR"),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		LedgerNetwork:       v.GetString("LEDGER_NETWORK"),
		OperatorID:          v.GetString("HEDERA_OPERATOR_ID"),
		OperatorKey:         v.GetString("HEDERA_OPERATOR_KEY"),
		MirrorNodeURL:       v.GetString("MIRROR_NODE_URL"),
		FungibleTokenID:     v.GetString("FUNGIBLE_TOKEN_ID"),
		AdminAccountID:      v.GetString("ADMIN_HEDERA_ACCOUNT_ID"),
		EncryptionMasterKey: v.GetString("ENCRYPTION_MASTER_KEY"),
		PinataBaseURL:       v.GetString("PINATA_BASE_URL"),
		PinataJWT:           v.GetString("PINATA_JWT"),
		GoldPricePerGram:    v.GetFloat64("GOLD_PRICE_PER_GRAM"),
		GoldPriceCurrency:   v.GetString("GOLD_PRICE_CURRENCY"),
		ReconcileInterval:   v.GetDuration("RECONCILE_INTERVAL"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	required := map[string]string{
		"DATABASE_URL":            c.DatabaseURL,
		"HEDERA_OPERATOR_ID":      c.OperatorID,
		"HEDERA_OPERATOR_KEY":     c.OperatorKey,
		"FUNGIBLE_TOKEN_ID":       c.FungibleTokenID,
		"ADMIN_HEDERA_ACCOUNT_ID": c.AdminAccountID,
		"ENCRYPTION_MASTER_KEY":   c.EncryptionMasterKey,
	}
	for name, val := range required {
		if val == "" {
			return fmt.Errorf("%s environment variable is required", name)
		}
	}
	return nil
}
