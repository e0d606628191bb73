// Package config loads server settings from the environment and the
// optional asset policy file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds server settings.
type Config struct {
	DBPath     string
	ListenAddr string
	JWTSecret  string
	TokenTTL   time.Duration
	LogLevel   string
	LogFormat  string

	// NATSURL enables event fan-out. Empty means events are only logged.
	NATSURL       string
	NATSSubject   string
	RelayInterval time.Duration

	PolicyFile         string
	ClaimWhileDisputed bool
	DistributorAccount common.Address
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:      getEnv("DB_PATH", "./data/settlement.db"),
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		NATSURL:     os.Getenv("NATS_URL"),
		NATSSubject: getEnv("NATS_SUBJECT_PREFIX", "settlement"),
		PolicyFile:  os.Getenv("POLICY_FILE"),
	}

	var err error
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RelayInterval, err = getDuration("RELAY_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.ClaimWhileDisputed, err = getBool("CLAIM_WHILE_DISPUTED", false); err != nil {
		return nil, err
	}

	if v := os.Getenv("DISTRIBUTOR_ACCOUNT"); v != "" {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("invalid DISTRIBUTOR_ACCOUNT %q", v)
		}
		cfg.DistributorAccount = common.HexToAddress(v)
	}

	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}

	return cfg, nil
}
