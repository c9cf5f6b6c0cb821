package httpapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":8080"
	defaultAllowedOrigin = "http://localhost:8000"
	defaultJWTIssuer     = "settlementd"
	walletHistoryLimit   = 10
	transactionPageLimit = 50
)

// Config aggregates runtime settings for the HTTP façade.
type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	JWTSigningKey   string
	JWTIssuer       string
	WebhookSecret   string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Validate ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.JWTIssuer = defaultIfEmpty(cfg.JWTIssuer, defaultJWTIssuer)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if len(cfg.JWTSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	if len(cfg.WebhookSecret) == 0 {
		return fmt.Errorf("webhook secret is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

// WalletHistoryLimit returns how many ledger entries a wallet fetch includes.
func WalletHistoryLimit() int {
	return walletHistoryLimit
}

// TransactionPageLimit returns how many transactions a history fetch includes.
func TransactionPageLimit() int {
	return transactionPageLimit
}
