package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr      = ":8080"
	defaultDatabaseURL     = "sqlite:///tmp/likeledger.db"
	defaultAllowedOrigin   = "http://localhost:3000"
	defaultAuthIssuer      = "likeledger"
	defaultPaymentBaseURL  = "https://api.stripe.com"
	defaultPaymentCurrency = "eur"
	defaultPaymentTimeout  = 10 * time.Second
	defaultFreeGrant       = 10
	defaultBankFeeBps      = 200
	defaultMobileFeeBps    = 100
)

// Store backends selectable via configuration.
const (
	StoreBackendGorm = "gorm"
	StoreBackendPgx  = "pgx"
)

// Config aggregates runtime settings for the ledger service.
type Config struct {
	ListenAddr       string
	DatabaseURL      string
	StoreBackend     string
	AllowedOrigins   []string
	AuthSigningKey   string
	AuthIssuer       string
	PaymentBaseURL   string
	PaymentSecret    string
	PaymentCurrency  string
	PaymentTimeout   time.Duration
	FreeGrantCredits int64
	BankFeeBps       int64
	MobileMoneyBps   int64
}

// Validate fills defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreBackend = defaultIfEmpty(cfg.StoreBackend, StoreBackendGorm)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.AuthIssuer = defaultIfEmpty(cfg.AuthIssuer, defaultAuthIssuer)
	cfg.PaymentBaseURL = defaultIfEmpty(cfg.PaymentBaseURL, defaultPaymentBaseURL)
	cfg.PaymentCurrency = defaultIfEmpty(cfg.PaymentCurrency, defaultPaymentCurrency)
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = defaultPaymentTimeout
	}
	if cfg.FreeGrantCredits == 0 {
		cfg.FreeGrantCredits = defaultFreeGrant
	}
	if cfg.BankFeeBps == 0 {
		cfg.BankFeeBps = defaultBankFeeBps
	}
	if cfg.MobileMoneyBps == 0 {
		cfg.MobileMoneyBps = defaultMobileFeeBps
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("database url is required")
	}
	if cfg.StoreBackend != StoreBackendGorm && cfg.StoreBackend != StoreBackendPgx {
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if len(cfg.AuthSigningKey) == 0 {
		return fmt.Errorf("auth signing key is required")
	}
	if strings.TrimSpace(cfg.PaymentSecret) == "" {
		return fmt.Errorf("payment secret is required")
	}
	if cfg.FreeGrantCredits < 0 {
		return fmt.Errorf("free grant must not be negative")
	}
	if cfg.BankFeeBps < 0 || cfg.BankFeeBps > 10000 {
		return fmt.Errorf("bank fee rate out of range")
	}
	if cfg.MobileMoneyBps < 0 || cfg.MobileMoneyBps > 10000 {
		return fmt.Errorf("mobile money fee rate out of range")
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
