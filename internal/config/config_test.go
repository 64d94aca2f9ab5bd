package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		AuthSigningKey: "test-signing-key",
		PaymentSecret:  "sk_test_123",
	}
}

func TestValidateFillsDefaults(test *testing.T) {
	test.Parallel()
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		test.Fatalf("unexpected listen addr: %s", cfg.ListenAddr)
	}
	if cfg.FreeGrantCredits != 10 {
		test.Fatalf("unexpected free grant: %d", cfg.FreeGrantCredits)
	}
	if cfg.BankFeeBps != 200 || cfg.MobileMoneyBps != 100 {
		test.Fatalf("unexpected fee defaults: bank %d, mobile %d", cfg.BankFeeBps, cfg.MobileMoneyBps)
	}
	if cfg.PaymentCurrency != "eur" {
		test.Fatalf("unexpected currency: %s", cfg.PaymentCurrency)
	}
	if len(cfg.AllowedOrigins) != 1 {
		test.Fatalf("expected default origin, got %v", cfg.AllowedOrigins)
	}
}

func TestValidateRequiresSigningKey(test *testing.T) {
	test.Parallel()
	cfg := validConfig()
	cfg.AuthSigningKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "signing key") {
		test.Fatalf("expected signing key error, got %v", err)
	}
}

func TestValidateRequiresPaymentSecret(test *testing.T) {
	test.Parallel()
	cfg := validConfig()
	cfg.PaymentSecret = "   "
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "payment secret") {
		test.Fatalf("expected payment secret error, got %v", err)
	}
}

func TestValidateStoreBackend(test *testing.T) {
	test.Parallel()
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.StoreBackend != StoreBackendGorm {
		test.Fatalf("expected gorm default, got %q", cfg.StoreBackend)
	}

	cfg = validConfig()
	cfg.StoreBackend = StoreBackendPgx
	if err := cfg.Validate(); err != nil {
		test.Fatalf("pgx backend must validate: %v", err)
	}

	cfg = validConfig()
	cfg.StoreBackend = "mysql"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "store backend") {
		test.Fatalf("expected store backend error, got %v", err)
	}
}

func TestValidateRejectsOutOfRangeFees(test *testing.T) {
	test.Parallel()
	cfg := validConfig()
	cfg.BankFeeBps = 10001
	if err := cfg.Validate(); err == nil {
		test.Fatalf("expected bank fee rejection")
	}
	cfg = validConfig()
	cfg.MobileMoneyBps = -5
	if err := cfg.Validate(); err == nil {
		test.Fatalf("expected mobile money fee rejection")
	}
}

func TestValidateRejectsNegativeFreeGrant(test *testing.T) {
	test.Parallel()
	cfg := validConfig()
	cfg.FreeGrantCredits = -1
	if err := cfg.Validate(); err == nil {
		test.Fatalf("expected free grant rejection")
	}
}

func TestParseAllowedOrigins(test *testing.T) {
	test.Parallel()
	origins := ParseAllowedOrigins(" https://a.example , ,https://b.example ")
	if len(origins) != 2 || origins[0] != "https://a.example" || origins[1] != "https://b.example" {
		test.Fatalf("unexpected origins: %v", origins)
	}
	if len(ParseAllowedOrigins("   ")) != 0 {
		test.Fatalf("blank input must yield no origins")
	}
}

func TestDefaultPacksAreCatalogReady(test *testing.T) {
	test.Parallel()
	packs := DefaultPacks()
	if len(packs) != 3 {
		test.Fatalf("expected three packs, got %d", len(packs))
	}
	seen := map[string]bool{}
	for _, pack := range packs {
		if pack.Credits <= 0 || pack.PriceCents <= 0 {
			test.Fatalf("invalid pack: %+v", pack)
		}
		if seen[pack.ProductID] {
			test.Fatalf("duplicate product id %s", pack.ProductID)
		}
		seen[pack.ProductID] = true
	}
}
