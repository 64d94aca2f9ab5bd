package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/afrikoin/likeledger/internal/auth"
	"github.com/afrikoin/likeledger/internal/config"
	"github.com/afrikoin/likeledger/internal/httpserver"
	"github.com/afrikoin/likeledger/internal/payment"
	"github.com/afrikoin/likeledger/internal/store/gormstore"
	"github.com/afrikoin/likeledger/internal/store/pgstore"
	"github.com/afrikoin/likeledger/pkg/audit"
	"github.com/afrikoin/likeledger/pkg/credits"
	"github.com/afrikoin/likeledger/pkg/wallet"
)

const (
	flagDatabaseURL     = "database-url"
	flagStoreBackend    = "store-backend"
	flagListenAddr      = "listen-addr"
	flagAllowedOrigins  = "allowed-origins"
	flagAuthSigningKey  = "auth-signing-key"
	flagAuthIssuer      = "auth-issuer"
	flagPaymentBaseURL  = "payment-base-url"
	flagPaymentSecret   = "payment-secret"
	flagPaymentCurrency = "payment-currency"
	flagFreeGrant       = "free-grant"
	flagBankFeeBps      = "bank-fee-bps"
	flagMobileFeeBps    = "mobile-money-fee-bps"

	configKeyDatabaseURL     = "database_url"
	configKeyStoreBackend    = "store_backend"
	configKeyListenAddr      = "listen_addr"
	configKeyAllowedOrigins  = "allowed_origins"
	configKeyAuthSigningKey  = "auth_signing_key"
	configKeyAuthIssuer      = "auth_issuer"
	configKeyPaymentBaseURL  = "payment_base_url"
	configKeyPaymentSecret   = "payment_secret"
	configKeyPaymentCurrency = "payment_currency"
	configKeyFreeGrant       = "free_grant"
	configKeyBankFeeBps      = "bank_fee_bps"
	configKeyMobileFeeBps    = "mobile_money_fee_bps"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "likeledgerd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "likeledgerd",
		Short:         "Like-credit ledger and cash balance HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, "", "PostgreSQL or SQLite connection string")
	cmd.Flags().String(flagStoreBackend, "", "storage backend: gorm or pgx")
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")
	cmd.Flags().String(flagAuthSigningKey, "", "HS256 bearer token signing key")
	cmd.Flags().String(flagAuthIssuer, "", "expected bearer token issuer")
	cmd.Flags().String(flagPaymentBaseURL, "", "payment provider API base URL")
	cmd.Flags().String(flagPaymentSecret, "", "payment provider secret key")
	cmd.Flags().String(flagPaymentCurrency, "", "expected checkout currency")
	cmd.Flags().Int64(flagFreeGrant, 0, "credits granted on first balance access")
	cmd.Flags().Int64(flagBankFeeBps, 0, "bank withdrawal fee in basis points")
	cmd.Flags().Int64(flagMobileFeeBps, 0, "mobile money withdrawal fee in basis points")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:     "DATABASE_URL",
		configKeyStoreBackend:    "STORE_BACKEND",
		configKeyListenAddr:      "LISTEN_ADDR",
		configKeyAllowedOrigins:  "ALLOWED_ORIGINS",
		configKeyAuthSigningKey:  "AUTH_SIGNING_KEY",
		configKeyAuthIssuer:      "AUTH_ISSUER",
		configKeyPaymentBaseURL:  "PAYMENT_BASE_URL",
		configKeyPaymentSecret:   "PAYMENT_SECRET",
		configKeyPaymentCurrency: "PAYMENT_CURRENCY",
		configKeyFreeGrant:       "FREE_GRANT",
		configKeyBankFeeBps:      "BANK_FEE_BPS",
		configKeyMobileFeeBps:    "MOBILE_MONEY_FEE_BPS",
	}
	for key, envName := range bindings {
		if err := viper.BindEnv(key, envName); err != nil {
			return err
		}
	}

	flagBindings := map[string]string{
		configKeyDatabaseURL:     flagDatabaseURL,
		configKeyStoreBackend:    flagStoreBackend,
		configKeyListenAddr:      flagListenAddr,
		configKeyAllowedOrigins:  flagAllowedOrigins,
		configKeyAuthSigningKey:  flagAuthSigningKey,
		configKeyAuthIssuer:      flagAuthIssuer,
		configKeyPaymentBaseURL:  flagPaymentBaseURL,
		configKeyPaymentSecret:   flagPaymentSecret,
		configKeyPaymentCurrency: flagPaymentCurrency,
		configKeyFreeGrant:       flagFreeGrant,
		configKeyBankFeeBps:      flagBankFeeBps,
		configKeyMobileFeeBps:    flagMobileFeeBps,
	}
	for key, flagName := range flagBindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	cfg.StoreBackend = viper.GetString(configKeyStoreBackend)
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	cfg.AllowedOrigins = config.ParseAllowedOrigins(viper.GetString(configKeyAllowedOrigins))
	cfg.AuthSigningKey = viper.GetString(configKeyAuthSigningKey)
	cfg.AuthIssuer = viper.GetString(configKeyAuthIssuer)
	cfg.PaymentBaseURL = viper.GetString(configKeyPaymentBaseURL)
	cfg.PaymentSecret = viper.GetString(configKeyPaymentSecret)
	cfg.PaymentCurrency = viper.GetString(configKeyPaymentCurrency)
	cfg.FreeGrantCredits = viper.GetInt64(configKeyFreeGrant)
	cfg.BankFeeBps = viper.GetInt64(configKeyBankFeeBps)
	cfg.MobileMoneyBps = viper.GetInt64(configKeyMobileFeeBps)

	return cfg.Validate()
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	stores, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	clock := func() int64 { return time.Now().UTC().Unix() }

	engine, err := credits.NewService(
		stores.credits,
		clock,
		credits.WithFreeGrant(cfg.FreeGrantCredits),
		credits.WithOperationLogger(&creditOperationLogger{logger: logger}),
	)
	if err != nil {
		return fmt.Errorf("credit engine init: %w", err)
	}

	catalog, err := credits.NewCatalog(config.DefaultPacks())
	if err != nil {
		return fmt.Errorf("catalog init: %w", err)
	}

	provider, err := payment.NewClient(cfg.PaymentBaseURL, cfg.PaymentSecret, cfg.PaymentTimeout)
	if err != nil {
		return fmt.Errorf("payment client init: %w", err)
	}

	verifier, err := credits.NewVerifier(
		engine,
		catalog,
		provider,
		credits.WithCurrency(cfg.PaymentCurrency),
		credits.WithVerifierLogger(&creditOperationLogger{logger: logger}),
	)
	if err != nil {
		return fmt.Errorf("verifier init: %w", err)
	}

	fees, err := wallet.NewFeeSchedule(map[wallet.MethodType]int64{
		wallet.MethodBank:        cfg.BankFeeBps,
		wallet.MethodMobileMoney: cfg.MobileMoneyBps,
	})
	if err != nil {
		return fmt.Errorf("fee schedule init: %w", err)
	}

	coordinator, err := wallet.NewCoordinator(
		stores.wallet,
		fees,
		clock,
		wallet.WithOperationLogger(&walletOperationLogger{logger: logger}),
	)
	if err != nil {
		return fmt.Errorf("coordinator init: %w", err)
	}

	recorder, err := audit.NewRecorder(stores.audit, clock)
	if err != nil {
		return fmt.Errorf("recorder init: %w", err)
	}

	validator, err := auth.NewValidator([]byte(cfg.AuthSigningKey), cfg.AuthIssuer)
	if err != nil {
		return fmt.Errorf("auth validator init: %w", err)
	}

	server, err := httpserver.New(logger, engine, verifier, catalog, coordinator, recorder, validator, httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("http server init: %w", err)
	}

	return server.Run(ctx)
}

// storeSet groups one backend's implementations of the three store contracts.
type storeSet struct {
	credits credits.Store
	wallet  wallet.Store
	audit   audit.Store
}

func openStores(ctx context.Context, cfg *config.Config) (storeSet, func() error, error) {
	if cfg.StoreBackend == config.StoreBackendPgx {
		driver, _, err := resolveDriver(cfg.DatabaseURL)
		if err != nil {
			return storeSet{}, nil, err
		}
		if driver != "postgres" {
			return storeSet{}, nil, fmt.Errorf("pgx backend requires a postgres database url")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return storeSet{}, nil, err
		}
		if err := pgstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return storeSet{}, nil, err
		}
		stores := storeSet{
			credits: pgstore.NewCredits(pool),
			wallet:  pgstore.NewWallet(pool),
			audit:   pgstore.NewAudit(pool),
		}
		return stores, func() error { pool.Close(); return nil }, nil
	}

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return storeSet{}, nil, err
	}
	if driver == "sqlite" {
		if err := gormstore.Migrate(gormDB); err != nil {
			_ = cleanup()
			return storeSet{}, nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	stores := storeSet{
		credits: gormstore.NewCredits(gormDB),
		wallet:  gormstore.NewWallet(gormDB),
		audit:   gormstore.NewAudit(gormDB),
	}
	return stores, cleanup, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = "likeledger.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
