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

	"github.com/ZamGridLabs/settlement/internal/httpapi"
	"github.com/ZamGridLabs/settlement/internal/store/gormstore"
	"github.com/ZamGridLabs/settlement/pkg/settlement"
	"github.com/glebarez/sqlite"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL         = "database-url"
	flagListenAddr          = "listen-addr"
	flagJWTSigningKey       = "jwt-signing-key"
	flagWebhookSecret       = "webhook-secret"
	flagSweepCron           = "sweep-cron"
	flagAllowedOrigins      = "allowed-origins"
	configKeyDatabaseURL    = "database_url"
	configKeyListenAddr     = "listen_addr"
	configKeyJWTSigningKey  = "jwt_signing_key"
	configKeyWebhookSecret  = "momo_webhook_secret"
	configKeySweepCron      = "sweep_cron"
	configKeyAllowedOrigins = "allowed_origins"
	defaultDatabaseURL      = "sqlite:///tmp/settlement.db"
	defaultListenAddr       = ":8080"
	defaultSweepCron        = "@every 1m"
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	JWTSigningKey  string
	WebhookSecret  string
	SweepCron      string
	AllowedOrigins string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "settlementd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "settlementd",
		Short:         "Energy trading settlement server",
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

	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.PersistentFlags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.PersistentFlags().String(flagJWTSigningKey, "", "HS256 signing key for API tokens")
	cmd.PersistentFlags().String(flagWebhookSecret, "", "HMAC secret for mobile money webhooks")
	cmd.PersistentFlags().String(flagSweepCron, defaultSweepCron, "cron expression for the due-schedule sweep")
	cmd.PersistentFlags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")

	cmd.AddCommand(newSeedCommand(cfg))

	return cmd
}

func newSeedCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:           "seed",
		Short:         "Create demo users and clusters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), cfg)
		},
	}
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	envBindings := map[string]string{
		configKeyDatabaseURL:    "DATABASE_URL",
		configKeyListenAddr:     "LISTEN_ADDR",
		configKeyJWTSigningKey:  "JWT_SIGNING_KEY",
		configKeyWebhookSecret:  "MOMO_WEBHOOK_SECRET",
		configKeySweepCron:      "SWEEP_CRON",
		configKeyAllowedOrigins: "ALLOWED_ORIGINS",
	}
	for key, envName := range envBindings {
		if err := viper.BindEnv(key, envName); err != nil {
			return err
		}
	}

	flagBindings := map[string]string{
		configKeyDatabaseURL:    flagDatabaseURL,
		configKeyListenAddr:     flagListenAddr,
		configKeyJWTSigningKey:  flagJWTSigningKey,
		configKeyWebhookSecret:  flagWebhookSecret,
		configKeySweepCron:      flagSweepCron,
		configKeyAllowedOrigins: flagAllowedOrigins,
	}
	for key, flagName := range flagBindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.JWTSigningKey = viper.GetString(configKeyJWTSigningKey)
	cfg.WebhookSecret = viper.GetString(configKeyWebhookSecret)
	cfg.SweepCron = viper.GetString(configKeySweepCron)
	if cfg.SweepCron == "" {
		cfg.SweepCron = defaultSweepCron
	}
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := settlement.NewService(store, clock,
		settlement.WithOperationLogger(&zapOperationLogger{logger: logger}))
	if err != nil {
		return fmt.Errorf("settlement service init: %w", err)
	}

	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.SweepCron, func() {
		report, sweepErr := service.ExecuteDueSweep(ctx)
		if sweepErr != nil {
			logger.Error("sweep failed", zap.Error(sweepErr))
			return
		}
		if report.Due > 0 {
			logger.Info("sweep completed",
				zap.Int("due", report.Due),
				zap.Int("executed", report.Executed),
				zap.Int("failed", report.Failed),
				zap.Int("skipped", report.Skipped))
		}
	})
	if err != nil {
		return fmt.Errorf("sweep schedule %q: %w", cfg.SweepCron, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	apiConfig := httpapi.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		JWTSigningKey:  cfg.JWTSigningKey,
		WebhookSecret:  cfg.WebhookSecret,
	}
	return httpapi.Run(ctx, apiConfig, service, logger)
}

func runSeed(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	for _, user := range seedUsers() {
		if err := store.CreateUser(ctx, user); err != nil {
			logger.Warn("seed user skipped", zap.String("user_id", user.UserID.String()), zap.Error(err))
			continue
		}
		logger.Info("seed user created", zap.String("user_id", user.UserID.String()))
	}
	for _, cluster := range seedClusters() {
		if err := store.CreateCluster(ctx, cluster); err != nil {
			logger.Warn("seed cluster skipped", zap.String("cluster_id", cluster.ClusterID.String()), zap.Error(err))
			continue
		}
		logger.Info("seed cluster created", zap.String("cluster_id", cluster.ClusterID.String()))
	}
	return nil
}

func seedUsers() []settlement.User {
	mustUserID := func(raw string) settlement.UserID {
		userID, err := settlement.NewUserID(raw)
		if err != nil {
			panic(err)
		}
		return userID
	}
	return []settlement.User{
		{UserID: mustUserID("demo-chanda"), Name: "Chanda Mwila", Phone: "+260971000001", BalanceNgwee: 50_000, BalanceEnergy: 0},
		{UserID: mustUserID("demo-bupe"), Name: "Bupe Tembo", Phone: "+260971000002", BalanceNgwee: 0, BalanceEnergy: 40_000},
		{UserID: mustUserID("demo-natasha"), Name: "Natasha Zimba", Phone: "+260971000003", BalanceNgwee: 25_000, BalanceEnergy: 10_000},
	}
}

func seedClusters() []settlement.Cluster {
	mustClusterID := func(raw string) settlement.ClusterID {
		clusterID, err := settlement.NewClusterID(raw)
		if err != nil {
			panic(err)
		}
		return clusterID
	}
	return []settlement.Cluster{
		{ClusterID: mustClusterID("cluster-kabwata"), Name: "Kabwata Solar", CapacityWh: 500_000, AvailableWh: 500_000, PricePerKWh: 150},
		{ClusterID: mustClusterID("cluster-matero"), Name: "Matero Microgrid", CapacityWh: 250_000, AvailableWh: 250_000, PricePerKWh: 120},
	}
}

// zapOperationLogger bridges domain operation callbacks onto zap.
type zapOperationLogger struct {
	logger *zap.Logger
}

func (adapter *zapOperationLogger) LogOperation(ctx context.Context, entry settlement.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.String("status", entry.Status),
	}
	if entry.CounterpartyID != nil {
		fields = append(fields, zap.String("counterparty_id", entry.CounterpartyID.String()))
	}
	if entry.ClusterID != nil {
		fields = append(fields, zap.String("cluster_id", entry.ClusterID.String()))
	}
	if entry.Reference != "" {
		fields = append(fields, zap.String("reference", entry.Reference))
	}
	if entry.EnergyWh != 0 {
		fields = append(fields, zap.Int64("energy_wh", entry.EnergyWh.Int64()))
	}
	if entry.CurrencyNgwee != 0 {
		fields = append(fields, zap.Int64("currency_ngwee", entry.CurrencyNgwee.Int64()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("settlement operation rejected", fields...)
		return
	}
	adapter.logger.Info("settlement operation", fields...)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{TranslateError: true}
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
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "settlement.db"
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

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
