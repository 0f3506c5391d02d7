package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tokenpulse/internal/aggregate"
	"tokenpulse/internal/config"
	"tokenpulse/internal/ingest"
	"tokenpulse/internal/metadata"
	"tokenpulse/internal/metrics"
	"tokenpulse/internal/storage/migrations"
	"tokenpulse/internal/storage/postgres"
	"tokenpulse/internal/stream"
)

func main() {
	root := &cobra.Command{
		Use:          "tokenpulse",
		Short:        "Per-block token market snapshot pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Stream balance changes and persist market snapshots",
		RunE:  runIngest,
	}

	ingestCmd.Flags().String("stream-url", "", "block stream provider websocket URL")
	ingestCmd.Flags().String("stream-token", "", "block stream provider auth token")
	ingestCmd.Flags().String("output-module", "map_balance_changes", "provider output module name")
	ingestCmd.Flags().Uint64("start-block", 0, "start block (inclusive)")
	ingestCmd.Flags().Uint64("stop-block", 0, "stop block (exclusive), 0 means open-ended")
	ingestCmd.Flags().String("metadata-url", "", "metadata provider base URL")
	ingestCmd.Flags().String("metadata-token", "", "metadata provider auth token")
	ingestCmd.Flags().String("network", "mainnet", "network identifier for metadata lookups")
	ingestCmd.Flags().String("native-token", "", "wrapped native token address for the reference price")
	ingestCmd.Flags().Int("holder-limit", 10, "top holders fetched per token")
	ingestCmd.Flags().String("history-interval", "1h", "OHLC interval")
	ingestCmd.Flags().Int("history-limit", 24, "OHLC points fetched per token")
	ingestCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	ingestCmd.Flags().Duration("token-ttl", 5*time.Minute, "token metadata cache TTL")
	ingestCmd.Flags().Duration("ref-price-ttl", time.Minute, "reference price cache TTL")
	ingestCmd.Flags().String("default-ref-price", "2500", "reference price fallback in USD")
	ingestCmd.Flags().Duration("backoff", 5*time.Second, "wait between session restarts")
	ingestCmd.Flags().String("metrics-addr", ":9090", "prometheus listen address")
	ingestCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(ingestCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded database migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(migrateCmd)

	latestCmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the latest stored snapshot for a token",
		RunE:  runLatest,
	}
	latestCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	latestCmd.Flags().String("token", "", "token address")
	latestCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(latestCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.StreamURL == "" {
		return fmt.Errorf("stream url is required")
	}
	if cfg.MetadataURL == "" {
		return fmt.Errorf("metadata url is required")
	}
	if cfg.PgDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	defaultRefPrice, err := decimal.NewFromString(cfg.DefaultRefPrice)
	if err != nil {
		return fmt.Errorf("parse default-ref-price: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PgDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := migrations.RunPostgres(ctx, store.Pool()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	metadataClient := metadata.NewClient(metadata.ClientConfig{
		BaseURL:         cfg.MetadataURL,
		Token:           cfg.MetadataToken,
		Network:         cfg.Network,
		HolderLimit:     cfg.HolderLimit,
		HistoryInterval: cfg.HistoryInterval,
		HistoryLimit:    cfg.HistoryLimit,
	}, nil, logger)

	cache := metadata.NewCache(metadataClient, metadata.CacheConfig{
		TokenTTL:              cfg.TokenTTL,
		ReferenceTTL:          cfg.RefPriceTTL,
		NativeToken:           cfg.NativeToken,
		DefaultReferencePrice: defaultRefPrice,
	}, logger)

	aggregator := aggregate.NewAggregator(cache, logger)

	registry := prometheus.NewRegistry()
	ingestMetrics := metrics.NewIngestMetrics(registry)
	observer := metrics.NewObserver(ingestMetrics, logger)
	metricsSrv := serveMetrics(cfg.MetricsAddr, registry, logger)
	defer metricsSrv.Close()

	streamClient := stream.NewClient(cfg.StreamURL, stream.SessionConfig{
		StartBlock:   cfg.StartBlock,
		StopBlock:    cfg.StopBlock,
		OutputModule: cfg.OutputModule,
		Token:        cfg.StreamToken,
	}, logger)

	supervisor := ingest.NewSupervisor(
		ingest.Config{Backoff: cfg.Backoff},
		streamClient,
		cache,
		aggregator,
		store,
		observer,
		logger,
	)

	logger.Info("ingest start",
		zap.String("stream_url", cfg.StreamURL),
		zap.String("output_module", cfg.OutputModule),
		zap.Uint64("start_block", cfg.StartBlock),
		zap.Uint64("stop_block", cfg.StopBlock),
		zap.String("network", cfg.Network),
		zap.Duration("token_ttl", cfg.TokenTTL),
		zap.Duration("ref_price_ttl", cfg.RefPriceTTL),
		zap.Duration("backoff", cfg.Backoff),
	)

	return supervisor.Run(ctx)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PgDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PgDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := migrations.RunPostgres(ctx, store.Pool()); err != nil {
		return err
	}

	logger.Info("migrations applied")
	return nil
}

func runLatest(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		return fmt.Errorf("token address is required")
	}
	if cfg.PgDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PgDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	snapshot, err := store.Latest(ctx, token)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
