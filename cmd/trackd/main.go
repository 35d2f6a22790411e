package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sandeepkv93/trackd/internal/api"
	"github.com/sandeepkv93/trackd/internal/cache"
	"github.com/sandeepkv93/trackd/internal/storage"
)

type runtimeConfig struct {
	Addr          string
	DBPath        string
	ItemsPageSize int
	CacheTTL      time.Duration
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		Addr:          ":8080",
		DBPath:        "trackd.db",
		ItemsPageSize: 2,
		CacheTTL:      300 * time.Second,
	}
}

func runtimeConfigFromEnv(base runtimeConfig) runtimeConfig {
	cfg := base
	if v := strings.TrimSpace(os.Getenv("TRACKD_ADDR")); v != "" {
		cfg.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("TRACKD_DB")); v != "" {
		cfg.DBPath = v
	}
	if v, ok := getEnvInt("TRACKD_ITEMS_PAGE_SIZE"); ok && v > 0 {
		cfg.ItemsPageSize = v
	}
	if v, ok := getEnvInt("TRACKD_CACHE_TTL_SECONDS"); ok && v > 0 {
		cfg.CacheTTL = time.Duration(v) * time.Second
	}
	return cfg
}

func getEnvInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "trackd failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := runtimeConfigFromEnv(defaultRuntimeConfig())

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	flag.IntVar(&cfg.ItemsPageSize, "items-page-size", cfg.ItemsPageSize, "sub-item page size")
	flag.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "template detail cache ttl")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	repo, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := storage.MigrateUp(repo.DB()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	store := cache.NewMemory()
	defer store.Close()

	server := api.NewServer(repo, store, api.Config{
		ItemsPageSize: cfg.ItemsPageSize,
		CacheTTL:      cfg.CacheTTL,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "db", cfg.DBPath)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
