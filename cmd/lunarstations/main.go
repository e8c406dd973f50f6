package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/api"
	"github.com/aekmcb/Lunar-Stations/internal/config"
	"github.com/aekmcb/Lunar-Stations/internal/ephemeris"
	"github.com/aekmcb/Lunar-Stations/internal/health"
	"github.com/aekmcb/Lunar-Stations/internal/lunar"
	"github.com/aekmcb/Lunar-Stations/internal/station"
	"github.com/aekmcb/Lunar-Stations/internal/store"
	"github.com/aekmcb/Lunar-Stations/web"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("LUNAR_ENV_FILE")); err != nil {
		slog.Error("reading .env file", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.LogLevel(),
	}))

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	catalog, err := station.LoadFile(cfg.CatalogFile, logger)
	if err != nil {
		logger.Error("loading station catalog", "error", err)
		os.Exit(1)
	}
	engine := lunar.NewEngine(catalog, ephemeris.Meeus{}, cfg.Engine, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ready := map[string]health.Check{"ephemeris": checkEphemeris}
	results, sqlite, err := openStores(ctx, cfg.Store, ready, logger)
	if err != nil {
		logger.Error("opening result store", "error", err)
		os.Exit(1)
	}
	defer results.Close()

	srv := api.NewServer(cfg.HTTPAddr, logger, engine, results, api.Options{
		Auth:               cfg.Auth,
		TrustProxy:         cfg.TrustProxy,
		MaxConcurrentPerIP: cfg.MaxConcurrentPerIP,
		Ready:              ready,
		Static:             web.Content,
	})

	// Background goroutine to prune stale results.
	if sqlite != nil {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if _, err := sqlite.Prune(ctx, time.Now().Add(-cfg.Store.Retention)); err != nil {
						logger.Warn("pruning results failed", "error", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTPAddr,
			"auth_enabled", cfg.Auth.Enabled,
			"stations", catalog.Len(),
			"store", results.Name(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// openStores builds the result store tiers: Redis first, SQLite behind it.
// Each opened tier registers a readiness check. The SQLite tier is returned
// separately for pruning and may be nil.
func openStores(ctx context.Context, cfg config.StoreConfig, ready map[string]health.Check, logger *slog.Logger) (store.Store, *store.SQLite, error) {
	var tiers []store.Store

	rds, err := store.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	if rds != nil {
		tiers = append(tiers, rds)
		ready["redis"] = rds.Ping
	}

	var sqlite *store.SQLite
	if cfg.SQLitePath != "" {
		sqlite, err = store.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			if rds != nil {
				rds.Close()
			}
			return nil, nil, err
		}
		tiers = append(tiers, sqlite)
		ready["sqlite"] = sqlite.Ping
	}

	if len(tiers) == 0 {
		logger.Info("no result store configured, results are computed on every request")
	}
	return store.NewTiered(logger, tiers...), sqlite, nil
}

func checkEphemeris(context.Context) error {
	p, err := ephemeris.Meeus{}.Open()
	if err != nil {
		return err
	}
	defer p.Close()
	_, _, err = p.MoonPosition(time.Now(), nil)
	return err
}
