package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/ukydev/fleet-ledger/internal/auth"
	"github.com/ukydev/fleet-ledger/internal/config"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/handlers"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/middleware"
	"github.com/ukydev/fleet-ledger/internal/rates"
	"github.com/ukydev/fleet-ledger/internal/summary"
)

const shutdownTimeout = 10 * time.Second

// app holds the wired services of one process.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	store   db.Store
	rates   *rates.Provider
	ledger  *ledger.Service
	handler http.Handler
	closers []func(context.Context) error
}

func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.WithError(err).Warn("Shutdown step failed")
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (db.Store, func(context.Context) error, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("Using the in-memory store; data is lost on exit")
		return db.NewMemoryStore(), nil, nil
	}
	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	store := db.NewMongoStore(client.Database(cfg.MongoDB))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ensure indexes: %w", err)
	}
	logger.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
	return store, client.Disconnect, nil
}

func openRateCache(ctx context.Context, cfg *config.Config, store db.Store, logger *log.Logger) (rates.Cache, func(context.Context) error, error) {
	if cfg.RatesCache != config.CacheRedis {
		return rates.NewStoreCache(store), nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	logger.WithField("addr", cfg.RedisAddr).Info("Connected to Redis")
	return rates.NewRedisCache(client), func(context.Context) error { return client.Close() }, nil
}

// newApp connects the configured backends and wires the HTTP surface.
func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	cache, closeCache, err := openRateCache(ctx, cfg, store, logger)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}

	source, err := rates.NewSource(cfg.RatesSource, cfg.RatesURL, &http.Client{Timeout: cfg.RatesTimeout})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.rates = rates.NewProvider(source, cache, rates.Options{
		Reporting: cfg.ReportingCurrency,
		Freshness: cfg.RatesFreshness,
		Timeout:   cfg.RatesTimeout,
		Fallback:  cfg.RatesFallback,
	}, logger)

	a.ledger = ledger.NewService(store, a.rates, ledger.Options{
		Reporting: cfg.ReportingCurrency,
		Location:  cfg.Location,
		Logger:    logger,
	})
	engine := summary.NewEngine(a.ledger, logger)

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.handler = handlers.NewRouter(handlers.Router{
		Auth:            handlers.NewAuthHandler(authService, db.NewUserCollection(store), logger),
		Vehicles:        handlers.NewVehicleHandler(a.ledger, logger),
		Trips:           handlers.NewTripHandler(a.ledger, logger),
		Entries:         handlers.NewEntryHandler(a.ledger, handlers.PageOptions{Default: cfg.PageSizeDefault, Max: cfg.PageSizeMax}, cfg.Location, logger),
		Summary:         handlers.NewSummaryHandler(engine, cfg.Location, logger),
		Rates:           handlers.NewRateHandler(a.rates, logger),
		AuthMiddleware:  middleware.NewAuthMiddleware(authService),
		RateLimit:       cfg.RateLimit,
		RateLimitWindow: cfg.RateLimitWindow,
		Logger:          logger,
	})
	return a, nil
}

// serve runs the HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, a *app) error {
	server := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithFields(log.Fields{
			"port":      a.cfg.Port,
			"store":     a.cfg.StoreDriver,
			"reporting": a.cfg.ReportingCurrency,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("Server exited")
	return nil
}

func loadConfig(cmd *cobra.Command, logger *log.Logger) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile, ".env")
	if err != nil {
		return nil, err
	}
	cfg.ConfigureLogger(logger)
	logger.SetOutput(cmd.ErrOrStderr())
	return cfg, nil
}

func serveCmd(logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, logger)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			return serve(cmd.Context(), a)
		},
	}
}

func ratesCmd(logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "rates [CURRENCY...]",
		Short: "Fetch and cache the latest exchange rates",
		Long: `Fetches a fresh snapshot from the configured source, saves it to the
rate cache and prints the requested currencies (all of them when none are
given) in the reporting currency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, logger)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			snap, err := a.rates.Refresh(cmd.Context())
			if err != nil {
				return fmt.Errorf("refresh rates: %w", err)
			}
			codes := args
			if len(codes) == 0 {
				codes = rates.Currencies(snap)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "source %s, as of %s, 1 unit in %s\n", snap.Source, snap.AsOf.Format(time.RFC3339), snap.Base)
			for _, code := range codes {
				code = strings.ToUpper(strings.TrimSpace(code))
				rate, ok := snap.Rate(code)
				if !ok {
					fmt.Fprintf(out, "%s\tunavailable\n", code)
					continue
				}
				fmt.Fprintf(out, "%s\t%.4f\n", code, rate)
			}
			return nil
		},
	}
}

func newRootCmd(logger *log.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "fleet-ledger",
		Short:         "Multi-currency income and expense ledger for vehicle fleets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (yaml, json or toml); environment variables take precedence")
	root.AddCommand(serveCmd(logger))
	root.AddCommand(ratesCmd(logger))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.StandardLogger()
	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.WithError(err).Error("Command failed")
		stop()
		os.Exit(1)
	}
}
