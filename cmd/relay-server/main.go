package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // EVENT_TIMEZONE must resolve in minimal containers.

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/api"
	"github.com/intermernet/relayrace/internal/auth"
	"github.com/intermernet/relayrace/internal/config"
	"github.com/intermernet/relayrace/internal/database"
	"github.com/intermernet/relayrace/internal/race"
	"github.com/intermernet/relayrace/internal/realtime"
)

const shutdownTimeout = 10 * time.Second

// main is the entry point for the relay race server.
func main() {
	hashPassword := flag.String("hash-password", "", "print the STAFF_PASSWORD_HASH for the given password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// A .env file is optional; real environment variables win in production.
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DBDriver == database.DriverSQLite {
		if err := os.MkdirAll(cfg.DataPath, 0755); err != nil {
			return fmt.Errorf("could not create data directory %s: %w", cfg.DataPath, err)
		}
	}

	store, err := database.NewService(cfg.DBDriver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("could not open %s store: %w", cfg.DBDriver, err)
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		return fmt.Errorf("could not initialise schema: %w", err)
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("store ready")

	broker := realtime.NewBroker()

	// Events go through Redis when configured, so every instance's
	// subscribers see personal records set on any instance.
	var publisher realtime.Publisher = broker
	if cfg.RedisURL != "" {
		relay, err := realtime.NewRedisRelay(ctx, cfg.RedisURL, cfg.RedisChannel, broker)
		if err != nil {
			return fmt.Errorf("could not connect to redis: %w", err)
		}
		defer relay.Close()
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("redis relay stopped")
			}
		}()
		publisher = relay
	}

	controller := race.NewController(store, publisher, cfg.Location)
	server := api.NewServer(cfg, store, controller, broker)

	httpServer := newHTTPServer(ctx, cfg.ServerAddr, server.Routes())

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ServerAddr).Bool("staff_auth", cfg.StaffAuthEnabled()).Msg("relay race server starting")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newHTTPServer derives every request context from ctx, so open event
// streams end on SIGINT/SIGTERM instead of holding up Shutdown.
func newHTTPServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}
