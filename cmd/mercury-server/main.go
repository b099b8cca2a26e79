package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/waabox/mercury/internal/deviceflow"
	"github.com/waabox/mercury/internal/logger"
	"github.com/waabox/mercury/internal/server"
	"github.com/waabox/mercury/internal/store"
)

// Version is set by the build process.
var Version = "dev"

func main() {
	log := logger.New()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg Config, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	codes, closeCodes, err := openCodeStore(ctx, cfg.RedisURL, log)
	if err != nil {
		return err
	}
	defer closeCodes()

	opts := []deviceflow.Option{
		deviceflow.WithExpiry(cfg.CodeExpiry),
		deviceflow.WithInterval(cfg.PollInterval),
		deviceflow.WithLogger(log),
	}
	if len(cfg.ClientIDs) > 0 {
		opts = append(opts, deviceflow.WithClientIDs(cfg.ClientIDs...))
	}
	flow := deviceflow.NewFlow(codes, cfg.BaseURL+"/device", server.NewSessionIssuer(st, cfg.SessionTTL), opts...)

	srv, err := server.New(server.Config{
		BaseURL:            cfg.BaseURL,
		GitHubClientID:     cfg.GitHubClientID,
		GitHubClientSecret: cfg.GitHubClientSecret,
		SessionTTL:         cfg.SessionTTL,
		SecureCookies:      cfg.SecureCookies,
		Version:            Version,
	}, flow, st, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("version", Version).Msg("server listening")
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting server: %w", err)
		}
		return nil
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("starting shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
			return httpServer.Close()
		}
	}
	return nil
}

// openCodeStore uses Redis when redisURL is set and an in-process cache
// otherwise.
func openCodeStore(ctx context.Context, redisURL string, log zerolog.Logger) (deviceflow.Store, func(), error) {
	if redisURL == "" {
		log.Warn().Msg("REDIS_URL not set, device codes are kept in memory")
		mem := deviceflow.NewMemoryStore()
		return mem, func() { mem.Close() }, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	return deviceflow.NewRedisStore(client), func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("closing Redis connection")
		}
	}, nil
}
