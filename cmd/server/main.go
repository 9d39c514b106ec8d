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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"hotelpos/backend/internal/config"
	"hotelpos/backend/internal/httpapi"
	"hotelpos/backend/internal/logging"
	"hotelpos/backend/internal/notify"
	"hotelpos/backend/internal/numbering"
	"hotelpos/backend/internal/service"
	"hotelpos/backend/internal/store"
	"hotelpos/backend/internal/store/memory"
	pgstore "hotelpos/backend/internal/store/postgres"
)

const numberLockTTL = 5 * time.Second

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.Development())

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	broadcaster := notify.Broadcaster(notify.NoopBroadcaster{})
	locker := numbering.Locker(numbering.NewLocalLocker())
	if client := connectRedis(ctx, cfg); client != nil {
		broadcaster = notify.NewRedisBroadcaster(client, cfg.KitchenChannel)
		locker = numbering.NewRedisLocker(client, numberLockTTL)
		closers = append(closers, client.Close)
		log.Info().Str("channel", cfg.KitchenChannel).Msg("kitchen broadcast: redis")
	} else {
		log.Info().Msg("kitchen broadcast: noop")
	}

	repo, closeRepo, err := openRepository(ctx, cfg, locker)
	if err != nil {
		log.Fatal().Err(err).Msg("DATABASE_URL is set but postgres is unavailable; refusing to start with in-memory fallback")
	}
	if closeRepo != nil {
		closers = append([]func() error{closeRepo}, closers...)
	}

	svc := service.New(repo, broadcaster, service.Options{InvoicePrefix: cfg.InvoicePrefix})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, svc)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Development:   cfg.Development(),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("env", cfg.Env).Msg("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// openRepository picks postgres when DATABASE_URL is set and the seeded
// in-memory store otherwise. The returned closer is nil for memory.
func openRepository(ctx context.Context, cfg config.Config, locker numbering.Locker) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Info().Msg("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
	pg, err := pgstore.New(ctx, cfg.DatabaseURL,
		pgstore.WithAutoMigrate(cfg.AutoMigrate),
		pgstore.WithLocker(locker),
	)
	if err != nil {
		return nil, nil, err
	}
	caps := pg.Capabilities()
	log.Info().
		Bool("auto_migrate", cfg.AutoMigrate).
		Bool("document_sequences", caps.HasDocumentSequences).
		Msg("repository: postgres")
	return pg, pg.Close, nil
}

// connectRedis returns nil when Redis is not configured or does not answer.
// Kitchen broadcast and number locks then stay in-process.
func connectRedis(ctx context.Context, cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := notify.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, falling back to in-process broadcast and locks")
		_ = client.Close()
		return nil
	}
	return client
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.InvoicePrefix == "" {
		return fmt.Errorf("INVOICE_PREFIX must not be empty")
	}
	return nil
}
