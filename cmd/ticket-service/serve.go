package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-ticket-issuance/internal/auth"
	"ms-ticket-issuance/internal/cache"
	"ms-ticket-issuance/internal/config"
	"ms-ticket-issuance/internal/database/migrations"
	"ms-ticket-issuance/internal/kafka"
	"ms-ticket-issuance/internal/logger"
	"ms-ticket-issuance/internal/tickets/db"
	qr "ms-ticket-issuance/internal/tickets/qr_generator"
	tickets "ms-ticket-issuance/internal/tickets/service"
	pages "ms-ticket-issuance/internal/tickets/template"
	"ms-ticket-issuance/internal/tickets/ticket_api"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ticket web service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, true)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	log.Info("APP", fmt.Sprintf("Starting %s %s", serviceName, version))

	if cfg.Database.AutoMigrate {
		if err := migrate(cfg.Database.URL, log); err != nil {
			return err
		}
	}

	bunDB, err := connectDB(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	service := tickets.NewTicketService(&db.DB{Bun: bunDB}, log)

	if countCache := connectCache(ctx, cfg.Redis, log); countCache != nil {
		defer countCache.Client.Close()
		service.Cache = countCache
	}

	if producer := connectKafka(ctx, cfg.Kafka, log); producer != nil {
		defer producer.Close()
		service.Events = producer
	}

	sessions, err := auth.NewSessionManager(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, cfg.SecureCookies())
	if err != nil {
		return err
	}

	authenticator, err := auth.NewAuthenticator(ctx, auth.Config{
		IssuerURL:    cfg.Auth.IssuerURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		BaseURL:      cfg.Server.BaseURL,
	}, sessions, log)
	if err != nil {
		return err
	}
	log.Info("AUTH", fmt.Sprintf("OIDC provider ready: %s", cfg.Auth.IssuerURL))

	renderer, err := pages.NewRenderer()
	if err != nil {
		return err
	}

	handler := ticket_api.NewHandler(service, qr.NewEncoder(cfg.QR.Size), renderer, cfg.Server.BaseURL, log)

	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: newRouter(routerDeps{
			Log:      log,
			Sessions: sessions,
			Auth:     authenticator,
			Tickets:  handler,
			Ping:     bunDB.PingContext,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("SERVER", fmt.Sprintf("Ticket service listening on %s (%s)", server.Addr, cfg.Server.BaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("SERVER", "Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("SERVER", "Shutdown complete")
	return nil
}

func migrate(databaseURL string, log *logger.Logger) error {
	runner := migrations.NewRunner(databaseURL, log)
	if err := runner.Initialize(); err != nil {
		return err
	}
	defer runner.Close()
	return runner.RunMigrations()
}

// connectDB opens the postgres pool and retries the first ping while the
// database comes up.
func connectDB(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	for i := 1; ; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i, connectAttempts))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = sqldb.PingContext(pingCtx)
		cancel()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i == connectAttempts {
			sqldb.Close()
			return nil, fmt.Errorf("connect to postgres after %d attempts: %w", connectAttempts, err)
		}

		select {
		case <-ctx.Done():
			sqldb.Close()
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// connectCache returns nil when REDIS_ADDR is unset or unreachable.
func connectCache(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *cache.TicketCountCache {
	if cfg.Addr == "" {
		log.Info("REDIS", "REDIS_ADDR not set, ticket count cache disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unreachable at %s, ticket count cache disabled: %v", cfg.Addr, err))
		client.Close()
		return nil
	}

	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, client.Options().DB))
	return cache.NewTicketCountCache(client, cfg.CountCacheTTL)
}

// connectKafka returns nil when no brokers are configured.
func connectKafka(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) *kafka.Producer {
	if len(cfg.Brokers) == 0 {
		log.Info("KAFKA", "KAFKA_BROKERS not set, ticket events disabled")
		return nil
	}

	topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := kafka.EnsureTopicsExist(topicCtx, cfg.Brokers, []string{cfg.TicketIssuedTopic}); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Could not ensure topic %s: %v", cfg.TicketIssuedTopic, err))
	}

	log.Info("KAFKA", fmt.Sprintf("Publishing ticket events to %s via %v", cfg.TicketIssuedTopic, cfg.Brokers))
	return kafka.NewProducer(cfg.Brokers, cfg.TicketIssuedTopic)
}
