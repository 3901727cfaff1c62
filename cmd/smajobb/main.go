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

	"github.com/google/uuid"

	appoutbox "smajobb/internal/app/outbox"
	authservice "smajobb/internal/app/services/auth"
	escrowservice "smajobb/internal/app/services/escrow"
	"smajobb/internal/domain/chat"
	"smajobb/internal/domain/listings"
	domainreviews "smajobb/internal/domain/reviews"
	domainuser "smajobb/internal/domain/user"
	"smajobb/internal/infra/broker/kafka"
	"smajobb/internal/infra/config"
	mongodb "smajobb/internal/infra/db/mongo"
	ginserver "smajobb/internal/infra/http/gin"
	"smajobb/internal/infra/obs"
	infraoutbox "smajobb/internal/infra/outbox"
	"smajobb/internal/infra/payments"
	"smajobb/internal/infra/security"
	"smajobb/internal/infra/storage/memory"
	"smajobb/internal/infra/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		if env != "dev" {
			logger.Error("configuration invalid", "error", err)
			os.Exit(1)
		}
		logger.Warn("using fallback dev configuration", "error", err)
		cfg = devFallbackConfig(env)
	}

	app, ready, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Error("wiring failed", "error", err)
		os.Exit(1)
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: ready}, app.handlers)

	if app.worker != nil {
		go func() {
			if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type repositories struct {
	listings      listings.Repository
	conversations chat.ConversationRepository
	messages      chat.MessageRepository
	users         domainuser.Repository
	reviews       domainreviews.Repository
}

type application struct {
	handlers ginserver.Handlers
	worker   *infraoutbox.Worker
}

func buildApplication(cfg config.Config, logger *slog.Logger) (application, func() error, error) {
	repos, ready, err := buildRepositories(cfg, logger)
	if err != nil {
		return application{}, nil, err
	}

	queue := memory.NewOutboxQueue()
	encoder := appoutbox.JSONEventEncoder{}
	processor := payments.NewMemoryProcessor()
	hub := ws.NewHub(logger)

	tokens := security.NewTokenAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	authSvc := &authservice.Service{
		Users:     repos.users,
		Passwords: security.BcryptHasher{},
		Tokens:    tokens,
		Logger:    logger,
	}
	escrowSvc := &escrowservice.Service{
		Listings:      repos.listings,
		Conversations: repos.conversations,
		Messages:      repos.messages,
		Users:         repos.users,
		Payments:      processor,
		Outbox:        queue,
		Encoder:       encoder,
		Broadcast:     hub,
		FeePercent:    cfg.PlatformFeePercent,
		Logger:        logger,
	}

	var worker *infraoutbox.Worker
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return application{}, nil, err
		}
		worker = &infraoutbox.Worker{
			Store:       queue,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			ID:          uuid.NewString(),
			Backoff:     cfg.RetryBackoff,
		}
	} else {
		logger.Info("kafka brokers not configured, outbox worker disabled")
	}

	handlers := ginserver.Handlers{
		Auth: ginserver.AuthHandler{Service: authSvc, Users: repos.users, Logger: logger},
		Listing: ginserver.ListingHandler{
			Listings: repos.listings,
			Currency: cfg.Currency,
			Outbox:   queue,
			Encoder:  encoder,
			Logger:   logger,
		},
		Chat: ginserver.ChatHandler{
			Conversations: repos.conversations,
			Messages:      repos.messages,
			Listings:      repos.listings,
			Broadcast:     hub,
			WSBase:        cfg.PublicWSBase,
			Logger:        logger,
		},
		Escrow: ginserver.EscrowHandler{Service: escrowSvc, Logger: logger},
		Review: ginserver.ReviewHandler{
			Reviews:  repos.reviews,
			Listings: repos.listings,
			Logger:   logger,
		},
		Channel:        ginserver.NewChannelHandler(hub, repos.conversations, logger),
		AuthMiddleware: ginserver.AuthMiddleware{Tokens: tokens, Logger: logger}.Handle,
	}

	return application{handlers: handlers, worker: worker}, ready, nil
}

func buildRepositories(cfg config.Config, logger *slog.Logger) (repositories, func() error, error) {
	if cfg.MongoURI == "" {
		logger.Info("mongo not configured, using in-memory storage")
		conversations := memory.NewConversationRepository()
		return repositories{
			listings:      memory.NewListingRepository(),
			conversations: conversations,
			messages:      conversations,
			users:         memory.NewUserRepository(),
			reviews:       memory.NewReviewRepository(),
		}, func() error { return nil }, nil
	}

	client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return repositories{}, nil, err
	}
	conversations := mongodb.NewConversationRepository(client.DB)
	ready := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(ctx)
	}
	return repositories{
		listings:      mongodb.NewListingRepository(client.DB),
		conversations: conversations,
		messages:      conversations,
		users:         mongodb.NewUserRepository(client.DB),
		reviews:       mongodb.NewReviewRepository(client.DB),
	}, ready, nil
}

func devFallbackConfig(env string) config.Config {
	return config.Config{
		Env:                env,
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		PublicWSBase:       "ws://localhost:8080",
		OutboxPollInterval: 500 * time.Millisecond,
		JWTSecret:          "dev-only-secret",
		JWTIssuer:          "smajobb",
		JWTTTL:             24 * time.Hour,
		Currency:           "NOK",
		PlatformFeePercent: 5,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
