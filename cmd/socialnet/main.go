package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	chatsvc "socialnet/internal/app/services/chat"
	domainchat "socialnet/internal/domain/chat"
	domainuser "socialnet/internal/domain/user"
	"socialnet/internal/infra/broker/kafka"
	"socialnet/internal/infra/config"
	mongostore "socialnet/internal/infra/db/mongo"
	ginserver "socialnet/internal/infra/http/gin"
	"socialnet/internal/infra/obs"
	"socialnet/internal/infra/realtime"
	"socialnet/internal/infra/security"
	"socialnet/internal/infra/storage/memory"
	"socialnet/internal/infra/storage/s3"
	"socialnet/internal/infra/storage/scylla"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.NewLogger(getenv("APP_ENV", "dev"))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	if app.consumer != nil {
		go func() {
			if err := app.consumer.Run(ctx, []string{cfg.KafkaTopic}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka relay consumer stopped", "error", err)
			}
		}()
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: app.ready}, app.handlers)

	go func() {
		<-ctx.Done()
		app.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver, "relay", app.consumer != nil)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	hub      *realtime.Hub
	consumer *kafka.Consumer
	checks   []func(context.Context) error
	closers  []func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{hub: realtime.NewHub(logger)}

	store, users, err := app.buildStorage(ctx, cfg, logger)
	if err != nil {
		app.close(logger)
		return nil, err
	}

	if cfg.S3Endpoint != "" {
		objects, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			app.close(logger)
			return nil, err
		}
		users = s3.AvatarDirectory{Next: users, Objects: objects}
		app.checks = append(app.checks, objects.Ping)
	}

	var publisher domainchat.Publisher = app.hub
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			app.close(logger)
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.closers = append(app.closers, producer.Close)
		groupID := cfg.KafkaGroupPrefix + "-" + uuid.NewString()
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, groupID, nil, kafka.RelayHandler{Hub: app.hub, Logger: logger}, logger)
		if err != nil {
			app.close(logger)
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		app.closers = append(app.closers, consumer.Close)
		app.consumer = consumer
		publisher = kafka.Relay{Producer: producer, Topic: cfg.KafkaTopic}
		logger.Info("kafka relay enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic, "group", groupID)
	}

	chat := &chatsvc.Service{
		Store:     store,
		Users:     users,
		Publisher: publisher,
		Logger:    logger.With("component", "chat"),
	}
	tokens := security.JWTVerifier{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer, Leeway: 30 * time.Second}

	app.handlers = ginserver.Handlers{
		Chat: ginserver.ChatHandler{Chat: chat, Logger: logger},
		Socket: ginserver.SocketHandler{
			Hub:            app.hub,
			Chat:           chat,
			Tokens:         tokens,
			Options:        realtime.Options{SendBuffer: cfg.WSSendBuffer, PingInterval: cfg.WSPingInterval},
			AllowedOrigins: cfg.WSAllowedOrigins,
			Logger:         logger.With("component", "socket"),
		},
		AuthMiddleware: ginserver.AuthMiddleware{Tokens: tokens, Logger: logger}.Handle,
	}
	return app, nil
}

func (a *application) buildStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (domainchat.Store, domainuser.Directory, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		a.closers = append(a.closers, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Close(closeCtx)
		})
		a.checks = append(a.checks, client.Ping)
		repo, err := mongostore.NewConversationRepository(ctx, client.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		logger.Info("mongo store ready", "db", cfg.MongoDB)
		return repo, mongostore.NewUserDirectory(client.DB), nil

	case config.StoreScylla:
		session, err := scylla.NewSession(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() error {
			session.Close()
			return nil
		})
		a.checks = append(a.checks, func(ctx context.Context) error {
			return session.Query("SELECT now() FROM system.local").WithContext(ctx).Exec()
		})
		users, err := loadUserFixtures(cfg.UserFixtures, logger)
		if err != nil {
			return nil, nil, err
		}
		return scylla.NewStore(session, logger), users, nil

	default:
		users, err := loadUserFixtures(cfg.UserFixtures, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("using in-memory conversation store")
		return memory.NewConversationStore(), users, nil
	}
}

func (a *application) ready(ctx context.Context) error {
	for _, check := range a.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *application) close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
}

type userFixture struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProfilePic string `json:"profilePic"`
}

func loadUserFixtures(path string, logger *slog.Logger) (*memory.UserDirectory, error) {
	users := memory.NewUserDirectory()
	if path == "" {
		path = defaultUserFixturesPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("user fixtures file not found, skipping", "path", path)
			return users, nil
		}
		return nil, fmt.Errorf("read user fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("user fixtures file empty", "path", path)
		return users, nil
	}

	var fixtures []userFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("decode user fixtures: %w", err)
	}
	for _, fx := range fixtures {
		if fx.ID == "" {
			logger.Warn("user fixture without id skipped", "name", fx.Name)
			continue
		}
		users.Put(domainuser.Profile{ID: domainuser.ID(fx.ID), Name: fx.Name, AvatarRef: fx.ProfilePic})
	}
	logger.Info("user fixtures imported", "path", path, "count", len(fixtures))
	return users, nil
}

func defaultUserFixturesPath() string {
	return filepath.Join("data", "users.json")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
