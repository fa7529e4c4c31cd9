package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/auth"
	"github.com/jogardn/coastal-farmer/internal/config"
	"github.com/jogardn/coastal-farmer/internal/events"
	"github.com/jogardn/coastal-farmer/internal/httputil"
	"github.com/jogardn/coastal-farmer/internal/media"
	"github.com/jogardn/coastal-farmer/internal/middleware"
	"github.com/jogardn/coastal-farmer/internal/observability"
	"github.com/jogardn/coastal-farmer/internal/orders"
	"github.com/jogardn/coastal-farmer/internal/products"
	"github.com/jogardn/coastal-farmer/internal/server"
	"github.com/jogardn/coastal-farmer/internal/store"
	"github.com/jogardn/coastal-farmer/internal/websocket"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := cfg.Environment()
	logger.WithFields(logrus.Fields{
		"environment": env,
		"store":       cfg.Store.Driver,
		"media":       cfg.Media.Backend,
	}).Info("Starting Coastal Farmer API")

	tracer, err := observability.InitTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
		Insecure:    cfg.Otel.Insecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}
	metrics := observability.NewMetrics()

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer st.Close()

	hasher := auth.NewHasher(cfg.BcryptCost)
	if cfg.Admin.Enabled() {
		created, err := auth.EnsureAdmin(ctx, st, hasher, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			logger.WithError(err).Fatal("Failed to seed administrator")
		}
		if created {
			logger.WithField("email", cfg.Admin.Email).Info("Seeded administrator")
		}
	}

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	publisher := events.NewFanout(logger, metrics, hub)
	if cfg.Kafka.Enabled() {
		kafka, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ClientID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer kafka.Close()
		publisher.Add(kafka)
	} else {
		logger.Info("KAFKA_BROKERS not set, domain events go to the admin feed only")
	}

	var limiter middleware.Limiter
	if cfg.Redis.Enabled() {
		client, err := cfg.Redis.New(ctx)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer client.Close()
		limiter = middleware.NewRedisLimiter(client, cfg.Login.MaxAttempts, cfg.Login.Window, "login")
	} else {
		logger.Info("REDIS_URL not set, login throttling disabled")
	}

	host, err := media.Open(ctx, cfg.Media, tracer.Transport(nil), metrics, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure media backend")
	}

	renderer := httputil.NewRenderer(env.ExposesErrors(), logger)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	login, err := auth.NewHandler(st, hasher, tokens, renderer, metrics, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create login handler")
	}

	handler := server.NewHandler(server.Options{
		Health:       st,
		Tokens:       tokens,
		Login:        login,
		Products:     products.NewHandler(st, publisher, renderer, logger),
		Orders:       orders.NewHandler(st, publisher, renderer, logger),
		Media:        media.NewHandler(host, cfg.Media.Folder, renderer, logger),
		Hub:          hub,
		Metrics:      metrics,
		Tracer:       tracer,
		Limiter:      limiter,
		LoginWindow:  cfg.Login.Window,
		ExposeErrors: env.ExposesErrors(),
		Logger:       logger,
	})

	srv := server.NewHTTPServer(cfg.Port, handler)
	go func() {
		logger.WithField("port", cfg.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to flush traces")
	}

	logger.Info("Server gracefully stopped")
}
