package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/pagemark/internal/platform/auth"
	"github.com/example/pagemark/internal/platform/events"
	"github.com/example/pagemark/internal/platform/httpserver"
	"github.com/example/pagemark/internal/platform/logging"
	"github.com/example/pagemark/internal/platform/natsconn"
	"github.com/example/pagemark/internal/platform/otel"
	"github.com/example/pagemark/internal/platform/run"
	progressconfig "github.com/example/pagemark/services/progress/internal/config"
	"github.com/example/pagemark/services/progress/internal/handlers"
	"github.com/example/pagemark/services/progress/internal/store"
	"github.com/example/pagemark/services/progress/internal/worker"
)

func main() {
	cfg, err := progressconfig.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	shutdownTracing, err := otel.Setup(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}

	repo, closeRepo, err := store.NewRepository(ctx, store.Options{
		Backend:     cfg.Backend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		RedisURL:    cfg.RedisURL,
		CacheTTL:    cfg.CacheTTL,
		Production:  cfg.IsProduction(),
		Logger:      log,
	})
	if err != nil {
		log.Error("open progress store", zap.Error(err))
		run.Exit(1)
	}
	defer closeRepo()

	nc, js, err := natsconn.Optional(cfg.NATSURL, cfg.ServiceName, log)
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		run.Exit(1)
	}
	publisher := events.NewPublisher(nil, log)
	if js != nil {
		defer nc.Close()
		publisher = events.NewPublisher(js, log)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Error("ensure event stream", zap.Error(err))
			run.Exit(1)
		}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log,
		Middlewares:    []func(http.Handler) http.Handler{otel.Middleware("pagemark/progress")},
		ReadyFunc: func() error {
			c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return repo.Ping(c)
		},
	})
	handlers.Mount(r, auth.JWTVerifier{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}, handlers.Deps{
		Repo:        repo,
		Publisher:   publisher,
		AsyncWrites: cfg.AsyncWrites,
		Log:         log,
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if js != nil {
			consumer := &worker.Consumer{Repo: repo, Log: log}
			go func() {
				if err := consumer.Run(ctx, js); err != nil {
					log.Error("progress consumers", zap.Error(err))
				}
			}()
		}
		return srv.Start(log)
	})
	runner.Graceful(srv.Shutdown, shutdownTracing)

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
