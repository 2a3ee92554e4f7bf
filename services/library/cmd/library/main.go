package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/pagemark/internal/platform/auth"
	"github.com/example/pagemark/internal/platform/db"
	"github.com/example/pagemark/internal/platform/events"
	"github.com/example/pagemark/internal/platform/httpserver"
	"github.com/example/pagemark/internal/platform/logging"
	"github.com/example/pagemark/internal/platform/migrate"
	"github.com/example/pagemark/internal/platform/natsconn"
	"github.com/example/pagemark/internal/platform/otel"
	"github.com/example/pagemark/internal/platform/run"
	"github.com/example/pagemark/internal/platform/signing"
	libraryconfig "github.com/example/pagemark/services/library/internal/config"
	"github.com/example/pagemark/services/library/internal/handlers"
	"github.com/example/pagemark/services/library/internal/objectstore"
	"github.com/example/pagemark/services/library/internal/store"
	"github.com/example/pagemark/services/library/internal/store/migrations"
)

func main() {
	cfg, err := libraryconfig.Load()
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

	var books store.BookRepository
	if cfg.Backend == "memory" {
		log.Warn("using in-memory book store; data is lost on restart")
		books = store.NewMemoryBookRepository()
	} else {
		if err := migrate.Up(ctx, cfg.DatabaseURL, migrations.FS); err != nil {
			log.Error("migrate", zap.Error(err))
			run.Exit(1)
		}
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
		if err != nil {
			log.Error("db open", zap.Error(err))
			run.Exit(1)
		}
		defer pool.Close()
		books = store.NewPostgresBookRepository(pool)
	}

	files, err := objectstore.NewFileStore(cfg.ObjectRoot)
	if err != nil {
		log.Error("object store", zap.Error(err))
		run.Exit(1)
	}

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
	} else {
		log.Warn("NATS_URL not set; book deletions will not clear reading progress")
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log,
		Middlewares:    []func(http.Handler) http.Handler{otel.Middleware("pagemark/library")},
		ReadyFunc: func() error {
			c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return books.Ping(c)
		},
	})
	handlers.Mount(r, auth.JWTVerifier{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}, handlers.Deps{
		Books: books,
		Files: files,
		URLs: objectstore.URLSigner{
			Signer:  signing.New(cfg.SigningSecret),
			BaseURL: cfg.PublicBaseURL,
			TTL:     cfg.SignedURLTTL,
		},
		Publisher: publisher,
		MaxUpload: cfg.MaxUploadBytes,
		Log:       log,
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		return srv.Start(log)
	})
	runner.Graceful(srv.Shutdown, shutdownTracing)

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
