package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/chatstream/visibility/internal/api"
	"github.com/chatstream/visibility/internal/backend"
	"github.com/chatstream/visibility/internal/chatfeed"
	"github.com/chatstream/visibility/internal/events"
	"github.com/chatstream/visibility/internal/render"
	"github.com/chatstream/visibility/internal/session"
	"github.com/chatstream/visibility/internal/settings"
	"github.com/chatstream/visibility/pkg/config"
	"github.com/chatstream/visibility/pkg/health"
	"github.com/chatstream/visibility/pkg/kafka"
	"github.com/chatstream/visibility/pkg/logger"
	"github.com/chatstream/visibility/pkg/metrics"
	"github.com/chatstream/visibility/pkg/postgres"
	"github.com/chatstream/visibility/pkg/redis"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting visibility service",
		"worker_enabled", cfg.Indexing.UseWorker,
		"batch_size", cfg.Indexing.BatchSize,
	)

	m := metrics.New()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	rd, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rd.Close()

	var be backend.Backend
	var worker *backend.Worker
	if cfg.Indexing.UseWorker {
		worker = backend.NewWorker(cfg.Indexing, m)
		defer worker.Close()
		be = worker
	} else {
		be = backend.NewLocal(m)
	}

	registry := session.NewRegistry(cfg.Indexing, be, m)
	feed := chatfeed.NewStore(pg, m)
	settingsStore := settings.NewStore(rd)
	publisher := render.NewPublisher(kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RenderUpdates), m)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if err := rd.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("backend", func(ctx context.Context) health.ComponentHealth {
		if worker != nil && worker.Degraded() {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "worker degraded to local strategy"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	chatChanged := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.ChatChanged,
		events.HandleChatChanged(registry, feed, m),
	)
	messageReceived := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.MessageReceived,
		events.HandleMessageReceived(registry, feed, settingsStore, publisher, m),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(api.New(registry, feed, settingsStore, publisher), checker, m, cfg.Server.RequestTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return chatChanged.Start(gctx)
	})
	g.Go(func() error {
		return messageReceived.Start(gctx)
	})
	g.Go(func() error {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown failed", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("service error", "error", err)
	}

	slog.Info("visibility service stopped")
}
