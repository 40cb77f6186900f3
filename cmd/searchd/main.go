package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/artifact"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchd"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"source", cfg.Search.Source,
		"substring_scope", cfg.Search.SubstringScope,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled || cfg.Search.Source == "redis" {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("redis unavailable", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.Info("redis connected", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	}

	var kv artifact.KV
	if redisClient != nil {
		kv = redisClient
	}
	open, err := searchd.NewOpener(cfg.Search, kv, cfg.Redis.Prefix, m)
	if err != nil {
		slog.Error("invalid search configuration", "error", err)
		os.Exit(1)
	}
	holder := searchd.NewHolder(open, m)
	defer holder.Close()
	if err := holder.Reload(ctx, "startup"); err != nil {
		// Keep serving: health reports down and a later reload can recover.
		slog.Warn("no search index loaded at startup", "error", err)
	}

	if cfg.Search.Source == "dir" && cfg.Search.Watch {
		watcher := searchd.NewWatcher(cfg.Search.ArtifactDir, holder, 0)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("artifact watcher error", "error", err)
			}
		}()
	}

	if cfg.Kafka.Enabled {
		output := ""
		if cfg.Search.Source == "dir" {
			output = cfg.Search.ArtifactDir
		}
		// Every instance reloads on every build, so each gets its own group.
		group := cfg.Kafka.ConsumerGroup + "-searchd-" + uuid.NewString()
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete,
			searchd.IndexCompleteHandler(holder, output),
			kafka.WithGroup(group),
		)
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index-complete consumer error", "error", err)
			}
		}()
		slog.Info("listening for index-complete events", "topic", cfg.Kafka.Topics.IndexComplete)
	}

	checker := health.NewChecker()
	checker.ReadyOnDegraded = true
	checker.Register("search_index", func(ctx context.Context) health.ComponentHealth {
		st := holder.Status()
		if !st.Available {
			return health.ComponentHealth{Status: health.StatusDown, Message: st.LastError}
		}
		if st.LastError != "" {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "serving previous index: " + st.LastError}
		}
		s, err := holder.Session()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		stats := s.Stats()
		if stats.MissingPartitions > 0 {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("%d of %d partitions unavailable", stats.MissingPartitions, stats.Partitions),
			}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d entries", stats.Entries)}
	})
	if redisClient != nil {
		failStatus := health.StatusDegraded
		if cfg.Search.Source == "redis" {
			failStatus = health.StatusDown
		}
		checker.Register("redis", health.PingCheck(redisClient.Ping, failStatus))
	}

	h := searchd.NewHandler(holder, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Search.Source == "dir" && cfg.Search.ServeArtifact {
		mux.Handle("GET /search/", http.StripPrefix("/search/", http.FileServer(http.Dir(cfg.Search.ArtifactDir))))
		slog.Info("serving artifact files", "path", "/search/", "dir", cfg.Search.ArtifactDir)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Recover(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
