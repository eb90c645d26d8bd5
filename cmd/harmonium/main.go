package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/harmonium-ai/harmonium/internal/adapter/a2a"
	"github.com/harmonium-ai/harmonium/internal/adapter/cardcache"
	hmhttp "github.com/harmonium-ai/harmonium/internal/adapter/http"
	"github.com/harmonium-ai/harmonium/internal/adapter/mcpserv"
	"github.com/harmonium-ai/harmonium/internal/adapter/mcptool"
	hmnats "github.com/harmonium-ai/harmonium/internal/adapter/nats"
	"github.com/harmonium-ai/harmonium/internal/adapter/otel"
	"github.com/harmonium-ai/harmonium/internal/adapter/postgres"
	"github.com/harmonium-ai/harmonium/internal/adapter/ws"
	"github.com/harmonium-ai/harmonium/internal/config"
	"github.com/harmonium-ai/harmonium/internal/logger"
	"github.com/harmonium-ai/harmonium/internal/middleware"
	"github.com/harmonium-ai/harmonium/internal/port/a2aserv"
	"github.com/harmonium-ai/harmonium/internal/resilience"
	"github.com/harmonium-ai/harmonium/internal/service"
)

const version = "0.1.0"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"namespace", cfg.Runs.Namespace,
		"mcp_enabled", cfg.MCP.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	otelShutdown, err := otel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	var metrics *otel.Metrics
	if cfg.Telemetry.Enabled {
		if metrics, err = otel.NewMetrics(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("postgres ready")

	stateStore := postgres.NewStateStore(pool)
	eventStore := postgres.NewEventStore(pool)

	nc, err := hmnats.Connect(ctx, cfg.NATS.URL, log)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer nc.Close()

	kv, err := nc.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("card cache bucket: %w", err)
	}
	l1, err := cardcache.NewL1(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("card cache: %w", err)
	}
	cards := cardcache.NewDescriptors(
		cardcache.NewTiered(l1, cardcache.NewL2(kv), cfg.Cache.L1Expire),
		cfg.Remote.DiscoveryTTL,
	)

	// --- Core services ---

	hub := ws.NewHub(log, nil)
	trans := service.NewTranslator(eventStore, hub, cfg.Stream, log)
	bridge := service.NewBridge(cfg.Bridge, log)
	hub.SetResolver(bridge)
	router := service.NewRouter()
	orch := service.NewOrchestrator(cfg.Runs, stateStore, eventStore,
		trans, bridge, router, service.NewPackager(), metrics, log)

	remote := a2a.NewClient(cfg.Remote, cards, log)
	orch.SetRemoteClient(remote)
	for _, endpoint := range cfg.Remote.Agents {
		desc, err := remote.Discover(ctx, endpoint)
		if err != nil {
			log.Warn("agent discovery failed", "endpoint", endpoint, "error", err)
			continue
		}
		router.RegisterAgent(desc)
		log.Info("remote agent registered", "name", desc.Name, "endpoint", endpoint, "skills", len(desc.Skills))
	}

	if cfg.ToolServer.Transport != "" {
		breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		tools, err := mcptool.Connect(ctx, mcptool.Config{
			Transport:   mcptool.Transport(cfg.ToolServer.Transport),
			URL:         cfg.ToolServer.URL,
			Command:     cfg.ToolServer.Command,
			Args:        cfg.ToolServer.Args,
			CallTimeout: cfg.Bridge.ServerCallTimeout,
		}, breaker, log)
		if err != nil {
			return fmt.Errorf("tool server: %w", err)
		}
		defer func() { _ = tools.Close() }()
		bridge.SetToolServer(tools)

		names, err := tools.Tools(ctx)
		if err != nil {
			log.Warn("tool listing failed", "error", err)
		} else {
			log.Info("tool server connected", "tools", len(names))
		}
	}

	// The agent runtime plugs in through the driver port; until one is
	// wired, runs terminate with RUN_FATAL.
	log.Warn("no agent driver registered")

	// --- HTTP ---

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	hmhttp.MountRoutes(r, hmhttp.NewHandlers(orch, stateStore, hub, cfg.Runs.Namespace, log))
	a2aserv.NewHandler(cfg.A2A.BaseURL, version, orch, router, log).MountRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var mcpSrv *mcpserv.Server
	if cfg.MCP.Enabled {
		mcpSrv = mcpserv.NewServer(mcpserv.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    cfg.MCP.Name,
			Version: cfg.MCP.Version,
			APIKey:  cfg.MCP.APIKey,
		}, mcpserv.ServerDeps{
			Runs:    orch,
			State:   stateStore,
			Pending: bridge,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		log.Info("mcp server listening", "addr", cfg.MCP.Addr)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if mcpSrv != nil {
			_ = mcpSrv.Stop(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
