package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"uplevel-orchestrator/internal/adapter/agentclient"
	"uplevel-orchestrator/internal/adapter/gateway"
	"uplevel-orchestrator/internal/adapter/store"
	"uplevel-orchestrator/internal/domain"
	"uplevel-orchestrator/internal/infra/config"
	"uplevel-orchestrator/internal/infra/logger"
	"uplevel-orchestrator/internal/infra/tracer"
	"uplevel-orchestrator/internal/usecase"
	"uplevel-orchestrator/internal/usecase/classifier"
	"uplevel-orchestrator/internal/usecase/eventbus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracer(shutdownCtx)
	}()

	bus := eventbus.New(log)

	kv, failover, err := buildKV(cfg.Store, bus, log)
	if err != nil {
		return err
	}
	stateStore := store.NewDocumentStore(kv)
	defer stateStore.Close()

	registry := usecase.NewRegistry()
	for _, a := range cfg.Agents {
		agent := domain.Agent{
			ID:           a.ID,
			Name:         a.Name,
			Endpoint:     a.Endpoint,
			Capabilities: a.Capabilities,
			Keywords:     a.Keywords,
			AuthToken:    a.AuthToken,
		}
		if err := registry.Register(agent); err != nil {
			return err
		}
		log.Info("agent registered", "agent", a.ID, "endpoint", a.Endpoint)
	}

	caller := agentclient.NewBreakerCaller(
		agentclient.NewHTTPCaller(cfg.Dispatch, log),
		cfg.Dispatch.Breaker,
		log,
	)

	monitor := usecase.NewHealthMonitor(registry, caller, bus, cfg.Health, log)
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	var reconciler *cron.Cron
	if failover != nil {
		reconciler = cron.New()
		interval := cfg.Store.ReconcileInterval
		if interval == 0 {
			interval = 30 * time.Second
		}
		if _, err := reconciler.AddFunc("@every "+interval.String(), func() {
			if err := failover.Reconcile(ctx); err != nil {
				log.Error("store reconcile failed", "error", err)
			}
		}); err != nil {
			return err
		}
		reconciler.Start()
		defer func() { <-reconciler.Stop().Done() }()
	}

	dispatcher := usecase.NewDispatcher(registry, caller, bus, log)
	engine := usecase.NewWorkflowEngine(stateStore, dispatcher, bus, log)
	sessions := usecase.NewSessionManager(stateStore, usecase.NewSessionLocker())
	synth := usecase.NewSynthesizer(registry)
	cls := classifier.New(cfg.Classifier.MinScore)
	orch := usecase.NewOrchestrator(cls, registry, dispatcher, engine, sessions, synth, bus, log)

	server := gateway.NewServer(cfg.Server, orch, engine, registry, sessions, stateStore, bus, log)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildKV constructs the configured backend. Durable backends are wrapped
// with the in-memory failover; the plain memory backend is not.
func buildKV(cfg config.StoreConfig, bus domain.EventBus, log *slog.Logger) (store.KV, *store.FailoverKV, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryKV(), nil, nil
	case "redis":
		redisKV, err := store.NewRedisKV(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		failover := store.NewFailoverKV(redisKV, bus, log)
		return failover, failover, nil
	case "sqlite":
		sqliteKV, err := store.NewSQLiteKV(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		failover := store.NewFailoverKV(sqliteKV, bus, log)
		return failover, failover, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
