package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"parley/internal/adapter/history"
	"parley/internal/adapter/httpapi"
	"parley/internal/adapter/llm"
	"parley/internal/adapter/tool"
	"parley/internal/infra/config"
	"parley/internal/infra/logger"
	"parley/internal/infra/tracer"
	"parley/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. History store
	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer store.Close()

	// 4. LLM provider behind the circuit breaker
	provider := llm.NewCircuitBreakerProvider(
		llm.NewOpenAIProvider(cfg.LLM, log),
		cfg.LLM.CircuitBreaker,
		log,
	)

	// 5. Tools
	registry := tool.NewRegistry(log)
	weatherBackend := tool.NewOpenWeatherMapBackend(cfg.Tools, log)
	if err := registry.Register(tool.NewWeatherTool(weatherBackend, log)); err != nil {
		return fmt.Errorf("register weather tool: %w", err)
	}
	if err := registry.Register(tool.NewDateTool(cfg.Tools.DateTimezone, log)); err != nil {
		return fmt.Errorf("register date tool: %w", err)
	}

	// 6. Usecases
	usage := usecase.NewUsageRecorder(store, cfg.Pricing, log)
	turns := usecase.NewOrchestrator(provider, registry, store, usage, cfg.Chat, cfg.LLM, log)
	sessions := usecase.NewSessionService(store, log)

	// 7. HTTP API
	server := httpapi.NewServer(turns, sessions, usage, cfg.Server, log)

	log.Info("parley starting",
		"addr", cfg.Server.Addr,
		"model", cfg.LLM.Model,
		"history_path", cfg.History.Path,
	)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	log.Info("parley stopped")
	return nil
}
