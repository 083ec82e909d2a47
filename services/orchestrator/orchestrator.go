// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the portfolio chat service.
//
// This package contains the Service type that wires every component
// together: the reasoning engine, conversation registry and state store,
// run protocol, message router, HTTP routes, eviction scheduler and
// observability.
//
// # Extension Points
//
// The service accepts extensions.ServiceOptions, so a deployment can supply
// its own implementations of:
//   - KnowledgeLookup: Advisory retrieval run alongside each message
//   - AuditLogger: Conversation lifecycle audit events
//
// When an option is left at its no-op default, the service builds one from
// Config where it can (Weaviate lookup when WeaviateURL is set, slog audit
// logger when AuditEnabled is true).
//
// # Usage
//
//	cfg, err := orchestrator.LoadConfig("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc, err := orchestrator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	log.Fatal(svc.Run(ctx))
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianPortfolio/pkg/extensions"
	"github.com/AleutianAI/AleutianPortfolio/services/knowledge"
	"github.com/AleutianAI/AleutianPortfolio/services/llm"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/clock"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/runs"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/services"
	"github.com/AleutianAI/AleutianPortfolio/services/orchestrator/ttl"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the portfolio chat service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run blocks and should
// only be called once per instance.
type Service interface {
	// Run serves HTTP and runs the eviction scheduler until ctx is done
	// or the server fails.
	//
	// # Outputs
	//
	//   - error: Nil after a clean shutdown triggered by ctx.
	Run(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Scheduler returns the eviction scheduler, for manual sweeps.
	Scheduler() *ttl.Scheduler

	// Close releases resources. Run calls it on return.
	Close()
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config     Config
	opts       extensions.ServiceOptions
	clock      clock.Clock
	engine     llm.ReasoningEngine
	configured bool

	registry  *conversation.ThreadRegistry
	store     *conversation.StateStore
	msgRouter *services.MessageRouter
	limiter   *middleware.RateLimiter
	scheduler *ttl.Scheduler

	promRegistry *prometheus.Registry
	metrics      *observability.ChatMetrics
	router       *gin.Engine

	tracerCleanup func(context.Context)
	closers       []func()
}

// New creates a Service with the given configuration.
//
// # Description
//
// New initializes all components:
//  1. Applies default configuration for missing values and validates
//  2. Initializes tracing
//  3. Creates a Prometheus registry and the chat metrics
//  4. Creates the reasoning engine for the configured backend
//  5. Builds the knowledge lookup and audit logger from Config when the
//     caller did not supply them
//  6. Wires registry, store, protocol and router
//  7. Sets up HTTP routes and the eviction scheduler
//
// A backend that lacks credentials does not fail New: the service starts
// and the chat endpoints answer "Assistant not configured".
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//   - opts: Extension options. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run service.
//   - error: Non-nil if configuration is invalid or a component fails.
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clk := clock.New()
	engine, closer, err := buildEngine(cfg, clk)
	configured := true
	if errors.Is(err, llm.ErrEngineNotConfigured) {
		slog.Warn("Reasoning engine is not configured, chat requests will be rejected",
			"backend", cfg.LLMBackend, "error", err)
		engine, closer, configured = unconfiguredEngine{}, nil, false
	} else if err != nil {
		return nil, fmt.Errorf("failed to initialize reasoning engine: %w", err)
	}

	s, err := newService(cfg, opts, clk, engine, configured)
	if err != nil {
		if closer != nil {
			closer()
		}
		return nil, err
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	return s, nil
}

// newService wires a service around an already built engine.
func newService(cfg Config, opts *extensions.ServiceOptions, clk clock.Clock,
	engine llm.ReasoningEngine, configured bool) (*service, error) {

	s := &service{
		config:     cfg,
		clock:      clk,
		engine:     engine,
		configured: configured,
	}
	if opts != nil {
		s.opts = opts.WithDefaults()
	} else {
		s.opts = extensions.DefaultOptions()
	}

	cleanup, err := initTracer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.promRegistry = prometheus.NewRegistry()
	s.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = observability.NewChatMetrics(s.promRegistry)

	if err := s.initExtensions(); err != nil {
		s.Close()
		return nil, err
	}

	s.registry = conversation.NewThreadRegistry(engine, clk)
	s.store = conversation.NewStateStore(clk)
	protocol := runs.NewProtocol(engine, clk, cfg.runsConfig())

	s.msgRouter, err = services.NewMessageRouter(services.RouterDeps{
		Registry:      s.registry,
		Store:         s.store,
		Protocol:      protocol,
		Clock:         clk,
		Options:       s.opts,
		Metrics:       s.metrics,
		HistoryWindow: cfg.HistoryWindow,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize message router: %w", err)
	}

	s.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
	}, clk, s.metrics)

	s.initScheduler()
	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and the eviction scheduler.
//
// # Description
//
// Both run under one errgroup. When ctx is cancelled the server is shut
// down gracefully (in-flight requests get shutdownTimeout to finish) and
// the scheduler is stopped.
func (s *service) Run(ctx context.Context) error {
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := s.scheduler.Start(gctx); err != nil {
		return fmt.Errorf("failed to start eviction scheduler: %w", err)
	}

	g.Go(func() error {
		slog.Info("Starting portfolio chat server",
			"port", s.config.Port,
			"backend", s.config.LLMBackend,
			"configured", s.configured)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down portfolio chat server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.scheduler.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Scheduler returns the eviction scheduler.
func (s *service) Scheduler() *ttl.Scheduler {
	return s.scheduler
}

// Close releases all resources held by the service. Safe to call twice.
func (s *service) Close() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.msgRouter != nil {
		s.msgRouter.Close()
	}
	for _, c := range s.closers {
		c()
	}
	s.closers = nil
	if err := s.opts.AuditLogger.Flush(context.Background()); err != nil {
		slog.Warn("Audit logger flush failed", "error", err)
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// buildEngine creates the reasoning engine for cfg.LLMBackend.
//
// # Outputs
//
//   - llm.ReasoningEngine: The engine.
//   - func(): Releases engine resources. May be nil.
//   - error: Wraps llm.ErrEngineNotConfigured when credentials are missing.
func buildEngine(cfg Config, clk clock.Clock) (llm.ReasoningEngine, func(), error) {
	completionsCfg := llm.DefaultCompletionsConfig()
	if cfg.PersonaPrompt != "" {
		completionsCfg.PersonaPrompt = cfg.PersonaPrompt
	}

	switch cfg.LLMBackend {
	case BackendAssistants:
		engine, err := llm.NewAssistantsEngine(llm.AssistantsConfig{
			APIKey:      cfg.OpenAIAPIKey,
			AssistantID: cfg.AssistantID,
			BaseURL:     cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Using OpenAI Assistants backend", "assistant_id", cfg.AssistantID)
		return engine, nil, nil
	case BackendOpenAI:
		chat, err := llm.NewOpenAIChatClient(llm.OpenAIChatConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		engine := llm.NewCompletionsEngine(chat, clk, completionsCfg)
		slog.Info("Using OpenAI chat completions backend")
		return engine, engine.Close, nil
	case BackendOllama:
		chat, err := llm.NewOllamaChatClient(llm.OllamaChatConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.OllamaModel,
		})
		if err != nil {
			return nil, nil, err
		}
		engine := llm.NewCompletionsEngine(chat, clk, completionsCfg)
		slog.Info("Using Ollama backend", "url", cfg.OllamaURL)
		return engine, engine.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM backend %q", cfg.LLMBackend)
	}
}

// initExtensions fills no-op extension slots from Config.
func (s *service) initExtensions() error {
	if _, nop := s.opts.KnowledgeLookup.(*extensions.NopKnowledgeLookup); nop && s.config.WeaviateURL != "" {
		lookup, err := knowledge.NewWeaviateLookup(knowledge.WeaviateConfig{
			URL:       s.config.WeaviateURL,
			ClassName: s.config.WeaviateClass,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize knowledge lookup: %w", err)
		}
		s.opts = s.opts.WithKnowledge(lookup)
		slog.Info("Knowledge lookup enabled", "url", s.config.WeaviateURL, "class", s.config.WeaviateClass)
	}
	if _, nop := s.opts.AuditLogger.(*extensions.NopAuditLogger); nop && s.config.AuditEnabled {
		s.opts = s.opts.WithAudit(extensions.NewSlogAuditLogger(slog.Default()))
		slog.Info("Audit logging enabled")
	}
	return nil
}

// initScheduler registers every component that holds per-conversation or
// per-client state.
func (s *service) initScheduler() {
	targets := []ttl.Target{
		{Name: "store", Sweeper: s.store},
		{Name: "registry", Sweeper: s.registry},
	}
	if sw, ok := s.engine.(conversation.Sweeper); ok {
		targets = append(targets, ttl.Target{Name: "engine", Sweeper: sw})
	}
	if s.limiter.Enabled() {
		targets = append(targets, ttl.Target{Name: "ratelimit", Sweeper: s.limiter})
	}

	s.scheduler = ttl.NewScheduler(s.clock, ttl.SchedulerConfig{
		Interval: s.config.SweepInterval,
		MaxAge:   s.config.ConversationMaxAge,
	}, targets, ttl.WithMetrics(s.metrics), ttl.WithAudit(s.opts.AuditLogger))
}

// initRouter creates the Gin engine and registers all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(serviceName))

	routes.SetupRoutes(s.router, routes.Deps{
		Router:     s.msgRouter,
		Configured: s.configured,
		Metrics:    s.metrics,
		Gatherer:   s.promRegistry,
		Limiter:    s.limiter,
	})
}

// =============================================================================
// Unconfigured Engine
// =============================================================================

// unconfiguredEngine stands in when the backend lacks credentials. The
// handlers reject chat requests before they reach it.
type unconfiguredEngine struct{}

func (unconfiguredEngine) CreateConversation(context.Context) (string, error) {
	return "", llm.ErrEngineNotConfigured
}

func (unconfiguredEngine) AppendTurn(context.Context, string, datatypes.Role, string) error {
	return llm.ErrEngineNotConfigured
}

func (unconfiguredEngine) StartRun(context.Context, string) (llm.RunHandle, error) {
	return llm.RunHandle{}, llm.ErrEngineNotConfigured
}

func (unconfiguredEngine) GetRunStatus(context.Context, llm.RunHandle) (llm.RunStatus, error) {
	return llm.RunStatus{}, llm.ErrEngineNotConfigured
}

func (unconfiguredEngine) ListTurns(context.Context, string) ([]llm.EngineTurn, error) {
	return nil, llm.ErrEngineNotConfigured
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var (
	_ Service             = (*service)(nil)
	_ llm.ReasoningEngine = unconfiguredEngine{}
)
