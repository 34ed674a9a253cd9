package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/antoniostano/linerelay/internal/config"
	"github.com/antoniostano/linerelay/internal/history"
	"github.com/antoniostano/linerelay/internal/httpapi"
	"github.com/antoniostano/linerelay/internal/line"
	"github.com/antoniostano/linerelay/internal/llm"
	"github.com/antoniostano/linerelay/internal/observability"
	"github.com/antoniostano/linerelay/internal/prompt"
	"github.com/antoniostano/linerelay/internal/relay"
	"github.com/antoniostano/linerelay/internal/tools"
)

const finalFlushTimeout = 30 * time.Second

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	History    *history.Store
	Relay      *relay.Relay
	Dispatcher *relay.Dispatcher
	Metrics    *observability.Metrics
	Provider   string

	// Cleanup drains in-flight events, stops background jobs and flushes
	// histories. It should be called once on shutdown.
	Cleanup func(ctx context.Context) error
}

// OpenHistory creates the configured snapshot backend and a store on top of
// it. Offline commands use it without building the rest of the service.
func OpenHistory(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) (*history.Store, error) {
	backend, err := history.NewBackend(ctx, history.BackendConfig{
		Kind:        cfg.HistoryBackend,
		Dir:         cfg.HistoryDir,
		SQLitePath:  cfg.HistorySQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("history backend init failed: %w", err)
	}
	return history.NewStore(backend,
		history.WithLimit(cfg.MaxChatHistory),
		history.WithLogger(logger),
		history.WithMetrics(metrics),
		history.WithWriteThrough(cfg.HistoryWriteThrough),
	), nil
}

// Build wires the service. Background jobs (eviction, snapshots, prompt
// watching) run until ctx is canceled or Cleanup is called.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.RequireLINE(); err != nil {
		return nil, err
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	model, err := llm.NewClient(ctx, llm.Config{
		Provider:        cfg.LLMProvider,
		APIKey:          cfg.LLMAPIKey,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		BaseURL:         cfg.LLMBaseURL,
		GoogleProjectID: cfg.GoogleProjectID,
		GoogleLocation:  cfg.GoogleLocation,
		Timeout:         cfg.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("llm client init failed: %w", err)
	}
	if model.Name() == "mock" {
		if cfg.LLMProvider != "mock" {
			return nil, errors.New("no llm credentials configured: set LLM_API_KEY, GOOGLE_PROJECT_ID or ANTHROPIC_API_KEY, or LLM_PROVIDER=mock for echo replies")
		}
		logger.Warn("llm provider: mock; replies are echoes")
	} else {
		logger.Info("llm provider selected", "provider", model.Name(), "text_model", cfg.LLMTextModel, "vision_model", cfg.LLMVisionModel)
	}

	messenger, err := line.NewClient(line.Config{
		ChannelSecret:      cfg.LINEChannelSecret,
		ChannelAccessToken: cfg.LINEChannelAccessToken,
		MaxContentBytes:    cfg.ImageMaxBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("line client init failed: %w", err)
	}

	prompts, err := prompt.NewLoader(cfg.PromptsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("prompt init failed: %w", err)
	}

	registry, err := tools.NewRegistry(tools.NewCurrentTime(cfg.ToolDefaultTimezone))
	if err != nil {
		return nil, err
	}
	if cfg.BraveAPIKey != "" {
		if err := registry.Register(tools.NewWebSearch(cfg.BraveAPIKey)); err != nil {
			return nil, err
		}
	}

	store, err := OpenHistory(ctx, cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	logger.Info("history store ready", "backend", store.BackendName(), "limit", store.Limit())

	runCtx, cancel := context.WithCancel(ctx)
	store.StartJanitor(runCtx, cfg.HistoryEvictInterval, cfg.HistoryInactivityThreshold)
	stopSnapshots, err := store.StartSnapshots(cfg.HistorySnapshotSchedule)
	if err != nil {
		cancel()
		_ = store.Close(context.Background())
		return nil, fmt.Errorf("history snapshot schedule: %w", err)
	}
	if cfg.PromptsWatch {
		if err := prompts.Watch(runCtx); err != nil {
			logger.Warn("prompt watch disabled", "error", err)
		}
	}

	rl := relay.New(relay.Config{
		TextModel:         cfg.LLMTextModel,
		VisionModel:       cfg.LLMVisionModel,
		MaxTokens:         cfg.LLMMaxOutputTokens,
		MaxToolRounds:     cfg.LLMMaxToolRounds,
		ImageMaxDimension: cfg.ImageMaxDimension,
		ImageMaxPixels:    cfg.ImageMaxPixels,
	}, relay.Deps{
		History:   store,
		LLM:       model,
		Tools:     registry,
		Prompts:   prompts,
		Messenger: messenger,
		Logger:    logger,
		Metrics:   metrics,
	})
	dispatcher := relay.NewDispatcher(rl, cfg.EventTimeout, logger)
	api := httpapi.New(messenger, dispatcher, store, metrics, logger)

	cleanup := func(ctx context.Context) error {
		var errs []error
		if err := dispatcher.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain events: %w", err))
		}
		cancel()
		stopSnapshots()
		// The drain may have used up ctx; the final flush gets its own budget.
		flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer flushCancel()
		if err := store.Close(flushCtx); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
		return errors.Join(errs...)
	}

	return &BuildResult{
		Config:     cfg,
		API:        api,
		History:    store,
		Relay:      rl,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Provider:   model.Name(),
		Cleanup:    cleanup,
	}, nil
}
