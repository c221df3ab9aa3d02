package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dwizi/telegram-relay/internal/config"
	"github.com/dwizi/telegram-relay/internal/connectors/telegram"
	"github.com/dwizi/telegram-relay/internal/dispatch"
	"github.com/dwizi/telegram-relay/internal/gateway"
	"github.com/dwizi/telegram-relay/internal/heartbeat"
	"github.com/dwizi/telegram-relay/internal/httpapi"
	"github.com/dwizi/telegram-relay/internal/llm"
	"github.com/dwizi/telegram-relay/internal/llm/anthropic"
	"github.com/dwizi/telegram-relay/internal/llm/openai"
	"github.com/dwizi/telegram-relay/internal/memory"
	"github.com/dwizi/telegram-relay/internal/prompt"
	"github.com/dwizi/telegram-relay/internal/relay"
	"github.com/dwizi/telegram-relay/internal/responder"
	"github.com/dwizi/telegram-relay/internal/scheduler"
	"github.com/dwizi/telegram-relay/internal/store"
	"github.com/dwizi/telegram-relay/internal/watcher"
)

type Runtime struct {
	cfg              config.Config
	logger           *slog.Logger
	store            *store.Store
	pool             *dispatch.Pool
	telegram         *telegram.Connector
	httpServer       *http.Server
	watcher          *watcher.Service
	scheduler        *scheduler.Service
	heartbeat        *heartbeat.Registry
	heartbeatMonitor *heartbeat.Monitor
	beatEvery        time.Duration
}

type Option func(*runtimeOptions)

type runtimeOptions struct {
	telegramOpts []telegram.Option
	llmClient    llm.Client
}

// WithTelegramOptions passes extra options to the Telegram connector.
func WithTelegramOptions(opts ...telegram.Option) Option {
	return func(o *runtimeOptions) {
		o.telegramOpts = append(o.telegramOpts, opts...)
	}
}

// WithLLMClient replaces the provider client built from configuration.
func WithLLMClient(client llm.Client) Option {
	return func(o *runtimeOptions) {
		o.llmClient = client
	}
}

func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	options := runtimeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	heartbeatRegistry := heartbeat.NewRegistry()
	heartbeatRegistry.Starting("runtime", "booting")
	staleAfter := time.Duration(cfg.HeartbeatStaleSeconds) * time.Second
	beatEvery := beatInterval(staleAfter)

	if cfg.PromptOverrideFile != "" {
		if err := checkOverrideDir(cfg.PromptOverrideFile); err != nil {
			return nil, err
		}
	}

	var sqlStore *store.Store
	if cfg.RelayDBPath != "" {
		var err error
		sqlStore, err = store.New(cfg.RelayDBPath)
		if err != nil {
			return nil, err
		}
		if err := sqlStore.AutoMigrate(context.Background()); err != nil {
			sqlStore.Close()
			return nil, err
		}
	}
	closeStore := func() {
		if sqlStore != nil {
			sqlStore.Close()
		}
	}

	memoryRegistry := memory.NewRegistry(memory.Options{
		Strategy: cfg.MemoryStrategy,
		Capacity: cfg.MemoryCapacity,
		MaxBytes: cfg.MemoryMaxBytes,
	})
	prompts := prompt.NewProvider(prompt.Options{
		Mobile:       cfg.PromptMobile,
		Subjective:   cfg.PromptSubjective,
		OverrideFile: cfg.PromptOverrideFile,
	}, logger.With("component", "prompt"))

	llmClient := options.llmClient
	if llmClient == nil {
		llmClient = newLLMClient(cfg, logger)
	}
	llmTimeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	responderService := responder.New(memoryRegistry, prompts, llmClient, llmTimeout, logger.With("component", "responder"))
	commandGateway := gateway.New(memoryRegistry, cfg.AllowedUserIDs)

	pool := dispatch.New(cfg.DispatchWorkers, llmTimeout+30*time.Second, logger.With("component", "dispatch"))

	telegramOpts := append([]telegram.Option{
		telegram.WithDispatcher(pool),
		telegram.WithHeartbeatInterval(beatEvery),
	}, options.telegramOpts...)
	telegramConnector := telegram.New(telegram.Config{
		Token:         cfg.TelegramToken,
		APIBase:       cfg.TelegramAPI,
		PollSeconds:   cfg.TelegramPoll,
		Mode:          cfg.TelegramMode,
		WebhookURL:    cfg.TelegramWebhookURL,
		WebhookAddr:   cfg.TelegramWebhookAddr,
		WebhookSecret: cfg.TelegramWebhookSecret,
	}, commandGateway, responderService, logger.With("connector", "telegram"), telegramOpts...)
	telegramConnector.SetHeartbeatReporter(heartbeatRegistry)

	relayOpts := []relay.Option{}
	if sqlStore != nil {
		relayOpts = append(relayOpts, relay.WithRecorder(sqlStore))
	}
	relayService := relay.New(relay.Config{
		Targets:             cfg.NotificationTargets(),
		GitHubWebhookSecret: cfg.GitHubWebhookSecret,
		DeploymentSecret:    cfg.RailwayWebhookSecret,
	}, telegramConnector, logger, relayOpts...)

	var digestStore scheduler.Store
	if sqlStore != nil {
		digestStore = sqlStore
	}
	schedulerService, err := scheduler.New(cfg.RelayDigestCron, digestStore, relayService, logger)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("configure digest scheduler: %w", err)
	}
	schedulerService.SetHeartbeatReporter(heartbeatRegistry, beatEvery)

	var watchService *watcher.Service
	if overrideFile := prompts.OverrideFile(); overrideFile != "" {
		watchService, err = watcher.New(
			[]string{overrideFile},
			logger.With("component", "watcher"),
			func(ctx context.Context, path string) {
				if err := prompts.Reload(); err != nil {
					logger.Error("system prompt reload failed", "path", path, "error", err)
					return
				}
				logger.Info("system prompt reloaded", "path", path)
			},
		)
		if err != nil {
			closeStore()
			return nil, err
		}
	} else {
		heartbeatRegistry.Disabled("watcher", "no prompt override file")
	}

	routerDeps := httpapi.Dependencies{
		Relay:               relayService,
		Bot:                 telegramConnector,
		Heartbeat:           heartbeatRegistry,
		HeartbeatStaleAfter: staleAfter,
		Logger:              logger.With("component", "api"),
	}
	if sqlStore != nil {
		routerDeps.Deliveries = sqlStore
	}
	httpServer := &http.Server{
		Addr:              cfg.WebhookAddr(),
		Handler:           httpapi.NewRouter(routerDeps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	monitorCfg := heartbeat.MonitorConfig{
		Interval:   15 * time.Second,
		StaleAfter: staleAfter,
		Logger:     logger.With("component", "heartbeat-monitor"),
	}
	if cfg.HeartbeatNotify {
		notifier := newHeartbeatNotifier(relayService, logger.With("component", "heartbeat-notifier"))
		monitorCfg.OnTransition = notifier.HandleTransition
	}

	return &Runtime{
		cfg:              cfg,
		logger:           logger,
		store:            sqlStore,
		pool:             pool,
		telegram:         telegramConnector,
		httpServer:       httpServer,
		watcher:          watchService,
		scheduler:        schedulerService,
		heartbeat:        heartbeatRegistry,
		heartbeatMonitor: heartbeat.NewMonitor(heartbeatRegistry, monitorCfg),
		beatEvery:        beatEvery,
	}, nil
}

// beatInterval keeps every supervised component beating well inside the stale window.
func beatInterval(staleAfter time.Duration) time.Duration {
	interval := 20 * time.Second
	if staleAfter > 0 && staleAfter/3 < interval {
		interval = staleAfter / 3
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

// checkOverrideDir fails when the override file's directory cannot be watched.
// The file itself may be missing.
func checkOverrideDir(path string) error {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve prompt override file %s: %w", path, err)
	}
	dir := filepath.Dir(absolute)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("prompt override directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("prompt override directory %s: not a directory", dir)
	}
	return nil
}

// newLLMClient returns nil when the provider cannot be used, which the responder
// reports to users as unavailable.
func newLLMClient(cfg config.Config, logger *slog.Logger) llm.Client {
	timeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		if cfg.LLMAPIKey == "" {
			logger.Warn("anthropic provider configured without api key")
			return nil
		}
		return anthropic.New(anthropic.Config{
			APIKey:    cfg.LLMAPIKey,
			BaseURL:   cfg.LLMBaseURL,
			Model:     cfg.LLMModel,
			MaxTokens: cfg.LLMMaxTokens,
			Timeout:   timeout,
		}, logger.With("component", "llm-anthropic"))
	default:
		return openai.New(openai.Config{
			APIKey:    cfg.LLMAPIKey,
			BaseURL:   cfg.LLMBaseURL,
			Model:     cfg.LLMModel,
			MaxTokens: cfg.LLMMaxTokens,
			Timeout:   timeout,
		}, logger.With("component", "llm-openai"))
	}
}

func (r *Runtime) Heartbeat() *heartbeat.Registry {
	return r.heartbeat
}
