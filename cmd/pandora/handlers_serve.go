package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pandora-run/pandora/internal/agent"
	"github.com/pandora-run/pandora/internal/artifacts"
	"github.com/pandora-run/pandora/internal/audit"
	"github.com/pandora-run/pandora/internal/config"
	"github.com/pandora-run/pandora/internal/cron"
	"github.com/pandora-run/pandora/internal/gateway"
	"github.com/pandora-run/pandora/internal/infra"
	"github.com/pandora-run/pandora/internal/intervention"
	"github.com/pandora-run/pandora/internal/jobs"
	"github.com/pandora-run/pandora/internal/llm"
	"github.com/pandora-run/pandora/internal/observability"
	"github.com/pandora-run/pandora/internal/policy"
	"github.com/pandora-run/pandora/internal/scheduler"
	"github.com/pandora-run/pandora/internal/toolrouter"
	"github.com/pandora-run/pandora/internal/tools/browser"
	"github.com/pandora-run/pandora/internal/tools/exec"
	"github.com/pandora-run/pandora/internal/tools/files"
	toolsjobs "github.com/pandora-run/pandora/internal/tools/jobs"
	"github.com/pandora-run/pandora/internal/tools/websearch"
	"github.com/pandora-run/pandora/internal/tracehub"
	"github.com/pandora-run/pandora/internal/turndoc"
	"github.com/pandora-run/pandora/internal/workspace"
	"github.com/pandora-run/pandora/pkg/models"
)

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("load config: %w", err)}
	}

	level := parseLevel(cfg.Logging.Level)
	if debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.Logging.AddSource}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	shutdowner := infra.NewShutdownCoordinator(cfg.Server.ShutdownGrace, logger)

	var tracerShutdown func(context.Context) error
	if cfg.Observability.Tracing.Enabled {
		t := cfg.Observability.Tracing
		_, shutdown := observability.NewTracer(observability.TraceConfig{
			ServiceName:    t.ServiceName,
			ServiceVersion: t.ServiceVersion,
			Environment:    t.Environment,
			Endpoint:       t.Endpoint,
			SamplingRate:   t.SamplingRate,
			Attributes:     t.Attributes,
			EnableInsecure: t.Insecure,
		})
		tracerShutdown = shutdown
	}
	if tracerShutdown != nil {
		shutdowner.RegisterConnection("tracer", tracerShutdown)
	}
	metrics := observability.NewMetrics()

	prof := profileNameOrDefault()

	layout, err := workspace.Bootstrap(cfg.Storage.Root, prof)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("bootstrap workspace: %w", err)}
	}
	sqliteIndex, err := turndoc.OpenSQLiteIndex(filepath.Join(layout.IndexesDir(), "index.db"))
	if err != nil {
		return storeUnavailableError{fmt.Errorf("open recall index: %w", err)}
	}
	shutdowner.RegisterConnection("recall-index", func(context.Context) error { return sqliteIndex.Close() })

	store, err := turndoc.Open(cfg.Storage.Root, prof, sqliteIndex)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("open turn document store: %w", err)}
	}

	providers, err := buildLLMProviders(ctx, cfg.LLM)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("configure llm providers: %w", err)}
	}
	llmManager := llm.NewManager(providers, cfg.LLM.DefaultProvider, cfg.LLM.FallbackChain, int64(cfg.LLM.Concurrency), cfg.LLM.CallTimeout)
	llmManager.SetRecorder(metrics)

	interventions := intervention.New(cfg.Trace.InterventionTTL)
	hub := tracehub.New(cfg.Trace.TraceTTL)

	var jobStore jobs.Store = jobs.NewMemoryStore()
	if cfg.Database.URL != "" {
		pgStore, err := jobs.OpenPostgresStore(cfg.Database.URL)
		if err != nil {
			return storeUnavailableError{fmt.Errorf("open job store: %w", err)}
		}
		jobStore = pgStore
	}
	jobRegistry := jobs.NewRegistry(jobStore, hub)

	toolList, browserPool, err := buildTools(cfg, jobStore, jobRegistry)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("configure tools: %w", err)}
	}
	if browserPool != nil {
		shutdowner.RegisterConnection("browser-pool", func(context.Context) error { return browserPool.Close() })
	}
	registry := toolrouter.NewRegistry(toolList...)

	policyEngine := policy.New(policyDefaults(cfg.Policy))
	permissions := toolrouter.NewPermissionBroker(cfg.Tools.Files.PermissionTimeout)
	router := toolrouter.New(registry, policyEngine, permissions)
	router.Metrics = metrics

	auditLogger, err := audit.NewLogger(cfg.Audit)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("configure audit log: %w", err)}
	}
	shutdowner.RegisterConnection("audit-log", func(context.Context) error { return auditLogger.Close() })
	router.Audit = auditLogger

	artifactRepo, err := buildArtifactRepository(ctx, cfg, prof, logger)
	if err != nil {
		return storeUnavailableError{fmt.Errorf("configure artifact storage: %w", err)}
	}
	redaction, err := artifacts.NewRedactionPolicy(artifacts.RedactionConfig{
		Enabled:          cfg.Artifacts.Redaction.Enabled,
		MimeTypes:        cfg.Artifacts.Redaction.MimeTypes,
		FilenamePatterns: cfg.Artifacts.Redaction.FilenamePatterns,
	})
	if err != nil {
		return storeUnavailableError{fmt.Errorf("configure artifact redaction: %w", err)}
	}
	router.Artifacts = &artifactSink{repo: artifactRepo, redaction: redaction}

	sweeper := cron.New(logger)
	if cfg.Cron.Enabled {
		registerSweeps(sweeper, cfg, hub, jobRegistry, interventions, permissions)
	}
	sweeper.Start()
	shutdowner.RegisterService("sweeper", func(context.Context) error { sweeper.Stop(); return nil })

	sched := scheduler.New(scheduler.Deps{
		Store:         store,
		Hub:           hub,
		LLM:           llmManager,
		Router:        router,
		Interventions: interventions,
		Index:         sqliteIndex,
		Metrics:       metrics,
		Config:        cfg.Scheduler,
	})

	gw := gateway.New(cfg.Server, cfg.Trace, gateway.Deps{
		Scheduler:     sched,
		Hub:           hub,
		Jobs:          jobRegistry,
		Interventions: interventions,
		Profile:       prof,
		Logger:        logger,
		Metrics:       metrics,
	})

	if err := gw.Start(); err != nil {
		return storeUnavailableError{fmt.Errorf("start gateway: %w", err)}
	}
	shutdowner.RegisterFunc("gateway", infra.PhasePreShutdown, gw.Shutdown)
	logger.Info("pandora serving", "profile", prof, "http_port", cfg.Server.HTTPPort)

	gaugeCtx, stopGauges := context.WithCancel(ctx)
	go refreshGauges(gaugeCtx, metrics, jobStore, interventions)
	shutdowner.RegisterService("gauges", func(context.Context) error { stopGauges(); return nil })

	if configPath != "" {
		go func() {
			err := config.Watch(gaugeCtx, configPath, logger, func(next *config.Config) {
				// Policy defaults are the only section applied live; new
				// profiles seed from the reloaded record on first access.
				policyEngine.SetDefaults(policyDefaults(next.Policy))
			})
			if err != nil {
				logger.Warn("config watcher unavailable", "error", err)
			}
		}()
	}

	artifactCleanup := artifacts.NewCleanupService(artifactRepo, cfg.Artifacts.PruneInterval, logger)
	go artifactCleanup.Start(gaugeCtx)
	shutdowner.RegisterService("artifact-cleanup", func(context.Context) error { artifactCleanup.Stop(); return nil })

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	for _, result := range shutdowner.Shutdown(shutdownCtx) {
		if result.Error != nil {
			logger.Error("shutdown handler failed", "handler", result.Name, "error", result.Error)
		}
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func profileNameOrDefault() string {
	if profileName != "" {
		return profileName
	}
	if env := os.Getenv("PANDORA_PROFILE"); env != "" {
		return env
	}
	return "default"
}

func buildLLMProviders(ctx context.Context, cfg config.LLMConfig) (map[string]llm.Provider, error) {
	providers := make(map[string]llm.Provider, len(cfg.Providers))
	for name, pcfg := range cfg.Providers {
		switch name {
		case "anthropic":
			p, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
				APIKey:       pcfg.APIKey,
				BaseURL:      pcfg.BaseURL,
				DefaultModel: pcfg.DefaultModel,
			})
			if err != nil {
				return nil, err
			}
			providers[name] = p
		case "openai":
			p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey:       pcfg.APIKey,
				BaseURL:      pcfg.BaseURL,
				DefaultModel: pcfg.DefaultModel,
			})
			if err != nil {
				return nil, err
			}
			providers[name] = p
		case "bedrock":
			p, err := llm.NewBedrockProvider(ctx, llm.BedrockConfig{
				Region:          pcfg.Region,
				AccessKeyID:     pcfg.AccessKeyID,
				SecretAccessKey: pcfg.SecretAccessKey,
				SessionToken:    pcfg.SessionToken,
				DefaultModel:    pcfg.DefaultModel,
			})
			if err != nil {
				return nil, err
			}
			providers[name] = p
		case "google":
			p, err := llm.NewGoogleProvider(ctx, llm.GoogleConfig{
				APIKey:       pcfg.APIKey,
				DefaultModel: pcfg.DefaultModel,
			})
			if err != nil {
				return nil, err
			}
			providers[name] = p
		default:
			return nil, fmt.Errorf("unknown llm provider %q", name)
		}
	}
	return providers, nil
}

// buildTools constructs the Tool Router's registry from every tool enabled
// in cfg.Tools. It returns the browser pool separately so the caller can
// close it on shutdown (the pool owns live browser processes, unlike the
// other tools).
func buildTools(cfg *config.Config, jobStore jobs.Store, jobRegistry *jobs.Registry) ([]agent.Tool, *browser.Pool, error) {
	var tools []agent.Tool

	filesCfg := files.Config{Workspace: cfg.Tools.Files.Workspace, MaxReadBytes: cfg.Tools.Files.MaxReadBytes}
	tools = append(tools,
		files.NewReadTool(filesCfg),
		files.NewWriteTool(filesCfg),
		files.NewEditTool(filesCfg),
		files.NewApplyPatchTool(filesCfg),
	)

	if cfg.Tools.Exec.Enabled {
		execManager := exec.NewManager(cfg.Tools.Files.Workspace)
		tools = append(tools,
			exec.NewExecTool("exec", execManager),
			exec.NewProcessTool(execManager),
		)
	}

	if cfg.Tools.WebSearch.Enabled {
		tools = append(tools, websearch.NewWebSearchTool(&websearch.Config{
			SearXNGURL:  cfg.Tools.WebSearch.URL,
			BraveAPIKey: cfg.Tools.WebSearch.BraveAPIKey,
		}))
	}
	if cfg.Tools.WebFetch.Enabled {
		tools = append(tools, websearch.NewWebFetchTool(&websearch.FetchConfig{MaxChars: cfg.Tools.WebFetch.MaxChars}))
	}

	var pool *browser.Pool
	if cfg.Tools.Browser.Enabled {
		var err error
		pool, err = browser.NewPool(browser.PoolConfig{
			MaxInstances: cfg.Tools.Browser.PoolSize,
			Timeout:      cfg.Tools.Browser.NavTimeout,
			Headless:     cfg.Tools.Browser.Headless,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("start browser pool: %w", err)
		}
		tools = append(tools, browser.NewBrowserTool(pool))
	}

	tools = append(tools,
		toolsjobs.NewStatusTool(jobStore),
		toolsjobs.NewCancelTool(jobStore, jobRegistry),
		toolsjobs.NewListTool(jobStore),
	)

	return tools, pool, nil
}

func policyDefaults(cfg config.PolicyConfig) map[models.Mode]*models.PolicyRecord {
	out := map[models.Mode]*models.PolicyRecord{
		models.ModeChat: modePolicyRecord(models.ModeChat, cfg.Chat),
		models.ModeCode: modePolicyRecord(models.ModeCode, cfg.Code),
	}
	return out
}

func modePolicyRecord(mode models.Mode, cfg config.ModePolicyConfig) *models.PolicyRecord {
	rec := models.DefaultPolicyForMode(mode)
	if cfg.AllowWrites {
		rec.AllowWrites = true
	}
	rec.RequireConfirm = cfg.RequireConfirm
	if len(cfg.AllowedWritePaths) > 0 {
		rec.AllowedWritePaths = append([]string(nil), cfg.AllowedWritePaths...)
	}
	for k, v := range cfg.ToolEnables {
		rec.ToolEnables[k] = v
	}
	return rec
}

func registerSweeps(sweeper *cron.Sweeper, cfg *config.Config, hub *tracehub.Hub, jobRegistry *jobs.Registry, interventions *intervention.Broker, permissions *toolrouter.PermissionBroker) {
	_ = sweeper.Register(cron.Target{
		Name:     "trace_sweep",
		Interval: cfg.Cron.TraceSweepInterval,
		Run: func(ctx context.Context) (int, error) {
			return hub.Sweep(time.Now()), nil
		},
	})
	_ = sweeper.Register(cron.Target{
		Name:     "job_sweep",
		Interval: cfg.Cron.JobSweepInterval,
		Run: func(ctx context.Context) (int, error) {
			n, err := jobRegistry.Sweep(ctx)
			return int(n), err
		},
	})
	_ = sweeper.Register(cron.Target{
		Name:     "intervention_sweep",
		Interval: cfg.Cron.InterventionSweep,
		Run: func(ctx context.Context) (int, error) {
			return interventions.Sweep(time.Now()), nil
		},
	})
	_ = sweeper.Register(cron.Target{
		Name:     "permission_sweep",
		Interval: cfg.Cron.PermissionSweep,
		Run: func(ctx context.Context) (int, error) {
			return permissions.Sweep(time.Now()), nil
		},
	})
}

// refreshGauges keeps the job and intervention gauges current. Counts are
// sampled rather than event-driven so the registries stay unaware of
// Prometheus.
func refreshGauges(ctx context.Context, metrics *observability.Metrics, jobStore jobs.Store, interventions *intervention.Broker) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetPendingInterventions(float64(len(interventions.ListPending())))
			if all, err := jobStore.List(ctx, 0, 0); err == nil {
				active := 0
				for _, j := range all {
					if !j.IsTerminal() {
						active++
					}
				}
				metrics.SetActiveJobs(float64(active))
			}
		}
	}
}

// buildArtifactRepository picks the artifact store backend from config:
// local disk by default, S3 when configured.
func buildArtifactRepository(ctx context.Context, cfg *config.Config, prof string, logger *slog.Logger) (artifacts.Repository, error) {
	var store artifacts.Store
	switch cfg.Artifacts.Backend {
	case "s3":
		s3Store, err := artifacts.NewS3Store(ctx, &artifacts.S3StoreConfig{
			Bucket:          cfg.Artifacts.S3Bucket,
			Region:          cfg.Artifacts.S3Region,
			Endpoint:        cfg.Artifacts.S3Endpoint,
			Prefix:          cfg.Artifacts.S3Prefix,
			AccessKeyID:     cfg.Artifacts.S3AccessKeyID,
			SecretAccessKey: cfg.Artifacts.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		path := cfg.Artifacts.LocalPath
		if path == "" {
			path = filepath.Join(cfg.Storage.Root, prof, "artifacts-store")
		}
		localStore, err := artifacts.NewLocalStore(path)
		if err != nil {
			return nil, err
		}
		store = localStore
	}

	if cfg.Artifacts.MetadataBackend == "file" {
		metaPath := filepath.Join(cfg.Storage.Root, prof, "artifacts-store", "metadata.json")
		return artifacts.NewPersistentRepository(store, metaPath, logger)
	}
	return artifacts.NewMemoryRepository(store, logger), nil
}

// artifactSink adapts the artifact repository to the Tool Router, applying
// the redaction policy before anything is persisted.
type artifactSink struct {
	repo      artifacts.Repository
	redaction *artifacts.RedactionPolicy
}

func (s *artifactSink) StoreToolArtifact(ctx context.Context, traceID string, a agent.Artifact) error {
	art := &models.Artifact{
		ID:       a.ID,
		Type:     a.Type,
		MimeType: a.MimeType,
		Filename: a.Filename,
		Size:     int64(len(a.Data)),
	}
	if s.redaction != nil {
		s.redaction.Apply(art)
	}
	ctx = observability.AddTurnID(ctx, traceID)
	return s.repo.StoreArtifact(ctx, art, bytes.NewReader(a.Data))
}
