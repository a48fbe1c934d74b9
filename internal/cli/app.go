package cli

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/coda/internal/agentdefs"
	"github.com/harun/coda/internal/config"
	"github.com/harun/coda/internal/logger"
	"github.com/harun/coda/internal/metrics"
	"github.com/harun/coda/pkg/agentrunner"
	"github.com/harun/coda/pkg/conversation"
	"github.com/harun/coda/pkg/coretools"
	"github.com/harun/coda/pkg/dispatcher"
	"github.com/harun/coda/pkg/history"
	"github.com/harun/coda/pkg/permission"
	"github.com/harun/coda/pkg/provider"
	"github.com/harun/coda/pkg/taskboard"
)

// App bundles the assembled runtime: every component wired, ready to
// serve sessions.
type App struct {
	Config     *config.Config
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	Gate       *permission.Gate
	Dispatcher *dispatcher.Dispatcher
	Board      *taskboard.Board
	History    *history.Store
	Transport  conversation.Transport
	AgentDefs  *agentdefs.Registry
	AgentRuns  *agentrunner.Registry
	Runner     *agentrunner.Runner

	taskStore  *taskboard.Store
	watcher    *agentdefs.Watcher
	janitor    *agentrunner.Janitor
	metricsSrv *http.Server
}

// buildApp loads configuration and wires every component together.
// interactive controls whether the permission gate may prompt the user.
func buildApp(interactive bool) (*App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   false,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	zl := log.Zerolog()

	app := &App{Config: cfg, Logger: log}

	m := metrics.New()
	app.Metrics = m

	var handler permission.ApprovalHandler
	if interactive {
		handler = NewTerminalApprovalHandler(os.Stdin, os.Stdout)
	} else {
		handler = permission.DenyAllHandler{}
	}

	gate, err := permission.NewGate(permission.Config{
		StorePath: cfg.Permissions.StorePath,
		Handler:   handler,
		Observer:  m,
		Logger:    zl,
	})
	if err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to create permission gate: %w", err))
	}
	app.Gate = gate

	d := dispatcher.New(dispatcher.Config{
		Gate:     gate,
		Observer: m,
		Logger:   zl,
	})
	app.Dispatcher = d

	workspace := cfg.WorkspacePath
	if workspace == "" {
		workspace, err = os.Getwd()
		if err != nil {
			return nil, app.closeWith(fmt.Errorf("failed to determine workspace: %w", err))
		}
	}

	if err := coretools.Register(d, coretools.Options{WorkspaceRoot: workspace}); err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to register core tools: %w", err))
	}

	taskStore, err := taskboard.OpenStore(cfg.Tasks.DBPath)
	if err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to open task store: %w", err))
	}
	app.taskStore = taskStore

	board, err := taskboard.NewBoard(taskboard.Options{Store: taskStore, Logger: zl})
	if err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to create task board: %w", err))
	}
	app.Board = board

	if err := taskboard.RegisterTools(d, board); err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to register task tools: %w", err))
	}

	hist, err := history.NewStore(cfg.Session.HistoryDir, zl)
	if err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to open history store: %w", err))
	}
	app.History = hist

	transport, err := provider.New(cfg.Provider.Name, cfg.Provider.APIKey)
	if err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to create provider: %w", err))
	}
	app.Transport = transport

	defs := agentdefs.NewRegistry(cfg.Agents.DefsDir, zl)
	if err := defs.Load(); err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to load agent definitions: %w", err))
	}
	app.AgentDefs = defs

	if watcher, err := agentdefs.NewWatcher(defs, zl); err != nil {
		zl.Warn().Err(err).Msg("Agent definition watcher unavailable")
	} else if err := watcher.Start(); err != nil {
		zl.Warn().Err(err).Msg("Agent definition watcher failed to start")
	} else {
		app.watcher = watcher
	}

	runRegistry, err := agentrunner.NewRegistry(agentrunner.RegistryConfig{
		Path:     cfg.Agents.RegistryPath,
		AutoSave: true,
		Logger:   zl,
	})
	if err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to create agent registry: %w", err))
	}
	if err := runRegistry.Initialize(); err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to initialize agent registry: %w", err))
	}
	app.AgentRuns = runRegistry

	runner, err := agentrunner.NewRunner(agentrunner.Config{
		Dispatcher: d,
		Transport:  transport,
		Registry:   runRegistry,
		Specs:      defs,
		History:    hist,
		Model:      cfg.Provider.Model,
		MaxRounds:  cfg.Session.MaxRounds,
		WorkingDir: workspace,
		Observer:   m,
		Logger:     zl,
	})
	if err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to create agent runner: %w", err))
	}
	app.Runner = runner

	if err := agentrunner.RegisterTools(d, runner, defs.Names()); err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to register agent tools: %w", err))
	}

	retention := time.Duration(cfg.Agents.RetentionHours) * time.Hour
	janitor, err := agentrunner.NewJanitor(runRegistry, cfg.Agents.CleanupSchedule, retention, zl)
	if err != nil {
		return nil, app.closeWith(fmt.Errorf("failed to create agent janitor: %w", err))
	}
	janitor.Start()
	app.janitor = janitor

	if cfg.Metrics.Enabled {
		app.startMetricsServer(zl)
	}

	return app, nil
}

// WorkspaceDir returns the resolved workspace root.
func (a *App) WorkspaceDir() string {
	if a.Config.WorkspacePath != "" {
		return a.Config.WorkspacePath
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (a *App) startMetricsServer(zl zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())

	a.metricsSrv = &http.Server{
		Addr:    a.Config.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		zl.Info().Str("addr", a.Config.Metrics.Addr).Msg("Metrics server listening")
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
}

// closeWith tears down whatever was built so far and returns err.
func (a *App) closeWith(err error) error {
	_ = a.Close()
	return err
}

// Close releases all resources in reverse construction order.
func (a *App) Close() error {
	if a.metricsSrv != nil {
		_ = a.metricsSrv.Close()
	}
	if a.janitor != nil {
		a.janitor.Stop()
	}
	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	if a.taskStore != nil {
		_ = a.taskStore.Close()
	}
	if a.AgentRuns != nil {
		_ = a.AgentRuns.Close()
	}
	if a.Gate != nil {
		_ = a.Gate.Close()
	}
	if a.Logger != nil {
		return a.Logger.Close()
	}
	return nil
}
