package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/handlers"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/jobs"
	"github.com/ternarybob/vigil/internal/services/content"
	"github.com/ternarybob/vigil/internal/services/events"
	"github.com/ternarybob/vigil/internal/services/history"
	"github.com/ternarybob/vigil/internal/services/operations"
	"github.com/ternarybob/vigil/internal/services/reaper"
	"github.com/ternarybob/vigil/internal/sessions"
	"github.com/ternarybob/vigil/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Infrastructure
	EventService   interfaces.EventService
	HistoryStorage interfaces.JobHistoryStorage

	// Services
	Runner            *jobs.Runner
	Responder         *jobs.Responder
	Sessions          *sessions.Manager
	Content           interfaces.ContentRepository
	Catalog           interfaces.ContentCatalog
	OperationsService *operations.Service
	HistoryService    *history.Service
	Reaper            *reaper.Scheduler

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	OperationsHandler *handlers.OperationsHandler
	HistoryHandler    *handlers.HistoryHandler
	ContentHandler    *handlers.ContentHandler
	WSHandler         *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.Reaper.Start(cfg.Jobs.ReaperSchedule); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to start reaper: %w", err)
	}

	logger.Info().
		Str("content_root", cfg.Content.Root).
		Bool("history", cfg.Storage.Badger.Enabled).
		Int("sink_ceiling_bytes", cfg.Jobs.SinkCeilingBytes).
		Int("max_per_session", cfg.Jobs.MaxPerSession).
		Msg("Application initialized")

	return app, nil
}

func (a *App) initStorage() error {
	historyStorage, err := storage.NewHistoryStorage(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.HistoryStorage = historyStorage
	return nil
}

func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToLifecycleEvents(a.EventService, a.Logger); err != nil {
		return err
	}

	a.HistoryService = history.NewService(a.HistoryStorage, a.Logger)
	if err := a.HistoryService.Subscribe(a.EventService); err != nil {
		return err
	}

	a.Runner = jobs.NewRunner(a.Logger, a.EventService, a.Config.Jobs.SinkCeilingBytes)
	a.Responder = jobs.NewResponder(a.Logger, a.EventService)

	a.Sessions = sessions.NewManager(a.Logger, a.EventService, a.Config.Sessions.CookieName, a.Config.Jobs.MaxPerSession)
	a.Sessions.SetSecureCookie(a.Config.IsProduction())

	repo := content.NewFileRepository(a.Config.Content.Root, a.Logger)
	a.Content = repo
	a.Catalog = repo
	a.OperationsService = operations.NewService(a.Runner, a.Responder, a.Content, a.Logger)

	a.Reaper = reaper.NewScheduler(a.Sessions, a.HistoryService, reaper.Settings{
		SessionIdle:      a.Config.SessionIdleTimeout(),
		JobMaxIdle:       a.Config.MaxIdleDuration(),
		HistoryRetention: time.Duration(a.Config.Storage.Badger.RetentionDays) * 24 * time.Hour,
	}, a.Logger)

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Sessions, a.Logger)
	a.OperationsHandler = handlers.NewOperationsHandler(a.OperationsService, a.Logger)
	a.HistoryHandler = handlers.NewHistoryHandler(a.HistoryService, a.Logger)
	a.ContentHandler = handlers.NewContentHandler(a.Catalog, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, a.Config.ProgressThrottle())
}

// Close stops background services and releases storage. Running jobs are
// not waited for.
func (a *App) Close() error {
	if a.Reaper != nil {
		a.Reaper.Stop()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.HistoryStorage != nil {
		if err := a.HistoryStorage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close history storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
