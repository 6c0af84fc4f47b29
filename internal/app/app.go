package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
	"github.com/ternarybob/merx/internal/services/browser"
	"github.com/ternarybob/merx/internal/services/checkout"
	"github.com/ternarybob/merx/internal/services/crawler"
	"github.com/ternarybob/merx/internal/services/events"
	"github.com/ternarybob/merx/internal/services/extraction"
	"github.com/ternarybob/merx/internal/services/llm"
	"github.com/ternarybob/merx/internal/services/scheduler"
	"github.com/ternarybob/merx/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// Site access
	BrowserService interfaces.BrowserService
	CrawlerService interfaces.CrawlerService

	// Extraction pipeline
	CompletionService interfaces.CompletionService
	ExtractionService interfaces.ExtractionService

	// Checkout engine
	CheckoutService interfaces.CheckoutService

	cron      *cron.Cron
	ctx       context.Context
	cancelCtx context.CancelFunc
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.startSweeps(); err != nil {
		app.Close()
		return nil, err
	}

	logger.Info().
		Str("site", cfg.Site.BaseURL).
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Bool("llm_disabled", cfg.LLM.Disabled).
		Msg("Application initialization complete")
	return app, nil
}

func (a *App) initServices() error {
	storageManager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	a.EventService = events.NewService(a.Logger)

	completion, err := llm.NewCompletionService(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create completion service: %w", err)
	}
	a.CompletionService = completion

	browserService := browser.NewService(&a.Config.Browser, a.Config.Site.UserAgent, a.Logger)
	if err := browserService.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start browser pool: %w", err)
	}
	a.BrowserService = browserService

	extractionService, err := extraction.NewService(
		&a.Config.Extraction,
		a.CompletionService,
		a.StorageManager.CacheStorage(),
		a.Config.Site.BaseURL,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create extraction service: %w", err)
	}
	a.ExtractionService = extractionService

	checkoutService, err := checkout.NewService(
		&a.Config.Checkout,
		a.StorageManager.CheckoutStorage(),
		a.StorageManager.DocumentStorage(),
		a.EventService,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create checkout service: %w", err)
	}
	a.CheckoutService = checkoutService

	crawlerService, err := crawler.NewService(
		&a.Config.Site,
		a.BrowserService,
		a.ExtractionService,
		a.StorageManager,
		a.EventService,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create crawler service: %w", err)
	}
	a.CrawlerService = crawlerService

	schedulerService := scheduler.NewService(&a.Config.Scheduler, a.EventService, a.Logger)
	schedulerService.RegisterHandler(models.TaskKindCategory, crawlerService.CrawlCategory)
	schedulerService.RegisterHandler(models.TaskKindProduct, crawlerService.CrawlProductDetails)
	schedulerService.RegisterHandler(models.TaskKindBatch, crawlerService.CrawlMultipleProducts)
	schedulerService.RegisterHandler(models.TaskKindCheckout, crawlerService.CrawlCheckoutProcess)
	schedulerService.RegisterHandler(models.TaskKindSearch, crawlerService.CrawlSearchResults)
	schedulerService.RegisterHandler(models.TaskKindUpdate, crawlerService.UpdateProductsInfo)
	if err := schedulerService.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	a.SchedulerService = schedulerService

	return nil
}

// startSweeps registers the periodic maintenance jobs: the checkout session
// reaper, the extraction cache purge and the stale product refresh
func (a *App) startSweeps() error {
	a.cron = cron.New(cron.WithSeconds())

	if schedule := a.Config.Checkout.CleanupSchedule; schedule != "" {
		_, err := a.cron.AddFunc(schedule, func() {
			removed, err := a.CheckoutService.CleanupExpiredSessions(a.ctx, a.Config.Checkout.SessionExpiry)
			if err != nil {
				a.Logger.Warn().Err(err).Msg("Session cleanup sweep failed")
				a.publishError("session_cleanup", err)
				return
			}
			if removed > 0 {
				a.Logger.Debug().Int("removed", removed).Msg("Session cleanup sweep finished")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid session cleanup schedule %q: %w", schedule, err)
		}
	}

	if schedule := a.Config.Extraction.PurgeSchedule; schedule != "" {
		_, err := a.cron.AddFunc(schedule, func() {
			purged, err := a.StorageManager.CacheStorage().PurgeOlderThan(a.ctx, a.Config.Extraction.CacheTTL)
			if err != nil {
				a.Logger.Warn().Err(err).Msg("Cache purge sweep failed")
				a.publishError("cache_purge", err)
				return
			}
			if purged > 0 {
				a.Logger.Debug().Int("purged", purged).Msg("Cache purge sweep finished")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cache purge schedule %q: %w", schedule, err)
		}
	}

	if schedule := a.Config.Site.UpdateSchedule; schedule != "" {
		_, err := a.cron.AddFunc(schedule, func() {
			task := models.NewCrawlTask(models.TaskKindUpdate, nil)
			if _, err := a.SchedulerService.Submit(task); err != nil {
				a.Logger.Warn().Err(err).Msg("Stale product refresh submission failed")
				a.publishError("stale_product_refresh", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid update schedule %q: %w", schedule, err)
		}
	}

	a.cron.Start()
	return nil
}

// publishError raises the system error event for failures that happen
// outside any task's scope
func (a *App) publishError(source string, err error) {
	if a.EventService == nil {
		return
	}
	event := interfaces.Event{
		Type: interfaces.EventError,
		Payload: map[string]interface{}{
			"type":   source,
			"error":  err.Error(),
			"source": "sweep",
		},
	}
	if pubErr := a.EventService.Publish(a.ctx, event); pubErr != nil {
		a.Logger.Warn().Err(pubErr).Msg("Error event publish failed")
	}
}

// Close shuts down all application components in reverse dependency order
func (a *App) Close() {
	if a.cron != nil {
		a.cron.Stop()
	}
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler shutdown failed")
		}
	}
	if a.BrowserService != nil {
		if err := a.BrowserService.Shutdown(); err != nil {
			a.Logger.Warn().Err(err).Msg("Browser pool shutdown failed")
		}
	}
	if a.CompletionService != nil {
		if err := a.CompletionService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Completion service shutdown failed")
		}
	}
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service shutdown failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage shutdown failed")
		}
	}

	a.Logger.Info().Msg("Application stopped")
}
