package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
)

// Service manages a pool of chromedp browser instances and hands out pages.
// Browsers are allocated round-robin; a semaphore caps concurrent pages
// across the whole pool.
type Service struct {
	config           *common.BrowserConfig
	logger           arbor.ILogger
	browsers         []context.Context
	browserCancels   []context.CancelFunc
	allocatorCancels []context.CancelFunc
	pageSlots        chan struct{}
	mu               sync.Mutex
	currentIndex     int
	initialized      bool
	userAgent        string
}

// NewService creates a browser pool service
func NewService(config *common.BrowserConfig, userAgent string, logger arbor.ILogger) *Service {
	return &Service{
		config:    config,
		logger:    logger,
		userAgent: userAgent,
		pageSlots: make(chan struct{}, config.MaxPages),
	}
}

// Start launches the configured number of browser instances
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return fmt.Errorf("browser pool already started")
	}
	if s.config.MaxBrowsers <= 0 {
		return fmt.Errorf("max_browsers must be greater than 0, got: %d", s.config.MaxBrowsers)
	}

	s.logger.Info().
		Int("max_browsers", s.config.MaxBrowsers).
		Int("max_pages", s.config.MaxPages).
		Bool("headless", s.config.Headless).
		Msg("Starting browser pool")

	successCount := 0
	var lastErr error
	for i := 0; i < s.config.MaxBrowsers; i++ {
		if err := s.createBrowserInstance(ctx, i); err != nil {
			lastErr = err
			s.logger.Warn().
				Err(err).
				Int("browser_index", i).
				Msg("Failed to create browser instance")
			if successCount == 0 && i == s.config.MaxBrowsers-1 {
				s.cleanupInstances()
				return fmt.Errorf("failed to create any browser instances: %w", err)
			}
			continue
		}
		successCount++
	}

	if successCount == 0 {
		s.cleanupInstances()
		return fmt.Errorf("failed to create any browser instances: %w", lastErr)
	}
	if successCount < s.config.MaxBrowsers {
		s.logger.Warn().
			Int("requested", s.config.MaxBrowsers).
			Int("created", successCount).
			Msg("Created fewer browser instances than requested")
	}

	s.initialized = true
	s.logger.Info().
		Int("browsers_created", len(s.browsers)).
		Msg("Browser pool started")

	return nil
}

func (s *Service) createBrowserInstance(ctx context.Context, index int) error {
	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", s.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(s.userAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup probe
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser instance failed startup test: %w", err)
	}

	s.browsers = append(s.browsers, browserCtx)
	s.browserCancels = append(s.browserCancels, browserCancel)
	s.allocatorCancels = append(s.allocatorCancels, allocatorCancel)

	s.logger.Debug().
		Int("browser_index", index).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser instance created")

	return nil
}

// AcquirePage blocks until a page slot is free, then opens a new tab on the
// next browser in round-robin order
func (s *Service) AcquirePage(ctx context.Context) (interfaces.Page, error) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil, fmt.Errorf("browser pool not started")
	}
	s.mu.Unlock()

	select {
	case s.pageSlots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for browser page: %w", ctx.Err())
	}

	s.mu.Lock()
	index := s.currentIndex % len(s.browsers)
	s.currentIndex = (s.currentIndex + 1) % len(s.browsers)
	browserCtx := s.browsers[index]
	s.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)

	// Enable network tracking up front so navigation failures surface as
	// protocol errors rather than silent empty pages.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		<-s.pageSlots
		return nil, fmt.Errorf("failed to enable network tracking: %w", err)
	}

	page := &chromedpPage{
		ctx:     tabCtx,
		cancel:  tabCancel,
		service: s,
		config:  s.config,
		logger:  s.logger,
	}

	s.logger.Debug().
		Int("browser_index", index).
		Msg("Browser page acquired")

	return page, nil
}

func (s *Service) releaseSlot() {
	<-s.pageSlots
}

// Stats returns pool occupancy counters
func (s *Service) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]interface{}{
		"max_browsers":    s.config.MaxBrowsers,
		"active_browsers": len(s.browsers),
		"max_pages":       s.config.MaxPages,
		"active_pages":    len(s.pageSlots),
		"initialized":     s.initialized,
	}
}

// Shutdown cancels all browser instances
func (s *Service) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}

	browserCount := len(s.browsers)
	s.logger.Info().
		Int("browser_count", browserCount).
		Msg("Shutting down browser pool")

	done := make(chan struct{})
	go func() {
		s.cleanupInstances()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Browser pool shutdown timed out, forcing cleanup")
		s.cleanupInstances()
	}

	s.initialized = false
	s.logger.Info().
		Int("browsers_shutdown", browserCount).
		Msg("Browser pool shut down")

	return nil
}

// cleanupInstances cancels all contexts (must be called with mutex held)
func (s *Service) cleanupInstances() {
	for _, cancel := range s.browserCancels {
		if cancel != nil {
			cancel()
		}
	}
	for _, cancel := range s.allocatorCancels {
		if cancel != nil {
			cancel()
		}
	}
	s.browsers = nil
	s.browserCancels = nil
	s.allocatorCancels = nil
	s.currentIndex = 0
}
