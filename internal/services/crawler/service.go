package crawler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
)

// Service executes crawl task bodies against the retail site. All page
// traffic flows through a single rate limiter so concurrent tasks cannot
// exceed the site's request budget.
type Service struct {
	site       *common.SiteConfig
	browser    interfaces.BrowserService
	extraction interfaces.ExtractionService
	storage    interfaces.StorageManager
	events     interfaces.EventService
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

func NewService(site *common.SiteConfig, browser interfaces.BrowserService, extraction interfaces.ExtractionService, storage interfaces.StorageManager, events interfaces.EventService, logger arbor.ILogger) (*Service, error) {
	if site == nil {
		return nil, fmt.Errorf("site config is required")
	}
	if browser == nil || extraction == nil || storage == nil {
		return nil, fmt.Errorf("browser, extraction and storage services are required")
	}

	delay := site.RequestDelay
	if delay <= 0 {
		delay = time.Second
	}

	return &Service{
		site:       site,
		browser:    browser,
		extraction: extraction,
		storage:    storage,
		events:     events,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Every(delay), 1),
	}, nil
}

// waitTurn blocks until the site rate limiter allows another request, then
// adds the configured random jitter so traffic does not look mechanical
func (s *Service) waitTurn(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return common.NewTransientError("rate limit wait", err)
	}
	if s.site.RandomDelay > 0 {
		jitter := time.Duration(rand.Int63n(int64(s.site.RandomDelay)))
		select {
		case <-ctx.Done():
			return common.NewTransientError("rate limit wait", ctx.Err())
		case <-time.After(jitter):
		}
	}
	return nil
}

// fetchRenderedHTML navigates a pooled page to url and returns the rendered
// markup. scroll triggers lazy-loaded content before capture.
func (s *Service) fetchRenderedHTML(ctx context.Context, url string, scroll bool) (string, error) {
	if err := s.waitTurn(ctx); err != nil {
		return "", err
	}

	page, err := s.browser.AcquirePage(ctx)
	if err != nil {
		return "", common.NewBrowserCrashError("acquire page", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, url); err != nil {
		return "", common.NewTransientError("navigate "+url, err)
	}
	if scroll {
		if err := page.ScrollToBottom(ctx); err != nil {
			s.logger.Debug().Err(err).Str("url", url).Msg("Scroll failed, capturing as-is")
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return "", common.NewBrowserCrashError("capture html", err)
	}
	if html == "" {
		return "", common.NewStructuralError("capture html", fmt.Errorf("empty document at %s", url))
	}
	return html, nil
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Event publish failed")
	}
}

// fieldString pulls a string value out of an extraction result, tolerating
// numeric values the model sometimes returns for prices
func fieldString(fields map[string]interface{}, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	}
	return ""
}

// fieldBool interprets availability flags that may arrive as bool or text
func fieldBool(fields map[string]interface{}, key string) bool {
	switch v := fields[key].(type) {
	case bool:
		return v
	case string:
		switch v {
		case "true", "yes", "available", "in stock", "em estoque", "disponivel", "disponível":
			return true
		}
	}
	return false
}

// fieldMaps normalizes a list-of-objects extraction value
func fieldMaps(fields map[string]interface{}, key string) []map[string]interface{} {
	raw, ok := fields[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
