package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/common"
)

// chromedpPage implements interfaces.Page over one chromedp tab
type chromedpPage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	service *Service
	config  *common.BrowserConfig
	logger  arbor.ILogger
	closed  bool
}

func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := p.ctx
	if ctx != nil {
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithDeadline(p.ctx, deadline)
			defer cancel()
		}
	}
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	timeout := p.config.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	navCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	startTime := time.Now()
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(p.config.JavaScriptWaitTime), // Wait for JavaScript to render
	)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	p.logger.Debug().
		Str("url", url).
		Dur("duration", time.Since(startTime)).
		Msg("Page navigated")

	return nil
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var htmlContent string
	if err := p.run(ctx, chromedp.OuterHTML("html", &htmlContent)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return htmlContent, nil
}

func (p *chromedpPage) EvaluateInPage(ctx context.Context, expression string, out interface{}) error {
	if err := p.run(ctx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("page evaluation failed: %w", err)
	}
	return nil
}

func (p *chromedpPage) IsVisible(ctx context.Context, selector string) (bool, error) {
	// Probe with a short timeout instead of blocking until the node appears
	probeCtx, cancel := context.WithTimeout(p.ctx, 2*time.Second)
	defer cancel()

	err := chromedp.Run(probeCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil {
		if probeCtx.Err() != nil {
			return false, nil
		}
		return false, fmt.Errorf("visibility probe failed for %s: %w", selector, err)
	}
	return true, nil
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click failed for %s: %w", selector, err)
	}
	return nil
}

func (p *chromedpPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("timed out waiting for %s: %w", selector, err)
	}
	return nil
}

func (p *chromedpPage) ScrollToBottom(ctx context.Context) error {
	err := p.run(ctx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(500*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

func (p *chromedpPage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return url, nil
}

func (p *chromedpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

func (p *chromedpPage) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()
	p.service.releaseSlot()
	return nil
}
