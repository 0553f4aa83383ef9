package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

// ChromeFetcher renders pages in headless Chrome, one tab per session.
type ChromeFetcher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	timeout  time.Duration
	sessions chan struct{}
}

var _ ports.PageFetcher = (*ChromeFetcher)(nil)

// NewChromeFetcher starts a browser allocator shared by all tabs. Call Close when done.
func NewChromeFetcher(opts Options) *ChromeFetcher {
	opts = withDefaults(opts)

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	if opts.Headful {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &ChromeFetcher{
		allocCtx: allocCtx,
		cancel:   cancel,
		timeout:  opts.Timeout,
		sessions: make(chan struct{}, opts.MaxSessions),
	}
}

// Fetch renders pageURL once its body is ready.
func (c *ChromeFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	return c.FetchWhenReady(ctx, pageURL, "body")
}

// FetchWhenReady navigates, scrolls to trigger lazy content, and waits for readySelector.
func (c *ChromeFetcher) FetchWhenReady(ctx context.Context, pageURL, readySelector string) ([]byte, error) {
	if readySelector == "" {
		readySelector = "body"
	}
	if err := acquire(ctx, c.sessions); err != nil {
		return nil, &domain.FetchError{URL: pageURL, Err: err}
	}
	defer release(c.sessions)

	tabCtx, cancelTab := chromedp.NewContext(c.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var (
		html     string
		scrolled bool
	)
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight), true`, &scrolled),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &domain.FetchError{URL: pageURL, Err: fmt.Errorf("render: %w", err)}
	}
	return []byte(html), nil
}

// Close shuts the browser down.
func (c *ChromeFetcher) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}
