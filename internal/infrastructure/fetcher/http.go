package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

const maxPageBytes = 8 << 20

// Options configures both fetcher engines.
type Options struct {
	Client      *http.Client
	UserAgent   string
	Timeout     time.Duration
	MaxSessions int
	Headful     bool
}

// HTTPFetcher loads pages with plain GET requests, bounding concurrent sessions.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	sessions  chan struct{}
}

var _ ports.PageFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP client; MaxSessions defaults to 4.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	opts = withDefaults(opts)
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{
		client:    client,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		sessions:  make(chan struct{}, opts.MaxSessions),
	}
}

// Fetch returns the raw body of pageURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := acquire(ctx, f.sessions); err != nil {
		return nil, &domain.FetchError{URL: pageURL, Err: err}
	}
	defer release(f.sessions)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: pageURL, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.FetchError{URL: pageURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, &domain.FetchError{URL: pageURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// FetchWhenReady fetches pageURL and fails unless readySelector is present in the markup.
// Static HTML has nothing to wait for, so presence is checked once.
func (f *HTTPFetcher) FetchWhenReady(ctx context.Context, pageURL, readySelector string) ([]byte, error) {
	body, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if readySelector == "" {
		return body, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &domain.FetchError{URL: pageURL, Err: fmt.Errorf("parse document: %w", err)}
	}
	if doc.Find(readySelector).Length() == 0 {
		return nil, &domain.FetchError{URL: pageURL, Err: fmt.Errorf("selector %q never appeared", readySelector)}
	}
	return body, nil
}

func withDefaults(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 4
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "NewsHarvester/1.0"
	}
	return opts
}

func acquire(ctx context.Context, slots chan struct{}) error {
	select {
	case slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func release(slots chan struct{}) {
	<-slots
}
