package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

// DisplayDateLayout is the listing date format; metadata dates are normalised to it.
const DisplayDateLayout = "Jan 02, 2006"

var displayDateExpr = regexp.MustCompile(`([A-Z][a-z]{2}) (\d{1,2}), (\d{4})`)

// pageEntries extracts the entries from one parsed listing page.
type pageEntries func(page *url.URL, doc *goquery.Document) []domain.ListingEntry

// listingWalker follows "older posts" links until the control disappears.
type listingWalker struct {
	fetcher  ports.PageFetcher
	ready    string
	next     string
	maxPages int
	exclude  []string
	logger   *slog.Logger
}

func (w listingWalker) walk(ctx context.Context, start string, extract pageEntries) ([]domain.ListingEntry, error) {
	var (
		entries []domain.ListingEntry
		seen    = map[string]struct{}{}
		visited = map[string]struct{}{}
	)

	for page, pageURL := 0, start; pageURL != ""; page++ {
		if w.maxPages > 0 && page >= w.maxPages {
			break
		}
		// a "next" control pointing back at a visited page would loop forever
		if _, ok := visited[pageURL]; ok {
			break
		}
		visited[pageURL] = struct{}{}

		doc, base, err := fetchDocument(ctx, w.fetcher, pageURL, w.ready)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			w.logger.Warn("stop pagination", "url", pageURL, "error", err)
			break
		}

		for _, entry := range extract(base, doc) {
			if entry.URL == "" || w.excluded(entry.URL) {
				continue
			}
			if _, ok := seen[entry.URL]; ok {
				continue
			}
			seen[entry.URL] = struct{}{}
			entries = append(entries, entry)
		}

		pageURL = ""
		if w.next != "" {
			if href, ok := doc.Find(w.next).First().Attr("href"); ok {
				pageURL = resolve(base, href)
			}
		}
	}

	return entries, nil
}

func (w listingWalker) excluded(link string) bool {
	for _, pattern := range w.exclude {
		if strings.Contains(link, pattern) {
			return true
		}
	}
	return false
}

func fetchDocument(ctx context.Context, fetcher ports.PageFetcher, pageURL, ready string) (*goquery.Document, *url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, &domain.FetchError{URL: pageURL, Err: err}
	}

	body, err := fetcher.FetchWhenReady(ctx, pageURL, ready)
	if err != nil {
		return nil, nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, &domain.FetchError{URL: pageURL, Err: fmt.Errorf("parse document: %w", err)}
	}
	return doc, base, nil
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// ParseDisplayDate finds a "Jan 02, 2006" style date in text.
func ParseDisplayDate(text string) (time.Time, bool) {
	m := displayDateExpr.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	parsed, err := time.Parse("Jan 2, 2006", fmt.Sprintf("%s %s, %s", m[1], m[2], m[3]))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// normaliseDate renders metadata or display dates in DisplayDateLayout, keeping unknown formats verbatim.
func normaliseDate(raw string) string {
	raw = collapseSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Format(DisplayDateLayout)
		}
	}
	if parsed, ok := ParseDisplayDate(raw); ok {
		return parsed.Format(DisplayDateLayout)
	}
	return raw
}

func metadataDate(doc *goquery.Document, selector string) string {
	var found string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"content", "datetime"} {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				found = strings.TrimSpace(v)
				return false
			}
		}
		return true
	})
	return found
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func splitOption(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intOption(options map[string]string, key string, def int) int {
	if v, ok := options[key]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
