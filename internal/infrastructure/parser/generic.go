package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
	"NewsHarvester/internal/scanner"
)

// GenericAdapterName is the registry key of the readability-based adapter.
const GenericAdapterName = "generic"

// GenericAdapter handles sites without a dedicated adapter: links come from an
// anchor selector or a feed, articles are extracted with readability.
type GenericAdapter struct {
	fetcher  ports.PageFetcher
	feed     bool
	links    string
	title    string
	date     string
	metaDate string
	trending string
	noise    string
	ready    string
	walker   listingWalker
	logger   *slog.Logger
}

var _ scanner.Adapter = (*GenericAdapter)(nil)

// NewGenericAdapter reads options "feed" ("true" when listing URLs are RSS/Atom feeds),
// "linkSelector", "nextSelector", "titleSelector", "dateSelector", "trendingSelector",
// "noise", "articleReady", "excludeLinks" and "maxPages".
func NewGenericAdapter(fetcher ports.PageFetcher, options map[string]string, logger *slog.Logger) *GenericAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	get := func(key, def string) string {
		if v := strings.TrimSpace(options[key]); v != "" {
			return v
		}
		return def
	}

	return &GenericAdapter{
		fetcher:  fetcher,
		feed:     strings.EqualFold(options["feed"], "true"),
		links:    get("linkSelector", "article a[href]"),
		title:    get("titleSelector", ""),
		date:     get("dateSelector", "time"),
		metaDate: `meta[property="article:published_time"], [itemprop="datePublished"]`,
		trending: get("trendingSelector", ""),
		noise:    get("noise", ""),
		ready:    get("articleReady", "body"),
		walker: listingWalker{
			fetcher:  fetcher,
			ready:    get("listingReady", "body"),
			next:     get("nextSelector", ""),
			maxPages: intOption(options, "maxPages", 0),
			exclude:  splitOption(options["excludeLinks"]),
			logger:   logger,
		},
		logger: logger,
	}
}

// GenericFactory registers the adapter over a shared fetcher.
func GenericFactory(fetcher ports.PageFetcher, logger *slog.Logger) scanner.Factory {
	return func(options map[string]string) (scanner.Adapter, error) {
		return NewGenericAdapter(fetcher, options, logger), nil
	}
}

func (g *GenericAdapter) Name() string {
	return GenericAdapterName
}

// CollectLinks reads a feed or walks an HTML listing.
func (g *GenericAdapter) CollectLinks(ctx context.Context, listingURL string) ([]domain.ListingEntry, error) {
	if g.feed {
		return g.collectFeed(ctx, listingURL)
	}
	return g.walker.walk(ctx, listingURL, g.listingEntries)
}

func (g *GenericAdapter) collectFeed(ctx context.Context, feedURL string) ([]domain.ListingEntry, error) {
	raw, err := g.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &domain.FetchError{URL: feedURL, Err: fmt.Errorf("parse feed: %w", err)}
	}

	base, _ := url.Parse(feedURL)
	var (
		entries []domain.ListingEntry
		seen    = map[string]struct{}{}
	)
	for _, item := range feed.Items {
		link := resolve(base, item.Link)
		if link == "" || g.walker.excluded(link) {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}

		entry := domain.ListingEntry{URL: link, Title: collapseSpace(item.Title)}
		if item.PublishedParsed != nil {
			day := item.PublishedParsed.UTC()
			entry.PublishedOn = day
			entry.DateText = day.Format(DisplayDateLayout)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (g *GenericAdapter) listingEntries(base *url.URL, doc *goquery.Document) []domain.ListingEntry {
	var entries []domain.ListingEntry
	doc.Find(g.links).Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		entry := domain.ListingEntry{URL: resolve(base, href), Title: collapseSpace(link.Text())}
		if day, ok := ParseDisplayDate(link.Text()); ok {
			entry.PublishedOn = day
			entry.DateText = day.Format(DisplayDateLayout)
		}
		entries = append(entries, entry)
	})
	return entries
}

// Extract runs readability over the page and reads the publish date from metadata.
func (g *GenericAdapter) Extract(ctx context.Context, articleURL string) (domain.ArticleDraft, error) {
	pageURL, err := url.Parse(articleURL)
	if err != nil {
		return domain.ArticleDraft{}, &domain.FetchError{URL: articleURL, Err: err}
	}

	raw, err := g.fetcher.FetchWhenReady(ctx, articleURL, g.ready)
	if err != nil {
		return domain.ArticleDraft{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return domain.ArticleDraft{}, &domain.FetchError{URL: articleURL, Err: fmt.Errorf("parse document: %w", err)}
	}

	date := normaliseDate(metadataDate(doc, g.metaDate))
	if date == "" {
		date = normaliseDate(metadataDate(doc, g.date))
	}
	if date == "" {
		date = normaliseDate(doc.Find(g.date).First().Text())
	}

	if g.noise != "" {
		doc.Find(g.noise).Remove()
	}
	cleaned, err := doc.Html()
	if err != nil {
		return domain.ArticleDraft{}, &domain.FetchError{URL: articleURL, Err: err}
	}

	article, err := readability.FromReader(strings.NewReader(cleaned), pageURL)
	if err != nil {
		return domain.ArticleDraft{}, &domain.ExtractionError{URL: articleURL, Field: "body"}
	}

	title := collapseSpace(article.Title)
	if g.title != "" {
		if t := collapseSpace(doc.Find(g.title).First().Text()); t != "" {
			title = t
		}
	}
	if title == "" {
		return domain.ArticleDraft{}, &domain.ExtractionError{URL: articleURL, Field: "title"}
	}
	if date == "" {
		return domain.ArticleDraft{}, &domain.ExtractionError{URL: articleURL, Field: "date"}
	}

	bodyHTML, bodyText := article.Content, strings.TrimSpace(article.TextContent)
	if content, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content)); err == nil {
		if h, t := sanitizeBody(content.Selection, ""); h != "" {
			bodyHTML, bodyText = h, t
		}
	}

	var images []string
	if link := resolve(pageURL, article.Image); link != "" {
		images = []string{link}
	}

	return domain.ArticleDraft{
		Title:     title,
		Author:    collapseSpace(article.Byline),
		Date:      date,
		SourceURL: articleURL,
		BodyHTML:  bodyHTML,
		BodyText:  bodyText,
		ImageURLs: images,
	}, nil
}

// Trending returns the texts matched by "trendingSelector"; sites without one have no trends.
func (g *GenericAdapter) Trending(ctx context.Context, pageURL string) (domain.TrendSnapshot, error) {
	if g.trending == "" {
		return domain.TrendSnapshot{}, nil
	}
	doc, _, err := fetchDocument(ctx, g.fetcher, pageURL, "body")
	if err != nil {
		return domain.TrendSnapshot{}, err
	}
	return domain.TrendSnapshot{Trending: uniqueTexts(doc.Find(g.trending))}, nil
}
