package parser

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
	"NewsHarvester/internal/scanner"
)

// HackerNewsAdapterName is the registry key of the thehackernews.com adapter.
const HackerNewsAdapterName = "thehackernews"

// HackerNewsSelectors locates every region the adapter reads. Each field can be
// overridden through the site option of the same name.
type HackerNewsSelectors struct {
	ListingReady string
	StoryLink    string
	StoryTitle   string
	StoryDate    string
	NextPage     string

	ArticleReady string
	PageNoise    string
	Title        string
	MetaDate     string
	Author       string
	Tags         string
	Image        string
	Body         string
	Noise        string

	TrendNoise    string
	PopularTitle  string
	PopularWidget string
	PopularBlock  string
}

// DefaultHackerNewsSelectors matches the current thehackernews.com markup.
func DefaultHackerNewsSelectors() HackerNewsSelectors {
	return HackerNewsSelectors{
		ListingReady: "body",
		StoryLink:    ".story-link",
		StoryTitle:   ".home-title",
		StoryDate:    ".h-datetime",
		NextPage:     "#Blog1_blog-pager-older-link",

		ArticleReady: ".articlebody",
		PageNoise:    ".header.clear, .right-box, .below-post-box.cf, .footer-stuff.clear.cf, .email-box",
		Title:        ".story-title",
		MetaDate:     `meta[property="article:published_time"], [itemprop="datePublished"]`,
		Author:       ".postmeta .author",
		Tags:         ".postmeta .p-tags",
		Image:        ".separator a img",
		Body:         ".articlebody",
		Noise:        ".check_two, .cf.note-b, .editor-rtfLink",

		TrendNoise:    ".header.clear, .left-box, .below-post-box.cf, .footer-stuff.clear.cf",
		PopularTitle:  ".pop-title",
		PopularWidget: ".widget.PopularPosts",
		PopularBlock:  ".pop-article",
	}
}

func (s *HackerNewsSelectors) apply(options map[string]string) {
	fields := map[string]*string{
		"listingReady":  &s.ListingReady,
		"storyLink":     &s.StoryLink,
		"storyTitle":    &s.StoryTitle,
		"storyDate":     &s.StoryDate,
		"nextPage":      &s.NextPage,
		"articleReady":  &s.ArticleReady,
		"pageNoise":     &s.PageNoise,
		"title":         &s.Title,
		"metaDate":      &s.MetaDate,
		"author":        &s.Author,
		"tags":          &s.Tags,
		"image":         &s.Image,
		"body":          &s.Body,
		"noise":         &s.Noise,
		"trendNoise":    &s.TrendNoise,
		"popularTitle":  &s.PopularTitle,
		"popularWidget": &s.PopularWidget,
		"popularBlock":  &s.PopularBlock,
	}
	for key, field := range fields {
		if v := strings.TrimSpace(options[key]); v != "" {
			*field = v
		}
	}
}

// HackerNewsAdapter reads thehackernews.com listings and articles.
type HackerNewsAdapter struct {
	fetcher ports.PageFetcher
	sel     HackerNewsSelectors
	walker  listingWalker
	logger  *slog.Logger
}

var _ scanner.Adapter = (*HackerNewsAdapter)(nil)

// NewHackerNewsAdapter builds the adapter. Options: selector overrides, "excludeLinks"
// (comma separated substrings) and "maxPages" (0 = follow pagination to the end).
func NewHackerNewsAdapter(fetcher ports.PageFetcher, options map[string]string, logger *slog.Logger) *HackerNewsAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	sel := DefaultHackerNewsSelectors()
	sel.apply(options)

	return &HackerNewsAdapter{
		fetcher: fetcher,
		sel:     sel,
		walker: listingWalker{
			fetcher:  fetcher,
			ready:    sel.ListingReady,
			next:     sel.NextPage,
			maxPages: intOption(options, "maxPages", 0),
			exclude:  splitOption(options["excludeLinks"]),
			logger:   logger,
		},
		logger: logger,
	}
}

// HackerNewsFactory registers the adapter over a shared fetcher.
func HackerNewsFactory(fetcher ports.PageFetcher, logger *slog.Logger) scanner.Factory {
	return func(options map[string]string) (scanner.Adapter, error) {
		return NewHackerNewsAdapter(fetcher, options, logger), nil
	}
}

// Name identifies the adapter inside the registry.
func (h *HackerNewsAdapter) Name() string {
	return HackerNewsAdapterName
}

// CollectLinks walks listingURL and its older pages.
func (h *HackerNewsAdapter) CollectLinks(ctx context.Context, listingURL string) ([]domain.ListingEntry, error) {
	return h.walker.walk(ctx, listingURL, h.listingEntries)
}

func (h *HackerNewsAdapter) listingEntries(base *url.URL, doc *goquery.Document) []domain.ListingEntry {
	var entries []domain.ListingEntry
	doc.Find(h.sel.StoryLink).Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		entry := domain.ListingEntry{
			URL:      resolve(base, href),
			Title:    collapseSpace(link.Find(h.sel.StoryTitle).First().Text()),
			DateText: collapseSpace(link.Find(h.sel.StoryDate).First().Text()),
		}
		if day, ok := ParseDisplayDate(entry.DateText); ok {
			entry.PublishedOn = day
			entry.DateText = day.Format(DisplayDateLayout)
		}
		entries = append(entries, entry)
	})
	return entries
}

// Extract reads one article page.
func (h *HackerNewsAdapter) Extract(ctx context.Context, articleURL string) (domain.ArticleDraft, error) {
	doc, base, err := fetchDocument(ctx, h.fetcher, articleURL, h.sel.ArticleReady)
	if err != nil {
		return domain.ArticleDraft{}, err
	}
	if h.sel.PageNoise != "" {
		doc.Find(h.sel.PageNoise).Remove()
	}

	title := collapseSpace(doc.Find(h.sel.Title).First().Text())
	if title == "" {
		return domain.ArticleDraft{}, &domain.ExtractionError{URL: articleURL, Field: "title"}
	}

	// The first author-like node is the display date; the byline is the second.
	metaNodes := doc.Find(h.sel.Author)
	var author string
	if metaNodes.Length() > 1 {
		author = collapseSpace(metaNodes.Eq(1).Text())
	}

	date := normaliseDate(metadataDate(doc, h.sel.MetaDate))
	if date == "" {
		date = normaliseDate(metaNodes.First().Text())
	}
	if date == "" {
		return domain.ArticleDraft{}, &domain.ExtractionError{URL: articleURL, Field: "date"}
	}

	container := doc.Find(h.sel.Body).First()
	if container.Length() == 0 {
		return domain.ArticleDraft{}, &domain.ExtractionError{URL: articleURL, Field: "body"}
	}
	bodyHTML, bodyText := sanitizeBody(container, h.sel.Noise)

	return domain.ArticleDraft{
		Title:     title,
		Author:    author,
		Date:      date,
		Tags:      collapseSpace(doc.Find(h.sel.Tags).First().Text()),
		SourceURL: articleURL,
		BodyHTML:  bodyHTML,
		BodyText:  bodyText,
		ImageURLs: separatorImage(doc, h.sel.Image, base),
	}, nil
}

// Trending returns titles from the trending widget and from the popular-article blocks.
func (h *HackerNewsAdapter) Trending(ctx context.Context, pageURL string) (domain.TrendSnapshot, error) {
	doc, _, err := fetchDocument(ctx, h.fetcher, pageURL, "body")
	if err != nil {
		return domain.TrendSnapshot{}, err
	}
	if h.sel.TrendNoise != "" {
		doc.Find(h.sel.TrendNoise).Remove()
	}

	var snapshot domain.TrendSnapshot
	snapshot.Trending = uniqueTexts(doc.Find(h.sel.PopularTitle))

	doc.Find(h.sel.PopularWidget).Remove()
	snapshot.Popular = uniqueTexts(doc.Find(h.sel.PopularBlock).Find(h.sel.PopularTitle))
	return snapshot, nil
}

// sanitizeBody drops noise nodes and inline links, then rebuilds the body from its paragraphs.
func sanitizeBody(container *goquery.Selection, noise string) (string, string) {
	if noise != "" {
		container.Find(noise).Remove()
	}

	var (
		htmlParts []string
		textParts []string
	)
	container.Find("p").Each(func(_ int, p *goquery.Selection) {
		p.Find("a").Remove()
		inner, err := p.Html()
		if err != nil {
			return
		}
		inner = strings.TrimSpace(inner)
		text := collapseSpace(p.Text())
		if inner == "" || text == "" {
			return
		}
		htmlParts = append(htmlParts, "<p>"+inner+"</p>")
		textParts = append(textParts, text)
	})

	return strings.Join(htmlParts, ""), strings.Join(textParts, "\n\n")
}

// separatorImage keeps only the first image whose parent anchor exists.
func separatorImage(doc *goquery.Document, selector string, base *url.URL) []string {
	img := doc.Find(selector).First()
	if img.Length() == 0 || img.Closest("a").Length() == 0 {
		return nil
	}
	src, _ := img.Attr("src")
	if strings.TrimSpace(src) == "" || strings.HasPrefix(src, "data:") {
		src, _ = img.Attr("data-src")
	}
	if link := resolve(base, src); link != "" {
		return []string{link}
	}
	return nil
}

func uniqueTexts(sel *goquery.Selection) []string {
	var (
		out  []string
		seen = map[string]struct{}{}
	)
	sel.Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		if _, ok := seen[text]; ok {
			return
		}
		seen[text] = struct{}{}
		out = append(out, text)
	})
	return out
}
