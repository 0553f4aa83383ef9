package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"NewsHarvester/internal/config"
	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
	"NewsHarvester/internal/scanner"
)

// StrategySource implements ArticleSource via registered site adapters.
type StrategySource struct {
	sites    []config.SiteConfig
	adapters map[string]scanner.Adapter
	logger   *slog.Logger
}

var _ ports.ArticleSource = (*StrategySource)(nil)

// NewStrategySource resolves an adapter for every configured site up front.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) (*StrategySource, error) {
	if reg == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}
	if log == nil {
		log = slog.Default()
	}

	adapters := make(map[string]scanner.Adapter, len(sites))
	for _, site := range sites {
		adapter, err := reg.Build(site.Adapter, site.Options)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}
		adapters[site.Name] = adapter
	}

	return &StrategySource{
		sites:    sites,
		adapters: adapters,
		logger:   log,
	}, nil
}

// Collect walks the flagged listings of every site. Links found under several
// categories are kept once, under the first category configured.
func (s *StrategySource) Collect(ctx context.Context, pass domain.ListingPass) ([]domain.Candidate, error) {
	var (
		candidates []domain.Candidate
		seen       = map[string]struct{}{}
	)

	for _, site := range s.sites {
		listings := selectCategories(site.Categories, pass)
		if len(listings) == 0 {
			continue
		}
		s.logger.Debug("collect site", "site", site.Name, "pass", pass, "listings", len(listings))

		perListing := make([][]domain.ListingEntry, len(listings))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(1, site.IntOption("listingWorkers", 1)))

		adapter := s.adapters[site.Name]
		for i, cat := range listings {
			g.Go(func() error {
				entries, err := adapter.CollectLinks(gctx, cat.URL)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					s.logger.Warn("skip listing", "site", site.Name, "category", cat.Name, "url", cat.URL, "error", err)
					return nil
				}
				perListing[i] = entries
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, cat := range listings {
			for _, entry := range perListing[i] {
				if _, ok := seen[entry.URL]; ok {
					continue
				}
				seen[entry.URL] = struct{}{}
				candidates = append(candidates, domain.Candidate{Site: site.Name, Category: cat.Name, Entry: entry})
			}
			s.logger.Debug("listing collected", "site", site.Name, "category", cat.Name, "links", len(perListing[i]))
		}
	}

	return candidates, nil
}

// Extract reads the candidate's article and stamps it with a fresh id and its category.
func (s *StrategySource) Extract(ctx context.Context, c domain.Candidate) (domain.ArticleDraft, error) {
	adapter, ok := s.adapters[c.Site]
	if !ok {
		return domain.ArticleDraft{}, fmt.Errorf("site %s has no adapter", c.Site)
	}

	draft, err := adapter.Extract(ctx, c.Entry.URL)
	if err != nil {
		return domain.ArticleDraft{}, err
	}

	draft.ID = uuid.NewString()
	draft.Category = c.Category
	if draft.SourceURL == "" {
		draft.SourceURL = c.Entry.URL
	}
	return draft, nil
}

// Trends merges the promoted titles of every configured trending page.
func (s *StrategySource) Trends(ctx context.Context) (domain.TrendSnapshot, error) {
	var (
		merged        domain.TrendSnapshot
		trendSeen     = map[string]struct{}{}
		popularSeen   = map[string]struct{}{}
		pages, failed int
		lastErr       error
	)

	for _, site := range s.sites {
		adapter := s.adapters[site.Name]
		for _, pageURL := range site.Trending {
			pages++
			snapshot, err := adapter.Trending(ctx, pageURL)
			if err != nil {
				failed++
				lastErr = err
				s.logger.Warn("skip trending page", "site", site.Name, "url", pageURL, "error", err)
				continue
			}
			merged.Trending = appendUnique(merged.Trending, trendSeen, snapshot.Trending)
			merged.Popular = appendUnique(merged.Popular, popularSeen, snapshot.Popular)
		}
	}

	if pages > 0 && failed == pages {
		return domain.TrendSnapshot{}, errors.Join(errors.New("no trending page could be read"), lastErr)
	}
	return merged, nil
}

func selectCategories(categories []config.CategoryConfig, pass domain.ListingPass) []config.CategoryConfig {
	var out []config.CategoryConfig
	for _, cat := range categories {
		switch {
		case pass == domain.PassIncremental && cat.Incremental,
			pass == domain.PassBackfill && cat.Backfill,
			pass == domain.PassReclassify && cat.Reclassify:
			out = append(out, cat)
		}
	}
	return out
}

func appendUnique(dst []string, seen map[string]struct{}, values []string) []string {
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
