package usecase

import (
	"context"
	"fmt"

	"NewsHarvester/internal/domain"
)

// ReclassifySummary counts listing entries checked and stored articles moved.
type ReclassifySummary struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}

// TrendSummary counts articles newly marked per trend.
type TrendSummary struct {
	Trending int `json:"trending"`
	Popular  int `json:"popular"`
}

// Reclassify walks the reclassify listings and moves stored articles into the listing's category.
func (p *Pipeline) Reclassify(ctx context.Context) (ReclassifySummary, error) {
	var summary ReclassifySummary
	err := p.exclusive(ctx, JobReclassify, func(ctx context.Context) error {
		var err error
		summary, err = p.reclassify(ctx)
		return err
	})
	return summary, err
}

// RefreshTrends marks the titles a site promotes and resets articles that dropped out.
func (p *Pipeline) RefreshTrends(ctx context.Context) (TrendSummary, error) {
	var summary TrendSummary
	err := p.exclusive(ctx, JobTrends, func(ctx context.Context) error {
		var err error
		summary, err = p.refreshTrends(ctx)
		return err
	})
	return summary, err
}

func (p *Pipeline) reclassify(ctx context.Context) (ReclassifySummary, error) {
	var summary ReclassifySummary

	candidates, err := p.source.Collect(ctx, domain.PassReclassify)
	if err != nil {
		return summary, fmt.Errorf("collect reclassify: %w", err)
	}

	for _, c := range candidates {
		if c.Entry.Title == "" {
			continue
		}
		summary.Checked++
		changed, err := p.store.Reclassify(ctx, c.Entry.Title, c.Category)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			p.logger.Warn("reclassify failed", "title", c.Entry.Title, "category", c.Category, "error", err)
			continue
		}
		if changed {
			summary.Changed++
			p.logger.Info("article reclassified", "title", c.Entry.Title, "category", c.Category)
		}
	}

	p.logger.Info("reclassify finished", "checked", summary.Checked, "changed", summary.Changed, "failed", summary.Failed)
	return summary, nil
}

func (p *Pipeline) refreshTrends(ctx context.Context) (TrendSummary, error) {
	var summary TrendSummary

	snapshot, err := p.source.Trends(ctx)
	if err != nil {
		return summary, fmt.Errorf("load trends: %w", err)
	}

	if summary.Trending, err = p.store.SetTrend(ctx, domain.TrendTrending, snapshot.Trending); err != nil {
		return summary, fmt.Errorf("set trending: %w", err)
	}
	if summary.Popular, err = p.store.SetTrend(ctx, domain.TrendPopular, snapshot.Popular); err != nil {
		return summary, fmt.Errorf("set popular: %w", err)
	}

	p.logger.Info("trends refreshed",
		"trending", len(snapshot.Trending), "popular", len(snapshot.Popular),
		"newlyTrending", summary.Trending, "newlyPopular", summary.Popular)
	return summary, nil
}
