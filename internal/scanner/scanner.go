package scanner

import (
	"context"
	"fmt"

	"NewsHarvester/internal/domain"
)

// Adapter isolates one site's markup: how its listings paginate and how its articles extract.
type Adapter interface {
	Name() string
	// CollectLinks walks a listing and all its older pages. An empty listing is not an error.
	CollectLinks(ctx context.Context, listingURL string) ([]domain.ListingEntry, error)
	// Extract reads one article page. A missing title or date yields *domain.ExtractionError.
	Extract(ctx context.Context, articleURL string) (domain.ArticleDraft, error)
	// Trending returns the titles the site promotes on pageURL.
	Trending(ctx context.Context, pageURL string) (domain.TrendSnapshot, error)
}

// Factory builds an adapter for a configured site from its options.
type Factory func(options map[string]string) (Adapter, error)

// Registry keeps a mapping from adapter names to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[name] = factory
}

// Build resolves a factory by name and instantiates it.
func (r *Registry) Build(name string, options map[string]string) (Adapter, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("adapter %s is not registered", name)
	}
	return factory(options)
}
