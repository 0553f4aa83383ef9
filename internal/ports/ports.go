package ports

import (
	"context"
	"strings"
	"time"

	"NewsHarvester/internal/domain"
)

// PageFetcher loads raw or rendered HTML for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
	// FetchWhenReady returns the page only once readySelector matches an element.
	FetchWhenReady(ctx context.Context, pageURL, readySelector string) ([]byte, error)
}

// ArticleSource collects candidates from configured listings and extracts articles.
type ArticleSource interface {
	// Collect walks every listing flagged for pass; unreachable listings are skipped.
	Collect(ctx context.Context, pass domain.ListingPass) ([]domain.Candidate, error)
	Extract(ctx context.Context, c domain.Candidate) (domain.ArticleDraft, error)
	Trends(ctx context.Context) (domain.TrendSnapshot, error)
}

// ImageStore persists transcoded image bytes under a bare identifier.
type ImageStore interface {
	Save(ctx context.Context, name string, data []byte, contentType string) error
	Delete(ctx context.Context, name string) error
}

// ImageArchiver downloads and stores article images; failures are dropped, not returned.
type ImageArchiver interface {
	// ArchiveAll returns the ids of the images that archived, in submission order.
	ArchiveAll(ctx context.Context, imageURLs []string) []string
	// Discard removes previously archived images.
	Discard(ctx context.Context, ids []string)
}

// ChunkTranslator translates a single length-bounded chunk remotely.
type ChunkTranslator interface {
	TranslateChunk(ctx context.Context, chunk, targetLang string) (string, error)
}

// TextTranslator translates whole texts of any length.
type TextTranslator interface {
	// Translate fails with *domain.TranslationError when any chunk fails.
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// ArticleStore is the dedup and persistence surface used by the pipeline.
type ArticleStore interface {
	Exists(ctx context.Context, title, date string) (bool, error)
	// Insert fails with domain.ErrConstraint when (title, date) is already stored.
	Insert(ctx context.Context, draft domain.ArticleDraft) (domain.Article, error)
	// Reclassify reports whether a stored article changed category.
	Reclassify(ctx context.Context, title, category string) (bool, error)
	// SetTrend marks titles with trend and resets other articles holding it to Normal.
	SetTrend(ctx context.Context, trend string, titles []string) (int, error)
}

// ListQuery describes a paginated, filtered listing request.
type ListQuery struct {
	Page      int
	PageSize  int
	SortField string
	SortDesc  bool
	Category  string
	Title     string
}

// Paging defaults and the sortable fields every store understands.
const (
	DefaultPageSize  = 10
	MaxPageSize      = 100
	DefaultSortField = "created_at"
)

var sortFields = map[string]struct{}{
	"created_at": {},
	"date":       {},
	"title":      {},
	"view_count": {},
}

// Normalise clamps paging and replaces an unknown sort field with newest first.
func (q ListQuery) Normalise() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.SortField = strings.ToLower(strings.TrimSpace(q.SortField))
	if _, ok := sortFields[q.SortField]; !ok {
		q.SortField = DefaultSortField
		q.SortDesc = true
	}
	q.Category = strings.TrimSpace(q.Category)
	q.Title = strings.TrimSpace(q.Title)
	return q
}

// Offset is the number of rows before the requested page.
func (q ListQuery) Offset() uint64 {
	return uint64((q.Page - 1) * q.PageSize)
}

// ListResult is one page of articles plus the total match count.
type ListResult struct {
	Articles []domain.Article
	Total    int
}

// ArticleUpdate carries mutable fields; nil means unchanged. Title and date are immutable.
type ArticleUpdate struct {
	Category        *string
	Author          *string
	Tags            *string
	BodyHTML        *string
	BodyText        *string
	ImageRefs       []string
	TitleTranslated *string
	BodyTranslated  *string
}

// ArticleQueries backs the query API.
type ArticleQueries interface {
	List(ctx context.Context, q ListQuery) (ListResult, error)
	Get(ctx context.Context, id string) (domain.Article, error)
	Search(ctx context.Context, title, titleTranslated string) (domain.Article, error)
	Update(ctx context.Context, id string, upd ArticleUpdate) (domain.Article, error)
	Delete(ctx context.Context, id string) error
	// RecordView returns the resulting view count; repeated (ip, userAgent) pairs do not count.
	RecordView(ctx context.Context, id, ip, userAgent string) (int, error)
}

// ArticleRepository is implemented by every storage backend.
type ArticleRepository interface {
	ArticleStore
	ArticleQueries
	Close(ctx context.Context) error
}

// RunGuard prevents overlapping pipeline runs; a refused acquire is dropped, not queued.
type RunGuard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// Notifier streams run digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// EventPublisher announces newly persisted articles.
type EventPublisher interface {
	PublishCreated(ctx context.Context, article domain.Article) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
