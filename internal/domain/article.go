package domain

import "time"

// Category values assigned by listing sources; free-form beyond these.
const (
	CategoryHome          = "Home"
	CategoryDataBreach    = "Data Breach"
	CategoryCyberAttack   = "CyberAttack"
	CategoryVulnerability = "Vulnerability"
)

// Trend values maintained by the trend pass.
const (
	TrendNormal   = "Normal"
	TrendTrending = "Trending News"
	TrendPopular  = "Popular"
)

// Article is the persisted news record. (Title, Date) is its natural key.
type Article struct {
	ID              string    `json:"id" bson:"_id"`
	Category        string    `json:"category" bson:"category"`
	Title           string    `json:"title" bson:"title"`
	Author          string    `json:"author" bson:"author"`
	Date            string    `json:"date" bson:"date"`
	Tags            string    `json:"tags" bson:"tags"`
	SourceURL       string    `json:"sourceUrl" bson:"source_url"`
	BodyHTML        string    `json:"bodyHtml" bson:"body_html"`
	BodyText        string    `json:"bodyText" bson:"body_text"`
	ImageRefs       []string  `json:"imageRefs" bson:"image_refs"`
	TitleTranslated *string   `json:"titleTranslated" bson:"title_translated,omitempty"`
	BodyTranslated  *string   `json:"bodyTranslated" bson:"body_translated,omitempty"`
	Trend           string    `json:"trend" bson:"trend"`
	ViewCount       int       `json:"viewCount" bson:"view_count"`
	CreatedAt       time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" bson:"updated_at"`
}

// ArticleDraft is what an extractor produces before dedup and persistence.
type ArticleDraft struct {
	ID              string
	Category        string
	Title           string
	Author          string
	Date            string
	Tags            string
	SourceURL       string
	BodyHTML        string
	BodyText        string
	ImageURLs       []string
	ImageRefs       []string
	TitleTranslated *string
	BodyTranslated  *string
}

// Translated reports whether both translated fields are present.
func (d ArticleDraft) Translated() bool {
	return d.TitleTranslated != nil && d.BodyTranslated != nil
}

// ListingEntry is a single article link found on a listing page.
type ListingEntry struct {
	URL   string
	Title string
	// DateText is the displayed listing date, e.g. "Oct 15, 2026".
	DateText string
	// PublishedOn is DateText parsed to a calendar day; zero when unparsable.
	PublishedOn time.Time
}

// Candidate ties a listing entry to the site and category it was found under.
type Candidate struct {
	Site     string
	Category string
	Entry    ListingEntry
}

// TrendSnapshot holds the titles a site currently promotes.
type TrendSnapshot struct {
	Trending []string
	Popular  []string
}

// View is a de-duplicated page view.
type View struct {
	IP        string    `json:"ip" bson:"ip"`
	UserAgent string    `json:"userAgent" bson:"user_agent"`
	ViewedAt  time.Time `json:"viewedAt" bson:"viewed_at"`
}

// ArticleState enumerates an article's progress through one pipeline run.
type ArticleState string

const (
	StateNotSeen    ArticleState = "not_seen"
	StateExtracted  ArticleState = "extracted"
	StateDuplicate  ArticleState = "duplicate"
	StateNew        ArticleState = "new"
	StateTranslated ArticleState = "translated"
	StatePersisted  ArticleState = "persisted"
	StateFailed     ArticleState = "failed"
)

// RunMode selects which listing categories a run walks and how it gates entries.
type RunMode string

const (
	// ModeToday walks incremental categories and keeps only entries dated today.
	ModeToday RunMode = "today"
	// ModeBackfill walks backfill categories across all pages.
	ModeBackfill RunMode = "backfill"
)

// ListingPass names the configured category flag a walk honours.
type ListingPass string

const (
	PassIncremental ListingPass = "incremental"
	PassBackfill    ListingPass = "backfill"
	PassReclassify  ListingPass = "reclassify"
)

// RunSummary is the per-run result handed back to the caller.
type RunSummary struct {
	Mode       RunMode      `json:"mode"`
	Created    int          `json:"created"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Articles   []Article    `json:"-"`
	Failures   []RunFailure `json:"failures,omitempty"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

// RunFailure records why a single candidate did not persist.
type RunFailure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}
