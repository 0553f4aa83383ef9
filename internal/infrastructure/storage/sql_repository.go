package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

// Supported database/sql drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

const pgUniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		body_html TEXT NOT NULL DEFAULT '',
		body_text TEXT NOT NULL DEFAULT '',
		image_refs TEXT NOT NULL DEFAULT '',
		title_translated TEXT,
		body_translated TEXT,
		trend TEXT NOT NULL DEFAULT 'Normal',
		view_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (title, date)
	)`,
	`CREATE INDEX IF NOT EXISTS articles_category_idx ON articles (category)`,
	`CREATE INDEX IF NOT EXISTS articles_trend_idx ON articles (trend)`,
	`CREATE TABLE IF NOT EXISTS article_views (
		article_id TEXT NOT NULL REFERENCES articles (id),
		ip TEXT NOT NULL,
		user_agent TEXT NOT NULL,
		viewed_at TIMESTAMP NOT NULL,
		UNIQUE (article_id, ip, user_agent)
	)`,
}

var articleColumns = []string{
	"id", "category", "title", "author", "date", "tags", "source_url", "body_html", "body_text",
	"image_refs", "title_translated", "body_translated", "trend", "view_count", "created_at", "updated_at",
}

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// SQLRepository stores articles in Postgres or SQLite. Statements are built with squirrel.
type SQLRepository struct {
	db      *sql.DB
	driver  string
	builder sq.StatementBuilderType
	now     func() time.Time
}

var _ ports.ArticleRepository = (*SQLRepository)(nil)

// OpenSQL connects, verifies the connection and creates the schema.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer at a time; concurrent sqlite writers fail with SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	repo, err := NewSQLRepository(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLRepository wires an open sql.DB and ensures the schema exists.
func NewSQLRepository(ctx context.Context, db *sql.DB, driver string) (*SQLRepository, error) {
	var placeholder sq.PlaceholderFormat
	switch driver {
	case DriverPostgres:
		placeholder = sq.Dollar
	case DriverSQLite:
		placeholder = sq.Question
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	r := &SQLRepository{
		db:      db,
		driver:  driver,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:     time.Now,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return r, nil
}

// Close releases the connection pool.
func (r *SQLRepository) Close(context.Context) error {
	return r.db.Close()
}

// Exists reports whether (title, date) is already stored.
func (r *SQLRepository) Exists(ctx context.Context, title, date string) (bool, error) {
	query := r.builder.Select("1").From("articles").
		Where(sq.Eq{"title": title, "date": date}).
		Limit(1)

	var one int
	err := r.queryRow(ctx, r.db, query).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}

// Insert stores a new article; the (title, date) unique constraint arbitrates races.
func (r *SQLRepository) Insert(ctx context.Context, draft domain.ArticleDraft) (domain.Article, error) {
	article := newArticle(draft, r.now().UTC())

	query := r.builder.Insert("articles").Columns(articleColumns...).Values(
		article.ID, article.Category, article.Title, article.Author, article.Date, article.Tags,
		article.SourceURL, article.BodyHTML, article.BodyText, joinRefs(article.ImageRefs),
		article.TitleTranslated, article.BodyTranslated, article.Trend, article.ViewCount,
		article.CreatedAt, article.UpdatedAt,
	)
	if _, err := r.exec(ctx, r.db, query); err != nil {
		if isUniqueViolation(err) {
			return domain.Article{}, fmt.Errorf("insert %q (%s): %w", article.Title, article.Date, domain.ErrConstraint)
		}
		return domain.Article{}, fmt.Errorf("insert: %w", err)
	}
	return article, nil
}

// Reclassify moves articles titled title into category.
func (r *SQLRepository) Reclassify(ctx context.Context, title, category string) (bool, error) {
	query := r.builder.Update("articles").
		Set("category", category).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"title": title}).
		Where(sq.NotEq{"category": category})

	res, err := r.exec(ctx, r.db, query)
	if err != nil {
		return false, fmt.Errorf("reclassify: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reclassify rows: %w", err)
	}
	return n > 0, nil
}

// SetTrend marks titles with trend and resets articles that lost it. An empty list
// changes nothing, so a failed scrape cannot wipe the current trends.
func (r *SQLRepository) SetTrend(ctx context.Context, trend string, titles []string) (int, error) {
	if len(titles) == 0 {
		return 0, nil
	}
	now := r.now().UTC()

	var marked int
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		reset := r.builder.Update("articles").
			Set("trend", domain.TrendNormal).
			Set("updated_at", now).
			Where(sq.Eq{"trend": trend}).
			Where(sq.NotEq{"title": titles})
		if _, err := r.exec(ctx, tx, reset); err != nil {
			return fmt.Errorf("reset trend: %w", err)
		}

		mark := r.builder.Update("articles").
			Set("trend", trend).
			Set("updated_at", now).
			Where(sq.Eq{"title": titles}).
			Where(sq.NotEq{"trend": trend})
		res, err := r.exec(ctx, tx, mark)
		if err != nil {
			return fmt.Errorf("mark trend: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark trend rows: %w", err)
		}
		marked = int(n)
		return nil
	})
	return marked, err
}

// List returns one page of articles matching the filters.
func (r *SQLRepository) List(ctx context.Context, q ports.ListQuery) (ports.ListResult, error) {
	q = q.Normalise()

	where := sq.And{}
	if q.Category != "" {
		where = append(where, sq.Eq{"category": q.Category})
	}
	if q.Title != "" {
		where = append(where, r.contains("title", q.Title))
	}

	var total int
	count := r.builder.Select("COUNT(*)").From("articles").Where(where)
	if err := r.queryRow(ctx, r.db, count).Scan(&total); err != nil {
		return ports.ListResult{}, fmt.Errorf("count articles: %w", err)
	}

	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}
	page := r.builder.Select(articleColumns...).From("articles").Where(where).
		OrderBy(q.SortField+" "+direction, "id ASC").
		Limit(uint64(q.PageSize)).
		Offset(q.Offset())

	articles, err := r.queryArticles(ctx, page)
	if err != nil {
		return ports.ListResult{}, err
	}
	return ports.ListResult{Articles: articles, Total: total}, nil
}

// Get loads one article by id.
func (r *SQLRepository) Get(ctx context.Context, id string) (domain.Article, error) {
	return r.getWith(ctx, r.db, id)
}

// Search returns the newest article whose title or translated title contains the given text.
func (r *SQLRepository) Search(ctx context.Context, title, titleTranslated string) (domain.Article, error) {
	match := sq.Or{}
	if title != "" {
		match = append(match, r.contains("title", title))
	}
	if titleTranslated != "" {
		match = append(match, r.contains("title_translated", titleTranslated))
	}
	if len(match) == 0 {
		return domain.Article{}, domain.ErrNotFound
	}

	query := r.builder.Select(articleColumns...).From("articles").Where(match).
		OrderBy("created_at DESC", "id ASC").
		Limit(1)
	article, err := scanArticle(r.queryRow(ctx, r.db, query))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("search: %w", err)
	}
	return article, nil
}

// Update applies the non-nil fields of upd. Title and date are never touched.
func (r *SQLRepository) Update(ctx context.Context, id string, upd ports.ArticleUpdate) (domain.Article, error) {
	query := r.builder.Update("articles").Set("updated_at", r.now().UTC()).Where(sq.Eq{"id": id})
	if upd.Category != nil {
		query = query.Set("category", *upd.Category)
	}
	if upd.Author != nil {
		query = query.Set("author", *upd.Author)
	}
	if upd.Tags != nil {
		query = query.Set("tags", *upd.Tags)
	}
	if upd.BodyHTML != nil {
		query = query.Set("body_html", *upd.BodyHTML)
	}
	if upd.BodyText != nil {
		query = query.Set("body_text", *upd.BodyText)
	}
	if upd.ImageRefs != nil {
		query = query.Set("image_refs", joinRefs(upd.ImageRefs))
	}
	if upd.TitleTranslated != nil {
		query = query.Set("title_translated", *upd.TitleTranslated)
	}
	if upd.BodyTranslated != nil {
		query = query.Set("body_translated", *upd.BodyTranslated)
	}

	var article domain.Article
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := r.exec(ctx, tx, query)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("update rows: %w", err)
		} else if n == 0 {
			return domain.ErrNotFound
		}
		article, err = r.getWith(ctx, tx, id)
		return err
	})
	return article, err
}

// Delete removes an article and its view log.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.exec(ctx, tx, r.builder.Delete("article_views").Where(sq.Eq{"article_id": id})); err != nil {
			return fmt.Errorf("delete views: %w", err)
		}
		res, err := r.exec(ctx, tx, r.builder.Delete("articles").Where(sq.Eq{"id": id}))
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("delete rows: %w", err)
		} else if n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// RecordView logs (ip, userAgent) once per article and returns the view count.
func (r *SQLRepository) RecordView(ctx context.Context, id, ip, userAgent string) (int, error) {
	var count int
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		exists := r.builder.Select("view_count").From("articles").Where(sq.Eq{"id": id})
		if err := r.queryRow(ctx, tx, exists).Scan(&count); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("load view count: %w", err)
		}

		insert := r.builder.Insert("article_views").
			Columns("article_id", "ip", "user_agent", "viewed_at").
			Values(id, ip, userAgent, r.now().UTC()).
			Suffix("ON CONFLICT DO NOTHING")
		res, err := r.exec(ctx, tx, insert)
		if err != nil {
			return fmt.Errorf("insert view: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert view rows: %w", err)
		}
		if n == 0 {
			return nil
		}

		bump := r.builder.Update("articles").Set("view_count", sq.Expr("view_count + 1")).Where(sq.Eq{"id": id})
		if _, err := r.exec(ctx, tx, bump); err != nil {
			return fmt.Errorf("bump view count: %w", err)
		}
		count++
		return nil
	})
	return count, err
}

func (r *SQLRepository) getWith(ctx context.Context, run runner, id string) (domain.Article, error) {
	query := r.builder.Select(articleColumns...).From("articles").Where(sq.Eq{"id": id})
	article, err := scanArticle(r.queryRow(ctx, run, query))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("get %s: %w", id, err)
	}
	return article, nil
}

func (r *SQLRepository) contains(column, value string) sq.Sqlizer {
	pattern := "%" + value + "%"
	if r.driver == DriverPostgres {
		return sq.ILike{column: pattern}
	}
	return sq.Like{column: pattern}
}

func (r *SQLRepository) queryArticles(ctx context.Context, b sq.Sqlizer) ([]domain.Article, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	articles := []domain.Article{}
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return articles, nil
}

func (r *SQLRepository) queryRow(ctx context.Context, run runner, b sq.Sqlizer) rowScanner {
	query, args, err := b.ToSql()
	if err != nil {
		return errRow{fmt.Errorf("build query: %w", err)}
	}
	return run.QueryRowContext(ctx, query, args...)
}

func (r *SQLRepository) exec(ctx context.Context, run runner, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return run.ExecContext(ctx, query, args...)
}

func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type errRow struct{ err error }

func (e errRow) Scan(...any) error { return e.err }

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		a                     domain.Article
		refs                  string
		titleTrans, bodyTrans sql.NullString
	)
	err := row.Scan(&a.ID, &a.Category, &a.Title, &a.Author, &a.Date, &a.Tags, &a.SourceURL,
		&a.BodyHTML, &a.BodyText, &refs, &titleTrans, &bodyTrans, &a.Trend, &a.ViewCount,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Article{}, err
	}
	a.ImageRefs = splitRefs(refs)
	if titleTrans.Valid {
		a.TitleTranslated = &titleTrans.String
	}
	if bodyTrans.Valid {
		a.BodyTranslated = &bodyTrans.String
	}
	return a, nil
}

func newArticle(draft domain.ArticleDraft, now time.Time) domain.Article {
	id := draft.ID
	if id == "" {
		id = uuid.NewString()
	}
	refs := draft.ImageRefs
	if refs == nil {
		refs = []string{}
	}
	return domain.Article{
		ID:              id,
		Category:        draft.Category,
		Title:           draft.Title,
		Author:          draft.Author,
		Date:            draft.Date,
		Tags:            draft.Tags,
		SourceURL:       draft.SourceURL,
		BodyHTML:        draft.BodyHTML,
		BodyText:        draft.BodyText,
		ImageRefs:       refs,
		TitleTranslated: draft.TitleTranslated,
		BodyTranslated:  draft.BodyTranslated,
		Trend:           domain.TrendNormal,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
