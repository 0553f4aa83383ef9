package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"NewsHarvester/internal/domain"
)

type fakeSource struct {
	mu         sync.Mutex
	candidates map[domain.ListingPass][]domain.Candidate
	drafts     map[string]domain.ArticleDraft
	failures   map[string]error
	trends     domain.TrendSnapshot
	collectErr error
	// gate blocks Collect until closed when set.
	gate     chan struct{}
	extracts int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		candidates: map[domain.ListingPass][]domain.Candidate{},
		drafts:     map[string]domain.ArticleDraft{},
		failures:   map[string]error{},
	}
}

func (s *fakeSource) add(pass domain.ListingPass, category, url string, draft domain.ArticleDraft) {
	s.candidates[pass] = append(s.candidates[pass], domain.Candidate{
		Site:     "test",
		Category: category,
		Entry:    domain.ListingEntry{URL: url, Title: draft.Title, PublishedOn: today},
	})
	s.drafts[url] = draft
}

func (s *fakeSource) Collect(ctx context.Context, pass domain.ListingPass) ([]domain.Candidate, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.collectErr != nil {
		return nil, s.collectErr
	}
	return s.candidates[pass], nil
}

func (s *fakeSource) Extract(_ context.Context, c domain.Candidate) (domain.ArticleDraft, error) {
	s.mu.Lock()
	s.extracts++
	s.mu.Unlock()
	if err, ok := s.failures[c.Entry.URL]; ok {
		return domain.ArticleDraft{}, err
	}
	draft, ok := s.drafts[c.Entry.URL]
	if !ok {
		return domain.ArticleDraft{}, &domain.FetchError{URL: c.Entry.URL, Err: errors.New("404")}
	}
	draft.Category = c.Category
	draft.SourceURL = c.Entry.URL
	return draft, nil
}

func (s *fakeSource) Trends(context.Context) (domain.TrendSnapshot, error) {
	return s.trends, nil
}

type memStore struct {
	mu       sync.Mutex
	articles map[string]domain.Article
	inserts  int
	// existsLag makes Exists pause, widening the check-then-insert window.
	existsLag time.Duration
}

func newMemStore() *memStore {
	return &memStore{articles: map[string]domain.Article{}}
}

func storeKey(title, date string) string { return title + "|" + date }

func (m *memStore) Exists(_ context.Context, title, date string) (bool, error) {
	if m.existsLag > 0 {
		time.Sleep(m.existsLag)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.articles[storeKey(title, date)]
	return ok, nil
}

func (m *memStore) Insert(_ context.Context, d domain.ArticleDraft) (domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	key := storeKey(d.Title, d.Date)
	if _, ok := m.articles[key]; ok {
		return domain.Article{}, domain.ErrConstraint
	}
	a := domain.Article{
		ID:              uuid.NewString(),
		Category:        d.Category,
		Title:           d.Title,
		Date:            d.Date,
		SourceURL:       d.SourceURL,
		BodyText:        d.BodyText,
		ImageRefs:       d.ImageRefs,
		TitleTranslated: d.TitleTranslated,
		BodyTranslated:  d.BodyTranslated,
		Trend:           domain.TrendNormal,
	}
	m.articles[key] = a
	return a, nil
}

func (m *memStore) Reclassify(_ context.Context, title, category string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for k, a := range m.articles {
		if a.Title == title && a.Category != category {
			a.Category = category
			m.articles[k] = a
			changed = true
		}
	}
	return changed, nil
}

func (m *memStore) SetTrend(_ context.Context, trend string, titles []string) (int, error) {
	if len(titles) == 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, t := range titles {
		want[t] = true
	}
	marked := 0
	for k, a := range m.articles {
		switch {
		case want[a.Title] && a.Trend != trend:
			a.Trend = trend
			marked++
		case !want[a.Title] && a.Trend == trend:
			a.Trend = domain.TrendNormal
		}
		m.articles[k] = a
	}
	return marked, nil
}

func (m *memStore) byTitle(title string) []domain.Article {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Article
	for _, a := range m.articles {
		if a.Title == title {
			out = append(out, a)
		}
	}
	return out
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.articles)
}

type fakeArchiver struct {
	mu        sync.Mutex
	archived  []string
	discarded []string
}

func (a *fakeArchiver) ArchiveAll(_ context.Context, urls []string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ids []string
	for _, u := range urls {
		if strings.Contains(u, "broken") {
			continue
		}
		id := "img-" + uuid.NewString()
		a.archived = append(a.archived, id)
		ids = append(ids, id)
	}
	return ids
}

func (a *fakeArchiver) Discard(_ context.Context, ids []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.discarded = append(a.discarded, ids...)
}

type fakeTranslator struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (t *fakeTranslator) Translate(_ context.Context, text, lang string) (string, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.failOn != "" && strings.Contains(text, t.failOn) {
		return "", &domain.TranslationError{Chunk: 0, Err: errors.New("quota")}
	}
	return lang + ":" + text, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	digests []string
	err     error
}

func (n *fakeNotifier) PublishDigest(_ context.Context, digest string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.digests = append(n.digests, digest)
	return n.err
}

type fakeEvents struct {
	mu  sync.Mutex
	ids []string
}

func (e *fakeEvents) PublishCreated(_ context.Context, a domain.Article) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, a.ID)
	return nil
}

type fakeDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *fakeDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *fakeDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}
