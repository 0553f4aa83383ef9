package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/infrastructure/storage"
	"NewsHarvester/internal/logging"
	"NewsHarvester/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	mu   sync.Mutex
	jobs []usecase.Job
	busy bool
}

func (r *fakeRunner) Launch(_ context.Context, job usecase.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return domain.ErrPipelineBusy
	}
	r.jobs = append(r.jobs, job)
	r.busy = true
	return nil
}

func (r *fakeRunner) Status() usecase.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return usecase.Status{Running: r.jobs[len(r.jobs)-1]}
	}
	return usecase.Status{}
}

type testAPI struct {
	router *gin.Engine
	repo   *storage.SQLRepository
	runner *fakeRunner
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	repo, err := storage.OpenSQL(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	runner := &fakeRunner{}
	router := NewRouter(Deps{Articles: repo, Store: repo, Runner: runner, Logger: logging.Discard()})
	return &testAPI{router: router, repo: repo, runner: runner}
}

func (a *testAPI) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) create(t *testing.T, title, date, category string) domain.Article {
	t.Helper()
	body := `{"title":"` + title + `","date":"` + date + `","category":"` + category + `","bodyText":"text"}`
	rec := a.do(http.MethodPost, "/api/v1/news", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var article domain.Article
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &article))
	return article
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateGetAndConflict(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, "Supply chain attack", "Oct 15, 2026", domain.CategoryCyberAttack)
	assert.Equal(t, domain.TrendNormal, created.Trend)
	assert.Equal(t, []string{}, created.ImageRefs)

	rec := api.do(http.MethodGet, "/api/v1/news/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[domain.Article](t, rec)
	assert.Equal(t, "Supply chain attack", got.Title)

	rec = api.do(http.MethodPost, "/api/v1/news", `{"title":"Supply chain attack","date":"Oct 15, 2026","category":"Home"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/news", `{"title":"no date"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/news/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNews(t *testing.T) {
	api := newTestAPI(t)
	for _, title := range []string{"alpha", "beta", "gamma"} {
		api.create(t, title, "Oct 15, 2026", domain.CategoryHome)
	}
	api.create(t, "delta", "Oct 15, 2026", domain.CategoryVulnerability)

	rec := api.do(http.MethodGet, "/api/v1/news?pageSize=2&page=2&sort=title&order=asc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[listResponse](t, rec)
	assert.Equal(t, pagination{CurrentPage: 2, PageSize: 2, TotalPages: 2, TotalItems: 4}, body.Pagination)
	require.Len(t, body.News, 2)
	assert.Equal(t, "delta", body.News[0].Title)
	assert.Equal(t, "gamma", body.News[1].Title)

	rec = api.do(http.MethodGet, "/api/v1/news?category=Vulnerability", "")
	body = decode[listResponse](t, rec)
	assert.Equal(t, 1, body.Pagination.TotalItems)

	rec = api.do(http.MethodGet, "/api/v1/news?title=ALP", "")
	body = decode[listResponse](t, rec)
	require.Len(t, body.News, 1)
	assert.Equal(t, "alpha", body.News[0].Title)

	rec = api.do(http.MethodGet, "/api/v1/news?category=Nothing", "")
	assert.JSONEq(t, `{"news":[],"pagination":{"currentPage":1,"pageSize":10,"totalPages":0,"totalItems":0}}`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/news?page=two", "").Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/news?order=sideways", "").Code)
}

func TestSearchNews(t *testing.T) {
	api := newTestAPI(t)
	api.create(t, "Phishing kit sold online", "Oct 15, 2026", domain.CategoryHome)

	rec := api.do(http.MethodGet, "/api/v1/news/search?title=phishing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Phishing kit sold online", decode[domain.Article](t, rec).Title)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/v1/news/search?title=nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/v1/news/search", "").Code)
}

func TestUpdateNews(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, "Original", "Oct 15, 2026", domain.CategoryHome)

	rec := api.do(http.MethodPut, "/api/v1/news/"+created.ID, `{"category":"Data Breach","imageRefs":["x"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.Article](t, rec)
	assert.Equal(t, domain.CategoryDataBreach, updated.Category)
	assert.Equal(t, []string{"x"}, updated.ImageRefs)
	assert.Equal(t, "Original", updated.Title)

	rec = api.do(http.MethodPut, "/api/v1/news/"+created.ID, `{"title":"Renamed"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPut, "/api/v1/news/missing", `{"author":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteNews(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, "Temporary", "Oct 15, 2026", domain.CategoryHome)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/api/v1/news/"+created.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, "/api/v1/news/"+created.ID, "").Code)
}

func TestRecordView(t *testing.T) {
	api := newTestAPI(t)
	created := api.create(t, "Popular read", "Oct 15, 2026", domain.CategoryHome)
	path := "/api/v1/news/" + created.ID + "/views"

	rec := api.do(http.MethodPost, path, "", "User-Agent", "curl/8")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"viewCount":1}`, rec.Body.String())

	rec = api.do(http.MethodPost, path, "", "User-Agent", "curl/8")
	assert.JSONEq(t, `{"viewCount":1}`, rec.Body.String())

	rec = api.do(http.MethodPost, path, "", "User-Agent", "Firefox")
	assert.JSONEq(t, `{"viewCount":2}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/api/v1/news/missing/views", "").Code)
}

func TestPipelineEndpoints(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/pipeline/run?mode=backfill", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"job":"backfill","status":"accepted"}`, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/v1/pipeline/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/pipeline/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usecase.JobBackfill, decode[usecase.Status](t, rec).Running)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/v1/pipeline/run?mode=nightly", "").Code)
	assert.Equal(t, []usecase.Job{usecase.JobBackfill}, api.runner.jobs)
}

func TestPipelineEndpointsWithoutRunner(t *testing.T) {
	router := NewRouter(Deps{Logger: logging.Discard()})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pipeline/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
