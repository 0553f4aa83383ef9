package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
	"NewsHarvester/internal/usecase"
)

type handler struct {
	articles ports.ArticleQueries
	store    ports.ArticleStore
	runner   PipelineRunner
	logger   *slog.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

type pagination struct {
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
	TotalPages  int `json:"totalPages"`
	TotalItems  int `json:"totalItems"`
}

type listResponse struct {
	News       []domain.Article `json:"news"`
	Pagination pagination       `json:"pagination"`
}

type createRequest struct {
	Category        string   `json:"category" binding:"required"`
	Title           string   `json:"title" binding:"required"`
	Date            string   `json:"date" binding:"required"`
	Author          string   `json:"author"`
	Tags            string   `json:"tags"`
	SourceURL       string   `json:"sourceUrl"`
	BodyHTML        string   `json:"bodyHtml"`
	BodyText        string   `json:"bodyText"`
	ImageRefs       []string `json:"imageRefs"`
	TitleTranslated *string  `json:"titleTranslated"`
	BodyTranslated  *string  `json:"bodyTranslated"`
}

// updateRequest uses pointers so absent fields stay untouched.
type updateRequest struct {
	Title           *string   `json:"title"`
	Date            *string   `json:"date"`
	Category        *string   `json:"category"`
	Author          *string   `json:"author"`
	Tags            *string   `json:"tags"`
	BodyHTML        *string   `json:"bodyHtml"`
	BodyText        *string   `json:"bodyText"`
	ImageRefs       *[]string `json:"imageRefs"`
	TitleTranslated *string   `json:"titleTranslated"`
	BodyTranslated  *string   `json:"bodyTranslated"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) listNews(c *gin.Context) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	pageSize, err := intQuery(c, "pageSize", ports.DefaultPageSize)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	order := strings.ToLower(c.DefaultQuery("order", "desc"))
	if order != "asc" && order != "desc" {
		h.badRequest(c, "order must be asc or desc")
		return
	}

	q := ports.ListQuery{
		Page:      page,
		PageSize:  pageSize,
		SortField: c.DefaultQuery("sort", ports.DefaultSortField),
		SortDesc:  order == "desc",
		Category:  c.Query("category"),
		Title:     c.Query("title"),
	}.Normalise()

	res, err := h.articles.List(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{
		News: res.Articles,
		Pagination: pagination{
			CurrentPage: q.Page,
			PageSize:    q.PageSize,
			TotalPages:  (res.Total + q.PageSize - 1) / q.PageSize,
			TotalItems:  res.Total,
		},
	})
}

func (h *handler) searchNews(c *gin.Context) {
	title := strings.TrimSpace(c.Query("title"))
	translated := strings.TrimSpace(c.Query("titleTranslated"))
	if title == "" && translated == "" {
		h.badRequest(c, "title or titleTranslated is required")
		return
	}
	article, err := h.articles.Search(c.Request.Context(), title, translated)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (h *handler) getNews(c *gin.Context) {
	article, err := h.articles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (h *handler) createNews(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid input: "+err.Error())
		return
	}

	article, err := h.store.Insert(c.Request.Context(), domain.ArticleDraft{
		Category:        req.Category,
		Title:           strings.TrimSpace(req.Title),
		Date:            strings.TrimSpace(req.Date),
		Author:          req.Author,
		Tags:            req.Tags,
		SourceURL:       req.SourceURL,
		BodyHTML:        req.BodyHTML,
		BodyText:        req.BodyText,
		ImageRefs:       req.ImageRefs,
		TitleTranslated: req.TitleTranslated,
		BodyTranslated:  req.BodyTranslated,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, article)
}

func (h *handler) updateNews(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid input: "+err.Error())
		return
	}
	if req.Title != nil || req.Date != nil {
		h.badRequest(c, "title and date cannot be changed")
		return
	}

	upd := ports.ArticleUpdate{
		Category:        req.Category,
		Author:          req.Author,
		Tags:            req.Tags,
		BodyHTML:        req.BodyHTML,
		BodyText:        req.BodyText,
		TitleTranslated: req.TitleTranslated,
		BodyTranslated:  req.BodyTranslated,
	}
	if req.ImageRefs != nil {
		upd.ImageRefs = append([]string{}, *req.ImageRefs...)
	}

	article, err := h.articles.Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (h *handler) deleteNews(c *gin.Context) {
	if err := h.articles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) recordView(c *gin.Context) {
	count, err := h.articles.RecordView(c.Request.Context(), c.Param("id"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"viewCount": count})
}

func (h *handler) pipelineStatus(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "pipeline is not configured"})
		return
	}
	c.JSON(http.StatusOK, h.runner.Status())
}

func (h *handler) runPipeline(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "pipeline is not configured"})
		return
	}
	job, err := usecase.ParseJob(c.DefaultQuery("mode", string(usecase.JobToday)))
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if err := h.runner.Launch(c.Request.Context(), job); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job, "status": "accepted"})
}

func (h *handler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: msg})
}

// fail maps domain errors to status codes; anything unexpected is a 500 without details.
func (h *handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: domain.ErrNotFound.Error()})
	case errors.Is(err, domain.ErrConstraint):
		c.JSON(http.StatusConflict, errorBody{Error: domain.ErrConstraint.Error()})
	case errors.Is(err, domain.ErrPipelineBusy):
		c.JSON(http.StatusConflict, errorBody{Error: domain.ErrPipelineBusy.Error()})
	default:
		h.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}
