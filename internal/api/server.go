package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"NewsHarvester/internal/ports"
	"NewsHarvester/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// PipelineRunner is the part of the pipeline the API can trigger and inspect.
type PipelineRunner interface {
	Launch(ctx context.Context, job usecase.Job) error
	Status() usecase.Status
}

// Deps wires the API to storage and the pipeline. Runner may be nil.
type Deps struct {
	Articles ports.ArticleQueries
	Store    ports.ArticleStore
	Runner   PipelineRunner
	Logger   *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{articles: deps.Articles, store: deps.Store, runner: deps.Runner, logger: logger}

	r := gin.New()
	r.Use(Recovery(logger), RequestLogger(logger))

	r.GET("/health", h.health)

	v1 := r.Group("/api/v1")
	news := v1.Group("/news")
	{
		news.GET("", h.listNews)
		news.GET("/search", h.searchNews)
		news.GET("/:id", h.getNews)
		news.POST("", h.createNews)
		news.PUT("/:id", h.updateNews)
		news.DELETE("/:id", h.deleteNews)
		news.POST("/:id/views", h.recordView)
	}

	pipeline := v1.Group("/pipeline")
	{
		pipeline.GET("/status", h.pipelineStatus)
		pipeline.POST("/run", h.runPipeline)
	}
	return r
}

// Server serves the router until its context ends.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// NewServer listens on addr.
func NewServer(addr string, router http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run blocks until ctx is cancelled or the listener fails, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
