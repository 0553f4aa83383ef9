package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"NewsHarvester/internal/api"
	"NewsHarvester/internal/config"
	"NewsHarvester/internal/infrastructure/events"
	"NewsHarvester/internal/infrastructure/fetcher"
	"NewsHarvester/internal/infrastructure/images"
	"NewsHarvester/internal/infrastructure/lock"
	"NewsHarvester/internal/infrastructure/parser"
	"NewsHarvester/internal/infrastructure/scheduler"
	"NewsHarvester/internal/infrastructure/storage"
	"NewsHarvester/internal/infrastructure/telegram"
	"NewsHarvester/internal/infrastructure/translate"
	"NewsHarvester/internal/logging"
	"NewsHarvester/internal/ports"
	"NewsHarvester/internal/scanner"
	"NewsHarvester/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	repo      ports.ArticleRepository
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	server    *api.Server
	closers   []func(context.Context) error
}

// New builds every adapter named by cfg. On error, anything already opened is closed.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (_ *Application, err error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	pageFetcher := a.buildFetcher()

	registry := scanner.NewRegistry()
	registry.Register(parser.HackerNewsAdapterName, parser.HackerNewsFactory(pageFetcher, baseLogger.With("component", "scanner.thehackernews")))
	registry.Register(parser.GenericAdapterName, parser.GenericFactory(pageFetcher, baseLogger.With("component", "scanner.generic")))

	source, err := parser.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))
	if err != nil {
		return nil, err
	}

	repo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)

	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}

	translator, err := a.buildTranslator(ctx)
	if err != nil {
		return nil, err
	}

	guard, err := a.buildGuard(ctx)
	if err != nil {
		return nil, err
	}

	deps := usecase.PipelineDeps{
		Source:         source,
		Store:          repo,
		Images:         archiver,
		Guard:          guard,
		Logger:         baseLogger.With("component", "pipeline"),
		Workers:        cfg.Pipeline.Workers,
		TargetLanguage: cfg.Pipeline.TargetLanguage,
		Location:       cfg.Scheduler.Location(),
	}
	if translator != nil {
		deps.Translator = translator
	}
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		deps.Notifier = telegram.NewNotifier(tg, "", nil)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return publisher.Close() })
		deps.Events = publisher
	}

	a.pipeline, err = usecase.NewPipeline(deps)
	if err != nil {
		return nil, err
	}

	if !cfg.Scheduler.Disabled {
		jobs, err := parseJobs(cfg.Scheduler.Jobs)
		if err != nil {
			return nil, err
		}
		driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger.With("component", "cron"))
		a.scheduler = usecase.NewScheduler(driver, a.pipeline, jobs, baseLogger.With("component", "scheduler"))
	}

	if cfg.HTTP.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Articles: repo,
		Store:    repo,
		Runner:   a.pipeline,
		Logger:   baseLogger.With("component", "api"),
	})
	a.server = api.NewServer(cfg.HTTP.Addr, router, baseLogger.With("component", "http"))
	return a, nil
}

// Handler exposes the HTTP router, mainly for tests.
func (a *Application) Handler() http.Handler {
	return a.server.Handler()
}

// Serve runs the scheduler and the HTTP API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.scheduler != nil {
		if err := a.scheduler.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return a.scheduler.Stop(context.WithoutCancel(gctx))
		})
	}
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	return g.Wait()
}

// RunOnce executes a single job synchronously and returns.
func (a *Application) RunOnce(ctx context.Context, job usecase.Job) error {
	return a.pipeline.Execute(ctx, job)
}

// Status reports the pipeline state.
func (a *Application) Status() usecase.Status {
	return a.pipeline.Status()
}

// Close releases storage, brokers and browser sessions in reverse order of creation.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) buildFetcher() ports.PageFetcher {
	opts := fetcher.Options{
		UserAgent:   a.cfg.Fetcher.UserAgent,
		Timeout:     a.cfg.Fetcher.Timeout,
		MaxSessions: a.cfg.Fetcher.MaxSessions,
		Headful:     a.cfg.Fetcher.Headful,
	}
	if a.cfg.Fetcher.Engine == "chrome" {
		f := fetcher.NewChromeFetcher(opts)
		a.closers = append(a.closers, func(context.Context) error { f.Close(); return nil })
		return f
	}
	return fetcher.NewHTTPFetcher(opts)
}

func (a *Application) buildArchiver(ctx context.Context) (*images.Archiver, error) {
	var store ports.ImageStore
	switch a.cfg.Images.Backend {
	case "s3":
		s3cfg := a.cfg.Images.S3
		s, err := images.NewS3Store(ctx, images.S3Options{
			Bucket:       s3cfg.Bucket,
			Prefix:       s3cfg.Prefix,
			Region:       s3cfg.Region,
			Profile:      s3cfg.Profile,
			UsePathStyle: s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		s, err := images.NewFileStore(a.cfg.Images.Directory)
		if err != nil {
			return nil, err
		}
		store = s
	}
	return images.NewArchiver(store, images.ArchiverOptions{
		UserAgent: a.cfg.Fetcher.UserAgent,
		Timeout:   a.cfg.Pipeline.ImageTimeout,
		MaxBytes:  a.cfg.Pipeline.MaxImageBytes,
		MaxWidth:  a.cfg.Pipeline.MaxImageWidth,
	}, a.logger.With("component", "images")), nil
}

func (a *Application) buildGuard(ctx context.Context) (ports.RunGuard, error) {
	if a.cfg.Redis.Addr == "" {
		return &usecase.LocalGuard{}, nil
	}
	client, err := lock.NewRedisClient(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	return lock.NewRedisGuard(client, a.cfg.Redis.LockKey, a.cfg.Redis.LockTTL, a.logger.With("component", "lock")), nil
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig) (ports.ArticleRepository, error) {
	if cfg.Driver == "mongo" {
		return storage.OpenMongo(ctx, cfg.DSN, cfg.Database)
	}
	return storage.OpenSQL(ctx, cfg.Driver, cfg.DSN)
}

// buildTranslator returns nil when no usable provider is configured; articles are then stored untranslated.
func (a *Application) buildTranslator(ctx context.Context) (*translate.Translator, error) {
	cfg := a.cfg
	var backend ports.ChunkTranslator
	switch cfg.Translator.Provider {
	case "":
		return nil, nil
	case "google":
		if cfg.Translator.APIKey == "" {
			a.logger.Warn("google translator has no api key, translation disabled")
			return nil, nil
		}
		client, err := translate.NewGoogleClient(ctx, cfg.Translator)
		if err != nil {
			return nil, err
		}
		backend = client
	case "chatgpt":
		backend = translate.NewChatGPTClient(cfg.Translator, nil)
	case "libretranslate":
		backend = translate.NewLibreClient(cfg.Translator, nil)
	default:
		return nil, fmt.Errorf("unsupported translator provider %q", cfg.Translator.Provider)
	}
	return translate.New(backend, translate.Options{
		ChunkSize: cfg.Pipeline.ChunkSize,
		Timeout:   cfg.Pipeline.TranslateTimeout,
	}), nil
}

func parseJobs(names []string) ([]usecase.Job, error) {
	jobs := make([]usecase.Job, 0, len(names))
	for _, name := range names {
		job, err := usecase.ParseJob(name)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
