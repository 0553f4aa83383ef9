package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsHarvester/internal/domain"
	"NewsHarvester/internal/ports"
)

const defaultWorkers = 4

// Job names a pass the pipeline can execute under the run guard.
type Job string

const (
	JobToday      Job = "today"
	JobBackfill   Job = "backfill"
	JobReclassify Job = "reclassify"
	JobTrends     Job = "trends"
)

// ParseJob validates a job name coming from flags, config or the API.
func ParseJob(name string) (Job, error) {
	switch job := Job(strings.ToLower(strings.TrimSpace(name))); job {
	case JobToday, JobBackfill, JobReclassify, JobTrends:
		return job, nil
	default:
		return "", fmt.Errorf("unknown job %q", name)
	}
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
// Images, Translator, Notifier and Events are optional.
type PipelineDeps struct {
	Source     ports.ArticleSource
	Store      ports.ArticleStore
	Images     ports.ImageArchiver
	Translator ports.TextTranslator
	Notifier   ports.Notifier
	Events     ports.EventPublisher
	Guard      ports.RunGuard
	Logger     *slog.Logger

	Workers        int
	TargetLanguage string
	// Location decides what "today" means for incremental runs.
	Location *time.Location
	Clock    func() time.Time
}

// Status describes the active and the last finished job.
type Status struct {
	Running        Job                `json:"running,omitempty"`
	StartedAt      *time.Time         `json:"startedAt,omitempty"`
	LastJob        Job                `json:"lastJob,omitempty"`
	LastFinishedAt *time.Time         `json:"lastFinishedAt,omitempty"`
	LastError      string             `json:"lastError,omitempty"`
	LastRun        *domain.RunSummary `json:"lastRun,omitempty"`
}

// Pipeline implements the scrape, dedupe, translate and persist workflow.
type Pipeline struct {
	source     ports.ArticleSource
	store      ports.ArticleStore
	images     ports.ImageArchiver
	translator ports.TextTranslator
	notifier   ports.Notifier
	events     ports.EventPublisher
	guard      ports.RunGuard
	logger     *slog.Logger

	workers  int
	lang     string
	loc      *time.Location
	now      func() time.Time
	keys     *keyLock
	statusMu sync.Mutex
	status   Status
}

// outcome is the terminal state of one candidate within a run.
type outcome struct {
	state   domain.ArticleState
	article domain.Article
	err     error
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Source == nil || deps.Store == nil {
		return nil, fmt.Errorf("pipeline needs a source and a store")
	}
	p := &Pipeline{
		source:     deps.Source,
		store:      deps.Store,
		images:     deps.Images,
		translator: deps.Translator,
		notifier:   deps.Notifier,
		events:     deps.Events,
		guard:      deps.Guard,
		logger:     deps.Logger,
		workers:    deps.Workers,
		lang:       deps.TargetLanguage,
		loc:        deps.Location,
		now:        deps.Clock,
		keys:       newKeyLock(),
	}
	if p.guard == nil {
		p.guard = &LocalGuard{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.workers <= 0 {
		p.workers = defaultWorkers
	}
	if p.lang == "" {
		p.lang = "th"
	}
	if p.loc == nil {
		p.loc = time.UTC
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// RunToday processes incremental listings, keeping only entries dated today.
func (p *Pipeline) RunToday(ctx context.Context) (domain.RunSummary, error) {
	return p.Run(ctx, domain.ModeToday)
}

// RunBackfill processes every page of the backfill listings.
func (p *Pipeline) RunBackfill(ctx context.Context) (domain.RunSummary, error) {
	return p.Run(ctx, domain.ModeBackfill)
}

// Run executes one guarded run. It fails with domain.ErrPipelineBusy when another run holds the guard.
func (p *Pipeline) Run(ctx context.Context, mode domain.RunMode) (domain.RunSummary, error) {
	var summary domain.RunSummary
	err := p.exclusive(ctx, Job(mode), func(ctx context.Context) error {
		var err error
		summary, err = p.run(ctx, mode)
		return err
	})
	return summary, err
}

// Execute runs job synchronously under the run guard.
func (p *Pipeline) Execute(ctx context.Context, job Job) error {
	return p.exclusive(ctx, job, func(ctx context.Context) error {
		return p.dispatch(ctx, job)
	})
}

// Launch acquires the run guard and runs job in the background, detached from ctx cancellation.
func (p *Pipeline) Launch(ctx context.Context, job Job) error {
	release, err := p.acquire(ctx, job)
	if err != nil {
		return err
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer release()
		err := p.dispatch(bg, job)
		p.finish(job, err)
		if err != nil {
			p.logger.Error("background job failed", "job", job, "error", err)
		}
	}()
	return nil
}

// Status returns a snapshot of the run state.
func (p *Pipeline) Status() Status {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return p.status
}

func (p *Pipeline) dispatch(ctx context.Context, job Job) error {
	switch job {
	case JobToday:
		_, err := p.run(ctx, domain.ModeToday)
		return err
	case JobBackfill:
		_, err := p.run(ctx, domain.ModeBackfill)
		return err
	case JobReclassify:
		_, err := p.reclassify(ctx)
		return err
	case JobTrends:
		_, err := p.refreshTrends(ctx)
		return err
	default:
		return fmt.Errorf("unknown job %q", job)
	}
}

func (p *Pipeline) exclusive(ctx context.Context, job Job, fn func(context.Context) error) error {
	release, err := p.acquire(ctx, job)
	if err != nil {
		return err
	}
	defer release()

	err = fn(ctx)
	p.finish(job, err)
	return err
}

func (p *Pipeline) acquire(ctx context.Context, job Job) (func(), error) {
	release, ok, err := p.guard.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run guard: %w", err)
	}
	if !ok {
		p.logger.Info("run dropped, another run is active", "job", job)
		return nil, domain.ErrPipelineBusy
	}

	started := p.now()
	p.statusMu.Lock()
	p.status.Running = job
	p.status.StartedAt = &started
	p.statusMu.Unlock()
	return release, nil
}

func (p *Pipeline) finish(job Job, err error) {
	finished := p.now()
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status.Running = ""
	p.status.StartedAt = nil
	p.status.LastJob = job
	p.status.LastFinishedAt = &finished
	p.status.LastError = ""
	if err != nil {
		p.status.LastError = err.Error()
	}
}

func (p *Pipeline) run(ctx context.Context, mode domain.RunMode) (domain.RunSummary, error) {
	summary := domain.RunSummary{Mode: mode, StartedAt: p.now()}

	pass := domain.PassIncremental
	if mode == domain.ModeBackfill {
		pass = domain.PassBackfill
	}
	candidates, err := p.source.Collect(ctx, pass)
	if err != nil {
		return summary, fmt.Errorf("collect %s: %w", mode, err)
	}
	if mode == domain.ModeToday {
		candidates = p.todayOnly(candidates, summary.StartedAt)
	}
	p.logger.Info("run started", "mode", mode, "candidates", len(candidates))

	outcomes := make([]outcome, len(candidates))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, c := range candidates {
		g.Go(func() error {
			outcomes[i] = p.process(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	for i, out := range outcomes {
		switch out.state {
		case domain.StatePersisted:
			summary.Created++
			summary.Articles = append(summary.Articles, out.article)
		case domain.StateDuplicate:
			summary.Skipped++
		default:
			summary.Failed++
			summary.Failures = append(summary.Failures, domain.RunFailure{
				URL:    candidates[i].Entry.URL,
				Reason: out.err.Error(),
			})
		}
	}
	summary.FinishedAt = p.now()

	p.statusMu.Lock()
	last := summary
	p.status.LastRun = &last
	p.statusMu.Unlock()

	p.logger.Info("run finished", "mode", mode,
		"created", summary.Created, "skipped", summary.Skipped, "failed", summary.Failed,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
	p.announce(ctx, summary)
	return summary, nil
}

// process drives one candidate through extract, dedup, archive, translate and insert.
func (p *Pipeline) process(ctx context.Context, c domain.Candidate) outcome {
	log := p.logger.With("url", c.Entry.URL, "category", c.Category)

	draft, err := p.source.Extract(ctx, c)
	if err != nil {
		log.Warn("article failed", "state", domain.StateFailed, "error", err)
		return outcome{state: domain.StateFailed, err: err}
	}
	log = log.With("title", draft.Title, "date", draft.Date)
	log.Debug("article extracted", "state", domain.StateExtracted)

	unlock := p.keys.Lock(draft.Title + "\x00" + draft.Date)
	defer unlock()

	exists, err := p.store.Exists(ctx, draft.Title, draft.Date)
	if err != nil {
		log.Warn("article failed", "state", domain.StateFailed, "error", err)
		return outcome{state: domain.StateFailed, err: fmt.Errorf("check existing: %w", err)}
	}
	if exists {
		log.Info("article skipped", "state", domain.StateDuplicate)
		return outcome{state: domain.StateDuplicate}
	}
	log.Debug("article is new", "state", domain.StateNew)

	if p.images != nil && len(draft.ImageURLs) > 0 {
		draft.ImageRefs = p.images.ArchiveAll(ctx, draft.ImageURLs)
	}

	if p.translator != nil {
		if err := p.translate(ctx, &draft); err != nil {
			p.discard(ctx, draft.ImageRefs)
			log.Warn("article failed", "state", domain.StateFailed, "error", err)
			return outcome{state: domain.StateFailed, err: err}
		}
		log.Debug("article translated", "state", domain.StateTranslated)
	}

	article, err := p.store.Insert(ctx, draft)
	if errors.Is(err, domain.ErrConstraint) {
		p.discard(ctx, draft.ImageRefs)
		log.Info("article skipped", "state", domain.StateDuplicate, "reason", "inserted concurrently")
		return outcome{state: domain.StateDuplicate}
	}
	if err != nil {
		p.discard(ctx, draft.ImageRefs)
		log.Warn("article failed", "state", domain.StateFailed, "error", err)
		return outcome{state: domain.StateFailed, err: fmt.Errorf("insert: %w", err)}
	}

	log.Info("article created", "state", domain.StatePersisted, "id", article.ID, "images", len(article.ImageRefs))
	return outcome{state: domain.StatePersisted, article: article}
}

// translate fills both translated fields or neither.
func (p *Pipeline) translate(ctx context.Context, draft *domain.ArticleDraft) error {
	title, err := p.translator.Translate(ctx, draft.Title, p.lang)
	if err != nil {
		return fmt.Errorf("translate title: %w", err)
	}
	body, err := p.translator.Translate(ctx, draft.BodyText, p.lang)
	if err != nil {
		return fmt.Errorf("translate body: %w", err)
	}
	draft.TitleTranslated = &title
	draft.BodyTranslated = &body
	return nil
}

func (p *Pipeline) discard(ctx context.Context, refs []string) {
	if p.images == nil || len(refs) == 0 {
		return
	}
	p.images.Discard(context.WithoutCancel(ctx), refs)
}

// todayOnly keeps candidates whose listing date is the current day in the pipeline timezone.
func (p *Pipeline) todayOnly(candidates []domain.Candidate, now time.Time) []domain.Candidate {
	year, month, day := now.In(p.loc).Date()
	kept := candidates[:0:0]
	for _, c := range candidates {
		if c.Entry.PublishedOn.IsZero() {
			continue
		}
		y, m, d := c.Entry.PublishedOn.Date()
		if y == year && m == month && d == day {
			kept = append(kept, c)
		}
	}
	if dropped := len(candidates) - len(kept); dropped > 0 {
		p.logger.Debug("entries not dated today dropped", "dropped", dropped)
	}
	return kept
}

// announce sends the digest and created events; failures never fail the run.
func (p *Pipeline) announce(ctx context.Context, summary domain.RunSummary) {
	if summary.Created == 0 {
		return
	}
	if p.notifier != nil {
		if err := p.notifier.PublishDigest(ctx, buildDigestMessage(summary)); err != nil {
			p.logger.Warn("publish digest failed", "error", err)
		}
	}
	if p.events != nil {
		for _, article := range summary.Articles {
			if err := p.events.PublishCreated(ctx, article); err != nil {
				p.logger.Warn("publish created event failed", "id", article.ID, "error", err)
			}
		}
	}
}

func buildDigestMessage(summary domain.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "NewsHarvester %s run: %d new, %d skipped, %d failed\n",
		summary.Mode, summary.Created, summary.Skipped, summary.Failed)
	for _, article := range summary.Articles {
		fmt.Fprintf(&b, "\n- %s (%s, %s)\n", article.Title, article.Category, article.Date)
		if article.TitleTranslated != nil && *article.TitleTranslated != "" {
			fmt.Fprintf(&b, "  %s\n", *article.TitleTranslated)
		}
		if article.SourceURL != "" {
			fmt.Fprintf(&b, "  %s\n", article.SourceURL)
		}
	}
	return b.String()
}
