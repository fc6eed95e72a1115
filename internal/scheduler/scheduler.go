package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LJTian/countywire/internal/catalog"
	"github.com/LJTian/countywire/internal/collector"
	"github.com/LJTian/countywire/internal/metrics"
	"github.com/LJTian/countywire/internal/processor"
	"github.com/LJTian/countywire/internal/storage"
	"github.com/LJTian/countywire/internal/synth"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	StageIngest    = "ingest"
	StageSynthesis = "synthesis"

	// SearchSourceName owns the items a region's search queries produce.
	SearchSourceName = "search:gdelt"
	searchSourceTier = "search"
)

// Deps are the components a pass runs through. Engine may be nil for an
// ingest-only process.
type Deps struct {
	Catalog   *catalog.Catalog
	Store     *storage.Store
	Resolver  *collector.Resolver
	Search    *collector.SearchAdapter
	Processor *processor.SimpleProcessor
	Writer    *storage.ItemWriter
	Engine    *synth.Engine
}

type Options struct {
	IngestSpec     string
	SynthSpec      string
	Lookback       time.Duration
	SynthWindow    time.Duration
	ResolveMissTTL time.Duration
	// StartupDelay schedules one ingest pass after Start; zero disables it.
	StartupDelay time.Duration
}

// StageSummary counts units of work and the rows they produced.
type StageSummary struct {
	Attempted int                 `json:"attempted"`
	Succeeded int                 `json:"succeeded"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Rows      storage.WriteCounts `json:"rows"`
}

type IngestSummary struct {
	RunID      string       `json:"runId"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Feeds      StageSummary `json:"feeds"`
	Search     StageSummary `json:"search"`
	Error      string       `json:"error,omitempty"`
}

type SynthesisSummary struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	synth.Summary
}

type Scheduler struct {
	cron *cron.Cron
	deps Deps
	opts Options
	log  *zap.Logger
	now  func() time.Time

	mu      sync.Mutex
	running map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the cron jobs; nothing runs until Start.
func New(deps Deps, opts Options, log *zap.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    cron.New(),
		deps:    deps,
		opts:    opts,
		log:     log,
		now:     time.Now,
		running: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}

	if opts.IngestSpec != "" {
		if _, err := s.cron.AddFunc(opts.IngestSpec, func() { s.RunIngest(s.ctx) }); err != nil {
			cancel()
			return nil, err
		}
	}
	if opts.SynthSpec != "" && deps.Engine != nil {
		if _, err := s.cron.AddFunc(opts.SynthSpec, func() { s.RunSynthesis(s.ctx) }); err != nil {
			cancel()
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	if s.opts.StartupDelay > 0 {
		time.AfterFunc(s.opts.StartupDelay, func() {
			s.RunIngest(s.ctx)
		})
	}
}

// Stop cancels in-flight passes and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// acquire marks a stage as running; a second pass of the same stage is
// skipped instead of overlapping.
func (s *Scheduler) acquire(stage string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[stage] {
		return false
	}
	s.running[stage] = true
	return true
}

func (s *Scheduler) release(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, stage)
}

func searchSource(r catalog.Region) catalog.Source {
	return catalog.Source{
		State:   r.State,
		County:  r.County,
		Name:    SearchSourceName,
		Tier:    searchSourceTier,
		Enabled: true,
	}
}

// RunIngest runs the feed stage then the search stage.
func (s *Scheduler) RunIngest(ctx context.Context) (sum IngestSummary) {
	sum = IngestSummary{RunID: uuid.NewString(), StartedAt: s.now().UTC()}
	log := s.log.With(zap.String("run_id", sum.RunID), zap.String("stage", StageIngest))

	if !s.acquire(StageIngest) {
		log.Warn("ingest pass already running, skipping")
		sum.Error = "already running"
		return sum
	}
	defer s.release(StageIngest)

	log.Info("start ingest pass")
	defer func() {
		sum.FinishedAt = s.now().UTC()
		s.finish(ctx, log, StageIngest, sum.StartedAt, sum.FinishedAt, sum)
		log.Info("ingest pass done",
			zap.Any("feeds", sum.Feeds),
			zap.Any("search", sum.Search),
			zap.Duration("took", sum.FinishedAt.Sub(sum.StartedAt)))
	}()

	regions := s.deps.Catalog.Regions()
	sources := s.deps.Catalog.Sources()
	for _, r := range regions {
		sources = append(sources, searchSource(r))
	}
	refs, err := s.deps.Store.SyncSources(ctx, sources)
	if err != nil {
		log.Error("sync sources failed", zap.Error(err))
		sum.Error = err.Error()
		return sum
	}

	for _, src := range s.deps.Catalog.ListEnabledSources() {
		if ctx.Err() != nil {
			break
		}
		s.ingestFeed(ctx, log, src, refs[src.Key()], &sum.Feeds)
	}

	end := s.now().UTC()
	start := end.Add(-s.opts.Lookback)
	for _, r := range regions {
		ref := refs[searchSource(r).Key()]
		for _, q := range r.Queries() {
			if ctx.Err() != nil {
				break
			}
			unit := &collector.SearchQuery{Adapter: s.deps.Search, Region: r, Query: q, Start: start, End: end}
			s.ingestSearch(ctx, log, unit, ref, &sum.Search)
		}
	}
	return sum
}

func (s *Scheduler) ingestFeed(ctx context.Context, log *zap.Logger, src catalog.Source, ref storage.SourceRef, st *StageSummary) {
	const stage = "feed"
	st.Attempted++
	log = log.With(zap.String("source", src.Key()))

	if s.deps.Store.IsResolveMiss(ctx, src.Key()) {
		st.Skipped++
		metrics.UnitsTotal.WithLabelValues(stage, "skipped").Inc()
		log.Debug("skip source with recent resolve miss")
		return
	}

	unit := &collector.SourceFeed{Resolver: s.deps.Resolver, Source: src}
	counts, err := s.runUnit(ctx, unit, ref, stage)
	switch {
	case errors.Is(err, collector.ErrFeedNotFound):
		st.Skipped++
		metrics.UnitsTotal.WithLabelValues(stage, "skipped").Inc()
		log.Info("no feed found, source skipped", zap.Error(err))
		if err := s.deps.Store.RememberResolveMiss(ctx, src.Key(), s.opts.ResolveMissTTL); err != nil {
			log.Warn("remember resolve miss failed", zap.Error(err))
		}
		return
	case err != nil:
		st.Failed++
		metrics.UnitsTotal.WithLabelValues(stage, "failed").Inc()
		log.Warn("feed unit failed", zap.Error(err))
		return
	}
	st.Succeeded++
	st.Rows.Merge(counts)
	metrics.UnitsTotal.WithLabelValues(stage, "succeeded").Inc()
	log.Info("feed unit done",
		zap.String("url", unit.ResolvedURL),
		zap.Int("inserted", counts.Inserted),
		zap.Int("duplicate", counts.Duplicate),
		zap.Int("rejected", counts.Rejected))
}

func (s *Scheduler) ingestSearch(ctx context.Context, log *zap.Logger, unit *collector.SearchQuery, ref storage.SourceRef, st *StageSummary) {
	const stage = "search"
	st.Attempted++
	log = log.With(zap.String("region", unit.Region.String()), zap.String("query", unit.Query))

	counts, err := s.runUnit(ctx, unit, ref, stage)
	switch {
	case errors.Is(err, collector.ErrQueryTooShort):
		st.Skipped++
		metrics.UnitsTotal.WithLabelValues(stage, "skipped").Inc()
		log.Info("search query skipped", zap.Error(err))
		return
	case err != nil:
		st.Failed++
		metrics.UnitsTotal.WithLabelValues(stage, "failed").Inc()
		log.Warn("search unit failed", zap.Error(err))
		return
	}
	st.Succeeded++
	st.Rows.Merge(counts)
	metrics.UnitsTotal.WithLabelValues(stage, "succeeded").Inc()
	log.Info("search unit done",
		zap.Int("inserted", counts.Inserted),
		zap.Int("duplicate", counts.Duplicate),
		zap.Int("rejected", counts.Rejected))
}

// runUnit fetches, cleans and writes one unit of work.
func (s *Scheduler) runUnit(ctx context.Context, f collector.Fetcher, ref storage.SourceRef, stage string) (storage.WriteCounts, error) {
	drafts, err := f.Fetch(ctx)
	if err != nil {
		return storage.WriteCounts{}, err
	}
	items := s.deps.Processor.Process(drafts)
	counts := s.deps.Writer.WriteAll(ctx, ref, items)
	metrics.ItemsWrittenTotal.WithLabelValues(stage, "inserted").Add(float64(counts.Inserted))
	metrics.ItemsWrittenTotal.WithLabelValues(stage, "duplicate").Add(float64(counts.Duplicate))
	metrics.ItemsWrittenTotal.WithLabelValues(stage, "rejected").Add(float64(counts.Rejected))
	return counts, nil
}

// RunSynthesis builds stories for every catalog region over the current window.
func (s *Scheduler) RunSynthesis(ctx context.Context) SynthesisSummary {
	sum := SynthesisSummary{RunID: uuid.NewString(), StartedAt: s.now().UTC()}
	log := s.log.With(zap.String("run_id", sum.RunID), zap.String("stage", StageSynthesis))

	if s.deps.Engine == nil {
		log.Warn("no synthesis engine configured")
		return sum
	}
	if !s.acquire(StageSynthesis) {
		log.Warn("synthesis pass already running, skipping")
		return sum
	}
	defer s.release(StageSynthesis)

	w := synth.WindowEnding(s.now(), s.opts.SynthWindow)
	log.Info("start synthesis pass", zap.Stringer("window", w))
	sum.Summary = s.deps.Engine.Run(ctx, s.deps.Catalog.Regions(), w)
	sum.FinishedAt = s.now().UTC()

	metrics.UnitsTotal.WithLabelValues(StageSynthesis, "succeeded").Add(float64(sum.Created))
	metrics.UnitsTotal.WithLabelValues(StageSynthesis, "skipped").Add(float64(sum.Skipped))
	metrics.UnitsTotal.WithLabelValues(StageSynthesis, "failed").Add(float64(sum.Failed))
	s.finish(ctx, log, StageSynthesis, sum.StartedAt, sum.FinishedAt, sum)
	log.Info("synthesis pass done",
		zap.Int("created", sum.Created),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed))
	return sum
}

func (s *Scheduler) finish(ctx context.Context, log *zap.Logger, stage string, started, finished time.Time, summary any) {
	metrics.RunDuration.WithLabelValues(stage).Observe(finished.Sub(started).Seconds())
	metrics.LastRunTimestamp.WithLabelValues(stage).Set(float64(finished.Unix()))
	// the pass may have been cancelled; the summary is still worth keeping
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.deps.Store.SaveRunSummary(saveCtx, stage, summary); err != nil {
		log.Warn("save run summary failed", zap.Error(err))
	}
}
