// Package synth turns a region's recent items into one cited roundup story
// per time window.
package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/countywire/internal/catalog"
	"github.com/LJTian/countywire/internal/generator"
	"github.com/LJTian/countywire/internal/metrics"
	"github.com/LJTian/countywire/internal/storage"
	"go.uber.org/zap"
)

// Window is a half-open UTC interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowEnding returns the window of the given length that ends at now
// rounded down to a multiple of length, so every run inside one period
// targets the same window.
func WindowEnding(now time.Time, length time.Duration) Window {
	end := now.UTC().Truncate(length)
	return Window{Start: end.Add(-length), End: end}
}

func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + "/" + w.End.Format(time.RFC3339)
}

type State string

const (
	StateSkipped   State = "skipped"
	StatePersisted State = "persisted"
	StateFailed    State = "failed"
)

const (
	ReasonTooSmall      = "too_small"
	ReasonAlreadyExists = "already_exists"
)

// Store is the part of storage.Store the engine reads and writes.
type Store interface {
	ItemsForRegion(ctx context.Context, state, county string, start, end time.Time, limit int) ([]storage.RegionItem, error)
	StoryExists(ctx context.Context, state, county, category string, start, end time.Time) (bool, error)
	CreateStory(ctx context.Context, story *storage.Story, citations []storage.StoryCitation) error
}

type Generator interface {
	Generate(ctx context.Context, messages []generator.Message) (string, error)
}

type Options struct {
	MinItems    int
	SampleSize  int
	PromptItems int
	Category    string
	Status      string
	Model       string
}

func (o *Options) defaults() {
	if o.MinItems <= 0 {
		o.MinItems = 3
	}
	if o.SampleSize <= 0 {
		o.SampleSize = 40
	}
	if o.PromptItems <= 0 {
		o.PromptItems = 12
	}
	if o.Category == "" {
		o.Category = storage.DefaultCategory
	}
	if o.Status == "" {
		o.Status = storage.StatusPublished
	}
}

// Result is the outcome of one (region, window) group.
type Result struct {
	Region    string `json:"region"`
	State     State  `json:"state"`
	Reason    string `json:"reason,omitempty"`
	Items     int    `json:"items"`
	StoryID   uint   `json:"storyId,omitempty"`
	Citations int    `json:"citations,omitempty"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// Summary reports a synthesis pass.
type Summary struct {
	Window  Window   `json:"window"`
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Results []Result `json:"results"`
}

type Engine struct {
	store Store
	gen   Generator
	opts  Options
	log   *zap.Logger
}

func NewEngine(store Store, gen Generator, opts Options, log *zap.Logger) *Engine {
	opts.defaults()
	return &Engine{store: store, gen: gen, opts: opts, log: log}
}

// Run synthesizes every region for one window. A failed group never stops
// the others.
func (e *Engine) Run(ctx context.Context, regions []catalog.Region, w Window) Summary {
	sum := Summary{Window: w, Results: make([]Result, 0, len(regions))}
	for _, region := range regions {
		if ctx.Err() != nil {
			break
		}
		res := e.Synthesize(ctx, region, w)
		switch res.State {
		case StatePersisted:
			sum.Created++
		case StateSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
		sum.Results = append(sum.Results, res)
	}
	return sum
}

// Synthesize runs one group through gate, generation and persistence.
func (e *Engine) Synthesize(ctx context.Context, region catalog.Region, w Window) (res Result) {
	log := e.log.With(zap.String("region", region.String()), zap.Stringer("window", w))
	res = Result{Region: region.String()}
	defer func() {
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
		metrics.StoriesTotal.WithLabelValues(string(res.State), res.Reason).Inc()
		switch res.State {
		case StateFailed:
			log.Error("synthesis failed", zap.Int("items", res.Items), zap.Error(res.Err))
		case StateSkipped:
			log.Info("synthesis skipped", zap.String("reason", res.Reason), zap.Int("items", res.Items))
		default:
			log.Info("story persisted", zap.Uint("story_id", res.StoryID), zap.Int("items", res.Items), zap.Int("citations", res.Citations))
		}
	}()

	items, err := e.store.ItemsForRegion(ctx, region.State, region.County, w.Start, w.End, e.opts.SampleSize)
	if err != nil {
		return fail(res, err)
	}
	res.Items = len(items)
	if len(items) < e.opts.MinItems {
		return skip(res, ReasonTooSmall)
	}

	exists, err := e.store.StoryExists(ctx, region.State, region.County, e.opts.Category, w.Start, w.End)
	if err != nil {
		return fail(res, err)
	}
	if exists {
		return skip(res, ReasonAlreadyExists)
	}

	promptItems := items[:min(e.opts.PromptItems, len(items))]
	started := time.Now()
	raw, err := e.gen.Generate(ctx, buildPrompt(region, w, promptItems))
	metrics.GenerationDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return fail(res, fmt.Errorf("generate: %w", err))
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		return fail(res, err)
	}

	citations := SelectCitations(promptItems, payload.UsedSourceIndexes)
	story := &storage.Story{
		State:         region.State,
		County:        region.County,
		Category:      e.opts.Category,
		Title:         payload.Title,
		Dek:           payload.Dek,
		Body:          payload.BodyMarkdown,
		Bullets:       payload.Bullets,
		WindowStart:   w.Start,
		WindowEnd:     w.End,
		Model:         e.opts.Model,
		PromptVersion: PromptVersion,
		Status:        e.opts.Status,
	}
	if err := e.store.CreateStory(ctx, story, citations); err != nil {
		if errors.Is(err, storage.ErrStoryExists) {
			return skip(res, ReasonAlreadyExists)
		}
		return fail(res, err)
	}

	res.State = StatePersisted
	res.StoryID = story.ID
	res.Citations = len(citations)
	return res
}

func skip(res Result, reason string) Result {
	res.State = StateSkipped
	res.Reason = reason
	return res
}

func fail(res Result, err error) Result {
	res.State = StateFailed
	res.Err = err
	return res
}
