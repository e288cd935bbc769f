// Package pipeline drives one end-to-end ingestion run: discover links,
// fetch and parse each cause list, synchronize the store, record history,
// then hand over to the notification matcher
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cacdarchive/internal/core/causelist"
	"cacdarchive/internal/platform/logger"
	"cacdarchive/internal/services/ingest/discovery"
	"cacdarchive/internal/services/ingest/listsync"
	"cacdarchive/internal/services/ingest/tableparse"
	"cacdarchive/internal/services/scrapes"
)

// Fetcher fetches one cause list page
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Discoverer finds today's and tomorrow's cause list links
type Discoverer interface {
	Discover(ctx context.Context, now time.Time) ([]discovery.Link, error)
}

// Parser turns a cause list page into hearings
type Parser interface {
	Parse(ctx context.Context, body []byte, in tableparse.Input) ([]causelist.Hearing, error)
}

// Syncer reconciles hearings for one list date
type Syncer interface {
	Sync(ctx context.Context, date causelist.ListDate, rows []causelist.Hearing) (listsync.Result, error)
}

// History records run lifecycles
type History interface {
	Start(ctx context.Context, kind scrapes.Kind, url string) (string, error)
	Complete(ctx context.Context, id string, stats scrapes.Stats) error
	Error(ctx context.Context, id string, err error) error
}

// Notifier dispatches saved search digests
type Notifier interface {
	Run(ctx context.Context) error
}

// StepResult is the outcome for one discovered link
type StepResult struct {
	URL      string
	ListDate causelist.ListDate
	Result   listsync.Result
	Err      error
}

// Summary is what one run did
type Summary struct {
	RunID   string
	Links   int
	Steps   []StepResult
	Stats   scrapes.Stats
	StepErr error
}

// Pipeline wires the run stages together. Stages execute strictly
// sequentially; the only concurrency around a Pipeline is the scheduler
// guaranteeing at most one run at a time
type Pipeline struct {
	fetch      Fetcher
	discover   Discoverer
	parse      Parser
	sync       Syncer
	history    History
	notifier   Notifier
	summaryURL string
	log        logger.Logger
	now        func() time.Time
}

// Options configures a Pipeline
type Options struct {
	SummaryURL string
}

// New constructs a Pipeline
func New(
	fetch Fetcher,
	discover Discoverer,
	parse Parser,
	sync Syncer,
	history History,
	notifier Notifier,
	opts Options,
) *Pipeline {
	if fetch == nil || discover == nil || parse == nil || sync == nil || history == nil {
		panic("pipeline.New requires fetch, discover, parse, sync, and history")
	}
	return &Pipeline{
		fetch:      fetch,
		discover:   discover,
		parse:      parse,
		sync:       sync,
		history:    history,
		notifier:   notifier,
		summaryURL: opts.SummaryURL,
		log:        *logger.Named("pipeline"),
		now:        time.Now,
	}
}

// Run executes one ingestion run. A failing step ends that step only; the
// other discovered dates still process. The run is recorded failed when any
// step failed fatally, and the notification matcher runs whenever link
// discovery succeeded
func (p *Pipeline) Run(ctx context.Context, kind scrapes.Kind) (Summary, error) {
	runID, err := p.history.Start(ctx, kind, p.summaryURL)
	if err != nil {
		return Summary{}, err
	}
	ctx = logger.WithRun(ctx, runID)
	log := logger.C(ctx)

	sum := Summary{RunID: runID}

	links, err := p.discover.Discover(ctx, p.now())
	if err != nil {
		_ = p.history.Error(ctx, runID, err)
		return sum, err
	}
	sum.Links = len(links)
	sum.Stats.LinksDiscovered = len(links)
	sum.Stats.SummaryPageStatus = http.StatusOK

	var stepErrs []error
	for _, link := range links {
		if ctx.Err() != nil {
			stepErrs = append(stepErrs, ctx.Err())
			break
		}
		step := p.processLink(ctx, link)
		sum.Steps = append(sum.Steps, step)
		if step.Err != nil {
			stepErrs = append(stepErrs, fmt.Errorf("%s: %w", link.URL, step.Err))
			continue
		}
		sum.Stats.LinksProcessed++
		sum.Stats.RecordsAdded += step.Result.Added
		sum.Stats.RecordsUpdated += step.Result.Updated
		sum.Stats.RecordsDeleted += step.Result.Deleted
	}

	if len(stepErrs) > 0 {
		sum.StepErr = errors.Join(stepErrs...)
		_ = p.history.Error(ctx, runID, sum.StepErr)
	} else if err := p.history.Complete(ctx, runID, sum.Stats); err != nil {
		log.Error().Err(err).Msg("run completion record failed")
	}

	if p.notifier != nil {
		if err := p.notifier.Run(ctx); err != nil {
			log.Error().Err(err).Msg("notification matcher failed")
		}
	}

	log.Info().
		Int("links", sum.Links).
		Int("processed", sum.Stats.LinksProcessed).
		Int("added", sum.Stats.RecordsAdded).
		Int("updated", sum.Stats.RecordsUpdated).
		Int("deleted", sum.Stats.RecordsDeleted).
		Bool("partial", sum.StepErr != nil).
		Msg("ingestion run finished")
	return sum, nil
}

// processLink runs fetch, parse, sync for one cause list page
func (p *Pipeline) processLink(ctx context.Context, link discovery.Link) StepResult {
	step := StepResult{URL: link.URL, ListDate: link.TargetDate}

	body, err := p.fetch.Fetch(ctx, link.URL)
	if err != nil {
		step.Err = fmt.Errorf("cause list fetch: %w", err)
		return step
	}

	rows, err := p.parse.Parse(ctx, body, tableparse.Input{
		ListDate:  link.TargetDate,
		SourceURL: link.URL,
		Division:  link.Division,
		Now:       p.now(),
	})
	if err != nil {
		step.Err = fmt.Errorf("cause list parse: %w", err)
		return step
	}

	res, err := p.sync.Sync(ctx, link.TargetDate, rows)
	if err != nil {
		step.Err = fmt.Errorf("cause list sync: %w", err)
		return step
	}
	step.Result = res
	return step
}
