// Package scrapes records pipeline run history and answers the
// "is it time to scrape again" question
package scrapes

import (
	"context"
	"time"

	"github.com/google/uuid"

	perr "cacdarchive/internal/platform/errors"
	"cacdarchive/internal/modkit/repokit"
	"cacdarchive/internal/platform/logger"
)

// Kind labels how a run was started
type Kind string

// Run kinds
const (
	KindScheduled Kind = "scheduled"
	KindStartup   Kind = "startup"
	KindManual    Kind = "manual"
)

// Stats summarizes a completed run
type Stats struct {
	LinksDiscovered   int
	LinksProcessed    int
	RecordsAdded      int
	RecordsUpdated    int
	RecordsDeleted    int
	SummaryPageStatus int
}

// Run is a scrape run row as stored
type Run struct {
	ID              string
	Kind            Kind
	Status          string
	SummaryURL      string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationMs      *int64
	LinksDiscovered int
	LinksProcessed  int
	RecordsAdded    int
	RecordsUpdated  int
	RecordsDeleted  int
	ErrorMessage    string
	ErrorDetails    string
}

// Repo is the persistence surface for run history
type Repo interface {
	InsertStart(ctx context.Context, run Run) error
	MarkComplete(ctx context.Context, id string, completedAt time.Time, durationMs int64, stats Stats) error
	MarkFailed(ctx context.Context, id string, completedAt time.Time, durationMs int64, message, details string) error
	LastSuccessfulStartedAt(ctx context.Context) (time.Time, bool, error)
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// Svc tracks run lifecycles. A run reaches exactly one terminal call
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[Repo]
	log    logger.Logger
	now    func() time.Time
	newID  func() string

	// started tracks StartedAt per open run so duration lands server-side
	started map[string]time.Time
}

// New constructs the scrape history service
func New(db repokit.TxRunner, binder repokit.Binder[Repo]) *Svc {
	if db == nil {
		panic("scrapes.Svc requires a non nil TxRunner")
	}
	if binder == nil {
		panic("scrapes.Svc requires a non nil Repo binder")
	}
	return &Svc{
		db:      db,
		binder:  binder,
		log:     *logger.Named("scrapes"),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		started: map[string]time.Time{},
	}
}

// Start inserts the run row optimistically with status success; it flips to
// failed only through Error
func (s *Svc) Start(ctx context.Context, kind Kind, summaryURL string) (string, error) {
	run := Run{
		ID:         s.newID(),
		Kind:       kind,
		Status:     "success",
		SummaryURL: summaryURL,
		StartedAt:  s.now(),
	}
	if err := s.binder.Bind(s.db).InsertStart(ctx, run); err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeDB, "scrape run insert failed")
	}
	s.started[run.ID] = run.StartedAt
	return run.ID, nil
}

// Complete finalizes a successful run
func (s *Svc) Complete(ctx context.Context, id string, stats Stats) error {
	at := s.now()
	err := s.binder.Bind(s.db).MarkComplete(ctx, id, at, s.elapsedMs(id, at), stats)
	delete(s.started, id)
	return perr.WrapIf(err, perr.ErrorCodeDB, "scrape run completion failed")
}

// Error finalizes a failed run
func (s *Svc) Error(ctx context.Context, id string, runErr error) error {
	at := s.now()
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	details := ""
	if root := perr.Root(runErr); root != nil && root.Error() != msg {
		details = root.Error()
	}
	err := s.binder.Bind(s.db).MarkFailed(ctx, id, at, s.elapsedMs(id, at), msg, details)
	delete(s.started, id)
	return perr.WrapIf(err, perr.ErrorCodeDB, "scrape run failure mark failed")
}

// LastSuccessfulStartedAt returns when the most recent successful run started
func (s *Svc) LastSuccessfulStartedAt(ctx context.Context) (time.Time, bool, error) {
	return s.binder.Bind(s.db).LastSuccessfulStartedAt(ctx)
}

// ShouldScrape reports whether the minimum interval since the last
// successful run has elapsed. A store with no successful runs always scrapes
func (s *Svc) ShouldScrape(ctx context.Context, minInterval time.Duration) (bool, error) {
	last, ok, err := s.LastSuccessfulStartedAt(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return s.now().Sub(last) >= minInterval, nil
}

// Recent lists recent runs, newest first
func (s *Svc) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.binder.Bind(s.db).Recent(ctx, limit)
}

func (s *Svc) elapsedMs(id string, at time.Time) int64 {
	started, ok := s.started[id]
	if !ok {
		return 0
	}
	return at.Sub(started).Milliseconds()
}
