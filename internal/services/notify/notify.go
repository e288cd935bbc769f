// Package notify runs saved searches over freshly synced listings and
// dispatches per-user email digests under a sliding-window rate limit
package notify

import (
	"context"
	"time"

	"cacdarchive/internal/core/causelist"
	"cacdarchive/internal/modkit/repokit"
	"cacdarchive/internal/platform/logger"
	"cacdarchive/internal/services/alerts"

	"github.com/google/uuid"
)

// Subscription is an enabled saved search joined to its notifiable user
type Subscription struct {
	SearchID   string
	SearchText string
	UserID     string
	UserEmail  string
	UserName   string
}

// Repo is the persistence surface the matcher needs
type Repo interface {
	// EnabledSubscriptions returns enabled searches for users that are
	// active, not soft-deleted, and have email notifications on
	EnabledSubscriptions(ctx context.Context) ([]Subscription, error)
	// NotificationsSince counts digests sent to the user after since
	NotificationsSince(ctx context.Context, userID string, since time.Time) (int, error)
	// MatchHearings runs one saved search over the given list dates
	MatchHearings(ctx context.Context, searchText string, dates []causelist.ListDate, limit int) ([]causelist.Hearing, error)
	// InsertNotification appends the rate-limit log entry
	InsertNotification(ctx context.Context, id, userID string, sentAt time.Time, matchCount, searchesMatched int) error
}

// Options tunes the matcher
type Options struct {
	// MaxPerWindow caps digests per user inside the sliding window
	MaxPerWindow int
	// WindowHours is the sliding window size
	WindowHours int
	// MatchLimit caps hearings per search
	MatchLimit int
	// BaseURL is included in digests so links resolve
	BaseURL string
}

// Matcher dispatches saved search digests after each successful sync run
type Matcher struct {
	db     repokit.TxRunner
	binder repokit.Binder[Repo]
	sink   alerts.Sink
	opts   Options
	log    logger.Logger
	now    func() time.Time
	newID  func() string
}

// New constructs a Matcher
func New(db repokit.TxRunner, binder repokit.Binder[Repo], sink alerts.Sink, opts Options) *Matcher {
	if db == nil {
		panic("notify.Matcher requires a non nil TxRunner")
	}
	if binder == nil {
		panic("notify.Matcher requires a non nil Repo binder")
	}
	if sink == nil {
		sink = alerts.NoopSink{}
	}
	if opts.MaxPerWindow <= 0 {
		opts.MaxPerWindow = 5
	}
	if opts.WindowHours <= 0 {
		opts.WindowHours = 24
	}
	if opts.MatchLimit <= 0 || opts.MatchLimit > 100 {
		opts.MatchLimit = 100
	}
	return &Matcher{
		db:     db,
		binder: binder,
		sink:   sink,
		opts:   opts,
		log:    *logger.Named("notify"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Run matches all enabled saved searches against today's and tomorrow's
// listings and dispatches one digest per user. Dispatch failures are logged
// and swallowed; they never fail the pipeline
func (m *Matcher) Run(ctx context.Context) error {
	repo := m.binder.Bind(m.db)

	subs, err := repo.EnabledSubscriptions(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	// group by user keeping first-seen order
	type userGroup struct {
		email, name string
		searches    []Subscription
	}
	order := []string{}
	byUser := map[string]*userGroup{}
	for _, sub := range subs {
		g, ok := byUser[sub.UserID]
		if !ok {
			g = &userGroup{email: sub.UserEmail, name: sub.UserName}
			byUser[sub.UserID] = g
			order = append(order, sub.UserID)
		}
		g.searches = append(g.searches, sub)
	}

	now := m.now()
	dates := []causelist.ListDate{causelist.Today(now), causelist.Tomorrow(now)}
	windowStart := now.Add(-time.Duration(m.opts.WindowHours) * time.Hour)

	for _, userID := range order {
		g := byUser[userID]

		sent, err := repo.NotificationsSince(ctx, userID, windowStart)
		if err != nil {
			m.log.Error().Err(err).Str("user_id", userID).Msg("rate limit lookup failed, user skipped")
			continue
		}
		if sent >= m.opts.MaxPerWindow {
			m.log.Debug().
				Str("user_id", userID).
				Int("sent", sent).
				Int("max", m.opts.MaxPerWindow).
				Msg("user over notification rate limit")
			continue
		}

		var sections []alerts.DigestSearch
		total := 0
		for _, sub := range g.searches {
			matches, err := repo.MatchHearings(ctx, sub.SearchText, dates, m.opts.MatchLimit)
			if err != nil {
				m.log.Error().Err(err).Str("search_id", sub.SearchID).Msg("saved search query failed")
				continue
			}
			if len(matches) == 0 {
				continue
			}
			sections = append(sections, alerts.DigestSearch{
				Text:    sub.SearchText,
				Matches: digestMatches(matches),
			})
			total += len(matches)
		}
		if len(sections) == 0 {
			continue
		}

		ev := alerts.DigestEvent{
			UserEmail: g.email,
			UserName:  g.name,
			Searches:  sections,
			BaseURL:   m.opts.BaseURL,
		}
		if err := m.sink.SavedSearchDigest(ctx, ev); err != nil {
			m.log.Error().Err(err).Str("user", g.email).Msg("digest dispatch failed")
			continue
		}

		if err := repo.InsertNotification(ctx, m.newID(), userID, now, total, len(sections)); err != nil {
			m.log.Error().Err(err).Str("user_id", userID).Msg("notification log insert failed")
		}
	}
	return nil
}

func digestMatches(rows []causelist.Hearing) []alerts.DigestMatch {
	out := make([]alerts.DigestMatch, 0, len(rows))
	for _, h := range rows {
		out = append(out, alerts.DigestMatch{
			CaseName:      h.CaseDetails,
			DateFormatted: h.ListDate.Midnight().Format("Monday 2 January 2006"),
			Time:          h.Time,
			Venue:         h.Venue,
			HearingType:   h.HearingType,
			Judge:         h.Judge,
		})
	}
	return out
}
