// Package service contains the saved search workflows
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"cacdarchive/internal/modkit/repokit"
	perr "cacdarchive/internal/platform/errors"
	"cacdarchive/internal/services/api/searches/domain"
	"cacdarchive/internal/services/api/searches/repo"
)

// Service defines the saved search service contract
type Service interface {
	domain.ServicePort
}

// Limits tunes saved search constraints
type Limits struct {
	MinLength  int
	MaxLength  int
	MaxPerUser int
}

// Svc implements the saved search service
type Svc struct {
	binder repokit.Binder[repo.Repo]
	db     repokit.TxRunner
	limits Limits
	now    func() time.Time
	newID  func() string
}

// New constructs a saved search service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo], limits Limits) *Svc {
	if db == nil {
		panic("searches.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("searches.Service requires a non nil Repo binder")
	}
	if limits.MinLength <= 0 {
		limits.MinLength = 3
	}
	if limits.MaxLength <= 0 {
		limits.MaxLength = 100
	}
	if limits.MaxPerUser <= 0 {
		limits.MaxPerUser = 10
	}
	return &Svc{
		binder: binder,
		db:     db,
		limits: limits,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// ListForUser returns the user's saved searches
func (s *Svc) ListForUser(ctx context.Context, userID string) ([]domain.SavedSearch, error) {
	if userID == "" {
		return nil, perr.Unauthorizedf("missing user")
	}
	rows, err := s.binder.Bind(s.db).ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SavedSearch, 0, len(rows))
	for _, r := range rows {
		out = append(out, toWire(r))
	}
	return out, nil
}

// Create stores a new saved search after trimming and limit checks. The
// count check and the insert share one transaction so the per-user cap
// holds under concurrent creates
func (s *Svc) Create(ctx context.Context, userID string, in domain.CreateInput) (domain.SavedSearch, error) {
	if userID == "" {
		return domain.SavedSearch{}, perr.Unauthorizedf("missing user")
	}
	text := strings.TrimSpace(in.SearchText)
	if len(text) < s.limits.MinLength {
		return domain.SavedSearch{}, perr.WithField(
			perr.InvalidArgf("search text must be at least %d characters", s.limits.MinLength),
			"search_text")
	}
	if len(text) > s.limits.MaxLength {
		return domain.SavedSearch{}, perr.WithField(
			perr.InvalidArgf("search text must be at most %d characters", s.limits.MaxLength),
			"search_text")
	}

	row := repo.Row{
		ID:         s.newID(),
		UserID:     userID,
		SearchText: text,
		Enabled:    true,
		CreatedAt:  s.now(),
	}
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		n, err := r.CountForUser(ctx, userID)
		if err != nil {
			return err
		}
		if n >= s.limits.MaxPerUser {
			return perr.Conflictf("saved search limit of %d reached", s.limits.MaxPerUser)
		}
		return r.Insert(ctx, row)
	})
	if err != nil {
		return domain.SavedSearch{}, err
	}
	return toWire(row), nil
}

// SetEnabled toggles a saved search owned by the user
func (s *Svc) SetEnabled(ctx context.Context, userID, id string, enabled bool) (domain.SavedSearch, error) {
	if userID == "" {
		return domain.SavedSearch{}, perr.Unauthorizedf("missing user")
	}
	r := s.binder.Bind(s.db)
	if err := r.SetEnabled(ctx, userID, id, enabled); err != nil {
		return domain.SavedSearch{}, err
	}
	row, err := r.Get(ctx, userID, id)
	if err != nil {
		return domain.SavedSearch{}, err
	}
	return toWire(row), nil
}

// Delete removes a saved search owned by the user
func (s *Svc) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return perr.Unauthorizedf("missing user")
	}
	return s.binder.Bind(s.db).Delete(ctx, userID, id)
}

func toWire(r repo.Row) domain.SavedSearch {
	return domain.SavedSearch{
		ID:         r.ID,
		UserID:     r.UserID,
		SearchText: r.SearchText,
		Enabled:    r.Enabled,
		CreatedAt:  r.CreatedAt,
	}
}
