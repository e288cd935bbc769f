package listsync

import (
	"context"

	"github.com/google/uuid"

	"cacdarchive/internal/core/causelist"
	"cacdarchive/internal/modkit/repokit"
	"cacdarchive/internal/platform/logger"
)

// Result counts what one sync changed
type Result struct {
	Added   int
	Updated int
	Deleted int
}

// Svc is the differential sync engine. All mutations for one list date run
// inside a single transaction: after commit, the stored rows for that date
// exactly equal the deduplicated input
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[Repo]
	log    logger.Logger
	newID  func() string
}

// New constructs a sync engine
func New(db repokit.TxRunner, binder repokit.Binder[Repo]) *Svc {
	if db == nil {
		panic("listsync.Svc requires a non nil TxRunner")
	}
	if binder == nil {
		panic("listsync.Svc requires a non nil Repo binder")
	}
	return &Svc{
		db:     db,
		binder: binder,
		log:    *logger.Named("listsync"),
		newID:  func() string { return uuid.NewString() },
	}
}

// Sync reconciles rows against the store for date. Rows whose ListDate is not
// date are ignored with a warning; duplicates by identity key collapse to the
// last occurrence
func (s *Svc) Sync(ctx context.Context, date causelist.ListDate, rows []causelist.Hearing) (Result, error) {
	incoming := s.dedup(date, rows)

	var res Result
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		repo := s.binder.Bind(q)

		existing, err := repo.ListByDate(ctx, date)
		if err != nil {
			return err
		}
		byKey := make(map[causelist.Key]causelist.Hearing, len(existing))
		for _, h := range existing {
			byKey[causelist.KeyOf(h)] = h
		}

		var adds, updates []causelist.Hearing
		for _, h := range incoming {
			stored, ok := byKey[causelist.KeyOf(h)]
			if !ok {
				h.ID = s.newID()
				adds = append(adds, h)
				continue
			}
			delete(byKey, causelist.KeyOf(h))
			if !causelist.ContentEquals(stored, h) {
				h.ID = stored.ID
				updates = append(updates, h)
			}
		}
		// whatever is left in byKey vanished from the published list
		deletes := make([]causelist.Hearing, 0, len(byKey))
		for _, h := range byKey {
			deletes = append(deletes, h)
		}

		for _, h := range adds {
			if err := repo.Insert(ctx, h); err != nil {
				return err
			}
		}
		for _, h := range updates {
			if err := repo.Update(ctx, h); err != nil {
				return err
			}
		}
		for _, h := range deletes {
			if err := repo.Delete(ctx, h.ID); err != nil {
				return err
			}
		}

		res = Result{Added: len(adds), Updated: len(updates), Deleted: len(deletes)}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.log.Info().
		Str("list_date", date.String()).
		Int("added", res.Added).
		Int("updated", res.Updated).
		Int("deleted", res.Deleted).
		Msg("cause list synchronized")
	return res, nil
}

// dedup collapses input rows by identity key, last occurrence winning, and
// drops rows scoped to a different date
func (s *Svc) dedup(date causelist.ListDate, rows []causelist.Hearing) []causelist.Hearing {
	index := map[causelist.Key]int{}
	out := make([]causelist.Hearing, 0, len(rows))
	dups := 0
	for _, h := range rows {
		if h.ListDate != date {
			s.log.Warn().
				Str("want", date.String()).
				Str("got", h.ListDate.String()).
				Str("case_number", h.CaseNumber).
				Msg("row scoped to a different list date ignored")
			continue
		}
		k := causelist.KeyOf(h)
		if i, ok := index[k]; ok {
			out[i] = h // last occurrence wins
			dups++
			continue
		}
		index[k] = len(out)
		out = append(out, h)
	}
	if dups > 0 {
		s.log.Warn().
			Str("list_date", date.String()).
			Int("duplicates", dups).
			Msg("duplicate identity keys in scraped rows")
	}
	return out
}
