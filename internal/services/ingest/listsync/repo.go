// Package listsync reconciles parsed cause list rows against the store for
// a single list date
package listsync

import (
	"context"
	"time"

	"cacdarchive/internal/modkit/repokit"
	"cacdarchive/internal/core/causelist"
)

// Repo is the persistence surface the sync engine needs
type Repo interface {
	ListByDate(ctx context.Context, date causelist.ListDate) ([]causelist.Hearing, error)
	Insert(ctx context.Context, h causelist.Hearing) error
	Update(ctx context.Context, h causelist.Hearing) error
	Delete(ctx context.Context, id string) error
}

type (
	// PG is a binder that can bind the repo to a Queryer or TxRunner
	PG struct{}
	// queries implements the Repo interface
	queries struct{ q repokit.Queryer }
)

// NewPG returns a binder that can bind the repo to a Queryer or TxRunner
func NewPG() repokit.Binder[Repo] { return PG{} }

// Bind wires a Queryer to the repo
func (PG) Bind(q repokit.Queryer) Repo { return &queries{q: q} }

func (r *queries) ListByDate(ctx context.Context, date causelist.ListDate) ([]causelist.Hearing, error) {
	const sql = `
select id, list_date::text, case_number, time, hearing_datetime,
       coalesce(venue, ''), coalesce(judge, ''), coalesce(case_details, ''),
       coalesce(hearing_type, ''), coalesce(additional_information, ''),
       division, source_url, scraped_at
from hearings
where list_date = $1
`
	rows, err := r.q.Query(ctx, sql, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []causelist.Hearing
	for rows.Next() {
		var h causelist.Hearing
		var listDate, division string
		var when, scraped time.Time
		if err := rows.Scan(
			&h.ID, &listDate, &h.CaseNumber, &h.Time, &when,
			&h.Venue, &h.Judge, &h.CaseDetails, &h.HearingType, &h.AdditionalInfo,
			&division, &h.SourceURL, &scraped,
		); err != nil {
			return nil, err
		}
		d, err := causelist.ParseListDate(listDate)
		if err != nil {
			return nil, err
		}
		h.ListDate = d
		h.HearingDateTime = when
		h.ScrapedAt = scraped
		h.Division = causelist.Division(division)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *queries) Insert(ctx context.Context, h causelist.Hearing) error {
	const sql = `
insert into hearings (
  id, list_date, case_number, time, hearing_datetime,
  venue, judge, case_details, hearing_type, additional_information,
  division, source_url, scraped_at
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`
	_, err := r.q.Exec(ctx, sql,
		h.ID, h.ListDate.String(), h.CaseNumber, h.Time, h.HearingDateTime.UTC(),
		h.Venue, h.Judge, h.CaseDetails, h.HearingType, h.AdditionalInfo,
		h.Division.String(), h.SourceURL, h.ScrapedAt.UTC(),
	)
	return err
}

func (r *queries) Update(ctx context.Context, h causelist.Hearing) error {
	const sql = `
update hearings
set hearing_datetime = $2,
    venue = $3,
    judge = $4,
    case_details = $5,
    hearing_type = $6,
    additional_information = $7,
    source_url = $8,
    scraped_at = $9
where id = $1
`
	_, err := r.q.Exec(ctx, sql,
		h.ID, h.HearingDateTime.UTC(),
		h.Venue, h.Judge, h.CaseDetails, h.HearingType, h.AdditionalInfo,
		h.SourceURL, h.ScrapedAt.UTC(),
	)
	return err
}

func (r *queries) Delete(ctx context.Context, id string) error {
	_, err := r.q.Exec(ctx, "delete from hearings where id = $1", id)
	return err
}
