package scrapes

import (
	"context"
	"time"

	"cacdarchive/internal/modkit/repokit"
)

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

func (r *queries) InsertStart(ctx context.Context, run Run) error {
	const sql = `
insert into scrape_runs (id, kind, status, summary_url, started_at)
values ($1, $2, $3, $4, $5)
`
	_, err := r.q.Exec(ctx, sql, run.ID, string(run.Kind), run.Status, run.SummaryURL, run.StartedAt.UTC())
	return err
}

func (r *queries) MarkComplete(
	ctx context.Context, id string, completedAt time.Time, durationMs int64, stats Stats,
) error {
	const sql = `
update scrape_runs
set completed_at = $2,
    duration_ms = $3,
    links_discovered = $4,
    links_processed = $5,
    records_added = $6,
    records_updated = $7,
    records_deleted = $8,
    summary_page_status = $9
where id = $1
`
	_, err := r.q.Exec(ctx, sql, id, completedAt.UTC(), durationMs,
		stats.LinksDiscovered, stats.LinksProcessed,
		stats.RecordsAdded, stats.RecordsUpdated, stats.RecordsDeleted,
		stats.SummaryPageStatus,
	)
	return err
}

func (r *queries) MarkFailed(
	ctx context.Context, id string, completedAt time.Time, durationMs int64, message, details string,
) error {
	const sql = `
update scrape_runs
set status = 'failed',
    completed_at = $2,
    duration_ms = $3,
    error_message = $4,
    error_details = $5
where id = $1
`
	_, err := r.q.Exec(ctx, sql, id, completedAt.UTC(), durationMs, message, details)
	return err
}

func (r *queries) LastSuccessfulStartedAt(ctx context.Context) (time.Time, bool, error) {
	const sql = `
select started_at
from scrape_runs
where status = 'success' and completed_at is not null
order by started_at desc
limit 1
`
	rows, err := r.q.Query(ctx, sql)
	if err != nil {
		return time.Time{}, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return time.Time{}, false, rows.Err()
	}
	var at time.Time
	if err := rows.Scan(&at); err != nil {
		return time.Time{}, false, err
	}
	return at, true, rows.Err()
}

func (r *queries) Recent(ctx context.Context, limit int) ([]Run, error) {
	const sql = `
select id, kind, status, summary_url, started_at, completed_at, duration_ms,
       coalesce(links_discovered, 0), coalesce(links_processed, 0),
       coalesce(records_added, 0), coalesce(records_updated, 0), coalesce(records_deleted, 0),
       coalesce(error_message, ''), coalesce(error_details, '')
from scrape_runs
order by started_at desc
limit $1
`
	rows, err := r.q.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var kind string
		if err := rows.Scan(
			&run.ID, &kind, &run.Status, &run.SummaryURL, &run.StartedAt,
			&run.CompletedAt, &run.DurationMs,
			&run.LinksDiscovered, &run.LinksProcessed,
			&run.RecordsAdded, &run.RecordsUpdated, &run.RecordsDeleted,
			&run.ErrorMessage, &run.ErrorDetails,
		); err != nil {
			return nil, err
		}
		run.Kind = Kind(kind)
		out = append(out, run)
	}
	return out, rows.Err()
}
