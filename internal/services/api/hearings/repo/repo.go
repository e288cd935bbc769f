// Package repo provides postgres access for the hearings read API
package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cacdarchive/internal/modkit/repokit"
	perr "cacdarchive/internal/platform/errors"
	"cacdarchive/internal/platform/store"
)

// Row is a stored hearing as read by this repo
type Row struct {
	ID              string
	ListDate        string
	CaseNumber      string
	Time            string
	HearingDateTime time.Time
	Venue           string
	Judge           string
	CaseDetails     string
	HearingType     string
	AdditionalInfo  string
	Division        string
	SourceURL       string
	ScrapedAt       time.Time
}

// DateRow is one list date with a hearing count
type DateRow struct {
	Date     string
	Division string
	Count    int
}

// Filters are the sanitized query filters the service hands down
type Filters struct {
	Limit      int
	Offset     int
	Date       string
	DateFrom   string
	DateTo     string
	CaseNumber string
	Division   string
	Search     string
	SortColumn string // already validated against the sortable set
	SortOrder  string // asc or desc
}

// Repo is the minimal persistence surface for the hearings API
type Repo interface {
	List(ctx context.Context, f Filters) ([]Row, int, error)
	Get(ctx context.Context, id string) (Row, error)
	Dates(ctx context.Context, limit int) ([]DateRow, error)
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

const selectCols = `
id, list_date::text, case_number, time, hearing_datetime,
coalesce(venue, ''), coalesce(judge, ''), coalesce(case_details, ''),
coalesce(hearing_type, ''), coalesce(additional_information, ''),
division, source_url, scraped_at
`

// buildWhere assembles the filter clause with bound parameters only
func buildWhere(f Filters) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Date != "" {
		add("list_date = $%d", f.Date)
	}
	if f.DateFrom != "" {
		add("list_date >= $%d", f.DateFrom)
	}
	if f.DateTo != "" {
		add("list_date <= $%d", f.DateTo)
	}
	if f.CaseNumber != "" {
		add("case_number ilike '%%' || $%d || '%%'", f.CaseNumber)
	}
	if f.Division != "" {
		add("division = $%d", f.Division)
	}
	if f.Search != "" {
		add(`to_tsvector('english',
  coalesce(case_details, '') || ' ' || coalesce(hearing_type, '') || ' ' ||
  coalesce(additional_information, '') || ' ' || coalesce(judge, '') || ' ' ||
  coalesce(venue, '')
) @@ websearch_to_tsquery('english', $%d)`, f.Search)
	}

	if len(conds) == 0 {
		return "", args
	}
	return "where " + strings.Join(conds, " and "), args
}

func (r *queries) List(ctx context.Context, f Filters) ([]Row, int, error) {
	where, args := buildWhere(f)

	countSQL := "select count(1) from hearings " + where
	total, err := store.Scalar[int](ctx, r.q, countSQL, args...)
	if err != nil {
		return nil, 0, err
	}

	listSQL := fmt.Sprintf(
		"select %s from hearings %s order by %s %s, id asc limit $%d offset $%d",
		selectCols, where, f.SortColumn, f.SortOrder, len(args)+1, len(args)+2,
	)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.q.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var h Row
		if err := scanRow(rows, &h); err != nil {
			return nil, 0, err
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

func (r *queries) Get(ctx context.Context, id string) (Row, error) {
	sql := "select " + selectCols + " from hearings where id = $1"
	rows, err := r.q.Query(ctx, sql, id)
	if err != nil {
		return Row{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Row{}, err
		}
		return Row{}, perr.ErrNotFound
	}
	var h Row
	if err := scanRow(rows, &h); err != nil {
		return Row{}, err
	}
	return h, rows.Err()
}

func (r *queries) Dates(ctx context.Context, limit int) ([]DateRow, error) {
	const sql = `
select list_date::text, division, count(1)
from hearings
group by list_date, division
order by list_date desc
limit $1
`
	rows, err := r.q.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DateRow
	for rows.Next() {
		var d DateRow
		if err := rows.Scan(&d.Date, &d.Division, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanRow(rows repokit.Rows, h *Row) error {
	return rows.Scan(
		&h.ID, &h.ListDate, &h.CaseNumber, &h.Time, &h.HearingDateTime,
		&h.Venue, &h.Judge, &h.CaseDetails, &h.HearingType, &h.AdditionalInfo,
		&h.Division, &h.SourceURL, &h.ScrapedAt,
	)
}
