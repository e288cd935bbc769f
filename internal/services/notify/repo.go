package notify

import (
	"context"
	"time"

	"cacdarchive/internal/core/causelist"
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

func (r *queries) EnabledSubscriptions(ctx context.Context) ([]Subscription, error) {
	const sql = `
select ss.id, ss.search_text, u.id, u.email, coalesce(u.display_name, '')
from saved_searches ss
join users u on u.id = ss.user_id
join account_statuses ast on ast.id = u.status_id
where ss.enabled
and ast.name = 'active'
and u.deleted_at is null
and u.email_notifications_enabled
order by u.id, ss.created_at
`
	rows, err := r.q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.SearchID, &s.SearchText, &s.UserID, &s.UserEmail, &s.UserName); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *queries) NotificationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	const sql = `
select count(1) from search_notifications
where user_id = $1 and sent_at > $2
`
	var n int
	if err := r.q.QueryRow(ctx, sql, userID, since.UTC()).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *queries) MatchHearings(
	ctx context.Context, searchText string, dates []causelist.ListDate, limit int,
) ([]causelist.Hearing, error) {
	dateStrs := make([]string, 0, len(dates))
	for _, d := range dates {
		dateStrs = append(dateStrs, d.String())
	}

	// websearch matching across the indexed text columns, or a raw substring
	// hit on the case number
	const sql = `
select id, list_date::text, case_number, time, hearing_datetime,
       coalesce(venue, ''), coalesce(judge, ''), coalesce(case_details, ''),
       coalesce(hearing_type, ''), coalesce(additional_information, ''),
       division, source_url, scraped_at
from hearings
where list_date = any($1::date[])
and (
  to_tsvector('english',
    coalesce(case_details, '') || ' ' || coalesce(hearing_type, '') || ' ' ||
    coalesce(additional_information, '') || ' ' || coalesce(judge, '') || ' ' ||
    coalesce(venue, '')
  ) @@ websearch_to_tsquery('english', $2)
  or case_number like '%' || $2 || '%'
)
order by list_date asc, hearing_datetime asc
limit $3
`
	rows, err := r.q.Query(ctx, sql, dateStrs, searchText, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []causelist.Hearing
	for rows.Next() {
		var h causelist.Hearing
		var listDate, division string
		if err := rows.Scan(
			&h.ID, &listDate, &h.CaseNumber, &h.Time, &h.HearingDateTime,
			&h.Venue, &h.Judge, &h.CaseDetails, &h.HearingType, &h.AdditionalInfo,
			&division, &h.SourceURL, &h.ScrapedAt,
		); err != nil {
			return nil, err
		}
		d, err := causelist.ParseListDate(listDate)
		if err != nil {
			return nil, err
		}
		h.ListDate = d
		h.Division = causelist.Division(division)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *queries) InsertNotification(
	ctx context.Context, id, userID string, sentAt time.Time, matchCount, searchesMatched int,
) error {
	const sql = `
insert into search_notifications (id, user_id, sent_at, match_count, searches_matched)
values ($1, $2, $3, $4, $5)
`
	_, err := r.q.Exec(ctx, sql, id, userID, sentAt.UTC(), matchCount, searchesMatched)
	return err
}
