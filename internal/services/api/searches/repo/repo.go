// Package repo provides postgres access for saved searches
package repo

import (
	"context"
	"time"

	"cacdarchive/internal/modkit/repokit"
	perr "cacdarchive/internal/platform/errors"
	"cacdarchive/internal/platform/store"
)

// Row is a stored saved search
type Row struct {
	ID         string
	UserID     string
	SearchText string
	Enabled    bool
	CreatedAt  time.Time
}

// Repo is the minimal persistence surface for saved searches
type Repo interface {
	ListForUser(ctx context.Context, userID string) ([]Row, error)
	CountForUser(ctx context.Context, userID string) (int, error)
	Insert(ctx context.Context, row Row) error
	Get(ctx context.Context, userID, id string) (Row, error)
	SetEnabled(ctx context.Context, userID, id string, enabled bool) error
	Delete(ctx context.Context, userID, id string) error
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

func (r *queries) ListForUser(ctx context.Context, userID string) ([]Row, error) {
	const sql = `
select id, user_id, search_text, enabled, created_at
from saved_searches
where user_id = $1
order by created_at asc
`
	rows, err := r.q.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var s Row
		if err := rows.Scan(&s.ID, &s.UserID, &s.SearchText, &s.Enabled, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *queries) CountForUser(ctx context.Context, userID string) (int, error) {
	return store.Scalar[int](ctx, r.q,
		"select count(1) from saved_searches where user_id = $1", userID)
}

func (r *queries) Insert(ctx context.Context, row Row) error {
	const sql = `
insert into saved_searches (id, user_id, search_text, enabled, created_at)
values ($1, $2, $3, $4, $5)
`
	_, err := r.q.Exec(ctx, sql, row.ID, row.UserID, row.SearchText, row.Enabled, row.CreatedAt.UTC())
	return err
}

func (r *queries) Get(ctx context.Context, userID, id string) (Row, error) {
	const sql = `
select id, user_id, search_text, enabled, created_at
from saved_searches
where user_id = $1 and id = $2
`
	rows, err := r.q.Query(ctx, sql, userID, id)
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
	var s Row
	if err := rows.Scan(&s.ID, &s.UserID, &s.SearchText, &s.Enabled, &s.CreatedAt); err != nil {
		return Row{}, err
	}
	return s, rows.Err()
}

func (r *queries) SetEnabled(ctx context.Context, userID, id string, enabled bool) error {
	tag, err := r.q.Exec(ctx,
		"update saved_searches set enabled = $3 where user_id = $1 and id = $2",
		userID, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return perr.ErrNotFound
	}
	return nil
}

func (r *queries) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.q.Exec(ctx,
		"delete from saved_searches where user_id = $1 and id = $2", userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return perr.ErrNotFound
	}
	return nil
}
