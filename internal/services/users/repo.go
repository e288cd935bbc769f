package users

import (
	"context"
	"time"

	"cacdarchive/internal/modkit/repokit"
	perr "cacdarchive/internal/platform/errors"
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

const userCols = `
u.id, u.email, coalesce(u.display_name, ''), ast.name,
u.email_notifications_enabled, u.created_at, u.deleted_at
`

func (r *queries) Insert(ctx context.Context, u User, passwordHash string) error {
	const sql = `
insert into users (id, email, display_name, password_hash, status_id,
                   email_notifications_enabled, created_at)
values ($1, $2, $3, $4,
        (select id from account_statuses where name = $5), $6, $7)
`
	_, err := r.q.Exec(ctx, sql, u.ID, u.Email, u.DisplayName, passwordHash,
		u.Status, u.EmailNotifications, u.CreatedAt.UTC())
	return err
}

func (r *queries) GetByID(ctx context.Context, id string) (User, error) {
	return r.one(ctx,
		"select "+userCols+" from users u join account_statuses ast on ast.id = u.status_id where u.id = $1",
		id)
}

func (r *queries) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.one(ctx,
		"select "+userCols+" from users u join account_statuses ast on ast.id = u.status_id where u.email = $1",
		email)
}

func (r *queries) one(ctx context.Context, sql string, args ...any) (User, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return User{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return User{}, err
		}
		return User{}, perr.ErrNotFound
	}
	var u User
	if err := scanUser(rows, &u); err != nil {
		return User{}, err
	}
	return u, rows.Err()
}

func (r *queries) List(ctx context.Context, includeDeleted bool) ([]User, error) {
	sql := "select " + userCols + ` from users u
join account_statuses ast on ast.id = u.status_id`
	if !includeDeleted {
		sql += " where u.deleted_at is null"
	}
	sql += " order by u.created_at asc"

	rows, err := r.q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *queries) SetStatus(ctx context.Context, change StatusChange) error {
	tag, err := r.q.Exec(ctx, `
update users
set status_id = (select id from account_statuses where name = $2)
where id = $1 and deleted_at is null
`, change.UserID, change.To)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return perr.ErrNotFound
	}

	_, err = r.q.Exec(ctx, `
insert into user_status_history (user_id, from_status_id, to_status_id, notes, changed_at)
values ($1,
        (select id from account_statuses where name = $2),
        (select id from account_statuses where name = $3),
        $4, $5)
`, change.UserID, change.From, change.To, change.Notes, change.ChangedAt.UTC())
	return err
}

func (r *queries) SoftDelete(ctx context.Context, id string, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		"update users set deleted_at = $2 where id = $1 and deleted_at is null", id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return perr.ErrNotFound
	}
	return nil
}

func (r *queries) History(ctx context.Context, userID string) ([]StatusChange, error) {
	const sql = `
select h.user_id, fs.name, ts.name, coalesce(h.notes, ''), h.changed_at
from user_status_history h
join account_statuses fs on fs.id = h.from_status_id
join account_statuses ts on ts.id = h.to_status_id
where h.user_id = $1
order by h.changed_at asc
`
	rows, err := r.q.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusChange
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.UserID, &c.From, &c.To, &c.Notes, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanUser(rows repokit.Rows, u *User) error {
	return rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Status,
		&u.EmailNotifications, &u.CreatedAt, &u.DeletedAt)
}
