// Package users manages account lifecycle for the admin CLI and the API
// boundary. Status transitions go through the audit-logging path exclusively;
// there is no generic update that can touch status
package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cacdarchive/internal/modkit/repokit"
	perr "cacdarchive/internal/platform/errors"
	"cacdarchive/internal/platform/logger"
)

// Status names as stored in account_statuses
const (
	StatusPending     = "pending"
	StatusActive      = "active"
	StatusDeactivated = "deactivated"
)

// User is an account row
type User struct {
	ID                 string
	Email              string
	DisplayName        string
	Status             string
	EmailNotifications bool
	CreatedAt          time.Time
	DeletedAt          *time.Time
}

// StatusChange is one append-only audit entry
type StatusChange struct {
	UserID    string
	From      string
	To        string
	Notes     string
	ChangedAt time.Time
}

// Repo is the persistence surface for accounts
type Repo interface {
	Insert(ctx context.Context, u User, passwordHash string) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, includeDeleted bool) ([]User, error)
	// SetStatus flips the account status and appends the audit entry in the
	// same transaction scope
	SetStatus(ctx context.Context, change StatusChange) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	History(ctx context.Context, userID string) ([]StatusChange, error)
}

// Svc implements account workflows
type Svc struct {
	db     repokit.TxRunner
	binder repokit.Binder[Repo]
	log    logger.Logger
	now    func() time.Time
	newID  func() string
}

// New constructs the users service
func New(db repokit.TxRunner, binder repokit.Binder[Repo]) *Svc {
	if db == nil {
		panic("users.Svc requires a non nil TxRunner")
	}
	if binder == nil {
		panic("users.Svc requires a non nil Repo binder")
	}
	return &Svc{
		db:     db,
		binder: binder,
		log:    *logger.Named("users"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Create registers a pending account
func (s *Svc) Create(ctx context.Context, email, displayName, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, perr.WithField(perr.InvalidArgf("a valid email is required"), "email")
	}
	if len(password) < 8 {
		return User{}, perr.WithField(perr.InvalidArgf("password must be at least 8 characters"), "password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, perr.Wrap(err, perr.ErrorCodeUnknown, "password hash failed")
	}

	u := User{
		ID:                 s.newID(),
		Email:              email,
		DisplayName:        strings.TrimSpace(displayName),
		Status:             StatusPending,
		EmailNotifications: true,
		CreatedAt:          s.now(),
	}
	if err := s.binder.Bind(s.db).Insert(ctx, u, string(hash)); err != nil {
		if perr.IsDuplicateKey(err) {
			return User{}, perr.DuplicateKeyf("an account with email %s already exists", email)
		}
		return User{}, err
	}
	return u, nil
}

// Approve transitions pending to active, appending the audit entry
func (s *Svc) Approve(ctx context.Context, id, notes string) (User, error) {
	return s.transition(ctx, id, StatusActive, notes, StatusPending)
}

// Deactivate transitions any live status to deactivated
func (s *Svc) Deactivate(ctx context.Context, id, notes string) (User, error) {
	return s.transition(ctx, id, StatusDeactivated, notes, StatusPending, StatusActive)
}

// transition performs the audited status flip inside one transaction
func (s *Svc) transition(ctx context.Context, id, to, notes string, validFrom ...string) (User, error) {
	var out User
	err := s.db.Tx(ctx, func(q repokit.Queryer) error {
		r := s.binder.Bind(q)
		u, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if u.DeletedAt != nil {
			return perr.Conflictf("account is deleted")
		}
		allowed := false
		for _, from := range validFrom {
			if u.Status == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return perr.Conflictf("cannot move account from %s to %s", u.Status, to)
		}
		change := StatusChange{
			UserID:    id,
			From:      u.Status,
			To:        to,
			Notes:     strings.TrimSpace(notes),
			ChangedAt: s.now(),
		}
		if err := r.SetStatus(ctx, change); err != nil {
			return err
		}
		u.Status = to
		out = u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.log.Info().Str("user_id", id).Str("status", to).Msg("account status changed")
	return out, nil
}

// Get returns one account
func (s *Svc) Get(ctx context.Context, id string) (User, error) {
	return s.binder.Bind(s.db).GetByID(ctx, id)
}

// GetByEmail returns one account by email
func (s *Svc) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.binder.Bind(s.db).GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// List returns accounts, excluding soft-deleted ones
func (s *Svc) List(ctx context.Context) ([]User, error) {
	return s.binder.Bind(s.db).List(ctx, false)
}

// Delete soft-deletes an account via the timestamp sentinel
func (s *Svc) Delete(ctx context.Context, id string) error {
	return s.binder.Bind(s.db).SoftDelete(ctx, id, s.now())
}

// History returns the append-only status trail for an account
func (s *Svc) History(ctx context.Context, id string) ([]StatusChange, error) {
	return s.binder.Bind(s.db).History(ctx, id)
}
