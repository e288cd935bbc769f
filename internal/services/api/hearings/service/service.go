// Package service contains the hearings read workflows
package service

import (
	"context"
	"strings"

	"cacdarchive/internal/core/causelist"
	"cacdarchive/internal/modkit/repokit"
	perr "cacdarchive/internal/platform/errors"
	"cacdarchive/internal/services/api/hearings/domain"
	"cacdarchive/internal/services/api/hearings/repo"
)

// Service defines the hearings service contract
type Service interface {
	domain.ServicePort
}

// sortable whitelists the sort keys the API accepts
var sortable = map[string]string{
	"hearing_datetime": "hearing_datetime",
	"case_number":      "case_number",
	"created_at":       "created_at",
}

const (
	maxLimit      = 100
	datesCap      = 100
	defaultSortBy = "hearing_datetime"
)

// Svc implements the hearings service
type Svc struct {
	Repo         repo.Repo
	binder       repokit.Binder[repo.Repo]
	db           repokit.TxRunner
	defaultLimit int
}

// New constructs a hearings service
func New(db repokit.TxRunner, binder repokit.Binder[repo.Repo], defaultLimit int) *Svc {
	if db == nil {
		panic("hearings.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("hearings.Service requires a non nil Repo binder")
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = 20
	}
	return &Svc{Repo: binder.Bind(db), binder: binder, db: db, defaultLimit: defaultLimit}
}

// List returns hearings matching the query with pagination
func (s *Svc) List(ctx context.Context, q domain.Query) (domain.ListResult, error) {
	f, err := s.sanitize(q)
	if err != nil {
		return domain.ListResult{}, err
	}

	rows, total, err := s.Repo.List(ctx, f)
	if err != nil {
		return domain.ListResult{}, err
	}

	out := domain.ListResult{
		Data: make([]domain.Hearing, 0, len(rows)),
		Pagination: domain.Pagination{
			Limit:  f.Limit,
			Offset: f.Offset,
			Total:  total,
		},
	}
	for _, r := range rows {
		out.Data = append(out.Data, toWire(r))
	}
	return out, nil
}

// Get returns a single hearing or a not found error
func (s *Svc) Get(ctx context.Context, id string) (domain.Hearing, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Hearing{}, perr.InvalidArgf("hearing id is required")
	}
	r, err := s.Repo.Get(ctx, id)
	if err != nil {
		return domain.Hearing{}, err
	}
	return toWire(r), nil
}

// Dates returns the distinct list dates with counts, newest first
func (s *Svc) Dates(ctx context.Context) ([]domain.DateCount, error) {
	rows, err := s.Repo.Dates(ctx, datesCap)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DateCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.DateCount{Date: r.Date, Division: r.Division, Count: r.Count})
	}
	return out, nil
}

// sanitize validates filters and resolves sort and paging defaults
func (s *Svc) sanitize(q domain.Query) (repo.Filters, error) {
	f := repo.Filters{
		Limit:      q.Limit,
		Offset:     q.Offset,
		CaseNumber: strings.TrimSpace(q.CaseNumber),
		Search:     strings.TrimSpace(q.Search),
	}

	if f.Limit <= 0 {
		f.Limit = s.defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	for _, d := range []struct {
		in  string
		out *string
	}{
		{q.Date, &f.Date}, {q.DateFrom, &f.DateFrom}, {q.DateTo, &f.DateTo},
	} {
		if strings.TrimSpace(d.in) == "" {
			continue
		}
		parsed, err := causelist.ParseListDate(d.in)
		if err != nil {
			return repo.Filters{}, perr.InvalidArgf("bad date %q, want YYYY-MM-DD", d.in)
		}
		*d.out = parsed.String()
	}

	if strings.TrimSpace(q.Division) != "" {
		div, err := causelist.ParseDivision(q.Division)
		if err != nil {
			return repo.Filters{}, perr.InvalidArgf("unknown division %q", q.Division)
		}
		f.Division = div.String()
	}

	sortBy := strings.TrimSpace(q.SortBy)
	if sortBy == "" {
		sortBy = defaultSortBy
	}
	col, ok := sortable[sortBy]
	if !ok {
		return repo.Filters{}, perr.InvalidArgf("unsortable column %q", q.SortBy)
	}
	f.SortColumn = col

	switch strings.ToLower(strings.TrimSpace(q.SortOrder)) {
	case "", "asc":
		f.SortOrder = "asc"
	case "desc":
		f.SortOrder = "desc"
	default:
		return repo.Filters{}, perr.InvalidArgf("sort order must be asc or desc")
	}

	return f, nil
}

func toWire(r repo.Row) domain.Hearing {
	return domain.Hearing{
		ID:              r.ID,
		ListDate:        r.ListDate,
		CaseNumber:      r.CaseNumber,
		Time:            r.Time,
		HearingDateTime: r.HearingDateTime,
		Venue:           r.Venue,
		Judge:           r.Judge,
		CaseDetails:     r.CaseDetails,
		HearingType:     r.HearingType,
		AdditionalInfo:  r.AdditionalInfo,
		Division:        r.Division,
		SourceURL:       r.SourceURL,
		ScrapedAt:       r.ScrapedAt,
	}
}
