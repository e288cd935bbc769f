package listsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"cacdarchive/internal/core/causelist"
	"cacdarchive/internal/modkit/repokit"
)

// memRepo is an in-memory Repo that applies writes at once; txStub below
// restores its snapshot when the sync fails, mimicking a rollback
type memRepo struct {
	rows map[string]causelist.Hearing // by id

	failInsert bool
	inserted   int
	updated    int
	deleted    int
}

func newMemRepo() *memRepo { return &memRepo{rows: map[string]causelist.Hearing{}} }

func (m *memRepo) ListByDate(_ context.Context, date causelist.ListDate) ([]causelist.Hearing, error) {
	var out []causelist.Hearing
	for _, h := range m.rows {
		if h.ListDate == date {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *memRepo) Insert(_ context.Context, h causelist.Hearing) error {
	if m.failInsert {
		return errors.New("insert refused")
	}
	m.rows[h.ID] = h
	m.inserted++
	return nil
}

func (m *memRepo) Update(_ context.Context, h causelist.Hearing) error {
	prev, ok := m.rows[h.ID]
	if !ok {
		return errors.New("update of unknown id")
	}
	h.ListDate, h.CaseNumber, h.Time = prev.ListDate, prev.CaseNumber, prev.Time
	m.rows[h.ID] = h
	m.updated++
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.rows[id]; !ok {
		return errors.New("delete of unknown id")
	}
	delete(m.rows, id)
	m.deleted++
	return nil
}

// txStub satisfies TxRunner; on error from fn it restores the repo snapshot
// so tests can assert rollback behavior
type txStub struct {
	repo *memRepo
}

func (t *txStub) Exec(context.Context, string, ...any) (repokit.CommandTag, error) {
	return nil, errors.New("not used")
}

func (t *txStub) Query(context.Context, string, ...any) (repokit.Rows, error) {
	return nil, errors.New("not used")
}

func (t *txStub) QueryRow(context.Context, string, ...any) repokit.Row { return nil }

func (t *txStub) Tx(ctx context.Context, fn func(q repokit.Queryer) error) error {
	snapshot := make(map[string]causelist.Hearing, len(t.repo.rows))
	for k, v := range t.repo.rows {
		snapshot[k] = v
	}
	if err := fn(nil); err != nil {
		t.repo.rows = snapshot
		return err
	}
	return nil
}

type memBinder struct{ repo *memRepo }

func (b memBinder) Bind(repokit.Queryer) Repo { return b.repo }

func newSvc(repo *memRepo) *Svc {
	n := 0
	s := New(&txStub{repo: repo}, memBinder{repo: repo})
	s.newID = func() string { n++; return string(rune('a' + n - 1)) }
	return s
}

var date, _ = causelist.ParseListDate("2025-06-02")
var otherDate, _ = causelist.ParseListDate("2025-06-03")

func hearing(caseNum, timeStr, venue, judge string) causelist.Hearing {
	ht, err := causelist.ParseHearingTime(timeStr)
	if err != nil {
		panic(err)
	}
	return causelist.Hearing{
		ListDate:        date,
		CaseNumber:      caseNum,
		Time:            timeStr,
		HearingDateTime: causelist.Combine(date, ht),
		Venue:           venue,
		Judge:           judge,
		Division:        causelist.DivisionCriminal,
		ScrapedAt:       time.Now(),
	}
}

func TestSync_FirstTimeIngest(t *testing.T) {
	repo := newMemRepo()
	svc := newSvc(repo)

	in := []causelist.Hearing{
		hearing("202301234 A 1", "10am", "Court 5", "Smith J"),
		hearing("202301235 A 2", "10:30am", "Court 5", "Smith J"),
		hearing("202301236 A 3", "2pm", "Court 6", "Jones J"),
	}

	res, err := svc.Sync(context.Background(), date, in)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res != (Result{Added: 3}) {
		t.Fatalf("result = %+v, want added=3", res)
	}
	stored, _ := repo.ListByDate(context.Background(), date)
	if len(stored) != 3 {
		t.Fatalf("stored = %d rows, want 3", len(stored))
	}
}

func TestSync_DedupLastOccurrenceWins(t *testing.T) {
	repo := newMemRepo()
	svc := newSvc(repo)

	in := []causelist.Hearing{
		hearing("202301234 A 1", "10am", "Court 5", "Smith J"),
		hearing("202301234 A 1", "10am", "Court 9", "Brown J"), // same key, new content
	}

	res, err := svc.Sync(context.Background(), date, in)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res != (Result{Added: 1}) {
		t.Fatalf("result = %+v, want added=1", res)
	}
	stored, _ := repo.ListByDate(context.Background(), date)
	if stored[0].Venue != "Court 9" || stored[0].Judge != "Brown J" {
		t.Fatalf("last occurrence should win, got %+v", stored[0])
	}
}

func TestSync_UpdateOnContentChange(t *testing.T) {
	repo := newMemRepo()
	svc := newSvc(repo)

	ctx := context.Background()
	if _, err := svc.Sync(ctx, date, []causelist.Hearing{
		hearing("202301234 A 1", "10am", "Court 5", "Jones J"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.Sync(ctx, date, []causelist.Hearing{
		hearing("202301234 A 1", "10am", "Court 5", "Smith J"),
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res != (Result{Updated: 1}) {
		t.Fatalf("result = %+v, want updated=1", res)
	}
	stored, _ := repo.ListByDate(ctx, date)
	if stored[0].Judge != "Smith J" {
		t.Fatalf("judge not updated: %+v", stored[0])
	}
}

func TestSync_NoChangeMeansNoWrites(t *testing.T) {
	repo := newMemRepo()
	svc := newSvc(repo)

	ctx := context.Background()
	in := []causelist.Hearing{hearing("202301234 A 1", "10am", "Court 5", "Smith J")}
	if _, err := svc.Sync(ctx, date, in); err != nil {
		t.Fatalf("seed: %v", err)
	}
	repo.inserted, repo.updated, repo.deleted = 0, 0, 0

	// same content with different surrounding whitespace
	in2 := []causelist.Hearing{hearing("202301234 A 1", "10am", " Court 5 ", "Smith J")}
	res, err := svc.Sync(ctx, date, in2)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res != (Result{}) {
		t.Fatalf("result = %+v, want all zero", res)
	}
	if repo.inserted+repo.updated+repo.deleted != 0 {
		t.Fatalf("no writes expected, got i=%d u=%d d=%d", repo.inserted, repo.updated, repo.deleted)
	}
}

func TestSync_DeletesVanishedRows(t *testing.T) {
	repo := newMemRepo()
	svc := newSvc(repo)

	ctx := context.Background()
	if _, err := svc.Sync(ctx, date, []causelist.Hearing{
		hearing("202301234 A 1", "10am", "Court 5", "Smith J"),
		hearing("202301235 A 2", "11am", "Court 6", "Jones J"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := svc.Sync(ctx, date, []causelist.Hearing{
		hearing("202301234 A 1", "10am", "Court 5", "Smith J"),
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res != (Result{Deleted: 1}) {
		t.Fatalf("result = %+v, want deleted=1", res)
	}
	stored, _ := repo.ListByDate(ctx, date)
	if len(stored) != 1 || stored[0].CaseNumber != "202301234 A 1" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestSync_OtherDatesUntouched(t *testing.T) {
	repo := newMemRepo()
	svc := newSvc(repo)

	ctx := context.Background()
	other := hearing("209999999 Z 9", "9am", "Court 1", "Lee J")
	other.ListDate = otherDate
	other.ID = "keep"
	repo.rows["keep"] = other

	if _, err := svc.Sync(ctx, date, nil); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, ok := repo.rows["keep"]; !ok {
		t.Fatalf("rows for other dates must never mutate")
	}
}

func TestSync_RowsForWrongDateIgnored(t *testing.T) {
	repo := newMemRepo()
	svc := newSvc(repo)

	stray := hearing("202301234 A 1", "10am", "Court 5", "Smith J")
	stray.ListDate = otherDate

	res, err := svc.Sync(context.Background(), date, []causelist.Hearing{stray})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res != (Result{}) {
		t.Fatalf("result = %+v, want zero", res)
	}
}

func TestSync_ErrorRollsBack(t *testing.T) {
	repo := newMemRepo()
	svc := newSvc(repo)

	ctx := context.Background()
	if _, err := svc.Sync(ctx, date, []causelist.Hearing{
		hearing("202301234 A 1", "10am", "Court 5", "Smith J"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	repo.failInsert = true
	_, err := svc.Sync(ctx, date, []causelist.Hearing{
		hearing("202301234 A 1", "10am", "Court 5", "Smith J"),
		hearing("202301299 A 9", "3pm", "Court 2", "New J"),
	})
	if err == nil {
		t.Fatalf("expected insert failure to surface")
	}
	stored, _ := repo.ListByDate(ctx, date)
	if len(stored) != 1 {
		t.Fatalf("failed sync must leave the date unchanged, got %d rows", len(stored))
	}
}
