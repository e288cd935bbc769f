package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cacdarchive/internal/core/causelist"
	"cacdarchive/internal/modkit/repokit"
	"cacdarchive/internal/services/alerts"
)

type memRepo struct {
	subs     []Subscription
	hearings []causelist.Hearing
	sent     map[string][]time.Time // userID -> sent_at
	inserts  int

	matchErr error
}

func newMemRepo() *memRepo { return &memRepo{sent: map[string][]time.Time{}} }

func (m *memRepo) EnabledSubscriptions(context.Context) ([]Subscription, error) {
	return m.subs, nil
}

func (m *memRepo) NotificationsSince(_ context.Context, userID string, since time.Time) (int, error) {
	n := 0
	for _, at := range m.sent[userID] {
		if at.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) MatchHearings(
	_ context.Context, searchText string, dates []causelist.ListDate, limit int,
) ([]causelist.Hearing, error) {
	if m.matchErr != nil {
		return nil, m.matchErr
	}
	inDates := func(d causelist.ListDate) bool {
		for _, want := range dates {
			if d == want {
				return true
			}
		}
		return false
	}
	var out []causelist.Hearing
	for _, h := range m.hearings {
		if !inDates(h.ListDate) {
			continue
		}
		blob := strings.ToLower(strings.Join([]string{
			h.CaseDetails, h.HearingType, h.AdditionalInfo, h.Judge, h.Venue,
		}, " "))
		if strings.Contains(blob, strings.ToLower(searchText)) ||
			strings.Contains(h.CaseNumber, searchText) {
			out = append(out, h)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) InsertNotification(
	_ context.Context, _ string, userID string, sentAt time.Time, _, _ int,
) error {
	m.sent[userID] = append(m.sent[userID], sentAt)
	m.inserts++
	return nil
}

type memBinder struct{ repo *memRepo }

func (b memBinder) Bind(repokit.Queryer) Repo { return b.repo }

type noTx struct{}

func (noTx) Exec(context.Context, string, ...any) (repokit.CommandTag, error) {
	return nil, errors.New("not used")
}
func (noTx) Query(context.Context, string, ...any) (repokit.Rows, error) {
	return nil, errors.New("not used")
}
func (noTx) QueryRow(context.Context, string, ...any) repokit.Row { return nil }
func (noTx) Tx(ctx context.Context, fn func(q repokit.Queryer) error) error {
	return fn(nil)
}

var now = time.Date(2025, 6, 2, 12, 0, 0, 0, causelist.Location())

func fixedMatcher(repo *memRepo, sink alerts.Sink, opts Options) *Matcher {
	m := New(noTx{}, memBinder{repo: repo}, sink, opts)
	m.now = func() time.Time { return now }
	n := 0
	m.newID = func() string { n++; return string(rune('0' + n)) }
	return m
}

func todayHearing(caseNum, details string) causelist.Hearing {
	ht, _ := causelist.ParseHearingTime("10:30am")
	d := causelist.Today(now)
	return causelist.Hearing{
		ListDate:        d,
		CaseNumber:      caseNum,
		Time:            "10:30am",
		HearingDateTime: causelist.Combine(d, ht),
		Venue:           "Court 5",
		Judge:           "Smith J",
		CaseDetails:     details,
		Division:        causelist.DivisionCriminal,
	}
}

func TestRun_DispatchesOneDigestPerUser(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.subs = []Subscription{
		{SearchID: "s1", SearchText: "fraud", UserID: "u1", UserEmail: "a@example.com", UserName: "A"},
		{SearchID: "s2", SearchText: "murder", UserID: "u1", UserEmail: "a@example.com", UserName: "A"},
	}
	repo.hearings = []causelist.Hearing{
		todayHearing("202301234 A 1", "R v Doe (fraud)"),
		todayHearing("202301235 A 2", "R v Roe (murder appeal)"),
	}

	rec := &alerts.Recorder{}
	m := fixedMatcher(repo, rec, Options{MaxPerWindow: 5, WindowHours: 24})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.Digests) != 1 {
		t.Fatalf("digests = %d, want 1", len(rec.Digests))
	}
	d := rec.Digests[0]
	if d.UserEmail != "a@example.com" || len(d.Searches) != 2 {
		t.Fatalf("digest = %+v", d)
	}
	if repo.inserts != 1 {
		t.Fatalf("notification log inserts = %d, want 1", repo.inserts)
	}
}

func TestRun_EmptySearchesDropped(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.subs = []Subscription{
		{SearchID: "s1", SearchText: "fraud", UserID: "u1", UserEmail: "a@example.com"},
		{SearchID: "s2", SearchText: "nothing-matches-this", UserID: "u1", UserEmail: "a@example.com"},
	}
	repo.hearings = []causelist.Hearing{todayHearing("202301234 A 1", "R v Doe (fraud)")}

	rec := &alerts.Recorder{}
	m := fixedMatcher(repo, rec, Options{})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.Digests) != 1 || len(rec.Digests[0].Searches) != 1 {
		t.Fatalf("expected a single-section digest, got %+v", rec.Digests)
	}
}

func TestRun_UserSkippedWhenAllSearchesEmpty(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.subs = []Subscription{
		{SearchID: "s1", SearchText: "zebra", UserID: "u1", UserEmail: "a@example.com"},
	}

	rec := &alerts.Recorder{}
	m := fixedMatcher(repo, rec, Options{})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.Digests) != 0 || repo.inserts != 0 {
		t.Fatalf("no digest expected, got %d digests %d inserts", len(rec.Digests), repo.inserts)
	}
}

func TestRun_RateLimitSkipsUser(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.subs = []Subscription{
		{SearchID: "s1", SearchText: "fraud", UserID: "u1", UserEmail: "a@example.com"},
	}
	repo.hearings = []causelist.Hearing{todayHearing("202301234 A 1", "R v Doe (fraud)")}
	// two digests already inside the window
	repo.sent["u1"] = []time.Time{now.Add(-time.Hour), now.Add(-2 * time.Hour)}

	rec := &alerts.Recorder{}
	m := fixedMatcher(repo, rec, Options{MaxPerWindow: 2, WindowHours: 24})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.Digests) != 0 {
		t.Fatalf("user over limit must be skipped, got %d digests", len(rec.Digests))
	}
}

func TestRun_OldNotificationsOutsideWindowDoNotCount(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.subs = []Subscription{
		{SearchID: "s1", SearchText: "fraud", UserID: "u1", UserEmail: "a@example.com"},
	}
	repo.hearings = []causelist.Hearing{todayHearing("202301234 A 1", "R v Doe (fraud)")}
	repo.sent["u1"] = []time.Time{now.Add(-25 * time.Hour), now.Add(-30 * time.Hour)}

	rec := &alerts.Recorder{}
	m := fixedMatcher(repo, rec, Options{MaxPerWindow: 2, WindowHours: 24})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.Digests) != 1 {
		t.Fatalf("stale notifications must not block, got %d digests", len(rec.Digests))
	}
}

func TestRun_DispatchFailureSwallowedAndNotLogged(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	repo.subs = []Subscription{
		{SearchID: "s1", SearchText: "fraud", UserID: "u1", UserEmail: "a@example.com"},
		{SearchID: "s2", SearchText: "fraud", UserID: "u2", UserEmail: "b@example.com"},
	}
	repo.hearings = []causelist.Hearing{todayHearing("202301234 A 1", "R v Doe (fraud)")}

	rec := &alerts.Recorder{FailWith: errors.New("smtp down")}
	m := fixedMatcher(repo, rec, Options{})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("dispatch failures must not fail the run: %v", err)
	}
	// both dispatch attempts happened but neither was recorded as sent
	if len(rec.Digests) != 2 {
		t.Fatalf("attempts = %d, want 2", len(rec.Digests))
	}
	if repo.inserts != 0 {
		t.Fatalf("failed dispatches must not append to the notification log")
	}
}

func TestRun_NoSubscriptionsIsANoop(t *testing.T) {
	t.Parallel()

	rec := &alerts.Recorder{}
	m := fixedMatcher(newMemRepo(), rec, Options{})
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.Digests) != 0 {
		t.Fatalf("unexpected digests")
	}
}
