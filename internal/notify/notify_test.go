package notify

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tourneysync/tourney/internal/store"
	"github.com/tourneysync/tourney/internal/tournament"
)

// recorder collects delivered notifications.
type recorder struct {
	mu   sync.Mutex
	got  []Notification
	fail error
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

var now = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func startingIn(d time.Duration, status tournament.Status, registrationOpen bool) tournament.Tournament {
	return tournament.Tournament{
		ID:                 tournament.Saved("t1"),
		Name:               "Cup",
		StartDate:          now.Add(d),
		EndDate:            now.Add(d + 4*time.Hour),
		IsRegistrationOpen: registrationOpen,
		Status:             status,
	}
}

func TestEvaluate_RegistrationWindows(t *testing.T) {
	tests := []struct {
		name       string
		until      time.Duration
		wantWindow string
		wantBody   string
	}{
		{"7 days", 167*time.Hour + 30*time.Minute, "registration-7d", "Registration for Cup closes in 7 days! Tournament starts on Sep 08, 2026 at 11:30"},
		{"168 hours exactly", 168 * time.Hour, "registration-7d", "closes in 7 days"},
		{"3 days", 72 * time.Hour, "registration-3d", "Only 3 days left to register for Cup!"},
		{"1 day", 23*time.Hour + 59*time.Minute, "registration-24h", "Last day to register for Cup! Tournament starts tomorrow at 11:59"},
		{"12 hours", 11 * time.Hour, "registration-12h", "Only 12 hours left to register for Cup!"},
		{"last hour", 30 * time.Minute, "registration-1h", "Final call! Registration for Cup closes in less than an hour!"},
		{"just started", -30 * time.Minute, "registration-1h", "Final call!"},
		{"between windows", 100 * time.Hour, "", ""},
		{"far future", 200 * time.Hour, "", ""},
		{"long started", -2 * time.Hour, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// IN_PROGRESS keeps the start reminders out of the way.
			tr := startingIn(tt.until, tournament.StatusInProgress, true)
			got := Evaluate(tr, now, time.UTC)

			if tt.wantWindow == "" {
				if len(got) != 0 {
					t.Fatalf("expected no notifications, got %+v", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 notification, got %d", len(got))
			}
			n := got[0]
			if n.Category != CategoryRegistration || n.Window != tt.wantWindow {
				t.Errorf("got %s/%s, want %s/%s", n.Category, n.Window, CategoryRegistration, tt.wantWindow)
			}
			if !strings.Contains(n.Body, tt.wantBody) {
				t.Errorf("body %q does not contain %q", n.Body, tt.wantBody)
			}
			if n.Title != "Registration Reminder: Cup" {
				t.Errorf("unexpected title %q", n.Title)
			}
			if n.ID != "registration_reminders:t1" {
				t.Errorf("unexpected id %q", n.ID)
			}
		})
	}
}

func TestEvaluate_RegistrationClosed(t *testing.T) {
	tr := startingIn(72*time.Hour, tournament.StatusInProgress, false)
	if got := Evaluate(tr, now, time.UTC); len(got) != 0 {
		t.Errorf("expected nothing for closed registration, got %+v", got)
	}
}

func TestEvaluate_StartWindows(t *testing.T) {
	tests := []struct {
		name       string
		until      time.Duration
		wantWindow string
		wantBody   string
	}{
		{"tomorrow", 24 * time.Hour, "start-24h", "Your tournament Cup starts tomorrow at 12:00"},
		{"two hours", 90 * time.Minute, "start-2h", "Get ready! Cup starts in 2 hours"},
		{"thirty minutes", 30 * time.Minute, "start-30m", "Almost time! Cup starts in 30 minutes"},
		{"twenty nine minutes", 29 * time.Minute, "start-30m", "starts in 30 minutes"},
		{"thirty one minutes", 31 * time.Minute, "start-30m", "starts in 30 minutes"},
		{"now", 0, "start-now", "Cup is starting now!"},
		{"four minutes late", -4 * time.Minute, "start-now", "is starting now!"},
		{"ten minutes", 10 * time.Minute, "", ""},
		{"thirty two minutes", 32 * time.Minute, "", ""},
		{"six minutes late", -6 * time.Minute, "", ""},
		{"five hours", 5 * time.Hour, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := startingIn(tt.until, tournament.StatusUpcoming, false)
			got := Evaluate(tr, now, time.UTC)

			if tt.wantWindow == "" {
				if len(got) != 0 {
					t.Fatalf("expected no notifications, got %+v", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("expected 1 notification, got %d", len(got))
			}
			if got[0].Window != tt.wantWindow || got[0].Category != CategoryStart {
				t.Errorf("got %s/%s, want %s/%s", got[0].Category, got[0].Window, CategoryStart, tt.wantWindow)
			}
			if !strings.Contains(got[0].Body, tt.wantBody) {
				t.Errorf("body %q does not contain %q", got[0].Body, tt.wantBody)
			}
		})
	}
}

func TestEvaluate_StartRequiresUpcoming(t *testing.T) {
	tr := startingIn(30*time.Minute, tournament.StatusInProgress, false)
	if got := Evaluate(tr, now, time.UTC); len(got) != 0 {
		t.Errorf("expected no start reminder for stored IN_PROGRESS, got %+v", got)
	}
}

func TestEvaluate_RegistrationAndStartTogether(t *testing.T) {
	tr := startingIn(24*time.Hour, tournament.StatusUpcoming, true)
	got := Evaluate(tr, now, time.UTC)
	if len(got) != 2 {
		t.Fatalf("expected registration and start reminders, got %d", len(got))
	}
	if got[0].ID == got[1].ID {
		t.Error("different categories must not share an id")
	}
}

func TestEvaluate_Completion(t *testing.T) {
	done := startingIn(-48*time.Hour, tournament.StatusCompleted, false)
	if got := Evaluate(done, now, time.UTC); len(got) != 0 {
		t.Errorf("expected nothing without winner, got %+v", got)
	}

	done.Winner = tournament.StringPtr("")
	if got := Evaluate(done, now, time.UTC); len(got) != 0 {
		t.Errorf("expected nothing for empty winner, got %+v", got)
	}

	done.Winner = tournament.StringPtr("Team Red")
	got := Evaluate(done, now, time.UTC)
	if len(got) != 1 {
		t.Fatalf("expected 1 result notification, got %d", len(got))
	}
	if got[0].Body != "Congratulations to Team Red for winning Cup!" {
		t.Errorf("unexpected body %q", got[0].Body)
	}
	if got[0].Title != "Tournament Results: Cup" || got[0].ID != "tournament_results:t1" {
		t.Errorf("unexpected title/id %q %q", got[0].Title, got[0].ID)
	}
}

func TestStatusChange(t *testing.T) {
	base := startingIn(0, tournament.StatusInProgress, false)

	n, ok := StatusChange(tournament.StatusUpcoming, base, now)
	if !ok || n.Body != "Cup is starting now!" || n.Category != CategoryStart {
		t.Errorf("UPCOMING->IN_PROGRESS: got %+v, %v", n, ok)
	}

	if _, ok := StatusChange(tournament.StatusInProgress, base, now); ok {
		t.Error("unchanged status must not notify")
	}

	completed := base
	completed.Status = tournament.StatusCompleted
	if _, ok := StatusChange(tournament.StatusInProgress, completed, now); ok {
		t.Error("COMPLETED without winner must not notify")
	}

	completed.Winner = tournament.StringPtr("Team Red")
	n, ok = StatusChange(tournament.StatusInProgress, completed, now)
	if !ok || n.Category != CategoryResult || !strings.Contains(n.Body, "Team Red") {
		t.Errorf("IN_PROGRESS->COMPLETED: got %+v, %v", n, ok)
	}

	back := base
	back.Status = tournament.StatusUpcoming
	if _, ok := StatusChange(tournament.StatusInProgress, back, now); ok {
		t.Error("transition to UPCOMING must not notify")
	}
}

func TestQuietHours(t *testing.T) {
	tests := []struct {
		hour     int
		category Category
		want     bool
	}{
		{7, CategoryRegistration, false},
		{8, CategoryRegistration, true},
		{22, CategoryResult, true},
		{23, CategoryResult, false},
		{3, CategoryStart, true},
		{23, CategoryUpdate, true},
	}

	for _, tt := range tests {
		rec := &recorder{}
		q := NewQuietHours(rec)
		q.Location = time.UTC
		at := time.Date(2026, 1, 1, tt.hour, 30, 0, 0, time.UTC)
		q.Clock = func() time.Time { return at }

		if err := q.Notify(context.Background(), Notification{Category: tt.category, ID: "x"}); err != nil {
			t.Fatalf("Notify failed: %v", err)
		}
		if got := rec.count() == 1; got != tt.want {
			t.Errorf("hour %d category %s: delivered=%v, want %v", tt.hour, tt.category, got, tt.want)
		}
	}
}

func TestQuietHours_WrapsMidnight(t *testing.T) {
	rec := &recorder{}
	q := &QuietHours{Next: rec, StartHour: 20, EndHour: 6, Location: time.UTC}

	for hour, want := range map[int]bool{21: true, 2: true, 12: false} {
		before := rec.count()
		at := time.Date(2026, 1, 1, hour, 0, 0, 0, time.UTC)
		q.Clock = func() time.Time { return at }
		_ = q.Notify(context.Background(), Notification{Category: CategoryResult})
		if delivered := rec.count() > before; delivered != want {
			t.Errorf("hour %d: delivered=%v, want %v", hour, delivered, want)
		}
	}
}

func TestReplaceByID(t *testing.T) {
	rec := &recorder{}
	r := NewReplaceByID(rec)
	ctx := context.Background()

	_ = r.Notify(ctx, Notification{ID: "a", Body: "one"})
	_ = r.Notify(ctx, Notification{ID: "a", Body: "one"})
	_ = r.Notify(ctx, Notification{ID: "a", Body: "two"})
	_ = r.Notify(ctx, Notification{ID: "b", Body: "one"})

	if rec.count() != 3 {
		t.Errorf("expected 3 deliveries, got %d", rec.count())
	}
}

func TestReplaceByID_FailureIsNotRemembered(t *testing.T) {
	rec := &recorder{fail: errors.New("boom")}
	r := NewReplaceByID(rec)

	if err := r.Notify(context.Background(), Notification{ID: "a", Body: "one"}); err == nil {
		t.Fatal("expected delivery error")
	}
	rec.fail = nil
	if err := r.Notify(context.Background(), Notification{ID: "a", Body: "one"}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected retry to deliver, got %d", rec.count())
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "notify.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFireOnce(t *testing.T) {
	st := openStore(t)
	rec := &recorder{}
	f := &FireOnce{Next: rec, Log: st}
	ctx := context.Background()

	n := Notification{ID: "registration_reminders:t1", Window: "registration-3d", TournamentKey: "t1", Category: CategoryRegistration, At: now}

	_ = f.Notify(ctx, n)
	_ = f.Notify(ctx, n)
	if rec.count() != 1 {
		t.Fatalf("expected one delivery per window, got %d", rec.count())
	}

	n.Window = "registration-24h"
	_ = f.Notify(ctx, n)
	if rec.count() != 2 {
		t.Fatalf("expected a new window to deliver, got %d", rec.count())
	}
}

func TestFireOnce_RetriesAfterFailure(t *testing.T) {
	st := openStore(t)
	rec := &recorder{fail: errors.New("channel down")}
	f := &FireOnce{Next: rec, Log: st}
	ctx := context.Background()

	n := Notification{ID: "tournament_results:t1", Window: "result", TournamentKey: "t1", Category: CategoryResult, At: now}
	if err := f.Notify(ctx, n); err == nil {
		t.Fatal("expected delivery error")
	}

	rec.fail = nil
	if err := f.Notify(ctx, n); err != nil {
		t.Fatalf("second attempt failed: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected delivery after failure, got %d", rec.count())
	}
}

func TestMulti(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{fail: errors.New("nope")}
	m := Multi{bad, nil, ok}

	err := m.Notify(context.Background(), Notification{ID: "x"})
	if err == nil {
		t.Error("expected joined error")
	}
	if ok.count() != 1 {
		t.Error("healthy notifier should still receive the notification")
	}
}

func TestSweeper_Run(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	recs := []store.Record{
		{Tournament: startingIn(30*time.Minute, tournament.StatusUpcoming, false)},
		{Tournament: func() tournament.Tournament {
			tr := startingIn(-72*time.Hour, tournament.StatusCompleted, false)
			tr.ID = tournament.Saved("t2")
			tr.Winner = tournament.StringPtr("Blue")
			return tr
		}()},
		{Tournament: func() tournament.Tournament {
			tr := startingIn(300*time.Hour, tournament.StatusUpcoming, true)
			tr.ID = tournament.Saved("t3")
			return tr
		}()},
	}
	if err := st.UpsertMany(ctx, recs); err != nil {
		t.Fatalf("UpsertMany failed: %v", err)
	}

	rec := &recorder{}
	var buf bytes.Buffer
	s := &Sweeper{
		Records:  st,
		Notifier: rec,
		Clock:    func() time.Time { return now },
		Location: time.UTC,
		Logger:   log.New(&buf, "", 0),
	}

	res, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Checked != 3 || res.Sent != 2 || res.Failed != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if !strings.Contains(buf.String(), "Sweep complete") {
		t.Errorf("expected summary in log, got %q", buf.String())
	}
}

func TestSweep_CountsFailures(t *testing.T) {
	recs := []store.Record{
		{Tournament: startingIn(0, tournament.StatusUpcoming, false)},
	}
	bad := &recorder{fail: errors.New("down")}
	res := Sweep(context.Background(), bad, recs, now, time.UTC, log.New(&bytes.Buffer{}, "", 0))
	if res.Failed != 1 || res.Sent != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}
