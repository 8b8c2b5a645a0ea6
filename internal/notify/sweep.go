package notify

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tourneysync/tourney/internal/store"
	"github.com/tourneysync/tourney/internal/tournament"
)

const (
	dateTimeLayout = "Jan 02, 2006 at 15:04"
	timeLayout     = "15:04"
)

// hourWindow is an inclusive range of whole hours before start.
type hourWindow struct {
	from, to int64
	name     string
}

// Checked in order; the first match wins.
var registrationWindows = []hourWindow{
	{167, 168, "registration-7d"},
	{71, 72, "registration-3d"},
	{23, 24, "registration-24h"},
	{11, 12, "registration-12h"},
	{0, 1, "registration-1h"},
}

// Evaluate returns the notifications t warrants at now, at most one per
// category. Times in messages are rendered in loc.
func Evaluate(t tournament.Tournament, now time.Time, loc *time.Location) []Notification {
	if loc == nil {
		loc = time.Local
	}

	var out []Notification
	if n, ok := registrationReminder(t, now, loc); ok {
		out = append(out, n)
	}
	if n, ok := startReminder(t, now, loc); ok {
		out = append(out, n)
	}
	if n, ok := resultNotification(t, now); ok {
		out = append(out, n)
	}
	return out
}

// hoursUntil truncates toward zero, so anything under an hour past start
// still counts as hour 0.
func hoursUntil(start, now time.Time) (time.Duration, int64) {
	d := start.Sub(now)
	return d, int64(d / time.Hour)
}

func registrationReminder(t tournament.Tournament, now time.Time, loc *time.Location) (Notification, bool) {
	if !t.IsRegistrationOpen {
		return Notification{}, false
	}
	_, hours := hoursUntil(t.StartDate, now)
	start := t.StartDate.In(loc)

	for _, w := range registrationWindows {
		if hours < w.from || hours > w.to {
			continue
		}
		var body string
		switch w.name {
		case "registration-7d":
			body = fmt.Sprintf("Registration for %s closes in 7 days! Tournament starts on %s", t.Name, start.Format(dateTimeLayout))
		case "registration-3d":
			body = fmt.Sprintf("Only 3 days left to register for %s! Tournament starts on %s", t.Name, start.Format(dateTimeLayout))
		case "registration-24h":
			body = fmt.Sprintf("Last day to register for %s! Tournament starts tomorrow at %s", t.Name, start.Format(timeLayout))
		case "registration-12h":
			body = fmt.Sprintf("Only 12 hours left to register for %s!", t.Name)
		default:
			body = fmt.Sprintf("Final call! Registration for %s closes in less than an hour!", t.Name)
		}
		return newNotification(CategoryRegistration, t, w.name, body, now), true
	}
	return Notification{}, false
}

func startReminder(t tournament.Tournament, now time.Time, loc *time.Location) (Notification, bool) {
	if t.Status != tournament.StatusUpcoming {
		return Notification{}, false
	}
	until, hours := hoursUntil(t.StartDate, now)

	switch {
	case hours >= 23 && hours <= 24:
		body := fmt.Sprintf("Your tournament %s starts tomorrow at %s", t.Name, t.StartDate.In(loc).Format(timeLayout))
		return newNotification(CategoryStart, t, "start-24h", body, now), true
	case hours >= 1 && hours <= 2:
		body := fmt.Sprintf("Get ready! %s starts in 2 hours", t.Name)
		return newNotification(CategoryStart, t, "start-2h", body, now), true
	case until >= 29*time.Minute && until <= 31*time.Minute:
		body := fmt.Sprintf("Almost time! %s starts in 30 minutes", t.Name)
		return newNotification(CategoryStart, t, "start-30m", body, now), true
	case until >= -5*time.Minute && until <= 5*time.Minute:
		return startingNow(t, now), true
	}
	return Notification{}, false
}

func resultNotification(t tournament.Tournament, now time.Time) (Notification, bool) {
	if t.Status != tournament.StatusCompleted || t.WinnerName() == "" {
		return Notification{}, false
	}
	return congratulations(t, now), true
}

func startingNow(t tournament.Tournament, now time.Time) Notification {
	return newNotification(CategoryStart, t, "start-now", fmt.Sprintf("%s is starting now!", t.Name), now)
}

func congratulations(t tournament.Tournament, now time.Time) Notification {
	body := fmt.Sprintf("Congratulations to %s for winning %s!", t.WinnerName(), t.Name)
	return newNotification(CategoryResult, t, "result", body, now)
}

func newNotification(c Category, t tournament.Tournament, window, body string, now time.Time) Notification {
	return Notification{
		Category:      c,
		Title:         titleFor(c, t.Name),
		Body:          body,
		ID:            DedupeID(c, t.ID.Key()),
		Window:        window,
		TournamentKey: t.ID.Key(),
		At:            now,
	}
}

func titleFor(c Category, name string) string {
	switch c {
	case CategoryRegistration:
		return "Registration Reminder: " + name
	case CategoryStart:
		return "Tournament Starting: " + name
	case CategoryResult:
		return "Tournament Results: " + name
	default:
		return "Tournament Update: " + name
	}
}

// StatusChange returns the notification for a transition from prev to the
// status t now carries. Only the start of play and a completed tournament
// with a winner are announced.
func StatusChange(prev tournament.Status, t tournament.Tournament, now time.Time) (Notification, bool) {
	if prev == t.Status {
		return Notification{}, false
	}
	switch t.Status {
	case tournament.StatusInProgress:
		return startingNow(t, now), true
	case tournament.StatusCompleted:
		if t.WinnerName() == "" {
			return Notification{}, false
		}
		return congratulations(t, now), true
	}
	return Notification{}, false
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Checked int
	Sent    int
	Failed  int
}

// Sweep evaluates every record at now and delivers the result through n.
// Delivery failures are logged and counted; the sweep continues.
func Sweep(ctx context.Context, n Notifier, recs []store.Record, now time.Time, loc *time.Location, logger *log.Logger) SweepResult {
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}

	var res SweepResult
	for _, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		res.Checked++
		for _, note := range Evaluate(rec.Tournament, now, loc) {
			if err := n.Notify(ctx, note); err != nil {
				logger.Printf("WARNING: Failed to deliver %s for %s: %v", note.Window, rec.Key(), err)
				res.Failed++
				continue
			}
			res.Sent++
		}
	}
	return res
}

// RecordLister is the slice of the store a Sweeper reads.
type RecordLister interface {
	ListAll(ctx context.Context) ([]store.Record, error)
}

// Sweeper runs Sweep against the current store contents.
type Sweeper struct {
	Records  RecordLister
	Notifier Notifier
	Clock    func() time.Time
	Location *time.Location
	Logger   *log.Logger
}

// Run performs one sweep. Only a failure to read the records is returned.
func (s *Sweeper) Run(ctx context.Context) (SweepResult, error) {
	clock := s.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := s.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}

	recs, err := s.Records.ListAll(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to read tournaments: %w", err)
	}

	logger.Printf("Checking %d tournaments", len(recs))
	res := Sweep(ctx, s.Notifier, recs, clock(), s.Location, logger)
	logger.Printf("Sweep complete: checked=%d sent=%d failed=%d", res.Checked, res.Sent, res.Failed)
	return res, nil
}
