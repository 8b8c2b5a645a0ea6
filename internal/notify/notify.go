// Package notify decides which tournament events deserve a user-facing
// notification and delivers them through pluggable channels.
//
// The sweep is stateless: it looks at the current record set and the clock
// and emits whatever falls inside a reminder window. Repeats are collapsed
// by the notification ID, which is derived from (category, tournament key),
// so a later firing replaces an earlier one on channels that support it.
// FireOnce adds persistent once-per-window semantics on top.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// Category is the notification channel a message belongs to.
type Category string

const (
	CategoryRegistration Category = "registration_reminders"
	CategoryStart        Category = "start_time_reminders"
	CategoryResult       Category = "tournament_results"
	CategoryUpdate       Category = "tournament_updates"
)

// Notification is a single user-facing message.
type Notification struct {
	Category Category `json:"category"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`

	// ID is stable per (category, tournament); channels replace rather
	// than stack notifications sharing an ID.
	ID string `json:"id"`

	// Window names the threshold that fired, e.g. "registration-24h".
	Window string `json:"window"`

	TournamentKey string    `json:"tournament_key"`
	At            time.Time `json:"at"`
}

// DedupeID builds the notification ID for a category and tournament key.
func DedupeID(c Category, tournamentKey string) string {
	return fmt.Sprintf("%s:%s", c, tournamentKey)
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Discard drops every notification.
var Discard Notifier = NotifierFunc(func(context.Context, Notification) error { return nil })

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *log.Logger
}

// NewLogNotifier returns a LogNotifier. A nil logger logs to stderr.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.New(os.Stderr, "[notify] ", log.LstdFlags)
	}
	return &LogNotifier{Logger: logger}
}

// Notify implements Notifier.
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.Logger.Printf("%s [%s] %s: %s", n.ID, n.Window, n.Title, n.Body)
	return nil
}

// Multi fans a notification out to every notifier. All notifiers are tried;
// their errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, target := range m {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
