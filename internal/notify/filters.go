package notify

import (
	"context"
	"sync"
	"time"
)

// QuietHours delivers registration and result notifications only while the
// local hour lies in [StartHour, EndHour]. Start reminders always pass.
type QuietHours struct {
	Next      Notifier
	StartHour int
	EndHour   int
	Clock     func() time.Time
	Location  *time.Location
}

// NewQuietHours wraps next with the default 08:00-22:59 delivery window.
func NewQuietHours(next Notifier) *QuietHours {
	return &QuietHours{Next: next, StartHour: 8, EndHour: 22}
}

// Notify implements Notifier.
func (q *QuietHours) Notify(ctx context.Context, n Notification) error {
	if n.Category == CategoryRegistration || n.Category == CategoryResult {
		if !q.allowed() {
			return nil
		}
	}
	return q.Next.Notify(ctx, n)
}

func (q *QuietHours) allowed() bool {
	clock := q.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := q.Location
	if loc == nil {
		loc = time.Local
	}
	hour := clock().In(loc).Hour()
	if q.StartHour <= q.EndHour {
		return hour >= q.StartHour && hour <= q.EndHour
	}
	// Window wraps midnight, e.g. 20..6.
	return hour >= q.StartHour || hour <= q.EndHour
}

// ReplaceByID drops a notification when the last one delivered under the
// same ID had the same body. This gives channels without native
// replace-by-id support the same behavior within one process.
type ReplaceByID struct {
	Next Notifier

	mu   sync.Mutex
	last map[string]string
}

// NewReplaceByID wraps next.
func NewReplaceByID(next Notifier) *ReplaceByID {
	return &ReplaceByID{Next: next, last: make(map[string]string)}
}

// Notify implements Notifier.
func (r *ReplaceByID) Notify(ctx context.Context, n Notification) error {
	r.mu.Lock()
	if r.last[n.ID] == n.Body {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := r.Next.Notify(ctx, n); err != nil {
		return err
	}

	r.mu.Lock()
	r.last[n.ID] = n.Body
	r.mu.Unlock()
	return nil
}

// DeliveryLog persists which notification windows already fired.
type DeliveryLog interface {
	MarkNotified(ctx context.Context, dedupeID, key, category string, at time.Time) (bool, error)
	UnmarkNotified(ctx context.Context, dedupeID string) error
}

// FireOnce delivers each (ID, window) pair at most once, across restarts.
type FireOnce struct {
	Next Notifier
	Log  DeliveryLog
}

// Notify implements Notifier.
func (f *FireOnce) Notify(ctx context.Context, n Notification) error {
	key := n.ID + "@" + n.Window
	first, err := f.Log.MarkNotified(ctx, key, n.TournamentKey, string(n.Category), n.At)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	if err := f.Next.Notify(ctx, n); err != nil {
		// Let the next sweep try again.
		_ = f.Log.UnmarkNotified(ctx, key)
		return err
	}
	return nil
}
