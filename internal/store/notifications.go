package store

import (
	"context"
	"fmt"
	"time"
)

// MarkNotified records that the notification dedupeID was delivered for the
// tournament key. It reports first=true only the first time a dedupeID is
// recorded.
func (s *Store) MarkNotified(ctx context.Context, dedupeID, key, category string, at time.Time) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO notification_log (dedupe_id, tournament_key, category, notified_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(dedupe_id) DO NOTHING`,
		dedupeID, key, category, at.UnixMilli())
	if err != nil {
		return false, wrap("mark notified", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("mark notified", err)
	}
	return n > 0, nil
}

// UnmarkNotified removes a single log entry so the notification may fire
// again, e.g. after delivery failed.
func (s *Store) UnmarkNotified(ctx context.Context, dedupeID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.ExecContext(ctx, `DELETE FROM notification_log WHERE dedupe_id = ?`, dedupeID); err != nil {
		return wrap("unmark notified", err)
	}
	return nil
}

// ForgetNotifications drops the log entries of one tournament.
func (s *Store) ForgetNotifications(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.ExecContext(ctx, `DELETE FROM notification_log WHERE tournament_key = ?`, key); err != nil {
		return wrap("forget notifications", fmt.Errorf("tournament %s: %w", key, err))
	}
	return nil
}

// NotificationCount returns how many deliveries are logged for key.
func (s *Store) NotificationCount(ctx context.Context, key string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_log WHERE tournament_key = ?`, key).Scan(&n)
	if err != nil {
		return 0, wrap("notification count", err)
	}
	return n, nil
}
