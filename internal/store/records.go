package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tourneysync/tourney/internal/tournament"
)

// Record is a cached tournament plus its sync bookkeeping.
type Record struct {
	tournament.Tournament

	// Version is always 1; there is no optimistic concurrency yet.
	Version int

	// LastUpdated is set by the store whenever the persisted content changes.
	// Values supplied by callers are ignored.
	LastUpdated time.Time

	// HasPendingChanges marks local edits the remote side has not confirmed.
	HasPendingChanges bool
}

// Key returns the primary key of the record.
func (r *Record) Key() string {
	return r.ID.Key()
}

const recordColumns = `
	id, local_only, name, description, start_date, end_date,
	participants_count, prize_pool, is_registration_open, winner,
	status, user_id, latitude, longitude, version, last_updated,
	has_pending_changes`

// Content columns are compared null-safely so that an identical replace is
// a no-op and last_updated keeps its value.
const upsertQuery = `
	INSERT INTO tournaments (` + recordColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		local_only = excluded.local_only,
		name = excluded.name,
		description = excluded.description,
		start_date = excluded.start_date,
		end_date = excluded.end_date,
		participants_count = excluded.participants_count,
		prize_pool = excluded.prize_pool,
		is_registration_open = excluded.is_registration_open,
		winner = excluded.winner,
		status = excluded.status,
		user_id = excluded.user_id,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		version = excluded.version,
		last_updated = excluded.last_updated,
		has_pending_changes = excluded.has_pending_changes
	WHERE tournaments.local_only IS NOT excluded.local_only
		OR tournaments.name IS NOT excluded.name
		OR tournaments.description IS NOT excluded.description
		OR tournaments.start_date IS NOT excluded.start_date
		OR tournaments.end_date IS NOT excluded.end_date
		OR tournaments.participants_count IS NOT excluded.participants_count
		OR tournaments.prize_pool IS NOT excluded.prize_pool
		OR tournaments.is_registration_open IS NOT excluded.is_registration_open
		OR tournaments.winner IS NOT excluded.winner
		OR tournaments.status IS NOT excluded.status
		OR tournaments.user_id IS NOT excluded.user_id
		OR tournaments.latitude IS NOT excluded.latitude
		OR tournaments.longitude IS NOT excluded.longitude
		OR tournaments.version IS NOT excluded.version
		OR tournaments.has_pending_changes IS NOT excluded.has_pending_changes
	`

// ListAll returns every record ordered by start date (newest first), then
// name.
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM tournaments ORDER BY start_date DESC, name ASC`
	recs, err := s.queryRecords(ctx, query)
	if err != nil {
		return nil, wrap("list", err)
	}
	return recs, nil
}

// ListPending returns the records with unconfirmed local edits.
func (s *Store) ListPending(ctx context.Context) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM tournaments
		WHERE has_pending_changes = 1
		ORDER BY start_date DESC, name ASC`
	recs, err := s.queryRecords(ctx, query)
	if err != nil {
		return nil, wrap("list pending", err)
	}
	return recs, nil
}

// Get returns the record stored under key, or an error matching ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM tournaments WHERE id = ?`
	rec, err := scanRecord(s.conn.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Record{}, wrap("get", err)
	}
	return rec, nil
}

// Count returns the number of cached records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM tournaments`).Scan(&n); err != nil {
		return 0, wrap("count", err)
	}
	return n, nil
}

// Upsert inserts rec or fully replaces the record with the same key.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	return s.UpsertMany(ctx, []Record{rec})
}

// UpsertMany applies Upsert to every record in a single transaction.
// Records whose content already matches the stored row are left untouched.
func (s *Store) UpsertMany(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	for i := range recs {
		if recs[i].Key() == "" {
			return wrap("upsert", fmt.Errorf("record %d has no key", i))
		}
	}

	s.writeMu.Lock()
	changed, err := s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		return upsertTx(ctx, tx, recs, s.now())
	})
	s.writeMu.Unlock()
	if err != nil {
		return wrap("upsert", err)
	}

	s.publish(OpUpsert, changed)
	return nil
}

// Replace removes oldKey and upserts rec in one transaction. It promotes a
// draft to the record the remote side created for it.
func (s *Store) Replace(ctx context.Context, oldKey string, rec Record) error {
	if rec.Key() == "" {
		return wrap("replace", fmt.Errorf("replacement record has no key"))
	}

	s.writeMu.Lock()
	changed, err := s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		var keys []string
		if oldKey != rec.Key() {
			res, err := tx.ExecContext(ctx, `DELETE FROM tournaments WHERE id = ?`, oldKey)
			if err != nil {
				return nil, fmt.Errorf("failed to delete %s: %w", oldKey, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				keys = append(keys, oldKey)
			}
		}
		upserted, err := upsertTx(ctx, tx, []Record{rec}, s.now())
		if err != nil {
			return nil, err
		}
		return append(keys, upserted...), nil
	})
	s.writeMu.Unlock()
	if err != nil {
		return wrap("replace", err)
	}

	s.publish(OpUpsert, changed)
	return nil
}

// SetPending updates only the pending flag of the record stored under key.
// It reports ErrNotFound when the record does not exist.
func (s *Store) SetPending(ctx context.Context, key string, pending bool) error {
	s.writeMu.Lock()
	res, err := s.conn.ExecContext(ctx,
		`UPDATE tournaments SET has_pending_changes = ?, last_updated = ?
		 WHERE id = ? AND has_pending_changes IS NOT ?`,
		pending, s.now().UnixMilli(), key, pending)
	s.writeMu.Unlock()
	if err != nil {
		return wrap("set pending", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		s.publish(OpPending, []string{key})
		return nil
	}

	// Nothing changed: either the flag already had this value or the row is
	// missing.
	var exists int
	err = s.conn.QueryRowContext(ctx, `SELECT 1 FROM tournaments WHERE id = ?`, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return wrap("set pending", err)
}

// Delete removes the record stored under key together with its notification
// log. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.writeMu.Lock()
	deleted, err := s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		res, err := tx.ExecContext(ctx, `DELETE FROM tournaments WHERE id = ?`, key)
		if err != nil {
			return nil, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM notification_log WHERE tournament_key = ?`, key); err != nil {
			return nil, fmt.Errorf("failed to delete notification log for %s: %w", key, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return []string{key}, nil
		}
		return nil, nil
	})
	s.writeMu.Unlock()
	if err != nil {
		return wrap("delete", err)
	}

	s.publish(OpDelete, deleted)
	return nil
}

// Clear wipes every record and the notification log.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	_, err := s.inTx(ctx, func(tx *sql.Tx) ([]string, error) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tournaments`); err != nil {
			return nil, fmt.Errorf("failed to clear tournaments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM notification_log`); err != nil {
			return nil, fmt.Errorf("failed to clear notification log: %w", err)
		}
		return nil, nil
	})
	s.writeMu.Unlock()
	if err != nil {
		return wrap("clear", err)
	}

	s.publish(OpClear, nil)
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) ([]string, error)) ([]string, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	keys, err := fn(tx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return keys, nil
}

// upsertTx writes recs through one prepared statement and returns the keys
// whose rows actually changed.
func upsertTx(ctx context.Context, tx *sql.Tx, recs []Record, now time.Time) ([]string, error) {
	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	var changed []string
	for _, rec := range recs {
		version := rec.Version
		if version == 0 {
			version = 1
		}
		status := rec.Status
		if status == "" {
			status = tournament.DeriveStatus(rec.StartDate, rec.EndDate, now)
		}

		res, err := stmt.ExecContext(ctx,
			rec.Key(),
			rec.ID.IsDraft(),
			rec.Name,
			rec.Description,
			rec.StartDate.UnixMilli(),
			rec.EndDate.UnixMilli(),
			rec.ParticipantsCount,
			rec.PrizePool,
			rec.IsRegistrationOpen,
			stringToNull(rec.Winner),
			string(status),
			rec.UserID,
			floatToNull(rec.Latitude),
			floatToNull(rec.Longitude),
			version,
			now.UnixMilli(),
			rec.HasPendingChanges,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert %s: %w", rec.Key(), err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			changed = append(changed, rec.Key())
		}
	}
	return changed, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournaments: %w", err)
	}
	return recs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec         Record
		key         string
		localOnly   bool
		start, end  int64
		winner      sql.NullString
		status      string
		lat, lng    sql.NullFloat64
		lastUpdated int64
	)
	err := row.Scan(
		&key, &localOnly, &rec.Name, &rec.Description, &start, &end,
		&rec.ParticipantsCount, &rec.PrizePool, &rec.IsRegistrationOpen, &winner,
		&status, &rec.UserID, &lat, &lng, &rec.Version, &lastUpdated,
		&rec.HasPendingChanges,
	)
	if err != nil {
		return Record{}, err
	}

	rec.ID = tournament.ParseKey(key, localOnly)
	rec.StartDate = time.UnixMilli(start).UTC()
	rec.EndDate = time.UnixMilli(end).UTC()
	rec.Status = tournament.Status(status)
	rec.Winner = nullToString(winner)
	rec.Latitude = nullToFloat(lat)
	rec.Longitude = nullToFloat(lng)
	rec.LastUpdated = time.UnixMilli(lastUpdated).UTC()
	return rec, nil
}

func stringToNull(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullToString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func floatToNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullToFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
