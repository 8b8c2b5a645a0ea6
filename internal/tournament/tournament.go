package tournament

import (
	"fmt"
	"strings"
	"time"
)

// Tournament is a single competitive event.
type Tournament struct {
	ID          ID
	Name        string
	Description string

	// StartDate and EndDate are UTC instants with millisecond precision.
	StartDate time.Time
	EndDate   time.Time

	ParticipantsCount  int
	PrizePool          float64
	IsRegistrationOpen bool

	// Winner is only meaningful once the tournament is completed.
	Winner *string

	Status Status
	UserID string

	// Latitude and Longitude are set on the device and never taken from the
	// remote side when a local value exists.
	Latitude  *float64
	Longitude *float64
}

// Validate checks the fields a user can edit. The core accepts whatever the
// remote API returns, so Validate is only applied on input paths.
func (t *Tournament) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(t.Name))
	}
	if t.StartDate.IsZero() {
		return fmt.Errorf("start date is required")
	}
	if t.EndDate.IsZero() {
		return fmt.Errorf("end date is required")
	}
	if t.EndDate.Before(t.StartDate) {
		return fmt.Errorf("end date %s is before start date %s",
			t.EndDate.Format(time.RFC3339), t.StartDate.Format(time.RFC3339))
	}
	if t.ParticipantsCount < 0 {
		return fmt.Errorf("participants count must be non-negative (got %d)", t.ParticipantsCount)
	}
	if t.PrizePool < 0 {
		return fmt.Errorf("prize pool must be non-negative (got %.2f)", t.PrizePool)
	}
	if t.Status != "" && !t.Status.IsValid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if (t.Latitude == nil) != (t.Longitude == nil) {
		return fmt.Errorf("latitude and longitude must be set together")
	}
	if t.Latitude != nil && (*t.Latitude < -90 || *t.Latitude > 90) {
		return fmt.Errorf("latitude must be between -90 and 90 (got %f)", *t.Latitude)
	}
	if t.Longitude != nil && (*t.Longitude < -180 || *t.Longitude > 180) {
		return fmt.Errorf("longitude must be between -180 and 180 (got %f)", *t.Longitude)
	}
	return nil
}

// HasLocation reports whether both coordinates are set.
func (t *Tournament) HasLocation() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// WinnerName returns the winner or "" when none is recorded.
func (t *Tournament) WinnerName() string {
	if t.Winner == nil {
		return ""
	}
	return *t.Winner
}

// Normalize truncates both dates to millisecond precision in UTC, matching
// what the store persists.
func (t *Tournament) Normalize() {
	t.StartDate = TruncateMillis(t.StartDate)
	t.EndDate = TruncateMillis(t.EndDate)
}

// WithDerivedStatus returns a copy whose Status reflects now.
func (t Tournament) WithDerivedStatus(now time.Time) Tournament {
	t.Status = DeriveStatus(t.StartDate, t.EndDate, now)
	return t
}

// TruncateMillis drops sub-millisecond precision and converts to UTC.
func TruncateMillis(ts time.Time) time.Time {
	if ts.IsZero() {
		return ts
	}
	return time.UnixMilli(ts.UnixMilli()).UTC()
}

// StringPtr returns a pointer to v, or nil when v is empty.
func StringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 {
	return &v
}
