package tournament

import (
	"fmt"
	"time"
)

// Status is the lifecycle phase of a tournament.
type Status string

const (
	StatusUpcoming   Status = "UPCOMING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusUpcoming, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus parses a wire or user supplied status value.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid status %q (want UPCOMING, IN_PROGRESS or COMPLETED)", v)
	}
	return s, nil
}

// DeriveStatus maps a time window onto a status.
//
// Both boundaries belong to IN_PROGRESS: a tournament is upcoming only while
// now is strictly before start and completed only once now is strictly
// after end.
func DeriveStatus(start, end, now time.Time) Status {
	switch {
	case now.Before(start):
		return StatusUpcoming
	case now.After(end):
		return StatusCompleted
	default:
		return StatusInProgress
	}
}
