package tournament_test

import (
	"fmt"
	"time"

	"github.com/tourneysync/tourney/internal/tournament"
)

func ExampleDeriveStatus() {
	start := time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	fmt.Println(tournament.DeriveStatus(start, end, start.Add(-time.Minute)))
	fmt.Println(tournament.DeriveStatus(start, end, start))
	fmt.Println(tournament.DeriveStatus(start, end, end))
	fmt.Println(tournament.DeriveStatus(start, end, end.Add(time.Millisecond)))
	// Output:
	// UPCOMING
	// IN_PROGRESS
	// IN_PROGRESS
	// COMPLETED
}

func ExampleParseKey() {
	saved := tournament.ParseKey("42", false)
	id, ok := saved.Remote()
	fmt.Println(id, ok, saved.IsDraft())

	draft := tournament.ParseKey(tournament.NewDraft().Key(), true)
	fmt.Println(draft.IsDraft())
	// Output:
	// 42 true false
	// true
}
