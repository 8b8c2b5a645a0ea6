package notify_test

import (
	"fmt"
	"time"

	"github.com/tourneysync/tourney/internal/notify"
	"github.com/tourneysync/tourney/internal/tournament"
)

func ExampleEvaluate() {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	t := tournament.Tournament{
		ID:        tournament.Saved("7"),
		Name:      "Autumn Open",
		StartDate: now.Add(30 * time.Minute),
		EndDate:   now.Add(4 * time.Hour),
		Status:    tournament.StatusUpcoming,
	}

	for _, n := range notify.Evaluate(t, now, time.UTC) {
		fmt.Println(n.ID, n.Window)
		fmt.Println(n.Title)
		fmt.Println(n.Body)
	}
	// Output:
	// start_time_reminders:7 start-30m
	// Tournament Starting: Autumn Open
	// Almost time! Autumn Open starts in 30 minutes
}
