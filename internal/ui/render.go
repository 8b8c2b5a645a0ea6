package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tourneysync/tourney/internal/store"
)

// TimeLayout is how dates are shown to the user.
const TimeLayout = "Jan 02, 2006 15:04"

// shortKey trims draft keys so the table stays narrow.
func shortKey(key string) string {
	if len(key) > 14 {
		return key[:14] + "…"
	}
	return key
}

// TournamentTable renders recs as a bordered table in loc.
func TournamentTable(recs []store.Record, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	if len(recs) == 0 {
		return RenderMuted("No tournaments cached. Run `tourney sync` to fetch them.")
	}

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		name := rec.Name
		if rec.HasPendingChanges {
			name += " *"
		}
		rows = append(rows, []string{
			shortKey(rec.Key()),
			name,
			rec.StartDate.In(loc).Format(TimeLayout),
			string(rec.Status),
			fmt.Sprint(rec.ParticipantsCount),
			registration(rec.IsRegistrationOpen),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styles.Muted).
		Headers("ID", "NAME", "START", "STATUS", "PLAYERS", "REG").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return base.Inherit(styles.Header)
			}
			if col == 3 && row >= 0 && row < len(recs) {
				return base.Foreground(theme.StatusColor(recs[row].Status)).Bold(true)
			}
			if col == 1 && row >= 0 && row < len(recs) && recs[row].HasPendingChanges {
				return base.Inherit(styles.Pending)
			}
			return base
		})

	var pending int
	for _, rec := range recs {
		if rec.HasPendingChanges {
			pending++
		}
	}
	out := t.String()
	if pending > 0 {
		out += "\n" + RenderWarn(fmt.Sprintf("* %d change(s) not yet confirmed by the server", pending))
	}
	return out
}

func registration(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

// TournamentDetail renders every field of rec.
func TournamentDetail(rec store.Record, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(styles.Label.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	b.WriteString(styles.Header.Render(rec.Name))
	b.WriteString("\n\n")

	id := rec.Key()
	if rec.ID.IsDraft() {
		id += " " + RenderWarn("(draft)")
	}
	line("ID", id)
	line("Status", RenderStatus(rec.Status))
	if rec.Description != "" {
		line("Description", rec.Description)
	}
	line("Starts", rec.StartDate.In(loc).Format(TimeLayout))
	line("Ends", rec.EndDate.In(loc).Format(TimeLayout))
	line("Participants", fmt.Sprint(rec.ParticipantsCount))
	line("Prize pool", fmt.Sprintf("%.2f", rec.PrizePool))
	line("Registration", registration(rec.IsRegistrationOpen))
	if w := rec.WinnerName(); w != "" {
		line("Winner", RenderPass(w))
	}
	if rec.HasLocation() {
		line("Location", fmt.Sprintf("%.5f, %.5f", *rec.Latitude, *rec.Longitude))
	}
	if !rec.LastUpdated.IsZero() {
		line("Updated", rec.LastUpdated.In(loc).Format(TimeLayout))
	}
	if rec.HasPendingChanges {
		line("Sync", styles.Pending.Render("pending"))
	} else {
		line("Sync", RenderPass("confirmed"))
	}
	return strings.TrimRight(b.String(), "\n")
}
