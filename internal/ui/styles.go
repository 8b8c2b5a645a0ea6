// Package ui renders tourney's terminal output.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/tourneysync/tourney/internal/tournament"
)

// Theme defines the colors used for terminal output.
type Theme struct {
	Text    string
	Muted   string
	Accent  string
	Success string
	Warning string
	Danger  string

	StatusColors map[tournament.Status]string
}

// DefaultTheme is the palette used unless the caller installs another one.
var DefaultTheme = Theme{
	Text:    "#e6edf3",
	Muted:   "#8b949e",
	Accent:  "#58a6ff",
	Success: "#3fb950",
	Warning: "#d29922",
	Danger:  "#f85149",
	StatusColors: map[tournament.Status]string{
		tournament.StatusUpcoming:   "#58a6ff",
		tournament.StatusInProgress: "#d29922",
		tournament.StatusCompleted:  "#3fb950",
	},
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Text    lipgloss.Style
	Muted   lipgloss.Style
	Accent  lipgloss.Style
	Pass    lipgloss.Style
	Warn    lipgloss.Style
	Fail    lipgloss.Style
	Header  lipgloss.Style
	Label   lipgloss.Style
	Badge   lipgloss.Style
	Pending lipgloss.Style
}

// Styles returns lipgloss styles for this theme.
func (t Theme) Styles() Styles {
	return Styles{
		Text:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Text)),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)),
		Pass:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Success)).Bold(true),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning)),
		Fail:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Danger)).Bold(true),
		Header:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)).Bold(true),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)).Width(14),
		Badge:   lipgloss.NewStyle().Bold(true),
		Pending: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning)).Italic(true),
	}
}

// StatusColor returns the color for a tournament status.
func (t Theme) StatusColor(s tournament.Status) lipgloss.Color {
	if c, ok := t.StatusColors[s]; ok {
		return lipgloss.Color(c)
	}
	return lipgloss.Color(t.Muted)
}

var (
	theme  = DefaultTheme
	styles = DefaultTheme.Styles()
)

// Init picks the color profile for w. NO_COLOR and non-terminal writers get
// plain text.
func Init(w io.Writer) {
	out := termenv.NewOutput(w)
	profile := out.EnvColorProfile()
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		profile = termenv.Ascii
	}
	lipgloss.SetColorProfile(profile)
}

// SetTheme replaces the active theme.
func SetTheme(t Theme) {
	theme = t
	styles = t.Styles()
}

func RenderAccent(s string) string { return styles.Accent.Render(s) }
func RenderPass(s string) string   { return styles.Pass.Render(s) }
func RenderWarn(s string) string   { return styles.Warn.Render(s) }
func RenderFail(s string) string   { return styles.Fail.Render(s) }
func RenderMuted(s string) string  { return styles.Muted.Render(s) }

// RenderStatus renders a status in its theme color.
func RenderStatus(s tournament.Status) string {
	return styles.Badge.Foreground(theme.StatusColor(s)).Render(string(s))
}
