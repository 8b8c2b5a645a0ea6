package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/tourneysync/tourney/internal/reconcile"
	"github.com/tourneysync/tourney/internal/store"
	"github.com/tourneysync/tourney/internal/tournament"
	"github.com/tourneysync/tourney/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "tournaments",
	Short:   "List cached tournaments",
	Long: `List every tournament in the local cache, soonest first.

Pending local changes are marked with *. Use --status to filter.`,
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		if err := runList(cmd.Context(), status); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "tournaments",
	Short:   "Show one tournament",
	Long: `Show every field of a tournament. A saved tournament missing from the
cache is fetched from the API when you are logged in.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runShow(cmd.Context(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var createCmd = &cobra.Command{
	Use:     "create",
	GroupID: "tournaments",
	Short:   "Create a tournament",
	Long: `Create a tournament. The status is derived from the dates unless
--status is given.

Dates accept RFC 3339, "2006-01-02 15:04" or phrases like "tomorrow at 18:00".
Without a connection or a session the tournament is saved as a local draft
and pushed on the next sync.

Example:
  tourney create --name "Summer Cup" --start "next saturday at 10:00" --end "next saturday at 18:00"`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCreate(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "tournaments",
	Short:   "Edit a tournament",
	Long: `Change fields of a tournament. Only the flags you pass are changed.

Use --clear-location to drop the coordinates and --winner "" to clear the
winner.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runEdit(cmd, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	GroupID: "tournaments",
	Short:   "Delete a tournament",
	Long: `Delete a tournament. A saved tournament is deleted on the API first and
only then removed from the cache, so this needs a connection and a session.
Drafts are removed locally.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		if err := runDelete(cmd.Context(), args[0], yes); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runList(ctx context.Context, status string) error {
	injector := NewContainer(cfg, containerOptions{LogWriter: logWriter()})
	defer shutdown(injector)

	engine, err := do.Invoke[*reconcile.Engine](injector)
	if err != nil {
		return err
	}
	recs, err := engine.Tournaments(ctx)
	if err != nil {
		return err
	}

	if status != "" {
		want, err := tournament.ParseStatus(strings.ToUpper(status))
		if err != nil {
			return err
		}
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.Status == want {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}

	fmt.Println(ui.TournamentTable(recs, time.Local))
	return nil
}

func runShow(ctx context.Context, key string) error {
	injector := NewContainer(cfg, containerOptions{LogWriter: logWriter()})
	defer shutdown(injector)

	rec, err := resolve(ctx, injector, key)
	if err != nil {
		return err
	}
	fmt.Println(ui.TournamentDetail(rec, time.Local))
	return nil
}

// resolve loads a record by key through the engine, so a saved tournament
// missing from the cache is fetched first.
func resolve(ctx context.Context, injector *do.Injector, key string) (store.Record, error) {
	engine, err := do.Invoke[*reconcile.Engine](injector)
	if err != nil {
		return store.Record{}, err
	}
	st, err := do.Invoke[*store.Store](injector)
	if err != nil {
		return store.Record{}, err
	}
	if _, err := engine.Get(ctx, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Record{}, fmt.Errorf("no tournament %q", key)
		}
		return store.Record{}, err
	}
	return st.Get(ctx, key)
}

func runCreate(cmd *cobra.Command) error {
	var t tournament.Tournament
	flags := cmd.Flags()

	if !flags.Changed("name") && term.IsTerminal(int(os.Stdin.Fd())) {
		if err := promptTournament(&t); err != nil {
			return err
		}
	}
	if err := applyFlags(flags, &t, time.Now()); err != nil {
		return err
	}
	if t.EndDate.IsZero() && !t.StartDate.IsZero() {
		t.EndDate = t.StartDate.Add(2 * time.Hour)
	}

	return save(cmd.Context(), t, "Created")
}

func runEdit(cmd *cobra.Command, key string) error {
	injector := NewContainer(cfg, containerOptions{LogWriter: logWriter()})
	defer shutdown(injector)

	rec, err := resolve(cmd.Context(), injector, key)
	if err != nil {
		return err
	}
	t := rec.Tournament
	startChanged := cmd.Flags().Changed("start") || cmd.Flags().Changed("end")

	if err := applyFlags(cmd.Flags(), &t, time.Now()); err != nil {
		return err
	}
	if drop, _ := cmd.Flags().GetBool("clear-location"); drop {
		t.Latitude, t.Longitude = nil, nil
	}
	// New dates mean a new derived status unless one was given explicitly.
	if startChanged && !cmd.Flags().Changed("status") {
		t.Status = ""
	}

	engine, err := do.Invoke[*reconcile.Engine](injector)
	if err != nil {
		return err
	}
	return report(cmd.Context(), injector, engine, t, "Updated")
}

func save(ctx context.Context, t tournament.Tournament, verb string) error {
	injector := NewContainer(cfg, containerOptions{LogWriter: logWriter()})
	defer shutdown(injector)

	engine, err := do.Invoke[*reconcile.Engine](injector)
	if err != nil {
		return err
	}
	return report(ctx, injector, engine, t, verb)
}

func report(ctx context.Context, injector *do.Injector, engine *reconcile.Engine, t tournament.Tournament, verb string) error {
	saved, err := engine.CreateOrUpdate(ctx, t)
	if err != nil {
		return err
	}

	st, err := do.Invoke[*store.Store](injector)
	if err != nil {
		return err
	}
	rec, err := st.Get(ctx, saved.ID.Key())
	if err != nil {
		return err
	}
	if rec.HasPendingChanges {
		fmt.Printf("%s %s %s locally, will sync when online\n", ui.RenderWarn("⚠"), verb, saved.ID)
	} else {
		fmt.Printf("%s %s %s\n", ui.RenderPass("✓"), verb, saved.ID)
	}
	fmt.Println(ui.TournamentDetail(rec, time.Local))
	return nil
}

func runDelete(ctx context.Context, key string, yes bool) error {
	injector := NewContainer(cfg, containerOptions{LogWriter: logWriter()})
	defer shutdown(injector)

	rec, err := resolve(ctx, injector, key)
	if err != nil {
		return err
	}

	if !yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("refusing to delete without --yes when stdin is not a terminal")
		}
		confirm := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Delete %q?", rec.Name)).
			Affirmative("Delete").
			Negative("Cancel").
			Value(&confirm).
			Run()
		if err != nil {
			return err
		}
		if !confirm {
			fmt.Println("Cancelled")
			return nil
		}
	}

	engine, err := do.Invoke[*reconcile.Engine](injector)
	if err != nil {
		return err
	}
	if err := engine.Delete(ctx, rec.Tournament); err != nil {
		switch {
		case errors.Is(err, reconcile.ErrNetworkUnreachable):
			return errors.New("cannot delete while offline; the tournament was kept")
		case errors.Is(err, reconcile.ErrNotAuthenticated):
			return errors.New("log in to delete saved tournaments")
		}
		return err
	}
	fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), rec.ID)
	return nil
}

// applyFlags copies every changed tournament flag into t.
func applyFlags(flags *pflag.FlagSet, t *tournament.Tournament, now time.Time) error {
	if flags.Changed("name") {
		t.Name, _ = flags.GetString("name")
	}
	if flags.Changed("description") {
		t.Description, _ = flags.GetString("description")
	}
	if flags.Changed("start") {
		v, _ := flags.GetString("start")
		start, err := parseDate(v, now)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		t.StartDate = start
	}
	if flags.Changed("end") {
		v, _ := flags.GetString("end")
		end, err := parseDate(v, now)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
		t.EndDate = end
	}
	if flags.Changed("participants") {
		t.ParticipantsCount, _ = flags.GetInt("participants")
	}
	if flags.Changed("prize") {
		t.PrizePool, _ = flags.GetFloat64("prize")
	}
	if flags.Changed("registration-open") {
		t.IsRegistrationOpen, _ = flags.GetBool("registration-open")
	}
	if flags.Changed("winner") {
		w, _ := flags.GetString("winner")
		t.Winner = tournament.StringPtr(w)
	}
	if flags.Changed("status") {
		v, _ := flags.GetString("status")
		s, err := tournament.ParseStatus(strings.ToUpper(v))
		if err != nil {
			return err
		}
		t.Status = s
	}
	if flags.Changed("lat") || flags.Changed("lon") {
		lat, _ := flags.GetFloat64("lat")
		lon, _ := flags.GetFloat64("lon")
		t.Latitude = tournament.FloatPtr(lat)
		t.Longitude = tournament.FloatPtr(lon)
	}
	return nil
}

func promptTournament(t *tournament.Tournament) error {
	var start, end, participants string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Name").Value(&t.Name).Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("name is required")
				}
				return nil
			}),
			huh.NewText().Title("Description").Value(&t.Description),
			huh.NewInput().Title("Starts").Placeholder("tomorrow at 18:00").Value(&start).Validate(validDate),
			huh.NewInput().Title("Ends").Placeholder("tomorrow at 21:00").Value(&end).Validate(validDate),
			huh.NewInput().Title("Participants").Value(&participants).Validate(func(s string) error {
				if s == "" {
					return nil
				}
				_, err := strconv.Atoi(s)
				return err
			}),
			huh.NewConfirm().Title("Registration open?").Value(&t.IsRegistrationOpen),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("tournament prompt: %w", err)
	}

	now := time.Now()
	var err error
	if t.StartDate, err = parseDate(start, now); err != nil {
		return err
	}
	if t.EndDate, err = parseDate(end, now); err != nil {
		return err
	}
	if participants != "" {
		t.ParticipantsCount, _ = strconv.Atoi(participants)
	}
	return nil
}

func validDate(s string) error {
	_, err := parseDate(s, time.Now())
	return err
}

func addTournamentFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("name", "", "Tournament name")
	f.String("description", "", "Description")
	f.String("start", "", "Start time")
	f.String("end", "", "End time (default start + 2h)")
	f.Int("participants", 0, "Number of participants")
	f.Float64("prize", 0, "Prize pool")
	f.Bool("registration-open", false, "Registration is open")
	f.String("winner", "", "Winner name")
	f.String("status", "", "Status: UPCOMING, IN_PROGRESS or COMPLETED")
	f.Float64("lat", 0, "Latitude")
	f.Float64("lon", 0, "Longitude")
}

func init() {
	listCmd.Flags().String("status", "", "Only show tournaments with this status")

	addTournamentFlags(createCmd)
	addTournamentFlags(editCmd)
	editCmd.Flags().Bool("clear-location", false, "Remove the coordinates")

	deleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
}
