package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/samber/do"
	"github.com/spf13/cobra"

	"github.com/tourneysync/tourney/internal/notify"
	"github.com/tourneysync/tourney/internal/reconcile"
	"github.com/tourneysync/tourney/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Reconcile the local cache with the API",
	Long: `Run one sync pass:
  1. Re-derive every tournament's status from the clock
  2. Push pending local changes
  3. Fetch tournaments page by page and merge them into the cache

Local coordinates always win over the API's. Use --page to fetch a single
page and --push-only to skip fetching.`,
	Run: func(cmd *cobra.Command, args []string) {
		page, _ := cmd.Flags().GetInt("page")
		pushOnly, _ := cmd.Flags().GetBool("push-only")
		if err := runSync(cmd.Context(), page, pushOnly); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var notifyCmd = &cobra.Command{
	Use:     "notify",
	GroupID: "sync",
	Short:   "Run one notification sweep",
	Long: `Check every cached tournament against the reminder windows and print
the notifications that are due:

  - registration reminders 7d, 3d, 24h, 12h and 1h before start
  - start reminders 24h, 2h and 30m before start, and at start
  - a result notice once a completed tournament has a winner

Registration and result notices are held back outside notify.quiet_start
to notify.quiet_end.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNotify(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runSync(ctx context.Context, page int, pushOnly bool) error {
	injector := NewContainer(cfg, containerOptions{
		LogWriter: logWriter(),
		Notifiers: []notify.Notifier{terminalNotifier{}},
	})
	defer shutdown(injector)

	engine, err := do.Invoke[*reconcile.Engine](injector)
	if err != nil {
		return err
	}

	fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), cfg.API.BaseURL)
	start := time.Now()

	if pushOnly {
		res, err := engine.PushPending(ctx)
		if err != nil {
			return explain(err)
		}
		fmt.Printf("%s Push complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Pushed: %d\n", res.Pushed)
		fmt.Printf("   Failed: %d\n", res.Failed)
		if res.Skipped {
			fmt.Printf("   %s\n", ui.RenderWarn("Skipped: API unreachable"))
		}
		return nil
	}

	changed, err := engine.CheckAndUpdateStatuses(ctx)
	if err != nil {
		return explain(err)
	}

	pages := 1
	if page > 0 {
		if _, err := engine.Refresh(ctx, page, engine.PageLimit()); err != nil {
			return explain(err)
		}
	} else {
		if pages, err = engine.RefreshAll(ctx, engine.PageLimit()); err != nil {
			return explain(err)
		}
	}

	recs, err := engine.Tournaments(ctx)
	if err != nil {
		return err
	}
	pending := 0
	for _, rec := range recs {
		if rec.HasPendingChanges {
			pending++
		}
	}

	fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Status changes: %d\n", changed)
	fmt.Printf("   Pages: %d\n", pages)
	fmt.Printf("   Tournaments: %d\n", len(recs))
	if pending > 0 {
		fmt.Printf("   %s\n", ui.RenderWarn(fmt.Sprintf("Pending: %d", pending)))
	}
	return nil
}

// explain turns the errors a user can act on into instructions.
func explain(err error) error {
	switch {
	case errors.Is(err, reconcile.ErrNotAuthenticated):
		return errors.New("not logged in; run 'tourney login' first")
	case errors.Is(err, reconcile.ErrNetworkUnreachable):
		return fmt.Errorf("API unreachable at %s", cfg.API.BaseURL)
	}
	return err
}

func runNotify(ctx context.Context) error {
	injector := NewContainer(cfg, containerOptions{
		LogWriter: logWriter(),
		Notifiers: []notify.Notifier{terminalNotifier{}},
	})
	defer shutdown(injector)

	sweeper, err := do.Invoke[*notify.Sweeper](injector)
	if err != nil {
		return err
	}
	res, err := sweeper.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s Checked %d tournaments, %d notification(s) sent", ui.RenderPass("✓"), res.Checked, res.Sent)
	if res.Failed > 0 {
		fmt.Printf(", %s", ui.RenderFail(fmt.Sprintf("%d failed", res.Failed)))
	}
	fmt.Println()
	return nil
}

// terminalNotifier prints notifications for interactive commands.
type terminalNotifier struct{}

func (terminalNotifier) Notify(_ context.Context, n notify.Notification) error {
	fmt.Printf("%s %s\n   %s\n", ui.RenderAccent("🔔"), n.Title, n.Body)
	return nil
}

func init() {
	syncCmd.Flags().Int("page", 0, "Fetch only this page (1-based)")
	syncCmd.Flags().Bool("push-only", false, "Only push pending changes")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(notifyCmd)
}
