// Command tourney keeps an offline copy of the tournament list in sync with
// the tournament API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tourneysync/tourney/internal/config"
	"github.com/tourneysync/tourney/internal/ui"
)

var (
	// settings carries defaults, environment and bound flags.
	settings = config.NewViper()

	// cfg is the effective configuration, loaded before every command.
	cfg config.Config

	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tourney",
	Short: "Offline-first tournament client",
	Long: `tourney keeps a local cache of tournaments and reconciles it with the
tournament API.

Reads are always served from the local cache. Edits made while offline are
kept as pending changes and pushed on the next sync. The daemon refreshes the
cache periodically and sends registration, start and result reminders.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadWith(settings, configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		ui.Init(os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "auth", Title: "Account:"},
		&cobra.Group{ID: "tournaments", Title: "Tournaments:"},
		&cobra.Group{ID: "sync", Title: "Sync & Notifications:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/tourney/config.toml)")
	flags.String("api", "http://localhost:3000/api/", "Tournament API base URL")
	flags.Bool("offline", false, "Never contact the API")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log component activity to stderr")

	_ = settings.BindPFlag("api.base_url", flags.Lookup("api"))
	_ = settings.BindPFlag("api.offline", flags.Lookup("offline"))
}

// logWriter is where one-shot commands send component logs.
func logWriter() io.Writer {
	if verbose {
		return os.Stderr
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
