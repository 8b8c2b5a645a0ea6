package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tourneysync/tourney/internal/config"
	"github.com/tourneysync/tourney/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, TOURNEY_*
environment variables and flags have been applied. The output is a valid
config file.

Example:
  tourney config > ~/.config/tourney/config.toml`,
	Run: func(cmd *cobra.Command, args []string) {
		out, err := cfg.TOML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if cfg.File != "" {
			fmt.Printf("# loaded from %s\n", cfg.File)
		}
		fmt.Print(string(out))
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.File != "" {
			fmt.Println(cfg.File)
			return
		}
		fmt.Printf("%s %s\n", config.DefaultPath(), ui.RenderMuted("(not created)"))
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
