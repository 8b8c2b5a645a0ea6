package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tourneysync/tourney/internal/reconcile"
	"github.com/tourneysync/tourney/internal/session"
	"github.com/tourneysync/tourney/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "auth",
	Short:   "Sign in to the tournament API",
	Long: `Sign in and store the bearer token in the session file.

When --email or --password is missing and stdin is a terminal, you are
prompted for it. A running daemon notices the new session and syncs at once.`,
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("TOURNEY_PASSWORD")
		}
		if err := runLogin(cmd.Context(), email, password); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "auth",
	Short:   "Sign out and wipe the local cache",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runLogout(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "auth",
	Short:   "Show the signed-in account",
	Run: func(cmd *cobra.Command, args []string) {
		injector := NewContainer(cfg, containerOptions{LogWriter: logWriter()})
		defer shutdown(injector)

		sess, err := do.Invoke[*session.Store](injector)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cur, ok := sess.Current()
		if !ok {
			fmt.Printf("%s Not logged in\n", ui.RenderWarn("⚠"))
			return
		}
		who := cur.Email
		if who == "" {
			who = cur.UserID
		}
		fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), who)
		fmt.Printf("   Since: %s\n", cur.SavedAt.Local().Format(ui.TimeLayout))
		fmt.Printf("   Session: %s\n", sess.Path())
	},
}

func runLogin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("--email and --password are required when stdin is not a terminal")
		}
		if err := promptCredentials(&email, &password); err != nil {
			return err
		}
	}

	injector := NewContainer(cfg, containerOptions{LogWriter: logWriter()})
	defer shutdown(injector)

	engine, err := do.Invoke[*reconcile.Engine](injector)
	if err != nil {
		return err
	}
	cred, err := engine.Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Printf("%s Logged in as %s\n", ui.RenderPass("✓"), cred.Email)
	return nil
}

func promptCredentials(email, password *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return errors.New("enter an email address")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(password),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("login prompt: %w", err)
	}
	return nil
}

func runLogout(ctx context.Context) error {
	injector := NewContainer(cfg, containerOptions{LogWriter: logWriter()})
	defer shutdown(injector)

	engine, err := do.Invoke[*reconcile.Engine](injector)
	if err != nil {
		return err
	}
	if err := engine.Logout(ctx); err != nil {
		return err
	}
	fmt.Printf("%s Logged out, local cache cleared\n", ui.RenderPass("✓"))
	return nil
}

func init() {
	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.Flags().String("password", "", "Account password (or set TOURNEY_PASSWORD)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
