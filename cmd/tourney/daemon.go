package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tourneysync/tourney/internal/daemon"
	"github.com/tourneysync/tourney/internal/dashboard"
	"github.com/tourneysync/tourney/internal/notify"
	"github.com/tourneysync/tourney/internal/reconcile"
	"github.com/tourneysync/tourney/internal/session"
	"github.com/tourneysync/tourney/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Run periodic sync and reminders in the foreground",
	Long: `Run the background jobs until interrupted:

  sync   every sync.interval: re-derive statuses, push, fetch all pages
  sweep  every notify.interval: deliver due reminders

Both jobs run once at startup. A failed job is retried up to 3 times; a
missing session fails at once and waits for the next run or a login.

Logs go to log.file (rotated). With --dashboard a WebSocket dashboard is
served as well:
  ws://127.0.0.1:8080/ws          tournaments, notification, sync_complete, stats
  http://127.0.0.1:8080/api/tournaments`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runDaemon(ctx context.Context) error {
	rotator := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}
	defer rotator.Close()

	var logs io.Writer = rotator
	if verbose {
		logs = io.MultiWriter(rotator, os.Stderr)
	}

	opts := containerOptions{LogWriter: logs}

	var server *dashboard.Server
	if cfg.Dashboard.Enabled {
		server = dashboard.NewServer(&dashboard.Config{
			Host:   cfg.Dashboard.Host,
			Port:   cfg.Dashboard.Port,
			Logger: log.New(logs, "[dashboard] ", log.LstdFlags),
		})
		opts.Notifiers = append(opts.Notifiers, server)
	}

	injector := NewContainer(cfg, opts)
	defer shutdown(injector)

	engine, err := do.Invoke[*reconcile.Engine](injector)
	if err != nil {
		return err
	}
	sweeper, err := do.Invoke[*notify.Sweeper](injector)
	if err != nil {
		return err
	}
	sess, err := do.Invoke[*session.Store](injector)
	if err != nil {
		return err
	}

	dcfg := daemon.DefaultConfig()
	dcfg.SyncInterval = cfg.Sync.Interval
	dcfg.SweepInterval = cfg.Notify.Interval
	dcfg.PageLimit = cfg.Sync.PageLimit
	dcfg.SessionPath = cfg.Session.Path
	dcfg.Logger = log.New(logs, "[daemon] ", log.LstdFlags)

	var handler *dashboard.Handler
	if server != nil {
		handler = dashboard.NewHandler(server, dcfg.Logger)
		dcfg.OnSync = func(r daemon.SyncReport) {
			handler.OnSyncComplete(r.Changed, r.Pages, r.Duration)
		}
	}

	d, err := daemon.NewWithConfig(engine, sweeper, sess, dcfg)
	if err != nil {
		return err
	}

	fmt.Printf("%s Starting tourney daemon...\n", ui.RenderAccent("🚀"))
	fmt.Printf("   API: %s\n", cfg.API.BaseURL)
	fmt.Printf("   Cache: %s\n", cfg.Store.Path)
	fmt.Printf("   Sync every: %s\n", cfg.Sync.Interval)
	fmt.Printf("   Reminders every: %s\n", cfg.Notify.Interval)
	fmt.Printf("   Log: %s\n", cfg.Log.File)

	g, gctx := errgroup.WithContext(ctx)

	if server != nil {
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		fmt.Printf("   Dashboard: http://%s\n", server.GetAddr())

		updates, err := engine.Watch(gctx)
		if err != nil {
			_ = server.Stop()
			return err
		}
		g.Go(func() error {
			handler.Run(gctx, updates)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return server.Stop()
		})
	}

	fmt.Printf("\nPress Ctrl+C to stop\n\n")

	started := time.Now()
	g.Go(func() error {
		return d.Start(gctx)
	})

	err = g.Wait()
	for _, st := range d.Status() {
		line := fmt.Sprintf("   %s: %d run(s)", st.Name, st.Runs)
		if st.Failed {
			line += " " + ui.RenderFail(fmt.Sprintf("last failed: %v", st.LastErr))
		}
		fmt.Println(line)
	}
	fmt.Printf("%s Daemon stopped after %v\n", ui.RenderPass("✓"), time.Since(started).Round(time.Second))
	return err
}

func init() {
	f := daemonCmd.Flags()
	f.Bool("dashboard", false, "Serve the WebSocket dashboard")
	f.IntP("port", "p", 8080, "Dashboard port")
	f.Duration("interval", 15*time.Minute, "Sync interval")

	_ = settings.BindPFlag("dashboard.enabled", f.Lookup("dashboard"))
	_ = settings.BindPFlag("dashboard.port", f.Lookup("port"))
	_ = settings.BindPFlag("sync.interval", f.Lookup("interval"))

	rootCmd.AddCommand(daemonCmd)
}
