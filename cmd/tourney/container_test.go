package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samber/do"

	"github.com/tourneysync/tourney/internal/config"
	"github.com/tourneysync/tourney/internal/notify"
	"github.com/tourneysync/tourney/internal/reconcile"
	"github.com/tourneysync/tourney/internal/store"
	"github.com/tourneysync/tourney/internal/tournament"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	c, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	c.API.Offline = true
	return c
}

type collector struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (c *collector) Notify(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	c.got = append(c.got, n)
	c.mu.Unlock()
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestContainer_OfflineCreateIsPending(t *testing.T) {
	c := testConfig(t)
	injector := NewContainer(c, containerOptions{})
	defer shutdown(injector)

	engine := do.MustInvoke[*reconcile.Engine](injector)
	st := do.MustInvoke[*store.Store](injector)

	if got := st.Path(); got != c.Store.Path || filepath.Base(got) != "tourney.db" {
		t.Fatalf("unexpected store path %q", got)
	}

	start := time.Now().Add(48 * time.Hour)
	saved, err := engine.CreateOrUpdate(context.Background(), tournament.Tournament{
		Name:      "Offline Cup",
		StartDate: start,
		EndDate:   start.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if !saved.ID.IsDraft() {
		t.Fatalf("expected draft id offline, got %s", saved.ID)
	}

	rec, err := st.Get(context.Background(), saved.ID.Key())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.HasPendingChanges || rec.Status != tournament.StatusUpcoming {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestContainer_SharesStore(t *testing.T) {
	injector := NewContainer(testConfig(t), containerOptions{})
	defer shutdown(injector)

	sweeper := do.MustInvoke[*notify.Sweeper](injector)
	st := do.MustInvoke[*store.Store](injector)
	if sweeper.Records != st {
		t.Fatal("sweeper should read the container's store")
	}
}

func TestNotifierChain(t *testing.T) {
	// A registration reminder, so quiet hours apply.
	n := notify.Notification{
		Category:      notify.CategoryRegistration,
		ID:            "registration_reminders:t-1",
		Window:        "registration-24h",
		TournamentKey: "t-1",
		Body:          "Registration closes soon",
		At:            time.Now(),
	}

	tests := []struct {
		name     string
		fireOnce bool
		allDay   bool
		want     int
	}{
		{"replace by id drops repeats", false, true, 1},
		{"fire once drops repeats", true, true, 1},
		{"quiet hours hold back", false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t)
			c.Notify.FireOnce = tt.fireOnce
			if tt.allDay {
				c.Notify.QuietStart, c.Notify.QuietEnd = 0, 23
			} else {
				// A one-hour window that excludes the current hour.
				h := time.Now().Hour()
				c.Notify.QuietStart, c.Notify.QuietEnd = (h+1)%24, (h+1)%24
			}

			st, err := store.Open(c.Store.Path)
			if err != nil {
				t.Fatalf("store.Open: %v", err)
			}
			defer st.Close()

			sink := &collector{}
			chain := notifierChain(c, st, containerOptions{Notifiers: []notify.Notifier{sink}})
			for i := 0; i < 2; i++ {
				if err := chain.Notify(context.Background(), n); err != nil {
					t.Fatalf("Notify: %v", err)
				}
			}
			if got := sink.count(); got != tt.want {
				t.Fatalf("expected %d deliveries, got %d", tt.want, got)
			}
		})
	}
}

func TestCommandGroupsRegistered(t *testing.T) {
	for _, cmd := range rootCmd.Commands() {
		if cmd.GroupID == "" {
			continue
		}
		if !rootCmd.ContainsGroup(cmd.GroupID) {
			t.Errorf("command %q uses unknown group %q", cmd.Name(), cmd.GroupID)
		}
	}

	for _, name := range []string{"login", "logout", "list", "show", "create", "edit", "delete", "sync", "notify", "daemon", "config"} {
		if c, _, err := rootCmd.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}
