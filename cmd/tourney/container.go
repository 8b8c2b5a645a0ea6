package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/samber/do"

	"github.com/tourneysync/tourney/internal/config"
	"github.com/tourneysync/tourney/internal/notify"
	"github.com/tourneysync/tourney/internal/reconcile"
	"github.com/tourneysync/tourney/internal/remote"
	"github.com/tourneysync/tourney/internal/session"
	"github.com/tourneysync/tourney/internal/store"
)

// containerOptions tunes how the services are built for one command.
type containerOptions struct {
	// LogWriter receives component logs. Nil discards them.
	LogWriter io.Writer

	// Notifiers are extra delivery channels next to the log.
	Notifiers []notify.Notifier
}

func (o containerOptions) logger(prefix string) *log.Logger {
	w := o.LogWriter
	if w == nil {
		w = io.Discard
	}
	return log.New(w, prefix, log.LstdFlags)
}

// NewContainer wires store, session, gateway and engine for cfg. Services
// are built on first use; call Shutdown on the injector when done.
func NewContainer(cfg config.Config, opts containerOptions) *do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)

	do.Provide(injector, func(i *do.Injector) (*store.Store, error) {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open tournament cache: %w", err)
		}
		st.SetLogger(opts.logger("[store] "))
		return st, nil
	})

	do.Provide(injector, func(i *do.Injector) (*session.Store, error) {
		return session.Open(cfg.Session.Path)
	})

	do.Provide(injector, func(i *do.Injector) (remote.Gateway, error) {
		return remote.NewClient(remote.ClientConfig{
			BaseURL: cfg.API.BaseURL,
			Timeout: cfg.API.Timeout,
			Retries: cfg.API.Retries,
		})
	})

	do.Provide(injector, func(i *do.Injector) (remote.Reachability, error) {
		if cfg.API.Offline {
			return remote.Static(false), nil
		}
		return remote.NewProbe(cfg.API.BaseURL, 0)
	})

	do.Provide(injector, func(i *do.Injector) (notify.Notifier, error) {
		st, err := do.Invoke[*store.Store](i)
		if err != nil {
			return nil, err
		}
		return notifierChain(cfg, st, opts), nil
	})

	do.Provide(injector, func(i *do.Injector) (*reconcile.Engine, error) {
		st, err := do.Invoke[*store.Store](i)
		if err != nil {
			return nil, err
		}
		sess, err := do.Invoke[*session.Store](i)
		if err != nil {
			return nil, err
		}
		gw, err := do.Invoke[remote.Gateway](i)
		if err != nil {
			return nil, err
		}
		network, err := do.Invoke[remote.Reachability](i)
		if err != nil {
			return nil, err
		}
		notifier, err := do.Invoke[notify.Notifier](i)
		if err != nil {
			return nil, err
		}
		return reconcile.New(reconcile.Options{
			Store:     st,
			Gateway:   gw,
			Session:   sess,
			Network:   network,
			Notifier:  notifier,
			Logger:    opts.logger("[sync] "),
			PageLimit: cfg.Sync.PageLimit,
			MaxPages:  cfg.Sync.MaxPages,
		})
	})

	do.Provide(injector, func(i *do.Injector) (*notify.Sweeper, error) {
		st, err := do.Invoke[*store.Store](i)
		if err != nil {
			return nil, err
		}
		notifier, err := do.Invoke[notify.Notifier](i)
		if err != nil {
			return nil, err
		}
		return &notify.Sweeper{
			Records:  st,
			Notifier: notifier,
			Logger:   opts.logger("[notify] "),
		}, nil
	})

	return injector
}

// notifierChain puts quiet hours in front of the delivery channels and
// replace-by-id behind them. With notify.fire_once every delivered window is
// also recorded in the store.
func notifierChain(cfg config.Config, st *store.Store, opts containerOptions) notify.Notifier {
	sinks := notify.Multi{notify.NewLogNotifier(opts.logger("[notify] "))}
	sinks = append(sinks, opts.Notifiers...)

	var next notify.Notifier = notify.NewReplaceByID(sinks)
	if cfg.Notify.FireOnce {
		next = &notify.FireOnce{Next: next, Log: st}
	}

	quiet := notify.NewQuietHours(next)
	quiet.StartHour = cfg.Notify.QuietStart
	quiet.EndHour = cfg.Notify.QuietEnd
	return quiet
}

// shutdown releases every service the injector built.
func shutdown(injector *do.Injector) {
	if err := injector.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: shutdown: %v\n", err)
	}
}
