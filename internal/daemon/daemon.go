package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/tourneysync/tourney/internal/notify"
	"github.com/tourneysync/tourney/internal/reconcile"
)

// Job names.
const (
	JobSync  = "sync"
	JobSweep = "sweep"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often statuses are re-derived and the cache is
	// refreshed from the API.
	SyncInterval time.Duration

	// SweepInterval is how often reminder windows are evaluated.
	SweepInterval time.Duration

	// MaxAttempts bounds how often one trigger is tried before the job is
	// marked failed until its next occurrence.
	MaxAttempts int

	// RetryBackoff is multiplied by the attempt number between attempts.
	RetryBackoff time.Duration

	// PageLimit is passed to RefreshAll; zero uses the engine default.
	PageLimit int

	// SessionPath, when set, is watched so that a login triggers a sync
	// right away.
	SessionPath string

	// OnSync is called after every successful sync.
	OnSync func(SyncReport)

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:  15 * time.Minute,
		SweepInterval: 15 * time.Minute,
		MaxAttempts:   3,
		RetryBackoff:  5 * time.Second,
		Logger:        log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive (got %s)", c.SyncInterval)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive (got %s)", c.SweepInterval)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1 (got %d)", c.MaxAttempts)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative (got %s)", c.RetryBackoff)
	}
	return nil
}

// Engine is the part of the reconciliation engine the daemon drives.
type Engine interface {
	CheckAndUpdateStatuses(ctx context.Context) (int, error)
	RefreshAll(ctx context.Context, limit int) (int, error)
}

// Sweeper runs one notification sweep.
type Sweeper interface {
	Run(ctx context.Context) (notify.SweepResult, error)
}

// Session is checked before every sync and reloaded when the session file
// changes.
type Session interface {
	Reload() error
	IsAuthenticated() bool
}

// SyncReport describes a completed sync.
type SyncReport struct {
	Changed  int           `json:"changed"`
	Pages    int           `json:"pages"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}

// JobStatus is the last known state of a job.
type JobStatus struct {
	Name     string
	Runs     int
	LastRun  time.Time
	Attempts int
	LastErr  error
	Failed   bool
}

// Daemon runs the sync and sweep jobs on a schedule.
type Daemon struct {
	engine  Engine
	sweeper Sweeper
	session Session
	config  *Config

	scheduler gocron.Scheduler
	watcher   *SessionWatcher
	trigger   chan struct{}

	statusMu sync.Mutex
	status   map[string]*JobStatus

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// New creates a daemon with the default configuration.
func New(engine Engine, sweeper Sweeper, session Session) (*Daemon, error) {
	return NewWithConfig(engine, sweeper, session, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration. session may be
// nil when SessionPath is empty.
func NewWithConfig(engine Engine, sweeper Sweeper, session Session, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.SessionPath != "" && session == nil {
		return nil, fmt.Errorf("session cannot be nil when watching %s", config.SessionPath)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	var watcher *SessionWatcher
	if config.SessionPath != "" {
		watcher, err = NewSessionWatcher(config.SessionPath)
		if err != nil {
			_ = scheduler.Shutdown()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:    engine,
		sweeper:   sweeper,
		session:   session,
		config:    config,
		scheduler: scheduler,
		watcher:   watcher,
		trigger:   make(chan struct{}, 1),
		status: map[string]*JobStatus{
			JobSync:  {Name: JobSync},
			JobSweep: {Name: JobSweep},
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start schedules both jobs (each runs once immediately), starts the
// session watcher and blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{JobSync, d.config.SyncInterval, d.syncOnce},
		{JobSweep, d.config.SweepInterval, d.sweepOnce},
	}
	for _, job := range jobs {
		_, err := d.scheduler.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(func() {
				_ = d.runWithRetry(d.ctx, job.name, job.run)
			}),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
		d.config.Logger.Printf("Scheduled %s every %s", job.name, job.interval)
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			return fmt.Errorf("failed to watch session: %w", err)
		}
		d.config.Logger.Printf("Watching session: %s", d.config.SessionPath)
		d.wg.Add(1)
		go d.watchSession()
	}

	d.wg.Add(1)
	go d.processTriggers()

	d.scheduler.Start()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. It waits for running jobs and is
// safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.stopErr = d.stop()
	})
	return d.stopErr
}

func (d *Daemon) stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	var errs []error
	if err := d.scheduler.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return errors.Join(errs...)
}

// TriggerSync requests a sync outside the schedule. Requests made while
// one is already queued are merged.
func (d *Daemon) TriggerSync() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of every job's state, ordered by name.
func (d *Daemon) Status() []JobStatus {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	out := make([]JobStatus, 0, len(d.status))
	for _, st := range d.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Daemon) processTriggers() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.trigger:
			d.config.Logger.Println("Running requested sync")
			_ = d.runWithRetry(d.ctx, JobSync, d.syncOnce)
		}
	}
}

func (d *Daemon) watchSession() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case _, ok := <-d.watcher.Changes():
			if !ok {
				return
			}
			if err := d.session.Reload(); err != nil {
				d.config.Logger.Printf("Error reloading session: %v", err)
				continue
			}
			if d.session.IsAuthenticated() {
				d.config.Logger.Println("Session changed, syncing")
				d.TriggerSync()
			} else {
				d.config.Logger.Println("Session cleared")
			}

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) syncOnce(ctx context.Context) error {
	if d.session != nil && !d.session.IsAuthenticated() {
		return reconcile.ErrNotAuthenticated
	}
	started := time.Now()

	changed, err := d.engine.CheckAndUpdateStatuses(ctx)
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	pages, err := d.engine.RefreshAll(ctx, d.config.PageLimit)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	report := SyncReport{Changed: changed, Pages: pages, Duration: time.Since(started), At: time.Now()}
	d.config.Logger.Printf("Sync complete: changed=%d pages=%d in %s", changed, pages, report.Duration.Round(time.Millisecond))
	if d.config.OnSync != nil {
		d.config.OnSync(report)
	}
	return nil
}

func (d *Daemon) sweepOnce(ctx context.Context) error {
	_, err := d.sweeper.Run(ctx)
	return err
}

// runWithRetry runs fn up to MaxAttempts times. Errors that need the user
// to act (no session, rejected credential) end the run at once. After the
// last failed attempt the job is marked failed and waits for its next
// occurrence.
func (d *Daemon) runWithRetry(ctx context.Context, name string, fn func(context.Context) error) error {
	var err error
	attempt := 1
	for ; ; attempt++ {
		err = fn(ctx)
		if err == nil || ctx.Err() != nil || reconcile.IsFatal(err) || attempt >= d.config.MaxAttempts {
			break
		}

		wait := d.config.RetryBackoff * time.Duration(attempt)
		d.config.Logger.Printf("WARNING: %s attempt %d/%d failed: %v (retrying in %s)",
			name, attempt, d.config.MaxAttempts, err, wait)
		if !sleep(ctx, wait) {
			err = ctx.Err()
			break
		}
	}

	d.record(name, attempt, err)
	if err != nil {
		d.config.Logger.Printf("WARNING: %s failed after %d attempt(s): %v", name, attempt, err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (d *Daemon) record(name string, attempts int, err error) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()

	st, ok := d.status[name]
	if !ok {
		st = &JobStatus{Name: name}
		d.status[name] = st
	}
	st.Runs++
	st.LastRun = time.Now()
	st.Attempts = attempts
	st.LastErr = err
	st.Failed = err != nil
}
