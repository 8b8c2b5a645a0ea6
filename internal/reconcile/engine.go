package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tourneysync/tourney/internal/notify"
	"github.com/tourneysync/tourney/internal/remote"
	"github.com/tourneysync/tourney/internal/store"
	"github.com/tourneysync/tourney/internal/tournament"
)

const (
	DefaultPageLimit = 10
	DefaultMaxPages  = 50
)

// Credentials is the session capability the engine needs.
type Credentials interface {
	AuthToken() (string, bool)
	IsAuthenticated() bool
	Save(cred remote.Credential) error
	Clear() error
}

// Options configures an Engine. Store, Gateway and Session are required.
type Options struct {
	Store    *store.Store
	Gateway  remote.Gateway
	Session  Credentials
	Network  remote.Reachability
	Notifier notify.Notifier

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Logger defaults to stderr with a "[sync] " prefix.
	Logger *log.Logger

	PageLimit int
	MaxPages  int
}

// Engine reconciles the local store with the remote API.
type Engine struct {
	store    *store.Store
	gateway  remote.Gateway
	session  Credentials
	network  remote.Reachability
	notifier notify.Notifier
	now      func() time.Time
	logger   *log.Logger

	pageLimit int
	maxPages  int

	pushes singleflight.Group
}

// New creates an Engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway cannot be nil")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}

	e := &Engine{
		store:     opts.Store,
		gateway:   opts.Gateway,
		session:   opts.Session,
		network:   opts.Network,
		notifier:  opts.Notifier,
		now:       opts.Clock,
		logger:    opts.Logger,
		pageLimit: opts.PageLimit,
		maxPages:  opts.MaxPages,
	}
	if e.network == nil {
		e.network = remote.Static(true)
	}
	if e.notifier == nil {
		e.notifier = notify.Discard
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if e.pageLimit <= 0 {
		e.pageLimit = DefaultPageLimit
	}
	if e.maxPages <= 0 {
		e.maxPages = DefaultMaxPages
	}
	return e, nil
}

// PageLimit returns the page size used when callers pass zero.
func (e *Engine) PageLimit() int {
	return e.pageLimit
}

// Refresh pushes pending changes, then fetches one page and merges it into
// the store. A failed push is logged and does not stop the fetch. On a
// failed fetch the store is untouched and a *SyncError is returned.
func (e *Engine) Refresh(ctx context.Context, page, limit int) (remote.Pagination, error) {
	e.pushBestEffort(ctx)
	return e.refreshPage(ctx, page, limit)
}

// RefreshAll pushes pending changes once, then refreshes pages from 1 until
// the API reports no more, bounded by the configured page cap. It returns
// the number of pages merged.
func (e *Engine) RefreshAll(ctx context.Context, limit int) (int, error) {
	e.pushBestEffort(ctx)

	pages := 0
	for page := 1; page <= e.maxPages; page++ {
		p, err := e.refreshPage(ctx, page, limit)
		if err != nil {
			return pages, err
		}
		pages++
		if !p.HasMore || (p.TotalPages > 0 && page >= p.TotalPages) {
			return pages, nil
		}
	}
	e.logger.Printf("WARNING: Stopped after %d pages; more remain on the server", e.maxPages)
	return pages, nil
}

func (e *Engine) pushBestEffort(ctx context.Context) {
	if _, err := e.PushPending(ctx); err != nil && !errors.Is(err, ErrNotAuthenticated) {
		e.logger.Printf("WARNING: Failed to push pending changes: %v", err)
	}
}

func (e *Engine) refreshPage(ctx context.Context, page, limit int) (remote.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = e.pageLimit
	}

	token, ok := e.session.AuthToken()
	if !ok {
		return remote.Pagination{}, ErrNotAuthenticated
	}

	items, pagination, err := e.gateway.ListTournaments(ctx, token, page, limit)
	if err != nil {
		return remote.Pagination{}, &SyncError{Op: fmt.Sprintf("fetch page %d", page), Err: err}
	}

	recs := make([]store.Record, 0, len(items))
	for _, item := range items {
		if _, saved := item.ID.Remote(); !saved {
			e.logger.Printf("WARNING: Skipping remote tournament %q without an id", item.Name)
			continue
		}
		local, err := e.lookup(ctx, item.ID.Key())
		if err != nil {
			return pagination, err
		}
		recs = append(recs, confirmed(merge(item, local)))
	}

	if err := e.store.UpsertMany(ctx, recs); err != nil {
		return pagination, fmt.Errorf("failed to store page %d: %w", page, err)
	}

	e.logger.Printf("Refreshed page %d: %d tournaments", page, len(recs))
	return pagination, nil
}

// lookup returns the stored record for key, or nil when there is none.
func (e *Engine) lookup(ctx context.Context, key string) (*store.Record, error) {
	rec, err := e.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// merge takes every field from the remote copy except the coordinates,
// which stay local whenever the device has captured them.
func merge(remoteCopy tournament.Tournament, local *store.Record) tournament.Tournament {
	out := remoteCopy
	if local != nil && local.HasLocation() {
		out.Latitude = local.Latitude
		out.Longitude = local.Longitude
	}
	return out
}

func confirmed(t tournament.Tournament) store.Record {
	return store.Record{Tournament: t, Version: 1, HasPendingChanges: false}
}

// PushResult summarizes one PushPending call.
type PushResult struct {
	Pushed  int
	Failed  int
	Skipped bool
}

// PushPending sends every record with local changes to the API. Each key
// is pushed at most once per call, and concurrent calls share an in-flight
// push for the same key. Each record is re-read before it is sent, so one
// that another call confirmed in the meantime is not sent again. A record
// whose push fails keeps its pending flag.
// The whole pass is skipped while the network is unreachable.
func (e *Engine) PushPending(ctx context.Context) (PushResult, error) {
	if !e.network.IsNetworkReachable(ctx) {
		return PushResult{Skipped: true}, nil
	}
	token, ok := e.session.AuthToken()
	if !ok {
		return PushResult{Skipped: true}, ErrNotAuthenticated
	}

	pending, err := e.store.ListPending(ctx)
	if err != nil {
		return PushResult{}, fmt.Errorf("failed to list pending records: %w", err)
	}

	var res PushResult
	seen := make(map[string]struct{}, len(pending))
	for _, rec := range pending {
		key := rec.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		sent, err, _ := e.pushes.Do(key, func() (any, error) {
			return e.pushCurrent(ctx, token, key)
		})
		if err != nil {
			e.logger.Printf("WARNING: Failed to push %s: %v", rec.ID, err)
			res.Failed++
			continue
		}
		if sent.(bool) {
			res.Pushed++
		}
	}

	if res.Pushed > 0 || res.Failed > 0 {
		e.logger.Printf("Push complete: pushed=%d failed=%d", res.Pushed, res.Failed)
	}
	return res, nil
}

// pushCurrent sends the record stored under key as it is now. The listing
// that named key may be stale: another push can have confirmed or re-keyed
// the record since, and then nothing is sent.
func (e *Engine) pushCurrent(ctx context.Context, token, key string) (bool, error) {
	rec, err := e.lookup(ctx, key)
	if err != nil {
		return false, err
	}
	if rec == nil || !rec.HasPendingChanges {
		return false, nil
	}

	server, err := e.send(ctx, token, rec.Tournament)
	if err != nil {
		return false, err
	}
	return true, e.persistConfirmed(ctx, rec.ID, merge(server, rec))
}

// send creates or updates t remotely depending on whether it has a remote id.
func (e *Engine) send(ctx context.Context, token string, t tournament.Tournament) (tournament.Tournament, error) {
	if id, saved := t.ID.Remote(); saved {
		return e.gateway.UpdateTournament(ctx, token, id, t)
	}
	created, err := e.gateway.CreateTournament(ctx, token, t)
	if err != nil {
		return tournament.Tournament{}, err
	}
	if _, saved := created.ID.Remote(); !saved {
		return tournament.Tournament{}, fmt.Errorf("create response for %q carried no id", t.Name)
	}
	return created, nil
}

// persistConfirmed stores the server's copy of a record previously kept
// under oldID. Drafts are re-keyed to the remote id.
func (e *Engine) persistConfirmed(ctx context.Context, oldID tournament.ID, t tournament.Tournament) error {
	rec := confirmed(t)
	if oldID.IsDraft() {
		return e.store.Replace(ctx, oldID.Key(), rec)
	}
	return e.store.Upsert(ctx, rec)
}

// CreateOrUpdate saves a user edit. When the API cannot take it (offline,
// logged out, or a rejected request) the tournament is stored locally with
// its pending flag set and the call still succeeds. Only invalid input and
// storage failures are returned as errors.
//
// On the update path a status transition is announced before anything is
// persisted.
func (e *Engine) CreateOrUpdate(ctx context.Context, t tournament.Tournament) (tournament.Tournament, error) {
	t.Normalize()
	if t.Status == "" {
		t.Status = tournament.DeriveStatus(t.StartDate, t.EndDate, e.now())
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid tournament: %w", err)
	}
	return e.save(ctx, t)
}

// save is CreateOrUpdate without input validation. Records that came from
// the API go through here as they are.
func (e *Engine) save(ctx context.Context, t tournament.Tournament) (tournament.Tournament, error) {
	if !t.ID.IsZero() {
		prev, err := e.lookup(ctx, t.ID.Key())
		if err != nil {
			return t, err
		}
		if prev != nil {
			e.announce(ctx, prev.Status, t)
		}
	}

	server, err := e.trySend(ctx, t)
	if err != nil {
		e.logger.Printf("Saving %s locally: %v", describe(t), err)
		if t.ID.IsZero() {
			t.ID = tournament.NewDraft()
		}
		if err := e.store.Upsert(ctx, store.Record{Tournament: t, Version: 1, HasPendingChanges: true}); err != nil {
			return t, err
		}
		return t, nil
	}

	var local *store.Record
	if t.HasLocation() {
		local = &store.Record{Tournament: t}
	}
	saved := merge(server, local)
	if err := e.persistConfirmed(ctx, t.ID, saved); err != nil {
		return saved, err
	}
	return saved, nil
}

func (e *Engine) trySend(ctx context.Context, t tournament.Tournament) (tournament.Tournament, error) {
	if !e.network.IsNetworkReachable(ctx) {
		return tournament.Tournament{}, ErrNetworkUnreachable
	}
	token, ok := e.session.AuthToken()
	if !ok {
		return tournament.Tournament{}, ErrNotAuthenticated
	}
	return e.send(ctx, token, t)
}

func (e *Engine) announce(ctx context.Context, prev tournament.Status, t tournament.Tournament) {
	n, ok := notify.StatusChange(prev, t, e.now())
	if !ok {
		return
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Printf("WARNING: Failed to deliver %s notification for %s: %v", n.Category, t.ID, err)
	}
}

// CheckAndUpdateStatuses re-derives the status of every record and saves
// those that changed the way CreateOrUpdate does, except that stored
// content is not re-validated. Individual failures are logged
// and skipped. When anything changed, one Refresh follows and its error is
// returned. The number of changed records is returned either way.
func (e *Engine) CheckAndUpdateStatuses(ctx context.Context) (int, error) {
	recs, err := e.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read tournaments: %w", err)
	}

	now := e.now()
	changed := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		derived := tournament.DeriveStatus(rec.StartDate, rec.EndDate, now)
		if derived == rec.Status {
			continue
		}

		t := rec.Tournament
		t.Status = derived
		if _, err := e.save(ctx, t); err != nil {
			e.logger.Printf("WARNING: Failed to update status of %s: %v", rec.ID, err)
			continue
		}
		e.logger.Printf("Status of %s: %s -> %s", describe(t), rec.Status, derived)
		changed++
	}

	if changed == 0 {
		return 0, nil
	}
	if _, err := e.Refresh(ctx, 1, e.pageLimit); err != nil {
		return changed, err
	}
	return changed, nil
}

// Delete removes a tournament. A saved tournament is removed locally only
// after the API confirms the delete; on failure the record is left as it
// was and the error is returned. Drafts never reached the API and are
// removed locally.
func (e *Engine) Delete(ctx context.Context, t tournament.Tournament) error {
	key := t.ID.Key()
	if key == "" {
		return fmt.Errorf("cannot delete an unsaved tournament")
	}

	id, saved := t.ID.Remote()
	if saved {
		if !e.network.IsNetworkReachable(ctx) {
			return ErrNetworkUnreachable
		}
		token, ok := e.session.AuthToken()
		if !ok {
			return ErrNotAuthenticated
		}
		if err := e.gateway.DeleteTournament(ctx, token, id); err != nil {
			return fmt.Errorf("failed to delete %s remotely: %w", id, err)
		}
	}

	if err := e.store.Delete(ctx, key); err != nil {
		return err
	}
	e.logger.Printf("Deleted %s", describe(t))
	return nil
}

// Get returns the tournament stored under key. When it is not cached and a
// session exists, it is fetched from the API and cached.
func (e *Engine) Get(ctx context.Context, key string) (tournament.Tournament, error) {
	rec, err := e.store.Get(ctx, key)
	if err == nil {
		return rec.Tournament, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return tournament.Tournament{}, err
	}

	// Drafts are always cached, so an unknown key can only be a remote id.
	id := key
	token, ok := e.session.AuthToken()
	if id == "" || !ok || !e.network.IsNetworkReachable(ctx) {
		return tournament.Tournament{}, err
	}

	t, fetchErr := e.gateway.GetTournament(ctx, token, id)
	if fetchErr != nil {
		if remote.IsNotFound(fetchErr) {
			return tournament.Tournament{}, err
		}
		return tournament.Tournament{}, &SyncError{Op: "fetch " + id, Err: fetchErr}
	}
	if err := e.store.Upsert(ctx, confirmed(t)); err != nil {
		return t, err
	}
	return t, nil
}

// Login exchanges credentials for a token and stores it in the session.
func (e *Engine) Login(ctx context.Context, email, password string) (remote.Credential, error) {
	cred, err := e.gateway.Login(ctx, email, password)
	if err != nil {
		return remote.Credential{}, err
	}
	if err := e.session.Save(cred); err != nil {
		return remote.Credential{}, fmt.Errorf("failed to save session: %w", err)
	}
	e.logger.Printf("Logged in as %s", cred.Email)
	return cred, nil
}

// Logout forgets the credential and wipes the local cache.
func (e *Engine) Logout(ctx context.Context) error {
	if err := e.session.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if err := e.store.Clear(ctx); err != nil {
		return err
	}
	e.logger.Printf("Logged out")
	return nil
}

// Tournaments lists every cached record.
func (e *Engine) Tournaments(ctx context.Context) ([]store.Record, error) {
	return e.store.ListAll(ctx)
}

// Watch streams the full record list after every change.
func (e *Engine) Watch(ctx context.Context) (<-chan []store.Record, error) {
	return e.store.WatchAll(ctx)
}

func describe(t tournament.Tournament) string {
	return fmt.Sprintf("%s (%s)", t.Name, t.ID)
}
