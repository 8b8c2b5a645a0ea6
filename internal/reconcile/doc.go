// Package reconcile keeps the local record store and the remote tournament
// API in agreement.
//
// The store is the source of truth for what the user sees. The engine moves
// changes in both directions:
//
//   - Refresh pulls one page from the API and merges it into the store.
//     Coordinates captured on this device survive the merge; every other
//     field takes the remote value.
//   - PushPending sends records flagged with local changes. Drafts (records
//     the API has never seen) are created remotely and then re-keyed.
//   - CreateOrUpdate saves a user edit. Connectivity problems never fail
//     the save; the record is kept locally with its pending flag set.
//   - CheckAndUpdateStatuses re-derives each record's status from the clock
//     and announces start and completion through the notifier.
//
// No lock is held across a network round-trip. Concurrent refreshes
// converge: the keyed upsert is the only mutation a fetch performs, and a
// push re-reads its record first, so a draft is created remotely once.
//
// Example:
//
//	engine, err := reconcile.New(reconcile.Options{
//	    Store:   st,
//	    Gateway: client,
//	    Session: sess,
//	    Network: probe,
//	})
//	if err != nil {
//	    return err
//	}
//	if _, err := engine.Refresh(ctx, 1, 10); err != nil {
//	    log.Printf("refresh failed: %v", err)
//	}
package reconcile
