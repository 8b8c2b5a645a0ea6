package store

import (
	"context"
	"sync"
	"time"
)

// Op names the kind of committed mutation announced on the change stream.
type Op string

const (
	OpUpsert  Op = "upsert"
	OpPending Op = "pending"
	OpDelete  Op = "delete"
	OpClear   Op = "clear"
)

// Change describes one committed mutation.
type Change struct {
	Op Op
	// Keys lists the affected record keys. It is empty for OpClear.
	Keys []string
	At   time.Time
}

// subscriptionBuffer bounds how many changes a slow subscriber may lag
// behind before further changes are dropped for it.
const subscriptionBuffer = 32

// Subscription receives every change committed after it was created.
//
// Writers never block on a subscriber. When the buffer is full the change is
// dropped for that subscriber; at least one undelivered change is then still
// queued, so a subscriber that re-reads state on every change still observes
// the newest state.
type Subscription struct {
	store  *Store
	ch     chan Change
	once   sync.Once
	closed bool
}

// Subscribe opens a change stream. Call Close to release it.
func (s *Store) Subscribe() *Subscription {
	sub := &Subscription{
		store: s,
		ch:    make(chan Change, subscriptionBuffer),
	}
	s.subsMu.Lock()
	s.subs[sub] = struct{}{}
	s.subsMu.Unlock()
	return sub
}

// Changes returns the receive side of the stream. It is closed by Close.
func (sub *Subscription) Changes() <-chan Change {
	return sub.ch
}

// Close detaches the subscription and closes its channel.
func (sub *Subscription) Close() {
	sub.store.subsMu.Lock()
	defer sub.store.subsMu.Unlock()
	delete(sub.store.subs, sub)
	sub.closeLocked()
}

// closeLocked must be called with store.subsMu held.
func (sub *Subscription) closeLocked() {
	sub.once.Do(func() {
		sub.closed = true
		close(sub.ch)
	})
}

func (s *Store) publish(op Op, keys []string) {
	if op != OpClear && len(keys) == 0 {
		return
	}
	change := Change{Op: op, Keys: keys, At: s.now()}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for sub := range s.subs {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- change:
		default:
		}
	}
}

// WatchAll is a live ListAll. The returned channel yields the current list
// immediately and a fresh list after every committed change. It is closed
// when ctx is cancelled or the store is closed.
func (s *Store) WatchAll(ctx context.Context) (<-chan []Record, error) {
	sub := s.Subscribe()

	initial, err := s.ListAll(ctx)
	if err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan []Record, 1)
	go func() {
		defer close(out)
		defer sub.Close()

		snapshot := initial
		for {
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Changes():
				if !ok {
					return
				}
			}

			next, err := s.ListAll(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Printf("Warning: live query failed: %v", err)
				}
				return
			}
			snapshot = next
		}
	}()

	return out, nil
}
