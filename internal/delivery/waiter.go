package delivery

import (
	"sync"
	"time"

	"github.com/graybeam/relaypoint/internal/model"
)

// Waiter is a suspended poll awaiting new messages or its deadline. The
// result channel is the completion handle: it receives exactly one batch,
// nil on expiry or cancellation.
type Waiter struct {
	recipient model.Username
	deadline  time.Time
	resolved  bool
	timer     *time.Timer
	done      chan []*model.Message
}

// Result returns the channel the poll blocks on. It yields exactly one value.
func (w *Waiter) Result() <-chan []*model.Message {
	return w.done
}

func (w *Waiter) Deadline() time.Time {
	return w.deadline
}

// WaiterRegistry maps each recipient to at most one outstanding poll.
// Resolution, expiry and cancellation are mutually exclusive per waiter:
// exactly one of them ever completes a given waiter instance.
type WaiterRegistry struct {
	mu      sync.Mutex
	waiters map[model.Username]*Waiter
}

func NewWaiterRegistry() *WaiterRegistry {
	return &WaiterRegistry{
		waiters: map[model.Username]*Waiter{},
	}
}

// Register stores a new waiter for the recipient and arms its expiry timer.
// Returns model.ErrorAlreadyWaiting when a live waiter already exists; the
// caller decides the replacement policy.
func (r *WaiterRegistry) Register(recipient model.Username, deadline time.Time) (*Waiter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.waiters[recipient]; ok {
		return nil, model.ErrorAlreadyWaiting
	}

	w := &Waiter{
		recipient: recipient,
		deadline:  deadline,
		done:      make(chan []*model.Message, 1),
	}
	w.timer = time.AfterFunc(time.Until(deadline), func() {
		r.Expire(recipient)
	})
	r.waiters[recipient] = w
	return w, nil
}

// TryResolve completes the recipient's waiter with the batch produced by
// fetch. fetch runs inside the registry's critical section, so the mailbox
// drain and the resolution are atomic with respect to Expire and Cancel. An
// empty batch leaves the waiter live: a poll is never completed early with
// nothing to show.
func (r *WaiterRegistry) TryResolve(recipient model.Username, fetch func() []*model.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiters[recipient]
	if !ok || w.resolved {
		return false
	}
	batch := fetch()
	if len(batch) == 0 {
		return false
	}
	r.complete(w, batch)
	return true
}

// Expire completes the recipient's waiter with an empty result if its
// deadline has passed. Reports whether an expiry action was taken.
func (r *WaiterRegistry) Expire(recipient model.Username) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiters[recipient]
	if !ok || w.resolved || time.Now().Before(w.deadline) {
		return false
	}
	r.complete(w, nil)
	return true
}

// Cancel completes an outstanding waiter with an empty result regardless of
// its deadline. This backs the duplicate-poll policy: a newer poll for the
// same recipient supersedes a stale one. There is no client-facing
// cancellation path.
func (r *WaiterRegistry) Cancel(recipient model.Username) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiters[recipient]
	if !ok || w.resolved {
		return false
	}
	r.complete(w, nil)
	return true
}

// Snapshot returns the recipients that currently have a live waiter.
func (r *WaiterRegistry) Snapshot() []model.Username {
	r.mu.Lock()
	defer r.mu.Unlock()

	recipients := make([]model.Username, 0, len(r.waiters))
	for recipient := range r.waiters {
		recipients = append(recipients, recipient)
	}
	return recipients
}

// complete is called with the registry lock held.
func (r *WaiterRegistry) complete(w *Waiter, batch []*model.Message) {
	w.resolved = true
	if w.timer != nil {
		w.timer.Stop()
	}
	delete(r.waiters, w.recipient)
	// buffered, never blocks even if the poll has already gone away
	w.done <- batch
}
