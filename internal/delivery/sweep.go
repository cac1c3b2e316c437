package delivery

import (
	"context"
	"time"

	"github.com/graybeam/relaypoint/internal/model"
	"github.com/labstack/gommon/log"
)

// Sweep periodically expires timed-out waiters and matches any that still
// have queued mail. The direct TryResolve on the send path and the
// per-waiter expiry timer are the primary mechanisms; the sweep is a safety
// net so no waiter can be stranded.
type Sweep struct {
	interval  time.Duration
	waiters   *WaiterRegistry
	mailboxes *MailboxStore
}

func NewSweep(interval time.Duration, waiters *WaiterRegistry, mailboxes *MailboxStore) *Sweep {
	return &Sweep{
		interval:  interval,
		waiters:   waiters,
		mailboxes: mailboxes,
	}
}

// Run ticks until the context is cancelled.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Infof("delivery sweep running every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Info("delivery sweep stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sweep) tick() {
	for _, recipient := range s.waiters.Snapshot() {
		if s.waiters.Expire(recipient) {
			continue
		}
		if s.mailboxes.Len(recipient) == 0 {
			continue
		}
		recipient := recipient
		s.waiters.TryResolve(recipient, func() []*model.Message {
			return s.mailboxes.Drain(recipient)
		})
	}
}
