package delivery

import (
	"sync"

	"github.com/graybeam/relaypoint/internal/model"
)

// MailboxStore holds one FIFO queue per recipient of messages that have not
// yet been handed to a live poll. Queues are unbounded and created lazily on
// first enqueue.
type MailboxStore struct {
	mu     sync.Mutex
	queues map[model.Username][]*model.Message
}

func NewMailboxStore() *MailboxStore {
	return &MailboxStore{
		queues: map[model.Username][]*model.Message{},
	}
}

// Enqueue appends the message to the recipient's queue in arrival order. It
// never blocks and never drops.
func (s *MailboxStore) Enqueue(recipient model.Username, message *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[recipient] = append(s.queues[recipient], message)
}

// Drain removes and returns everything queued for the recipient, oldest
// first, leaving the mailbox empty. A message enqueued concurrently with a
// drain ends up either in the drained batch or still queued, never both and
// never neither.
func (s *MailboxStore) Drain(recipient model.Username) []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.queues[recipient]
	delete(s.queues, recipient)
	return batch
}

// Len reports how many messages are queued for the recipient.
func (s *MailboxStore) Len(recipient model.Username) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[recipient])
}
