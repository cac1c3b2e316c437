package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/graybeam/relaypoint/internal/delivery"
	"github.com/graybeam/relaypoint/internal/model"
)

// Authz decides whether a sender may message a recipient.
type Authz interface {
	IsPermittedSender(sender, recipient model.Username) (bool, error)
}

// DurableLog is the crash-surviving store of every message. Its consistency
// is its own contract; the delivery core only requires that MarkRead makes
// FindUnread eventually stop returning a message.
type DurableLog interface {
	Append(message *model.Message) error
	FindUnread(recipient model.Username) ([]*model.Message, error)
	MarkRead(messages []*model.Message) error
}

// BlobStore persists uploaded file attachments and returns the download link
// recorded on the message.
type BlobStore interface {
	Store(filename string, r io.Reader) (string, error)
}

// Attachment is an uploaded file accompanying a message.
type Attachment struct {
	Filename string
	Content  io.Reader
}

type service struct {
	authz     Authz
	log       DurableLog
	blobs     BlobStore
	mailboxes *delivery.MailboxStore
	presence  *delivery.PresenceRegistry
	waiters   *delivery.WaiterRegistry
}

func New(authz Authz, durableLog DurableLog, blobs BlobStore,
	mailboxes *delivery.MailboxStore, presence *delivery.PresenceRegistry,
	waiters *delivery.WaiterRegistry) *service {
	return &service{
		authz:     authz,
		log:       durableLog,
		blobs:     blobs,
		mailboxes: mailboxes,
		presence:  presence,
		waiters:   waiters,
	}
}

// Send dispatches a message. The message is appended to the durable log and
// enqueued unconditionally; if the recipient has a poll suspended right now
// the whole mailbox backlog is handed to it in one batch.
func (s *service) Send(sender, recipient model.Username, body string, file *Attachment) (model.DeliveryOutcome, error) {
	permitted, err := s.authz.IsPermittedSender(sender, recipient)
	if err != nil {
		return model.DeliveryQueued, fmt.Errorf("checking sender permission: %w", err)
	}
	if !permitted {
		return model.DeliveryQueued, model.ErrorNotPermitted
	}

	message := &model.Message{
		ID:        model.MessageID(uuid.NewString()),
		CreatedAt: time.Now().UTC(),
		Sender:    sender,
		Recipient: recipient,
		Body:      body,
	}
	if file != nil {
		link, err := s.blobs.Store(file.Filename, file.Content)
		if err != nil {
			return model.DeliveryQueued, fmt.Errorf("storing attachment: %w", err)
		}
		message.FileLink = link
		message.Body = model.FileBody
	}

	if err := s.log.Append(message); err != nil {
		return model.DeliveryQueued, fmt.Errorf("%w: %s", model.ErrorPersistence, err)
	}

	s.mailboxes.Enqueue(recipient, message)
	if s.waiters.TryResolve(recipient, func() []*model.Message {
		return s.mailboxes.Drain(recipient)
	}) {
		return model.DeliveryLive, nil
	}
	return model.DeliveryQueued, nil
}

// Poll returns the recipient's pending messages, waiting up to maxWait for
// one to arrive if there are none yet. It always returns within roughly
// maxWait; an empty result on timeout is not an error.
func (s *service) Poll(ctx context.Context, recipient model.Username, maxWait time.Duration) ([]*model.Message, error) {
	s.presence.MarkEngaged(recipient)
	defer s.presence.MarkDisengaged(recipient)

	batch, err := s.collect(recipient)
	if err != nil {
		return nil, err
	}
	if len(batch) > 0 {
		if err := s.log.MarkRead(batch); err != nil {
			return nil, fmt.Errorf("marking messages read: %w", err)
		}
		return batch, nil
	}

	waiter, err := s.waiters.Register(recipient, time.Now().Add(maxWait))
	if errors.Is(err, model.ErrorAlreadyWaiting) {
		// a newer poll supersedes a stale one: complete the old poll empty
		// and take its place
		s.waiters.Cancel(recipient)
		waiter, err = s.waiters.Register(recipient, time.Now().Add(maxWait))
	}
	if err != nil {
		return nil, fmt.Errorf("registering waiter: %w", err)
	}

	// anything enqueued between the collect above and registration would
	// otherwise sit until the next send or sweep
	s.waiters.TryResolve(recipient, func() []*model.Message {
		return s.mailboxes.Drain(recipient)
	})

	select {
	case batch = <-waiter.Result():
	case <-ctx.Done():
		// disconnection counts as letting the timeout elapse; anything
		// already resolved into the handle stays unread in the log and
		// resurfaces on the next check-in
		s.waiters.Cancel(recipient)
		return nil, ctx.Err()
	}

	if len(batch) > 0 {
		if err := s.log.MarkRead(batch); err != nil {
			return batch, fmt.Errorf("marking messages read: %w", err)
		}
	}
	return batch, nil
}

// collect gathers everything currently owed to the recipient. The mailbox is
// drained first and its contents discarded: append precedes enqueue on the
// send path, so every live mailbox message has a log row by now, and a
// subsequent FindUnread returns each of them unless an earlier poll already
// delivered it through the log. Folding the drained copies back in would
// re-deliver exactly those.
func (s *service) collect(recipient model.Username) ([]*model.Message, error) {
	s.mailboxes.Drain(recipient)

	unread, err := s.log.FindUnread(recipient)
	if err != nil {
		return nil, fmt.Errorf("reading unread messages: %w", err)
	}
	return unread, nil
}
