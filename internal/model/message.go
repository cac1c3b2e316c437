package model

import "time"

type MessageID string

// FileBody is the body recorded on a message that carries a file attachment.
const FileBody = "[FILE]"

type DeliveryOutcome int

const (
	// DeliveryQueued means the recipient had no live poll; the message waits
	// in their mailbox and the durable log until the next check-in.
	DeliveryQueued DeliveryOutcome = iota
	// DeliveryLive means the message was handed directly to a suspended poll.
	DeliveryLive
)

type Message struct {
	ID        MessageID `db:"ID" json:"id"`
	CreatedAt time.Time `db:"CreatedAt" json:"timestamp"`
	Sender    Username  `db:"Sender" json:"sender"`
	Recipient Username  `db:"Recipient" json:"receiver"`
	Body      string    `db:"Body" json:"content"`
	FileLink  string    `db:"FileLink" json:"fileLink,omitempty"`
	IsRead    bool      `db:"IsRead" json:"read"`
}
