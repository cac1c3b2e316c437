package store

import (
	"fmt"
	"path"

	"github.com/graybeam/relaypoint/internal/model"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type Config interface {
	DataDirectory() string
}

// MessageLog is the authoritative, crash-surviving record of every message,
// independent of the in-memory mailboxes.
type MessageLog struct {
	db *sqlx.DB
}

func NewMessageLog(config Config) (*MessageLog, error) {
	dbName := path.Join(config.DataDirectory(), "messages.db")

	db, err := sqlx.Connect("sqlite3", "file:"+dbName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	messageLog := &MessageLog{db}
	if err := messageLog.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return messageLog, nil
}

func (l *MessageLog) Close() error {
	return l.db.Close()
}

func (l *MessageLog) createTables() error {
	_, err := l.db.Exec(`create table if not exists message(
		ID        text not null primary key,
		CreatedAt DATETIME not null,
		Sender    text not null,
		Recipient text not null,
		Body      text not null,
		FileLink  text not null default '',
		IsRead    tinyint not null default 0
	)`)
	if err != nil {
		return fmt.Errorf("creating message table: %w", err)
	}

	_, err = l.db.Exec(`create index if not exists ix_message_unread
		on message(Recipient, IsRead)`)
	if err != nil {
		return fmt.Errorf("creating unread index: %w", err)
	}

	return nil
}

func (l *MessageLog) Append(message *model.Message) error {
	res, err := l.db.NamedExec(`insert into message
		(ID, CreatedAt, Sender, Recipient, Body, FileLink, IsRead)
		values(:ID, :CreatedAt, :Sender, :Recipient, :Body, :FileLink, :IsRead)`, message)

	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	if rows, err := res.RowsAffected(); rows != 1 {
		return fmt.Errorf("expected 1 row to be affected, got %d", rows)
	} else if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	return nil
}

// FindUnread returns the recipient's unread messages in insertion order.
func (l *MessageLog) FindUnread(recipient model.Username) ([]*model.Message, error) {
	messages := []*model.Message{}
	err := l.db.Select(&messages,
		`select * from message where Recipient = ? and IsRead = 0 order by rowid`,
		recipient)
	if err != nil {
		return nil, fmt.Errorf("selecting unread messages: %w", err)
	}
	return messages, nil
}

// MarkRead flips the read flag on the given messages. Marking an already-read
// message is a no-op, which keeps redelivery from the fallback path idempotent.
func (l *MessageLog) MarkRead(messages []*model.Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]model.MessageID, 0, len(messages))
	for _, message := range messages {
		message.IsRead = true
		ids = append(ids, message.ID)
	}

	query, args, err := sqlx.In(`update message set IsRead = 1 where ID in (?)`, ids)
	if err != nil {
		return fmt.Errorf("building mark-read query: %w", err)
	}
	if _, err := l.db.Exec(query, args...); err != nil {
		return fmt.Errorf("marking messages read: %w", err)
	}

	return nil
}
