package models

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType identifies what kind of mutation produced a Change.
type ChangeType string

const (
	ChangeTypeCreated ChangeType = "created"
	ChangeTypeUpdated ChangeType = "updated"
)

// Change describes one applied mutation of a document. It is handed to the
// notification backends after the store write is durable.
type Change struct {
	ID         uuid.UUID  `json:"id"`
	Type       ChangeType `json:"type"`
	DocumentID int64      `json:"document_id"`
	Body       Body       `json:"body"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewChange builds a Change with a fresh ID and the current time.
func NewChange(t ChangeType, docID int64, body Body) Change {
	return Change{
		ID:         uuid.New(),
		Type:       t,
		DocumentID: docID,
		Body:       body,
		Timestamp:  time.Now().UTC(),
	}
}
