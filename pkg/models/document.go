package models

import "fmt"

// DocumentKeyPrefix prefixes every document key in the backing store. Search
// indexes are declared over the same prefix.
const DocumentKeyPrefix = "doc:"

// Document is a stored JSON object and the integer ID it was created under.
type Document struct {
	ID   int64 `json:"id"`
	Body Body  `json:"body"`
}

// DocumentKey returns the store key for a document ID.
func DocumentKey(id int64) string {
	return fmt.Sprintf("%s%d", DocumentKeyPrefix, id)
}

// AuditStreamKey returns the key of the append-only audit log of a document.
func AuditStreamKey(id int64) string {
	return fmt.Sprintf("%s%d:stream", DocumentKeyPrefix, id)
}

// UpdatesChannel returns the pub/sub channel that carries live updates for a
// document.
func UpdatesChannel(id int64) string {
	return fmt.Sprintf("docs:%d:updates", id)
}
