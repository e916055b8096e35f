package notifications

import (
	"strconv"
	"strings"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// Update is one message received on a document's update channel.
type Update struct {
	DocumentID int64  `json:"document_id"`
	Channel    string `json:"channel"`

	// Payload is the message exactly as published.
	Payload string `json:"payload"`

	// Body is the decoded payload, or nil when the payload is not a JSON
	// object (a publisher outside rdocs may send anything).
	Body models.Body `json:"body,omitempty"`
}

// NewUpdate decodes a raw pub/sub message.
func NewUpdate(channel, payload string) Update {
	u := Update{
		DocumentID: channelDocumentID(channel),
		Channel:    channel,
		Payload:    payload,
	}
	if body, err := models.UnmarshalBody([]byte(payload)); err == nil {
		u.Body = body
	}
	return u
}

// channelDocumentID extracts <id> from docs:<id>:updates, or 0.
func channelDocumentID(channel string) int64 {
	rest, ok := strings.CutPrefix(channel, "docs:")
	if !ok {
		return 0
	}
	rest, ok = strings.CutSuffix(rest, ":updates")
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
