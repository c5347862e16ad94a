package ws

import (
	"github.com/whosthere/whosthere/internal/session"
)

type MessageType string

const (
	// MsgSnapshot carries the full current batch, sent on connect and
	// periodically.
	MsgSnapshot MessageType = "snapshot"
	// MsgUpdate carries the full batch after a monitor cycle. Consumers
	// treat it as authoritative state, not a delta.
	MsgUpdate MessageType = "update"
	// MsgError is terminal: the monitor has failed and no further
	// snapshot or update will follow.
	MsgError MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SessionsPayload struct {
	Sessions []session.Entry   `json:"sessions"`
	State    session.IconState `json:"state"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
