// Package model holds the domain types shared by the API client, the
// chat and discovery controllers, the local cache and the TUI.
package model

import (
	"strconv"
	"strings"
	"time"
)

// Status is the delivery lifecycle state of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// forward lists, per state, the states a message may move to. Receipts
// arrive late, twice, or out of order, so anything not listed here is
// rejected rather than moving a message backwards.
var forward = map[Status]map[Status]bool{
	StatusSending:   {StatusSent: true, StatusFailed: true},
	StatusSent:      {StatusDelivered: true, StatusRead: true},
	StatusDelivered: {StatusRead: true},
}

// CanAdvance reports whether a message may move from one delivery state
// to another. Read and failed are terminal.
func CanAdvance(from, to Status) bool {
	return forward[from][to]
}

// MessageType distinguishes regular text from call events rendered inline.
type MessageType string

const (
	MessageText      MessageType = "text"
	MessageCallEvent MessageType = "call-event"
)

// Call kinds and outcomes carried by call-event messages.
const (
	CallAudio = "audio"
	CallVideo = "video"

	CallCompleted = "completed"
	CallMissed    = "missed"
	CallDeclined  = "declined"
)

// CallInfo describes the voice or video call a call-event entry stands for.
type CallInfo struct {
	Kind        string
	DurationSec int
	Outcome     string
}

// Message is a single chat entry as the thread view renders it.
type Message struct {
	// ID is the server-assigned identifier, or a provisional id minted
	// by NewTempID until the send round-trip resolves it.
	ID             string
	ConversationID int64
	SenderID       int64
	// Mine is true when the logged-in account sent the message.
	Mine bool
	Text string
	Type MessageType
	Call *CallInfo
	// Timestamp is milliseconds since the Unix epoch, server clock.
	Timestamp int64
	Status    Status
	// ClientRef correlates an optimistic send with the copy the server
	// echoes back. Unlike the temp id it survives the push/REST race:
	// either path can carry it.
	ClientRef string
}

const tempIDPrefix = "temp-"

// NewTempID mints a provisional message id for an optimistic send.
func NewTempID(now time.Time) string {
	return tempIDPrefix + strconv.FormatInt(now.UnixMilli(), 10)
}

// IsTempID reports whether id was minted locally and is still awaiting
// its server-assigned replacement.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}
