package model

import (
	"fmt"
	"strconv"
	"strings"
)

// User is a TANDER member as the logged-in account sees them.
type User struct {
	ID       int64
	Name     string
	Age      int
	City     string
	PhotoURL string
	// LastActiveAt is milliseconds since the Unix epoch, zero when unknown.
	LastActiveAt int64
}

// Conversation is an inbox row: the peer plus a preview of the latest message.
type Conversation struct {
	ID            int64
	Peer          User
	LastMessage   string
	LastMessageAt int64
	UnreadCount   int
}

const roomPrefix = "conv-"

// FormatRoomID renders the push room name for a conversation, e.g. "conv-42".
func FormatRoomID(convID int64) string {
	return roomPrefix + strconv.FormatInt(convID, 10)
}

// ParseRoomID extracts the conversation id from a push room name.
func ParseRoomID(room string) (int64, error) {
	raw, ok := strings.CutPrefix(room, roomPrefix)
	if !ok {
		return 0, fmt.Errorf("room %q: missing %q prefix", room, roomPrefix)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("room %q: %w", room, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("room %q: conversation id must be positive", room)
	}
	return id, nil
}
