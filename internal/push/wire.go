package push

import (
	"fmt"
	"strings"

	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/model"
)

// STOMP destinations. The /user/queue ones are per-session; the /topic
// ones are broadcast. Message bodies on REST and push are the same
// api wire shapes.
const (
	DestMessages = "/user/queue/messages"
	DestReceipts = "/user/queue/receipts"
	DestMatches  = "/user/queue/matches"
	DestPresence = "/topic/presence"

	DestSendChat   = "/app/chat.send"
	DestSendTyping = "/app/chat.typing"
	DestSendRead   = "/app/chat.read"
)

const (
	topicPrefix  = "/topic/"
	typingSuffix = ".typing"
)

// TypingTopic renders the per-conversation typing destination,
// e.g. "/topic/conv-42.typing".
func TypingTopic(convID int64) string {
	return topicPrefix + model.FormatRoomID(convID) + typingSuffix
}

// TypingConvID extracts the conversation id from a typing destination.
func TypingConvID(dest string) (int64, error) {
	room, ok := strings.CutPrefix(dest, topicPrefix)
	if !ok {
		return 0, fmt.Errorf("destination %q: not a topic", dest)
	}
	room, ok = strings.CutSuffix(room, typingSuffix)
	if !ok {
		return 0, fmt.Errorf("destination %q: not a typing topic", dest)
	}
	return model.ParseRoomID(room)
}

// ReceiptEvent is the body pushed on /user/queue/receipts.
type ReceiptEvent struct {
	Kind           string `json:"kind"`
	MessageID      string `json:"messageId,omitempty"`
	ConversationID int64  `json:"conversationId"`
	UserID         int64  `json:"userId"`
	Timestamp      int64  `json:"timestamp,omitempty"`
}

// Model converts the wire receipt to the domain type.
func (r ReceiptEvent) Model() model.Receipt {
	return model.Receipt{
		Kind:           model.ReceiptKind(r.Kind),
		MessageID:      r.MessageID,
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		Timestamp:      r.Timestamp,
	}
}

// TypingEvent is the body pushed on /topic/conv-<id>.typing.
type TypingEvent struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
	Typing         bool  `json:"typing"`
}

// PresenceEvent is the body pushed on /topic/presence.
type PresenceEvent struct {
	UserID       int64 `json:"userId"`
	Online       bool  `json:"online"`
	LastActiveAt int64 `json:"lastActiveAt,omitempty"`
}

// MatchEvent is the body pushed on /user/queue/matches.
type MatchEvent struct {
	MatchID        int64    `json:"matchId"`
	User           api.User `json:"user"`
	ConversationID int64    `json:"conversationId,omitempty"`
}

// Model converts the wire match to the domain type.
func (m MatchEvent) Model() model.Match {
	return model.Match{
		MatchID:        m.MatchID,
		Peer:           m.User.Model(),
		ConversationID: m.ConversationID,
	}
}

// ChatSend is the body for /app/chat.send.
type ChatSend struct {
	ReceiverID     int64  `json:"receiverId"`
	ConversationID int64  `json:"conversationId,omitempty"`
	Content        string `json:"content"`
	ClientRef      string `json:"clientRef,omitempty"`
}

// ChatTyping is the body for /app/chat.typing.
type ChatTyping struct {
	ConversationID int64 `json:"conversationId"`
	Typing         bool  `json:"typing"`
}

// ChatRead is the body for /app/chat.read.
type ChatRead struct {
	ConversationID int64 `json:"conversationId"`
}
