package model

// ReceiptKind distinguishes the two receipt flavors the server pushes.
type ReceiptKind string

const (
	// ReceiptDelivered targets a single message by id.
	ReceiptDelivered ReceiptKind = "delivered"
	// ReceiptRead targets a whole conversation: everything the viewer
	// sent there that the peer had not read yet.
	ReceiptRead ReceiptKind = "read"
)

// Receipt is a delivery or read notice for messages the account sent.
type Receipt struct {
	Kind           ReceiptKind
	MessageID      string
	ConversationID int64
	// UserID is the peer the notice came from.
	UserID    int64
	Timestamp int64
}

// TypingEvent signals that a user started or stopped typing in a conversation.
type TypingEvent struct {
	ConversationID int64
	UserID         int64
	Typing         bool
}

// PresenceEvent signals a single user going online or offline.
type PresenceEvent struct {
	UserID       int64
	Online       bool
	LastActiveAt int64
}

// PresenceSnapshot is the full online set as the server reports it.
type PresenceSnapshot struct {
	UserIDs []int64
	// LastActive maps user id to last-active epoch milliseconds.
	LastActive map[int64]int64
}

// Match is a mutual like. ConversationID is zero until a chat is started.
type Match struct {
	MatchID        int64
	Peer           User
	ConversationID int64
}

// HistoryBatch is a page of confirmed messages fetched over REST,
// rebroadcast so the cache sync engine can mirror it.
type HistoryBatch struct {
	ConversationID int64
	Messages       []Message
}
