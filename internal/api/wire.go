package api

import "github.com/tanderapp/tander/internal/model"

// Wire shapes shared with the push gateway and the sandbox backend.
// The REST endpoints and the STOMP queues carry the same message JSON, so
// both producers land in the same merge path with no translation drift.

// User is the wire shape of a TANDER member.
type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Age          int    `json:"age"`
	City         string `json:"city"`
	PhotoURL     string `json:"photoUrl"`
	LastActiveAt int64  `json:"lastActiveAt,omitempty"`
}

// Model converts the wire user to the domain type.
func (u User) Model() model.User {
	return model.User{
		ID:           u.ID,
		Name:         u.Name,
		Age:          u.Age,
		City:         u.City,
		PhotoURL:     u.PhotoURL,
		LastActiveAt: u.LastActiveAt,
	}
}

// UserFromModel converts a domain user to its wire shape.
func UserFromModel(u model.User) User {
	return User{
		ID:           u.ID,
		Name:         u.Name,
		Age:          u.Age,
		City:         u.City,
		PhotoURL:     u.PhotoURL,
		LastActiveAt: u.LastActiveAt,
	}
}

// CallInfo is the wire shape of a call-event payload.
type CallInfo struct {
	Kind        string `json:"kind"`
	DurationSec int    `json:"durationSec"`
	Outcome     string `json:"outcome"`
}

// Message is the wire shape of a chat message, identical on the REST and
// push channels.
type Message struct {
	ID             string    `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	ReceiverID     int64     `json:"receiverId,omitempty"`
	Content        string    `json:"content"`
	Type           string    `json:"type,omitempty"`
	Call           *CallInfo `json:"call,omitempty"`
	Timestamp      int64     `json:"timestamp"`
	Status         string    `json:"status,omitempty"`
	ClientRef      string    `json:"clientRef,omitempty"`
}

// Model converts the wire message to the domain type. Mine is derived
// from the authenticated user id, never trusted from the wire.
func (m Message) Model(selfID int64) model.Message {
	out := model.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Mine:           m.SenderID == selfID,
		Text:           m.Content,
		Type:           model.MessageType(m.Type),
		Timestamp:      m.Timestamp,
		Status:         model.Status(m.Status),
		ClientRef:      m.ClientRef,
	}
	if out.Type == "" {
		out.Type = model.MessageText
	}
	if out.Status == "" {
		out.Status = model.StatusSent
	}
	if m.Call != nil {
		out.Call = &model.CallInfo{
			Kind:        m.Call.Kind,
			DurationSec: m.Call.DurationSec,
			Outcome:     m.Call.Outcome,
		}
	}
	return out
}

// MessageFromModel converts a domain message to its wire shape.
func MessageFromModel(m model.Message, receiverID int64) Message {
	out := Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     receiverID,
		Content:        m.Text,
		Type:           string(m.Type),
		Timestamp:      m.Timestamp,
		Status:         string(m.Status),
		ClientRef:      m.ClientRef,
	}
	if m.Call != nil {
		out.Call = &CallInfo{
			Kind:        m.Call.Kind,
			DurationSec: m.Call.DurationSec,
			Outcome:     m.Call.Outcome,
		}
	}
	return out
}

// Conversation is the wire shape of an inbox row.
type Conversation struct {
	ID            int64  `json:"id"`
	Peer          User   `json:"peer"`
	LastMessage   string `json:"lastMessage"`
	LastMessageAt int64  `json:"lastMessageAt"`
	UnreadCount   int    `json:"unreadCount"`
}

// Model converts the wire conversation to the domain type.
func (c Conversation) Model() model.Conversation {
	return model.Conversation{
		ID:            c.ID,
		Peer:          c.Peer.Model(),
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageAt,
		UnreadCount:   c.UnreadCount,
	}
}

// ConversationFromModel converts a domain conversation to its wire shape.
func ConversationFromModel(c model.Conversation) Conversation {
	return Conversation{
		ID:            c.ID,
		Peer:          UserFromModel(c.Peer),
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageAt,
		UnreadCount:   c.UnreadCount,
	}
}

// Profile is the wire shape of a discovery card.
type Profile struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Age       int      `json:"age"`
	City      string   `json:"city"`
	Bio       string   `json:"bio"`
	PhotoURL  string   `json:"photoUrl"`
	Interests []string `json:"interests,omitempty"`
}

// Model converts the wire profile to the domain type.
func (p Profile) Model() model.Profile {
	return model.Profile{
		ID:        p.ID,
		Name:      p.Name,
		Age:       p.Age,
		City:      p.City,
		Bio:       p.Bio,
		PhotoURL:  p.PhotoURL,
		Interests: p.Interests,
	}
}

// ProfileFromModel converts a domain profile to its wire shape.
func ProfileFromModel(p model.Profile) Profile {
	return Profile{
		ID:        p.ID,
		Name:      p.Name,
		Age:       p.Age,
		City:      p.City,
		Bio:       p.Bio,
		PhotoURL:  p.PhotoURL,
		Interests: p.Interests,
	}
}

// LoginRequest is the credential payload for POST /api/auth/login.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and the authenticated user.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// SendMessageRequest is the payload for POST /api/messages.
type SendMessageRequest struct {
	ReceiverID int64  `json:"receiverId"`
	Content    string `json:"content"`
	ClientRef  string `json:"clientRef,omitempty"`
}

// StartConversationRequest is the payload for POST /api/conversations.
type StartConversationRequest struct {
	OtherUserID int64 `json:"otherUserId"`
}

// StartConversationResponse carries the (created or existing) conversation id.
type StartConversationResponse struct {
	ID int64 `json:"id"`
}

// SwipeRequest is the payload for POST /api/swipes.
type SwipeRequest struct {
	TargetUserID int64  `json:"targetUserId"`
	Direction    string `json:"direction"`
}

// SwipeResponse is the server's verdict on a recorded swipe.
type SwipeResponse struct {
	IsMatch         bool  `json:"isMatch"`
	MatchID         int64 `json:"matchId,omitempty"`
	SwipesRemaining int   `json:"swipesRemaining"`
}

// Model converts the wire swipe response to the domain type.
func (r SwipeResponse) Model() model.SwipeResult {
	return model.SwipeResult{
		IsMatch:         r.IsMatch,
		MatchID:         r.MatchID,
		SwipesRemaining: r.SwipesRemaining,
	}
}

// MessagePage is one backward-pagination page, newest first.
type MessagePage struct {
	Content []Message `json:"content"`
	Last    bool      `json:"last"`
}

// ProfilePage is one discovery page.
type ProfilePage struct {
	Content []Profile `json:"content"`
	Last    bool      `json:"last"`
}

// PresenceResponse is the full online snapshot.
type PresenceResponse struct {
	UserIDs []int64 `json:"userIds"`
	// LastActive maps user id (as a JSON string key) to epoch milliseconds.
	LastActive map[int64]int64 `json:"lastActive,omitempty"`
}

// Model converts the wire snapshot to the domain type.
func (p PresenceResponse) Model() model.PresenceSnapshot {
	return model.PresenceSnapshot{UserIDs: p.UserIDs, LastActive: p.LastActive}
}

// ErrorResponse is the error envelope every non-2xx body uses.
type ErrorResponse struct {
	Message string `json:"message"`
}
