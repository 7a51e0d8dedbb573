package sandbox

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/push"
	"github.com/tanderapp/tander/internal/stomp"
)

// Broker is the sandbox's STOMP endpoint. It authenticates the upgrade,
// answers the CONNECT handshake, tracks subscriptions per session and
// fans out messages, receipts, matches, presence and typing signals.
type Broker struct {
	state    *State
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
	msgSeq   int64
}

// NewBroker creates the push endpoint over the given world.
func NewBroker(state *State, log *zap.Logger) *Broker {
	return &Broker{
		state: state,
		log:   log,
		upgrader: websocket.Upgrader{
			// Local development tool; any origin may connect.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[*session]struct{}),
	}
}

// session is one connected client.
type session struct {
	userID int64
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]string // destination -> subscription id
}

// HandleWS upgrades the connection and runs the STOMP session until the
// peer disconnects.
func (b *Broker) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := b.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if !b.handshake(conn, &userID) {
		return
	}

	s := &session{userID: userID, conn: conn, subs: make(map[string]string)}
	b.register(s)
	defer b.unregister(s)

	b.log.Info("push session opened", zap.Int64("user_id", userID))
	b.pump(s)
	b.log.Info("push session closed", zap.Int64("user_id", userID))
}

// authenticate verifies the bearer token on the upgrade request. A
// missing header is tolerated here; the CONNECT frame gets one more
// chance to present credentials.
func (b *Broker) authenticate(r *http.Request) (int64, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return 0, nil
	}
	raw, ok := strings.CutPrefix(hdr, "Bearer ")
	if !ok {
		return 0, ErrBadCredentials
	}
	return b.state.VerifyToken(raw)
}

// handshake consumes the CONNECT frame and answers CONNECTED. When the
// upgrade carried no token the CONNECT login header must.
func (b *Broker) handshake(conn *websocket.Conn, userID *int64) bool {
	f, err := readFrame(conn)
	if err != nil {
		return false
	}
	if f.Command != stomp.CmdConnect {
		b.refuse(conn, "expected CONNECT")
		return false
	}
	if *userID == 0 {
		id, err := b.state.VerifyToken(f.Header("login"))
		if err != nil {
			b.refuse(conn, "unauthorized")
			return false
		}
		*userID = id
	}
	reply := stomp.NewFrame(stomp.CmdConnected,
		"version", "1.2",
		"heart-beat", "0,0",
	)
	return b.writeConn(conn, reply) == nil
}

func (b *Broker) refuse(conn *websocket.Conn, msg string) {
	_ = b.writeConn(conn, stomp.NewFrame(stomp.CmdError, "message", msg))
}

func (b *Broker) writeConn(conn *websocket.Conn, f *stomp.Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, stomp.Marshal(f))
}

func (b *Broker) register(s *session) {
	b.mu.Lock()
	b.sessions[s] = struct{}{}
	b.mu.Unlock()
	if b.state.SessionOpened(s.userID) {
		b.BroadcastPresence(push.PresenceEvent{
			UserID:       s.userID,
			Online:       true,
			LastActiveAt: b.state.LastActive(s.userID),
		})
	}
}

func (b *Broker) unregister(s *session) {
	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()
	if b.state.SessionClosed(s.userID) {
		b.BroadcastPresence(push.PresenceEvent{
			UserID:       s.userID,
			Online:       false,
			LastActiveAt: b.state.LastActive(s.userID),
		})
	}
}

// pump reads frames until the connection dies or the client disconnects.
func (b *Broker) pump(s *session) {
	for {
		f, err := readFrame(s.conn)
		if err != nil {
			return
		}
		switch f.Command {
		case stomp.CmdSubscribe:
			s.mu.Lock()
			s.subs[f.Header("destination")] = f.Header("id")
			s.mu.Unlock()
		case stomp.CmdUnsubscribe:
			id := f.Header("id")
			s.mu.Lock()
			for dest, subID := range s.subs {
				if subID == id {
					delete(s.subs, dest)
					break
				}
			}
			s.mu.Unlock()
		case stomp.CmdSend:
			b.handleSend(s, f)
		case stomp.CmdDisconnect:
			return
		default:
			b.log.Debug("ignoring frame", zap.String("command", f.Command))
		}
	}
}

// handleSend dispatches one client SEND to the matching app handler. A
// malformed body is logged and dropped; it must not kill the session.
func (b *Broker) handleSend(s *session, f *stomp.Frame) {
	switch f.Header("destination") {
	case push.DestSendChat:
		var req push.ChatSend
		if err := json.Unmarshal(f.Body, &req); err != nil {
			b.log.Warn("malformed chat.send", zap.Error(err))
			return
		}
		msg, err := b.state.AppendMessage(s.userID, req.ReceiverID, req.Content, req.ClientRef)
		if err != nil {
			b.log.Warn("chat.send rejected", zap.Int64("sender", s.userID), zap.Error(err))
			return
		}
		b.FanoutMessage(msg)
	case push.DestSendTyping:
		var req push.ChatTyping
		if err := json.Unmarshal(f.Body, &req); err != nil {
			b.log.Warn("malformed chat.typing", zap.Error(err))
			return
		}
		b.BroadcastTyping(req.ConversationID, push.TypingEvent{
			ConversationID: req.ConversationID,
			UserID:         s.userID,
			Typing:         req.Typing,
		})
	case push.DestSendRead:
		var req push.ChatRead
		if err := json.Unmarshal(f.Body, &req); err != nil {
			b.log.Warn("malformed chat.read", zap.Error(err))
			return
		}
		if err := b.MarkRead(s.userID, req.ConversationID); err != nil {
			b.log.Warn("chat.read rejected", zap.Int64("user_id", s.userID), zap.Error(err))
		}
	default:
		b.log.Debug("SEND to unknown destination", zap.String("destination", f.Header("destination")))
	}
}

// FanoutMessage delivers a stored message to both participants' queues
// and, when the receiver is online, advances it to delivered and tells
// the sender. The sender's copy carries the clientRef it came in with,
// which is what optimistic reconciliation keys on.
func (b *Broker) FanoutMessage(msg api.Message) {
	b.deliver(msg.SenderID, push.DestMessages, msg)
	b.deliver(msg.ReceiverID, push.DestMessages, msg)

	if b.state.OnlineNow(msg.ReceiverID) && b.state.MarkDelivered(msg.ConversationID, msg.ID) {
		b.deliver(msg.SenderID, push.DestReceipts, push.ReceiptEvent{
			Kind:           "delivered",
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			UserID:         msg.ReceiverID,
			Timestamp:      time.Now().UnixMilli(),
		})
	}
}

// MarkRead records the read and pushes the read receipt to the peer.
// Shared by the REST endpoint and the chat.read frame.
func (b *Broker) MarkRead(userID, convID int64) error {
	peer, changed, err := b.state.MarkRead(userID, convID)
	if err != nil {
		return err
	}
	if changed {
		b.deliver(peer, push.DestReceipts, push.ReceiptEvent{
			Kind:           "read",
			ConversationID: convID,
			UserID:         userID,
			Timestamp:      time.Now().UnixMilli(),
		})
	}
	return nil
}

// FanoutMatch notifies the earlier swiper that their like was returned.
// The later swiper already learned from the swipe response.
func (b *Broker) FanoutMatch(out MatchOutcome) {
	user, ok := b.state.User(out.Later)
	if !ok {
		return
	}
	b.deliver(out.Earlier, push.DestMatches, push.MatchEvent{
		MatchID:        out.MatchID,
		User:           user,
		ConversationID: out.ConversationID,
	})
}

// BroadcastPresence announces an online/offline flip on the shared topic.
func (b *Broker) BroadcastPresence(evt push.PresenceEvent) {
	b.broadcast(push.DestPresence, evt)
}

// BroadcastTyping publishes a typing flip on the conversation's topic.
func (b *Broker) BroadcastTyping(convID int64, evt push.TypingEvent) {
	b.broadcast(push.TypingTopic(convID), evt)
}

// deliver sends payload to every session of one user subscribed to dest.
func (b *Broker) deliver(userID int64, dest string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn("encode push payload", zap.Error(err))
		return
	}
	for _, s := range b.snapshot() {
		if s.userID == userID {
			b.push(s, dest, body)
		}
	}
}

// broadcast sends payload to every session subscribed to dest.
func (b *Broker) broadcast(dest string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn("encode push payload", zap.Error(err))
		return
	}
	for _, s := range b.snapshot() {
		b.push(s, dest, body)
	}
}

func (b *Broker) snapshot() []*session {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*session, 0, len(b.sessions))
	for s := range b.sessions {
		out = append(out, s)
	}
	return out
}

func (b *Broker) nextMessageID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgSeq++
	return "srv-" + strconv.FormatInt(b.msgSeq, 10)
}

// push writes one MESSAGE frame when the session subscribed to dest.
func (b *Broker) push(s *session, dest string, body []byte) {
	s.mu.Lock()
	subID, ok := s.subs[dest]
	s.mu.Unlock()
	if !ok {
		return
	}
	f := stomp.NewFrame(stomp.CmdMessage,
		"subscription", subID,
		"message-id", b.nextMessageID(),
		"destination", dest,
		"content-type", "application/json",
	)
	f.Body = body

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, stomp.Marshal(f)); err != nil {
		b.log.Warn("push write failed", zap.Int64("user_id", s.userID), zap.Error(err))
	}
}

// readFrame reads WebSocket messages until one carries a real frame,
// skipping heart-beats.
func readFrame(conn *websocket.Conn) (*stomp.Frame, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		f, err := stomp.Parse(data)
		if stomp.IsHeartbeat(err) {
			continue
		}
		return f, err
	}
}
