// Package push owns the STOMP connection to the TANDER backend. It
// parses pushed frames into domain events on the bus, drives the
// session state machine across drops and reconnects, and exposes the
// send surface the chat controller prefers over REST while connected.
// It does NOT feed the cache or the controllers directly; everything
// flows through the bus.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/bus"
	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/status"
	"github.com/tanderapp/tander/internal/stomp"
)

// ErrNotConnected is returned by the send surface while the push
// channel is down; callers fall back to REST.
var ErrNotConnected = errors.New("push: not connected")

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	heartbeat      = 10 * time.Second
)

// Session supplies the bearer token and the authenticated user id.
type Session interface {
	Token() string
	UserID() int64
}

// Gateway maintains the push connection for one account.
type Gateway struct {
	url     string
	session Session
	bus     *bus.Bus
	machine *status.Machine
	log     *zap.Logger

	mu   sync.RWMutex
	conn *stomp.Client
	// typingSubs tracks per-conversation typing topics so they survive
	// a reconnect. Value is the live subscription id, empty while down.
	typingSubs map[int64]string

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewGateway creates a gateway for the given WebSocket URL.
func NewGateway(wsURL string, sess Session, b *bus.Bus, m *status.Machine, log *zap.Logger) *Gateway {
	return &Gateway{
		url:        wsURL,
		session:    sess,
		bus:        b,
		machine:    m,
		log:        log,
		typingSubs: make(map[int64]string),
		done:       make(chan struct{}),
	}
}

// Start launches the connect/reconnect loop. Call after authentication.
func (g *Gateway) Start(ctx context.Context) {
	g.startOnce.Do(func() {
		g.wg.Add(1)
		go g.run(ctx)
	})
}

// Stop tears the connection down and waits for the loop to exit.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		close(g.done)
		if c := g.current(); c != nil {
			_ = c.Close()
		}
		g.wg.Wait()
	})
}

// Connected reports whether the push channel is up right now.
func (g *Gateway) Connected() bool {
	return g.current() != nil
}

func (g *Gateway) current() *stomp.Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conn
}

func (g *Gateway) run(ctx context.Context) {
	defer g.wg.Done()
	backoff := initialBackoff
	for {
		select {
		case <-g.done:
			return
		default:
		}

		token := g.session.Token()
		if token == "" {
			if !g.sleep(time.Second) {
				return
			}
			continue
		}

		c, err := stomp.Dial(ctx, g.url, stomp.Options{Token: token, Heartbeat: heartbeat})
		if err != nil {
			if errors.Is(err, stomp.ErrUnauthorized) {
				g.log.Warn("push channel rejected token", zap.Error(err))
				g.dropToAuthRequired()
			} else {
				g.log.Warn("push connect failed", zap.Error(err))
				g.noteConnectFailed()
			}
			if !g.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialBackoff

		if err := g.subscribeAll(c); err != nil {
			g.log.Warn("push subscribe failed", zap.Error(err))
			_ = c.Close()
			g.noteConnectFailed()
			if !g.sleep(backoff) {
				return
			}
			continue
		}

		g.setConn(c)
		g.noteConnected()
		g.pump(c)
		g.clearConn(c)

		select {
		case <-g.done:
			return
		default:
		}
		g.noteDropped()
	}
}

// subscribeAll registers the standard destinations plus any typing
// topics open threads asked for before the (re)connect.
func (g *Gateway) subscribeAll(c *stomp.Client) error {
	for _, dest := range []string{DestMessages, DestReceipts, DestMatches, DestPresence} {
		if _, err := c.Subscribe(dest); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for convID := range g.typingSubs {
		id, err := c.Subscribe(TypingTopic(convID))
		if err != nil {
			return err
		}
		g.typingSubs[convID] = id
	}
	return nil
}

func (g *Gateway) setConn(c *stomp.Client) {
	g.mu.Lock()
	g.conn = c
	g.mu.Unlock()
}

func (g *Gateway) clearConn(c *stomp.Client) {
	g.mu.Lock()
	if g.conn == c {
		g.conn = nil
		for convID := range g.typingSubs {
			g.typingSubs[convID] = ""
		}
	}
	g.mu.Unlock()
}

// noteConnected advances the state machine after a successful CONNECT.
// The inbox flips Syncing to Online once the first snapshot lands.
func (g *Gateway) noteConnected() {
	switch g.machine.Current() {
	case status.Connecting:
		_ = g.machine.Transition(status.Syncing)
	case status.Reconnecting:
		_ = g.machine.Transition(status.Connecting)
		_ = g.machine.Transition(status.Syncing)
	case status.Degraded:
		// Data kept flowing over REST polls; no resync pass needed.
		_ = g.machine.Transition(status.Online)
	}
	g.bus.Publish(bus.Event{Kind: "push.connected", Timestamp: time.Now()})
}

// noteDropped runs when an established connection died.
func (g *Gateway) noteDropped() {
	switch g.machine.Current() {
	case status.Online, status.Syncing:
		_ = g.machine.Transition(status.Reconnecting)
	}
	g.bus.Publish(bus.Event{Kind: "push.disconnected", Timestamp: time.Now()})
}

// noteConnectFailed runs when a dial attempt failed; REST polling keeps
// the client usable, which is exactly the Degraded state.
func (g *Gateway) noteConnectFailed() {
	switch g.machine.Current() {
	case status.Connecting, status.Syncing, status.Reconnecting, status.Online:
		_ = g.machine.Transition(status.Degraded)
	}
}

func (g *Gateway) dropToAuthRequired() {
	if err := g.machine.Transition(status.AuthRequired); err != nil {
		_ = g.machine.Transition(status.Degraded)
		_ = g.machine.Transition(status.AuthRequired)
	}
}

// sleep waits d, returning false when Stop was called meanwhile.
func (g *Gateway) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-g.done:
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// pump drains frames until the connection dies or the gateway stops.
func (g *Gateway) pump(c *stomp.Client) {
	for {
		select {
		case <-g.done:
			return
		case f := <-c.Messages():
			g.dispatch(f)
		case <-c.Closed():
			if err := c.Err(); err != nil {
				g.log.Warn("push channel closed", zap.Error(err))
			}
			return
		}
	}
}

// dispatch parses one pushed frame into a domain event on the bus.
// Malformed payloads and room ids are logged and skipped; a bad frame
// must never take the pump down.
func (g *Gateway) dispatch(f *stomp.Frame) {
	dest := f.Header("destination")
	switch dest {
	case DestMessages:
		var m api.Message
		if err := json.Unmarshal(f.Body, &m); err != nil {
			g.log.Warn("malformed message payload", zap.Error(err))
			return
		}
		g.bus.Publish(bus.Event{Kind: "chat.message", Timestamp: time.Now(), Payload: m.Model(g.session.UserID())})
	case DestReceipts:
		var r ReceiptEvent
		if err := json.Unmarshal(f.Body, &r); err != nil {
			g.log.Warn("malformed receipt payload", zap.Error(err))
			return
		}
		g.bus.Publish(bus.Event{Kind: "chat.receipt", Timestamp: time.Now(), Payload: r.Model()})
	case DestMatches:
		var m MatchEvent
		if err := json.Unmarshal(f.Body, &m); err != nil {
			g.log.Warn("malformed match payload", zap.Error(err))
			return
		}
		g.bus.Publish(bus.Event{Kind: "match.found", Timestamp: time.Now(), Payload: m.Model()})
	case DestPresence:
		var p PresenceEvent
		if err := json.Unmarshal(f.Body, &p); err != nil {
			g.log.Warn("malformed presence payload", zap.Error(err))
			return
		}
		g.bus.Publish(bus.Event{Kind: "presence.changed", Timestamp: time.Now(), Payload: model.PresenceEvent{
			UserID:       p.UserID,
			Online:       p.Online,
			LastActiveAt: p.LastActiveAt,
		}})
	default:
		convID, err := TypingConvID(dest)
		if err != nil {
			g.log.Warn("skipping frame with malformed destination", zap.String("destination", dest), zap.Error(err))
			return
		}
		var ev TypingEvent
		if err := json.Unmarshal(f.Body, &ev); err != nil {
			g.log.Warn("malformed typing payload", zap.Error(err))
			return
		}
		if ev.ConversationID == 0 {
			ev.ConversationID = convID
		}
		g.bus.Publish(bus.Event{Kind: "conv.typing", Timestamp: time.Now(), Payload: model.TypingEvent{
			ConversationID: ev.ConversationID,
			UserID:         ev.UserID,
			Typing:         ev.Typing,
		}})
	}
}

// SendChatMessage posts a message over the push channel.
func (g *Gateway) SendChatMessage(receiverID, convID int64, content, clientRef string) error {
	return g.send(DestSendChat, ChatSend{
		ReceiverID:     receiverID,
		ConversationID: convID,
		Content:        content,
		ClientRef:      clientRef,
	})
}

// SendTyping signals the account started or stopped typing.
func (g *Gateway) SendTyping(convID int64, typing bool) error {
	return g.send(DestSendTyping, ChatTyping{ConversationID: convID, Typing: typing})
}

// SendRead marks a conversation read, prompting a read receipt to the peer.
func (g *Gateway) SendRead(convID int64) error {
	return g.send(DestSendRead, ChatRead{ConversationID: convID})
}

func (g *Gateway) send(dest string, payload any) error {
	c := g.current()
	if c == nil {
		return ErrNotConnected
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.Send(dest, "application/json", body)
}

// SubscribeTyping registers interest in a conversation's typing topic.
// The subscription survives reconnects until UnsubscribeTyping.
func (g *Gateway) SubscribeTyping(convID int64) error {
	g.mu.Lock()
	if _, ok := g.typingSubs[convID]; !ok {
		g.typingSubs[convID] = ""
	}
	c := g.conn
	pending := g.typingSubs[convID] == ""
	g.mu.Unlock()

	if c == nil || !pending {
		return nil
	}
	id, err := c.Subscribe(TypingTopic(convID))
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.typingSubs[convID] = id
	g.mu.Unlock()
	return nil
}

// UnsubscribeTyping drops interest in a conversation's typing topic.
func (g *Gateway) UnsubscribeTyping(convID int64) {
	g.mu.Lock()
	id, ok := g.typingSubs[convID]
	delete(g.typingSubs, convID)
	c := g.conn
	g.mu.Unlock()

	if ok && id != "" && c != nil {
		_ = c.Unsubscribe(id)
	}
}
