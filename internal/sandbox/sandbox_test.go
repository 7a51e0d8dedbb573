package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/model"
	"github.com/tanderapp/tander/internal/push"
	"github.com/tanderapp/tander/internal/stomp"
)

// tokenStub satisfies api.TokenSource for the REST client.
type tokenStub struct {
	token  string
	userID int64
}

func (s *tokenStub) Token() string { return s.token }
func (s *tokenStub) UserID() int64 { return s.userID }

// startSandbox mounts a sandbox on an httptest server and returns the
// push endpoint URL alongside it.
func startSandbox(t *testing.T, opts Options) (*Server, *httptest.Server, string) {
	t.Helper()
	sb := NewServer(opts, zap.NewNop())
	srv := httptest.NewServer(sb.Handler())
	t.Cleanup(srv.Close)
	return sb, srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// signIn logs an account in over REST and returns a ready client.
func signIn(t *testing.T, baseURL, phone string) (*api.Client, *tokenStub) {
	t.Helper()
	stub := &tokenStub{}
	cli := api.NewClient(baseURL, stub, zap.NewNop())
	res, err := cli.Login(context.Background(), phone, demoPassword)
	if err != nil {
		t.Fatalf("login %s: %v", phone, err)
	}
	stub.token = res.Token
	stub.userID = res.User.ID
	return cli, stub
}

// dialPush opens a STOMP session, subscribes to dests and proves the
// subscriptions are live before returning: frames on one connection are
// handled in order, so once our own typing echo comes back every earlier
// SUBSCRIBE has been registered and the session counts as online.
// barrierID only needs to be unique per session within a test.
func dialPush(t *testing.T, wsURL, token string, barrierID int64, dests ...string) *stomp.Client {
	t.Helper()
	c, err := stomp.Dial(context.Background(), wsURL, stomp.Options{Token: token})
	if err != nil {
		t.Fatalf("dial push: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	for _, d := range dests {
		if _, err := c.Subscribe(d); err != nil {
			t.Fatalf("subscribe %s: %v", d, err)
		}
	}
	if _, err := c.Subscribe(push.TypingTopic(barrierID)); err != nil {
		t.Fatalf("subscribe barrier topic: %v", err)
	}
	sendJSON(t, c, push.DestSendTyping, push.ChatTyping{ConversationID: barrierID, Typing: false})
	waitFrame(t, c, push.TypingTopic(barrierID))
	return c
}

func sendJSON(t *testing.T, c *stomp.Client, dest string, v any) {
	t.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %T: %v", v, err)
	}
	if err := c.Send(dest, "application/json", body); err != nil {
		t.Fatalf("send %s: %v", dest, err)
	}
}

// waitFrame returns the next MESSAGE frame for dest, skipping frames on
// other destinations.
func waitFrame(t *testing.T, c *stomp.Client, dest string) *stomp.Frame {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case f := <-c.Messages():
			if f.Header("destination") == dest {
				return f
			}
		case <-c.Closed():
			t.Fatalf("session closed waiting for %s: %v", dest, c.Err())
		case <-deadline:
			t.Fatalf("no frame on %s within deadline", dest)
		}
	}
}

func decodeBody(t *testing.T, f *stomp.Frame, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Body, v); err != nil {
		t.Fatalf("decode %s body: %v", f.Header("destination"), err)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	_, srv, _ := startSandbox(t, Options{Seed: true})
	cli := api.NewClient(srv.URL, &tokenStub{}, zap.NewNop())

	_, err := cli.Login(context.Background(), "09170000001", "wrong")
	if !api.IsUnauthorized(err) {
		t.Fatalf("kind = %v, want unauthorized", api.KindOf(err))
	}
}

func TestSeededInbox(t *testing.T) {
	_, srv, _ := startSandbox(t, Options{Seed: true})
	rosa, _ := signIn(t, srv.URL, "09170000001")
	ctx := context.Background()

	convs, err := rosa.Conversations(ctx)
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
	row := convs[0]
	if row.Peer.ID != 2 || row.Peer.Name != "Lito Bautista" {
		t.Fatalf("peer = %+v, want Lito", row.Peer)
	}
	if row.LastMessage != "I would love that. Bring some to mass on Sunday!" {
		t.Fatalf("last message = %q", row.LastMessage)
	}

	// Five seeded entries newest first: four texts with Lito's call
	// between the last two. Two pages at size three.
	newest, last, err := rosa.Messages(ctx, row.ID, 0, 3)
	if err != nil {
		t.Fatalf("messages page 0: %v", err)
	}
	if last {
		t.Fatal("page 0 marked last with older messages remaining")
	}
	if len(newest) != 3 || !strings.HasPrefix(newest[0].Text, "I would love that.") {
		t.Fatalf("page 0 = %+v", newest)
	}
	if !newest[0].Mine || newest[0].Status != model.StatusDelivered {
		t.Fatalf("newest = mine %v status %s, want own delivered message", newest[0].Mine, newest[0].Status)
	}
	call := newest[1]
	if call.Type != model.MessageCallEvent || call.Call == nil || call.Call.Outcome != model.CallCompleted {
		t.Fatalf("expected the completed call next, got %+v", call)
	}

	oldest, last, err := rosa.Messages(ctx, row.ID, 1, 3)
	if err != nil {
		t.Fatalf("messages page 1: %v", err)
	}
	if !last {
		t.Fatal("page 1 should be the oldest page")
	}
	if len(oldest) != 2 || !strings.HasPrefix(oldest[1].Text, "Kumusta, Rosa!") {
		t.Fatalf("page 1 = %+v", oldest)
	}
	if oldest[1].Mine {
		t.Fatal("Lito's opener marked as ours")
	}
}

func TestMessageFanout(t *testing.T) {
	_, srv, wsURL := startSandbox(t, Options{Seed: true})
	rosa, rosaTok := signIn(t, srv.URL, "09170000001")
	_, litoTok := signIn(t, srv.URL, "09170000002")
	ctx := context.Background()

	rosaPush := dialPush(t, wsURL, rosaTok.token, 101, push.DestMessages, push.DestReceipts)
	litoPush := dialPush(t, wsURL, litoTok.token, 102, push.DestMessages, push.DestReceipts)

	// Rosa sends over REST; the broker fans the stored copy out to both
	// sides and, Lito being online, advances it to delivered.
	sent, err := rosa.SendMessage(ctx, 2, "Saw a new orchid stall sa Carbon market.", "ref-fanout-1")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	var litoCopy api.Message
	decodeBody(t, waitFrame(t, litoPush, push.DestMessages), &litoCopy)
	if litoCopy.SenderID != 1 || litoCopy.Content != "Saw a new orchid stall sa Carbon market." {
		t.Fatalf("lito's copy = %+v", litoCopy)
	}

	var echo api.Message
	decodeBody(t, waitFrame(t, rosaPush, push.DestMessages), &echo)
	if echo.ClientRef != "ref-fanout-1" {
		t.Fatalf("echo clientRef = %q, want ref-fanout-1", echo.ClientRef)
	}
	if echo.ID != sent.ID {
		t.Fatalf("echo id = %q, REST copy id = %q", echo.ID, sent.ID)
	}

	var delivered push.ReceiptEvent
	decodeBody(t, waitFrame(t, rosaPush, push.DestReceipts), &delivered)
	if delivered.Kind != "delivered" || delivered.MessageID != sent.ID {
		t.Fatalf("receipt = %+v, want delivered for %s", delivered, sent.ID)
	}

	// Lito answers over the push channel.
	sendJSON(t, litoPush, push.DestSendChat, push.ChatSend{
		ReceiverID: 1, Content: "Let us go Saturday after mass.", ClientRef: "ref-fanout-2",
	})
	var reply api.Message
	decodeBody(t, waitFrame(t, rosaPush, push.DestMessages), &reply)
	if reply.SenderID != 2 || reply.Content != "Let us go Saturday after mass." {
		t.Fatalf("reply = %+v", reply)
	}
	var replyDelivered push.ReceiptEvent
	decodeBody(t, waitFrame(t, litoPush, push.DestReceipts), &replyDelivered)
	if replyDelivered.Kind != "delivered" || replyDelivered.MessageID != reply.ID {
		t.Fatalf("reply receipt = %+v", replyDelivered)
	}

	// Rosa reads the conversation; Lito gets the conversation-level
	// receipt and Rosa's unread counter drops to zero.
	sendJSON(t, rosaPush, push.DestSendRead, push.ChatRead{ConversationID: reply.ConversationID})
	var read push.ReceiptEvent
	decodeBody(t, waitFrame(t, litoPush, push.DestReceipts), &read)
	if read.Kind != "read" || read.ConversationID != reply.ConversationID || read.UserID != 1 {
		t.Fatalf("read receipt = %+v", read)
	}

	convs, err := rosa.Conversations(ctx)
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].UnreadCount != 0 {
		t.Fatalf("unread = %d after reading, want 0", convs[0].UnreadCount)
	}
}

func TestMutualLikePushesEarlierSide(t *testing.T) {
	_, srv, wsURL := startSandbox(t, Options{Seed: true})
	rosa, _ := signIn(t, srv.URL, "09170000001")
	_, teresaTok := signIn(t, srv.URL, "09170000003")
	ctx := context.Background()

	teresaPush := dialPush(t, wsURL, teresaTok.token, 103, push.DestMatches)

	// Teresa's like is already on record in the seed; Rosa returning it
	// completes the match. Rosa learns from the swipe response, Teresa
	// from the push event.
	res, err := rosa.RecordSwipe(ctx, 3, model.SwipeLike)
	if err != nil {
		t.Fatalf("swipe: %v", err)
	}
	if !res.IsMatch || res.MatchID == 0 {
		t.Fatalf("swipe result = %+v, want a match", res)
	}

	var evt push.MatchEvent
	decodeBody(t, waitFrame(t, teresaPush, push.DestMatches), &evt)
	if evt.MatchID != res.MatchID {
		t.Fatalf("pushed match id = %d, swipe response = %d", evt.MatchID, res.MatchID)
	}
	if evt.User.ID != 1 || evt.User.Name != "Rosa Manalo" {
		t.Fatalf("pushed peer = %+v, want Rosa", evt.User)
	}
	if evt.ConversationID == 0 {
		t.Fatal("match event missing the conversation id")
	}
}

func TestDailyLikeLimit(t *testing.T) {
	sb, srv, _ := startSandbox(t, Options{DailyLimit: 1})
	for id := int64(1); id <= 3; id++ {
		sb.State().AddAccount(Account{
			Phone:    fmt.Sprintf("0917999000%d", id),
			Password: demoPassword,
			Profile:  api.Profile{ID: id, Name: fmt.Sprintf("Tester %d", id), Age: 60 + int(id), City: "Cebu City"},
		})
	}
	cli, _ := signIn(t, srv.URL, "09179990001")
	ctx := context.Background()

	res, err := cli.RecordSwipe(ctx, 2, model.SwipeLike)
	if err != nil {
		t.Fatalf("first like: %v", err)
	}
	if res.SwipesRemaining != 0 {
		t.Fatalf("remaining = %d after spending the only like, want 0", res.SwipesRemaining)
	}

	if _, err := cli.RecordSwipe(ctx, 3, model.SwipeLike); !api.IsRateLimited(err) {
		t.Fatalf("kind = %v, want rate_limited", api.KindOf(err))
	}

	// Repeating a recorded like replays the verdict without a 429.
	if _, err := cli.RecordSwipe(ctx, 2, model.SwipeLike); err != nil {
		t.Fatalf("duplicate like: %v", err)
	}

	// Passes do not touch the budget.
	if _, err := cli.RecordSwipe(ctx, 3, model.SwipePass); err != nil {
		t.Fatalf("pass after limit: %v", err)
	}
}

func TestDiscoveryFeed(t *testing.T) {
	_, srv, _ := startSandbox(t, Options{Seed: true})
	rosa, _ := signIn(t, srv.URL, "09170000001")
	ctx := context.Background()

	// 24 members minus Rosa herself minus Lito, her existing match.
	profiles, last, err := rosa.Discover(ctx, 0, 50, model.DiscoveryFilter{})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(profiles) != 22 || !last {
		t.Fatalf("got %d profiles (last=%v), want all 22 on one page", len(profiles), last)
	}
	for _, p := range profiles {
		if p.ID == 1 || p.ID == 2 {
			t.Fatalf("feed serves profile %d", p.ID)
		}
	}

	// Smaller pages report last only on the final one.
	firstPage, last, err := rosa.Discover(ctx, 0, 10, model.DiscoveryFilter{})
	if err != nil || len(firstPage) != 10 || last {
		t.Fatalf("page 0: %d profiles, last=%v, err=%v", len(firstPage), last, err)
	}
	tail, last, err := rosa.Discover(ctx, 2, 10, model.DiscoveryFilter{})
	if err != nil || len(tail) != 2 || !last {
		t.Fatalf("page 2: %d profiles, last=%v, err=%v", len(tail), last, err)
	}

	// A pass hides the profile from the feed; the refill batch re-serves
	// it so the deck never dries up in a small town.
	if _, err := rosa.RecordSwipe(ctx, 4, model.SwipePass); err != nil {
		t.Fatalf("pass: %v", err)
	}
	profiles, _, err = rosa.Discover(ctx, 0, 50, model.DiscoveryFilter{})
	if err != nil {
		t.Fatalf("discover after pass: %v", err)
	}
	for _, p := range profiles {
		if p.ID == 4 {
			t.Fatal("feed still serves a passed profile")
		}
	}
	batch, err := rosa.ProfileBatch(ctx, 50)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	found := false
	for _, p := range batch {
		if p.ID == 4 {
			found = true
		}
	}
	if !found {
		t.Fatal("refill batch never re-serves passed profiles")
	}

	// City filter narrows the feed.
	cebuanos, _, err := rosa.Discover(ctx, 0, 50, model.DiscoveryFilter{City: "Cebu City"})
	if err != nil {
		t.Fatalf("discover with filter: %v", err)
	}
	if len(cebuanos) == 0 {
		t.Fatal("no Cebu City profiles in the seeded cast")
	}
	for _, p := range cebuanos {
		if p.City != "Cebu City" {
			t.Fatalf("filtered feed leaked %s from %s", p.Name, p.City)
		}
	}
}

func TestPresenceEdges(t *testing.T) {
	_, srv, wsURL := startSandbox(t, Options{Seed: true})
	rosa, rosaTok := signIn(t, srv.URL, "09170000001")
	_, litoTok := signIn(t, srv.URL, "09170000002")
	ctx := context.Background()

	rosaPush := dialPush(t, wsURL, rosaTok.token, 104, push.DestPresence)

	litoPush := dialPush(t, wsURL, litoTok.token, 105)
	var on push.PresenceEvent
	decodeBody(t, waitFrame(t, rosaPush, push.DestPresence), &on)
	if on.UserID != 2 || !on.Online {
		t.Fatalf("presence = %+v, want Lito online", on)
	}

	snap, err := rosa.OnlineUsers(ctx)
	if err != nil {
		t.Fatalf("online users: %v", err)
	}
	online := map[int64]bool{}
	for _, id := range snap.UserIDs {
		online[id] = true
	}
	if !online[1] || !online[2] {
		t.Fatalf("online snapshot = %v, want both 1 and 2", snap.UserIDs)
	}

	_ = litoPush.Close()
	var off push.PresenceEvent
	decodeBody(t, waitFrame(t, rosaPush, push.DestPresence), &off)
	if off.UserID != 2 || off.Online {
		t.Fatalf("presence = %+v, want Lito offline", off)
	}
}
