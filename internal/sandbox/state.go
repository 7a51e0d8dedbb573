// Package sandbox is a self-contained TANDER backend for local
// development and integration tests: the REST surface, the STOMP broker
// over WebSocket and a canned cast of members from Cebu, Quezon City
// and Manila. Everything lives in memory and resets on restart.
package sandbox

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tanderapp/tander/internal/api"
)

var (
	// ErrBadCredentials rejects a login.
	ErrBadCredentials = errors.New("sandbox: wrong phone or password")
	// ErrDailyLimit rejects a like past the daily budget; REST maps it to 429.
	ErrDailyLimit = errors.New("sandbox: daily like limit reached")
	// ErrNotFound covers unknown users and conversations.
	ErrNotFound = errors.New("sandbox: not found")
	// ErrForbidden covers access to a conversation the user is not part of.
	ErrForbidden = errors.New("sandbox: not a participant")
)

const tokenTTL = 12 * time.Hour

// Account is a seeded member: the public card plus login credentials.
type Account struct {
	Profile  api.Profile
	Phone    string
	Password string
}

type conversation struct {
	id     int64
	a, b   int64
	msgs   []api.Message
	unread map[int64]int
}

func (c *conversation) participant(userID int64) bool {
	return c.a == userID || c.b == userID
}

func (c *conversation) peerOf(userID int64) int64 {
	if c.a == userID {
		return c.b
	}
	return c.a
}

// MatchOutcome tells the caller who to notify after a mutual like.
type MatchOutcome struct {
	MatchID        int64
	ConversationID int64
	// Earlier is the user whose like was already on record; the push
	// event goes to them, the swipe response covers the other side.
	Earlier int64
	Later   int64
}

// State is the sandbox world: accounts, conversations, swipes, matches
// and presence, behind one mutex. Methods speak the api wire shapes so
// the REST handlers and the broker share one source of truth.
type State struct {
	secret []byte
	limit  int
	now    func() time.Time

	mu       sync.Mutex
	users    map[int64]*Account
	byPhone  map[string]int64
	convs    map[int64]*conversation
	convSeq  int64
	msgSeq   int64
	matchSeq int64
	// swipes[user][target] is "like" or "pass"; presence in the map is
	// what makes a swipe at-most-once.
	swipes map[int64]map[int64]string
	// matches[user][peer] is the match id, mirrored for both sides.
	matches   map[int64]map[int64]int64
	likesDay  map[int64]string
	likesUsed map[int64]int
	// sessions counts live push connections per user; presence is
	// "at least one".
	sessions   map[int64]int
	lastActive map[int64]int64
}

// NewState builds an empty world. A non-positive limit means unlimited
// likes per day.
func NewState(secret string, dailyLimit int) *State {
	return &State{
		secret:     []byte(secret),
		limit:      dailyLimit,
		now:        time.Now,
		users:      make(map[int64]*Account),
		byPhone:    make(map[string]int64),
		convs:      make(map[int64]*conversation),
		swipes:     make(map[int64]map[int64]string),
		matches:    make(map[int64]map[int64]int64),
		likesDay:   make(map[int64]string),
		likesUsed:  make(map[int64]int),
		sessions:   make(map[int64]int),
		lastActive: make(map[int64]int64),
	}
}

// AddAccount registers a member. Used by the seed and by tests.
func (s *State) AddAccount(acct Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := acct
	s.users[a.Profile.ID] = &a
	if a.Phone != "" {
		s.byPhone[a.Phone] = a.Profile.ID
	}
}

// Login checks credentials and issues a signed session token.
func (s *State) Login(phone, password string) (api.LoginResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPhone[strings.TrimSpace(phone)]
	if !ok {
		return api.LoginResponse{}, ErrBadCredentials
	}
	acct := s.users[id]
	if acct.Password != password {
		return api.LoginResponse{}, ErrBadCredentials
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(id, 10),
		"name": acct.Profile.Name,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return api.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}
	s.lastActive[id] = now.UnixMilli()
	return api.LoginResponse{Token: raw, User: s.wireUserLocked(id)}, nil
}

// VerifyToken checks the signature and expiry and returns the user id.
func (s *State) VerifyToken(raw string) (int64, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return 0, errors.New("invalid token")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid subject")
	}
	s.mu.Lock()
	_, known := s.users[id]
	s.mu.Unlock()
	if !known {
		return 0, errors.New("unknown user")
	}
	return id, nil
}

// Touch refreshes a user's last-active stamp.
func (s *State) Touch(userID int64) {
	s.mu.Lock()
	s.lastActive[userID] = s.now().UnixMilli()
	s.mu.Unlock()
}

// User returns the wire shape of a member.
func (s *State) User(id int64) (api.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return api.User{}, false
	}
	return s.wireUserLocked(id), true
}

func (s *State) wireUserLocked(id int64) api.User {
	p := s.users[id].Profile
	return api.User{
		ID:           p.ID,
		Name:         p.Name,
		Age:          p.Age,
		City:         p.City,
		PhotoURL:     p.PhotoURL,
		LastActiveAt: s.lastActive[id],
	}
}

// Conversations lists the user's inbox rows, newest activity first.
func (s *State) Conversations(userID int64) []api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []api.Conversation
	for _, c := range s.convs {
		if !c.participant(userID) {
			continue
		}
		row := api.Conversation{
			ID:          c.id,
			Peer:        s.wireUserLocked(c.peerOf(userID)),
			UnreadCount: c.unread[userID],
		}
		if n := len(c.msgs); n > 0 {
			row.LastMessage = c.msgs[n-1].Content
			row.LastMessageAt = c.msgs[n-1].Timestamp
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageAt != out[j].LastMessageAt {
			return out[i].LastMessageAt > out[j].LastMessageAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Messages returns one backward page, newest first: page 0 holds the
// most recent messages, ordered newest to oldest within the page.
func (s *State) Messages(userID, convID int64, page, size int) ([]api.Message, bool, error) {
	if size <= 0 {
		size = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[convID]
	if !ok {
		return nil, false, ErrNotFound
	}
	if !c.participant(userID) {
		return nil, false, ErrForbidden
	}
	n := len(c.msgs)
	start := page * size
	if start >= n {
		return nil, true, nil
	}
	end := start + size
	if end > n {
		end = n
	}
	out := make([]api.Message, 0, end-start)
	for i := n - 1 - start; i >= n-end; i-- {
		out = append(out, c.msgs[i])
	}
	return out, end == n, nil
}

// AppendMessage stores a new text message from sender to receiver,
// creating the conversation when this is their first exchange. The
// stored copy echoes the sender's clientRef.
func (s *State) AppendMessage(senderID, receiverID int64, content, clientRef string) (api.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[receiverID]; !ok || senderID == receiverID {
		return api.Message{}, ErrNotFound
	}
	c := s.findOrCreateConvLocked(senderID, receiverID)
	s.msgSeq++
	msg := api.Message{
		ID:             "m-" + strconv.FormatInt(s.msgSeq, 10),
		ConversationID: c.id,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		Type:           "text",
		Timestamp:      s.now().UnixMilli(),
		Status:         "sent",
		ClientRef:      clientRef,
	}
	c.msgs = append(c.msgs, msg)
	c.unread[receiverID]++
	s.lastActive[senderID] = msg.Timestamp
	return msg, nil
}

// SeedMessage backdates a message into a conversation. Seed/test only;
// it does not touch unread counters.
func (s *State) SeedMessage(convID, senderID int64, content string, at time.Time, status string) api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[convID]
	s.msgSeq++
	msg := api.Message{
		ID:             "m-" + strconv.FormatInt(s.msgSeq, 10),
		ConversationID: convID,
		SenderID:       senderID,
		ReceiverID:     c.peerOf(senderID),
		Content:        content,
		Type:           "text",
		Timestamp:      at.UnixMilli(),
		Status:         status,
	}
	c.msgs = append(c.msgs, msg)
	return msg
}

// SeedCallEvent backdates a call-event entry into a conversation. The
// content stands in as the inbox preview for screens that ignore the
// type. Seed/test only, same as SeedMessage.
func (s *State) SeedCallEvent(convID, senderID int64, kind string, durationSec int, outcome string, at time.Time) api.Message {
	content := "Voice call"
	if kind == "video" {
		content = "Video call"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.convs[convID]
	s.msgSeq++
	msg := api.Message{
		ID:             "m-" + strconv.FormatInt(s.msgSeq, 10),
		ConversationID: convID,
		SenderID:       senderID,
		ReceiverID:     c.peerOf(senderID),
		Content:        content,
		Type:           "call-event",
		Call:           &api.CallInfo{Kind: kind, DurationSec: durationSec, Outcome: outcome},
		Timestamp:      at.UnixMilli(),
		Status:         "read",
	}
	c.msgs = append(c.msgs, msg)
	return msg
}

// MarkDelivered advances a stored message to delivered. Reports whether
// the status actually moved.
func (s *State) MarkDelivered(convID int64, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[convID]
	if !ok {
		return false
	}
	for i := range c.msgs {
		if c.msgs[i].ID == messageID {
			if c.msgs[i].Status == "sent" {
				c.msgs[i].Status = "delivered"
				return true
			}
			return false
		}
	}
	return false
}

// MarkRead clears the reader's unread counter and flips the peer's
// messages to read. Returns the peer id and whether anything changed.
func (s *State) MarkRead(userID, convID int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[convID]
	if !ok {
		return 0, false, ErrNotFound
	}
	if !c.participant(userID) {
		return 0, false, ErrForbidden
	}
	peer := c.peerOf(userID)
	changed := c.unread[userID] > 0
	c.unread[userID] = 0
	for i := range c.msgs {
		if c.msgs[i].SenderID == peer && c.msgs[i].Status != "read" {
			c.msgs[i].Status = "read"
			changed = true
		}
	}
	s.lastActive[userID] = s.now().UnixMilli()
	return peer, changed, nil
}

// StartConversation returns the conversation between the two users,
// creating an empty one when none exists.
func (s *State) StartConversation(userID, otherID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[otherID]; !ok || userID == otherID {
		return 0, ErrNotFound
	}
	return s.findOrCreateConvLocked(userID, otherID).id, nil
}

func (s *State) findOrCreateConvLocked(a, b int64) *conversation {
	for _, c := range s.convs {
		if (c.a == a && c.b == b) || (c.a == b && c.b == a) {
			return c
		}
	}
	s.convSeq++
	c := &conversation{id: s.convSeq, a: a, b: b, unread: make(map[int64]int)}
	s.convs[c.id] = c
	return c
}

// Discover returns one page of candidate profiles: everyone the user
// has not swiped on or matched with, filtered and in a stable order.
func (s *State) Discover(userID int64, page, size, minAge, maxAge int, city string) ([]api.Profile, bool) {
	if size <= 0 {
		size = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pool := s.candidatesLocked(userID, minAge, maxAge, city, false)
	start := page * size
	if start >= len(pool) {
		return nil, true
	}
	end := start + size
	if end > len(pool) {
		end = len(pool)
	}
	return pool[start:end], end == len(pool)
}

// ProfileBatch tops the deck up once the paged feed ran out. Passed
// profiles come back into rotation here; liked and matched ones do not.
func (s *State) ProfileBatch(userID int64, count int) []api.Profile {
	if count <= 0 {
		count = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pool := s.candidatesLocked(userID, 0, 0, "", true)
	if len(pool) > count {
		pool = pool[:count]
	}
	return pool
}

// candidatesLocked builds the eligible profile list in id order.
// includePassed re-serves passed profiles for the refill path.
func (s *State) candidatesLocked(userID int64, minAge, maxAge int, city string, includePassed bool) []api.Profile {
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []api.Profile
	for _, id := range ids {
		if id == userID {
			continue
		}
		if _, matched := s.matches[userID][id]; matched {
			continue
		}
		if dir, swiped := s.swipes[userID][id]; swiped {
			if !includePassed || dir != "pass" {
				continue
			}
		}
		p := s.users[id].Profile
		if minAge > 0 && p.Age < minAge {
			continue
		}
		if maxAge > 0 && p.Age > maxAge {
			continue
		}
		if city != "" && !strings.EqualFold(p.City, city) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// RecordSwipe stores a like or pass. A repeat on the same target is
// answered from the record without spending budget. A like that meets
// an earlier like from the target creates a match and its conversation.
func (s *State) RecordSwipe(userID, targetID int64, direction string) (api.SwipeResponse, *MatchOutcome, error) {
	if direction != "like" && direction != "pass" {
		return api.SwipeResponse{}, nil, fmt.Errorf("sandbox: bad direction %q", direction)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[targetID]; !ok || targetID == userID {
		return api.SwipeResponse{}, nil, ErrNotFound
	}

	if prev, ok := s.swipes[userID][targetID]; ok {
		// Duplicate: idempotent replay, no budget spent, no new match.
		res := api.SwipeResponse{SwipesRemaining: s.likesLeftLocked(userID)}
		if prev == "like" {
			if matchID, matched := s.matches[userID][targetID]; matched {
				res.IsMatch = true
				res.MatchID = matchID
			}
		}
		return res, nil, nil
	}

	if direction == "like" && s.limit > 0 {
		day := s.now().Format("2006-01-02")
		if s.likesDay[userID] != day {
			s.likesDay[userID] = day
			s.likesUsed[userID] = 0
		}
		if s.likesUsed[userID] >= s.limit {
			return api.SwipeResponse{}, nil, ErrDailyLimit
		}
		s.likesUsed[userID]++
	}

	if s.swipes[userID] == nil {
		s.swipes[userID] = make(map[int64]string)
	}
	s.swipes[userID][targetID] = direction

	res := api.SwipeResponse{SwipesRemaining: s.likesLeftLocked(userID)}
	if direction != "like" || s.swipes[targetID][userID] != "like" {
		return res, nil, nil
	}

	// Mutual like: mint the match and open its conversation.
	s.matchSeq++
	matchID := s.matchSeq
	for _, pair := range [][2]int64{{userID, targetID}, {targetID, userID}} {
		if s.matches[pair[0]] == nil {
			s.matches[pair[0]] = make(map[int64]int64)
		}
		s.matches[pair[0]][pair[1]] = matchID
	}
	conv := s.findOrCreateConvLocked(userID, targetID)
	res.IsMatch = true
	res.MatchID = matchID
	return res, &MatchOutcome{
		MatchID:        matchID,
		ConversationID: conv.id,
		Earlier:        targetID,
		Later:          userID,
	}, nil
}

func (s *State) likesLeftLocked(userID int64) int {
	if s.limit <= 0 {
		return -1
	}
	if s.likesDay[userID] != s.now().Format("2006-01-02") {
		return s.limit
	}
	left := s.limit - s.likesUsed[userID]
	if left < 0 {
		return 0
	}
	return left
}

// Presence returns the online snapshot.
func (s *State) Presence() api.PresenceResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := api.PresenceResponse{LastActive: make(map[int64]int64, len(s.lastActive))}
	for id, n := range s.sessions {
		if n > 0 {
			res.UserIDs = append(res.UserIDs, id)
		}
	}
	sort.Slice(res.UserIDs, func(i, j int) bool { return res.UserIDs[i] < res.UserIDs[j] })
	for id, at := range s.lastActive {
		res.LastActive[id] = at
	}
	return res
}

// SessionOpened counts a push connection in. Reports whether the user
// just came online.
func (s *State) SessionOpened(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID]++
	s.lastActive[userID] = s.now().UnixMilli()
	return s.sessions[userID] == 1
}

// SessionClosed counts a push connection out. Reports whether the user
// just went offline.
func (s *State) SessionClosed(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[userID] == 0 {
		return false
	}
	s.sessions[userID]--
	s.lastActive[userID] = s.now().UnixMilli()
	return s.sessions[userID] == 0
}

// OnlineNow reports whether the user has a live push connection.
func (s *State) OnlineNow(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID] > 0
}

// LastActive returns the user's last-active stamp in epoch milliseconds.
func (s *State) LastActive(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive[userID]
}
