// Package api is the typed REST client for the TANDER backend. Every
// failure is tagged with a Kind so controllers map it to user-facing
// copy without inspecting status codes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/model"
)

// TokenSource supplies the bearer token and the authenticated user id.
// An empty token means the request goes out unauthenticated.
type TokenSource interface {
	Token() string
	UserID() int64
}

// Client talks to the TANDER REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *zap.Logger

	// onUnauthorized, when set, fires once per 401 response so the app
	// can drop the session to the login screen.
	onUnauthorized func()
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string, tokens TokenSource, log *zap.Logger) *Client {
	return &Client{
		baseURL: trimSlash(baseURL),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		log:     log,
	}
}

// SetUnauthorizedHook registers a callback invoked whenever any request
// comes back 401. Must be called before the client is shared.
func (c *Client) SetUnauthorizedHook(fn func()) {
	c.onUnauthorized = fn
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// Login exchanges credentials for a token. The only endpoint that goes
// out unauthenticated.
func (c *Client) Login(ctx context.Context, phone, password string) (LoginResponse, error) {
	var res LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, LoginRequest{Phone: phone, Password: password}, &res)
	return res, err
}

// Conversations fetches the full inbox, most recent first.
func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var rows []Conversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]model.Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Model())
	}
	return out, nil
}

// Messages fetches one history page for a conversation. Pages count from
// zero and arrive newest first; the second return reports whether this
// was the last (oldest) page.
func (c *Client) Messages(ctx context.Context, convID int64, page, size int) ([]model.Message, bool, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	var res MessagePage
	path := fmt.Sprintf("/api/conversations/%d/messages", convID)
	if err := c.do(ctx, http.MethodGet, path, q, nil, &res); err != nil {
		return nil, false, err
	}
	out := make([]model.Message, 0, len(res.Content))
	for _, m := range res.Content {
		out = append(out, m.Model(c.tokens.UserID()))
	}
	return out, res.Last, nil
}

// SendMessage posts a new message and returns the confirmed copy with
// its server-assigned id. The clientRef is echoed back for optimistic
// reconciliation.
func (c *Client) SendMessage(ctx context.Context, receiverID int64, content, clientRef string) (model.Message, error) {
	var res Message
	req := SendMessageRequest{ReceiverID: receiverID, Content: content, ClientRef: clientRef}
	if err := c.do(ctx, http.MethodPost, "/api/messages", nil, req, &res); err != nil {
		return model.Message{}, err
	}
	return res.Model(c.tokens.UserID()), nil
}

// MarkRead marks every message in the conversation as read by this account.
func (c *Client) MarkRead(ctx context.Context, convID int64) error {
	path := fmt.Sprintf("/api/conversations/%d/read", convID)
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// StartConversation creates (or returns the existing) conversation with
// the given user. Used from the match popup.
func (c *Client) StartConversation(ctx context.Context, otherUserID int64) (int64, error) {
	var res StartConversationResponse
	req := StartConversationRequest{OtherUserID: otherUserID}
	if err := c.do(ctx, http.MethodPost, "/api/conversations", nil, req, &res); err != nil {
		return 0, err
	}
	return res.ID, nil
}

// Discover fetches one page of discovery profiles. The second return
// reports whether this was the last page for the current filter.
func (c *Client) Discover(ctx context.Context, page, size int, f model.DiscoveryFilter) ([]model.Profile, bool, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if f.MinAge > 0 {
		q.Set("minAge", strconv.Itoa(f.MinAge))
	}
	if f.MaxAge > 0 {
		q.Set("maxAge", strconv.Itoa(f.MaxAge))
	}
	if f.City != "" {
		q.Set("city", f.City)
	}
	var res ProfilePage
	if err := c.do(ctx, http.MethodGet, "/api/discovery", q, nil, &res); err != nil {
		return nil, false, err
	}
	out := make([]model.Profile, 0, len(res.Content))
	for _, p := range res.Content {
		out = append(out, p.Model())
	}
	return out, res.Last, nil
}

// ProfileBatch fetches up to count profiles without paging state, used to
// top up the deck when the paged feed is exhausted.
func (c *Client) ProfileBatch(ctx context.Context, count int) ([]model.Profile, error) {
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	var rows []Profile
	if err := c.do(ctx, http.MethodGet, "/api/profiles/batch", q, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]model.Profile, 0, len(rows))
	for _, p := range rows {
		out = append(out, p.Model())
	}
	return out, nil
}

// RecordSwipe registers a like or pass on the target user.
func (c *Client) RecordSwipe(ctx context.Context, targetUserID int64, dir model.SwipeDirection) (model.SwipeResult, error) {
	var res SwipeResponse
	req := SwipeRequest{TargetUserID: targetUserID, Direction: string(dir)}
	if err := c.do(ctx, http.MethodPost, "/api/swipes", nil, req, &res); err != nil {
		return model.SwipeResult{}, err
	}
	return res.Model(), nil
}

// OnlineUsers fetches the current presence snapshot.
func (c *Client) OnlineUsers(ctx context.Context) (model.PresenceSnapshot, error) {
	var res PresenceResponse
	if err := c.do(ctx, http.MethodGet, "/api/presence/online", nil, nil, &res); err != nil {
		return model.PresenceSnapshot{}, err
	}
	return res.Model(), nil
}

// do runs one round-trip: marshal body, attach token, classify failures.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindUnknown, err: fmt.Errorf("encode request: %w", err)}
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return &Error{Kind: KindUnknown, err: err}
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	authed := false
	if tok := c.tokens.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
		authed = true
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, err: err}
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return c.errorFrom(method, path, authed, res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &Error{Kind: KindUnknown, err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) errorFrom(method, path string, authed bool, res *http.Response) error {
	var envelope ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	_ = json.Unmarshal(raw, &envelope)

	kind := KindUnknown
	switch res.StatusCode {
	case http.StatusUnauthorized:
		kind = KindUnauthorized
		// A 401 on a bad password is just a wrong password; only a
		// rejected token means the session died.
		if authed && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusNotFound:
		kind = KindNotFound
	}

	c.log.Debug("request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", res.StatusCode),
		zap.String("kind", string(kind)))

	return &Error{Kind: kind, StatusCode: res.StatusCode, Message: envelope.Message}
}
