package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/model"
)

type staticToken struct {
	tok string
	id  int64
}

func (s staticToken) Token() string { return s.tok }
func (s staticToken) UserID() int64 { return s.id }

func TestAuthorizationHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]Conversation{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken{tok: "tok-123", id: 1}, zap.NewNop())
	if _, err := c.Conversations(context.Background()); err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok-123")
	}
}

func TestMessagesDerivesMine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("size"); got != "20" {
			t.Errorf("size = %q, want 20", got)
		}
		page := MessagePage{
			Content: []Message{
				{ID: "m-2", ConversationID: 7, SenderID: 1, Content: "Kumusta?", Timestamp: 2000},
				{ID: "m-1", ConversationID: 7, SenderID: 34, Content: "Hello po", Timestamp: 1000},
			},
			Last: true,
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken{tok: "t", id: 1}, zap.NewNop())
	msgs, last, err := c.Messages(context.Background(), 7, 0, 20)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if !last {
		t.Error("last = false, want true")
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if !msgs[0].Mine {
		t.Error("message from self should have Mine = true")
	}
	if msgs[1].Mine {
		t.Error("message from peer should have Mine = false")
	}
	// Status defaults to sent when the server omits it.
	if msgs[0].Status != model.StatusSent {
		t.Errorf("Status = %q, want sent", msgs[0].Status)
	}
}

func TestSendMessageEchoesClientRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		msg := Message{
			ID:             "m-99",
			ConversationID: 7,
			SenderID:       1,
			Content:        req.Content,
			Timestamp:      5000,
			Status:         "sent",
			ClientRef:      req.ClientRef,
		}
		_ = json.NewEncoder(w).Encode(msg)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken{tok: "t", id: 1}, zap.NewNop())
	msg, err := c.SendMessage(context.Background(), 34, "Mahal kita", "ref-abc")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if msg.ID != "m-99" {
		t.Errorf("ID = %q, want m-99", msg.ID)
	}
	if msg.ClientRef != "ref-abc" {
		t.Errorf("ClientRef = %q, want ref-abc", msg.ClientRef)
	}
	if !msg.Mine {
		t.Error("confirmed own message should have Mine = true")
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"unauthorized", http.StatusUnauthorized, KindUnauthorized},
		{"rate limited", http.StatusTooManyRequests, KindRateLimited},
		{"not found", http.StatusNotFound, KindNotFound},
		{"server error", http.StatusInternalServerError, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(ErrorResponse{Message: "nope"})
			}))
			defer srv.Close()

			c := NewClient(srv.URL, staticToken{tok: "t", id: 1}, zap.NewNop())
			_, err := c.Conversations(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("KindOf = %q, want %q", got, tt.want)
			}
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("error type = %T, want *Error", err)
			}
			if apiErr.Message != "nope" {
				t.Errorf("Message = %q, want %q", apiErr.Message, "nope")
			}
		})
	}
}

func TestUnauthorizedHookFires(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	fired := 0
	c := NewClient(srv.URL, staticToken{tok: "expired", id: 1}, zap.NewNop())
	c.SetUnauthorizedHook(func() { fired++ })

	_ = c.MarkRead(context.Background(), 7)
	if fired != 1 {
		t.Errorf("unauthorized hook fired %d times, want 1", fired)
	}
}

func TestUnauthorizedHookNeedsToken(t *testing.T) {
	// A wrong password at sign-in is a 401 on a request that carried no
	// token. That must not tear down a session that was never up.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Message: "bad credentials"})
	}))
	defer srv.Close()

	fired := 0
	c := NewClient(srv.URL, staticToken{}, zap.NewNop())
	c.SetUnauthorizedHook(func() { fired++ })

	_, err := c.Login(context.Background(), "09171234567", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := KindOf(err); got != KindUnauthorized {
		t.Errorf("KindOf = %q, want %q", got, KindUnauthorized)
	}
	if fired != 0 {
		t.Errorf("unauthorized hook fired %d times, want 0", fired)
	}
}

func TestNetworkErrorKind(t *testing.T) {
	// Point at a closed server so the dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, staticToken{tok: "t", id: 1}, zap.NewNop())
	_, err := c.Conversations(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := KindOf(err); got != KindNetwork {
		t.Errorf("KindOf = %q, want %q", got, KindNetwork)
	}
}

func TestDiscoverFilterQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("minAge") != "55" || q.Get("maxAge") != "70" || q.Get("city") != "Cebu" {
			t.Errorf("unexpected filter query: %v", q)
		}
		_ = json.NewEncoder(w).Encode(ProfilePage{Last: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken{tok: "t", id: 1}, zap.NewNop())
	f := model.DiscoveryFilter{MinAge: 55, MaxAge: 70, City: "Cebu"}
	if _, _, err := c.Discover(context.Background(), 0, 50, f); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
}
