package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/api"
)

type contextKey string

const userIDKey contextKey = "user_id"

// rest carries the HTTP handlers. Push side effects go through the
// broker so REST and STOMP sends behave the same.
type rest struct {
	state  *State
	broker *Broker
	log    *zap.Logger
}

// NewHandler assembles the sandbox HTTP surface: the /api routes plus
// the /ws STOMP endpoint.
func NewHandler(state *State, broker *Broker, log *zap.Logger) http.Handler {
	h := &rest{state: state, broker: broker, log: log}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(h.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/conversations", h.conversations)
			r.Post("/conversations", h.startConversation)
			r.Get("/conversations/{id}/messages", h.messages)
			r.Post("/conversations/{id}/read", h.markRead)
			r.Post("/messages", h.sendMessage)
			r.Get("/discovery", h.discover)
			r.Get("/profiles/batch", h.profileBatch)
			r.Post("/swipes", h.swipe)
			r.Get("/presence/online", h.presence)
		})
	})
	r.Get("/ws", broker.HandleWS)
	return r
}

func (h *rest) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

// requireAuth verifies the bearer token and stores the user id on the
// request context.
func (h *rest) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := h.state.VerifyToken(raw)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		h.state.Touch(userID)
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestUser extracts the authenticated user id set by requireAuth.
func requestUser(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

func (h *rest) login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed body")
		return
	}
	res, err := h.state.Login(req.Phone, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid phone or password")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *rest) conversations(w http.ResponseWriter, r *http.Request) {
	rows := h.state.Conversations(requestUser(r))
	if rows == nil {
		rows = []api.Conversation{}
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *rest) startConversation(w http.ResponseWriter, r *http.Request) {
	var req api.StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed body")
		return
	}
	id, err := h.state.StartConversation(requestUser(r), req.OtherUserID)
	if err != nil {
		respondStateError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, api.StartConversationResponse{ID: id})
}

func (h *rest) messages(w http.ResponseWriter, r *http.Request) {
	convID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad conversation id")
		return
	}
	msgs, last, err := h.state.Messages(requestUser(r), convID, queryInt(r, "page", 0), queryInt(r, "size", 20))
	if err != nil {
		respondStateError(w, err)
		return
	}
	if msgs == nil {
		msgs = []api.Message{}
	}
	respondJSON(w, http.StatusOK, api.MessagePage{Content: msgs, Last: last})
}

func (h *rest) markRead(w http.ResponseWriter, r *http.Request) {
	convID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad conversation id")
		return
	}
	if err := h.broker.MarkRead(requestUser(r), convID); err != nil {
		respondStateError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *rest) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req api.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "empty message")
		return
	}
	msg, err := h.state.AppendMessage(requestUser(r), req.ReceiverID, req.Content, req.ClientRef)
	if err != nil {
		respondStateError(w, err)
		return
	}
	h.broker.FanoutMessage(msg)
	respondJSON(w, http.StatusCreated, msg)
}

func (h *rest) discover(w http.ResponseWriter, r *http.Request) {
	profiles, last := h.state.Discover(requestUser(r),
		queryInt(r, "page", 0), queryInt(r, "size", 50),
		queryInt(r, "minAge", 0), queryInt(r, "maxAge", 0),
		r.URL.Query().Get("city"))
	if profiles == nil {
		profiles = []api.Profile{}
	}
	respondJSON(w, http.StatusOK, api.ProfilePage{Content: profiles, Last: last})
}

func (h *rest) profileBatch(w http.ResponseWriter, r *http.Request) {
	profiles := h.state.ProfileBatch(requestUser(r), queryInt(r, "count", 50))
	if profiles == nil {
		profiles = []api.Profile{}
	}
	respondJSON(w, http.StatusOK, profiles)
}

func (h *rest) swipe(w http.ResponseWriter, r *http.Request) {
	var req api.SwipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed body")
		return
	}
	res, match, err := h.state.RecordSwipe(requestUser(r), req.TargetUserID, req.Direction)
	if err != nil {
		if errors.Is(err, ErrDailyLimit) {
			respondError(w, http.StatusTooManyRequests, "Daily like limit reached")
			return
		}
		respondStateError(w, err)
		return
	}
	if match != nil {
		h.broker.FanoutMatch(*match)
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *rest) presence(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.state.Presence())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, api.ErrorResponse{Message: message})
}

func respondStateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrForbidden):
		respondError(w, http.StatusForbidden, "not your conversation")
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
