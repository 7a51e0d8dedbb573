// Package auth holds the credential login flow and the token persisted
// between runs at ~/.tander/accounts/<name>/token.json.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned by Load when no token has been persisted yet.
var ErrNoToken = errors.New("no persisted token")

// expiryLeeway treats a token expiring within this window as already
// expired, so a session never dies mid-connect.
const expiryLeeway = 30 * time.Second

// Token is the persisted session: the raw JWT plus the identity fields
// the client needs without decoding it again.
type Token struct {
	AccessToken string `json:"accessToken"`
	UserID      int64  `json:"userId"`
	Name        string `json:"name"`
	// ExpiresAt is epoch seconds, zero when the token carries no exp claim.
	ExpiresAt int64 `json:"expiresAt"`
}

// Store guards the persisted token and satisfies api.TokenSource.
type Store struct {
	mu   sync.RWMutex
	path string
	tok  *Token
}

// NewStore creates a token store persisting at the given path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted token from disk. Returns ErrNoToken when the
// file does not exist.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoToken
	}
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return fmt.Errorf("parse token file: %w", err)
	}
	s.mu.Lock()
	s.tok = &tok
	s.mu.Unlock()
	return nil
}

// Save persists the token with owner-only permissions and makes it the
// active one.
func (s *Store) Save(tok Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	s.mu.Lock()
	s.tok = &tok
	s.mu.Unlock()
	return nil
}

// Clear forgets the active token and removes the file.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.tok = nil
	s.mu.Unlock()
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Token returns the active raw JWT, empty when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tok == nil {
		return ""
	}
	return s.tok.AccessToken
}

// UserID returns the authenticated user id, zero when logged out.
func (s *Store) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tok == nil {
		return 0
	}
	return s.tok.UserID
}

// Name returns the authenticated display name, empty when logged out.
func (s *Store) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tok == nil {
		return ""
	}
	return s.tok.Name
}

// Valid reports whether an unexpired token is active. A token without an
// exp claim counts as valid until the server rejects it.
func (s *Store) Valid(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tok == nil || s.tok.AccessToken == "" {
		return false
	}
	if s.tok.ExpiresAt == 0 {
		return true
	}
	return now.Add(expiryLeeway).Unix() < s.tok.ExpiresAt
}

// ExpiryOf extracts the exp claim from a raw JWT without verifying the
// signature. Verification is the server's job; the client only needs to
// know whether logging in again is pointless.
func ExpiryOf(raw string) int64 {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Unix()
}
