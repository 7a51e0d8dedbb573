package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tanderapp/tander/internal/api"
	"github.com/tanderapp/tander/internal/model"
)

// Login exchanges credentials for a token, persists it and returns the
// authenticated user.
func Login(ctx context.Context, c *api.Client, s *Store, log *zap.Logger, phone, password string) (model.User, error) {
	res, err := c.Login(ctx, phone, password)
	if err != nil {
		return model.User{}, err
	}
	tok := Token{
		AccessToken: res.Token,
		UserID:      res.User.ID,
		Name:        res.User.Name,
		ExpiresAt:   ExpiryOf(res.Token),
	}
	if err := s.Save(tok); err != nil {
		return model.User{}, fmt.Errorf("persist token: %w", err)
	}
	log.Info("logged in",
		zap.Int64("user_id", tok.UserID),
		zap.String("name", tok.Name),
		zap.Int64("expires_at", tok.ExpiresAt))
	return res.User.Model(), nil
}

// Logout forgets the persisted token.
func Logout(s *Store, log *zap.Logger) error {
	if err := s.Clear(); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	log.Info("logged out")
	return nil
}
