package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-pos/meridian-stock/internal/shared"
)

// Service wraps API client authentication rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates a client id/secret pair. All failure modes map to
// the same error so callers cannot probe for valid ids.
func (s *Service) Authenticate(ctx context.Context, clientID, secret string) (*Client, error) {
	client, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !client.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return client, nil
}

// HashSecret produces the bcrypt hash stored for a new client secret.
func HashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
