package auth

import "time"

// Client is an API consumer authenticating with Basic credentials. The
// secret is stored as a bcrypt hash only.
type Client struct {
	ID         string
	Name       string
	SecretHash string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
