package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidUser     = errors.New("invalid_user")
	ErrNotFound        = errors.New("api_key_not_found")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Identity is the resolved caller behind a valid API key.
type Identity struct {
	OrgID  snowflake.ID
	UserID snowflake.ID
	Role   string
}

type CreateRequest struct {
	Name string `json:"name"`
}

type Response struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// SecretResponse carries the plaintext key; it is returned exactly once.
type SecretResponse struct {
	ID     string `json:"id"`
	APIKey string `json:"api_key"`
}

type Service interface {
	Create(ctx context.Context, orgID, userID snowflake.ID, req CreateRequest) (*SecretResponse, error)
	List(ctx context.Context, orgID snowflake.ID) ([]Response, error)
	Revoke(ctx context.Context, orgID, keyID snowflake.ID) error
	// Authenticate resolves a raw bearer key to its caller identity.
	Authenticate(ctx context.Context, rawKey string) (*Identity, error)
}
