package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Scopes grantable to widget keys.
const (
	ScopeTryonsWrite   = "tryons:write"
	ScopeAnalyticsRead = "analytics:read"
)

type Service interface {
	List(ctx context.Context, shopID snowflake.ID) ([]Response, error)
	Create(ctx context.Context, shopID snowflake.ID, req CreateRequest) (*SecretResponse, error)
	Rotate(ctx context.Context, shopID snowflake.ID, keyID string) (*SecretResponse, error)
	Revoke(ctx context.Context, shopID snowflake.ID, keyID string) error
	Authenticate(ctx context.Context, rawKey string) (*Identity, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	Update(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByKeyID(ctx context.Context, db *gorm.DB, shopID snowflake.ID, keyID string) (*APIKey, error)
	FindByHash(ctx context.Context, db *gorm.DB, keyHash string) (*APIKey, error)
	List(ctx context.Context, db *gorm.DB, shopID snowflake.ID) ([]APIKey, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

type CreateRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type Response struct {
	KeyID            string     `json:"key_id"`
	Name             string     `json:"name"`
	Scopes           []string   `json:"scopes"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	ExpiresAt        *time.Time `json:"expires_at"`
	RotatedFromKeyID *string    `json:"rotated_from_key_id"`
}

// SecretResponse is the only place the raw key ever appears. KeyPrefix is
// the displayable fragment used to tell keys apart afterwards.
type SecretResponse struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
}

// Identity is the resolved caller of an authenticated widget request.
type Identity struct {
	ShopID snowflake.ID
	KeyID  string
	Scopes []string
}

// HasScope reports whether the key grants the named scope.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidKeyID = errors.New("invalid_key_id")
	ErrInvalidKey   = errors.New("invalid_api_key")
	ErrNotFound     = errors.New("api_key_not_found")
)
