package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Install(ctx context.Context, req InstallRequest) (*Shop, error)
	Get(ctx context.Context, id snowflake.ID) (*Shop, error)
	GetByDomain(ctx context.Context, domain string) (*Shop, error)
	RecordUsage(ctx context.Context, id snowflake.ID) error
}

// InstallRequest carries the tenant identity captured during the OAuth
// callback. AccessToken is the partner platform offline token.
type InstallRequest struct {
	Domain      string
	Name        string
	Email       string
	AccessToken string
}

var (
	ErrInvalidDomain = errors.New("invalid_shop_domain")
	ErrNotFound      = errors.New("shop_not_found")
	ErrLimitExceeded = errors.New("monthly_tryon_limit_exceeded")
)
