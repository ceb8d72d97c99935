package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Shop, error)
	FindByDomain(ctx context.Context, db *gorm.DB, domain string) (*Shop, error)
	FindByStripeCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*Shop, error)
	Upsert(ctx context.Context, db *gorm.DB, shop *Shop) (*Shop, error)
	UpdateBilling(ctx context.Context, db *gorm.DB, shop *Shop) error
	IncrementUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	ResetMonthlyUsage(ctx context.Context, db *gorm.DB, monthStart, now time.Time) (int64, error)
}
