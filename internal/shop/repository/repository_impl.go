package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	shopdomain "github.com/fitmirror/fitmirror/internal/shop/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() shopdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*shopdomain.Shop, error) {
	var shop shopdomain.Shop
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM shops WHERE id = ?`, id,
	).Scan(&shop).Error
	if err != nil {
		return nil, err
	}
	if shop.ID == 0 {
		return nil, nil
	}
	return &shop, nil
}

func (r *repo) FindByDomain(ctx context.Context, db *gorm.DB, domain string) (*shopdomain.Shop, error) {
	var shop shopdomain.Shop
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM shops WHERE domain = ?`, strings.ToLower(strings.TrimSpace(domain)),
	).Scan(&shop).Error
	if err != nil {
		return nil, err
	}
	if shop.ID == 0 {
		return nil, nil
	}
	return &shop, nil
}

func (r *repo) FindByStripeCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*shopdomain.Shop, error) {
	var shop shopdomain.Shop
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM shops WHERE stripe_customer_id = ?`, strings.TrimSpace(customerID),
	).Scan(&shop).Error
	if err != nil {
		return nil, err
	}
	if shop.ID == 0 {
		return nil, nil
	}
	return &shop, nil
}

// Upsert inserts the shop or, when the domain is already installed, refreshes
// the fields a re-install is allowed to change.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, shop *shopdomain.Shop) (*shopdomain.Shop, error) {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "domain"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "email", "partner_token", "is_active", "updated_at",
		}),
	}).Create(shop).Error
	if err != nil {
		return nil, err
	}
	return r.FindByDomain(ctx, db, shop.Domain)
}

func (r *repo) UpdateBilling(ctx context.Context, db *gorm.DB, shop *shopdomain.Shop) error {
	return db.WithContext(ctx).Exec(
		`UPDATE shops
		 SET plan = ?, monthly_tryon_limit = ?, tryons_this_month = ?,
		     stripe_customer_id = ?, stripe_subscription_id = ?, updated_at = ?
		 WHERE id = ?`,
		shop.Plan,
		shop.MonthlyTryonLimit,
		shop.TryonsThisMonth,
		shop.StripeCustomerID,
		shop.StripeSubscriptionID,
		shop.UpdatedAt,
		shop.ID,
	).Error
}

// IncrementUsage bumps the monthly counter only while the shop is under its
// plan limit. The guard lives in the statement so concurrent ingests cannot
// race past the cap.
func (r *repo) IncrementUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE shops
		 SET tryons_this_month = tryons_this_month + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_active AND tryons_this_month < monthly_tryon_limit`,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ResetMonthlyUsage zeroes counters for shops that have not been reset since
// the current billing month began. The predicate makes re-running the job a
// no-op.
func (r *repo) ResetMonthlyUsage(ctx context.Context, db *gorm.DB, monthStart, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE shops
		 SET tryons_this_month = 0, last_usage_reset_at = ?, updated_at = ?
		 WHERE last_usage_reset_at < ?`,
		now,
		now,
		monthStart,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
