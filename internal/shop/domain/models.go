package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Shop is a tenant: one installed storefront of the partner platform.
type Shop struct {
	ID                   snowflake.ID `gorm:"primaryKey"`
	Domain               string       `gorm:"column:domain;type:text;not null;uniqueIndex:ux_shops_domain"`
	Name                 string       `gorm:"type:text;not null"`
	Email                string       `gorm:"type:text;not null"`
	Plan                 string       `gorm:"type:text;not null;default:trial"`
	MonthlyTryonLimit    int          `gorm:"column:monthly_tryon_limit;not null"`
	TryonsThisMonth      int          `gorm:"column:tryons_this_month;not null;default:0"`
	StripeCustomerID     *string      `gorm:"column:stripe_customer_id;type:text"`
	StripeSubscriptionID *string      `gorm:"column:stripe_subscription_id;type:text"`
	PartnerToken         string       `gorm:"column:partner_token;type:text;not null"`
	IsActive             bool         `gorm:"column:is_active;not null;default:true"`
	InstalledAt          time.Time    `gorm:"column:installed_at;not null"`
	LastUsageResetAt     time.Time    `gorm:"column:last_usage_reset_at;not null"`
	CreatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Shop) TableName() string { return "shops" }
