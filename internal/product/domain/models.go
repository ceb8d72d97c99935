package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Product mirrors the partner platform's catalog entry for a shop, kept so
// analytics can show product titles instead of raw ids.
type Product struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	ShopID     snowflake.ID `gorm:"column:shop_id;not null;uniqueIndex:ux_products_shop_external,priority:1"`
	ExternalID string       `gorm:"column:external_id;type:text;not null;uniqueIndex:ux_products_shop_external,priority:2"`
	Title      string       `gorm:"type:text;not null"`
	ImageURL   string       `gorm:"column:image_url;type:text"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, product *Product) error
	TitlesByExternalIDs(ctx context.Context, db *gorm.DB, shopID snowflake.ID, externalIDs []string) (map[string]string, error)
}
