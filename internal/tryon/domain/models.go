package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Statuses a try-on moves through. succeeded and failed are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// TryonEvent is one widget render recorded by a storefront.
type TryonEvent struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	ShopID      snowflake.ID `gorm:"column:shop_id;not null;index:ix_tryons_shop_created,priority:1"`
	ProductID   *string      `gorm:"column:product_id;type:text"`
	Status      string       `gorm:"type:text;not null"`
	Converted   bool         `gorm:"not null;default:false"`
	CreatedAt   time.Time    `gorm:"not null;index:ix_tryons_shop_created,priority:2"`
	CompletedAt *time.Time   `gorm:"column:completed_at"`
}

// TableName sets the database table name.
func (TryonEvent) TableName() string { return "tryons" }

// Terminal reports whether the event status can no longer change.
func (e *TryonEvent) Terminal() bool {
	return e.Status == StatusSucceeded || e.Status == StatusFailed
}

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
