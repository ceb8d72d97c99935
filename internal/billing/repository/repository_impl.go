package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	billingdomain "github.com/fitmirror/fitmirror/internal/billing/domain"
	"github.com/fitmirror/fitmirror/pkg/db"
)

type repository struct{}

func Provide() billingdomain.Repository {
	return &repository{}
}

// InsertEvent records a webhook delivery. It reports false when the provider
// event id was already stored, which is how redeliveries are detected.
func (r *repository) InsertEvent(ctx context.Context, tx *gorm.DB, record *billingdomain.EventRecord) (bool, error) {
	if err := tx.WithContext(ctx).Create(record).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) FindEvent(ctx context.Context, tx *gorm.DB, providerEventID string) (*billingdomain.EventRecord, error) {
	var record billingdomain.EventRecord
	err := tx.WithContext(ctx).Raw(`
SELECT id, provider_event_id, event_type, shop_id, payload, received_at, processed_at
FROM billing_events
WHERE provider_event_id = ?
LIMIT 1
`, providerEventID).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repository) MarkProcessed(ctx context.Context, tx *gorm.DB, id snowflake.ID, shopID *snowflake.ID, at time.Time) error {
	return tx.WithContext(ctx).Exec(`
UPDATE billing_events
SET processed_at = ?, shop_id = COALESCE(?, shop_id)
WHERE id = ?
`, at, shopID, id).Error
}
