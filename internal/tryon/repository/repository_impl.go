package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	tryondomain "github.com/fitmirror/fitmirror/internal/tryon/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tryondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *tryondomain.TryonEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tryons (id, shop_id, product_id, status, converted, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.ShopID,
		event.ProductID,
		event.Status,
		event.Converted,
		event.CreatedAt,
		event.CompletedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, shopID, id snowflake.ID) (*tryondomain.TryonEvent, error) {
	var event tryondomain.TryonEvent
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM tryons WHERE shop_id = ? AND id = ?`,
		shopID,
		id,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) ListBetween(ctx context.Context, db *gorm.DB, shopID snowflake.ID, from, to time.Time) ([]tryondomain.TryonEvent, error) {
	var events []tryondomain.TryonEvent
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM tryons
		 WHERE shop_id = ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC`,
		shopID,
		from,
		to,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, event *tryondomain.TryonEvent) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tryons SET status = ?, converted = ?, completed_at = ? WHERE shop_id = ? AND id = ?`,
		event.Status,
		event.Converted,
		event.CompletedAt,
		event.ShopID,
		event.ID,
	).Error
}
