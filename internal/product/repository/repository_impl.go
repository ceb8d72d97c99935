package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	productdomain "github.com/fitmirror/fitmirror/internal/product/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() productdomain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, product *productdomain.Product) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "shop_id"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "image_url", "updated_at",
		}),
	}).Create(product).Error
}

func (r *repo) TitlesByExternalIDs(ctx context.Context, db *gorm.DB, shopID snowflake.ID, externalIDs []string) (map[string]string, error) {
	titles := make(map[string]string, len(externalIDs))
	if len(externalIDs) == 0 {
		return titles, nil
	}

	var rows []productdomain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT external_id, title FROM products WHERE shop_id = ? AND external_id IN ?`,
		shopID,
		externalIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		titles[row.ExternalID] = row.Title
	}
	return titles, nil
}
