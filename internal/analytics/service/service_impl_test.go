package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fitmirror/fitmirror/internal/clock"
	productdomain "github.com/fitmirror/fitmirror/internal/product/domain"
	productrepo "github.com/fitmirror/fitmirror/internal/product/repository"
	tryondomain "github.com/fitmirror/fitmirror/internal/tryon/domain"
	tryonrepo "github.com/fitmirror/fitmirror/internal/tryon/repository"
)

func newAnalyticsFixture(t *testing.T, now time.Time) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tryondomain.TryonEvent{}, &productdomain.Product{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Clock:       clock.NewFakeClock(now),
		TryonRepo:   tryonrepo.Provide(),
		ProductRepo: productrepo.Provide(),
	}).(*Service)
	return svc, db, node
}

func seedTryon(t *testing.T, db *gorm.DB, node *snowflake.Node, shopID snowflake.ID, productID string, status string, converted bool, at time.Time) {
	t.Helper()
	event := &tryondomain.TryonEvent{
		ID:        node.Generate(),
		ShopID:    shopID,
		Status:    status,
		Converted: converted,
		CreatedAt: at,
	}
	if productID != "" {
		event.ProductID = &productID
	}
	require.NoError(t, tryonrepo.Provide().Insert(context.Background(), db, event))
}

func TestOverview_ComparesAdjacentWindows(t *testing.T) {
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	svc, db, node := newAnalyticsFixture(t, now)
	shopID := node.Generate()

	// Current window: 3 tryons, 1 converted. Previous window: 2 tryons, none.
	seedTryon(t, db, node, shopID, "sku-1", tryondomain.StatusSucceeded, true, now.AddDate(0, 0, -1))
	seedTryon(t, db, node, shopID, "sku-1", tryondomain.StatusSucceeded, false, now.AddDate(0, 0, -2))
	seedTryon(t, db, node, shopID, "sku-2", tryondomain.StatusFailed, false, now.AddDate(0, 0, -3))
	seedTryon(t, db, node, shopID, "sku-1", tryondomain.StatusSucceeded, false, now.AddDate(0, 0, -8))
	seedTryon(t, db, node, shopID, "sku-1", tryondomain.StatusFailed, false, now.AddDate(0, 0, -10))
	// Another shop's activity must not bleed in.
	seedTryon(t, db, node, node.Generate(), "sku-9", tryondomain.StatusSucceeded, true, now.AddDate(0, 0, -1))

	ov, err := svc.Overview(context.Background(), shopID, 7)
	require.NoError(t, err)

	assert.Equal(t, 3, ov.TryonsThisPeriod)
	assert.Equal(t, 2, ov.TryonsLastPeriod)
	require.NotNil(t, ov.TryonsChange)
	assert.InDelta(t, 50.0, *ov.TryonsChange, 0.0001)
	assert.Equal(t, 1, ov.ConversionsThisPeriod)
	assert.Equal(t, 7, ov.PeriodDays)
	require.NotEmpty(t, ov.TopProducts)
	assert.Equal(t, "sku-1", ov.TopProducts[0].ProductID)
}

func TestOverview_EnrichesProductTitles(t *testing.T) {
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	svc, db, node := newAnalyticsFixture(t, now)
	shopID := node.Generate()

	seedTryon(t, db, node, shopID, "sku-1", tryondomain.StatusSucceeded, false, now.AddDate(0, 0, -1))
	require.NoError(t, productrepo.Provide().Upsert(context.Background(), db, &productdomain.Product{
		ID:         node.Generate(),
		ShopID:     shopID,
		ExternalID: "sku-1",
		Title:      "Linen Shirt",
	}))

	ov, err := svc.Overview(context.Background(), shopID, 7)
	require.NoError(t, err)

	require.Len(t, ov.TopProducts, 1)
	assert.Equal(t, "Linen Shirt", ov.TopProducts[0].Name)
}

func TestTimeseries_ZeroFillsEmptyDays(t *testing.T) {
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	svc, db, node := newAnalyticsFixture(t, now)
	shopID := node.Generate()

	seedTryon(t, db, node, shopID, "sku-1", tryondomain.StatusSucceeded, true, now.AddDate(0, 0, -2))
	seedTryon(t, db, node, shopID, "sku-1", tryondomain.StatusSucceeded, false, now.AddDate(0, 0, -2))

	ts, err := svc.Timeseries(context.Background(), shopID, 7)
	require.NoError(t, err)

	require.Len(t, ts.Series, 7)
	assert.Equal(t, 2, ts.Total)
	nonEmpty := 0
	for _, b := range ts.Series {
		if b.Tryons > 0 {
			nonEmpty++
			assert.Equal(t, 2, b.Tryons)
			assert.Equal(t, 1, b.Conversions)
		}
	}
	assert.Equal(t, 1, nonEmpty)
}
