package scheduler

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
	shopdomain "github.com/fitmirror/fitmirror/internal/shop/domain"
	shoprepo "github.com/fitmirror/fitmirror/internal/shop/repository"
)

func newSchedulerFixture(t *testing.T, now time.Time) (*Scheduler, *gorm.DB, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&shopdomain.Shop{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(now)
	sched, err := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    fakeClock,
		ShopRepo: shoprepo.Provide(),
	})
	require.NoError(t, err)
	return sched, db, fakeClock, node
}

func seedShopWithUsage(t *testing.T, db *gorm.DB, node *snowflake.Node, domain string, used int, lastReset time.Time) snowflake.ID {
	t.Helper()
	id := node.Generate()
	require.NoError(t, db.Create(&shopdomain.Shop{
		ID:                id,
		Domain:            domain,
		Name:              "Shop",
		Email:             "owner@example.com",
		Plan:              "trial",
		MonthlyTryonLimit: 50,
		TryonsThisMonth:   used,
		PartnerToken:      "tok",
		IsActive:          true,
		InstalledAt:       lastReset,
		LastUsageResetAt:  lastReset,
	}).Error)
	return id
}

func usage(t *testing.T, db *gorm.DB, id snowflake.ID) int {
	t.Helper()
	var shop shopdomain.Shop
	require.NoError(t, db.First(&shop, "id = ?", id).Error)
	return shop.TryonsThisMonth
}

func TestResetUsage_ZeroesStaleCounters(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 30, 0, 0, time.UTC)
	sched, db, _, node := newSchedulerFixture(t, now)

	// Last reset in June: due. Last reset already in July: not due.
	stale := seedShopWithUsage(t, db, node, "a.myshopfront.com", 40, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	fresh := seedShopWithUsage(t, db, node, "b.myshopfront.com", 7, time.Date(2025, 7, 1, 0, 10, 0, 0, time.UTC))

	require.NoError(t, sched.ResetUsage(context.Background()))

	assert.Equal(t, 0, usage(t, db, stale))
	assert.Equal(t, 7, usage(t, db, fresh))
}

func TestResetUsage_RerunIsNoOp(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 30, 0, 0, time.UTC)
	sched, db, fakeClock, node := newSchedulerFixture(t, now)

	id := seedShopWithUsage(t, db, node, "a.myshopfront.com", 40, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))

	require.NoError(t, sched.ResetUsage(context.Background()))
	assert.Equal(t, 0, usage(t, db, id))

	// Shop records new activity later the same month. A second tick must
	// not wipe it.
	require.NoError(t, db.Exec(`UPDATE shops SET tryons_this_month = 5 WHERE id = ?`, id).Error)
	fakeClock.Advance(time.Hour)

	require.NoError(t, sched.ResetUsage(context.Background()))
	assert.Equal(t, 5, usage(t, db, id))
}

func TestResetUsage_NextMonthResetsAgain(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 30, 0, 0, time.UTC)
	sched, db, fakeClock, node := newSchedulerFixture(t, now)

	id := seedShopWithUsage(t, db, node, "a.myshopfront.com", 40, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC))

	require.NoError(t, sched.ResetUsage(context.Background()))
	require.NoError(t, db.Exec(`UPDATE shops SET tryons_this_month = 12 WHERE id = ?`, id).Error)

	// Roll into August.
	fakeClock.Advance(32 * 24 * time.Hour)
	require.NoError(t, sched.ResetUsage(context.Background()))
	assert.Equal(t, 0, usage(t, db, id))
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
