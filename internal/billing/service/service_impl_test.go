package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/fitmirror/fitmirror/internal/billing/domain"
	billingrepo "github.com/fitmirror/fitmirror/internal/billing/repository"
	"github.com/fitmirror/fitmirror/internal/clock"
	"github.com/fitmirror/fitmirror/internal/config"
	shopdomain "github.com/fitmirror/fitmirror/internal/shop/domain"
	shoprepo "github.com/fitmirror/fitmirror/internal/shop/repository"
)

const testWebhookSecret = "whsec_test"

type billingFixture struct {
	svc   billingdomain.Service
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&shopdomain.Shop{}, &billingdomain.EventRecord{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	catalog := config.PlanCatalog{Plans: []config.Plan{
		{Key: config.PlanTrial, MonthlyTryonLimit: 50},
		{Key: config.PlanGrowth, MonthlyTryonLimit: 2500, StripePriceID: "price_growth"},
		{Key: config.PlanScale, MonthlyTryonLimit: 10000, StripePriceID: "price_scale"},
	}}

	svc, err := New(Params{
		Cfg: config.Config{
			Environment: "test",
			Stripe:      config.StripeConfig{WebhookSecret: testWebhookSecret},
		},
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		Repo:     billingrepo.Provide(),
		ShopRepo: shoprepo.Provide(),
		Plans:    config.NewStaticPlanCatalogHolder(catalog),
	})
	require.NoError(t, err)

	return &billingFixture{svc: svc, db: db, node: node, clock: fakeClock}
}

func (f *billingFixture) seedShop(t *testing.T, customerID string) *shopdomain.Shop {
	t.Helper()
	shop := &shopdomain.Shop{
		ID:                f.node.Generate(),
		Domain:            "demo.myshopfront.com",
		Name:              "Demo",
		Email:             "owner@example.com",
		Plan:              config.PlanTrial,
		MonthlyTryonLimit: 50,
		TryonsThisMonth:   12,
		PartnerToken:      "tok",
		IsActive:          true,
		InstalledAt:       f.clock.Now(),
		LastUsageResetAt:  f.clock.Now(),
	}
	if customerID != "" {
		shop.StripeCustomerID = &customerID
	}
	require.NoError(t, f.db.Create(shop).Error)
	return shop
}

func (f *billingFixture) deliver(t *testing.T, payload string) error {
	t.Helper()
	ts := fmt.Sprintf("%d", f.clock.Now().Unix())
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(fmt.Sprintf("%s.%s", ts, payload)))

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return f.svc.IngestWebhook(context.Background(), []byte(payload), headers)
}

func (f *billingFixture) reloadShop(t *testing.T, id snowflake.ID) *shopdomain.Shop {
	t.Helper()
	shop, err := shoprepo.Provide().FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, shop)
	return shop
}

func checkoutPayload(eventID string, shopID snowflake.ID, planKey string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"created": 1748779200,
		"data": {"object": {
			"customer": "cus_1",
			"subscription": "sub_1",
			"metadata": {"shop_id": %q, "plan_key": %q}
		}}
	}`, eventID, shopID.String(), planKey)
}

func TestIngestWebhook_CheckoutCompletedActivatesPlan(t *testing.T) {
	f := newBillingFixture(t)
	shop := f.seedShop(t, "")

	require.NoError(t, f.deliver(t, checkoutPayload("evt_1", shop.ID, "growth")))

	updated := f.reloadShop(t, shop.ID)
	assert.Equal(t, config.PlanGrowth, updated.Plan)
	assert.Equal(t, 2500, updated.MonthlyTryonLimit)
	assert.Equal(t, 0, updated.TryonsThisMonth)
	require.NotNil(t, updated.StripeCustomerID)
	assert.Equal(t, "cus_1", *updated.StripeCustomerID)
	require.NotNil(t, updated.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *updated.StripeSubscriptionID)

	var record billingdomain.EventRecord
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_1").First(&record).Error)
	assert.NotNil(t, record.ProcessedAt)
	require.NotNil(t, record.ShopID)
	assert.Equal(t, shop.ID, *record.ShopID)
}

func TestIngestWebhook_RedeliveryIsIdempotent(t *testing.T) {
	f := newBillingFixture(t)
	shop := f.seedShop(t, "")

	require.NoError(t, f.deliver(t, checkoutPayload("evt_1", shop.ID, "growth")))

	// Spend some quota, then redeliver the same event. The duplicate must
	// not re-apply and wipe the counter again.
	require.NoError(t, f.db.Exec(`UPDATE shops SET tryons_this_month = 7 WHERE id = ?`, shop.ID).Error)

	err := f.deliver(t, checkoutPayload("evt_1", shop.ID, "growth"))
	assert.ErrorIs(t, err, billingdomain.ErrEventAlreadyProcessed)

	updated := f.reloadShop(t, shop.ID)
	assert.Equal(t, 7, updated.TryonsThisMonth)

	var count int64
	require.NoError(t, f.db.Model(&billingdomain.EventRecord{}).Where("provider_event_id = ?", "evt_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIngestWebhook_RedeliveryFinishesHalfAppliedEvent(t *testing.T) {
	f := newBillingFixture(t)
	shop := f.seedShop(t, "")

	// Simulate a delivery that was recorded but died before applying.
	require.NoError(t, f.db.Create(&billingdomain.EventRecord{
		ID:              f.node.Generate(),
		ProviderEventID: "evt_1",
		EventType:       billingdomain.EventCheckoutCompleted,
		Payload:         []byte(`{}`),
		ReceivedAt:      f.clock.Now(),
	}).Error)

	require.NoError(t, f.deliver(t, checkoutPayload("evt_1", shop.ID, "growth")))

	updated := f.reloadShop(t, shop.ID)
	assert.Equal(t, config.PlanGrowth, updated.Plan)

	var record billingdomain.EventRecord
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_1").First(&record).Error)
	assert.NotNil(t, record.ProcessedAt)
}

func TestIngestWebhook_SubscriptionUpdatedSwitchesPlan(t *testing.T) {
	f := newBillingFixture(t)
	shop := f.seedShop(t, "cus_1")

	payload := `{
		"id": "evt_2",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_2",
			"customer": "cus_1",
			"items": {"data": [{"price": {"id": "price_scale"}}]}
		}}
	}`
	require.NoError(t, f.deliver(t, payload))

	updated := f.reloadShop(t, shop.ID)
	assert.Equal(t, config.PlanScale, updated.Plan)
	assert.Equal(t, 10000, updated.MonthlyTryonLimit)
	require.NotNil(t, updated.StripeSubscriptionID)
	assert.Equal(t, "sub_2", *updated.StripeSubscriptionID)
}

func TestIngestWebhook_SubscriptionDeletedDowngradesToTrial(t *testing.T) {
	f := newBillingFixture(t)
	shop := f.seedShop(t, "cus_1")
	require.NoError(t, f.db.Exec(
		`UPDATE shops SET plan = ?, monthly_tryon_limit = 2500, stripe_subscription_id = 'sub_1' WHERE id = ?`,
		config.PlanGrowth, shop.ID,
	).Error)

	payload := `{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_1", "customer": "cus_1"}}
	}`
	require.NoError(t, f.deliver(t, payload))

	updated := f.reloadShop(t, shop.ID)
	assert.Equal(t, config.PlanTrial, updated.Plan)
	assert.Equal(t, 50, updated.MonthlyTryonLimit)
	assert.Nil(t, updated.StripeSubscriptionID)
}

func TestIngestWebhook_InvoiceFailedLeavesShopUntouched(t *testing.T) {
	f := newBillingFixture(t)
	shop := f.seedShop(t, "cus_1")
	before := f.reloadShop(t, shop.ID)

	payload := `{
		"id": "evt_4",
		"type": "invoice.payment_failed",
		"data": {"object": {"customer": "cus_1", "customer_email": "o@example.com", "amount_due": 2900}}
	}`
	require.NoError(t, f.deliver(t, payload))

	after := f.reloadShop(t, shop.ID)
	assert.Equal(t, before.Plan, after.Plan)
	assert.Equal(t, before.MonthlyTryonLimit, after.MonthlyTryonLimit)
	assert.Equal(t, before.TryonsThisMonth, after.TryonsThisMonth)
}

func TestIngestWebhook_UnknownEventTypeIsRecordedAndAcked(t *testing.T) {
	f := newBillingFixture(t)

	payload := `{"id": "evt_5", "type": "charge.refunded", "data": {"object": {}}}`
	require.NoError(t, f.deliver(t, payload))

	var record billingdomain.EventRecord
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_5").First(&record).Error)
	assert.Equal(t, "charge.refunded", record.EventType)
	assert.NotNil(t, record.ProcessedAt)
}

func TestIngestWebhook_UnknownPlanIsAckedNotRetried(t *testing.T) {
	f := newBillingFixture(t)
	shop := f.seedShop(t, "")

	// A plan key we do not sell can never apply; the provider must still
	// get an ack or it will redeliver forever.
	require.NoError(t, f.deliver(t, checkoutPayload("evt_6", shop.ID, "platinum")))

	var record billingdomain.EventRecord
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_6").First(&record).Error)
	assert.NotNil(t, record.ProcessedAt)

	updated := f.reloadShop(t, shop.ID)
	assert.Equal(t, config.PlanTrial, updated.Plan)
}

func TestIngestWebhook_UnknownShopIsAcked(t *testing.T) {
	f := newBillingFixture(t)

	require.NoError(t, f.deliver(t, checkoutPayload("evt_7", snowflake.ID(999999), "growth")))

	var record billingdomain.EventRecord
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_7").First(&record).Error)
	assert.NotNil(t, record.ProcessedAt)
}

func TestIngestWebhook_MalformedObjectIsRecordedAndAcked(t *testing.T) {
	f := newBillingFixture(t)
	shop := f.seedShop(t, "")

	// The envelope decodes but the object never will. Retrying carries the
	// same bytes, so the delivery is recorded as processed and acked.
	payload := `{"id": "evt_bad", "type": "checkout.session.completed", "data": {"object": []}}`
	require.NoError(t, f.deliver(t, payload))

	var record billingdomain.EventRecord
	require.NoError(t, f.db.Where("provider_event_id = ?", "evt_bad").First(&record).Error)
	assert.NotNil(t, record.ProcessedAt)
	assert.Nil(t, record.ShopID)

	updated := f.reloadShop(t, shop.ID)
	assert.Equal(t, config.PlanTrial, updated.Plan)
	assert.Equal(t, 12, updated.TryonsThisMonth)

	err := f.deliver(t, payload)
	assert.ErrorIs(t, err, billingdomain.ErrEventAlreadyProcessed)
}

func TestIngestWebhook_UndecodableBodyIsAckedWithoutRecord(t *testing.T) {
	f := newBillingFixture(t)

	require.NoError(t, f.deliver(t, `not json at all`))
	require.NoError(t, f.deliver(t, `{"type": "checkout.session.completed"}`))

	var count int64
	require.NoError(t, f.db.Model(&billingdomain.EventRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngestWebhook_BadSignatureRejected(t *testing.T) {
	f := newBillingFixture(t)

	headers := http.Header{}
	headers.Set("Stripe-Signature", "t=1,v1=deadbeef")
	err := f.svc.IngestWebhook(context.Background(), []byte(`{"id":"evt_8"}`), headers)
	assert.ErrorIs(t, err, billingdomain.ErrInvalidSignature)

	var count int64
	require.NoError(t, f.db.Model(&billingdomain.EventRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}
