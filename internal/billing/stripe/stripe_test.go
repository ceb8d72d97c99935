package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billingdomain "github.com/fitmirror/fitmirror/internal/billing/domain"
)

func signPayload(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%s.%s", ts, payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature_Valid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	header := signPayload(t, payload, "whsec_test", now)

	require.NoError(t, VerifySignature(payload, header, "whsec_test", now))
}

func TestVerifySignature_MultipleV1Entries(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	// Stripe sends old and new signatures during secret rotation.
	ts := fmt.Sprintf("%d", now.Unix())
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte(fmt.Sprintf("%s.%s", ts, payload)))
	header := fmt.Sprintf("t=%s,v1=deadbeef,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	require.NoError(t, VerifySignature(payload, header, "whsec_test", now))
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	header := signPayload(t, payload, "whsec_other", now)

	assert.ErrorIs(t, VerifySignature(payload, header, "whsec_test", now), billingdomain.ErrInvalidSignature)
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	header := signPayload(t, []byte(`{"id":"evt_1"}`), "whsec_test", now)

	assert.ErrorIs(t, VerifySignature([]byte(`{"id":"evt_2"}`), header, "whsec_test", now), billingdomain.ErrInvalidSignature)
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	stale := signPayload(t, payload, "whsec_test", now.Add(-SignatureTolerance-time.Second))
	future := signPayload(t, payload, "whsec_test", now.Add(SignatureTolerance+time.Second))

	assert.ErrorIs(t, VerifySignature(payload, stale, "whsec_test", now), billingdomain.ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature(payload, future, "whsec_test", now), billingdomain.ErrInvalidSignature)
}

func TestVerifySignature_EmptySecretRejects(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	header := signPayload(t, payload, "", now)

	assert.ErrorIs(t, VerifySignature(payload, header, "", now), billingdomain.ErrNotConfigured)
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	for _, header := range []string{"", "garbage", "t=,v1=", "v1=abc", "t=123"} {
		err := VerifySignature(payload, header, "whsec_test", now)
		assert.ErrorIs(t, err, billingdomain.ErrInvalidSignature, "header %q", header)
	}
}

func TestParseEvent_CheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1748779200,
		"data": {"object": {
			"customer": "cus_1",
			"subscription": "sub_1",
			"metadata": {"shop_id": "12345", "plan_key": "growth"}
		}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, billingdomain.EventCheckoutCompleted, event.Type)
	require.NotNil(t, event.Checkout)
	assert.Equal(t, "cus_1", event.Checkout.CustomerID)
	assert.Equal(t, "sub_1", event.Checkout.SubscriptionID)
	assert.Equal(t, "12345", event.Checkout.ShopID)
	assert.Equal(t, "growth", event.Checkout.PlanKey)
}

func TestParseEvent_SubscriptionUpdated(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"customer": "cus_1",
			"items": {"data": [{"price": {"id": "price_growth"}}]}
		}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	require.NotNil(t, event.Subscription)
	assert.Equal(t, "sub_1", event.Subscription.ID)
	assert.Equal(t, "cus_1", event.Subscription.CustomerID)
	assert.Equal(t, "price_growth", event.Subscription.PriceID)
}

func TestParseEvent_InvoiceFailed(t *testing.T) {
	payload := []byte(`{
		"id": "evt_3",
		"type": "invoice.payment_failed",
		"data": {"object": {
			"customer": "cus_1",
			"customer_email": "owner@example.com",
			"amount_due": 2900
		}}
	}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	require.NotNil(t, event.Invoice)
	assert.Equal(t, "owner@example.com", event.Invoice.CustomerEmail)
	assert.Equal(t, int64(2900), event.Invoice.AmountDue)
}

func TestParseEvent_UnknownTypeKeepsEnvelope(t *testing.T) {
	payload := []byte(`{"id": "evt_4", "type": "charge.refunded", "data": {"object": {}}}`)

	event, err := ParseEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "evt_4", event.ID)
	assert.Equal(t, "charge.refunded", event.Type)
	assert.Nil(t, event.Checkout)
	assert.Nil(t, event.Subscription)
	assert.Nil(t, event.Invoice)
}

func TestParseEvent_BadPayloads(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	assert.ErrorIs(t, err, billingdomain.ErrInvalidPayload)

	_, err = ParseEvent([]byte(`{"type": "checkout.session.completed"}`))
	assert.ErrorIs(t, err, billingdomain.ErrInvalidEvent)
}

func TestParseEvent_MalformedObjectKeepsEnvelope(t *testing.T) {
	payload := []byte(`{"id": "evt_5", "type": "checkout.session.completed", "data": {"object": []}}`)

	event, err := ParseEvent(payload)
	assert.ErrorIs(t, err, billingdomain.ErrInvalidPayload)
	require.NotNil(t, event)
	assert.Equal(t, "evt_5", event.ID)
	assert.Equal(t, "checkout.session.completed", event.Type)
	assert.Nil(t, event.Checkout)
}
