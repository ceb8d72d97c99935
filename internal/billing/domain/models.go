package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Webhook event types this platform acts on. Anything else is recorded and
// acknowledged without side effects.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// EventRecord stores every authenticated webhook delivery. The unique
// provider event id makes redelivery a no-op.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	ProviderEventID string         `gorm:"column:provider_event_id;type:text;not null;uniqueIndex:ux_billing_events_provider_event"`
	EventType       string         `gorm:"column:event_type;type:text;not null"`
	ShopID          *snowflake.ID  `gorm:"column:shop_id"`
	Payload         datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt      time.Time      `gorm:"column:received_at;not null"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "billing_events" }

// WebhookEvent is the parsed provider payload.
type WebhookEvent struct {
	ID      string
	Type    string
	Created time.Time

	Checkout     *CheckoutSession
	Subscription *Subscription
	Invoice      *Invoice
}

// CheckoutSession carries the fields used on checkout.session.completed.
type CheckoutSession struct {
	CustomerID     string
	SubscriptionID string
	ShopID         string
	PlanKey        string
}

// Subscription carries the fields used on subscription lifecycle events.
type Subscription struct {
	ID         string
	CustomerID string
	PriceID    string
}

// Invoice carries the fields used on invoice.payment_failed.
type Invoice struct {
	CustomerID    string
	CustomerEmail string
	AmountDue     int64
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, shopID *snowflake.ID, at time.Time) error
}

type Service interface {
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error
}

var (
	ErrNotConfigured         = errors.New("webhook_secret_not_configured")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrUnknownPlan           = errors.New("unknown_plan")
	ErrShopNotFound          = errors.New("billing_shop_not_found")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
