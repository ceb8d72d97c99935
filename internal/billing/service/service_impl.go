package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	billingdomain "github.com/fitmirror/fitmirror/internal/billing/domain"
	"github.com/fitmirror/fitmirror/internal/billing/stripe"
	"github.com/fitmirror/fitmirror/internal/clock"
	"github.com/fitmirror/fitmirror/internal/config"
	"github.com/fitmirror/fitmirror/internal/notify"
	obsmetrics "github.com/fitmirror/fitmirror/internal/observability/metrics"
	shopdomain "github.com/fitmirror/fitmirror/internal/shop/domain"
)

type Params struct {
	fx.In

	Cfg      config.Config
	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     billingdomain.Repository
	ShopRepo shopdomain.Repository
	Plans    *config.PlanCatalogHolder
	Notifier *notify.Dispatcher  `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	webhookSecret string
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          billingdomain.Repository
	shopRepo      shopdomain.Repository
	plans         *config.PlanCatalogHolder
	notifier      *notify.Dispatcher
	metrics       *obsmetrics.Metrics
}

// New builds the webhook reconciler. A production deployment without a
// webhook secret is a misconfiguration, not a reason to accept unsigned
// callbacks, so construction fails outright.
func New(p Params) (billingdomain.Service, error) {
	secret := strings.TrimSpace(p.Cfg.Stripe.WebhookSecret)
	if secret == "" {
		if p.Cfg.IsProduction() {
			return nil, billingdomain.ErrNotConfigured
		}
		p.Log.Warn("stripe webhook secret missing, all billing callbacks will be rejected")
	}

	return &Service{
		webhookSecret: secret,
		db:            p.DB,
		log:           p.Log.Named("billing.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		shopRepo:      p.ShopRepo,
		plans:         p.Plans,
		notifier:      p.Notifier,
		metrics:       p.Metrics,
	}, nil
}

// IngestWebhook verifies, records, and applies one provider callback. Each
// mutation writes the absolute state named by the event, so redeliveries and
// out-of-order retries converge on the same row instead of compounding.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	now := s.clock.Now()

	if err := stripe.VerifySignature(payload, headers.Get("Stripe-Signature"), s.webhookSecret, now); err != nil {
		s.metrics.RecordBillingEvent(ctx, "unknown", "rejected")
		return err
	}

	event, parseErr := stripe.ParseEvent(payload)
	if parseErr != nil && (event == nil || event.ID == "") {
		// Signed but undecodable, with no event id to dedupe on. A retry
		// would carry the same bytes, so log and ack without recording.
		s.log.Warn("undecodable billing payload", zap.Error(parseErr))
		s.metrics.RecordBillingEvent(ctx, "unknown", "malformed")
		return nil
	}

	record := &billingdomain.EventRecord{
		ID:              s.genID.Generate(),
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, event.ID)
		if err != nil {
			return err
		}
		if existing == nil || existing.ProcessedAt != nil {
			s.log.Info("duplicate billing event",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
			)
			s.metrics.RecordBillingEvent(ctx, event.Type, "duplicate")
			return billingdomain.ErrEventAlreadyProcessed
		}
		// Recorded but never applied: a previous delivery died mid-flight.
		// This redelivery finishes the job.
		record.ID = existing.ID
	}

	if parseErr != nil {
		// The envelope is sound but the object can never decode. Same
		// bytes on every retry, so mark it processed and ack.
		s.ackUnappliable(ctx, record.ID, event, parseErr, "malformed")
		return nil
	}

	shopID, err := s.apply(ctx, event)
	if err != nil {
		if isEventFault(err) {
			// The event itself can never apply: acting on it again on
			// redelivery would produce the same failure forever, so record
			// it as processed and ack.
			s.ackUnappliable(ctx, record.ID, event, err, "skipped")
			return nil
		}
		// Infrastructure failure: leave processed_at empty so the
		// provider's retry re-applies.
		s.metrics.RecordBillingEvent(ctx, event.Type, "failed")
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, shopID, s.clock.Now()); err != nil {
		s.log.Warn("mark billing event processed", zap.Error(err), zap.String("event_id", event.ID))
	}

	s.metrics.RecordBillingEvent(ctx, event.Type, "applied")
	return nil
}

func (s *Service) ackUnappliable(ctx context.Context, recordID snowflake.ID, event *billingdomain.WebhookEvent, cause error, outcome string) {
	s.log.Warn("billing event not applicable",
		zap.Error(cause),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)
	s.metrics.RecordBillingEvent(ctx, event.Type, outcome)
	if err := s.repo.MarkProcessed(ctx, s.db, recordID, nil, s.clock.Now()); err != nil {
		s.log.Warn("mark billing event processed", zap.Error(err), zap.String("event_id", event.ID))
	}
}

func isEventFault(err error) bool {
	return errors.Is(err, billingdomain.ErrInvalidEvent) ||
		errors.Is(err, billingdomain.ErrUnknownPlan) ||
		errors.Is(err, billingdomain.ErrShopNotFound)
}

func (s *Service) apply(ctx context.Context, event *billingdomain.WebhookEvent) (*snowflake.ID, error) {
	switch event.Type {
	case billingdomain.EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, event)
	case billingdomain.EventSubscriptionUpdated:
		return s.applySubscriptionUpdated(ctx, event)
	case billingdomain.EventSubscriptionDeleted:
		return s.applySubscriptionDeleted(ctx, event)
	case billingdomain.EventInvoiceFailed:
		return s.applyInvoiceFailed(ctx, event)
	default:
		// Recorded but not acted on. The provider still gets an ack so it
		// stops redelivering.
		s.log.Info("unhandled billing event type", zap.String("event_type", event.Type))
		return nil, nil
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, event *billingdomain.WebhookEvent) (*snowflake.ID, error) {
	session := event.Checkout
	if session == nil || session.ShopID == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	shopID, err := snowflake.ParseString(session.ShopID)
	if err != nil {
		return nil, billingdomain.ErrInvalidEvent
	}

	plan, ok := s.plans.Catalog().ByKey(session.PlanKey)
	if !ok {
		return nil, billingdomain.ErrUnknownPlan
	}

	shop, err := s.shopRepo.FindByID(ctx, s.db, shopID)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		return nil, billingdomain.ErrShopNotFound
	}

	shop.Plan = plan.Key
	shop.MonthlyTryonLimit = plan.MonthlyTryonLimit
	shop.TryonsThisMonth = 0
	if session.CustomerID != "" {
		shop.StripeCustomerID = &session.CustomerID
	}
	if session.SubscriptionID != "" {
		shop.StripeSubscriptionID = &session.SubscriptionID
	}
	shop.UpdatedAt = s.clock.Now()

	if err := s.shopRepo.UpdateBilling(ctx, s.db, shop); err != nil {
		return nil, err
	}

	s.log.Info("checkout completed",
		zap.Int64("shop_id", int64(shop.ID)),
		zap.String("plan", plan.Key),
	)
	return &shop.ID, nil
}

func (s *Service) applySubscriptionUpdated(ctx context.Context, event *billingdomain.WebhookEvent) (*snowflake.ID, error) {
	sub := event.Subscription
	if sub == nil || sub.CustomerID == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	shop, err := s.shopRepo.FindByStripeCustomerID(ctx, s.db, sub.CustomerID)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		// Subscription for a customer we never linked. Likely a checkout
		// callback lost before this one; nothing to reconcile against yet.
		s.log.Warn("subscription update for unknown customer", zap.String("customer_id", sub.CustomerID))
		return nil, nil
	}

	plan, ok := s.plans.Catalog().ByStripePriceID(sub.PriceID)
	if !ok {
		return nil, billingdomain.ErrUnknownPlan
	}

	shop.Plan = plan.Key
	shop.MonthlyTryonLimit = plan.MonthlyTryonLimit
	if sub.ID != "" {
		shop.StripeSubscriptionID = &sub.ID
	}
	shop.UpdatedAt = s.clock.Now()

	if err := s.shopRepo.UpdateBilling(ctx, s.db, shop); err != nil {
		return nil, err
	}

	s.log.Info("subscription updated",
		zap.Int64("shop_id", int64(shop.ID)),
		zap.String("plan", plan.Key),
	)
	return &shop.ID, nil
}

func (s *Service) applySubscriptionDeleted(ctx context.Context, event *billingdomain.WebhookEvent) (*snowflake.ID, error) {
	sub := event.Subscription
	if sub == nil || sub.CustomerID == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	shop, err := s.shopRepo.FindByStripeCustomerID(ctx, s.db, sub.CustomerID)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		s.log.Warn("subscription delete for unknown customer", zap.String("customer_id", sub.CustomerID))
		return nil, nil
	}

	trial := s.plans.Catalog().Trial()
	shop.Plan = trial.Key
	shop.MonthlyTryonLimit = trial.MonthlyTryonLimit
	shop.StripeSubscriptionID = nil
	shop.UpdatedAt = s.clock.Now()

	if err := s.shopRepo.UpdateBilling(ctx, s.db, shop); err != nil {
		return nil, err
	}

	s.log.Info("subscription deleted, shop downgraded",
		zap.Int64("shop_id", int64(shop.ID)),
	)
	return &shop.ID, nil
}

// applyInvoiceFailed never touches the shop row. Dunning is the provider's
// job; ours is to tell the merchant.
func (s *Service) applyInvoiceFailed(ctx context.Context, event *billingdomain.WebhookEvent) (*snowflake.ID, error) {
	inv := event.Invoice
	if inv == nil || inv.CustomerID == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	shop, err := s.shopRepo.FindByStripeCustomerID(ctx, s.db, inv.CustomerID)
	if err != nil {
		return nil, err
	}
	if shop == nil {
		s.log.Warn("invoice failure for unknown customer", zap.String("customer_id", inv.CustomerID))
		return nil, nil
	}

	email := shop.Email
	if email == "" {
		email = inv.CustomerEmail
	}
	if s.notifier != nil && email != "" {
		s.notifier.Enqueue(notify.Task{
			Kind:    "payment_failed",
			To:      []string{email},
			Subject: "FitMirror payment failed",
			Body: fmt.Sprintf(
				"We could not collect payment of $%.2f for your FitMirror subscription on %s. Please update your payment method to keep the try-on widget active.",
				float64(inv.AmountDue)/100,
				shop.Domain,
			),
		})
	}

	s.log.Warn("invoice payment failed",
		zap.Int64("shop_id", int64(shop.ID)),
		zap.Int64("amount_due_cents", inv.AmountDue),
	)
	return &shop.ID, nil
}
