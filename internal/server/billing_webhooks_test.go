package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	billingdomain "github.com/fitmirror/fitmirror/internal/billing/domain"
)

type fakeBillingService struct {
	err   error
	calls int
}

func (f *fakeBillingService) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	f.calls++
	_ = ctx
	_ = payload
	_ = headers
	return f.err
}

func newWebhookRouter(svc *fakeBillingService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	srv := &Server{billingSvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/webhook/stripe", srv.HandleStripeWebhook)
	return router
}

func postWebhook(router *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/stripe", bytes.NewBufferString(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=sig")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestStripeWebhookAcksApplied(t *testing.T) {
	svc := &fakeBillingService{}
	resp := postWebhook(newWebhookRouter(svc))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("expected 1 ingest call, got %d", svc.calls)
	}
}

func TestStripeWebhookAcksDuplicates(t *testing.T) {
	svc := &fakeBillingService{err: billingdomain.ErrEventAlreadyProcessed}
	resp := postWebhook(newWebhookRouter(svc))

	// Redeliveries must never surface as errors or the provider retries forever.
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeBillingService{err: billingdomain.ErrInvalidSignature}
	resp := postWebhook(newWebhookRouter(svc))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestStripeWebhookMissingSecretRejects(t *testing.T) {
	svc := &fakeBillingService{err: billingdomain.ErrNotConfigured}
	resp := postWebhook(newWebhookRouter(svc))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestStripeWebhookInfraFailureIsRetryable(t *testing.T) {
	svc := &fakeBillingService{err: context.DeadlineExceeded}
	resp := postWebhook(newWebhookRouter(svc))

	if resp.Code < 500 {
		t.Fatalf("expected 5xx so the provider retries, got %d", resp.Code)
	}
}
