package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	apikeydomain "github.com/fitmirror/fitmirror/internal/apikey/domain"
)

type fakeAPIKeyService struct {
	lastShopID snowflake.ID
	lastName   string
	calls      int
}

func (f *fakeAPIKeyService) List(ctx context.Context, shopID snowflake.ID) ([]apikeydomain.Response, error) {
	_ = ctx
	f.calls++
	f.lastShopID = shopID
	return []apikeydomain.Response{}, nil
}

func (f *fakeAPIKeyService) Create(ctx context.Context, shopID snowflake.ID, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	_ = ctx
	f.calls++
	f.lastShopID = shopID
	f.lastName = req.Name
	return &apikeydomain.SecretResponse{
		ID:        "key_ABC123",
		Key:       "fm_live_ABC123_deadbeef",
		KeyPrefix: "fm_live_ABC1",
	}, nil
}

func (f *fakeAPIKeyService) Rotate(ctx context.Context, shopID snowflake.ID, keyID string) (*apikeydomain.SecretResponse, error) {
	_ = ctx
	_ = keyID
	f.calls++
	f.lastShopID = shopID
	return &apikeydomain.SecretResponse{ID: "key_DEF456", Key: "fm_live_DEF456_cafef00d", KeyPrefix: "fm_live_DEF4"}, nil
}

func (f *fakeAPIKeyService) Revoke(ctx context.Context, shopID snowflake.ID, keyID string) error {
	_ = ctx
	_ = keyID
	f.calls++
	f.lastShopID = shopID
	return nil
}

func (f *fakeAPIKeyService) Authenticate(ctx context.Context, rawKey string) (*apikeydomain.Identity, error) {
	_ = ctx
	_ = rawKey
	return nil, apikeydomain.ErrInvalidKey
}

func newAPIKeyRouter(svc *fakeAPIKeyService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	srv := &Server{apiKeySvc: svc}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/api/keys", srv.HandleCreateAPIKey)
	return router
}

func TestCreateAPIKeyReadsShopIDFromBody(t *testing.T) {
	svc := &fakeAPIKeyService{}
	router := newAPIKeyRouter(svc)

	body := `{"shop_id": "987654321", "name": "storefront widget"}`
	req := httptest.NewRequest(http.MethodPost, "/api/keys", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	if svc.lastShopID != snowflake.ID(987654321) {
		t.Fatalf("expected shop id 987654321, got %d", svc.lastShopID)
	}
	if svc.lastName != "storefront widget" {
		t.Fatalf("expected key name to pass through, got %q", svc.lastName)
	}

	var payload map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload["id"] != "key_ABC123" {
		t.Fatalf("expected id field, got %v", payload)
	}
	if payload["key"] != "fm_live_ABC123_deadbeef" {
		t.Fatalf("expected key field, got %v", payload)
	}
	if payload["key_prefix"] != "fm_live_ABC1" {
		t.Fatalf("expected key_prefix field, got %v", payload)
	}
}

func TestCreateAPIKeyMissingShopIDReturns400(t *testing.T) {
	svc := &fakeAPIKeyService{}
	router := newAPIKeyRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/keys", strings.NewReader(`{"name": "widget"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("expected api key service not to be called")
	}

	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Type != "validation_error" {
		t.Fatalf("expected validation_error, got %q", body.Error.Type)
	}
}

func TestCreateAPIKeyInvalidShopIDReturns400(t *testing.T) {
	svc := &fakeAPIKeyService{}
	router := newAPIKeyRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/keys", strings.NewReader(`{"shop_id": "garbage", "name": "widget"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("expected api key service not to be called")
	}
}
