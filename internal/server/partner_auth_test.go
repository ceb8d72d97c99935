package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/fitmirror/fitmirror/internal/config"
	"github.com/fitmirror/fitmirror/internal/partner"
	shopdomain "github.com/fitmirror/fitmirror/internal/shop/domain"
)

type fakePartnerClient struct {
	exchangeCalls int
	lastCode      string
}

func (f *fakePartnerClient) AuthorizeURL(shopDomain, redirectURI, state string) (string, error) {
	return "https://" + shopDomain + "/admin/oauth/authorize?state=" + state, nil
}

func (f *fakePartnerClient) ExchangeCode(ctx context.Context, shopDomain, code string) (string, error) {
	f.exchangeCalls++
	f.lastCode = code
	_ = ctx
	_ = shopDomain
	return "tok_offline", nil
}

func (f *fakePartnerClient) FetchShop(ctx context.Context, shopDomain, accessToken string) (*partner.Shop, error) {
	_ = ctx
	_ = shopDomain
	_ = accessToken
	return &partner.Shop{Name: "Demo", Email: "owner@example.com"}, nil
}

type fakeShopService struct {
	installCalls int
	lastReq      shopdomain.InstallRequest
}

func (f *fakeShopService) Install(ctx context.Context, req shopdomain.InstallRequest) (*shopdomain.Shop, error) {
	f.installCalls++
	f.lastReq = req
	_ = ctx
	return &shopdomain.Shop{ID: snowflake.ID(42), Domain: req.Domain}, nil
}

func (f *fakeShopService) Get(ctx context.Context, id snowflake.ID) (*shopdomain.Shop, error) {
	_ = ctx
	_ = id
	return nil, shopdomain.ErrNotFound
}

func (f *fakeShopService) GetByDomain(ctx context.Context, domain string) (*shopdomain.Shop, error) {
	_ = ctx
	_ = domain
	return nil, shopdomain.ErrNotFound
}

func (f *fakeShopService) RecordUsage(ctx context.Context, id snowflake.ID) error {
	_ = ctx
	_ = id
	return nil
}

func newInstallRouter(pc partner.Client, ss shopdomain.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	srv := &Server{
		cfg: config.Config{
			Environment: "test",
			Partner: config.PartnerConfig{
				APIKey:    "key",
				APISecret: "secret",
				AppURL:    "https://app.fitmirror.io",
			},
		},
		partnerClient: pc,
		shopSvc:       ss,
	}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.GET("/api/auth/shopfront/install", srv.HandleInstall)
	router.GET("/api/auth/shopfront/callback", srv.HandleInstallCallback)
	return router
}

func TestInstallRedirectsAndSetsStateCookie(t *testing.T) {
	router := newInstallRouter(&fakePartnerClient{}, &fakeShopService{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/shopfront/install?shop=demo.myshopfront.com", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", resp.Code)
	}
	location := resp.Header().Get("Location")
	if !strings.Contains(location, "demo.myshopfront.com/admin/oauth/authorize") {
		t.Fatalf("unexpected redirect target %q", location)
	}

	var state string
	for _, cookie := range resp.Result().Cookies() {
		if cookie.Name == installStateCookie {
			state = cookie.Value
		}
	}
	if state == "" {
		t.Fatal("expected state cookie to be set")
	}
	if !strings.Contains(location, state) {
		t.Fatal("expected redirect to carry the state nonce")
	}
}

func TestInstallRejectsForeignDomain(t *testing.T) {
	router := newInstallRouter(&fakePartnerClient{}, &fakeShopService{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/shopfront/install?shop=evil.com", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func signedCallbackQuery(secret, state string) url.Values {
	query := url.Values{}
	query.Set("shop", "demo.myshopfront.com")
	query.Set("code", "auth_code_1")
	query.Set("state", state)
	query.Set("timestamp", "1700000000")
	query.Set("hmac", partner.ComputeHMAC(query, secret))
	return query
}

func TestInstallCallbackHappyPath(t *testing.T) {
	pc := &fakePartnerClient{}
	ss := &fakeShopService{}
	router := newInstallRouter(pc, ss)

	query := signedCallbackQuery("secret", "state123")
	req := httptest.NewRequest(http.MethodGet, "/api/auth/shopfront/callback?"+query.Encode(), nil)
	req.AddCookie(&http.Cookie{Name: installStateCookie, Value: "state123"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d: %s", resp.Code, resp.Body.String())
	}
	if pc.exchangeCalls != 1 || pc.lastCode != "auth_code_1" {
		t.Fatalf("expected one code exchange with auth_code_1, got %d calls (%q)", pc.exchangeCalls, pc.lastCode)
	}
	if ss.installCalls != 1 {
		t.Fatalf("expected one install, got %d", ss.installCalls)
	}
	if ss.lastReq.AccessToken != "tok_offline" {
		t.Fatalf("expected offline token, got %q", ss.lastReq.AccessToken)
	}
	if ss.lastReq.Email != "owner@example.com" {
		t.Fatalf("expected profile email, got %q", ss.lastReq.Email)
	}

	location := resp.Header().Get("Location")
	if !strings.Contains(location, "shop_id=42") {
		t.Fatalf("expected dashboard redirect with shop_id, got %q", location)
	}
}

func TestInstallCallbackRejectsBadHMAC(t *testing.T) {
	ss := &fakeShopService{}
	router := newInstallRouter(&fakePartnerClient{}, ss)

	query := signedCallbackQuery("wrong-secret", "state123")
	req := httptest.NewRequest(http.MethodGet, "/api/auth/shopfront/callback?"+query.Encode(), nil)
	req.AddCookie(&http.Cookie{Name: installStateCookie, Value: "state123"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if ss.installCalls != 0 {
		t.Fatal("expected no install on forged callback")
	}
}

func TestInstallCallbackRejectsStateMismatch(t *testing.T) {
	ss := &fakeShopService{}
	router := newInstallRouter(&fakePartnerClient{}, ss)

	query := signedCallbackQuery("secret", "state123")
	req := httptest.NewRequest(http.MethodGet, "/api/auth/shopfront/callback?"+query.Encode(), nil)
	req.AddCookie(&http.Cookie{Name: installStateCookie, Value: "other-state"})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if ss.installCalls != 0 {
		t.Fatal("expected no install on state mismatch")
	}
}
