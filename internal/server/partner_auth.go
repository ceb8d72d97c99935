package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fitmirror/fitmirror/internal/partner"
	shopdomain "github.com/fitmirror/fitmirror/internal/shop/domain"
)

const installStateCookie = "fm_install_state"

// HandleInstall starts the app install flow: validate the shop domain, mint
// a state nonce, and send the merchant to the platform's consent screen.
func (s *Server) HandleInstall(c *gin.Context) {
	shopDomain := strings.ToLower(strings.TrimSpace(c.Query("shop")))
	if !partner.ValidShopDomain(shopDomain) {
		AbortWithError(c, partner.ErrInvalidDomain)
		return
	}

	state, err := partner.NewStateToken()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	authorizeURL, err := s.partnerClient.AuthorizeURL(shopDomain, s.callbackURL(), state)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordInstallFlow(c.Request.Context(), "redirect")
	c.SetCookie(installStateCookie, state, 300, "/", "", s.cfg.IsProduction(), true)
	c.Redirect(http.StatusFound, authorizeURL)
}

// HandleInstallCallback completes the install: verify the platform's HMAC
// over the callback query, check the state nonce, exchange the code for an
// offline token, and upsert the tenant.
func (s *Server) HandleInstallCallback(c *gin.Context) {
	query := c.Request.URL.Query()

	if err := partner.VerifyHMAC(query, s.cfg.Partner.APISecret); err != nil {
		s.obsMetrics.RecordInstallFlow(c.Request.Context(), "hmac_rejected")
		AbortWithError(c, err)
		return
	}

	state := strings.TrimSpace(query.Get("state"))
	cookieState, cookieErr := c.Cookie(installStateCookie)
	if state == "" || cookieErr != nil || state != cookieState {
		s.obsMetrics.RecordInstallFlow(c.Request.Context(), "state_rejected")
		AbortWithError(c, ErrUnauthorized)
		return
	}

	shopDomain := strings.ToLower(strings.TrimSpace(query.Get("shop")))
	if !partner.ValidShopDomain(shopDomain) {
		AbortWithError(c, partner.ErrInvalidDomain)
		return
	}

	token, err := s.partnerClient.ExchangeCode(c.Request.Context(), shopDomain, query.Get("code"))
	if err != nil {
		s.obsMetrics.RecordInstallFlow(c.Request.Context(), "exchange_failed")
		AbortWithError(c, err)
		return
	}

	req := shopdomain.InstallRequest{
		Domain:      shopDomain,
		AccessToken: token,
	}
	if profile, err := s.partnerClient.FetchShop(c.Request.Context(), shopDomain, token); err == nil && profile != nil {
		req.Name = profile.Name
		req.Email = profile.Email
	}

	shop, err := s.shopSvc.Install(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.obsMetrics.RecordInstallFlow(c.Request.Context(), "installed")
	c.SetCookie(installStateCookie, "", -1, "/", "", s.cfg.IsProduction(), true)
	c.Redirect(http.StatusFound, fmt.Sprintf("%s?shop_id=%s", s.dashboardURL(), shop.ID.String()))
}

func (s *Server) callbackURL() string {
	base := strings.TrimRight(s.cfg.Partner.AppURL, "/")
	return base + "/api/auth/shopfront/callback"
}

func (s *Server) dashboardURL() string {
	if s.cfg.DashboardURL != "" {
		return s.cfg.DashboardURL
	}
	return strings.TrimRight(s.cfg.Partner.AppURL, "/") + "/dashboard"
}
