package partner

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fitmirror/fitmirror/internal/config"
	obstracing "github.com/fitmirror/fitmirror/internal/observability/tracing"
)

const stateTokenSize = 24

var (
	ErrNotConfigured    = errors.New("partner_app_not_configured")
	ErrInvalidSignature = errors.New("invalid_partner_signature")
	ErrInvalidDomain    = errors.New("invalid_partner_domain")
	ErrExchangeFailed   = errors.New("partner_token_exchange_failed")
)

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopfront\.com$`)

// ValidShopDomain reports whether a shop parameter looks like a storefront
// domain issued by the partner platform. Everything else is rejected before
// it can reach a redirect or an outbound call.
func ValidShopDomain(domain string) bool {
	return shopDomainPattern.MatchString(strings.ToLower(strings.TrimSpace(domain)))
}

// Shop is the storefront profile returned by the partner API after install.
type Shop struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Client interface {
	AuthorizeURL(shopDomain, redirectURI, state string) (string, error)
	ExchangeCode(ctx context.Context, shopDomain, code string) (string, error)
	FetchShop(ctx context.Context, shopDomain, accessToken string) (*Shop, error)
}

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

type client struct {
	cfg        config.PartnerConfig
	log        *zap.Logger
	httpClient *http.Client
}

// NewClient builds the partner API client. Production refuses to start
// without app credentials; anything less is indistinguishable from a forged
// install flow.
func NewClient(p Params) (Client, error) {
	if strings.TrimSpace(p.Cfg.Partner.APISecret) == "" || strings.TrimSpace(p.Cfg.Partner.APIKey) == "" {
		if p.Cfg.IsProduction() {
			return nil, ErrNotConfigured
		}
		p.Log.Warn("partner app credentials missing, install flow will reject all callbacks")
	}

	return &client{
		cfg:        p.Cfg.Partner,
		log:        p.Log.Named("partner.client"),
		httpClient: obstracing.WrapHTTPClient(http.DefaultClient),
	}, nil
}

// NewStateToken returns a nonce carried through the authorize redirect and
// checked on the callback.
func NewStateToken() (string, error) {
	buf := make([]byte, stateTokenSize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (c *client) AuthorizeURL(shopDomain, redirectURI, state string) (string, error) {
	if !ValidShopDomain(shopDomain) {
		return "", ErrInvalidDomain
	}

	host := c.cfg.AuthorizeHost
	if host == "" {
		host = fmt.Sprintf("https://%s", shopDomain)
	}
	parsed, err := url.Parse(fmt.Sprintf("%s/admin/oauth/authorize", strings.TrimRight(host, "/")))
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	query.Set("client_id", c.cfg.APIKey)
	query.Set("scope", c.cfg.Scopes)
	query.Set("redirect_uri", redirectURI)
	query.Set("state", state)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

func (c *client) ExchangeCode(ctx context.Context, shopDomain, code string) (string, error) {
	if !ValidShopDomain(shopDomain) {
		return "", ErrInvalidDomain
	}
	if strings.TrimSpace(code) == "" {
		return "", ErrExchangeFailed
	}

	host := c.cfg.TokenHost
	if host == "" {
		host = fmt.Sprintf("https://%s", shopDomain)
	}
	endpoint := fmt.Sprintf("%s/admin/oauth/access_token", strings.TrimRight(host, "/"))

	body, err := json.Marshal(map[string]string{
		"client_id":     c.cfg.APIKey,
		"client_secret": c.cfg.APISecret,
		"code":          code,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("token exchange rejected",
			zap.String("shop_domain", shopDomain),
			zap.Int("status_code", resp.StatusCode),
		)
		return "", ErrExchangeFailed
	}

	var token tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&token); err != nil {
		return "", ErrExchangeFailed
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return "", ErrExchangeFailed
	}
	return token.AccessToken, nil
}

func (c *client) FetchShop(ctx context.Context, shopDomain, accessToken string) (*Shop, error) {
	if !ValidShopDomain(shopDomain) {
		return nil, ErrInvalidDomain
	}

	host := c.cfg.TokenHost
	if host == "" {
		host = fmt.Sprintf("https://%s", shopDomain)
	}
	endpoint := fmt.Sprintf("%s/admin/api/shop.json", strings.TrimRight(host, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopfront-Access-Token", accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Profile fetch is cosmetic; the install still succeeds with the
		// domain alone.
		c.log.Warn("shop profile fetch failed",
			zap.String("shop_domain", shopDomain),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, nil
	}

	var payload struct {
		Shop Shop `json:"shop"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, nil
	}
	return &payload.Shop, nil
}
