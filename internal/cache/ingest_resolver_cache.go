package cache

import (
	"time"

	apikeydomain "github.com/fitmirror/fitmirror/internal/apikey/domain"
)

const (
	defaultIdentityTTL = 60 * time.Second
	defaultPlanTTL     = 45 * time.Second
)

// IngestResolverCache stores hot-path lookups for widget event ingest so a
// busy storefront does not hit the database twice per render. TTLs are short
// because key revocation and plan changes must land quickly.
type IngestResolverCache interface {
	GetIdentity(keyHash string) (*apikeydomain.Identity, bool)
	SetIdentity(keyHash string, identity *apikeydomain.Identity)
	GetShopPlan(shopID string) (string, bool)
	SetShopPlan(shopID, planKey string)
}

type ingestResolverCache struct {
	identities Cache[string, *apikeydomain.Identity]
	plans      Cache[string, string]

	identityTTL time.Duration
	planTTL     time.Duration
}

// NewIngestResolverCache returns an in-memory cache tuned for event ingest.
func NewIngestResolverCache() IngestResolverCache {
	return &ingestResolverCache{
		identities:  NewTTLCache[string, *apikeydomain.Identity](),
		plans:       NewTTLCache[string, string](),
		identityTTL: defaultIdentityTTL,
		planTTL:     defaultPlanTTL,
	}
}

func (c *ingestResolverCache) GetIdentity(keyHash string) (*apikeydomain.Identity, bool) {
	return c.identities.Get(keyHash)
}

func (c *ingestResolverCache) SetIdentity(keyHash string, identity *apikeydomain.Identity) {
	if identity == nil {
		return
	}
	c.identities.Set(keyHash, identity, c.identityTTL)
}

func (c *ingestResolverCache) GetShopPlan(shopID string) (string, bool) {
	return c.plans.Get(shopID)
}

func (c *ingestResolverCache) SetShopPlan(shopID, planKey string) {
	c.plans.Set(shopID, planKey, c.planTTL)
}
