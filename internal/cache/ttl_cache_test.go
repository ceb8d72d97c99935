package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_SetGet(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTLCache_Expiry(t *testing.T) {
	c := NewTTLCache[string, string]()

	c.Set("a", "value", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCache_ZeroTTLIsNoOp(t *testing.T) {
	c := NewTTLCache[string, string]()

	c.Set("a", "value", 0)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCache_Delete(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestIngestResolverCache_ShopPlanRoundTrip(t *testing.T) {
	c := NewIngestResolverCache()

	_, ok := c.GetShopPlan("1")
	require.False(t, ok)

	c.SetShopPlan("1", "growth")

	plan, ok := c.GetShopPlan("1")
	require.True(t, ok)
	assert.Equal(t, "growth", plan)
}

func TestIngestResolverCache_NilIdentityIgnored(t *testing.T) {
	c := NewIngestResolverCache()

	c.SetIdentity("hash", nil)

	_, ok := c.GetIdentity("hash")
	assert.False(t, ok)
}
