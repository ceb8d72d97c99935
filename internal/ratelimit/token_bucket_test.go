package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketTTL(t *testing.T) {
	// TTL covers two full refills so an idle bucket expires instead of
	// lingering in redis forever.
	assert.Equal(t, 10*time.Second, bucketTTL(1, 5))
	assert.Equal(t, 8*time.Second, bucketTTL(5, 20))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestCastToInt(t *testing.T) {
	assert.Equal(t, int64(3), castToInt(int64(3)))
	assert.Equal(t, int64(3), castToInt(3))
	assert.Equal(t, int64(3), castToInt(3.7))
	assert.Equal(t, int64(0), castToInt("3"))
	assert.Equal(t, int64(0), castToInt(nil))
}

func TestCastToFloat(t *testing.T) {
	assert.Equal(t, 3.5, castToFloat(3.5))
	assert.Equal(t, 3.0, castToFloat(int64(3)))
	// Redis Lua returns numbers as strings through tostring().
	assert.Equal(t, 4.25, castToFloat("4.25"))
	assert.Equal(t, 0.0, castToFloat("not-a-number"))
	assert.Equal(t, 0.0, castToFloat(nil))
}
