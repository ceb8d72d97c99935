package obscontext

import (
	"context"
	"strings"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	shopIDKey    contextKey = "shop_id"
)

// WithRequestID attaches the correlation id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the correlation id, or empty.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithShopID attaches the tenant shop id to the context.
func WithShopID(ctx context.Context, shopID string) context.Context {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return ctx
	}
	return context.WithValue(ctx, shopIDKey, shopID)
}

// ShopIDFromContext returns the tenant shop id, or empty.
func ShopIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(shopIDKey).(string); ok {
		return v
	}
	return ""
}
