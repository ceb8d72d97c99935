package partner

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// VerifyHMAC authenticates a Shopfront callback query string. The platform
// signs every key=value pair except the signature itself, sorted by key and
// joined with "&", using HMAC-SHA256 over the app secret.
//
// An empty secret is a deployment fault and never verifies, so a
// misconfigured instance rejects installs instead of accepting forgeries.
func VerifyHMAC(query url.Values, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrNotConfigured
	}

	provided := strings.TrimSpace(query.Get("hmac"))
	if provided == "" {
		provided = strings.TrimSpace(query.Get("signature"))
	}
	if provided == "" {
		return ErrInvalidSignature
	}

	expected := ComputeHMAC(query, secret)
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// ComputeHMAC builds the canonical message and returns its hex digest.
// Exposed so tests and outbound signed requests share one canonicalization.
func ComputeHMAC(query url.Values, secret string) string {
	pairs := make([]string, 0, len(query))
	for key, values := range query {
		if key == "hmac" || key == "signature" {
			continue
		}
		for _, value := range values {
			pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
		}
	}
	sort.Strings(pairs)
	message := strings.Join(pairs, "&")

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
