package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	billingdomain "github.com/fitmirror/fitmirror/internal/billing/domain"
)

// SignatureTolerance bounds how far a signed timestamp may drift from the
// server clock before the delivery is rejected as a possible replay.
const SignatureTolerance = 5 * time.Minute

// VerifySignature validates the Stripe-Signature header against the raw
// request payload. Secrets are never optional: an empty secret rejects every
// delivery instead of waving it through.
func VerifySignature(payload []byte, sigHeader, secret string, now time.Time) error {
	if strings.TrimSpace(secret) == "" {
		return billingdomain.ErrNotConfigured
	}

	sigHeader = strings.TrimSpace(sigHeader)
	if sigHeader == "" {
		return billingdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return billingdomain.ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return billingdomain.ErrInvalidSignature
	}
	signedAt := time.Unix(ts, 0)
	if now.Sub(signedAt) > SignatureTolerance || signedAt.Sub(now) > SignatureTolerance {
		return billingdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return billingdomain.ErrInvalidSignature
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" && value != "" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("malformed signature header")
	}
	return timestamp, signatures, nil
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Items    struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type invoice struct {
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customer_email"`
	AmountDue     int64  `json:"amount_due"`
}

// ParseEvent decodes a verified webhook payload. Only the envelope is
// required to be well formed; event types the platform never acts on come
// back with just ID and Type filled in so the caller can record and ack them.
// A malformed data.object still returns the envelope alongside the error so
// the caller can record the delivery under its event id.
func ParseEvent(payload []byte) (*billingdomain.WebhookEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, billingdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, billingdomain.ErrInvalidEvent
	}

	parsed := &billingdomain.WebhookEvent{
		ID:      strings.TrimSpace(event.ID),
		Type:    strings.TrimSpace(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}

	switch parsed.Type {
	case billingdomain.EventCheckoutCompleted:
		var session checkoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return parsed, billingdomain.ErrInvalidPayload
		}
		parsed.Checkout = &billingdomain.CheckoutSession{
			CustomerID:     strings.TrimSpace(session.Customer),
			SubscriptionID: strings.TrimSpace(session.Subscription),
			ShopID:         strings.TrimSpace(session.Metadata["shop_id"]),
			PlanKey:        strings.TrimSpace(session.Metadata["plan_key"]),
		}
	case billingdomain.EventSubscriptionUpdated, billingdomain.EventSubscriptionDeleted:
		var sub subscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return parsed, billingdomain.ErrInvalidPayload
		}
		priceID := ""
		if len(sub.Items.Data) > 0 {
			priceID = strings.TrimSpace(sub.Items.Data[0].Price.ID)
		}
		parsed.Subscription = &billingdomain.Subscription{
			ID:         strings.TrimSpace(sub.ID),
			CustomerID: strings.TrimSpace(sub.Customer),
			PriceID:    priceID,
		}
	case billingdomain.EventInvoiceFailed:
		var inv invoice
		if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
			return parsed, billingdomain.ErrInvalidPayload
		}
		parsed.Invoice = &billingdomain.Invoice{
			CustomerID:    strings.TrimSpace(inv.Customer),
			CustomerEmail: strings.TrimSpace(inv.CustomerEmail),
			AmountDue:     inv.AmountDue,
		}
	}

	return parsed, nil
}
