package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/shopspring/decimal"
)

// SignatureHeader carries the provider's HMAC of the raw body
const SignatureHeader = "X-Payment-Signature"

// Verifier authenticates payment provider callbacks. It implements
// core.PaymentVerifier.
type Verifier struct {
	secret string
}

// NewVerifier creates a verifier for the shared webhook secret
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("PAYMENT_WEBHOOK_SECRET is required but not set")
	}
	return &Verifier{secret: secret}, nil
}

// Sign returns the header value for payload, in the sha256=<hex> format.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook verifies the signature header
func (v *Verifier) VerifyWebhook(ctx context.Context, signature string, payload []byte) bool {
	// Signature format: sha256=<hex_string>
	parts := strings.SplitN(signature, "=", 2)
	if len(parts) != 2 || parts[0] != "sha256" {
		return false
	}

	expectedSig, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(payload)
	computedSig := mac.Sum(nil)

	return hmac.Equal(expectedSig, computedSig)
}

// WebhookPayload represents the provider's transaction callback
type WebhookPayload struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    string `json:"amount"`
		Channel   string `json:"channel"`
		Metadata  struct {
			OrderID string `json:"order_id"`
		} `json:"metadata"`
	} `json:"resource"`
}

// ProcessWebhook decodes a verified callback into a payment confirmation
func (v *Verifier) ProcessWebhook(ctx context.Context, payload []byte) (*core.PaymentConfirmation, error) {
	var webhook WebhookPayload
	if err := json.Unmarshal(payload, &webhook); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	if webhook.Resource.Metadata.OrderID == "" {
		return nil, fmt.Errorf("webhook has no order id: %w", core.ErrInvalidInput)
	}

	status := strings.ToLower(webhook.Resource.Status)
	isSuccess := strings.Contains(strings.ToLower(webhook.EventType), "transaction") &&
		(status == "success" || status == "received")

	result := &core.PaymentConfirmation{
		OrderID:   webhook.Resource.Metadata.OrderID,
		Method:    channelMethod(webhook.Resource.Channel),
		Reference: webhook.Resource.Reference,
		Success:   isSuccess,
	}
	if result.Reference == "" {
		result.Reference = webhook.Resource.ID
	}

	if webhook.Resource.Amount != "" {
		amount, err := decimal.NewFromString(webhook.Resource.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook amount %q: %w", webhook.Resource.Amount, core.ErrInvalidInput)
		}
		result.Amount = amount
	}

	return result, nil
}

func channelMethod(channel string) core.PaymentMethod {
	switch strings.ToUpper(channel) {
	case "CARD":
		return core.PaymentMethodCard
	case "UPI":
		return core.PaymentMethodUPI
	default:
		return core.PaymentMethodMpesa
	}
}
