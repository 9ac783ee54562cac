package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes and checks gateway signatures
type Signer struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewSigner creates a signer. The key secret signs checkout callbacks; the webhook secret
// signs webhook bodies and may be empty when webhooks are not used.
func NewSigner(keySecret, webhookSecret string) *Signer {
	return &Signer{
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(webhookSecret),
	}
}

// Sign returns hex(HMAC_SHA256(keySecret, orderID + "|" + paymentID))
func (s *Signer) Sign(orderID, paymentID string) string {
	return hexHMAC(s.keySecret, []byte(orderID+"|"+paymentID))
}

// Verify reports whether signature authenticates the (orderID, paymentID) pair
func (s *Signer) Verify(orderID, paymentID, signature string) bool {
	return equalHex(s.Sign(orderID, paymentID), signature)
}

// WebhooksEnabled reports whether a webhook secret was configured
func (s *Signer) WebhooksEnabled() bool {
	return len(s.webhookSecret) > 0
}

// SignWebhook returns hex(HMAC_SHA256(webhookSecret, body))
func (s *Signer) SignWebhook(body []byte) string {
	return hexHMAC(s.webhookSecret, body)
}

// VerifyWebhook checks the X-Razorpay-Signature header against the raw body
func (s *Signer) VerifyWebhook(body []byte, signature string) bool {
	if !s.WebhooksEnabled() {
		return false
	}
	return equalHex(s.SignWebhook(body), signature)
}

func hexHMAC(secret, message []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// equalHex compares in constant time
func equalHex(expected, actual string) bool {
	return hmac.Equal([]byte(expected), []byte(actual))
}
