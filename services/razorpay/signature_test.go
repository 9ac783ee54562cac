package razorpay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignIsReproducible(t *testing.T) {
	signer := NewSigner("secret", "")

	first := signer.Sign("order_123", "pay_456")
	second := signer.Sign("order_123", "pay_456")

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	// echo -n "order_123|pay_456" | openssl dgst -sha256 -hmac secret
	assert.Equal(t, "18bfc0baafae8f6367711ee362f2201aaa3654274683100e5367bb9a2bd29cbe", first)
	assert.True(t, signer.Verify("order_123", "pay_456", first))
}

func TestVerifyRejectsOneCharacterMutation(t *testing.T) {
	signer := NewSigner("secret", "")
	valid := signer.Sign("order_123", "pay_456")

	mutate := func(s string, i int) string {
		b := []byte(s)
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
		return string(b)
	}

	for _, i := range []int{0, 31, 63} {
		assert.False(t, signer.Verify("order_123", "pay_456", mutate(valid, i)), "signature byte %d", i)
	}

	assert.False(t, signer.Verify("order_124", "pay_456", valid), "order id mutation")
	assert.False(t, signer.Verify("order_123", "pay_457", valid), "payment id mutation")
	assert.False(t, signer.Verify("order_123", "pay_456", ""))
	assert.False(t, NewSigner("other", "").Verify("order_123", "pay_456", valid), "different secret")
}

func TestWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)

	disabled := NewSigner("secret", "")
	assert.False(t, disabled.WebhooksEnabled())
	assert.False(t, disabled.VerifyWebhook(body, disabled.SignWebhook(body)))

	signer := NewSigner("secret", "whsec")
	assert.True(t, signer.WebhooksEnabled())

	sig := signer.SignWebhook(body)
	assert.True(t, signer.VerifyWebhook(body, sig))
	assert.False(t, signer.VerifyWebhook([]byte(`{"event":"payment.failed"}`), sig))
	assert.NotEqual(t, signer.Sign("a", "b"), NewSigner("whsec", "").Sign("a", "b"))
}
