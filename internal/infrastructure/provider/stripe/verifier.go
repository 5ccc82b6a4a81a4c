package stripe

import (
	"net/http"
	"time"

	"github.com/pulseboard/backend/internal/domain/connector"
	"github.com/pulseboard/backend/internal/domain/webhook"
	"github.com/pulseboard/backend/internal/infrastructure/provider/sign"
)

const signatureHeader = "Stripe-Signature"

// Verifier checks Stripe webhook signatures. Stripe signs the raw body
// with the connector's webhook secret using the timestamped HMAC scheme.
type Verifier struct {
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a Stripe signature verifier
func NewVerifier() *Verifier {
	return &Verifier{
		tolerance: sign.DefaultTolerance,
		now:       time.Now,
	}
}

var _ webhook.Verifier = (*Verifier)(nil)

// Provider returns the provider this verifier handles
func (v *Verifier) Provider() connector.ProviderType {
	return connector.ProviderStripe
}

// Verify checks the Stripe-Signature header against the secret
func (v *Verifier) Verify(body []byte, headers http.Header, secret string) error {
	header := headers.Get(signatureHeader)
	if header == "" {
		return webhook.ErrVerificationFailed
	}
	return sign.Verify(header, body, secret, v.tolerance, v.now())
}
