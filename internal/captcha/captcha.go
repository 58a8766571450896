// Package captcha gates payment creation behind a CAPTCHA challenge. Each
// supported provider verifies a client token server-side; a failed or
// missing verification is an authorization failure, not a validation error,
// so handlers can reject it before touching Stripe.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fernwood/payform/internal/domain"
)

// Provider names accepted by NewVerifier.
const (
	ProviderNone      = ""
	ProviderRecaptcha = "recaptcha"
	ProviderHCaptcha  = "hcaptcha"
	ProviderTurnstile = "turnstile"
)

// Verifier checks a client-supplied challenge token. Implementations return
// a domain error with code EUNAUTHORIZED when the token does not verify.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Disabled accepts every request. Used when no provider is configured.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, string) error { return nil }

// NewVerifier builds the verifier for the configured provider. client may be
// nil, in which case a client with a sane timeout is used.
func NewVerifier(provider, secret string, scoreThreshold float64, client *http.Client) (Verifier, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	switch strings.ToLower(provider) {
	case ProviderNone:
		return Disabled{}, nil
	case ProviderRecaptcha:
		if secret == "" {
			return nil, fmt.Errorf("captcha: recaptcha requires a secret key")
		}
		return &Recaptcha{Secret: secret, ScoreThreshold: scoreThreshold, Client: client}, nil
	case ProviderHCaptcha:
		if secret == "" {
			return nil, fmt.Errorf("captcha: hcaptcha requires a secret key")
		}
		return &HCaptcha{Secret: secret, Client: client}, nil
	case ProviderTurnstile:
		if secret == "" {
			return nil, fmt.Errorf("captcha: turnstile requires a secret key")
		}
		return &Turnstile{Secret: secret, Client: client}, nil
	default:
		return nil, fmt.Errorf("captcha: unknown provider %q", provider)
	}
}

// verifyResponse is the shared siteverify response shape across providers.
type verifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	ErrorCodes []string `json:"error-codes"`
}

// siteverify posts the token to a provider's verification endpoint.
func siteverify(ctx context.Context, client *http.Client, endpoint, secret, token, remoteIP string) (*verifyResponse, error) {
	const op = "captcha.siteverify"

	form := url.Values{
		"secret":   {secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "building verification request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "reaching verification endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.Errorf(domain.EINTERNAL, op, "verification endpoint returned %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "decoding verification response")
	}
	return &vr, nil
}

func rejection(op string) error {
	return domain.Unauthorized(op, "CAPTCHA verification failed")
}
