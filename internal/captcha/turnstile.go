package captcha

import (
	"context"
	"net/http"
)

const turnstileEndpoint = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Turnstile verifies Cloudflare Turnstile tokens.
type Turnstile struct {
	Secret string
	Client *http.Client

	// Endpoint overrides the verification URL in tests.
	Endpoint string
}

func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) error {
	const op = "captcha.turnstile"

	if token == "" {
		return rejection(op)
	}

	endpoint := t.Endpoint
	if endpoint == "" {
		endpoint = turnstileEndpoint
	}

	vr, err := siteverify(ctx, t.Client, endpoint, t.Secret, token, remoteIP)
	if err != nil {
		return err
	}
	if !vr.Success {
		return rejection(op)
	}
	return nil
}
