package captcha

import (
	"context"
	"net/http"
)

const recaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"

// Recaptcha verifies reCAPTCHA v3 tokens. v3 is score-based: a successful
// verification still fails when the score falls below the threshold.
type Recaptcha struct {
	Secret string

	// ScoreThreshold rejects verifications scoring below it; 0 disables the
	// score check.
	ScoreThreshold float64

	Client *http.Client

	// Endpoint overrides the verification URL in tests.
	Endpoint string
}

func (r *Recaptcha) Verify(ctx context.Context, token, remoteIP string) error {
	const op = "captcha.recaptcha"

	if token == "" {
		return rejection(op)
	}

	endpoint := r.Endpoint
	if endpoint == "" {
		endpoint = recaptchaEndpoint
	}

	vr, err := siteverify(ctx, r.Client, endpoint, r.Secret, token, remoteIP)
	if err != nil {
		return err
	}
	if !vr.Success {
		return rejection(op)
	}
	if r.ScoreThreshold > 0 && vr.Score < r.ScoreThreshold {
		return rejection(op)
	}
	return nil
}
