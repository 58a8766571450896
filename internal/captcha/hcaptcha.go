package captcha

import (
	"context"
	"net/http"
)

const hcaptchaEndpoint = "https://hcaptcha.com/siteverify"

// HCaptcha verifies hCaptcha tokens.
type HCaptcha struct {
	Secret string
	Client *http.Client

	// Endpoint overrides the verification URL in tests.
	Endpoint string
}

func (h *HCaptcha) Verify(ctx context.Context, token, remoteIP string) error {
	const op = "captcha.hcaptcha"

	if token == "" {
		return rejection(op)
	}

	endpoint := h.Endpoint
	if endpoint == "" {
		endpoint = hcaptchaEndpoint
	}

	vr, err := siteverify(ctx, h.Client, endpoint, h.Secret, token, remoteIP)
	if err != nil {
		return err
	}
	if !vr.Success {
		return rejection(op)
	}
	return nil
}
