// Package payments exposes the HTTP API for creating and updating payments:
// hosted Checkout Sessions, embedded PaymentIntents and Subscriptions, coupon
// validation, and Stripe Tax calculations.
package payments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/fernwood/payform/internal/billing"
	"github.com/fernwood/payform/internal/captcha"
	"github.com/fernwood/payform/internal/domain"
	"github.com/fernwood/payform/internal/payment"
	"github.com/fernwood/payform/internal/router"
	"github.com/fernwood/payform/internal/telemetry"
)

// Config wires a payment handler.
type Config struct {
	Gateway billing.Gateway
	Forms   domain.FormRepository
	Captcha captcha.Verifier
	Metrics *telemetry.PaymentMetrics
	Logger  *slog.Logger

	// BaseURL builds default success/cancel URLs for hosted checkout.
	BaseURL string

	// Advanced unlocks the configurable checkout surface (custom line
	// items, per-method options, automatic tax, promotion codes). When
	// false, hosted checkout runs a fixed baseline configuration.
	Advanced bool
}

// Handler serves the payment API routes.
type Handler struct {
	gateway  billing.Gateway
	forms    domain.FormRepository
	calc     *payment.Calculator
	captcha  captcha.Verifier
	metrics  *telemetry.PaymentMetrics
	logger   *slog.Logger
	validate *validator.Validate
	baseURL  string
	advanced bool
}

// New creates a payment handler.
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	verifier := cfg.Captcha
	if verifier == nil {
		verifier = captcha.Disabled{}
	}

	return &Handler{
		gateway:  cfg.Gateway,
		forms:    cfg.Forms,
		calc:     payment.NewCalculator(cfg.Gateway, cfg.Forms, logger),
		captcha:  verifier,
		metrics:  cfg.Metrics,
		logger:   logger.With("component", "payment_handler"),
		validate: validator.New(),
		baseURL:  cfg.BaseURL,
		advanced: cfg.Advanced,
	}
}

// RegisterRoutes mounts the payment API. The passed middleware (rate
// limiting) wraps every route.
func (h *Handler) RegisterRoutes(r *router.Router, middleware ...router.Middleware) {
	r.Post("/api/payments", h.Create, middleware...)
	r.Post("/api/payments/update", h.Update, middleware...)
	r.Post("/api/payments/update-payment-method", h.UpdatePaymentMethod, middleware...)
	r.Post("/api/payments/calculate-tax", h.CalculateTax, middleware...)
	r.Post("/api/payments/validate-coupon", h.ValidateCoupon, middleware...)
}

// respond writes a JSON response body.
func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// respondError maps an error to a status code and a customer-safe body.
// Domain codes map to their HTTP equivalents; Stripe API errors surface as
// 400s with Stripe's message; everything else is a generic 500.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if fields := domain.GetValidationFields(err); fields != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{
			"message": "Validation failed.",
			"fields":  fields,
		})
		return
	}

	var sErr *billing.StripeError
	if errors.As(err, &sErr) {
		h.logger.Warn("stripe error",
			"path", r.URL.Path,
			"code", sErr.Code,
			"request_id", sErr.RequestID,
		)
		h.respond(w, http.StatusBadRequest, map[string]string{"message": sErr.Message})
		return
	}

	status := http.StatusInternalServerError
	switch domain.ErrorCode(err) {
	case domain.EINVALID:
		status = http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		status = http.StatusUnauthorized
	case domain.EPAYMENT:
		status = http.StatusPaymentRequired
	case domain.EFORBIDDEN:
		status = http.StatusForbidden
	case domain.ENOTFOUND:
		status = http.StatusNotFound
	case domain.ERATELIMIT:
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
	}
	h.respond(w, status, map[string]string{"message": domain.ErrorMessage(err)})
}

// decode parses and structurally validates a JSON request body.
func (h *Handler) decode(r *http.Request, dst any) error {
	const op = "payment.decode"

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.Invalid(op, "invalid JSON request body")
	}

	if err := h.validate.Struct(dst); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			var ve error
			for _, fe := range invalid {
				ve = domain.AddFieldError(ve, fe.Field(), "failed validation: "+fe.Tag())
			}
			return ve
		}
		return domain.Invalid(op, "invalid request")
	}
	return nil
}
