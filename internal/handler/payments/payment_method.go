package payments

import (
	"net/http"

	stripe "github.com/stripe/stripe-go/v79"

	"github.com/fernwood/payform/internal/billing"
	"github.com/fernwood/payform/internal/domain"
	"github.com/fernwood/payform/internal/payment"
)

// updatePaymentMethodRequest authorizes a default payment method change on a
// subscription via the capability key minted at creation time.
type updatePaymentMethodRequest struct {
	FormID          string `json:"form_id"`
	CustomerID      string `json:"customer_id" validate:"required"`
	SubscriptionID  string `json:"subscription_id" validate:"required"`
	SubscriptionKey string `json:"subscription_key" validate:"required"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
	SetupIntentID   string `json:"setup_intent_id"`
}

// UpdatePaymentMethod handles POST /api/payments/update-payment-method. All
// checks must pass before the write: the subscription's customer matches,
// the capability key matches, and the setup intent (when supplied) belongs
// to the same customer. Failures are indistinguishable 401s so the route
// leaks nothing about which check failed.
func (h *Handler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	const op = "payment.method.update"
	ctx := r.Context()

	var req updatePaymentMethodRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	reject := func() {
		if h.metrics != nil {
			h.metrics.PaymentMethodUpdates.WithLabelValues("unauthorized").Inc()
		}
		h.respondError(w, r, domain.Unauthorized(op, "unable to update the payment method"))
	}

	sub, err := h.gateway.GetSubscription(ctx, req.SubscriptionID, nil)
	if err != nil {
		if billing.IsNotFound(err) {
			reject()
			return
		}
		h.respondError(w, r, err)
		return
	}

	if sub.Customer == nil || sub.Customer.ID != req.CustomerID {
		reject()
		return
	}
	if sub.Metadata[payment.MetadataKeySubscriptionKey] == "" ||
		sub.Metadata[payment.MetadataKeySubscriptionKey] != req.SubscriptionKey {
		reject()
		return
	}
	if req.SetupIntentID != "" {
		intent, err := h.gateway.GetSetupIntent(ctx, req.SetupIntentID)
		if err != nil {
			if billing.IsNotFound(err) {
				reject()
				return
			}
			h.respondError(w, r, err)
			return
		}
		if intent.Customer == nil || intent.Customer.ID != req.CustomerID {
			reject()
			return
		}
	}

	params := &stripe.SubscriptionParams{
		DefaultPaymentMethod: stripe.String(req.PaymentMethodID),
		// Re-activating the payment method also re-activates a
		// subscription that was winding down after failed payments.
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	if _, err := h.gateway.UpdateSubscription(ctx, req.SubscriptionID, params); err != nil {
		if h.metrics != nil {
			h.metrics.PaymentMethodUpdates.WithLabelValues("error").Inc()
		}
		h.respondError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.PaymentMethodUpdates.WithLabelValues("ok").Inc()
	}
	h.logger.Info("payment method updated", "subscription_id", req.SubscriptionID)
	h.respond(w, http.StatusOK, struct{}{})
}
