package payments

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v79"

	"github.com/fernwood/payform/internal/domain"
	"github.com/fernwood/payform/internal/payment"
)

// updateRequest is the payload for POST /api/payments/update: the object to
// correct, the customer claiming it, and the pricing fields that may have
// changed since creation (typically the payment method type).
type updateRequest struct {
	createRequest

	ObjectID   string `json:"object_id" validate:"required"`
	CustomerID string `json:"customer_id" validate:"required"`
}

// updateResponse reports the post-update object. Changed is false when the
// recomputed fee recovery matched the recorded one and nothing was written.
type updateResponse struct {
	ObjectID     string `json:"object_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Changed      bool   `json:"changed"`
}

// errObjectNotUpdatable is deliberately vague: a wrong customer, a missing
// fee-recovery marker, and an unknown object all look the same to the caller.
func errObjectNotUpdatable(op string) error {
	return domain.Invalid(op, "the object cannot be updated")
}

// paymentObject is the resolved target of an update. Exactly one variant is
// set.
type paymentObject struct {
	intent       *stripe.PaymentIntent
	subscription *stripe.Subscription
}

// resolvePaymentObject looks up the updatable object behind an ID.
// Subscriptions come back with their confirmable intents expanded. An ID of
// any other kind resolves to the same vague error as a failed authorization.
func (h *Handler) resolvePaymentObject(ctx context.Context, id string) (*paymentObject, error) {
	switch {
	case strings.HasPrefix(id, "pi_"):
		intent, err := h.gateway.GetPaymentIntent(ctx, id, nil)
		if err != nil {
			return nil, err
		}
		return &paymentObject{intent: intent}, nil

	case strings.HasPrefix(id, "sub_"):
		params := &stripe.SubscriptionParams{}
		params.AddExpand("latest_invoice.payment_intent")
		params.AddExpand("pending_setup_intent")
		sub, err := h.gateway.GetSubscription(ctx, id, params)
		if err != nil {
			return nil, err
		}
		return &paymentObject{subscription: sub}, nil

	default:
		return nil, errObjectNotUpdatable("payment.resolve")
	}
}

// Update handles POST /api/payments/update. The final payment method can
// change the fee-recovery surcharge, so the amount may need correcting after
// creation. The resolved variant decides the path: PaymentIntents get their
// amount corrected in place, while Subscriptions are replaced, because
// Stripe cannot reprice an incomplete subscription's first invoice.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.verifyCaptcha(ctx, req.CaptchaToken); err != nil {
		h.respondError(w, r, err)
		return
	}

	pc, err := h.resolveContext(ctx, &req.createRequest)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	obj, err := h.resolvePaymentObject(ctx, req.ObjectID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	switch {
	case obj.intent != nil:
		h.updatePaymentIntent(w, r, pc, &req, obj.intent)
	case obj.subscription != nil:
		h.replaceSubscription(w, r, pc, &req, obj.subscription)
	}
}

// updatePaymentIntent recomputes fee recovery for the selected payment method
// and corrects the intent's amount. When the recorded surcharge already
// matches, the intent is returned untouched, so retries are idempotent.
func (h *Handler) updatePaymentIntent(w http.ResponseWriter, r *http.Request, pc *payment.Context, req *updateRequest, intent *stripe.PaymentIntent) {
	const op = "payment.intent.update"
	ctx := r.Context()

	recordedFee, ok := intent.Metadata[payment.MetadataKeyFeeRecovery]
	if !ok || intent.Customer == nil || intent.Customer.ID != req.CustomerID {
		h.respondError(w, r, errObjectNotUpdatable(op))
		return
	}

	subtotal := pc.Subtotal()
	fee := payment.FeeRecoveryUnitAmount(pc, subtotal)
	if recordedFee == strconv.FormatInt(fee, 10) {
		h.respond(w, http.StatusOK, &updateResponse{
			ObjectID:     intent.ID,
			ClientSecret: intent.ClientSecret,
			Changed:      false,
		})
		return
	}

	amount := subtotal + fee

	// The Customer's attached discount is authoritative over the raw code:
	// it is what Stripe will actually apply.
	discount, err := h.calc.DiscountUnitAmount(ctx, pc, amount, req.CustomerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	amount -= discount

	_, exclusive, err := h.calc.TaxAmounts(ctx, pc, amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	amount += exclusive

	params := &stripe.PaymentIntentParams{
		Amount: stripe.Int64(amount),
		Metadata: map[string]string{
			payment.MetadataKeyFeeRecovery: strconv.FormatInt(fee, 10),
		},
	}
	intent, err = h.gateway.UpdatePaymentIntent(ctx, req.ObjectID, params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, &updateResponse{
		ObjectID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Changed:      true,
	})
}

// replaceSubscription recreates an incomplete subscription when the
// recomputed recurring surcharge differs from the recorded one, then voids
// the superseded subscription's first invoice. Creating the replacement
// first means a void failure leaves the customer with one working
// subscription and one stale invoice, instead of none; the stale invoice is
// logged and counted for operator cleanup.
func (h *Handler) replaceSubscription(w http.ResponseWriter, r *http.Request, pc *payment.Context, req *updateRequest, old *stripe.Subscription) {
	const op = "payment.subscription.replace"
	ctx := r.Context()

	recordedFee, ok := old.Metadata[payment.MetadataKeyFeeRecovery]
	if !ok || old.Customer == nil || old.Customer.ID != req.CustomerID {
		h.respondError(w, r, errObjectNotUpdatable(op))
		return
	}
	if old.Status != stripe.SubscriptionStatusIncomplete && old.Status != stripe.SubscriptionStatusTrialing {
		h.respondError(w, r, domain.Invalid(op, "the subscription can no longer be updated"))
		return
	}

	var recurringFee int64
	if lines := payment.SubscriptionFeeRecovery(pc); lines != nil {
		recurringFee = lines.Recurring
	}
	if recordedFee == strconv.FormatInt(recurringFee, 10) {
		h.respond(w, http.StatusOK, &updateResponse{
			ObjectID:     old.ID,
			ClientSecret: subscriptionClientSecret(old),
			Changed:      false,
		})
		return
	}

	created, err := h.createSubscription(ctx, pc, req.CustomerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.SubscriptionReplacements.Inc()
	}

	if old.LatestInvoice != nil {
		if _, err := h.gateway.VoidInvoice(ctx, old.LatestInvoice.ID); err != nil {
			// Not fatal: the replacement already exists and the old
			// subscription stays incomplete until its invoice expires.
			h.logger.Warn("failed to void superseded invoice",
				"subscription_id", req.ObjectID,
				"invoice_id", old.LatestInvoice.ID,
				"error", err,
			)
			if h.metrics != nil {
				h.metrics.InvoiceVoidFailures.Inc()
			}
		}
	}

	h.respond(w, http.StatusOK, &updateResponse{
		ObjectID:     created.ObjectID,
		ClientSecret: created.ClientSecret,
		Changed:      true,
	})
}

// subscriptionClientSecret extracts the confirmable secret from an expanded
// subscription, empty if neither intent is present.
func subscriptionClientSecret(sub *stripe.Subscription) string {
	if sub.PendingSetupIntent != nil {
		return sub.PendingSetupIntent.ClientSecret
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		return sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return ""
}
