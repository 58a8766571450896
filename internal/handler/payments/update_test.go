package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v79"

	"github.com/fernwood/payform/internal/billing"
	"github.com/fernwood/payform/internal/payment"
)

func seedUpdatableIntent(gateway *billing.MockGateway, recordedFee string) {
	gateway.Customers["cus_1"] = &stripe.Customer{ID: "cus_1"}
	gateway.Intents["pi_1"] = &stripe.PaymentIntent{
		ID:           "pi_1",
		Amount:       1000,
		ClientSecret: "pi_1_secret",
		Customer:     &stripe.Customer{ID: "cus_1"},
		Metadata:     map[string]string{payment.MetadataKeyFeeRecovery: recordedFee},
	}
}

func seedUpdatableSubscription(gateway *billing.MockGateway, recordedFee string) {
	gateway.Customers["cus_1"] = &stripe.Customer{ID: "cus_1"}
	gateway.Subscriptions["sub_1"] = &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusIncomplete,
		Customer: &stripe.Customer{ID: "cus_1"},
		Metadata: map[string]string{payment.MetadataKeyFeeRecovery: recordedFee},
		LatestInvoice: &stripe.Invoice{
			ID:            "in_1",
			PaymentIntent: &stripe.PaymentIntent{ID: "pi_sub", ClientSecret: "pi_sub_secret"},
		},
	}
}

func TestUpdatePaymentIntentAmount(t *testing.T) {
	h, gateway, _ := newTestHandler(t)
	seedUpdatableIntent(gateway, "0")

	var resp updateResponse
	w := doJSON(t, h.Update, "/api/payments/update", map[string]any{
		"form_id":          "form_1",
		"price_id":         "price_basic",
		"object_id":        "pi_1",
		"customer_id":      "cus_1",
		"is_covering_fees": true,
	}, &resp)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pi_1", resp.ObjectID)
	assert.True(t, resp.Changed)
	assert.Equal(t, int64(1061), gateway.Intents["pi_1"].Amount)
	assert.Equal(t, "61", gateway.Intents["pi_1"].Metadata[payment.MetadataKeyFeeRecovery])
}

func TestUpdatePaymentIntentIdempotent(t *testing.T) {
	h, gateway, _ := newTestHandler(t)
	seedUpdatableIntent(gateway, "61")

	var resp updateResponse
	w := doJSON(t, h.Update, "/api/payments/update", map[string]any{
		"form_id":          "form_1",
		"price_id":         "price_basic",
		"object_id":        "pi_1",
		"customer_id":      "cus_1",
		"is_covering_fees": true,
	}, &resp)

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.Changed)
	assert.Equal(t, int64(1000), gateway.Intents["pi_1"].Amount, "matching fee skips the write")
	assert.NotContains(t, gateway.CallLog, "UpdatePaymentIntent(pi_1)")
}

func TestUpdateRejectsWrongCustomer(t *testing.T) {
	h, gateway, _ := newTestHandler(t)
	seedUpdatableIntent(gateway, "0")

	w := doJSON(t, h.Update, "/api/payments/update", map[string]any{
		"form_id":     "form_1",
		"price_id":    "price_basic",
		"object_id":   "pi_1",
		"customer_id": "cus_other",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, gateway.CallLog, "UpdatePaymentIntent(pi_1)")
}

func TestUpdateRejectsIntentWithoutFeeMarker(t *testing.T) {
	h, gateway, _ := newTestHandler(t)
	gateway.Customers["cus_1"] = &stripe.Customer{ID: "cus_1"}
	gateway.Intents["pi_1"] = &stripe.PaymentIntent{
		ID:       "pi_1",
		Customer: &stripe.Customer{ID: "cus_1"},
	}

	w := doJSON(t, h.Update, "/api/payments/update", map[string]any{
		"form_id":     "form_1",
		"price_id":    "price_basic",
		"object_id":   "pi_1",
		"customer_id": "cus_1",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateReplacesSubscription(t *testing.T) {
	h, gateway, _ := newTestHandler(t)
	seedUpdatableSubscription(gateway, "0")

	var resp updateResponse
	w := doJSON(t, h.Update, "/api/payments/update", map[string]any{
		"form_id":          "form_1",
		"price_id":         "price_monthly",
		"object_id":        "sub_1",
		"customer_id":      "cus_1",
		"is_covering_fees": true,
	}, &resp)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Changed)
	assert.True(t, strings.HasPrefix(resp.ObjectID, "sub_"))
	assert.NotEqual(t, "sub_1", resp.ObjectID)
	assert.Equal(t, []string{"in_1"}, gateway.VoidedInvoices)
	assert.Equal(t, "cus_1", *gateway.LastSubscriptionParams.Customer,
		"replacement should reuse the customer")
}

func TestUpdateSubscriptionIdempotent(t *testing.T) {
	h, gateway, _ := newTestHandler(t)
	// grossUp(2500, 2.9, 30) on the monthly price
	seedUpdatableSubscription(gateway, "106")

	var resp updateResponse
	w := doJSON(t, h.Update, "/api/payments/update", map[string]any{
		"form_id":          "form_1",
		"price_id":         "price_monthly",
		"object_id":        "sub_1",
		"customer_id":      "cus_1",
		"is_covering_fees": true,
	}, &resp)

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.Changed)
	assert.Equal(t, "sub_1", resp.ObjectID, "matching fee must not churn the subscription")
	assert.Equal(t, "pi_sub_secret", resp.ClientSecret)
	assert.Empty(t, gateway.VoidedInvoices)
	assert.NotContains(t, gateway.CallLog, "CreateSubscription")
}

func TestUpdateReplacementSurvivesVoidFailure(t *testing.T) {
	h, gateway, _ := newTestHandler(t)
	seedUpdatableSubscription(gateway, "0")
	gateway.VoidInvoiceFunc = func(_ context.Context, id string) (*stripe.Invoice, error) {
		return nil, errors.New("boom")
	}

	var resp updateResponse
	w := doJSON(t, h.Update, "/api/payments/update", map[string]any{
		"form_id":          "form_1",
		"price_id":         "price_monthly",
		"object_id":        "sub_1",
		"customer_id":      "cus_1",
		"is_covering_fees": true,
	}, &resp)

	require.Equal(t, http.StatusOK, w.Code, "a void failure must not fail the replacement")
	assert.True(t, resp.Changed)
	assert.NotEmpty(t, resp.ObjectID)
}

func TestUpdateRejectsSettledSubscription(t *testing.T) {
	h, gateway, _ := newTestHandler(t)
	seedUpdatableSubscription(gateway, "0")
	gateway.Subscriptions["sub_1"].Status = stripe.SubscriptionStatusActive

	w := doJSON(t, h.Update, "/api/payments/update", map[string]any{
		"form_id":          "form_1",
		"price_id":         "price_monthly",
		"object_id":        "sub_1",
		"customer_id":      "cus_1",
		"is_covering_fees": true,
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, gateway.VoidedInvoices)
}

func TestUpdateRejectsUnknownObject(t *testing.T) {
	h, _, _ := newTestHandler(t)

	w := doJSON(t, h.Update, "/api/payments/update", map[string]any{
		"form_id":     "form_1",
		"price_id":    "price_basic",
		"object_id":   "ch_123",
		"customer_id": "cus_1",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
