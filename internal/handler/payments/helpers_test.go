package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fernwood/payform/internal/billing"
	"github.com/fernwood/payform/internal/domain"
	"github.com/fernwood/payform/internal/forms"
)

// rejectAllCaptcha fails every verification.
type rejectAllCaptcha struct{}

func (rejectAllCaptcha) Verify(context.Context, string, string) error {
	return domain.Unauthorized("captcha.test", "CAPTCHA verification failed")
}

func testForm() *domain.PaymentForm {
	return &domain.PaymentForm{
		ID:          "form_1",
		Title:       "Donation",
		Livemode:    false,
		DisplayType: domain.DisplayEmbedded,
		ProductID:   "prod_123",
		SuccessURL:  "https://example.com/thanks",
		Prices: &domain.PriceOptions{
			Test: []domain.PriceOption{
				{
					ID:         "price_basic",
					Currency:   "usd",
					UnitAmount: 1000,
					Default:    true,
				},
				{
					ID:            domain.SyntheticPriceIDPrefix + "custom",
					Currency:      "usd",
					UnitAmountMin: 500,
				},
				{
					ID:         "price_monthly",
					Currency:   "usd",
					UnitAmount: 2500,
					Recurring:  &domain.Recurring{Interval: "month", IntervalCount: 1},
				},
			},
		},
		PaymentMethods: []domain.PaymentMethod{
			{
				ID:        "card",
				Recurring: true,
				FeeRecovery: domain.FeeRecoveryRate{
					Enabled: true,
					Percent: 2.9,
					Fixed:   30,
				},
			},
		},
		TaxStatus: domain.TaxStatusNone,
	}
}

// newTestHandler wires a handler over the mock gateway and an in-memory
// store seeded with testForm.
func newTestHandler(t *testing.T) (*Handler, *billing.MockGateway, *forms.MemoryStore) {
	t.Helper()

	gateway := billing.NewMockGateway()
	store := forms.NewMemoryStore()
	store.PutForm(testForm())

	h := New(Config{
		Gateway:  gateway,
		Forms:    store,
		BaseURL:  "http://localhost:3000",
		Advanced: true,
	})
	return h, gateway, store
}

// doJSON posts a JSON body to the handler func and decodes the response.
func doJSON(t *testing.T, handler http.HandlerFunc, target string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler(w, req)

	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w
}
