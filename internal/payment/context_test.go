package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernwood/payform/internal/domain"
)

func testForm() *domain.PaymentForm {
	return &domain.PaymentForm{
		ID:          "form_1",
		Title:       "Donation",
		Livemode:    false,
		DisplayType: domain.DisplayEmbedded,
		ProductID:   "prod_123",
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
					UnitAmountMin: 100,
				},
				{
					ID:         "price_monthly",
					Currency:   "usd",
					UnitAmount: 2500,
					Recurring:  &domain.Recurring{Interval: "month", IntervalCount: 1},
				},
				{
					ID:         "price_optional",
					Currency:   "usd",
					UnitAmount: 1500,
					CanRecur:   true,
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

func TestNewContext(t *testing.T) {
	form := testForm()

	t.Run("resolves price and defaults", func(t *testing.T) {
		pc, err := NewContext(form, Request{PriceID: "price_basic"})
		require.NoError(t, err)

		assert.Equal(t, "price_basic", pc.Price.ID)
		assert.Equal(t, int64(1), pc.Req.Quantity)
		assert.Equal(t, "card", pc.Req.PaymentMethodType)
	})

	t.Run("unknown price rejected", func(t *testing.T) {
		_, err := NewContext(form, Request{PriceID: "price_gone"})
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})
}

func TestContextUnitAmount(t *testing.T) {
	form := testForm()

	t.Run("defined price uses configured amount", func(t *testing.T) {
		pc, err := NewContext(form, Request{PriceID: "price_basic", CustomAmount: 9999})
		require.NoError(t, err)
		assert.Equal(t, int64(1000), pc.UnitAmount())
	})

	t.Run("custom amount uses customer value", func(t *testing.T) {
		pc, err := NewContext(form, Request{
			PriceID:      domain.SyntheticPriceIDPrefix + "custom",
			CustomAmount: 750,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(750), pc.UnitAmount())
	})

	t.Run("subtotal multiplies quantity", func(t *testing.T) {
		pc, err := NewContext(form, Request{PriceID: "price_basic", Quantity: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(3000), pc.Subtotal())
	})
}

func TestContextIsRecurring(t *testing.T) {
	form := testForm()

	tests := []struct {
		name    string
		priceID string
		optIn   bool
		want    bool
	}{
		{"one-time price", "price_basic", false, false},
		{"one-time price ignores opt-in", "price_basic", true, false},
		{"always recurring price", "price_monthly", false, true},
		{"optional recurring without opt-in", "price_optional", false, false},
		{"optional recurring with opt-in", "price_optional", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := NewContext(form, Request{
				PriceID:               tt.priceID,
				IsOptionallyRecurring: tt.optIn,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, pc.IsRecurring())
		})
	}
}
