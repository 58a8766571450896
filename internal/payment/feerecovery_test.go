package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v79"

	"github.com/fernwood/payform/internal/billing"
	"github.com/fernwood/payform/internal/domain"
)

func TestGrossUp(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		percent float64
		fixed   int64
		want    int64
	}{
		{"card rate on 10.00", 1000, 2.9, 30, 61},
		{"card rate on 100.00", 10000, 2.9, 30, 330},
		{"percent only", 10000, 3.0, 0, 309},
		{"fixed only", 10000, 0, 30, 30},
		{"zero amount still grosses the fixed fee", 0, 2.9, 30, 31},
		{"degenerate percent", 1000, 100, 30, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, grossUp(tt.amount, tt.percent, tt.fixed))
		})
	}
}

// The surcharge must make the merchant whole: net of processing fees on the
// grossed-up total, the merchant keeps the original amount (within a unit of
// rounding).
func TestGrossUpMakesMerchantWhole(t *testing.T) {
	for _, amount := range []int64{100, 999, 1000, 4242, 10000, 123456} {
		fee := grossUp(amount, 2.9, 30)
		total := amount + fee
		net := float64(total)*(1-0.029) - 30
		assert.InDelta(t, float64(amount), net, 1.0, "amount %d", amount)
	}
}

func TestFeeRecoveryUnitAmount(t *testing.T) {
	t.Run("off without opt-in", func(t *testing.T) {
		pc, err := NewContext(testForm(), Request{PriceID: "price_basic"})
		require.NoError(t, err)
		assert.Zero(t, FeeRecoveryUnitAmount(pc, 1000))
	})

	t.Run("customer opt-in", func(t *testing.T) {
		pc, err := NewContext(testForm(), Request{PriceID: "price_basic", IsCoveringFees: true})
		require.NoError(t, err)
		assert.Equal(t, int64(61), FeeRecoveryUnitAmount(pc, 1000))
	})

	t.Run("forced by form", func(t *testing.T) {
		form := testForm()
		form.FeeRecoveryForced = true
		pc, err := NewContext(form, Request{PriceID: "price_basic"})
		require.NoError(t, err)
		assert.Equal(t, int64(61), FeeRecoveryUnitAmount(pc, 1000))
	})

	t.Run("method without fee recovery", func(t *testing.T) {
		form := testForm()
		form.PaymentMethods[0].FeeRecovery.Enabled = false
		pc, err := NewContext(form, Request{PriceID: "price_basic", IsCoveringFees: true})
		require.NoError(t, err)
		assert.Zero(t, FeeRecoveryUnitAmount(pc, 1000))
	})
}

func TestSubscriptionFeeRecovery(t *testing.T) {
	t.Run("plain subscription has equal lines", func(t *testing.T) {
		pc, err := NewContext(testForm(), Request{PriceID: "price_monthly", IsCoveringFees: true})
		require.NoError(t, err)

		lines := SubscriptionFeeRecovery(pc)
		require.NotNil(t, lines)
		assert.Equal(t, lines.Recurring, lines.Today)
		assert.Zero(t, lines.OneTime)
	})

	t.Run("setup fee creates one-time difference", func(t *testing.T) {
		form := testForm()
		form.Prices.Test[2].LineItems = []domain.PriceLineItem{
			{Label: "Setup fee", UnitAmount: 5000},
		}
		pc, err := NewContext(form, Request{PriceID: "price_monthly", IsCoveringFees: true})
		require.NoError(t, err)

		lines := SubscriptionFeeRecovery(pc)
		require.NotNil(t, lines)
		// Recurring covers 2500, today covers 7500.
		assert.Equal(t, int64(106), lines.Recurring)
		assert.Equal(t, int64(255), lines.Today)
		assert.Equal(t, int64(149), lines.OneTime)
	})

	t.Run("trial charges nothing today", func(t *testing.T) {
		form := testForm()
		form.Prices.Test[2].Recurring.TrialPeriodDays = 14
		pc, err := NewContext(form, Request{PriceID: "price_monthly", IsCoveringFees: true})
		require.NoError(t, err)

		lines := SubscriptionFeeRecovery(pc)
		require.NotNil(t, lines)
		assert.Zero(t, lines.Today)
		assert.Zero(t, lines.OneTime)
		assert.Equal(t, int64(106), lines.Recurring)
	})

	t.Run("trial with setup fee bills its surcharge once", func(t *testing.T) {
		form := testForm()
		form.Prices.Test[2].Recurring.TrialPeriodDays = 14
		form.Prices.Test[2].LineItems = []domain.PriceLineItem{
			{Label: "Setup fee", UnitAmount: 5000},
		}
		pc, err := NewContext(form, Request{PriceID: "price_monthly", IsCoveringFees: true})
		require.NoError(t, err)

		lines := SubscriptionFeeRecovery(pc)
		require.NotNil(t, lines)
		// The recurring fee line trials too, so the whole setup-fee
		// surcharge must ride the first invoice as a one-off.
		assert.Equal(t, int64(180), lines.Today)
		assert.Equal(t, int64(180), lines.OneTime)
		assert.Equal(t, int64(106), lines.Recurring)
	})

	t.Run("nil when not covering fees", func(t *testing.T) {
		pc, err := NewContext(testForm(), Request{PriceID: "price_monthly"})
		require.NoError(t, err)
		assert.Nil(t, SubscriptionFeeRecovery(pc))
	})
}

func TestApplySubscriptionFeeRecovery(t *testing.T) {
	form := testForm()
	form.Prices.Test[2].LineItems = []domain.PriceLineItem{
		{Label: "Setup fee", UnitAmount: 5000},
	}
	pc, err := NewContext(form, Request{PriceID: "price_monthly", IsCoveringFees: true})
	require.NoError(t, err)

	gateway := billing.NewMockGateway()
	calc := NewCalculator(gateway, nil, nil)

	params := &stripe.SubscriptionParams{}
	require.NoError(t, calc.ApplySubscriptionFeeRecovery(context.Background(), pc, params))

	// Recurring fee line joins the subscription items, the one-time
	// difference rides the first invoice.
	require.Len(t, params.Items, 1)
	require.Len(t, params.AddInvoiceItems, 1)
	assert.Equal(t, "106", params.Metadata[MetadataKeyFeeRecovery])

	// Both created prices carry the role marker.
	require.NotNil(t, gateway.LastPriceParams)
	assert.Equal(t, LineRoleFeeRecovery, gateway.LastPriceParams.Metadata[MetadataKeyLineRole])
}
