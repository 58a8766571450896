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

func TestFixedTaxAmounts(t *testing.T) {
	tests := []struct {
		name          string
		rates         []domain.TaxRate
		amount        int64
		wantInclusive int64
		wantExclusive int64
	}{
		{
			name:   "no rates",
			amount: 1000,
		},
		{
			name: "single exclusive",
			rates: []domain.TaxRate{
				{ID: "txr_1", Percentage: 10},
			},
			amount:        1000,
			wantExclusive: 100,
		},
		{
			name: "single inclusive",
			rates: []domain.TaxRate{
				{ID: "txr_1", Percentage: 10, Inclusive: true},
			},
			amount:        1000,
			wantInclusive: 100,
		},
		{
			name: "inclusive removed before exclusive applies",
			rates: []domain.TaxRate{
				{ID: "txr_1", Percentage: 10, Inclusive: true},
				{ID: "txr_2", Percentage: 5},
			},
			amount:        1100,
			wantInclusive: 110,
			wantExclusive: 50,
		},
		{
			name: "rounds half up",
			rates: []domain.TaxRate{
				{ID: "txr_1", Percentage: 7.25},
			},
			amount:        999,
			wantExclusive: 72,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inclusive, exclusive := fixedTaxAmounts(tt.rates, tt.amount)
			assert.Equal(t, tt.wantInclusive, inclusive)
			assert.Equal(t, tt.wantExclusive, exclusive)
		})
	}
}

func TestTaxAmounts(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		pc, err := NewContext(testForm(), Request{PriceID: "price_basic"})
		require.NoError(t, err)

		calc := NewCalculator(billing.NewMockGateway(), nil, nil)
		inclusive, exclusive, err := calc.TaxAmounts(ctx, pc, 1000)
		require.NoError(t, err)
		assert.Zero(t, inclusive)
		assert.Zero(t, exclusive)
	})

	t.Run("fixed global", func(t *testing.T) {
		form := testForm()
		form.TaxStatus = domain.TaxStatusFixedGlobal
		form.TaxRates = []domain.TaxRate{{ID: "txr_1", Percentage: 10}}
		pc, err := NewContext(form, Request{PriceID: "price_basic"})
		require.NoError(t, err)

		calc := NewCalculator(billing.NewMockGateway(), nil, nil)
		inclusive, exclusive, err := calc.TaxAmounts(ctx, pc, 1000)
		require.NoError(t, err)
		assert.Zero(t, inclusive)
		assert.Equal(t, int64(100), exclusive)
	})

	t.Run("automatic exclusive sums calculation line items", func(t *testing.T) {
		form := testForm()
		form.TaxStatus = domain.TaxStatusAutomatic
		form.TaxBehavior = domain.TaxBehaviorExclusive
		pc, err := NewContext(form, Request{
			PriceID:          "price_basic",
			TaxCalculationID: "taxcalc_1",
		})
		require.NoError(t, err)

		gateway := billing.NewMockGateway()
		gateway.TaxLineItems["taxcalc_1"] = []*stripe.TaxCalculationLineItem{
			{AmountTax: 83},
			{AmountTax: 17},
		}

		calc := NewCalculator(gateway, nil, nil)
		inclusive, exclusive, err := calc.TaxAmounts(ctx, pc, 1000)
		require.NoError(t, err)
		assert.Zero(t, inclusive)
		assert.Equal(t, int64(100), exclusive)
	})

	t.Run("automatic inclusive embeds tax", func(t *testing.T) {
		form := testForm()
		form.TaxStatus = domain.TaxStatusAutomatic
		form.TaxBehavior = domain.TaxBehaviorInclusive
		pc, err := NewContext(form, Request{
			PriceID:          "price_basic",
			TaxCalculationID: "taxcalc_1",
		})
		require.NoError(t, err)

		gateway := billing.NewMockGateway()
		gateway.TaxLineItems["taxcalc_1"] = []*stripe.TaxCalculationLineItem{
			{AmountTax: 91},
		}

		calc := NewCalculator(gateway, nil, nil)
		inclusive, exclusive, err := calc.TaxAmounts(ctx, pc, 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(91), inclusive)
		assert.Zero(t, exclusive)
	})

	t.Run("automatic without calculation is zero", func(t *testing.T) {
		form := testForm()
		form.TaxStatus = domain.TaxStatusAutomatic
		pc, err := NewContext(form, Request{PriceID: "price_basic"})
		require.NoError(t, err)

		calc := NewCalculator(billing.NewMockGateway(), nil, nil)
		inclusive, exclusive, err := calc.TaxAmounts(ctx, pc, 1000)
		require.NoError(t, err)
		assert.Zero(t, inclusive)
		assert.Zero(t, exclusive)
	})
}

func TestTaxRateIDs(t *testing.T) {
	form := testForm()
	form.TaxStatus = domain.TaxStatusFixedGlobal
	form.TaxRates = []domain.TaxRate{
		{ID: "txr_1", Percentage: 10},
		{ID: "txr_2", Percentage: 5, Inclusive: true},
	}
	assert.Equal(t, []string{"txr_1", "txr_2"}, TaxRateIDs(form))

	form.TaxStatus = domain.TaxStatusAutomatic
	assert.Nil(t, TaxRateIDs(form))

	form.TaxStatus = domain.TaxStatusFixedGlobal
	form.TaxRates = nil
	assert.Nil(t, TaxRateIDs(form))
}
