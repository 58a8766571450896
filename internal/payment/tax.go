package payment

import (
	"context"
	"math"

	"github.com/fernwood/payform/internal/domain"
)

// TaxAmounts resolves tax for the given amount under the form's tax mode.
// The first return is tax already embedded in the amount, the second is tax
// to add on top.
//
// Fixed rates: inclusive rates are backed out of the amount first, then
// exclusive rates apply to the remainder. Automatic tax reads a previously
// created Stripe Tax calculation; inclusive behavior embeds the result,
// exclusive adds it.
func (c *Calculator) TaxAmounts(ctx context.Context, pc *Context, amount int64) (inclusive, exclusive int64, err error) {
	switch pc.Form.TaxStatus {
	case domain.TaxStatusNone:
		return 0, 0, nil

	case domain.TaxStatusAutomatic:
		if pc.Req.TaxCalculationID == "" {
			return 0, 0, nil
		}
		items, err := c.gateway.ListTaxCalculationLineItems(ctx, pc.Req.TaxCalculationID)
		if err != nil {
			return 0, 0, err
		}
		var total int64
		for _, item := range items {
			total += item.AmountTax
		}
		if pc.Form.TaxBehavior == domain.TaxBehaviorExclusive {
			return 0, total, nil
		}
		return total, 0, nil

	default:
		// Fixed global rates; also the fallback for legacy forms with no
		// explicit tax status.
		incl, excl := fixedTaxAmounts(pc.Form.TaxRates, amount)
		return incl, excl, nil
	}
}

// fixedTaxAmounts applies the form's fixed rates to an amount: inclusive
// rates are removed from the amount before exclusive rates are computed on
// what remains.
func fixedTaxAmounts(rates []domain.TaxRate, amount int64) (inclusive, exclusive int64) {
	for _, r := range rates {
		if r.Inclusive {
			inclusive += roundTax(amount, r.Percentage)
		}
	}

	base := amount - inclusive
	for _, r := range rates {
		if !r.Inclusive {
			exclusive += roundTax(base, r.Percentage)
		}
	}
	return inclusive, exclusive
}

func roundTax(amount int64, percentage float64) int64 {
	return int64(math.Round(float64(amount) * percentage / 100))
}

// TaxRateIDs returns the fixed tax rate IDs to stamp on line items, or nil
// when the form doesn't use fixed rates. Stripe applies the rates itself;
// the IDs only need forwarding.
func TaxRateIDs(form *domain.PaymentForm) []string {
	if form.TaxStatus != domain.TaxStatusFixedGlobal && form.TaxStatus != "" {
		return nil
	}
	if len(form.TaxRates) == 0 {
		return nil
	}
	ids := make([]string, 0, len(form.TaxRates))
	for _, r := range form.TaxRates {
		ids = append(ids, r.ID)
	}
	return ids
}

// AutomaticTaxEnabled reports whether checkout should let Stripe Tax compute
// tax on its own.
func AutomaticTaxEnabled(form *domain.PaymentForm) bool {
	return form.TaxStatus == domain.TaxStatusAutomatic
}
