package payment

import (
	"context"
	"math"
	"strconv"

	stripe "github.com/stripe/stripe-go/v79"
)

// FeeRecoveryUnitAmount returns the surcharge that makes the merchant whole
// on processing fees for the given amount, grossed up so the fee on the
// surcharge itself is covered:
//
//	fee = round((amount + fixed) / (1 - percent/100)) - amount
//
// Returns 0 when fee recovery is off for this request: not forced by the
// form and not opted into, or not configured on the selected method.
func FeeRecoveryUnitAmount(pc *Context, amount int64) int64 {
	if !pc.Form.FeeRecoveryForced && !pc.Req.IsCoveringFees {
		return 0
	}

	method := pc.Method()
	if method == nil || !method.FeeRecovery.Enabled {
		return 0
	}
	return grossUp(amount, method.FeeRecovery.Percent, method.FeeRecovery.Fixed)
}

func grossUp(amount int64, percent float64, fixed int64) int64 {
	if percent >= 100 {
		return 0
	}
	gross := (float64(amount) + float64(fixed)) / (1 - percent/100)
	return int64(math.Round(gross)) - amount
}

// FeeRecoveryLines is the fee recovery composition of a subscription: the
// recurring surcharge billed every cycle, and a one-time component when the
// first invoice differs from a plain cycle (setup fees, or a trial that
// zeroes the recurring portion).
type FeeRecoveryLines struct {
	// Today is the surcharge on the first invoice's total.
	Today int64
	// Recurring is the surcharge billed on every renewal.
	Recurring int64
	// OneTime is the part of Today not covered by the recurring fee line,
	// billed as a one-off invoice item alongside the first invoice.
	OneTime int64
}

// SubscriptionFeeRecovery splits fee recovery for a recurring request into
// its recurring and one-time components. Returns nil when fee recovery is
// off for this request.
func SubscriptionFeeRecovery(pc *Context) *FeeRecoveryLines {
	if !pc.Form.FeeRecoveryForced && !pc.Req.IsCoveringFees {
		return nil
	}

	method := pc.Method()
	if method == nil || !method.FeeRecovery.Enabled {
		return nil
	}

	recurringBase := pc.Subtotal()
	todayBase := recurringBase
	if pc.Price.HasTrial() {
		todayBase = 0
	}
	todayBase += pc.Price.LineItemAmount()

	lines := &FeeRecoveryLines{
		Recurring: grossUp(recurringBase, method.FeeRecovery.Percent, method.FeeRecovery.Fixed),
	}
	if todayBase > 0 {
		lines.Today = grossUp(todayBase, method.FeeRecovery.Percent, method.FeeRecovery.Fixed)
	}
	if pc.Price.HasTrial() {
		// The recurring fee line trials alongside the subscription item, so
		// the whole first-invoice surcharge bills as a one-off.
		lines.OneTime = lines.Today
	} else if diff := lines.Today - lines.Recurring; diff > 0 {
		lines.OneTime = diff
	}
	return lines
}

// ApplySubscriptionFeeRecovery adds fee recovery line items to subscription
// params. Each line is backed by a Price created with a role marker in its
// metadata so later invoice reconstruction can identify fee lines without
// guessing from amounts. The recurring surcharge is also recorded in the
// subscription metadata.
func (c *Calculator) ApplySubscriptionFeeRecovery(ctx context.Context, pc *Context, params *stripe.SubscriptionParams) error {
	lines := SubscriptionFeeRecovery(pc)
	if lines == nil || pc.Price.Recurring == nil {
		return nil
	}

	if params.Metadata == nil {
		params.Metadata = map[string]string{}
	}
	params.Metadata[MetadataKeyFeeRecovery] = strconv.FormatInt(lines.Recurring, 10)

	if lines.Recurring > 0 {
		priceParams := &stripe.PriceParams{
			Currency:   stripe.String(pc.Currency()),
			UnitAmount: stripe.Int64(lines.Recurring),
			Product:    stripe.String(pc.Form.ProductID),
			Nickname:   stripe.String("Processing fee recovery"),
			Recurring: &stripe.PriceRecurringParams{
				Interval:      stripe.String(pc.Price.Recurring.Interval),
				IntervalCount: stripe.Int64(pc.Price.Recurring.IntervalCount),
			},
			Metadata: map[string]string{
				MetadataKeyLineRole: LineRoleFeeRecovery,
			},
		}
		price, err := c.gateway.CreatePrice(ctx, priceParams)
		if err != nil {
			return err
		}
		params.Items = append(params.Items, &stripe.SubscriptionItemsParams{
			Price:    stripe.String(price.ID),
			Quantity: stripe.Int64(1),
		})
	}

	if lines.OneTime > 0 {
		priceParams := &stripe.PriceParams{
			Currency:   stripe.String(pc.Currency()),
			UnitAmount: stripe.Int64(lines.OneTime),
			Product:    stripe.String(pc.Form.ProductID),
			Nickname:   stripe.String("Processing fee recovery (one time)"),
			Metadata: map[string]string{
				MetadataKeyLineRole: LineRoleFeeRecovery,
			},
		}
		price, err := c.gateway.CreatePrice(ctx, priceParams)
		if err != nil {
			return err
		}
		params.AddInvoiceItems = append(params.AddInvoiceItems, &stripe.SubscriptionAddInvoiceItemParams{
			Price:    stripe.String(price.ID),
			Quantity: stripe.Int64(1),
		})
	}

	return nil
}
