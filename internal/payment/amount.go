package payment

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v79"

	"github.com/fernwood/payform/internal/billing"
	"github.com/fernwood/payform/internal/domain"
)

// Stripe metadata limits.
const (
	metadataMaxKeyLength   = 40
	metadataMaxValueLength = 500
)

// Calculator derives charge amounts for a payment Context. Discounts and
// automatic tax require Stripe reads, so the Calculator carries the gateway.
type Calculator struct {
	gateway billing.Gateway
	forms   domain.FormRepository
	logger  *slog.Logger
}

// NewCalculator wires a pricing calculator.
func NewCalculator(gateway billing.Gateway, forms domain.FormRepository, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		gateway: gateway,
		forms:   forms,
		logger:  logger.With("component", "payment"),
	}
}

// Breakdown is the fully resolved amount composition of one request. All
// amounts are in the currency's minor unit.
type Breakdown struct {
	UnitAmount  int64
	Quantity    int64
	Subtotal    int64
	FeeRecovery int64
	Discount    int64

	// TaxInclusive is tax already embedded in the amount (fixed inclusive
	// rates); TaxExclusive is tax added on top.
	TaxInclusive int64
	TaxExclusive int64

	Total int64

	// Coupon is set when a coupon code was applied.
	Coupon *CouponData
}

// ComputeBreakdown runs the pricing pipeline in order: subtotal, fee
// recovery, discount, tax. Fee recovery applies before the discount so a
// percentage coupon covers the surcharge too; exclusive tax applies last,
// on the discounted amount.
func (c *Calculator) ComputeBreakdown(ctx context.Context, pc *Context) (*Breakdown, error) {
	const op = "payment.breakdown"

	b := &Breakdown{
		UnitAmount: pc.UnitAmount(),
		Quantity:   pc.Req.Quantity,
	}
	b.Subtotal = b.UnitAmount * b.Quantity
	b.FeeRecovery = FeeRecoveryUnitAmount(pc, b.Subtotal)

	amount := b.Subtotal + b.FeeRecovery

	if pc.Req.CouponCode != "" {
		coupon, err := c.CouponData(ctx, pc, pc.Req.CouponCode, amount)
		if err != nil {
			return nil, err
		}
		b.Coupon = coupon
		b.Discount = coupon.DiscountAmount
		amount -= b.Discount
	}

	inclusive, exclusive, err := c.TaxAmounts(ctx, pc, amount)
	if err != nil {
		return nil, err
	}
	b.TaxInclusive = inclusive
	b.TaxExclusive = exclusive
	amount += exclusive

	if amount < 0 {
		return nil, domain.Errorf(domain.EINTERNAL, op, "computed a negative charge amount: %d", amount)
	}
	b.Total = amount

	return b, nil
}

// TotalAmount is the final charge amount for the request.
func (c *Calculator) TotalAmount(ctx context.Context, pc *Context) (int64, error) {
	b, err := c.ComputeBreakdown(ctx, pc)
	if err != nil {
		return 0, err
	}
	return b.Total, nil
}

// Metadata builds the metadata map stamped on created Stripe objects: the
// form link, submitted custom-field values, and the amount composition.
// Keys and values are clamped to Stripe's limits.
func Metadata(pc *Context, b *Breakdown) map[string]string {
	meta := map[string]string{
		MetadataKeyFormID: pc.Form.ID,
	}

	for _, field := range pc.Form.CustomFields {
		value, ok := pc.Req.FormValues[field.ID]
		if !ok || value == "" {
			continue
		}
		key := field.Label
		if key == "" {
			key = field.ID
		}
		meta[key] = value
	}

	if b != nil {
		meta[MetadataKeyFeeRecovery] = strconv.FormatInt(b.FeeRecovery, 10)
		if b.Coupon != nil {
			meta["payform_coupon"] = b.Coupon.ID
		}
		if b.TaxInclusive > 0 {
			meta["payform_tax_amount_inclusive"] = strconv.FormatInt(b.TaxInclusive, 10)
		}
		if b.TaxExclusive > 0 {
			meta["payform_tax_amount_exclusive"] = strconv.FormatInt(b.TaxExclusive, 10)
		}
	}

	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[truncateMetadata(k, metadataMaxKeyLength)] = truncateMetadata(v, metadataMaxValueLength)
	}
	return out
}

// truncateMetadata strips control characters and clamps to max runes.
func truncateMetadata(s string, max int) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}

// PaymentMethodTypes resolves the payment_method_types argument: methods
// enabled on the form, filtered to those supporting the price currency and,
// for recurring requests, those supporting recurring billing. Link rides
// along whenever card is present and the form exposes an email field.
func PaymentMethodTypes(pc *Context) []string {
	recurring := pc.IsRecurring()
	currency := pc.Currency()

	var types []string
	hasCard := false
	for _, method := range pc.Form.PaymentMethods {
		if !method.SupportsCurrency(currency) {
			continue
		}
		if recurring && !method.Recurring {
			continue
		}
		st := method.StripeType()
		if st == "card" {
			hasCard = true
		}
		types = append(types, st)
	}

	if hasCard && pc.Form.EmailLinkEnabled() && !contains(types, "link") {
		types = append(types, "link")
	}
	return types
}

// PaymentMethodOptions builds per-method options for a PaymentIntent:
// setup_future_usage off_session on one-time payments (recurring payments
// attach the method through the subscription instead), and instant
// verification for US bank accounts.
func PaymentMethodOptions(pc *Context) *stripe.PaymentIntentPaymentMethodOptionsParams {
	opts := &stripe.PaymentIntentPaymentMethodOptionsParams{}
	futureUsage := !pc.IsRecurring()

	for _, t := range PaymentMethodTypes(pc) {
		switch t {
		case "card":
			if futureUsage {
				opts.Card = &stripe.PaymentIntentPaymentMethodOptionsCardParams{
					SetupFutureUsage: stripe.String("off_session"),
				}
			}
		case "us_bank_account":
			usBank := &stripe.PaymentIntentPaymentMethodOptionsUSBankAccountParams{
				VerificationMethod: stripe.String("instant"),
			}
			if futureUsage {
				usBank.SetupFutureUsage = stripe.String("off_session")
			}
			opts.USBankAccount = usBank
		case "sepa_debit":
			if futureUsage {
				opts.SEPADebit = &stripe.PaymentIntentPaymentMethodOptionsSEPADebitParams{
					SetupFutureUsage: stripe.String("off_session"),
				}
			}
		case "link":
			if futureUsage {
				opts.Link = &stripe.PaymentIntentPaymentMethodOptionsLinkParams{
					SetupFutureUsage: stripe.String("off_session"),
				}
			}
		}
	}
	return opts
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
