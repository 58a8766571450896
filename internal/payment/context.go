// Package payment implements the pricing pipeline: a validated request plus
// its resolved form and price option are carried through an explicit
// request-scoped Context, from which unit amounts, discounts, tax, fee
// recovery surcharges, metadata and payment method arguments are derived.
package payment

import (
	"github.com/fernwood/payform/internal/domain"
)

// Metadata keys attached to Stripe objects created by this service.
const (
	// MetadataKeyFeeRecovery records the recurring fee-recovery amount on
	// PaymentIntents and Subscriptions so a later payment-method change can
	// be reconciled against it.
	MetadataKeyFeeRecovery = "payform_fee_recovery_unit_amount"

	// MetadataKeySubscriptionKey is the capability token authorizing
	// payment-method updates on a Subscription.
	MetadataKeySubscriptionKey = "payform_subscription_key"

	// MetadataKeyLineRole tags Prices created for synthetic line items so
	// invoice reconstruction can identify them without amount matching.
	MetadataKeyLineRole = "payform_line_role"

	// MetadataKeyFormID links created Stripe objects back to the form.
	MetadataKeyFormID = "payform_form_id"

	// LineRoleFeeRecovery marks a fee-recovery line item price.
	LineRoleFeeRecovery = "fee_recovery"
)

// Address is a customer billing or shipping address.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// Request holds the normalized values of one payment request after schema
// validation. Zero values mean "not supplied".
type Request struct {
	FormID   string
	PriceID  string
	Quantity int64

	// CustomAmount is the customer-entered amount for prices that allow it.
	CustomAmount int64

	CouponCode string

	// PaymentMethodType is the Stripe payment_method_type the customer
	// selected; defaults to "card".
	PaymentMethodType string

	// IsOptionallyRecurring is the customer's choice on a price with an
	// optional recurring toggle.
	IsOptionallyRecurring bool

	// IsCoveringFees is the customer's fee-recovery opt-in.
	IsCoveringFees bool

	// TaxCalculationID references a previously created Stripe Tax
	// calculation for automatic-tax forms.
	TaxCalculationID string

	// FormValues carries submitted custom-field values keyed by field ID.
	FormValues map[string]string

	Email string
	Phone string

	BillingAddress  *Address
	ShippingAddress *Address
}

// Context is the request-scoped view the pipeline computes against: the
// resolved form, the resolved price option, and the normalized request.
// It replaces any per-process caching; one Context lives exactly as long as
// the request that built it.
type Context struct {
	Form  *domain.PaymentForm
	Price *domain.PriceOption
	Req   Request
}

// NewContext resolves the request's price against the form and normalizes
// defaults. The form is expected to exist; an unknown price ID is a request
// error.
func NewContext(form *domain.PaymentForm, req Request) (*Context, error) {
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.PaymentMethodType == "" {
		req.PaymentMethodType = "card"
	}

	price := form.Price(req.PriceID)
	if price == nil {
		return nil, domain.Invalid("payment.context", "the selected price is no longer available")
	}
	if price.CanRecur && price.Recurring == nil && req.IsOptionallyRecurring {
		// A misconfigured optional toggle without a cadence to bill on.
		return nil, domain.Invalid("payment.context", "the selected price cannot bill on a schedule")
	}

	return &Context{
		Form:  form,
		Price: price,
		Req:   req,
	}, nil
}

// UnitAmount returns the per-unit charge amount: the customer-entered custom
// amount when the price has no Stripe-side definition, the defined amount
// otherwise.
func (c *Context) UnitAmount() int64 {
	if !c.Price.IsDefined() {
		return c.Req.CustomAmount
	}
	return c.Price.UnitAmount
}

// Subtotal is the unit amount across the requested quantity, before fee
// recovery, discounts and tax.
func (c *Context) Subtotal() int64 {
	return c.UnitAmount() * c.Req.Quantity
}

// IsRecurring resolves whether this request bills on a cadence. An optional
// recurring toggle follows the customer's choice; otherwise any recurring
// definition on the price decides.
func (c *Context) IsRecurring() bool {
	if c.Price.CanRecur {
		return c.Req.IsOptionallyRecurring
	}
	return c.Price.Recurring != nil
}

// Currency returns the settlement currency of the resolved price.
func (c *Context) Currency() string {
	return c.Price.Currency
}

// Method returns the form's configuration for the selected payment method,
// or nil when the method is not enabled on the form.
func (c *Context) Method() *domain.PaymentMethod {
	return c.Form.Method(c.Req.PaymentMethodType)
}
