package billing

import (
	"context"

	stripe "github.com/stripe/stripe-go/v79"
)

// Gateway is the seam between the payment pipeline and Stripe. Argument
// construction stays in the callers; implementations only execute the calls,
// attach the request context, and normalize errors. StripeGateway is the real
// implementation, MockGateway serves tests.
type Gateway interface {
	// CreateCheckoutSession creates a hosted Checkout Session.
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

	// CreateCustomer creates a Customer for embedded payment flows.
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)

	// GetCustomer retrieves a Customer; expand "discount.coupon" to read the
	// discount Stripe actually applied.
	GetCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error)

	// UpdateCustomer updates an existing Customer.
	UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error)

	// CreatePaymentIntent creates a one-time PaymentIntent.
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

	// GetPaymentIntent retrieves a PaymentIntent.
	GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

	// UpdatePaymentIntent updates an unconfirmed PaymentIntent.
	UpdatePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)

	// CreateSubscription creates a Subscription.
	CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error)

	// GetSubscription retrieves a Subscription.
	GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)

	// UpdateSubscription updates a Subscription.
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)

	// VoidInvoice voids an open invoice. Voiding the initial invoice of an
	// incomplete Subscription cancels the Subscription.
	VoidInvoice(ctx context.Context, id string) (*stripe.Invoice, error)

	// GetCoupon retrieves a Coupon.
	GetCoupon(ctx context.Context, id string) (*stripe.Coupon, error)

	// CreatePrice creates a Price; used for role-tagged fee recovery lines.
	CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error)

	// CreateTaxCalculation runs a Stripe Tax calculation.
	CreateTaxCalculation(ctx context.Context, params *stripe.TaxCalculationParams) (*stripe.TaxCalculation, error)

	// ListTaxCalculationLineItems pages through the line items of a
	// previously created tax calculation.
	ListTaxCalculationLineItems(ctx context.Context, calculationID string) ([]*stripe.TaxCalculationLineItem, error)

	// GetSetupIntent retrieves a SetupIntent.
	GetSetupIntent(ctx context.Context, id string) (*stripe.SetupIntent, error)
}
