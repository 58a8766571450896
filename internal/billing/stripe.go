package billing

import (
	"context"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// ObserveFunc records the latency of one Stripe API call, keyed by operation
// name. Wired to telemetry.Payment.StripeAPILatency in main.
type ObserveFunc func(op string, d time.Duration)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	client  *client.API
	logger  *slog.Logger
	observe ObserveFunc
}

// Compile-time check that StripeGateway implements Gateway.
var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway creates a Stripe-backed gateway. observe may be nil.
func NewStripeGateway(apiKey string, logger *slog.Logger, observe ObserveFunc) (*StripeGateway, error) {
	if apiKey == "" {
		return nil, ErrInvalidAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observe == nil {
		observe = func(string, time.Duration) {}
	}

	return &StripeGateway{
		client:  client.New(apiKey, nil),
		logger:  logger.With("component", "stripe"),
		observe: observe,
	}, nil
}

// timed logs and records latency for one API call.
func (g *StripeGateway) timed(op string) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		g.observe(op, d)
		g.logger.Debug("stripe call", "op", op, "duration", d)
	}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	defer g.timed("checkout_session.create")()
	params.Context = ctx
	session, err := g.client.CheckoutSessions.New(params)
	return session, wrapStripeError(err)
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	defer g.timed("customer.create")()
	params.Context = ctx
	customer, err := g.client.Customers.New(params)
	return customer, wrapStripeError(err)
}

func (g *StripeGateway) GetCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	defer g.timed("customer.get")()
	if params == nil {
		params = &stripe.CustomerParams{}
	}
	params.Context = ctx
	customer, err := g.client.Customers.Get(id, params)
	return customer, wrapStripeError(err)
}

func (g *StripeGateway) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	defer g.timed("customer.update")()
	params.Context = ctx
	customer, err := g.client.Customers.Update(id, params)
	return customer, wrapStripeError(err)
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	defer g.timed("payment_intent.create")()
	params.Context = ctx
	intent, err := g.client.PaymentIntents.New(params)
	return intent, wrapStripeError(err)
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	defer g.timed("payment_intent.get")()
	if params == nil {
		params = &stripe.PaymentIntentParams{}
	}
	params.Context = ctx
	intent, err := g.client.PaymentIntents.Get(id, params)
	return intent, wrapStripeError(err)
}

func (g *StripeGateway) UpdatePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	defer g.timed("payment_intent.update")()
	params.Context = ctx
	intent, err := g.client.PaymentIntents.Update(id, params)
	return intent, wrapStripeError(err)
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	defer g.timed("subscription.create")()
	params.Context = ctx
	sub, err := g.client.Subscriptions.New(params)
	return sub, wrapStripeError(err)
}

func (g *StripeGateway) GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	defer g.timed("subscription.get")()
	if params == nil {
		params = &stripe.SubscriptionParams{}
	}
	params.Context = ctx
	sub, err := g.client.Subscriptions.Get(id, params)
	return sub, wrapStripeError(err)
}

func (g *StripeGateway) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	defer g.timed("subscription.update")()
	params.Context = ctx
	sub, err := g.client.Subscriptions.Update(id, params)
	return sub, wrapStripeError(err)
}

func (g *StripeGateway) VoidInvoice(ctx context.Context, id string) (*stripe.Invoice, error) {
	defer g.timed("invoice.void")()
	params := &stripe.InvoiceVoidInvoiceParams{}
	params.Context = ctx
	inv, err := g.client.Invoices.VoidInvoice(id, params)
	return inv, wrapStripeError(err)
}

func (g *StripeGateway) GetCoupon(ctx context.Context, id string) (*stripe.Coupon, error) {
	defer g.timed("coupon.get")()
	params := &stripe.CouponParams{}
	params.Context = ctx
	coupon, err := g.client.Coupons.Get(id, params)
	return coupon, wrapStripeError(err)
}

func (g *StripeGateway) CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	defer g.timed("price.create")()
	params.Context = ctx
	price, err := g.client.Prices.New(params)
	return price, wrapStripeError(err)
}

func (g *StripeGateway) CreateTaxCalculation(ctx context.Context, params *stripe.TaxCalculationParams) (*stripe.TaxCalculation, error) {
	defer g.timed("tax_calculation.create")()
	params.Context = ctx
	calc, err := g.client.TaxCalculations.New(params)
	return calc, wrapStripeError(err)
}

func (g *StripeGateway) ListTaxCalculationLineItems(ctx context.Context, calculationID string) ([]*stripe.TaxCalculationLineItem, error) {
	defer g.timed("tax_calculation.list_line_items")()
	params := &stripe.TaxCalculationListLineItemsParams{
		Calculation: stripe.String(calculationID),
	}
	params.Context = ctx

	var items []*stripe.TaxCalculationLineItem
	it := g.client.TaxCalculations.ListLineItems(params)
	for it.Next() {
		items = append(items, it.TaxCalculationLineItem())
	}
	if err := it.Err(); err != nil {
		return nil, wrapStripeError(err)
	}
	return items, nil
}

func (g *StripeGateway) GetSetupIntent(ctx context.Context, id string) (*stripe.SetupIntent, error) {
	defer g.timed("setup_intent.get")()
	params := &stripe.SetupIntentParams{}
	params.Context = ctx
	intent, err := g.client.SetupIntents.Get(id, params)
	return intent, wrapStripeError(err)
}
