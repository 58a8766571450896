package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v79"
)

// MockGateway is an in-memory Gateway for testing. Default behavior
// synthesizes plausible Stripe objects from the given params; individual
// calls can be overridden via the Func fields. All params are recorded for
// assertions.
type MockGateway struct {
	CreateCheckoutSessionFunc func(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreateCustomerFunc        func(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	GetCustomerFunc           func(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error)
	CreatePaymentIntentFunc   func(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntentFunc      func(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	UpdatePaymentIntentFunc   func(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CreateSubscriptionFunc    func(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	GetSubscriptionFunc       func(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	UpdateSubscriptionFunc    func(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	VoidInvoiceFunc           func(ctx context.Context, id string) (*stripe.Invoice, error)
	GetCouponFunc             func(ctx context.Context, id string) (*stripe.Coupon, error)
	CreatePriceFunc           func(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error)
	CreateTaxCalculationFunc  func(ctx context.Context, params *stripe.TaxCalculationParams) (*stripe.TaxCalculation, error)
	GetSetupIntentFunc        func(ctx context.Context, id string) (*stripe.SetupIntent, error)

	ListTaxCalculationLineItemsFunc func(ctx context.Context, calculationID string) ([]*stripe.TaxCalculationLineItem, error)

	// Canned objects returned by Get* when no Func is set.
	Customers     map[string]*stripe.Customer
	Intents       map[string]*stripe.PaymentIntent
	Subscriptions map[string]*stripe.Subscription
	Coupons       map[string]*stripe.Coupon
	SetupIntents  map[string]*stripe.SetupIntent

	// TaxLineItems holds canned calculation line items keyed by
	// calculation ID.
	TaxLineItems map[string][]*stripe.TaxCalculationLineItem

	// Last params per call type, for assertions.
	LastCheckoutSessionParams *stripe.CheckoutSessionParams
	LastCustomerParams        *stripe.CustomerParams
	LastPaymentIntentParams   *stripe.PaymentIntentParams
	LastSubscriptionParams    *stripe.SubscriptionParams
	LastPriceParams           *stripe.PriceParams
	LastTaxCalculationParams  *stripe.TaxCalculationParams

	// VoidedInvoices records the IDs passed to VoidInvoice.
	VoidedInvoices []string

	// CallLog tracks method calls in order for test assertions.
	CallLog []string
}

// Compile-time check that MockGateway implements Gateway.
var _ Gateway = (*MockGateway)(nil)

// NewMockGateway creates a mock gateway with empty stores.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Customers:     make(map[string]*stripe.Customer),
		Intents:       make(map[string]*stripe.PaymentIntent),
		Subscriptions: make(map[string]*stripe.Subscription),
		Coupons:       make(map[string]*stripe.Coupon),
		SetupIntents:  make(map[string]*stripe.SetupIntent),
		TaxLineItems:  make(map[string][]*stripe.TaxCalculationLineItem),
	}
}

func (m *MockGateway) log(format string, args ...interface{}) {
	m.CallLog = append(m.CallLog, fmt.Sprintf(format, args...))
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	m.log("CreateCheckoutSession")
	m.LastCheckoutSessionParams = params

	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, params)
	}

	id := "cs_test_" + uuid.NewString()
	return &stripe.CheckoutSession{
		ID:  id,
		URL: "https://checkout.stripe.com/c/pay/" + id,
	}, nil
}

func (m *MockGateway) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	m.log("CreateCustomer")
	m.LastCustomerParams = params

	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, params)
	}

	customer := &stripe.Customer{ID: "cus_" + uuid.NewString()}
	if params.Email != nil {
		customer.Email = *params.Email
	}
	m.Customers[customer.ID] = customer
	return customer, nil
}

func (m *MockGateway) GetCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	m.log("GetCustomer(%s)", id)

	if m.GetCustomerFunc != nil {
		return m.GetCustomerFunc(ctx, id, params)
	}

	customer, ok := m.Customers[id]
	if !ok {
		return nil, &StripeError{Message: "no such customer", Code: string(stripe.ErrorCodeResourceMissing), StatusCode: 404}
	}
	return customer, nil
}

func (m *MockGateway) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	m.log("UpdateCustomer(%s)", id)
	m.LastCustomerParams = params

	if customer, ok := m.Customers[id]; ok {
		return customer, nil
	}
	return &stripe.Customer{ID: id}, nil
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	m.log("CreatePaymentIntent")
	m.LastPaymentIntentParams = params

	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, params)
	}

	id := "pi_" + uuid.NewString()
	intent := &stripe.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString(),
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		Metadata:     params.Metadata,
	}
	if params.Amount != nil {
		intent.Amount = *params.Amount
	}
	if params.Currency != nil {
		intent.Currency = stripe.Currency(*params.Currency)
	}
	if params.Customer != nil {
		intent.Customer = &stripe.Customer{ID: *params.Customer}
	}
	m.Intents[intent.ID] = intent
	return intent, nil
}

func (m *MockGateway) GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	m.log("GetPaymentIntent(%s)", id)

	if m.GetPaymentIntentFunc != nil {
		return m.GetPaymentIntentFunc(ctx, id, params)
	}

	intent, ok := m.Intents[id]
	if !ok {
		return nil, &StripeError{Message: "no such payment_intent", Code: string(stripe.ErrorCodeResourceMissing), StatusCode: 404}
	}
	return intent, nil
}

func (m *MockGateway) UpdatePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	m.log("UpdatePaymentIntent(%s)", id)
	m.LastPaymentIntentParams = params

	if m.UpdatePaymentIntentFunc != nil {
		return m.UpdatePaymentIntentFunc(ctx, id, params)
	}

	intent, ok := m.Intents[id]
	if !ok {
		return nil, &StripeError{Message: "no such payment_intent", Code: string(stripe.ErrorCodeResourceMissing), StatusCode: 404}
	}
	if params.Amount != nil {
		intent.Amount = *params.Amount
	}
	for k, v := range params.Metadata {
		if intent.Metadata == nil {
			intent.Metadata = map[string]string{}
		}
		intent.Metadata[k] = v
	}
	return intent, nil
}

func (m *MockGateway) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	m.log("CreateSubscription")
	m.LastSubscriptionParams = params

	if m.CreateSubscriptionFunc != nil {
		return m.CreateSubscriptionFunc(ctx, params)
	}

	id := "sub_" + uuid.NewString()
	sub := &stripe.Subscription{
		ID:       id,
		Status:   stripe.SubscriptionStatusIncomplete,
		Metadata: params.Metadata,
	}
	if params.Customer != nil {
		sub.Customer = &stripe.Customer{ID: *params.Customer}
	}
	if params.TrialPeriodDays != nil && *params.TrialPeriodDays > 0 {
		sub.PendingSetupIntent = &stripe.SetupIntent{
			ID:           "seti_" + uuid.NewString(),
			ClientSecret: "seti_secret_" + uuid.NewString(),
		}
	} else {
		piID := "pi_" + uuid.NewString()
		sub.LatestInvoice = &stripe.Invoice{
			ID: "in_" + uuid.NewString(),
			PaymentIntent: &stripe.PaymentIntent{
				ID:           piID,
				ClientSecret: piID + "_secret_" + uuid.NewString(),
			},
		}
	}
	m.Subscriptions[sub.ID] = sub
	return sub, nil
}

func (m *MockGateway) GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	m.log("GetSubscription(%s)", id)

	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, id, params)
	}

	sub, ok := m.Subscriptions[id]
	if !ok {
		return nil, &StripeError{Message: "no such subscription", Code: string(stripe.ErrorCodeResourceMissing), StatusCode: 404}
	}
	return sub, nil
}

func (m *MockGateway) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	m.log("UpdateSubscription(%s)", id)
	m.LastSubscriptionParams = params

	if m.UpdateSubscriptionFunc != nil {
		return m.UpdateSubscriptionFunc(ctx, id, params)
	}

	sub, ok := m.Subscriptions[id]
	if !ok {
		return nil, &StripeError{Message: "no such subscription", Code: string(stripe.ErrorCodeResourceMissing), StatusCode: 404}
	}
	return sub, nil
}

func (m *MockGateway) VoidInvoice(ctx context.Context, id string) (*stripe.Invoice, error) {
	m.log("VoidInvoice(%s)", id)
	m.VoidedInvoices = append(m.VoidedInvoices, id)

	if m.VoidInvoiceFunc != nil {
		return m.VoidInvoiceFunc(ctx, id)
	}
	return &stripe.Invoice{ID: id, Status: stripe.InvoiceStatusVoid}, nil
}

func (m *MockGateway) GetCoupon(ctx context.Context, id string) (*stripe.Coupon, error) {
	m.log("GetCoupon(%s)", id)

	if m.GetCouponFunc != nil {
		return m.GetCouponFunc(ctx, id)
	}

	coupon, ok := m.Coupons[id]
	if !ok {
		return nil, &StripeError{Message: "no such coupon", Code: string(stripe.ErrorCodeResourceMissing), StatusCode: 404}
	}
	return coupon, nil
}

func (m *MockGateway) CreatePrice(ctx context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	m.log("CreatePrice")
	m.LastPriceParams = params

	if m.CreatePriceFunc != nil {
		return m.CreatePriceFunc(ctx, params)
	}

	price := &stripe.Price{
		ID:       "price_" + uuid.NewString(),
		Metadata: params.Metadata,
		Type:     stripe.PriceTypeOneTime,
	}
	if params.UnitAmount != nil {
		price.UnitAmount = *params.UnitAmount
	}
	if params.Currency != nil {
		price.Currency = stripe.Currency(*params.Currency)
	}
	if params.Recurring != nil {
		price.Type = stripe.PriceTypeRecurring
		price.Recurring = &stripe.PriceRecurring{}
		if params.Recurring.Interval != nil {
			price.Recurring.Interval = stripe.PriceRecurringInterval(*params.Recurring.Interval)
		}
		if params.Recurring.IntervalCount != nil {
			price.Recurring.IntervalCount = *params.Recurring.IntervalCount
		}
	}
	return price, nil
}

func (m *MockGateway) CreateTaxCalculation(ctx context.Context, params *stripe.TaxCalculationParams) (*stripe.TaxCalculation, error) {
	m.log("CreateTaxCalculation")
	m.LastTaxCalculationParams = params

	if m.CreateTaxCalculationFunc != nil {
		return m.CreateTaxCalculationFunc(ctx, params)
	}
	return &stripe.TaxCalculation{ID: "taxcalc_" + uuid.NewString()}, nil
}

func (m *MockGateway) ListTaxCalculationLineItems(ctx context.Context, calculationID string) ([]*stripe.TaxCalculationLineItem, error) {
	m.log("ListTaxCalculationLineItems(%s)", calculationID)

	if m.ListTaxCalculationLineItemsFunc != nil {
		return m.ListTaxCalculationLineItemsFunc(ctx, calculationID)
	}

	items, ok := m.TaxLineItems[calculationID]
	if !ok {
		return nil, &StripeError{Message: "no such tax calculation", Code: string(stripe.ErrorCodeResourceMissing), StatusCode: 404}
	}
	return items, nil
}

func (m *MockGateway) GetSetupIntent(ctx context.Context, id string) (*stripe.SetupIntent, error) {
	m.log("GetSetupIntent(%s)", id)

	if m.GetSetupIntentFunc != nil {
		return m.GetSetupIntentFunc(ctx, id)
	}

	intent, ok := m.SetupIntents[id]
	if !ok {
		return nil, &StripeError{Message: "no such setup_intent", Code: string(stripe.ErrorCodeResourceMissing), StatusCode: 404}
	}
	return intent, nil
}
