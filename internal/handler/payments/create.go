package payments

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v79"

	"github.com/fernwood/payform/internal/domain"
	"github.com/fernwood/payform/internal/payment"
)

// createResponse is the body for a successful payment creation. Hosted
// checkout returns only the redirect URL; embedded flows return the object
// and the client secret Stripe.js confirms against.
type createResponse struct {
	Redirect     string `json:"redirect,omitempty"`
	ObjectID     string `json:"object_id,omitempty"`
	CustomerID   string `json:"customer_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	ReturnURL    string `json:"return_url,omitempty"`
}

// Create handles POST /api/payments. The CAPTCHA gate runs before any
// Stripe call; the form's display type selects between a hosted Checkout
// Session and an embedded PaymentIntent or Subscription.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.verifyCaptcha(ctx, req.CaptchaToken); err != nil {
		h.respondError(w, r, err)
		return
	}

	pc, err := h.resolveContext(ctx, &req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var (
		resp *createResponse
		kind string
	)
	switch {
	case pc.Form.DisplayType == domain.DisplayHostedCheckout:
		kind = "checkout_session"
		resp, err = h.createCheckoutSession(ctx, pc)
	case pc.IsRecurring():
		kind = "subscription"
		resp, err = h.createSubscription(ctx, pc, "")
	default:
		kind = "payment_intent"
		resp, err = h.createPaymentIntent(ctx, pc)
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.PaymentsFailed.WithLabelValues(kind, domain.ErrorCode(err)).Inc()
		}
		h.respondError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.PaymentsCreated.WithLabelValues(kind).Inc()
	}
	h.logger.Info("payment created",
		"kind", kind,
		"form_id", pc.Form.ID,
		"object_id", resp.ObjectID,
	)
	h.respond(w, http.StatusOK, resp)
}

// createCheckoutSession builds a hosted Checkout Session. The baseline
// configuration charges the resolved price; the advanced surface layers on
// fee recovery lines, fixed tax rates, automatic tax, discounts, and
// collection toggles.
func (h *Handler) createCheckoutSession(ctx context.Context, pc *payment.Context) (*createResponse, error) {
	form := pc.Form
	recurring := pc.IsRecurring()

	mode := stripe.CheckoutSessionModePayment
	if recurring {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(mode)),
		ClientReferenceID: stripe.String(form.ID),
		SuccessURL:        stripe.String(h.successURL(form)),
		CancelURL:         stripe.String(h.cancelURL(form)),
	}
	if pc.Req.Email != "" {
		params.CustomerEmail = stripe.String(pc.Req.Email)
	}

	params.LineItems = append(params.LineItems, h.checkoutLineItem(pc))

	meta := payment.Metadata(pc, nil)
	if recurring {
		subData := &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta}
		if pc.Price.HasTrial() {
			subData.TrialPeriodDays = stripe.Int64(pc.Price.Recurring.TrialPeriodDays)
		}
		if h.advanced && form.ApplicationFeePercent > 0 {
			subData.ApplicationFeePercent = stripe.Float64(form.ApplicationFeePercent)
		}
		params.SubscriptionData = subData
	} else {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta,
		}
	}

	if h.advanced {
		h.applyAdvancedCheckout(pc, params)
	}

	session, err := h.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}
	return &createResponse{Redirect: session.URL, ObjectID: session.ID}, nil
}

// checkoutLineItem builds the primary line item. Stripe-defined prices are
// referenced directly; custom amounts charge through price_data against the
// form's product.
func (h *Handler) checkoutLineItem(pc *payment.Context) *stripe.CheckoutSessionLineItemParams {
	item := &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(pc.Req.Quantity),
	}
	if h.advanced && pc.Form.AllowQuantity {
		item.AdjustableQuantity = &stripe.CheckoutSessionLineItemAdjustableQuantityParams{
			Enabled: stripe.Bool(true),
		}
	}

	if pc.Price.IsDefined() {
		item.Price = stripe.String(pc.Price.ID)
	} else {
		priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(pc.Currency()),
			UnitAmount: stripe.Int64(pc.UnitAmount()),
			Product:    stripe.String(pc.Form.ProductID),
		}
		if pc.IsRecurring() {
			priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval:      stripe.String(pc.Price.Recurring.Interval),
				IntervalCount: stripe.Int64(pc.Price.Recurring.IntervalCount),
			}
		}
		item.PriceData = priceData
	}

	if h.advanced {
		for _, id := range payment.TaxRateIDs(pc.Form) {
			item.TaxRates = append(item.TaxRates, stripe.String(id))
		}
	}
	return item
}

// applyAdvancedCheckout layers the configurable checkout surface onto the
// session params.
func (h *Handler) applyAdvancedCheckout(pc *payment.Context, params *stripe.CheckoutSessionParams) {
	form := pc.Form

	if form.CollectPhone {
		params.PhoneNumberCollection = &stripe.CheckoutSessionPhoneNumberCollectionParams{
			Enabled: stripe.Bool(true),
		}
	}
	if form.CollectTaxID {
		params.TaxIDCollection = &stripe.CheckoutSessionTaxIDCollectionParams{
			Enabled: stripe.Bool(true),
		}
	}
	if payment.AutomaticTaxEnabled(form) {
		params.AutomaticTax = &stripe.CheckoutSessionAutomaticTaxParams{
			Enabled: stripe.Bool(true),
		}
	}

	// A session cannot carry both an applied discount and the promotion
	// code field.
	if pc.Req.CouponCode != "" {
		params.Discounts = append(params.Discounts, &stripe.CheckoutSessionDiscountParams{
			Coupon: stripe.String(pc.Req.CouponCode),
		})
	} else if form.AllowPromotionCodes {
		params.AllowPromotionCodes = stripe.Bool(true)
	}

	// Fee recovery rides as its own line so the receipt itemizes it.
	if fee := payment.FeeRecoveryUnitAmount(pc, pc.Subtotal()); fee > 0 {
		feeData := &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(pc.Currency()),
			UnitAmount: stripe.Int64(fee),
			Product:    stripe.String(form.ProductID),
		}
		if pc.IsRecurring() {
			feeData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval:      stripe.String(pc.Price.Recurring.Interval),
				IntervalCount: stripe.Int64(pc.Price.Recurring.IntervalCount),
			}
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity:  stripe.Int64(1),
			PriceData: feeData,
		})
	}
}

// createPaymentIntent builds an embedded one-time payment: a Customer plus a
// PaymentIntent carrying the fully computed amount.
func (h *Handler) createPaymentIntent(ctx context.Context, pc *payment.Context) (*createResponse, error) {
	customer, err := h.createCustomer(ctx, pc, false)
	if err != nil {
		return nil, err
	}

	b, err := h.calc.ComputeBreakdown(ctx, pc)
	if err != nil {
		return nil, err
	}
	if h.metrics != nil {
		h.metrics.PaymentAmount.WithLabelValues("payment_intent", pc.Currency()).Observe(float64(b.Total))
		if b.FeeRecovery > 0 {
			h.metrics.FeeRecoveryAmount.WithLabelValues(pc.Currency()).Observe(float64(b.FeeRecovery))
		}
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(b.Total),
		Currency:    stripe.String(pc.Currency()),
		Customer:    stripe.String(customer.ID),
		Description: stripe.String(pc.Form.Title),
		Metadata:    payment.Metadata(pc, b),
	}
	for _, t := range payment.PaymentMethodTypes(pc) {
		params.PaymentMethodTypes = append(params.PaymentMethodTypes, stripe.String(t))
	}
	if h.advanced {
		params.PaymentMethodOptions = payment.PaymentMethodOptions(pc)
	}
	if pc.Req.Email != "" {
		params.ReceiptEmail = stripe.String(pc.Req.Email)
	}

	intent, err := h.gateway.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, err
	}

	return &createResponse{
		ObjectID:     intent.ID,
		CustomerID:   customer.ID,
		ClientSecret: intent.ClientSecret,
		ReturnURL:    h.returnURL(pc.Form, customer.ID),
	}, nil
}

// createSubscription builds an embedded recurring payment. customerID reuses
// an existing Customer (subscription replacement); empty creates one. The
// response secret comes from the pending SetupIntent during trials,
// otherwise from the first invoice's PaymentIntent.
func (h *Handler) createSubscription(ctx context.Context, pc *payment.Context, customerID string) (*createResponse, error) {
	const op = "payment.subscription.create"

	if customerID == "" {
		customer, err := h.createCustomer(ctx, pc, true)
		if err != nil {
			return nil, err
		}
		customerID = customer.ID
	}

	meta := payment.Metadata(pc, nil)
	meta[payment.MetadataKeySubscriptionKey] = uuid.NewString()

	params := &stripe.SubscriptionParams{
		Customer:        stripe.String(customerID),
		Metadata:        meta,
		PaymentBehavior: stripe.String("default_incomplete"),
		OffSession:      stripe.Bool(true),
	}
	params.AddExpand("latest_invoice.payment_intent")
	params.AddExpand("pending_setup_intent")

	params.Items = append(params.Items, h.subscriptionItem(pc))

	for _, li := range pc.Price.LineItems {
		params.AddInvoiceItems = append(params.AddInvoiceItems, &stripe.SubscriptionAddInvoiceItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.InvoiceItemPriceDataParams{
				Currency:   stripe.String(pc.Currency()),
				Product:    stripe.String(pc.Form.ProductID),
				UnitAmount: stripe.Int64(li.UnitAmount),
			},
		})
	}

	if pc.Price.HasTrial() {
		params.TrialPeriodDays = stripe.Int64(pc.Price.Recurring.TrialPeriodDays)
	}

	settings := &stripe.SubscriptionPaymentSettingsParams{
		SaveDefaultPaymentMethod: stripe.String("on_subscription"),
	}
	for _, t := range payment.PaymentMethodTypes(pc) {
		settings.PaymentMethodTypes = append(settings.PaymentMethodTypes, stripe.String(t))
	}
	params.PaymentSettings = settings

	if h.advanced {
		for _, id := range payment.TaxRateIDs(pc.Form) {
			params.DefaultTaxRates = append(params.DefaultTaxRates, stripe.String(id))
		}
		if payment.AutomaticTaxEnabled(pc.Form) {
			params.AutomaticTax = &stripe.SubscriptionAutomaticTaxParams{
				Enabled: stripe.Bool(true),
			}
		}
		if pc.Form.ApplicationFeePercent > 0 {
			params.ApplicationFeePercent = stripe.Float64(pc.Form.ApplicationFeePercent)
		}
		if err := h.calc.ApplySubscriptionFeeRecovery(ctx, pc, params); err != nil {
			return nil, err
		}
	}

	sub, err := h.gateway.CreateSubscription(ctx, params)
	if err != nil {
		return nil, err
	}

	resp := &createResponse{
		ObjectID:   sub.ID,
		CustomerID: customerID,
		ReturnURL:  h.returnURL(pc.Form, customerID),
	}
	switch {
	case sub.PendingSetupIntent != nil:
		resp.ClientSecret = sub.PendingSetupIntent.ClientSecret
	case sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil:
		resp.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	default:
		return nil, domain.Errorf(domain.EINTERNAL, op,
			"subscription %s has no confirmable intent", sub.ID)
	}

	if h.metrics != nil {
		amount := pc.Subtotal() + pc.Price.LineItemAmount()
		h.metrics.PaymentAmount.WithLabelValues("subscription", pc.Currency()).Observe(float64(amount))
	}
	return resp, nil
}

// subscriptionItem builds the primary subscription item. Stripe-defined
// recurring prices are referenced; everything else (custom amounts, optional
// recurring one-time prices) charges through price_data.
func (h *Handler) subscriptionItem(pc *payment.Context) *stripe.SubscriptionItemsParams {
	item := &stripe.SubscriptionItemsParams{
		Quantity: stripe.Int64(pc.Req.Quantity),
	}

	if pc.Price.IsDefined() && pc.Price.IsRecurring() {
		item.Price = stripe.String(pc.Price.ID)
		return item
	}
	if pc.Price.CanRecur && pc.Price.Recurring.PriceID != "" {
		item.Price = stripe.String(pc.Price.Recurring.PriceID)
		return item
	}

	item.PriceData = &stripe.SubscriptionItemPriceDataParams{
		Currency:   stripe.String(pc.Currency()),
		Product:    stripe.String(pc.Form.ProductID),
		UnitAmount: stripe.Int64(pc.UnitAmount()),
		Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
			Interval:      stripe.String(pc.Price.Recurring.Interval),
			IntervalCount: stripe.Int64(pc.Price.Recurring.IntervalCount),
		},
	}
	return item
}

// createCustomer creates the Customer an embedded payment confirms against.
// For recurring payments the request coupon attaches here so Stripe applies
// the discount to every eligible invoice.
func (h *Handler) createCustomer(ctx context.Context, pc *payment.Context, recurring bool) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			payment.MetadataKeyFormID: pc.Form.ID,
		},
	}
	if pc.Req.Email != "" {
		params.Email = stripe.String(pc.Req.Email)
	}
	if pc.Req.Phone != "" {
		params.Phone = stripe.String(pc.Req.Phone)
	}
	if addr := pc.Req.BillingAddress; addr != nil {
		params.Address = addressParams(addr)
	}
	if addr := pc.Req.ShippingAddress; addr != nil {
		params.Shipping = &stripe.CustomerShippingParams{
			Name:    stripe.String(pc.Req.Email),
			Address: addressParams(addr),
		}
	}
	if recurring && pc.Req.CouponCode != "" {
		// Validated here so a bad code fails before the Customer exists.
		if _, err := h.calc.CouponData(ctx, pc, pc.Req.CouponCode, pc.Subtotal()); err != nil {
			return nil, err
		}
		params.Coupon = stripe.String(pc.Req.CouponCode)
	}

	return h.gateway.CreateCustomer(ctx, params)
}

func addressParams(a *payment.Address) *stripe.AddressParams {
	params := &stripe.AddressParams{
		Line1:      stripe.String(a.Line1),
		City:       stripe.String(a.City),
		State:      stripe.String(a.State),
		PostalCode: stripe.String(a.PostalCode),
		Country:    stripe.String(a.Country),
	}
	if a.Line2 != "" {
		params.Line2 = stripe.String(a.Line2)
	}
	return params
}

func (h *Handler) successURL(form *domain.PaymentForm) string {
	if form.SuccessURL != "" {
		return form.SuccessURL
	}
	return h.baseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"
}

// returnURL is where Stripe.js sends the customer after confirming an
// embedded payment. It carries the customer ID so the landing page can fetch
// the outcome.
func (h *Handler) returnURL(form *domain.PaymentForm, customerID string) string {
	base := form.SuccessURL
	if base == "" {
		base = h.baseURL + "/payment/success"
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("customer_id", customerID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handler) cancelURL(form *domain.PaymentForm) string {
	if form.CancelURL != "" {
		return form.CancelURL
	}
	return h.baseURL
}
