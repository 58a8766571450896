package domain

import (
	"context"
	"strings"
)

// DisplayType determines where the customer completes payment.
type DisplayType string

const (
	// DisplayHostedCheckout redirects to a Stripe-hosted Checkout Session.
	DisplayHostedCheckout DisplayType = "hosted_checkout"

	// DisplayEmbedded confirms a PaymentIntent/Subscription on-page via
	// Stripe.js Elements.
	DisplayEmbedded DisplayType = "embedded"
)

// TaxStatus determines how tax is applied to a form's payments.
type TaxStatus string

const (
	// TaxStatusNone disables tax entirely.
	TaxStatusNone TaxStatus = "none"

	// TaxStatusFixedGlobal stamps the form's configured Stripe Tax Rates
	// onto every line item.
	TaxStatusFixedGlobal TaxStatus = "fixed_global"

	// TaxStatusAutomatic delegates to Stripe Tax calculations.
	TaxStatusAutomatic TaxStatus = "automatic"
)

// TaxBehavior applies to automatic tax: whether the configured amounts
// already contain tax or tax is added on top.
type TaxBehavior string

const (
	TaxBehaviorUnspecified TaxBehavior = ""
	TaxBehaviorInclusive   TaxBehavior = "inclusive"
	TaxBehaviorExclusive   TaxBehavior = "exclusive"
)

// TaxRate mirrors the subset of a Stripe Tax Rate the pricing pipeline needs.
type TaxRate struct {
	ID         string  `json:"id"`
	Percentage float64 `json:"percentage"`
	Inclusive  bool    `json:"inclusive"`
}

// FeeRecoveryRate is the processing-fee surcharge configuration for one
// payment method: a percentage plus a fixed amount in the smallest currency
// unit, recovered from the customer via the gross-up formula.
type FeeRecoveryRate struct {
	Enabled bool    `json:"enabled"`
	Percent float64 `json:"percent"`
	Fixed   int64   `json:"fixed"`
}

// PaymentMethod is one payment method enabled on a form, with the
// capabilities the pipeline filters on.
type PaymentMethod struct {
	// ID is the form-level method identifier, e.g. "card", "ach-debit",
	// "sepa-debit". StripeType remaps legacy identifiers to Stripe's API
	// vocabulary.
	ID string `json:"id"`

	// Currencies restricts the method to these currencies; empty means any.
	Currencies []string `json:"currencies,omitempty"`

	// Recurring marks the method as usable for subscription billing.
	Recurring bool `json:"recurring,omitempty"`

	FeeRecovery FeeRecoveryRate `json:"fee_recovery,omitempty"`
}

// StripeType returns the Stripe API payment_method_type for the method.
func (m PaymentMethod) StripeType() string {
	if m.ID == "ach-debit" {
		return "us_bank_account"
	}
	return strings.ReplaceAll(m.ID, "-", "_")
}

// SupportsCurrency reports whether the method can settle the currency.
func (m PaymentMethod) SupportsCurrency(currency string) bool {
	if len(m.Currencies) == 0 {
		return true
	}
	currency = strings.ToLower(currency)
	for _, c := range m.Currencies {
		if strings.ToLower(c) == currency {
			return true
		}
	}
	return false
}

// CustomField is a form field whose submitted value is recorded in payment
// metadata.
type CustomField struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`

	// EmailLink enables Stripe Link on an email field; with card enabled
	// this adds "link" to the payment method types.
	EmailLink bool `json:"email_link,omitempty"`
}

// Inventory caps how many units a form can still sell.
type Inventory struct {
	Enabled   bool  `json:"enabled"`
	Remaining int64 `json:"remaining"`
}

// PaymentForm is the read-only configuration a payment request resolves
// against. Forms are owned by the storage layer and never mutated by the
// payment pipeline.
type PaymentForm struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// Livemode selects which Stripe mode (and price list) the form charges
	// against.
	Livemode bool `json:"livemode"`

	DisplayType DisplayType `json:"display_type"`

	Prices *PriceOptions `json:"prices"`

	// ProductID is the Stripe Product for the active mode, used when a
	// charge needs price_data (custom amounts, fee recovery lines).
	ProductID string `json:"product_id"`

	PaymentMethods []PaymentMethod `json:"payment_methods"`

	TaxStatus   TaxStatus   `json:"tax_status"`
	TaxBehavior TaxBehavior `json:"tax_behavior"`
	TaxCode     string      `json:"tax_code,omitempty"`
	TaxRates    []TaxRate   `json:"tax_rates,omitempty"`

	// FeeRecoveryForced applies fee recovery without a customer opt-in.
	FeeRecoveryForced bool `json:"fee_recovery_forced"`

	CustomFields []CustomField `json:"custom_fields,omitempty"`

	Inventory *Inventory `json:"inventory,omitempty"`

	AllowQuantity       bool `json:"allow_quantity"`
	AllowPromotionCodes bool `json:"allow_promotion_codes"`
	CollectPhone        bool `json:"collect_phone"`
	CollectTaxID        bool `json:"collect_tax_id"`

	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`

	// ApplicationFeePercent takes a platform cut on connected accounts,
	// 0 to disable.
	ApplicationFeePercent float64 `json:"application_fee_percent,omitempty"`
}

// Price resolves a price option ID against the form's active mode.
func (f *PaymentForm) Price(id string) *PriceOption {
	if f.Prices == nil {
		return nil
	}
	return f.Prices.Find(f.Livemode, id)
}

// Method returns the configured payment method matching either the form
// identifier or its Stripe API type, or nil.
func (f *PaymentForm) Method(id string) *PaymentMethod {
	for i := range f.PaymentMethods {
		if f.PaymentMethods[i].ID == id || f.PaymentMethods[i].StripeType() == id {
			return &f.PaymentMethods[i]
		}
	}
	return nil
}

// EmailLinkEnabled reports whether any email field has Stripe Link enabled.
func (f *PaymentForm) EmailLinkEnabled() bool {
	for _, cf := range f.CustomFields {
		if cf.Type == "email" && cf.EmailLink {
			return true
		}
	}
	return false
}

// CouponRecord scopes a coupon to specific forms. Coupons without a record
// are looked up directly from Stripe and apply everywhere.
type CouponRecord struct {
	Code string `json:"code"`

	// FormIDs restricts the coupon to these forms; empty means any form.
	FormIDs []string `json:"form_ids,omitempty"`
}

// AppliesTo reports whether the record permits use on the form.
func (r *CouponRecord) AppliesTo(formID string) bool {
	if len(r.FormIDs) == 0 {
		return true
	}
	for _, id := range r.FormIDs {
		if id == formID {
			return true
		}
	}
	return false
}

// FormRepository is the read-only store the payment pipeline resolves forms
// and coupon restrictions against. Implementations: postgres.FormStore,
// forms.MemoryStore.
type FormRepository interface {
	// GetForm returns the form by ID. Returns a domain error with code
	// ENOTFOUND when no such form exists.
	GetForm(ctx context.Context, id string) (*PaymentForm, error)

	// GetCouponRecord returns the local restriction record for a coupon
	// code. Returns ENOTFOUND when the coupon is not locally tracked, in
	// which case callers fall back to a direct Stripe lookup.
	GetCouponRecord(ctx context.Context, code string) (*CouponRecord, error)
}
