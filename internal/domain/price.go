package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyntheticPriceIDPrefix marks price options that are not backed by a Stripe
// Price object. Customer-entered custom amounts get a locally generated ID
// with this prefix; everything else carries a real price_/plan_ ID.
const SyntheticPriceIDPrefix = "payform_"

// Recurring holds the billing cadence of a recurring price option. When a
// one-time amount is optionally recurring, PriceID carries the Stripe Price
// created for the recurring variant.
type Recurring struct {
	// Interval is one of "day", "week", "month", "year".
	Interval string `json:"interval"`

	// IntervalCount multiplies the interval (2 + "week" bills biweekly).
	IntervalCount int64 `json:"interval_count"`

	// InvoiceLimit caps the number of invoices generated, 0 for unlimited.
	InvoiceLimit int64 `json:"invoice_limit,omitempty"`

	// TrialPeriodDays delays the first charge, 0 for no trial.
	TrialPeriodDays int64 `json:"trial_period_days,omitempty"`

	// PriceID is the Stripe Price for the recurring variant of an
	// optionally recurring one-time amount.
	PriceID string `json:"price_id,omitempty"`
}

// PriceLineItem is an additional one-time charge attached to a price option,
// e.g. a setup fee billed alongside the first invoice.
type PriceLineItem struct {
	Label      string `json:"label,omitempty"`
	UnitAmount int64  `json:"unit_amount"`
}

// PriceOption is one purchasable configuration attached to a payment form.
// Exactly one of two shapes backs an instance: a Stripe-defined Price, or a
// locally synthesized custom-amount price whose ID carries
// SyntheticPriceIDPrefix.
type PriceOption struct {
	// ID is a Stripe Price/Plan ID, or a synthetic payform_<uuid> ID for
	// custom amounts with no Stripe-side definition.
	ID string `json:"id"`

	Currency string `json:"currency"`

	// UnitAmount is the charge amount in the currency's smallest unit. For
	// custom-amount options it is the suggested default.
	UnitAmount int64 `json:"unit_amount"`

	// UnitAmountMin, when non-zero, enables customer-entered custom amounts
	// and sets the floor they must meet.
	UnitAmountMin int64 `json:"unit_amount_min,omitempty"`

	// CanRecur marks an optionally recurring price: the customer chooses
	// between a one-time charge and the Recurring cadence.
	CanRecur bool `json:"can_recur,omitempty"`

	Recurring *Recurring      `json:"recurring,omitempty"`
	LineItems []PriceLineItem `json:"line_items,omitempty"`

	Default bool   `json:"default,omitempty"`
	Label   string `json:"label,omitempty"`
}

// NewCustomAmountPrice synthesizes a price option for a customer-entered
// amount that has no Stripe-side Price.
func NewCustomAmountPrice(currency string, unitAmountMin int64) *PriceOption {
	return &PriceOption{
		ID:            SyntheticPriceIDPrefix + uuid.NewString(),
		Currency:      currency,
		UnitAmountMin: unitAmountMin,
	}
}

// IsDefined reports whether the option is backed by a Stripe Price. A
// synthetic ID means the amount is decided per request and charged via
// price_data.
func (p *PriceOption) IsDefined() bool {
	return !strings.HasPrefix(p.ID, SyntheticPriceIDPrefix)
}

// IsRecurring reports whether the option always bills on a cadence, i.e. it
// has a recurring definition and is not an optional toggle.
func (p *PriceOption) IsRecurring() bool {
	return p.Recurring != nil && !p.CanRecur
}

// HasTrial reports whether the recurring definition delays the first charge.
func (p *PriceOption) HasTrial() bool {
	return p.Recurring != nil && p.Recurring.TrialPeriodDays > 0
}

// LineItemAmount sums the one-time line items attached to the option.
func (p *PriceOption) LineItemAmount() int64 {
	var total int64
	for _, li := range p.LineItems {
		total += li.UnitAmount
	}
	return total
}

// Validate checks structural invariants of the option.
func (p *PriceOption) Validate() error {
	if p.ID == "" {
		return Invalid("price.validate", "price option requires an id")
	}
	if p.Currency == "" {
		return Invalid("price.validate", "price option requires a currency")
	}
	if p.UnitAmount < 0 || p.UnitAmountMin < 0 {
		return Invalid("price.validate", "price amounts must be non-negative")
	}
	if p.CanRecur && p.Recurring == nil {
		return Invalid("price.validate", "an optionally recurring price requires a recurring definition")
	}
	if p.Recurring != nil {
		switch p.Recurring.Interval {
		case "day", "week", "month", "year":
		default:
			return Invalid("price.validate", fmt.Sprintf("invalid recurring interval: %s", p.Recurring.Interval))
		}
		if p.Recurring.IntervalCount < 1 {
			return Invalid("price.validate", "recurring interval count must be at least 1")
		}
	}
	return nil
}

// PriceOptions holds a form's price lists for both Stripe modes along with
// per-mode modification timestamps used to pick a sync source.
type PriceOptions struct {
	Live []PriceOption `json:"live"`
	Test []PriceOption `json:"test"`

	LiveModified time.Time `json:"live_modified"`
	TestModified time.Time `json:"test_modified"`
}

// ForMode returns the options for the given Stripe mode.
func (po *PriceOptions) ForMode(livemode bool) []PriceOption {
	if livemode {
		return po.Live
	}
	return po.Test
}

// Find returns the option with the given ID for the mode, or nil.
func (po *PriceOptions) Find(livemode bool, id string) *PriceOption {
	options := po.ForMode(livemode)
	for i := range options {
		if options[i].ID == id {
			return &options[i]
		}
	}
	return nil
}

// Default returns the default option for the mode, falling back to the first
// option when none is flagged. Returns nil for an empty list.
func (po *PriceOptions) Default(livemode bool) *PriceOption {
	options := po.ForMode(livemode)
	for i := range options {
		if options[i].Default {
			return &options[i]
		}
	}
	if len(options) > 0 {
		return &options[0]
	}
	return nil
}

// Sync copies price definitions from the most recently modified mode into the
// other one. Stripe-defined price IDs are mode-specific and cannot be copied
// verbatim, so synced copies of defined prices are re-synthesized and must be
// re-created in the target mode; synthetic custom-amount options carry over
// unchanged. After a sync both timestamps match, so repeated calls are
// no-ops. Concurrent syncs are tolerated as last-write-wins.
func (po *PriceOptions) Sync() {
	if po.LiveModified.Equal(po.TestModified) {
		return
	}

	fromLive := po.LiveModified.After(po.TestModified)
	source := po.Live
	if !fromLive {
		source = po.Test
	}

	synced := make([]PriceOption, len(source))
	for i, opt := range source {
		copied := opt
		if opt.IsDefined() {
			copied.ID = SyntheticPriceIDPrefix + uuid.NewString()
		}
		if opt.Recurring != nil {
			r := *opt.Recurring
			r.PriceID = ""
			copied.Recurring = &r
		}
		if len(opt.LineItems) > 0 {
			copied.LineItems = append([]PriceLineItem(nil), opt.LineItems...)
		}
		synced[i] = copied
	}

	if fromLive {
		po.Test = synced
		po.TestModified = po.LiveModified
	} else {
		po.Live = synced
		po.LiveModified = po.TestModified
	}
}
