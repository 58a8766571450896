package payments

import (
	"net/http"

	stripe "github.com/stripe/stripe-go/v79"

	"github.com/fernwood/payform/internal/domain"
	"github.com/fernwood/payform/internal/payment"
)

// taxDetails is one calculation's tax total.
type taxDetails struct {
	Amount    int64 `json:"amount"`
	AmountTax int64 `json:"amount_tax"`
}

// taxResponse carries the due-today calculation and, for recurring
// payments, the upcoming-cycle calculation. The two differ when a coupon
// only applies once or the first invoice carries setup fees.
type taxResponse struct {
	// ID references the due-today calculation; payment creation passes it
	// back so the charge reuses the exact amounts previewed here.
	ID  string `json:"id"`
	Tax int64  `json:"tax"`

	TotalDetails    taxDetails  `json:"total_details"`
	UpcomingInvoice *taxDetails `json:"upcoming_invoice,omitempty"`
}

// CalculateTax handles POST /api/payments/calculate-tax. Only meaningful on
// automatic-tax forms; the returned calculation ID feeds back into payment
// creation so the charge reuses the exact calculation shown to the customer.
func (h *Handler) CalculateTax(w http.ResponseWriter, r *http.Request) {
	const op = "payment.tax.calculate"
	ctx := r.Context()

	var req createRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	pc, err := h.resolveContext(ctx, &req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if pc.Form.TaxStatus != domain.TaxStatusAutomatic {
		h.respondError(w, r, domain.Invalid(op, "this form does not use automatic tax"))
		return
	}
	if req.BillingAddress == nil {
		h.respondError(w, r, domain.Invalid(op, "a billing address is required to calculate tax"))
		return
	}

	var coupon *payment.CouponData
	subtotal := pc.Subtotal()
	fee := payment.FeeRecoveryUnitAmount(pc, subtotal)
	dueToday := subtotal + fee
	if pc.Price.HasTrial() {
		// The first invoice bills setup fees only; the recurring amount
		// starts after the trial.
		dueToday = 0
	}
	if req.CouponCode != "" {
		coupon, err = h.calc.CouponData(ctx, pc, req.CouponCode, dueToday)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		dueToday -= coupon.DiscountAmount
	}
	dueToday += pc.Price.LineItemAmount()

	todayCalc, err := h.createTaxCalculation(r, pc, dueToday)
	if err != nil {
		if h.metrics != nil {
			h.metrics.TaxCalculations.WithLabelValues("error").Inc()
		}
		h.respondError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.TaxCalculations.WithLabelValues("ok").Inc()
	}

	todayTax := todayCalc.TaxAmountExclusive + todayCalc.TaxAmountInclusive
	resp := &taxResponse{
		ID:  todayCalc.ID,
		Tax: todayTax,
		TotalDetails: taxDetails{
			Amount:    todayCalc.AmountTotal,
			AmountTax: todayTax,
		},
	}

	if pc.IsRecurring() {
		// Upcoming cycles drop the setup fees and once-only coupons.
		upcoming := subtotal + fee
		if coupon != nil && coupon.Duration != stripe.CouponDurationOnce {
			upcoming -= coupon.DiscountAmount
		}
		if upcoming != dueToday {
			upcomingCalc, err := h.createTaxCalculation(r, pc, upcoming)
			if err != nil {
				h.respondError(w, r, err)
				return
			}
			resp.UpcomingInvoice = &taxDetails{
				Amount:    upcomingCalc.AmountTotal,
				AmountTax: upcomingCalc.TaxAmountExclusive + upcomingCalc.TaxAmountInclusive,
			}
		} else {
			resp.UpcomingInvoice = &resp.TotalDetails
		}
	}

	h.respond(w, http.StatusOK, resp)
}

func (h *Handler) createTaxCalculation(r *http.Request, pc *payment.Context, amount int64) (*stripe.TaxCalculation, error) {
	addr := pc.Req.BillingAddress

	lineItem := &stripe.TaxCalculationLineItemParams{
		Amount:    stripe.Int64(amount),
		Reference: stripe.String(pc.Form.ID + ":" + pc.Price.ID),
	}
	if pc.Form.TaxBehavior != domain.TaxBehaviorUnspecified {
		lineItem.TaxBehavior = stripe.String(string(pc.Form.TaxBehavior))
	}
	if pc.Form.TaxCode != "" {
		lineItem.TaxCode = stripe.String(pc.Form.TaxCode)
	}

	params := &stripe.TaxCalculationParams{
		Currency:  stripe.String(pc.Currency()),
		LineItems: []*stripe.TaxCalculationLineItemParams{lineItem},
		CustomerDetails: &stripe.TaxCalculationCustomerDetailsParams{
			Address: &stripe.AddressParams{
				Line1:      stripe.String(addr.Line1),
				City:       stripe.String(addr.City),
				State:      stripe.String(addr.State),
				PostalCode: stripe.String(addr.PostalCode),
				Country:    stripe.String(addr.Country),
			},
			AddressSource: stripe.String("billing"),
		},
	}

	return h.gateway.CreateTaxCalculation(r.Context(), params)
}
