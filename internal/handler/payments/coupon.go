package payments

import (
	"net/http"

	"github.com/fernwood/payform/internal/domain"
	"github.com/fernwood/payform/internal/payment"
)

// validateCouponRequest is the payload for POST /api/payments/validate-coupon.
// The client supplies the subtotal it is previewing; no Stripe object exists
// yet at this point.
type validateCouponRequest struct {
	FormID     string `json:"form_id" validate:"required"`
	Currency   string `json:"currency" validate:"required"`
	Subtotal   int64  `json:"subtotal" validate:"required,min=1"`
	CouponCode string `json:"coupon_code" validate:"required"`
}

// couponResponse describes a validated coupon against the request's subtotal.
type couponResponse struct {
	Coupon         couponDetails `json:"coupon"`
	DiscountAmount int64         `json:"discount_amount"`
	Total          int64         `json:"total"`
}

type couponDetails struct {
	ID         string  `json:"id"`
	Name       string  `json:"name,omitempty"`
	PercentOff float64 `json:"percent_off,omitempty"`
	AmountOff  int64   `json:"amount_off,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	Duration   string  `json:"duration"`
}

// ValidateCoupon handles POST /api/payments/validate-coupon: a stateless
// preview resolving the coupon against the supplied subtotal so the client
// can show the discounted total before creating the payment.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validateCouponRequest
	if err := h.decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	form, err := h.forms.GetForm(ctx, req.FormID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	// A synthetic context: the preview has a subtotal and a currency but no
	// resolved price yet.
	pc := &payment.Context{
		Form: form,
		Price: &domain.PriceOption{
			ID:         domain.SyntheticPriceIDPrefix + "preview",
			Currency:   req.Currency,
			UnitAmount: req.Subtotal,
		},
		Req: payment.Request{
			FormID:     req.FormID,
			Quantity:   1,
			CouponCode: req.CouponCode,
		},
	}

	data, err := h.calc.CouponData(ctx, pc, req.CouponCode, req.Subtotal)
	if err != nil {
		if h.metrics != nil {
			h.metrics.CouponValidations.WithLabelValues("rejected").Inc()
		}
		h.respondError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.CouponValidations.WithLabelValues("accepted").Inc()
	}
	h.respond(w, http.StatusOK, &couponResponse{
		Coupon: couponDetails{
			ID:         data.ID,
			Name:       data.Name,
			PercentOff: data.PercentOff,
			AmountOff:  data.AmountOff,
			Currency:   data.Currency,
			Duration:   string(data.Duration),
		},
		DiscountAmount: data.DiscountAmount,
		Total:          req.Subtotal - data.DiscountAmount,
	})
}
