package payments

import (
	"context"
	"fmt"

	"github.com/fernwood/payform/internal/domain"
	"github.com/fernwood/payform/internal/middleware"
	"github.com/fernwood/payform/internal/payment"
)

// createRequest is the payload for POST /api/payments. The same pricing
// fields are reused by the tax and coupon routes.
type createRequest struct {
	FormID       string `json:"form_id" validate:"required"`
	PriceID      string `json:"price_id" validate:"required"`
	Quantity     int64  `json:"quantity" validate:"omitempty,min=1"`
	CustomAmount int64  `json:"custom_amount" validate:"omitempty,min=0"`

	CouponCode            string `json:"coupon_code"`
	PaymentMethodType     string `json:"payment_method_type"`
	IsOptionallyRecurring bool   `json:"is_optionally_recurring"`
	IsCoveringFees        bool   `json:"is_covering_fees"`
	TaxCalculationID      string `json:"tax_calculation_id"`

	CaptchaToken string `json:"captcha_token"`

	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`

	FormValues map[string]string `json:"form_values"`

	BillingAddress  *payment.Address `json:"billing_address"`
	ShippingAddress *payment.Address `json:"shipping_address"`
}

// toPipelineRequest maps the wire payload onto the pipeline's request type.
func (req *createRequest) toPipelineRequest() payment.Request {
	return payment.Request{
		FormID:                req.FormID,
		PriceID:               req.PriceID,
		Quantity:              req.Quantity,
		CustomAmount:          req.CustomAmount,
		CouponCode:            req.CouponCode,
		PaymentMethodType:     req.PaymentMethodType,
		IsOptionallyRecurring: req.IsOptionallyRecurring,
		IsCoveringFees:        req.IsCoveringFees,
		TaxCalculationID:      req.TaxCalculationID,
		FormValues:            req.FormValues,
		Email:                 req.Email,
		Phone:                 req.Phone,
		BillingAddress:        req.BillingAddress,
		ShippingAddress:       req.ShippingAddress,
	}
}

// resolveContext loads the form and validates the request against it: price
// existence, quantity and stock limits, custom amount floor, payment method
// availability, and the currency's minimum charge.
func (h *Handler) resolveContext(ctx context.Context, req *createRequest) (*payment.Context, error) {
	const op = "payment.resolve"

	form, err := h.forms.GetForm(ctx, req.FormID)
	if err != nil {
		return nil, err
	}

	pc, err := payment.NewContext(form, req.toPipelineRequest())
	if err != nil {
		return nil, err
	}

	if pc.Req.Quantity > 1 && !form.AllowQuantity {
		return nil, domain.Invalid(op, "this form does not allow purchasing multiple units")
	}
	if inv := form.Inventory; inv != nil && inv.Enabled && pc.Req.Quantity > inv.Remaining {
		return nil, domain.Invalid(op, "the requested quantity exceeds the remaining stock")
	}

	if !pc.Price.IsDefined() {
		if pc.Req.CustomAmount <= 0 {
			return nil, domain.Invalid(op, "an amount is required for this price")
		}
		if pc.Req.CustomAmount < pc.Price.UnitAmountMin {
			return nil, domain.Errorf(domain.EINVALID, op,
				"the amount must be at least %d", pc.Price.UnitAmountMin)
		}
	}

	if pc.Method() == nil {
		return nil, domain.Invalid(op, "the selected payment method is not available on this form")
	}
	if !pc.Method().SupportsCurrency(pc.Currency()) {
		return nil, domain.Invalid(op, "the selected payment method does not support this currency")
	}
	if pc.IsRecurring() && !pc.Method().Recurring {
		return nil, domain.Invalid(op, "the selected payment method does not support recurring payments")
	}

	if min := domain.MinimumChargeAmount(pc.Currency()); pc.Subtotal() < min {
		return nil, domain.Errorf(domain.EINVALID, op,
			"the amount must be at least %s", formatMinimum(min, pc.Currency()))
	}

	return pc, nil
}

// verifyCaptcha runs the configured CAPTCHA check with the client IP
// extracted by the middleware chain.
func (h *Handler) verifyCaptcha(ctx context.Context, token string) error {
	err := h.captcha.Verify(ctx, token, middleware.GetClientIPFromContext(ctx))
	if err != nil && h.metrics != nil && domain.ErrorCode(err) == domain.EUNAUTHORIZED {
		h.metrics.CaptchaRejections.Inc()
	}
	return err
}

func formatMinimum(amount int64, currency string) string {
	if domain.IsZeroDecimalCurrency(currency) {
		return fmt.Sprintf("%d %s", amount, currency)
	}
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, currency)
}
