package payment

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v79"

	"github.com/fernwood/payform/internal/billing"
	"github.com/fernwood/payform/internal/domain"
)

// CouponData is a validated coupon with its discount resolved against a
// specific amount.
type CouponData struct {
	ID         string
	Name       string
	PercentOff float64
	AmountOff  int64
	Currency   string
	Duration   stripe.CouponDuration

	// DiscountAmount is the discount against the amount the coupon was
	// validated for.
	DiscountAmount int64
}

// CouponData validates a coupon code against the form and the given amount
// and resolves the discount. Rejections are domain errors with customer
// safe messages: unknown or invalid codes, form restrictions, currency
// mismatches on fixed-amount coupons, and discounts that drop the remaining
// amount below the currency minimum. The minimum check is skipped for
// 100%-off coupons on recurring payments, where a free first cycle is
// legitimate.
func (c *Calculator) CouponData(ctx context.Context, pc *Context, code string, amount int64) (*CouponData, error) {
	const op = "payment.coupon"

	record, err := c.forms.GetCouponRecord(ctx, code)
	switch {
	case err == nil:
		if !record.AppliesTo(pc.Form.ID) {
			return nil, domain.Invalid(op, "this coupon can't be used with this payment form")
		}
	case domain.ErrorCode(err) == domain.ENOTFOUND:
		// No local restriction record; the code may still exist in Stripe.
	default:
		return nil, err
	}

	coupon, err := c.gateway.GetCoupon(ctx, code)
	if err != nil {
		var sErr *billing.StripeError
		if errors.As(err, &sErr) && sErr.IsNotFound() {
			return nil, domain.Invalid(op, "the coupon code is not valid")
		}
		return nil, err
	}

	if !coupon.Valid {
		return nil, domain.Invalid(op, "the coupon code is no longer valid")
	}
	if coupon.RedeemBy > 0 && time.Now().Unix() > coupon.RedeemBy {
		return nil, domain.Invalid(op, "the coupon code has expired")
	}
	if coupon.MaxRedemptions > 0 && coupon.TimesRedeemed >= coupon.MaxRedemptions {
		return nil, domain.Invalid(op, "the coupon code has been fully redeemed")
	}

	data := &CouponData{
		ID:         coupon.ID,
		Name:       coupon.Name,
		PercentOff: coupon.PercentOff,
		AmountOff:  coupon.AmountOff,
		Currency:   string(coupon.Currency),
		Duration:   coupon.Duration,
	}

	switch {
	case coupon.PercentOff > 0:
		data.DiscountAmount = percentDiscount(amount, coupon.PercentOff)
	case coupon.AmountOff > 0:
		if !strings.EqualFold(string(coupon.Currency), pc.Currency()) {
			return nil, domain.Invalid(op, "the coupon currency does not match the payment currency")
		}
		data.DiscountAmount = coupon.AmountOff
	}
	if data.DiscountAmount > amount {
		data.DiscountAmount = amount
	}

	remaining := amount - data.DiscountAmount
	fullyDiscountedRecurring := pc.IsRecurring() && coupon.PercentOff == 100
	if !fullyDiscountedRecurring && remaining < domain.MinimumChargeAmount(pc.Currency()) {
		return nil, domain.Invalid(op, "the coupon brings the total below the minimum charge amount")
	}

	return data, nil
}

// percentDiscount computes the discount so the remaining amount, not the
// discount itself, is the rounded value. Keeps a 2.5% coupon on 1000
// leaving exactly round(975) rather than 1000-round(25).
func percentDiscount(amount int64, percentOff float64) int64 {
	remaining := math.Round(float64(amount) * (100 - percentOff) / 100)
	return amount - int64(remaining)
}

// DiscountUnitAmount returns the discount for the request's amount. When a
// customer ID is given, the discount Stripe actually attached to the
// Customer is authoritative; otherwise the request's coupon code is
// resolved directly. Returns 0 when no discount applies.
func (c *Calculator) DiscountUnitAmount(ctx context.Context, pc *Context, amount int64, customerID string) (int64, error) {
	if customerID != "" {
		params := &stripe.CustomerParams{}
		params.AddExpand("discount.coupon")
		customer, err := c.gateway.GetCustomer(ctx, customerID, params)
		if err != nil {
			return 0, err
		}
		if customer.Discount != nil && customer.Discount.Coupon != nil {
			coupon := customer.Discount.Coupon
			if coupon.PercentOff > 0 {
				return percentDiscount(amount, coupon.PercentOff), nil
			}
			return coupon.AmountOff, nil
		}
		return 0, nil
	}

	if pc.Req.CouponCode == "" {
		return 0, nil
	}
	data, err := c.CouponData(ctx, pc, pc.Req.CouponCode, amount)
	if err != nil {
		return 0, err
	}
	return data.DiscountAmount, nil
}
