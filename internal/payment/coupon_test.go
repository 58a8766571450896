package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v79"

	"github.com/fernwood/payform/internal/billing"
	"github.com/fernwood/payform/internal/domain"
)

// stubForms implements domain.FormRepository for pipeline tests.
type stubForms struct {
	forms   map[string]*domain.PaymentForm
	coupons map[string]*domain.CouponRecord
}

func newStubForms() *stubForms {
	return &stubForms{
		forms:   make(map[string]*domain.PaymentForm),
		coupons: make(map[string]*domain.CouponRecord),
	}
}

func (s *stubForms) GetForm(_ context.Context, id string) (*domain.PaymentForm, error) {
	if form, ok := s.forms[id]; ok {
		return form, nil
	}
	return nil, domain.NotFound("stub.form", "payment form", id)
}

func (s *stubForms) GetCouponRecord(_ context.Context, code string) (*domain.CouponRecord, error) {
	if record, ok := s.coupons[code]; ok {
		return record, nil
	}
	return nil, domain.NotFound("stub.coupon", "coupon record", code)
}

func validCoupon(id string) *stripe.Coupon {
	return &stripe.Coupon{
		ID:       id,
		Valid:    true,
		Duration: stripe.CouponDurationOnce,
	}
}

func TestCouponData(t *testing.T) {
	ctx := context.Background()

	newCalc := func(gateway *billing.MockGateway, forms *stubForms) *Calculator {
		return NewCalculator(gateway, forms, nil)
	}

	pc, err := NewContext(testForm(), Request{PriceID: "price_basic"})
	require.NoError(t, err)

	t.Run("percent discount", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("SAVE25")
		coupon.PercentOff = 25
		gateway.Coupons["SAVE25"] = coupon

		data, err := newCalc(gateway, newStubForms()).CouponData(ctx, pc, "SAVE25", 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(250), data.DiscountAmount)
	})

	t.Run("percent discount rounds the remainder", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("SAVE2HALF")
		coupon.PercentOff = 2.5
		gateway.Coupons["SAVE2HALF"] = coupon

		data, err := newCalc(gateway, newStubForms()).CouponData(ctx, pc, "SAVE2HALF", 999)
		require.NoError(t, err)
		// remaining = round(999 * 0.975) = 974
		assert.Equal(t, int64(25), data.DiscountAmount)
	})

	t.Run("fixed discount", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("MINUS3")
		coupon.AmountOff = 300
		coupon.Currency = "usd"
		gateway.Coupons["MINUS3"] = coupon

		data, err := newCalc(gateway, newStubForms()).CouponData(ctx, pc, "MINUS3", 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(300), data.DiscountAmount)
	})

	t.Run("fixed discount currency mismatch", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("MINUS3EUR")
		coupon.AmountOff = 300
		coupon.Currency = "eur"
		gateway.Coupons["MINUS3EUR"] = coupon

		_, err := newCalc(gateway, newStubForms()).CouponData(ctx, pc, "MINUS3EUR", 1000)
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := newCalc(billing.NewMockGateway(), newStubForms()).CouponData(ctx, pc, "NOPE", 1000)
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("record restricts other forms", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("VIP")
		coupon.PercentOff = 50
		gateway.Coupons["VIP"] = coupon

		forms := newStubForms()
		forms.coupons["VIP"] = &domain.CouponRecord{
			Code:    "VIP",
			FormIDs: []string{"form_other"},
		}

		_, err := newCalc(gateway, forms).CouponData(ctx, pc, "VIP", 1000)
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("record permits listed form", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("VIP")
		coupon.PercentOff = 50
		gateway.Coupons["VIP"] = coupon

		forms := newStubForms()
		forms.coupons["VIP"] = &domain.CouponRecord{
			Code:    "VIP",
			FormIDs: []string{"form_1"},
		}

		data, err := newCalc(gateway, forms).CouponData(ctx, pc, "VIP", 1000)
		require.NoError(t, err)
		assert.Equal(t, int64(500), data.DiscountAmount)
	})

	t.Run("expired coupon", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("OLD")
		coupon.PercentOff = 10
		coupon.RedeemBy = time.Now().Add(-time.Hour).Unix()
		gateway.Coupons["OLD"] = coupon

		_, err := newCalc(gateway, newStubForms()).CouponData(ctx, pc, "OLD", 1000)
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("fully redeemed coupon", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("GONE")
		coupon.PercentOff = 10
		coupon.MaxRedemptions = 5
		coupon.TimesRedeemed = 5
		gateway.Coupons["GONE"] = coupon

		_, err := newCalc(gateway, newStubForms()).CouponData(ctx, pc, "GONE", 1000)
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("discount below minimum charge", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("ALMOSTFREE")
		coupon.PercentOff = 99
		gateway.Coupons["ALMOSTFREE"] = coupon

		_, err := newCalc(gateway, newStubForms()).CouponData(ctx, pc, "ALMOSTFREE", 1000)
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})

	t.Run("full discount allowed on recurring", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("FREEMONTH")
		coupon.PercentOff = 100
		gateway.Coupons["FREEMONTH"] = coupon

		recurring, err := NewContext(testForm(), Request{PriceID: "price_monthly"})
		require.NoError(t, err)

		data, err := newCalc(gateway, newStubForms()).CouponData(ctx, recurring, "FREEMONTH", 2500)
		require.NoError(t, err)
		assert.Equal(t, int64(2500), data.DiscountAmount)
	})

	t.Run("full discount rejected on one-time", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("FREE")
		coupon.PercentOff = 100
		gateway.Coupons["FREE"] = coupon

		_, err := newCalc(gateway, newStubForms()).CouponData(ctx, pc, "FREE", 1000)
		require.Error(t, err)
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})
}

func TestDiscountUnitAmount(t *testing.T) {
	ctx := context.Background()

	t.Run("customer discount wins over request coupon", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		gateway.Customers["cus_1"] = &stripe.Customer{
			ID: "cus_1",
			Discount: &stripe.Discount{
				Coupon: &stripe.Coupon{PercentOff: 10},
			},
		}

		pc, err := NewContext(testForm(), Request{PriceID: "price_basic", CouponCode: "IGNORED"})
		require.NoError(t, err)

		calc := NewCalculator(gateway, newStubForms(), nil)
		discount, err := calc.DiscountUnitAmount(ctx, pc, 1000, "cus_1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), discount)
	})

	t.Run("customer without discount", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		gateway.Customers["cus_2"] = &stripe.Customer{ID: "cus_2"}

		pc, err := NewContext(testForm(), Request{PriceID: "price_basic"})
		require.NoError(t, err)

		calc := NewCalculator(gateway, newStubForms(), nil)
		discount, err := calc.DiscountUnitAmount(ctx, pc, 1000, "cus_2")
		require.NoError(t, err)
		assert.Zero(t, discount)
	})

	t.Run("falls back to request coupon", func(t *testing.T) {
		gateway := billing.NewMockGateway()
		coupon := validCoupon("SAVE25")
		coupon.PercentOff = 25
		gateway.Coupons["SAVE25"] = coupon

		pc, err := NewContext(testForm(), Request{PriceID: "price_basic", CouponCode: "SAVE25"})
		require.NoError(t, err)

		calc := NewCalculator(gateway, newStubForms(), nil)
		discount, err := calc.DiscountUnitAmount(ctx, pc, 1000, "")
		require.NoError(t, err)
		assert.Equal(t, int64(250), discount)
	})
}
