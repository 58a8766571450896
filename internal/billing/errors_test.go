package billing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	stripe "github.com/stripe/stripe-go/v79"
)

func TestWrapStripeError(t *testing.T) {
	assert.Nil(t, wrapStripeError(nil))

	plain := errors.New("dial tcp: timeout")
	assert.Equal(t, plain, wrapStripeError(plain), "non-Stripe errors pass through")

	sdkErr := &stripe.Error{
		Msg:            "Your card was declined.",
		Code:           stripe.ErrorCodeCardDeclined,
		DeclineCode:    stripe.DeclineCodeInsufficientFunds,
		HTTPStatusCode: 402,
		RequestID:      "req_123",
	}
	wrapped := wrapStripeError(sdkErr)

	var sErr *StripeError
	assert.True(t, errors.As(wrapped, &sErr))
	assert.Equal(t, "Your card was declined.", sErr.Message)
	assert.True(t, sErr.IsDeclined())
	assert.False(t, sErr.IsNotFound())
	assert.True(t, errors.Is(wrapped, sdkErr), "original error stays reachable")
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.True(t, IsNotFound(&StripeError{Code: string(stripe.ErrorCodeResourceMissing)}))
	assert.True(t, IsNotFound(&StripeError{StatusCode: 404}))
	assert.False(t, IsNotFound(&StripeError{Code: "card_declined", StatusCode: 402}))
}
