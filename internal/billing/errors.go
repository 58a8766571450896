package billing

import (
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v79"
)

// ErrInvalidAPIKey is returned when the Stripe API key is missing.
var ErrInvalidAPIKey = errors.New("billing: invalid or missing API key")

// StripeError wraps a Stripe API error with the fields callers branch on.
type StripeError struct {
	Message       string // Human-readable error message
	Code          string // Stripe error code (e.g., "card_declined")
	DeclineCode   string // Card decline reason (if applicable)
	StatusCode    int    // HTTP status code from Stripe
	RequestID     string // Stripe request ID for debugging
	OriginalError error  // Original error from the Stripe SDK
}

func (e *StripeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stripe: %s (code: %s)", e.Message, e.Code)
	}
	return fmt.Sprintf("stripe: %s", e.Message)
}

func (e *StripeError) Unwrap() error {
	return e.OriginalError
}

// IsDeclined returns true if the error is due to a card decline.
func (e *StripeError) IsDeclined() bool {
	return e.Code == "card_declined" || e.DeclineCode != ""
}

// IsNotFound returns true for missing-resource errors.
func (e *StripeError) IsNotFound() bool {
	return e.Code == string(stripe.ErrorCodeResourceMissing) || e.StatusCode == 404
}

// IsNotFound reports whether err is a Stripe missing-resource error.
func IsNotFound(err error) bool {
	var sErr *StripeError
	return errors.As(err, &sErr) && sErr.IsNotFound()
}

// wrapStripeError normalizes SDK errors into StripeError, passing nil and
// non-Stripe errors through.
func wrapStripeError(err error) error {
	if err == nil {
		return nil
	}

	var sErr *stripe.Error
	if !errors.As(err, &sErr) {
		return err
	}

	return &StripeError{
		Message:       sErr.Msg,
		Code:          string(sErr.Code),
		DeclineCode:   string(sErr.DeclineCode),
		StatusCode:    sErr.HTTPStatusCode,
		RequestID:     sErr.RequestID,
		OriginalError: err,
	}
}
