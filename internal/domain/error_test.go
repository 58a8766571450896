package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, EINVALID, ErrorCode(Invalid("op", "bad input")))
	assert.Equal(t, ENOTFOUND, ErrorCode(NotFound("op", "payment form", "form_1")))
	assert.Equal(t, EINTERNAL, ErrorCode(errors.New("plain")))

	wrapped := WrapError(errors.New("inner"), EPAYMENT, "op", "charge failed")
	assert.Equal(t, EPAYMENT, ErrorCode(wrapped))
}

func TestErrorMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "bad input", ErrorMessage(Invalid("op", "bad input")))

	internal := Internal(errors.New("pq: connection refused"), "op", "db down")
	assert.NotContains(t, ErrorMessage(internal), "connection refused")
	assert.NotContains(t, ErrorMessage(errors.New("secret detail")), "secret")
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError(nil, EINTERNAL, "op", "msg"))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := WrapError(inner, EINTERNAL, "op", "msg")
	assert.True(t, errors.Is(err, inner))
}

func TestValidationErrors(t *testing.T) {
	var err error
	err = AddFieldError(err, "form_id", "required")
	err = AddFieldError(err, "email", "must be a valid email")

	assert.True(t, IsValidationError(err))
	fields := GetValidationFields(err)
	assert.Len(t, fields, 2)
	assert.Equal(t, "required", fields["form_id"])

	assert.Nil(t, GetValidationFields(errors.New("not validation")))
}
