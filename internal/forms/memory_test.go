package forms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernwood/payform/internal/domain"
)

func TestMemoryStoreForms(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetForm(ctx, "form_1")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	store.PutForm(&domain.PaymentForm{ID: "form_1", Title: "Donation"})
	form, err := store.GetForm(ctx, "form_1")
	require.NoError(t, err)
	assert.Equal(t, "Donation", form.Title)
}

func TestMemoryStoreCouponRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetCouponRecord(ctx, "SAVE")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	store.PutCouponRecord(&domain.CouponRecord{Code: "SAVE", FormIDs: []string{"form_1"}})

	record, err := store.GetCouponRecord(ctx, "save")
	require.NoError(t, err)
	assert.Equal(t, []string{"form_1"}, record.FormIDs, "lookup is case-insensitive")
}
