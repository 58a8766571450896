// Package forms provides an in-memory form store for development and tests.
package forms

import (
	"context"
	"strings"
	"sync"

	"github.com/fernwood/payform/internal/domain"
)

// MemoryStore implements domain.FormRepository backed by maps. Used when no
// database is configured and as the repository in handler tests.
type MemoryStore struct {
	mu      sync.RWMutex
	forms   map[string]*domain.PaymentForm
	coupons map[string]*domain.CouponRecord
}

// Compile-time check that MemoryStore implements domain.FormRepository.
var _ domain.FormRepository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		forms:   make(map[string]*domain.PaymentForm),
		coupons: make(map[string]*domain.CouponRecord),
	}
}

// GetForm returns the form by ID.
func (s *MemoryStore) GetForm(_ context.Context, id string) (*domain.PaymentForm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	form, ok := s.forms[id]
	if !ok {
		return nil, domain.NotFound("forms.memory.get", "payment form", id)
	}
	return form, nil
}

// GetCouponRecord returns the restriction record for a coupon code.
func (s *MemoryStore) GetCouponRecord(_ context.Context, code string) (*domain.CouponRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.coupons[strings.ToLower(code)]
	if !ok {
		return nil, domain.NotFound("forms.memory.coupon", "coupon record", code)
	}
	return record, nil
}

// PutForm adds or replaces a form.
func (s *MemoryStore) PutForm(form *domain.PaymentForm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms[form.ID] = form
}

// PutCouponRecord adds or replaces a coupon restriction record.
func (s *MemoryStore) PutCouponRecord(record *domain.CouponRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[strings.ToLower(record.Code)] = record
}
