package billing

import (
	"context"
	"sync"

	"github.com/blogboost/ranktracker/internal/rank"
)

// Fake is an in-memory billing backend for tests and local development.
// Error hooks let a test fail a single item inside a batch.
type Fake struct {
	mu sync.Mutex

	Grants   map[int64]rank.Grant
	Owners   []int64
	Renewals []int64
	Payments []int64

	RenewErr map[int64]error
	RetryErr map[int64]error

	Renewed []int64
	Retried []int64
}

// NewFake returns an empty fake billing backend.
func NewFake() *Fake {
	return &Fake{
		Grants:   make(map[int64]rank.Grant),
		RenewErr: make(map[int64]error),
		RetryErr: make(map[int64]error),
	}
}

// ActiveGrant returns the configured grant or rank.ErrNoActiveGrant.
func (f *Fake) ActiveGrant(_ context.Context, ownerID int64) (rank.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	grant, ok := f.Grants[ownerID]
	if !ok {
		return rank.Grant{}, rank.ErrNoActiveGrant
	}
	return grant, nil
}

// ActiveOwners returns the configured owner list.
func (f *Fake) ActiveOwners(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.Owners...), nil
}

// RenewalsDue returns the configured renewal list.
func (f *Fake) RenewalsDue(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.Renewals...), nil
}

// Renew records the call and returns the configured error, if any.
func (f *Fake) Renew(_ context.Context, subscriptionID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.RenewErr[subscriptionID]; err != nil {
		return err
	}
	f.Renewed = append(f.Renewed, subscriptionID)
	return nil
}

// FailedPayments returns the configured payment list.
func (f *Fake) FailedPayments(_ context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.Payments...), nil
}

// RetryPayment records the call and returns the configured error, if any.
func (f *Fake) RetryPayment(_ context.Context, paymentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.RetryErr[paymentID]; err != nil {
		return err
	}
	f.Retried = append(f.Retried, paymentID)
	return nil
}
