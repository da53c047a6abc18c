package billing

import (
	"context"

	"github.com/blogboost/ranktracker/internal/rank"
)

// Open is the billing backend for deployments that run without a billing
// service. Every owner holds an unlimited ACTIVE grant, and the batch
// queries report no work: collection happens through the API, not the
// scheduler, which is why scheduler-enabled configs require a real
// billing endpoint.
type Open struct{}

// ActiveGrant returns an unlimited ACTIVE grant for any owner.
func (Open) ActiveGrant(_ context.Context, ownerID int64) (rank.Grant, error) {
	return rank.Grant{OwnerID: ownerID, Status: rank.GrantActive}, nil
}

// ActiveOwners reports no owners.
func (Open) ActiveOwners(context.Context) ([]int64, error) { return nil, nil }

// RenewalsDue reports no renewals.
func (Open) RenewalsDue(context.Context) ([]int64, error) { return nil, nil }

// Renew is a no-op.
func (Open) Renew(context.Context, int64) error { return nil }

// FailedPayments reports no failed payments.
func (Open) FailedPayments(context.Context) ([]int64, error) { return nil, nil }

// RetryPayment is a no-op.
func (Open) RetryPayment(context.Context, int64) error { return nil }
