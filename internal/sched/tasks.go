package sched

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/rank"
)

// Deps are the collaborators the scheduled tasks run against.
type Deps struct {
	Runs      rank.TaskRunStore
	IDs       rank.IDGenerator
	Collector rank.Collector
	Trackings rank.TrackingStore
	Billing   rank.BillingClient
	// Pacer spaces the provider calls of the collection sweep.
	Pacer rank.Pacer
	Clock rank.Clock
}

// Tasks bundles the registered scheduled tasks.
type Tasks struct {
	runner    *Runner
	collector rank.Collector
	trackings rank.TrackingStore
	billing   rank.BillingClient
	pacer     rank.Pacer
	clock     rank.Clock
	logger    *zap.Logger
}

// NewTasks wires the task set.
func NewTasks(deps Deps, logger *zap.Logger) *Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tasks{
		runner:    NewRunner(deps.Runs, deps.IDs, deps.Clock, logger),
		collector: deps.Collector,
		trackings: deps.Trackings,
		billing:   deps.Billing,
		pacer:     deps.Pacer,
		clock:     deps.Clock,
		logger:    logger,
	}
}

// Run executes the named task synchronously.
func (t *Tasks) Run(ctx context.Context, name string) (rank.TaskRun, error) {
	switch name {
	case TaskRankCollection:
		return t.CollectAll(ctx)
	case TaskSubscriptionRenewal:
		return t.RenewSubscriptions(ctx)
	case TaskPaymentRetry:
		return t.RetryPayments(ctx)
	default:
		return rank.TaskRun{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
}

// Latest returns the newest audit record for the named task.
func (t *Tasks) Latest(ctx context.Context, name string) (rank.TaskRun, error) {
	if !Known(name) {
		return rank.TaskRun{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return t.runner.Latest(ctx, name)
}

// CollectAll sweeps every keyword tracked by an owner with an active
// grant. Each keyword is collected once regardless of how many
// subscriptions share it, with the pacer spacing provider calls.
func (t *Tasks) CollectAll(ctx context.Context) (rank.TaskRun, error) {
	return t.runner.Run(ctx, TaskRankCollection, func(ctx context.Context) ([]Item, error) {
		owners, err := t.billing.ActiveOwners(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active owners: %w", err)
		}
		keywords, err := t.trackings.ActiveKeywordsForOwners(ctx, owners)
		if err != nil {
			return nil, fmt.Errorf("list active keywords: %w", err)
		}

		items := make([]Item, 0, len(keywords))
		for _, keyword := range keywords {
			items = append(items, Item{
				Label: keyword,
				Do: func(ctx context.Context) error {
					if err := t.pacer.Wait(ctx); err != nil {
						return err
					}
					if _, err := t.collector.CollectRanks(ctx, keyword, 0); err != nil {
						return err
					}
					if err := t.trackings.TouchCollected(ctx, keyword, t.clock.Now()); err != nil {
						t.logger.Warn("stamp last collection",
							zap.String("keyword", keyword), zap.Error(err))
					}
					return nil
				},
			})
		}
		return items, nil
	})
}

// RenewSubscriptions renews every subscription the billing service
// reports as due.
func (t *Tasks) RenewSubscriptions(ctx context.Context) (rank.TaskRun, error) {
	return t.runner.Run(ctx, TaskSubscriptionRenewal, func(ctx context.Context) ([]Item, error) {
		due, err := t.billing.RenewalsDue(ctx)
		if err != nil {
			return nil, fmt.Errorf("list due renewals: %w", err)
		}
		items := make([]Item, 0, len(due))
		for _, id := range due {
			items = append(items, Item{
				Label: strconv.FormatInt(id, 10),
				Do: func(ctx context.Context) error {
					return t.billing.Renew(ctx, id)
				},
			})
		}
		return items, nil
	})
}

// RetryPayments retries every failed payment the billing service reports.
func (t *Tasks) RetryPayments(ctx context.Context) (rank.TaskRun, error) {
	return t.runner.Run(ctx, TaskPaymentRetry, func(ctx context.Context) ([]Item, error) {
		failed, err := t.billing.FailedPayments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list failed payments: %w", err)
		}
		items := make([]Item, 0, len(failed))
		for _, id := range failed {
			items = append(items, Item{
				Label: strconv.FormatInt(id, 10),
				Do: func(ctx context.Context) error {
					return t.billing.RetryPayment(ctx, id)
				},
			})
		}
		return items, nil
	})
}
