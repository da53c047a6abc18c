// Package events publishes collection notifications for downstream
// consumers such as report builders and alerting. Publishing is best
// effort; a failed publish never fails the collection that produced it.
package events

import (
	"context"

	"github.com/blogboost/ranktracker/internal/rank"
)

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

// Publish for Noop does nothing and returns an empty message ID.
func (Noop) Publish(_ context.Context, _ rank.CollectionEvent) (string, error) {
	return "", nil
}
