// Package system provides a real clock implementation.
package system

import "time"

// Clock implements rank.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC. Callers convert to the reference
// timezone where calendar dates matter.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
