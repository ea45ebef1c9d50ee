// Package ratelimit implements the per-(actor, category) cooldown gate in front of user actions.
package ratelimit

import (
	"context"
	"time"
)

// Category groups actions that share a cooldown.
type Category string

const (
	CategoryCommand   Category = "command"
	CategorySubscribe Category = "subscribe"
	CategoryCallback  Category = "callback"
	CategoryMessage   Category = "message"
)

// Policy maps categories to their minimum interval. Unlisted categories use Default.
type Policy struct {
	Default   time.Duration
	Intervals map[Category]time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Default: 3 * time.Second,
		Intervals: map[Category]time.Duration{
			CategoryCommand:   3 * time.Second,
			CategorySubscribe: 10 * time.Second,
			CategoryCallback:  2 * time.Second,
			CategoryMessage:   time.Second,
		},
	}
}

// PolicyFromConfig builds a policy from the ratelimit config section.
func PolicyFromConfig(def time.Duration, categories map[string]time.Duration) Policy {
	p := Policy{Default: def, Intervals: make(map[Category]time.Duration, len(categories))}
	for name, interval := range categories {
		p.Intervals[Category(name)] = interval
	}
	return p
}

func (p Policy) Interval(c Category) time.Duration {
	if d, ok := p.Intervals[c]; ok {
		return d
	}
	return p.Default
}

func (p Policy) longest() time.Duration {
	longest := p.Default
	for _, d := range p.Intervals {
		if d > longest {
			longest = d
		}
	}
	return longest
}

// RateLimiter reports whether an actor may perform an action of the given category now.
// A rejected call leaves the limiter state unchanged.
type RateLimiter interface {
	Allow(ctx context.Context, actorID int64, category Category) bool
}
