package actor

import (
	"math/rand/v2"
	"time"
)

// Range is an inclusive delay range drawn with millisecond granularity.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Pick draws a uniform delay in [Min, Max] using intn (rand.IntN semantics).
// A nil intn uses math/rand/v2.
func (r Range) Pick(intn func(int) int) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	if intn == nil {
		intn = rand.IntN
	}
	steps := int((r.Max-r.Min)/time.Millisecond) + 1
	return r.Min + time.Duration(intn(steps))*time.Millisecond
}

// Policy is the humanlike latency configuration.
type Policy struct {
	// Idle is the delay before answering a cold conversation.
	Idle Range
	// Read is the delay before answering a warm conversation, and the pause
	// between a deferred read receipt and typing.
	Read Range
	// Typing is the minimum time between the typing signal and the reply.
	Typing Range
	// Staleness is how recent a turn must be for a conversation to be warm.
	Staleness time.Duration
}

// DefaultPolicy returns the production delays.
func DefaultPolicy() Policy {
	return Policy{
		Idle:      Range{Min: 60 * time.Second, Max: 600 * time.Second},
		Read:      Range{Min: 5 * time.Second, Max: 15 * time.Second},
		Typing:    Range{Min: 2 * time.Second, Max: 5 * time.Second},
		Staleness: 15 * time.Minute,
	}
}

// ReplyDelay returns the range a delayed reply is scheduled from.
func (p Policy) ReplyDelay(active bool) Range {
	if active {
		return p.Read
	}
	return p.Idle
}
