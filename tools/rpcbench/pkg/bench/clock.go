// Package bench implements the cooperative per-core Loop and the Metrics
// it reports into, wiring WorkloadGen, Sender, Receiver, and TaskManager
// together into one benchmark cycle.
package bench

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock produces the 64-bit "stamp" used as both a request's identity and
// its latency baseline. A CPU cycle counter (rdtsc) would do this on real
// hardware; this client uses monotonic nanoseconds from a clockwork.Clock
// instead — ordering and positive deltas are all the protocol actually
// depends on, and clockwork.NewFakeClock lets tests drive latency
// measurements deterministically.
type Clock struct {
	clockwork.Clock
	last *uint64
}

// NewClock wraps a clockwork.Clock. Pass clockwork.NewRealClock() in
// production and clockwork.NewFakeClock() in tests.
func NewClock(c clockwork.Clock) Clock {
	var last uint64
	return Clock{Clock: c, last: &last}
}

// Stamp returns the current cycle-equivalent counter value, strictly
// greater than the value returned by any prior call on this Clock.
// Timestamps within a core's outstanding set must be pairwise distinct,
// and a fake clock in tests can't guarantee that on its own at nanosecond
// resolution. Stamp forces the guarantee unconditionally rather than only
// under a fake clock, so the same code path runs in both cases.
func (c Clock) Stamp() uint64 {
	now := uint64(c.Now().UnixNano())
	if now <= *c.last {
		now = *c.last + 1
	}
	*c.last = now
	return now
}

// stampToDuration converts a delta between two Stamp values (nanoseconds)
// into a time.Duration for Metrics.
func stampToDuration(delta uint64) time.Duration { return time.Duration(delta) }
