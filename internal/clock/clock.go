// Package clock abstracts time so deadline and sweep logic can run against
// simulated time in tests.
package clock

import "time"

// Clock supplies the current instant and periodic ticks. Production code
// injects Real(); tests inject Fake() and move time with Advance or Set.
//
// Every instant returned is in UTC. Deadline math compares instants only,
// so wall-clock zone and DST never enter the calculation.
type Clock interface {
	// Now returns the current instant in UTC.
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. C has capacity 1; if the consumer falls
// behind, ticks are dropped rather than queued.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }
