package clock

import "time"

// Clock allows injecting time into the ledger so that TTL expiry can be
// exercised in tests without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now in UTC.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a clock that returns a settable instant.  The zero value is
// not useful; construct with NewFixed.
type Fixed struct {
	now time.Time
}

// NewFixed returns a clock pinned to t (in UTC) until Advance is called.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t.UTC()}
}

func (f *Fixed) Now() time.Time { return f.now }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.now = f.now.Add(d) }
