// Package clock provides an injectable notion of time so the control loop's
// retry backoff (spec scenario 4: two failures then success, retryCount
// observed as 1 then 2) can be driven deterministically from tests instead
// of real sleeps, the same way a metrics.Timer isolates "now"
// behind a single call site.
package clock

import "time"

// Clock abstracts time.Now and time.AfterFunc so retry scheduling can be
// faked in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the subset of *time.Timer the control loop needs.
type Timer interface {
	Stop() bool
}

// Real is the production Clock, backed directly by the time package.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
