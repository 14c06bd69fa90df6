package placement

import "time"

// Deadline bounds one placement step. Done is called after each bucket
// and reports whether the step must yield. The check is cooperative: a
// bucket is never interrupted.
type Deadline interface {
	Done() bool
}

type timeDeadline struct {
	clock func() time.Time
	end   time.Time
}

func (d timeDeadline) Done() bool { return !d.clock().Before(d.end) }

// NewDeadline returns a deadline that expires budget after now on clock.
// A nil clock uses time.Now.
func NewDeadline(clock func() time.Time, budget time.Duration) Deadline {
	if clock == nil {
		clock = time.Now
	}
	return timeDeadline{clock: clock, end: clock().Add(budget)}
}

type bucketDeadline struct {
	left int
}

func (d *bucketDeadline) Done() bool {
	d.left--
	return d.left <= 0
}

// Buckets returns a deadline that expires after n buckets. Steps bounded
// this way do not depend on the wall clock.
func Buckets(n int) Deadline { return &bucketDeadline{left: n} }

type unlimited struct{}

func (unlimited) Done() bool { return false }

// Unlimited never expires.
var Unlimited Deadline = unlimited{}
