package joycon

import "time"

// ReceiveWindow is the number of receive intervals averaged for IMU timing.
const ReceiveWindow = 100

// RollingAverage averages the last N durations.
type RollingAverage struct {
	buf  []time.Duration
	next int
	n    int
	sum  time.Duration
}

func NewRollingAverage(window int) *RollingAverage {
	if window <= 0 {
		window = 1
	}
	return &RollingAverage{buf: make([]time.Duration, window)}
}

func (r *RollingAverage) Add(d time.Duration) {
	if r.n == len(r.buf) {
		r.sum -= r.buf[r.next]
	} else {
		r.n++
	}
	r.buf[r.next] = d
	r.sum += d
	r.next = (r.next + 1) % len(r.buf)
}

func (r *RollingAverage) Average() time.Duration {
	if r.n == 0 {
		return 0
	}
	return r.sum / time.Duration(r.n)
}

func (r *RollingAverage) Len() int { return r.n }

// ReceiveClock tracks the spacing of input reports. Hardware timestamps are
// too coarse, so each report's three IMU samples are spread evenly across
// the average receive interval.
type ReceiveClock struct {
	avg  *RollingAverage
	last time.Time
	// elapsed is the motion timeline, advanced by the average per report.
	elapsed time.Duration
}

func NewReceiveClock() *ReceiveClock {
	return &ReceiveClock{avg: NewRollingAverage(ReceiveWindow)}
}

// Observe records a report received at now and returns the timestamp of
// its first IMU sample.
func (c *ReceiveClock) Observe(now time.Time) time.Duration {
	if !c.last.IsZero() {
		if d := now.Sub(c.last); d > 0 {
			c.avg.Add(d)
		}
	}
	c.last = now
	start := c.elapsed
	c.elapsed += c.avg.Average()
	return start
}

// Average is the mean receive interval.
func (c *ReceiveClock) Average() time.Duration { return c.avg.Average() }

// SubSampleDelta is the spacing between the IMU samples of one report.
func (c *ReceiveClock) SubSampleDelta() time.Duration {
	return c.avg.Average() / IMUSamples
}

// Reset forgets the previous receive time, e.g. after a reconnect.
func (c *ReceiveClock) Reset() {
	c.last = time.Time{}
}
