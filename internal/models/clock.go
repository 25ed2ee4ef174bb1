package models

import (
	"sync"
	"time"
)

// Clock hands out millisecond timestamps that never repeat or go backwards,
// even if the wall clock does.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

var DefaultClock = NewClock(nil)

func (c *Clock) Now() int64 {
	return c.After(0)
}

// After returns a timestamp greater than both floor and any value
// previously returned by this clock.
func (c *Clock) After(floor int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	if ts <= floor {
		ts = floor + 1
	}
	c.last = ts
	return ts
}
