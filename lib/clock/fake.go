// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually driven Clock. Time only moves when Advance is
// called; timers and tickers whose deadline is reached fire during that
// call in deadline order. Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*alarm
	changed *sync.Cond
}

// alarm is one registered After or ticker deadline.
type alarm struct {
	deadline time.Time
	channel  chan time.Time
	period   time.Duration // zero for one-shot alarms
	stopped  bool
}

// Fake returns a FakeClock frozen at start.
func Fake(start time.Time) *FakeClock {
	clock := &FakeClock{now: start}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot alarm.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.register(&alarm{deadline: c.now.Add(d), channel: channel})
	return channel
}

// NewTicker registers a periodic alarm.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker requires a positive period")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &alarm{
		deadline: c.now.Add(d),
		channel:  make(chan time.Time, 1),
		period:   d,
	}
	c.register(entry)

	return &Ticker{
		C: entry.channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.stopped = true
			c.changed.Broadcast()
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.period = d
			entry.deadline = c.now.Add(d)
			if entry.stopped {
				entry.stopped = false
				c.register(entry)
			}
		},
	}
}

// register adds an alarm. Caller holds c.mu.
func (c *FakeClock) register(entry *alarm) {
	for _, existing := range c.pending {
		if existing == entry {
			c.changed.Broadcast()
			return
		}
	}
	c.pending = append(c.pending, entry)
	c.changed.Broadcast()
}

// Advance moves time forward by d and fires every alarm whose deadline
// is now due. A ticker spanning several periods fires once per period;
// sends never block, so ticks beyond the channel buffer are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, entry := range due {
			select {
			case entry.channel <- target:
			default:
			}
		}
	}
}

// takeDue removes due one-shot alarms, pushes due tickers to their next
// deadline, and returns everything that should fire now.
func (c *FakeClock) takeDue(target time.Time) []*alarm {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*alarm
	for _, entry := range c.pending {
		switch {
		case entry.stopped:
		case entry.deadline.After(target):
			keep = append(keep, entry)
		default:
			due = append(due, entry)
			if entry.period > 0 {
				entry.deadline = entry.deadline.Add(entry.period)
				keep = append(keep, entry)
			}
		}
	}
	c.pending = keep

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	return due
}

// WaitForTimers blocks until at least n live alarms are registered.
// Tests call it before Advance so a goroutine that is about to create
// its ticker cannot miss the first deadline.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.liveLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount reports the number of live alarms.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveLocked()
}

func (c *FakeClock) liveLocked() int {
	live := 0
	for _, entry := range c.pending {
		if !entry.stopped {
			live++
		}
	}
	return live
}
