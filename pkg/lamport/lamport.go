// Package lamport implements the Lamport logical clock carried by every log
// entry.
//
// From Lamport (1978), two implementation rules govern the clock:
//
//	IR1 (internal event): Before any internal event, increment the clock.
//	IR2 (message receipt): On receiving a message with timestamp t,
//	     set the clock to max(own, t).
//
// Clocks are value types: every update produces a new value, and clock state
// is never shared between entries.
package lamport

import "strings"

// Clock is a Lamport logical clock. The id is typically the author's public
// key, which doubles as the deterministic tiebreaker in total orders.
type Clock struct {
	ID   string `json:"id"`
	Time int    `json:"time"`
}

// New returns a clock for the given id starting at time.
func New(id string, time int) Clock {
	return Clock{ID: id, Time: time}
}

// Tick implements IR1: returns a new clock advanced by one.
func (c Clock) Tick() Clock {
	return Clock{ID: c.ID, Time: c.Time + 1}
}

// Merge implements IR2: returns a new clock holding the maximum of both
// times. The receiver's id is kept.
func (c Clock) Merge(o Clock) Clock {
	t := c.Time
	if o.Time > t {
		t = o.Time
	}
	return Clock{ID: c.ID, Time: t}
}

// Compare orders clocks lexicographically on (time, id) and returns
// -1, 0 or +1.
func Compare(a, b Clock) int {
	if d := a.Time - b.Time; d != 0 {
		if d < 0 {
			return -1
		}
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}
