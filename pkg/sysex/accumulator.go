// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sysex assembles System Exclusive messages that arrive split
// over several USB-MIDI packets into one bounded buffer.
package sysex

import "fmt"

// DefaultCapacity is the buffer size used by the bridge
const DefaultCapacity = 2048

// Framing bytes
const (
	Start = 0xF0
	EOX   = 0xF7
)

// Result is the outcome of an Append call
type Result int

// Append results
const (
	Continuing Result = iota
	Complete
	Aborted
)

func (r Result) String() string {
	switch r {
	case Continuing:
		return "CONTINUING"
	case Complete:
		return "COMPLETE"
	case Aborted:
		return "ABORTED"
	}
	return fmt.Sprintf("RESULT(%d)", int(r))
}

// Accumulator is a bounded SysEx buffer. A stored message is at most
// capacity-1 bytes and its last stored byte is always EOX, so a truncated
// message still ends in 0xF7.
type Accumulator struct {
	buf      []byte
	length   int
	dropped  uint64
	complete bool
	aborts   uint64
}

// New creates an accumulator with the given capacity (minimum 3)
func New(capacity int) *Accumulator {
	if capacity < 3 {
		capacity = 3
	}
	return &Accumulator{buf: make([]byte, capacity)}
}

// Capacity returns the buffer size
func (a *Accumulator) Capacity() int {
	return len(a.buf)
}

// Len returns the number of stored bytes
func (a *Accumulator) Len() int {
	return a.length
}

// Dropped returns the number of bytes discarded since the last Reset
func (a *Accumulator) Dropped() uint64 {
	return a.dropped
}

// Aborts returns the number of messages abandoned since creation
func (a *Accumulator) Aborts() uint64 {
	return a.aborts
}

// Active reports whether a message has started and not yet completed
func (a *Accumulator) Active() bool {
	return a.length > 0 && !a.complete
}

// Reset clears the buffer for the next message
func (a *Accumulator) Reset() {
	a.length = 0
	a.dropped = 0
	a.complete = false
}

// Bytes returns a copy of the stored message
func (a *Accumulator) Bytes() []byte {
	out := make([]byte, a.length)
	copy(out, a.buf[:a.length])
	return out
}

// Append adds bytes to the message. The first byte after Reset must be 0xF0.
// A 0xF0 in the middle of a message restarts accumulation. Bytes past the
// EOX of a completed message are ignored until Reset.
func (a *Accumulator) Append(data ...byte) Result {
	if a.complete {
		return Complete
	}
	for _, b := range data {
		if a.length == 0 {
			if b != Start {
				a.aborts++
				return Aborted
			}
			a.store(b)
			continue
		}

		switch {
		case b == Start:
			// New message cancels the one in progress
			a.aborts++
			a.length = 0
			a.dropped = 0
			a.store(b)
		case b == EOX:
			a.buf[a.length] = b
			a.length++
			a.complete = true
			return Complete
		case b&0x80 != 0 && b < 0xF8:
			// Status byte inside SysEx: message is broken
			a.aborts++
			a.length = 0
			a.dropped = 0
			return Aborted
		case b >= 0xF8:
			// Real time bytes may interleave and are not part of the message
		default:
			a.store(b)
		}
	}
	return Continuing
}

func (a *Accumulator) store(b byte) {
	if a.length >= len(a.buf)-2 {
		a.dropped++
		return
	}
	a.buf[a.length] = b
	a.length++
}
