// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package fadersync implements soft pickup for non-motorized faders.
//
// The DAW reports where it believes a fader is (the target). The surface
// reports where the physical fader is. Surface positions are only passed
// on to the DAW once the physical fader has moved through the target.
package fadersync

import "fmt"

// NumFaders is 8 channel faders plus the master fader
const NumFaders = 9

// Impossible is the sentinel for an unknown position, one past the
// largest 14-bit value
const Impossible uint16 = 16384

// MaxPosition is the largest valid 14-bit fader position
const MaxPosition uint16 = 16383

// State is the synchronization state of one fader
type State int

// Sync states
const (
	Unknown State = iota
	Synchronized
	Increase
	Decrease
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "UNKNOWN"
	case Synchronized:
		return "SYNCHRONIZED"
	case Increase:
		return "INCREASE"
	case Decrease:
		return "DECREASE"
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// Fader tracks one physical fader against its DAW target
type Fader struct {
	id     uint8
	fader  uint16
	target uint16
	state  State
}

// New creates a fader in the Unknown state
func New(id uint8) *Fader {
	f := &Fader{id: id}
	f.StartSync()
	return f
}

// StartSync forgets both positions
func (f *Fader) StartSync() {
	f.fader = Impossible
	f.target = Impossible
	f.state = Unknown
}

// ID returns the fader index (0-7 channels, 8 master)
func (f *Fader) ID() uint8 { return f.id }

// State returns the current sync state
func (f *Fader) State() State { return f.state }

// Position returns the last physical position, or Impossible
func (f *Fader) Position() uint16 { return f.fader }

// Target returns the last DAW target, or Impossible
func (f *Fader) Target() uint16 { return f.target }

// UpdateFaderPosition records a position reported by the surface
func (f *Fader) UpdateFaderPosition(pos uint16) State {
	f.fader = pos
	switch {
	case f.target == Impossible:
		f.state = Unknown
	case f.state == Unknown:
		switch {
		case f.target > pos:
			f.state = Increase
		case f.target < pos:
			f.state = Decrease
		default:
			f.state = Synchronized
		}
	case f.state == Increase && pos >= f.target:
		f.state = Synchronized
	case f.state == Decrease && pos <= f.target:
		f.state = Synchronized
	}
	return f.state
}

// UpdateTargetPosition records a position set by the DAW.
// A target that differs from the physical position forces the fader
// position to be learned again.
func (f *Fader) UpdateTargetPosition(pos uint16) State {
	f.target = pos
	switch {
	case f.fader == Impossible:
		f.state = Unknown
	case f.fader == f.target:
		f.state = Synchronized
	default:
		f.fader = Impossible
		f.state = Unknown
	}
	return f.state
}

// Forward reports whether surface positions currently go to the DAW
func (f *Fader) Forward() bool {
	return f.state == Synchronized
}

// Message regenerates the pitch bend message for the current position
func (f *Fader) Message() []byte {
	return []byte{0xE0 | f.id, byte(f.fader & 0x7F), byte((f.fader >> 7) & 0x7F)}
}
