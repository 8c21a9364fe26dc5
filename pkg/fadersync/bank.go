// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fadersync

import (
	"fmt"

	"github.com/Thermoquad/mcbridge/pkg/logging"
)

// Bank holds the nine faders of one surface
type Bank struct {
	faders [NumFaders]*Fader
}

// NewBank creates nine faders in the Unknown state
func NewBank() *Bank {
	b := &Bank{}
	for i := range b.faders {
		b.faders[i] = New(uint8(i))
	}
	return b
}

// Fader returns one fader, or nil for an out of range id
func (b *Bank) Fader(id uint8) *Fader {
	if int(id) >= NumFaders {
		return nil
	}
	return b.faders[id]
}

// StartSync resets every fader
func (b *Bank) StartSync() {
	for _, f := range b.faders {
		f.StartSync()
	}
}

// UpdateTarget applies a DAW pitch bend target
func (b *Bank) UpdateTarget(id uint8, pos uint16) error {
	f := b.Fader(id)
	if f == nil {
		return fmt.Errorf("fader %d out of range", id)
	}
	prev := f.State()
	if s := f.UpdateTargetPosition(pos); s != prev {
		logging.LogDebug(logging.ComponentFader, "target update", "fader", id, "target", pos, "state", s.String())
	}
	return nil
}

// UpdateFader applies a surface position. The regenerated pitch bend
// message is returned with true only when the fader is synchronized.
func (b *Bank) UpdateFader(id uint8, pos uint16) ([]byte, bool) {
	f := b.Fader(id)
	if f == nil {
		return nil, false
	}
	prev := f.State()
	s := f.UpdateFaderPosition(pos)
	if s != prev {
		logging.LogDebug(logging.ComponentFader, "fader update", "fader", id, "position", pos, "state", s.String())
	}
	if !f.Forward() {
		return nil, false
	}
	return f.Message(), true
}

// States returns the state of every fader
func (b *Bank) States() [NumFaders]State {
	var out [NumFaders]State
	for i, f := range b.faders {
		out[i] = f.State()
	}
	return out
}
