// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// StripSnapshot is the serialized state of one channel strip
type StripSnapshot struct {
	Rec      bool     `cbor:"1,keyasint"`
	Solo     bool     `cbor:"2,keyasint"`
	Mute     bool     `cbor:"3,keyasint"`
	Select   bool     `cbor:"4,keyasint"`
	VPotMode VPotMode `cbor:"5,keyasint"`
	VPot     uint8    `cbor:"6,keyasint"`
	VPotPLED bool     `cbor:"7,keyasint"`
	Meter    uint8    `cbor:"8,keyasint"`
	Overload bool     `cbor:"9,keyasint"`
	Upper    string   `cbor:"10,keyasint"`
	Lower    string   `cbor:"11,keyasint"`
}

// Snapshot is the serialized display state pushed to monitors.
// LastActivity is zero until a DAW message first changes the display.
type Snapshot struct {
	Timestamp    time.Time                  `cbor:"1,keyasint"`
	Strips       [NumChannels]StripSnapshot `cbor:"2,keyasint"`
	Timecode     string                     `cbor:"3,keyasint"`
	Assignment   string                     `cbor:"4,keyasint"`
	SMPTE        bool                       `cbor:"5,keyasint"`
	Beats        bool                       `cbor:"6,keyasint"`
	ButtonMode   uint8                      `cbor:"7,keyasint"`
	ActiveCable  uint8                      `cbor:"8,keyasint"`
	Faders       [9]uint16                  `cbor:"9,keyasint"`
	FaderStates  [9]string                  `cbor:"10,keyasint"`
	LastActivity time.Time                  `cbor:"11,keyasint"`
}

var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	snapshotEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}
	snapshotDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR decoder mode: %v", err))
	}
}

// Snapshot captures the current display state
func (d *Display) Snapshot() Snapshot {
	snap := Snapshot{
		Timestamp:    d.now(),
		Timecode:     d.Seven.Timecode(),
		Assignment:   d.Seven.Assignment(),
		SMPTE:        d.Seven.SMPTE,
		Beats:        d.Seven.Beats,
		ButtonMode:   uint8(d.ButtonMode),
		ActiveCable:  d.ActiveCable,
		LastActivity: d.LastActivity(),
	}
	for i := range d.Strips {
		s := &d.Strips[i]
		snap.Strips[i] = StripSnapshot{
			Rec:      s.Rec,
			Solo:     s.Solo,
			Mute:     s.Mute,
			Select:   s.Select,
			VPotMode: s.VPot.Mode,
			VPot:     s.VPot.Value,
			VPotPLED: s.VPot.PLED,
			Meter:    s.Meter.Level,
			Overload: s.Meter.Overload,
			Upper:    s.Line(0),
			Lower:    s.Line(1),
		}
	}
	return snap
}

// EncodeSnapshot serializes a snapshot to CBOR
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	return snapshotEncMode.Marshal(s)
}

// DecodeSnapshot parses a CBOR snapshot
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := snapshotDecMode.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}
