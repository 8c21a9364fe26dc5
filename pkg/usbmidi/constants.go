// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package usbmidi converts between a raw MIDI byte stream and USB-MIDI
// 4-byte event packets, one framing state per virtual cable.
//
// A USB-MIDI event packet is laid out as:
//
//	byte 0: cable number (high nibble) | Code Index Number (low nibble)
//	byte 1..3: up to three MIDI bytes, unused bytes are zero
package usbmidi

// NumCables is the number of virtual cables in one USB-MIDI endpoint.
const NumCables = 16

// PacketSize is the size of one USB-MIDI event packet.
const PacketSize = 4

// CIN is a USB-MIDI Code Index Number.
type CIN byte

// Code Index Numbers
const (
	CINMisc            CIN = 0x0 // reserved
	CINCableEvent      CIN = 0x1 // reserved
	CINSysCommon2      CIN = 0x2
	CINSysCommon3      CIN = 0x3
	CINSysExStart      CIN = 0x4 // SysEx starts or continues
	CINSysExEnd1       CIN = 0x5 // SysEx ends with one byte, or single byte system common
	CINSysExEnd2       CIN = 0x6
	CINSysExEnd3       CIN = 0x7
	CINNoteOff         CIN = 0x8
	CINNoteOn          CIN = 0x9
	CINPolyKeyPress    CIN = 0xA
	CINControlChange   CIN = 0xB
	CINProgramChange   CIN = 0xC
	CINChannelPressure CIN = 0xD
	CINPitchBend       CIN = 0xE
	CINSingleByte      CIN = 0xF
)

// MIDI status bytes the codec treats specially
const (
	StatusSysEx        = 0xF0
	StatusTimeCode     = 0xF1
	StatusSongPosition = 0xF2
	StatusSongSelect   = 0xF3
	StatusTuneRequest  = 0xF6
	StatusEOX          = 0xF7
	StatusRealTimeMin  = 0xF8
)

// Size returns the number of MIDI bytes carried by a packet with this CIN.
// Reserved CINs carry nothing.
func (c CIN) Size() int {
	switch c {
	case CINMisc, CINCableEvent:
		return 0
	case CINSysExEnd1, CINSingleByte:
		return 1
	case CINSysCommon2, CINSysExEnd2, CINProgramChange, CINChannelPressure:
		return 2
	default:
		return 3
	}
}

// IsSysEx reports whether a packet with this CIN belongs to a SysEx transfer.
// CINSysExEnd1 is ambiguous on its own; callers check the data byte.
func (c CIN) IsSysEx() bool {
	return c >= CINSysExStart && c <= CINSysExEnd3
}

var cinNames = map[CIN]string{
	CINMisc:            "MISC",
	CINCableEvent:      "CABLE_EVENT",
	CINSysCommon2:      "SYS_COMMON_2",
	CINSysCommon3:      "SYS_COMMON_3",
	CINSysExStart:      "SYSEX_START",
	CINSysExEnd1:       "SYSEX_END_1",
	CINSysExEnd2:       "SYSEX_END_2",
	CINSysExEnd3:       "SYSEX_END_3",
	CINNoteOff:         "NOTE_OFF",
	CINNoteOn:          "NOTE_ON",
	CINPolyKeyPress:    "POLY_KEYPRESS",
	CINControlChange:   "CONTROL_CHANGE",
	CINProgramChange:   "PROGRAM_CHANGE",
	CINChannelPressure: "CHANNEL_PRESSURE",
	CINPitchBend:       "PITCH_BEND",
	CINSingleByte:      "SINGLE_BYTE",
}

func (c CIN) String() string {
	if name, ok := cinNames[c&0x0F]; ok {
		return name
	}
	return "UNKNOWN"
}
