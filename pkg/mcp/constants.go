// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mcp decodes the Mackie Control Protocol messages a DAW sends to
// a control surface, mirrors the display-relevant ones into local state
// and decides which messages still travel on to the surface.
package mcp

// Surface geometry
const (
	NumChannels    = 8
	TextColumns    = 7
	TextLines      = 2
	TextLineCells  = NumChannels * TextColumns // 56
	TextCells      = TextLines * TextLineCells // 112
	NumDigits      = 12
	TimecodeDigits = 10
	MaxMeterLevel  = 12
)

// Mackie SysEx header
var sysexHeader = []byte{0xF0, 0x00, 0x00, 0x66}

// Model ids
const (
	ModelMain     = 0x14
	ModelExtender = 0x15
	ModelLegacy   = 0x10 // accepted by the bulk timecode write
)

// SysEx message ids
const (
	SubDeviceQuery      = 0x00
	SubHostQuery        = 0x01
	SubTimecodeBulk     = 0x10
	SubChannelText      = 0x12
	SubSerialRequest    = 0x1A
	SubSerialResponse   = 0x1B
	serialRequestSuffix = 0x00
)

// Status bytes the classifier looks at
const (
	StatusNoteOn       = 0x90
	StatusCC           = 0xB0
	StatusCCAlt        = 0xBF
	StatusChanPressure = 0xD0
	StatusPitchBend    = 0xE0
	StatusSysEx        = 0xF0
	StatusEOX          = 0xF7
)

// Note numbers
const (
	NoteRecFirst    = 0x00
	NoteSoloFirst   = 0x08
	NoteMuteFirst   = 0x10
	NoteSelectFirst = 0x18
	NoteStripLast   = 0x1F
	NoteVPotFirst   = 0x20
	NoteNameValue   = 0x34
	NoteSMPTEBeats  = 0x35
	NoteSMPTELED    = 0x71
	NoteBeatsLED    = 0x72
)

// CC numbers
const (
	CCVPotRingFirst = 0x30
	CCVPotRingLast  = 0x37
	CCDigitFirst    = 0x40
	CCDigitLast     = 0x4B
)

// VPotMode is the LED ring display mode
type VPotMode uint8

// VPot ring modes
const (
	VPotSingleDot VPotMode = iota
	VPotBoostCut
	VPotWrap
	VPotSpread
)

func (m VPotMode) String() string {
	switch m {
	case VPotSingleDot:
		return "SINGLE_DOT"
	case VPotBoostCut:
		return "BOOST_CUT"
	case VPotWrap:
		return "WRAP"
	case VPotSpread:
		return "SPREAD"
	}
	return "UNKNOWN"
}
