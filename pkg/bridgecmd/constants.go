// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridgecmd implements the command channel shared by the device
// and host units of the display bridge.
//
// Every frame carries a header byte and a length-prefixed payload. Header
// values 0x00-0x0F carry raw MIDI bytes for that virtual cable; 0x40 and up
// are out-of-band commands. On the wire:
//
//	0x7E | stuffed(header, len_lo, len_hi, payload..., crc_hi, crc_lo) | 0x7F
package bridgecmd

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxPayloadSize = 512
	headerSize     = 3 // header + 16-bit length
	MaxFrameSize   = headerSize + MaxPayloadSize + 2
)

// ConfigDescMaxPayload bounds every configuration descriptor chunk
const ConfigDescMaxPayload = 200

// ConfigDescMaxLength is the longest configuration descriptor that can be fetched
const ConfigDescMaxLength = 3 * ConfigDescMaxPayload

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// MIDI frames: header is the cable number
const (
	MidiCableFirst = 0x00
	MidiCableLast  = 0x0F
)

// Enumeration commands (device unit -> host unit requests, host unit -> device unit returns)
const (
	RequestDevDesc       = 0x40
	ReturnDevDesc        = 0x41
	RequestDevStringIdxs = 0x42
	ReturnDevStringIdxs  = 0x43
	RequestDevLangids    = 0x44
	ReturnDevLangids     = 0x45
	RequestDevString     = 0x46
	ReturnDevString      = 0x47
	Resynchronize        = 0x48
	RequestConfDesc0     = 0x49
	ReturnConfDesc0      = 0x4A
	RequestConfDesc1     = 0x4B
	ReturnConfDesc1      = 0x4C
	RequestConfDesc2     = 0x4D
	ReturnConfDesc2      = 0x4E
)

// Panel commands
const (
	NavButtons     = 0x50 // host -> device, 1 byte bitmap
	ActiveCable    = 0x51 // device -> host, 1 byte MC cable
	ChannelBtnMode = 0x52 // host -> device, 1 byte mode
)

// Nav button bitmap bits
const (
	NavUp      = 0x01
	NavDown    = 0x02
	NavLeft    = 0x04
	NavRight   = 0x08
	NavSelect  = 0x10
	NavBack    = 0x20
	NavShift   = 0x40
	NavChanged = 0x80
)

// ChannelButtonMode selects what the eight channel buttons do
type ChannelButtonMode uint8

// Channel button modes
const (
	ModeSelect ChannelButtonMode = iota
	ModeSolo
	ModeMute
	ModeRec
	ModeVPot
)

func (m ChannelButtonMode) String() string {
	switch m {
	case ModeSelect:
		return "SEL"
	case ModeSolo:
		return "SOLO"
	case ModeMute:
		return "MUTE"
	case ModeRec:
		return "REC"
	case ModeVPot:
		return "VPOT"
	}
	return "UNKNOWN"
}

// Decoder states (internal)
const (
	stateIdle = iota
	stateHeader
	stateLength1
	stateLength2
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
