// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridgecmd

import "time"

// Frame is one decoded command channel frame
type Frame struct {
	header    uint8
	payload   []byte
	crc       uint16
	timestamp time.Time
}

// NewFrame creates a frame; the payload is copied
func NewFrame(header uint8, payload []byte) *Frame {
	p := make([]byte, len(payload))
	copy(p, payload)
	return &Frame{
		header:    header,
		payload:   p,
		timestamp: time.Now(),
	}
}

// Header returns the frame header byte
func (f *Frame) Header() uint8 {
	return f.header
}

// Payload returns the frame payload
func (f *Frame) Payload() []byte {
	return f.payload
}

// Length returns the payload length
func (f *Frame) Length() int {
	return len(f.payload)
}

// CRC returns the received CRC (zero for locally built frames)
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns the decode timestamp
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsMIDI returns true if the frame carries raw MIDI bytes
func (f *Frame) IsMIDI() bool {
	return IsMIDIHeader(f.header)
}

// Cable returns the virtual cable of a MIDI frame
func (f *Frame) Cable() uint8 {
	return f.header & 0x0F
}

// IsMIDIHeader reports whether a header addresses a MIDI cable
func IsMIDIHeader(h uint8) bool {
	return h <= MidiCableLast
}

// CalculateCRC computes CRC-16-CCITT checksum for the given data
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
