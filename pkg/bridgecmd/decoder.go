// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridgecmd

import (
	"errors"
	"fmt"
	"time"
)

// Decoder errors
var (
	ErrCRC              = errors.New("CRC mismatch")
	ErrFraming          = errors.New("framing error")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrIncompleteEscape = errors.New("incomplete escape sequence")
)

// Decoder implements the command channel frame decoder state machine
type Decoder struct {
	state       int
	buffer      []byte
	bufferIndex int
	escapeNext  bool
	header      uint8
	length      int
	crc         uint16
	rawBuffer   []byte
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, headerSize+MaxPayloadSize),
		rawBuffer: make([]byte, 0, MaxFrameSize*2),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.drop()
	d.rawBuffer = d.rawBuffer[:0]
}

// drop abandons the current frame. The raw bytes stay available until
// the next START so callers can show what was dropped.
func (d *Decoder) drop() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.escapeNext = false
	d.header = 0
	d.length = 0
	d.crc = 0
}

// GetRawBytes returns the wire bytes received since the last START or
// completed frame
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error if the current frame had to be dropped.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if len(d.rawBuffer) < cap(d.rawBuffer) {
		d.rawBuffer = append(d.rawBuffer, b)
	}

	// Framing bytes are never escaped on the wire
	switch b {
	case StartByte:
		inFrame := d.state != stateIdle
		d.Reset()
		d.rawBuffer = append(d.rawBuffer, b)
		d.state = stateHeader
		if inFrame {
			return nil, fmt.Errorf("%w: START inside frame", ErrFraming)
		}
		return nil, nil
	case EndByte:
		return d.finish()
	case EscByte:
		if d.escapeNext {
			d.drop()
			return nil, fmt.Errorf("%w: double escape", ErrFraming)
		}
		d.escapeNext = true
		return nil, nil
	}

	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateIdle:
		// Waiting for START byte
		return nil, nil

	case stateHeader:
		d.header = b
		d.push(b)
		d.state = stateLength1
		return nil, nil

	case stateLength1:
		d.length = int(b)
		d.push(b)
		d.state = stateLength2
		return nil, nil

	case stateLength2:
		d.length |= int(b) << 8
		d.push(b)
		if d.length > MaxPayloadSize {
			n := d.length
			d.drop()
			return nil, fmt.Errorf("%w: %d (max %d)", ErrPayloadTooLarge, n, MaxPayloadSize)
		}
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		d.push(b)
		if d.bufferIndex-headerSize >= d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	default:
		// Bytes after the CRC and before END
		d.drop()
		return nil, fmt.Errorf("%w: missing END byte", ErrFraming)
	}
}

func (d *Decoder) push(b byte) {
	d.buffer[d.bufferIndex] = b
	d.bufferIndex++
}

func (d *Decoder) finish() (*Frame, error) {
	if d.state != stateEnd {
		state := d.state
		d.drop()
		if state == stateIdle {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: unexpected END byte in state %d", ErrFraming, state)
	}
	if d.escapeNext {
		d.drop()
		return nil, ErrIncompleteEscape
	}

	calculated := CalculateCRC(d.buffer[:d.bufferIndex])
	if calculated != d.crc {
		err := fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRC, calculated, d.crc)
		d.drop()
		return nil, err
	}

	payload := make([]byte, d.length)
	copy(payload, d.buffer[headerSize:d.bufferIndex])
	frame := &Frame{
		header:    d.header,
		payload:   payload,
		crc:       d.crc,
		timestamp: time.Now(),
	}
	d.Reset()
	return frame, nil
}
