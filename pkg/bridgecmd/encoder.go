// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridgecmd

import (
	"fmt"
)

// Encode creates a complete wire-formatted frame.
// Returns the bytes ready for transmission, including framing and byte stuffing.
func Encode(header uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	// header + length + payload is what gets CRC'd and byte-stuffed
	data := make([]byte, 0, headerSize+len(payload)+2)
	data = append(data, header, byte(len(payload)), byte(len(payload)>>8))
	data = append(data, payload...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)

	return frame, nil
}

// EncodeMIDI splits a MIDI byte run into as many cable frames as needed
func EncodeMIDI(cable uint8, data []byte) ([][]byte, error) {
	if cable > MidiCableLast {
		return nil, fmt.Errorf("cable %d out of range", cable)
	}
	var frames [][]byte
	for len(data) > 0 {
		n := len(data)
		if n > MaxPayloadSize {
			n = MaxPayloadSize
		}
		frame, err := Encode(cable, data[:n])
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
		data = data[n:]
	}
	return frames, nil
}

// stuffBytes applies byte stuffing to escape special bytes.
// Special bytes (START, END, ESC) are replaced with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}

	return result
}

// UnstuffBytes removes byte stuffing from escaped data.
// This is the inverse of stuffBytes.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, ErrIncompleteEscape
	}

	return result, nil
}
