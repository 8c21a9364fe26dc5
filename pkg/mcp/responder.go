// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"bytes"

	"github.com/google/uuid"
)

// SerialLength is the number of serial number bytes reported to the DAW
const SerialLength = 7

// Responder answers the DAW's device and serial number queries on behalf
// of the surface
type Responder struct {
	serial [SerialLength]byte
}

// NewResponder creates a responder with a fresh per-session serial number
func NewResponder() *Responder {
	id := uuid.New()
	var serial [SerialLength]byte
	for i := range serial {
		serial[i] = id[i] & 0x7F
	}
	return NewResponderWithSerial(serial)
}

// NewResponderWithSerial creates a responder with a fixed serial number
func NewResponderWithSerial(serial [SerialLength]byte) *Responder {
	for i := range serial {
		serial[i] &= 0x7F
	}
	return &Responder{serial: serial}
}

// Serial returns the serial number
func (r *Responder) Serial() [SerialLength]byte {
	return r.serial
}

// Reply returns the answer to a complete SysEx query, or nil if the
// message is not a query.
func (r *Responder) Reply(msg []byte) []byte {
	switch {
	case bytes.Equal(msg, deviceQuery):
		reply := append([]byte{}, sysexHeader...)
		reply = append(reply, ModelMain, SubHostQuery)
		reply = append(reply, r.serial[:]...)
		reply = append(reply, 0x01, 0x02, 0x03, 0x04, StatusEOX)
		return reply
	case bytes.Equal(msg, serialQuery):
		reply := append([]byte{}, sysexHeader...)
		reply = append(reply, ModelMain, SubSerialResponse, 0x58, 0x59, 0x5A)
		reply = append(reply, r.serial[:4]...)
		return append(reply, StatusEOX)
	}
	return nil
}

var (
	deviceQuery = []byte{0xF0, 0x00, 0x00, 0x66, ModelMain, SubDeviceQuery, StatusEOX}
	serialQuery = []byte{0xF0, 0x00, 0x00, 0x66, ModelMain, SubSerialRequest, serialRequestSuffix, StatusEOX}
)
