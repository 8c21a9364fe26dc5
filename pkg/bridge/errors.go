// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
	"github.com/Thermoquad/mcbridge/pkg/enumeration"
	"github.com/Thermoquad/mcbridge/pkg/usbmidi"
)

// Bridge errors that have no home in a lower package
var (
	ErrSysExTruncated = errors.New("sysex truncated")
	ErrSysExAborted   = errors.New("sysex aborted")
)

// ErrorKind is the handling class of an error
type ErrorKind int

// Error kinds
const (
	KindNone ErrorKind = iota
	KindFraming
	KindCapacity
	KindProtocol
	KindBackpressure
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindFraming:
		return "FRAMING"
	case KindCapacity:
		return "CAPACITY"
	case KindProtocol:
		return "PROTOCOL"
	case KindBackpressure:
		return "BACKPRESSURE"
	case KindTransport:
		return "TRANSPORT"
	}
	return "UNKNOWN"
}

// Classify maps an error onto its handling class. Anything unrecognized
// is a transport error.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, usbmidi.ErrFraming),
		errors.Is(err, bridgecmd.ErrCRC),
		errors.Is(err, bridgecmd.ErrFraming),
		errors.Is(err, bridgecmd.ErrIncompleteEscape):
		return KindFraming
	case errors.Is(err, usbmidi.ErrOverflow),
		errors.Is(err, bridgecmd.ErrPayloadTooLarge),
		errors.Is(err, ErrSysExTruncated),
		errors.Is(err, ErrSysExAborted):
		return KindCapacity
	case errors.Is(err, enumeration.ErrStale),
		errors.Is(err, enumeration.ErrFatal):
		return KindProtocol
	case errors.Is(err, bridgecmd.ErrQueueFull):
		return KindBackpressure
	}
	return KindTransport
}

// ErrorCounts tallies errors per kind
type ErrorCounts struct {
	Framing      uint64
	Capacity     uint64
	Protocol     uint64
	Backpressure uint64
	Transport    uint64
}

// Add counts one error and returns its kind
func (c *ErrorCounts) Add(err error) ErrorKind {
	k := Classify(err)
	switch k {
	case KindFraming:
		c.Framing++
	case KindCapacity:
		c.Capacity++
	case KindProtocol:
		c.Protocol++
	case KindBackpressure:
		c.Backpressure++
	case KindTransport:
		c.Transport++
	}
	return k
}

// Total returns the number of counted errors
func (c ErrorCounts) Total() uint64 {
	return c.Framing + c.Capacity + c.Protocol + c.Backpressure + c.Transport
}
