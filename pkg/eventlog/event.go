// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import (
	"time"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
)

// Event is one recorded bridge event. CBOR uses integer keys.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies one run of a bridge unit (UUID)
	SessionID string    `cbor:"2,keyasint"`
	Unit      Unit      `cbor:"3,keyasint"`
	Direction Direction `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// One of these is set
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"12,keyasint,omitempty"`
}

// Unit is the bridge unit that recorded the event
type Unit uint8

const (
	UnitDevice Unit = 0
	UnitHost   Unit = 1
)

func (u Unit) String() string {
	switch u {
	case UnitDevice:
		return "DEVICE"
	case UnitHost:
		return "HOST"
	default:
		return "UNKNOWN"
	}
}

// Direction of a frame relative to the recording unit
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event
type Category uint8

const (
	CategoryFrame Category = 0
	CategoryState Category = 1
	CategoryError Category = 2
)

func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent is a command channel frame
type FrameEvent struct {
	Header  uint8  `cbor:"1,keyasint"`
	Payload []byte `cbor:"2,keyasint,omitempty"`
}

// Frame returns the event payload as a command frame
func (f *FrameEvent) Frame() *bridgecmd.Frame {
	return bridgecmd.NewFrame(f.Header, f.Payload)
}

// StateChangeEvent records a state machine transition
type StateChangeEvent struct {
	Entity   string `cbor:"1,keyasint"`
	OldState string `cbor:"2,keyasint"`
	NewState string `cbor:"3,keyasint"`
	Reason   string `cbor:"4,keyasint,omitempty"`
}

// ErrorEvent records an error and its taxonomy kind
type ErrorEvent struct {
	Kind    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Context string `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent builds a frame event stamped now
func NewFrameEvent(session string, unit Unit, dir Direction, header uint8, payload []byte) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: session,
		Unit:      unit,
		Direction: dir,
		Category:  CategoryFrame,
		Frame:     &FrameEvent{Header: header, Payload: append([]byte(nil), payload...)},
	}
}

// NewStateEvent builds a state change event stamped now
func NewStateEvent(session string, unit Unit, entity, oldState, newState, reason string) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: session,
		Unit:      unit,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// NewErrorEvent builds an error event stamped now
func NewErrorEvent(session string, unit Unit, kind string, err error, context string) Event {
	return Event{
		Timestamp: time.Now(),
		SessionID: session,
		Unit:      unit,
		Category:  CategoryError,
		Error:     &ErrorEvent{Kind: kind, Message: err.Error(), Context: context},
	}
}
