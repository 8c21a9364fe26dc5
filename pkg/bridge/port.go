// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"github.com/Thermoquad/mcbridge/pkg/enumeration"
	"github.com/Thermoquad/mcbridge/pkg/usbmidi"
)

// UsbEventSink receives events from the DAW-facing USB-MIDI port
type UsbEventSink interface {
	OnUSBPacket(p usbmidi.Packet)
	OnUSBMounted()
	OnUSBUnmounted()
}

// UsbPort is the DAW-facing USB-MIDI port of the device unit
type UsbPort interface {
	WritePacket(p usbmidi.Packet) error
	Close() error
}

// UsbOpener opens the DAW-facing port once the surface identity is
// known. Events for the port are delivered to sink.
type UsbOpener interface {
	OpenUSB(info enumeration.DeviceInfo, sink UsbEventSink) (UsbPort, error)
}

// SurfaceSink receives MIDI bytes from the control surface
type SurfaceSink interface {
	OnSurfaceMIDI(cable uint8, data []byte)
}

// SurfacePort is the host unit's connection to the control surface
type SurfacePort interface {
	WriteMIDI(cable uint8, data []byte) error
	Close() error
}

// postingSink hands USB events to the goroutine that owns the bridge
type postingSink struct {
	target UsbEventSink
	post   func(func())
}

func (s postingSink) OnUSBPacket(p usbmidi.Packet) {
	s.post(func() { s.target.OnUSBPacket(p) })
}

func (s postingSink) OnUSBMounted() {
	s.post(s.target.OnUSBMounted)
}

func (s postingSink) OnUSBUnmounted() {
	s.post(s.target.OnUSBUnmounted)
}

type postingSurfaceSink struct {
	target SurfaceSink
	post   func(func())
}

func (s postingSurfaceSink) OnSurfaceMIDI(cable uint8, data []byte) {
	b := append([]byte(nil), data...)
	s.post(func() { s.target.OnSurfaceMIDI(cable, b) })
}
