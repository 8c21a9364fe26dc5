// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package midiport connects the bridge units to the computer's MIDI
// system through rtmidi. The device unit's DAW-facing side becomes a set
// of virtual ports named after the surface; the host unit talks to a
// physical control surface through existing ports.
package midiport

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// ErrNoCable is returned when a packet addresses a cable without a port
var ErrNoCable = errors.New("no port for cable")

// ErrPortNotFound is returned when no port matches a requested name
var ErrPortNotFound = errors.New("midi port not found")

// Driver owns the rtmidi driver. Ports opened through it are closed by
// their own Close; the driver is closed last.
type Driver struct {
	drv *rtmididrv.Driver

	// VirtualName overrides the base name of virtual ports, which is
	// otherwise the product string of the surface
	VirtualName string
}

// Open starts the rtmidi driver
func Open() (*Driver, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("midi driver: %w", err)
	}
	return &Driver{drv: drv}, nil
}

// Close stops the driver
func (d *Driver) Close() error {
	return d.drv.Close()
}

// Ports lists the names of the available input and output ports
func (d *Driver) Ports() (ins, outs []string, err error) {
	inPorts, err := d.drv.Ins()
	if err != nil {
		return nil, nil, fmt.Errorf("list inputs: %w", err)
	}
	outPorts, err := d.drv.Outs()
	if err != nil {
		return nil, nil, fmt.Errorf("list outputs: %w", err)
	}
	for _, p := range inPorts {
		ins = append(ins, p.String())
	}
	for _, p := range outPorts {
		outs = append(outs, p.String())
	}
	return ins, outs, nil
}

// PortName names the virtual port of one cable. A single cable uses the
// base name as is.
func PortName(base string, cable, cables uint8) string {
	if cables <= 1 {
		return base
	}
	return fmt.Sprintf("%s %d", base, cable+1)
}

// matchPort picks the port whose name equals name, or failing that the
// first one containing it
func matchPort[P drivers.Port](ports []P, name string) (P, bool) {
	for _, p := range ports {
		if p.String() == name {
			return p, true
		}
	}
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), strings.ToLower(name)) {
			return p, true
		}
	}
	var zero P
	return zero, false
}
