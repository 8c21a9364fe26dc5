// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package midiport

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/Thermoquad/mcbridge/pkg/bridge"
	"github.com/Thermoquad/mcbridge/pkg/logging"
)

// OpenSurface connects to an existing control surface. Names match a
// port exactly or as a case-insensitive substring. The surface is cable 0.
func (d *Driver) OpenSurface(inName, outName string, sink bridge.SurfaceSink) (bridge.SurfacePort, error) {
	ins, err := d.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("list inputs: %w", err)
	}
	outs, err := d.drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	in, ok := matchPort(ins, inName)
	if !ok {
		return nil, fmt.Errorf("%w: input %q", ErrPortNotFound, inName)
	}
	out, ok := matchPort(outs, outName)
	if !ok {
		return nil, fmt.Errorf("%w: output %q", ErrPortNotFound, outName)
	}

	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", out.String(), err)
	}
	s := &surfacePort{in: in, out: out, send: send}
	s.stop, err = midi.ListenTo(in, func(msg midi.Message, _ int32) {
		sink.OnSurfaceMIDI(0, msg)
	}, midi.UseSysEx())
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("listen on %s: %w", in.String(), err)
	}
	logging.LogInfo(logging.ComponentPort, "surface connected", "in", in.String(), "out", out.String())
	return s, nil
}

type surfacePort struct {
	in   drivers.In
	out  drivers.Out
	send func(midi.Message) error
	stop func()
	once sync.Once
}

// WriteMIDI sends bytes to the surface. Only cable 0 reaches it; other
// cables are dropped.
func (s *surfacePort) WriteMIDI(cable uint8, data []byte) error {
	if cable != 0 {
		logging.LogDebug(logging.ComponentPort, "dropping midi for unconnected cable", "cable", cable)
		return nil
	}
	return s.send(data)
}

func (s *surfacePort) Close() error {
	var err error
	s.once.Do(func() {
		s.stop()
		err = s.in.Close()
		if cerr := s.out.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
