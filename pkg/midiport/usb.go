// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package midiport

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/Thermoquad/mcbridge/pkg/bridge"
	"github.com/Thermoquad/mcbridge/pkg/enumeration"
	"github.com/Thermoquad/mcbridge/pkg/logging"
	"github.com/Thermoquad/mcbridge/pkg/sysex"
	"github.com/Thermoquad/mcbridge/pkg/usbmidi"
)

// OpenUSB implements bridge.UsbOpener. It creates one virtual input per
// cable the DAW writes to and one virtual output per cable it reads.
func (d *Driver) OpenUSB(info enumeration.DeviceInfo, sink bridge.UsbEventSink) (bridge.UsbPort, error) {
	base := d.VirtualName
	if base == "" {
		base = info.Product
	}
	if base == "" {
		base = fmt.Sprintf("MC Bridge %04x:%04x", info.VendorID, info.ProductID)
	}
	rx, tx := max(info.RxCables, 1), max(info.TxCables, 1)

	p := newUSBPort(sink, tx)
	for c := uint8(0); c < rx; c++ {
		in, err := d.drv.OpenVirtualIn(PortName(base, c, rx))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("open virtual input: %w", err)
		}
		p.ins = append(p.ins, in)
		cable := c
		stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
			p.receive(cable, msg)
		}, midi.UseSysEx())
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("listen on %s: %w", in.String(), err)
		}
		p.stops = append(p.stops, stop)
	}
	for c := uint8(0); c < tx; c++ {
		out, err := d.drv.OpenVirtualOut(PortName(base, c, tx))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("open virtual output: %w", err)
		}
		p.outs = append(p.outs, out)
		send, err := midi.SendTo(out)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("send to %s: %w", out.String(), err)
		}
		p.send[c] = send
	}

	logging.LogInfo(logging.ComponentPort, "virtual ports open", "name", base, "inputs", rx, "outputs", tx)
	// virtual ports exist for as long as the bridge runs
	sink.OnUSBMounted()
	return p, nil
}

// usbPort turns USB-MIDI packets into whole MIDI messages for rtmidi and
// back. receive runs on rtmidi's callback thread; everything else on the
// bridge loop.
type usbPort struct {
	sink bridge.UsbEventSink

	mu    sync.Mutex
	codec *usbmidi.Codec

	send  []func(midi.Message) error
	accum []*sysex.Accumulator

	ins   []drivers.In
	outs  []drivers.Out
	stops []func()
	once  sync.Once
}

func newUSBPort(sink bridge.UsbEventSink, cables uint8) *usbPort {
	p := &usbPort{
		sink:  sink,
		codec: usbmidi.NewCodec(),
		send:  make([]func(midi.Message) error, cables),
		accum: make([]*sysex.Accumulator, cables),
	}
	for i := range p.accum {
		p.accum[i] = sysex.New(sysex.DefaultCapacity)
	}
	return p
}

func (p *usbPort) receive(cable uint8, msg []byte) {
	p.mu.Lock()
	packets, err := p.codec.FeedBytes(cable, msg)
	p.mu.Unlock()
	if err != nil {
		logging.LogDebug(logging.ComponentPort, "malformed message from DAW", "cable", cable, "error", err)
	}
	for _, pk := range packets {
		p.sink.OnUSBPacket(pk)
	}
}

// WritePacket sends one packet to the DAW. SysEx is collected until the
// message is whole; rtmidi takes complete messages only.
func (p *usbPort) WritePacket(pk usbmidi.Packet) error {
	c := int(pk.Cable())
	if c >= len(p.send) || p.send[c] == nil {
		return fmt.Errorf("%w %d", ErrNoCable, c)
	}
	acc := p.accum[c]

	switch pk.CIN() {
	case usbmidi.CINMisc, usbmidi.CINCableEvent:
		return nil
	case usbmidi.CINSysExEnd1:
		if pk[1] != sysex.EOX && !acc.Active() {
			return p.send[c](pk.Bytes())
		}
	case usbmidi.CINSysExStart, usbmidi.CINSysExEnd2, usbmidi.CINSysExEnd3:
	default:
		return p.send[c](pk.Bytes())
	}

	switch acc.Append(pk.Bytes()...) {
	case sysex.Complete:
		msg := acc.Bytes()
		acc.Reset()
		return p.send[c](msg)
	case sysex.Aborted:
		acc.Reset()
		return fmt.Errorf("%w on cable %d", bridge.ErrSysExAborted, c)
	}
	return nil
}

func (p *usbPort) Close() error {
	var first error
	p.once.Do(func() {
		for _, stop := range p.stops {
			stop()
		}
		for _, in := range p.ins {
			if err := in.Close(); err != nil && first == nil {
				first = err
			}
		}
		for _, out := range p.outs {
			if err := out.Close(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}
