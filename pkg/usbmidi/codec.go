// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package usbmidi

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/mcbridge/pkg/logging"
)

// Codec errors
var (
	// ErrFraming is returned for a data byte that does not belong to any message.
	ErrFraming = errors.New("usbmidi: framing error")

	// ErrOverflow is returned when a status byte interrupts an unfinished packet.
	ErrOverflow = errors.New("usbmidi: packet overflow")

	// ErrInvalidCable is returned for a cable index outside 0..15.
	ErrInvalidCable = errors.New("usbmidi: invalid cable")
)

// CableFrame is the reassembly state of one cable.
// filled counts MIDI bytes stored after the header byte.
type CableFrame struct {
	packet   Packet
	filled   int
	expected int
	inSysEx  bool
}

func (f *CableFrame) reset() {
	f.packet = Packet{}
	f.filled = 0
	f.expected = 0
}

// Filled returns the number of MIDI bytes waiting in the frame
func (f *CableFrame) Filled() int {
	return f.filled
}

// CodecStats counts codec diagnostics
type CodecStats struct {
	Packets  uint64
	Framing  uint64
	Overflow uint64
}

// Codec turns a MIDI byte stream into USB-MIDI packets, per cable
type Codec struct {
	frames [NumCables]CableFrame
	stats  CodecStats
}

// NewCodec creates a codec with all cables idle
func NewCodec() *Codec {
	return &Codec{}
}

// Frame returns the framing state of a cable
func (c *Codec) Frame(cable uint8) (*CableFrame, error) {
	if int(cable) >= NumCables {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCable, cable)
	}
	return &c.frames[cable], nil
}

// Reset drops any partial packet and SysEx state on a cable
func (c *Codec) Reset(cable uint8) {
	if int(cable) >= NumCables {
		return
	}
	c.frames[cable].reset()
	c.frames[cable].inSysEx = false
}

// Stats returns a copy of the diagnostic counters
func (c *Codec) Stats() CodecStats {
	return c.stats
}

// FeedByte adds one MIDI stream byte to the cable's frame.
// Returns the completed packet and true when the byte finished one.
// A non-nil error reports a dropped byte or packet; the codec stays usable.
func (c *Codec) FeedByte(cable uint8, b byte) (Packet, bool, error) {
	if int(cable) >= NumCables {
		return Packet{}, false, fmt.Errorf("%w: %d", ErrInvalidCable, cable)
	}
	f := &c.frames[cable]

	// System real time never disturbs the frame
	if b >= StatusRealTimeMin {
		c.stats.Packets++
		return NewPacket(cable, CINSingleByte, b, 0, 0), true, nil
	}

	if b == StatusEOX {
		return c.feedEOX(cable, f)
	}

	if b&0x80 != 0 {
		return c.feedStatus(cable, f, b)
	}

	// Data byte
	if f.inSysEx {
		f.packet[1+f.filled] = b
		f.filled++
		if f.filled == 3 {
			return c.complete(cable, f, CINSysExStart), true, nil
		}
		return Packet{}, false, nil
	}

	if f.filled == 0 {
		c.stats.Framing++
		logging.LogDebug(logging.ComponentCodec, "data byte without status", "cable", cable, "byte", b)
		return Packet{}, false, fmt.Errorf("%w: data byte 0x%02X without status on cable %d", ErrFraming, b, cable)
	}

	f.packet[1+f.filled] = b
	f.filled++
	if f.filled == f.expected {
		return c.complete(cable, f, statusCIN(f.packet[1])), true, nil
	}
	return Packet{}, false, nil
}

func (c *Codec) feedEOX(cable uint8, f *CableFrame) (Packet, bool, error) {
	if !f.inSysEx {
		var err error
		if f.filled != 0 {
			c.stats.Overflow++
			err = fmt.Errorf("%w: EOX inside 0x%02X message on cable %d", ErrOverflow, f.packet[1], cable)
		} else {
			c.stats.Framing++
			err = fmt.Errorf("%w: EOX without SysEx on cable %d", ErrFraming, cable)
		}
		f.reset()
		return Packet{}, false, err
	}

	f.packet[1+f.filled] = StatusEOX
	f.filled++
	f.inSysEx = false
	return c.complete(cable, f, CINSysExEnd1+CIN(f.filled-1)), true, nil
}

func (c *Codec) feedStatus(cable uint8, f *CableFrame, b byte) (Packet, bool, error) {
	var err error
	if f.inSysEx {
		c.stats.Overflow++
		err = fmt.Errorf("%w: status 0x%02X aborted SysEx on cable %d", ErrOverflow, b, cable)
		f.inSysEx = false
		f.reset()
	} else if f.filled != 0 {
		c.stats.Overflow++
		err = fmt.Errorf("%w: status 0x%02X interrupted 0x%02X on cable %d", ErrOverflow, b, f.packet[1], cable)
		f.reset()
	}

	switch {
	case b < 0xF0:
		f.expected = 3
		if hi := b & 0xF0; hi == 0xC0 || hi == 0xD0 {
			f.expected = 2
		}
	case b == StatusSysEx:
		f.inSysEx = true
		f.expected = 3
	case b == StatusTimeCode || b == StatusSongSelect:
		f.expected = 2
	case b == StatusSongPosition:
		f.expected = 3
	default:
		// 0xF4..0xF6: single byte system common
		f.packet[1] = b
		f.filled = 1
		return c.complete(cable, f, CINSysExEnd1), true, err
	}

	f.packet[1] = b
	f.filled = 1
	return Packet{}, false, err
}

func (c *Codec) complete(cable uint8, f *CableFrame, cin CIN) Packet {
	p := f.packet
	p[0] = (cable&0x0F)<<4 | byte(cin)
	f.reset()
	c.stats.Packets++
	return p
}

// statusCIN maps a non-SysEx status byte onto its CIN
func statusCIN(status byte) CIN {
	switch status {
	case StatusTimeCode, StatusSongSelect:
		return CINSysCommon2
	case StatusSongPosition:
		return CINSysCommon3
	}
	return CIN(status >> 4)
}

// FeedBytes runs a byte slice through FeedByte and collects the packets.
// Errors from individual bytes are joined; packets are still returned.
func (c *Codec) FeedBytes(cable uint8, data []byte) ([]Packet, error) {
	var packets []Packet
	var errs []error
	for _, b := range data {
		p, ok, err := c.FeedByte(cable, b)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			packets = append(packets, p)
		}
	}
	return packets, errors.Join(errs...)
}
