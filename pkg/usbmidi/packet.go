// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package usbmidi

import "fmt"

// Packet is one USB-MIDI event packet
type Packet [PacketSize]byte

// NewPacket builds a packet from its fields. The cable is masked to 4 bits.
func NewPacket(cable uint8, cin CIN, b0, b1, b2 byte) Packet {
	return Packet{(cable&0x0F)<<4 | byte(cin&0x0F), b0, b1, b2}
}

// Cable returns the virtual cable number
func (p Packet) Cable() uint8 {
	return p[0] >> 4
}

// CIN returns the Code Index Number
func (p Packet) CIN() CIN {
	return CIN(p[0] & 0x0F)
}

// Bytes returns the valid MIDI bytes carried by the packet
func (p Packet) Bytes() []byte {
	return Encode(p)
}

// String formats the packet for logs
func (p Packet) String() string {
	return fmt.Sprintf("cable=%d %s [%02X %02X %02X]", p.Cable(), p.CIN(), p[1], p[2], p[3])
}

// Encode extracts the MIDI bytes from a USB-MIDI packet according to its
// Code Index Number. Packets with a reserved CIN yield nil.
func Encode(p Packet) []byte {
	n := p.CIN().Size()
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, p[1:1+n])
	return out
}

// EncodeAll concatenates the MIDI bytes of a packet sequence
func EncodeAll(packets []Packet) []byte {
	out := make([]byte, 0, len(packets)*3)
	for _, p := range packets {
		out = append(out, Encode(p)...)
	}
	return out
}
