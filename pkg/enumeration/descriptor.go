// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package enumeration

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// USB descriptor types used while walking a configuration descriptor
const (
	DescriptorTypeDevice        = 0x01
	DescriptorTypeConfiguration = 0x02
	DescriptorTypeString        = 0x03
	DescriptorTypeInterface     = 0x04
	DescriptorTypeEndpoint      = 0x05
	DescriptorTypeCSEndpoint    = 0x25 // Class-specific endpoint
)

// MIDI streaming class-specific endpoint subtype
const msGeneral = 0x01

// Descriptor sizes
const (
	DeviceDescriptorSize        = 18
	ConfigurationDescriptorSize = 9
)

// Descriptor parse errors
var (
	ErrDescriptorTooShort     = errors.New("descriptor too short")
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")
)

// DeviceDescriptor is a USB device descriptor
type DeviceDescriptor struct {
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// ParseDeviceDescriptor parses an 18 byte device descriptor
func ParseDeviceDescriptor(data []byte) (DeviceDescriptor, error) {
	var d DeviceDescriptor
	if len(data) < DeviceDescriptorSize || data[0] != DeviceDescriptorSize {
		return d, ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeDevice {
		return d, ErrDescriptorTypeMismatch
	}
	d.USBVersion = binary.LittleEndian.Uint16(data[2:4])
	d.DeviceClass = data[4]
	d.DeviceSubClass = data[5]
	d.DeviceProtocol = data[6]
	d.MaxPacketSize0 = data[7]
	d.VendorID = binary.LittleEndian.Uint16(data[8:10])
	d.ProductID = binary.LittleEndian.Uint16(data[10:12])
	d.DeviceVersion = binary.LittleEndian.Uint16(data[12:14])
	d.ManufacturerIndex = data[14]
	d.ProductIndex = data[15]
	d.SerialNumberIndex = data[16]
	d.NumConfigurations = data[17]
	return d, nil
}

// ConfigTotalLength returns wTotalLength of a configuration descriptor
func ConfigTotalLength(data []byte) (int, error) {
	if len(data) < 4 {
		return 0, ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeConfiguration {
		return 0, ErrDescriptorTypeMismatch
	}
	return int(binary.LittleEndian.Uint16(data[2:4])), nil
}

// CountCables walks a configuration descriptor and returns the number of
// embedded MIDI jacks on the OUT endpoint (rx) and IN endpoint (tx), read
// from the MIDI streaming endpoint descriptor that follows each endpoint.
func CountCables(config []byte) (rx, tx uint8) {
	var lastEndpoint byte
	haveEndpoint := false
	for i := 0; i+1 < len(config); {
		length := int(config[i])
		if length < 2 || i+length > len(config) {
			break
		}
		desc := config[i : i+length]
		switch desc[1] {
		case DescriptorTypeEndpoint:
			if length >= 3 {
				lastEndpoint = desc[2]
				haveEndpoint = true
			}
		case DescriptorTypeCSEndpoint:
			if haveEndpoint && length >= 4 && desc[2] == msGeneral {
				if lastEndpoint&0x80 == 0 {
					rx = desc[3]
				} else {
					tx = desc[3]
				}
				haveEndpoint = false
			}
		}
		i += length
	}
	return rx, tx
}

// DecodeUTF16LE converts little endian UTF-16 bytes to a string. A
// trailing odd byte is ignored.
func DecodeUTF16LE(b []byte) string {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u = append(u, binary.LittleEndian.Uint16(b[i:]))
	}
	return string(utf16.Decode(u))
}

// EncodeUTF16LE converts a string to little endian UTF-16 bytes
func EncodeUTF16LE(s string) []byte {
	u := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(u))
	for i, c := range u {
		binary.LittleEndian.PutUint16(out[2*i:], c)
	}
	return out
}
