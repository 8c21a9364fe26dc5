// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package settings

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile describes the USB identity of the control surface attached to
// the host unit. The host answers descriptor requests from it.
type Profile struct {
	Name             string          `yaml:"name"`
	DeviceDescriptor string          `yaml:"device_descriptor"`
	ConfigDescriptor string          `yaml:"config_descriptor"`
	LangIDs          []uint16        `yaml:"langids"`
	Strings          []ProfileString `yaml:"strings"`
}

// ProfileString is one string descriptor
type ProfileString struct {
	Index  uint8  `yaml:"index"`
	LangID uint16 `yaml:"langid"`
	Text   string `yaml:"text"`
}

// ErrInvalidProfile is returned for a profile that cannot be served
var ErrInvalidProfile = errors.New("invalid profile")

// LoadProfile reads a YAML profile
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the descriptors decode and have sane lengths
func (p *Profile) Validate() error {
	dev, err := p.DeviceBytes()
	if err != nil {
		return err
	}
	if len(dev) != 18 {
		return fmt.Errorf("%w: device descriptor is %d bytes", ErrInvalidProfile, len(dev))
	}
	cfg, err := p.ConfigBytes()
	if err != nil {
		return err
	}
	if len(cfg) < 9 || int(cfg[2])|int(cfg[3])<<8 != len(cfg) {
		return fmt.Errorf("%w: configuration descriptor length mismatch", ErrInvalidProfile)
	}
	return nil
}

// DeviceBytes decodes the device descriptor
func (p *Profile) DeviceBytes() ([]byte, error) {
	return decodeHex("device_descriptor", p.DeviceDescriptor)
}

// ConfigBytes decodes the configuration descriptor
func (p *Profile) ConfigBytes() ([]byte, error) {
	return decodeHex("config_descriptor", p.ConfigDescriptor)
}

// StringIndices returns the distinct string indices in profile order
func (p *Profile) StringIndices() []uint8 {
	seen := make(map[uint8]bool)
	var out []uint8
	for _, s := range p.Strings {
		if !seen[s.Index] {
			seen[s.Index] = true
			out = append(out, s.Index)
		}
	}
	return out
}

// Lookup returns the text of one string descriptor
func (p *Profile) Lookup(index uint8, langid uint16) (string, bool) {
	for _, s := range p.Strings {
		if s.Index == index && s.LangID == langid {
			return s.Text, true
		}
	}
	return "", false
}

func decodeHex(field, s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", "\n", "", "\t", "", ",", "", "0x", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfile, field, err)
	}
	return b, nil
}

// DefaultProfile is a single-cable Mackie Control surface
func DefaultProfile() *Profile {
	return &Profile{
		Name:             "Mackie Control surface",
		DeviceDescriptor: "12 01 00 02 00 00 00 40 a4 2c 00 01 00 01 01 02 03 01",
		ConfigDescriptor: "09 02 65 00 02 01 00 80 32" +
			"09 04 00 00 00 01 01 00 00" +
			"09 24 01 00 01 09 00 01 01" +
			"09 04 01 00 02 01 03 00 00" +
			"07 24 01 00 01 41 00" +
			"06 24 02 01 01 00" +
			"06 24 02 02 02 00" +
			"09 24 03 01 03 01 02 01 00" +
			"09 24 03 02 04 01 01 01 00" +
			"09 05 01 02 40 00 00 00 00" +
			"05 25 01 01 01" +
			"09 05 81 02 40 00 00 00 00" +
			"05 25 01 01 03",
		LangIDs: []uint16{0x0409},
		Strings: []ProfileString{
			{Index: 1, LangID: 0x0409, Text: "Thermoquad"},
			{Index: 2, LangID: 0x0409, Text: "MC Surface"},
			{Index: 3, LangID: 0x0409, Text: "000001"},
		},
	}
}
