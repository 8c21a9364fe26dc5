// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package settings holds the per-surface bridge settings: which virtual
// cable carries Mackie Control traffic and how surface buttons are
// remapped. Settings are stored as YAML, one file per VID/PID.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/mcbridge/pkg/logging"
)

// AllCables selects every cable as the Mackie Control cable
const AllCables = 0xFF

// NumNotes is the size of the button map
const NumNotes = 128

const formatVersion = 1

// Settings errors
var (
	ErrInvalidCable = errors.New("invalid cable")
	ErrInvalidNote  = errors.New("invalid note")
)

// Model is the settings of the currently connected surface. It is not
// safe for concurrent use.
type Model struct {
	numIn     uint8
	numOut    uint8
	mcIn      uint8
	mcOut     uint8
	mapping   [NumNotes]uint8
	needsSave bool
}

// fileFormat is the on-disk layout. Only remapped buttons are listed.
type fileFormat struct {
	Version    int           `yaml:"version"`
	MCCableIn  int           `yaml:"mc_cable_in"`
	MCCableOut int           `yaml:"mc_cable_out"`
	ButtonMap  map[int]int   `yaml:"button_map,omitempty"`
	Device     *fileIdentity `yaml:"device,omitempty"`
}

type fileIdentity struct {
	VendorID  string `yaml:"vendor_id"`
	ProductID string `yaml:"product_id"`
	Product   string `yaml:"product,omitempty"`
}

// NewModel creates a model holding the default settings
func NewModel() *Model {
	m := &Model{numIn: 1, numOut: 1}
	m.LoadDefaults()
	return m
}

// LoadDefaults restores cable 0 and the identity button map
func (m *Model) LoadDefaults() {
	m.mcIn, m.mcOut = 0, 0
	for i := range m.mapping {
		m.mapping[i] = uint8(i)
	}
	m.needsSave = true
}

// SetNumCables records the cable counts of the connected surface
func (m *Model) SetNumCables(in, out uint8) {
	m.numIn, m.numOut = in, out
}

// NumCables returns the cable counts of the connected surface
func (m *Model) NumCables() (in, out uint8) {
	return m.numIn, m.numOut
}

// MCCable returns the cables carrying Mackie Control data to and from the DAW
func (m *Model) MCCable() (in, out uint8) {
	return m.mcIn, m.mcOut
}

func validCable(c, n uint8) bool {
	return c == AllCables || c < n || (n == 0 && c == 0)
}

// SetMCCable selects the Mackie Control cables
func (m *Model) SetMCCable(in, out uint8) error {
	if !validCable(in, m.numIn) {
		return fmt.Errorf("%w: in %d of %d", ErrInvalidCable, in, m.numIn)
	}
	if !validCable(out, m.numOut) {
		return fmt.Errorf("%w: out %d of %d", ErrInvalidCable, out, m.numOut)
	}
	m.mcIn, m.mcOut = in, out
	m.needsSave = true
	return nil
}

// IsMCCable reports whether cable carries DAW-to-surface Mackie Control data
func (m *Model) IsMCCable(cable uint8) bool {
	return m.mcOut == AllCables || cable == m.mcOut
}

// IsMCCableIn reports whether cable carries surface-to-DAW Mackie Control data
func (m *Model) IsMCCableIn(cable uint8) bool {
	return m.mcIn == AllCables || cable == m.mcIn
}

// RemapButton makes the surface button sending noteIn arrive at the DAW
// as noteOut. Mapping a note to itself undoes a remap.
func (m *Model) RemapButton(noteIn, noteOut uint8) error {
	if noteIn >= NumNotes || noteOut >= NumNotes {
		return fmt.Errorf("%w: %d -> %d", ErrInvalidNote, noteIn, noteOut)
	}
	if m.mapping[noteIn] != noteOut {
		m.mapping[noteIn] = noteOut
		m.needsSave = true
	}
	return nil
}

// ButtonMapping returns a copy of the button map
func (m *Model) ButtonMapping() [NumNotes]uint8 {
	return m.mapping
}

// MapToDAW maps a surface button note to the note sent to the DAW
func (m *Model) MapToDAW(note uint8) uint8 {
	if note >= NumNotes {
		return note
	}
	return m.mapping[note]
}

// MapToSurface maps a DAW LED note back to the surface button whose
// mapping produces it. Notes nothing maps to are returned unchanged.
func (m *Model) MapToSurface(note uint8) uint8 {
	if note >= NumNotes || m.mapping[note] == note {
		return note
	}
	for i, v := range m.mapping {
		if v == note {
			return uint8(i)
		}
	}
	return note
}

// NeedsSave reports whether the settings changed since the last save
func (m *Model) NeedsSave() bool {
	return m.needsSave
}

// ClearNeedsSave marks the settings as stored
func (m *Model) ClearNeedsSave() {
	m.needsSave = false
}

// Marshal encodes the settings as YAML
func (m *Model) Marshal() ([]byte, error) {
	f := m.toFile()
	return yaml.Marshal(&f)
}

func (m *Model) toFile() fileFormat {
	f := fileFormat{
		Version:    formatVersion,
		MCCableIn:  int(m.mcIn),
		MCCableOut: int(m.mcOut),
	}
	for i, v := range m.mapping {
		if int(v) != i {
			if f.ButtonMap == nil {
				f.ButtonMap = make(map[int]int)
			}
			f.ButtonMap[i] = int(v)
		}
	}
	return f
}

// Unmarshal decodes YAML settings. Out of range values fall back to
// their defaults.
func (m *Model) Unmarshal(data []byte) error {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	m.LoadDefaults()
	if f.MCCableIn >= 0 && f.MCCableIn <= AllCables && validCable(uint8(f.MCCableIn), m.numIn) {
		m.mcIn = uint8(f.MCCableIn)
	}
	if f.MCCableOut >= 0 && f.MCCableOut <= AllCables && validCable(uint8(f.MCCableOut), m.numOut) {
		m.mcOut = uint8(f.MCCableOut)
	}
	for in, out := range f.ButtonMap {
		if in < 0 || in >= NumNotes || out < 0 || out >= NumNotes {
			logging.LogWarn(logging.ComponentSettings, "ignoring invalid button map entry", "in", in, "out", out)
			continue
		}
		m.mapping[in] = uint8(out)
	}
	return nil
}

// Store reads and writes settings files in one directory
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir returns the per-user settings directory
func DefaultDir() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "mcbridge")
	}
	return ".mcbridge"
}

// Path returns the settings file for a surface
func (s *Store) Path(vid, pid uint16) string {
	return filepath.Join(s.dir, fmt.Sprintf("%04x-%04x.yaml", vid, pid))
}

// Load reads the settings for a surface into m. It returns false if no
// file exists yet.
func (s *Store) Load(vid, pid uint16, m *Model) (bool, error) {
	data, err := os.ReadFile(s.Path(vid, pid))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read settings: %w", err)
	}
	if err := m.Unmarshal(data); err != nil {
		return false, err
	}
	m.ClearNeedsSave()
	return true, nil
}

// Save writes the settings for a surface and clears NeedsSave
func (s *Store) Save(vid, pid uint16, product string, m *Model) error {
	f := m.toFile()
	// informational only, never read back
	f.Device = &fileIdentity{
		VendorID:  fmt.Sprintf("0x%04X", vid),
		ProductID: fmt.Sprintf("0x%04X", pid),
		Product:   product,
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	path := s.Path(vid, pid)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	m.ClearNeedsSave()
	logging.LogInfo(logging.ComponentSettings, "settings saved", "path", path)
	return nil
}

// LoadOrCreate loads the settings for a surface, writing defaults if none exist
func (s *Store) LoadOrCreate(vid, pid uint16, product string, m *Model) error {
	found, err := s.Load(vid, pid, m)
	if err != nil {
		logging.LogWarn(logging.ComponentSettings, "settings unreadable, using defaults", "error", err)
	}
	if found && err == nil {
		return nil
	}
	m.LoadDefaults()
	return s.Save(vid, pid, product, m)
}
