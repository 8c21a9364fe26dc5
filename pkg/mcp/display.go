// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"time"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
)

// MeterDecayInterval is how long a meter holds a level before dropping one step
const MeterDecayInterval = 300 * time.Millisecond

// VPot is the state of one rotary encoder LED ring
type VPot struct {
	PLED  bool
	Mode  VPotMode
	Value uint8 // 0 = ring off, 1-11 = LED position
}

// SetByCC decodes a ring CC value: bit 6 center LED, bits 5-4 mode, bits 3-0 position
func (v *VPot) SetByCC(value uint8) {
	v.PLED = value&0x40 != 0
	v.Mode = VPotMode((value >> 4) & 0x3)
	v.Value = value & 0xF
	if v.Value > 11 {
		v.Value = 0
	}
}

// Ring returns the lit ring LEDs as a bitmap, bit n for LED n (1-11)
func (v VPot) Ring() uint16 {
	if v.Value == 0 {
		return 0
	}
	var ring uint16
	for led := uint8(1); led <= 11; led++ {
		lit := false
		switch v.Mode {
		case VPotSingleDot:
			lit = led == v.Value
		case VPotBoostCut:
			if v.Value >= 6 {
				lit = led >= 6 && led <= v.Value
			} else {
				lit = led >= v.Value && led <= 6
			}
		case VPotWrap:
			lit = led <= v.Value
		case VPotSpread:
			delta := int(v.Value) - 6
			if delta < 0 {
				delta = -delta
			}
			lit = int(led) >= 6-delta && int(led) <= 6+delta
		}
		if lit {
			ring |= 1 << led
		}
	}
	return ring
}

// Meter is one channel level meter
type Meter struct {
	Level    uint8 // 0-12
	Overload bool
	lastSet  time.Time
}

// SetByPressure applies the low nibble of a channel pressure meter message
func (m *Meter) SetByPressure(d uint8, now time.Time) {
	switch v := d & 0xF; {
	case v == 0xF:
		m.Overload = false
	case v == 0xE:
		m.Level = MaxMeterLevel
		m.Overload = true
		m.lastSet = now
	case v <= 0xC:
		m.Level = v
		m.lastSet = now
	}
	// 0xD is undefined and ignored
}

// decay drops the level by one if it has been held for a full interval
func (m *Meter) decay(now time.Time) bool {
	if m.Level == 0 || now.Sub(m.lastSet) < MeterDecayInterval {
		return false
	}
	m.Level--
	m.lastSet = now
	return true
}

// ChannelStrip is the display state of one of the eight channels
type ChannelStrip struct {
	Rec    bool
	Solo   bool
	Mute   bool
	Select bool
	VPot   VPot
	Meter  Meter
	Text   [TextLines][TextColumns]byte
}

func newChannelStrip(channel int) ChannelStrip {
	var s ChannelStrip
	copy(s.Text[0][:], "       ")
	copy(s.Text[1][:], "Ch     ")
	s.Text[1][3] = byte('1' + channel)
	return s
}

// Line returns one text line as a string
func (s *ChannelStrip) Line(n int) string {
	if n < 0 || n >= TextLines {
		return ""
	}
	return string(s.Text[n][:])
}

// SevenSegment holds the twelve timecode/assignment digits and the
// SMPTE/BEATS indicator LEDs. Digit 0 is the rightmost timecode digit;
// digits 10 and 11 are the two character assignment display.
type SevenSegment struct {
	Digits [NumDigits]byte
	Dots   [NumDigits]bool
	SMPTE  bool
	Beats  bool
}

// Timecode returns the ten timecode digits left to right
func (s *SevenSegment) Timecode() string {
	out := make([]byte, TimecodeDigits)
	for i := 0; i < TimecodeDigits; i++ {
		out[i] = s.Digits[TimecodeDigits-1-i]
	}
	return string(out)
}

// Assignment returns the two character mode display left to right
func (s *SevenSegment) Assignment() string {
	return string([]byte{s.Digits[11], s.Digits[10]})
}

// DigitSymbol maps a seven segment character code to ASCII. Codes below
// 0x20 are letters; those the segments can only draw in lower case are
// returned lower case.
func DigitSymbol(v uint8) byte {
	v &= 0x3F
	if v >= 0x20 {
		return ' ' + (v - 0x20)
	}
	c := '@' + v
	switch c {
	case 'B', 'D', 'H', 'N', 'O', 'Q', 'R', 'T', 'U':
		c += 0x20
	}
	return c
}

// Display is the full mirrored surface display state
type Display struct {
	Strips       [NumChannels]ChannelStrip
	Seven        SevenSegment
	ButtonMode   bridgecmd.ChannelButtonMode
	Nav          uint8
	ActiveCable  uint8
	CableKnown   bool
	now          func() time.Time
	lastActivity time.Time
}

// NewDisplay creates a display with default text and blank digits
func NewDisplay() *Display {
	d := &Display{now: time.Now}
	d.Clear()
	return d
}

// Clear restores every element to its power-on state
func (d *Display) Clear() {
	for i := range d.Strips {
		d.Strips[i] = newChannelStrip(i)
	}
	d.Seven = SevenSegment{}
	for i := range d.Seven.Digits {
		d.Seven.Digits[i] = ' '
	}
	d.ButtonMode = bridgecmd.ModeSelect
	d.Nav = 0
}

// SetClock replaces the time source used to stamp meter levels
func (d *Display) SetClock(now func() time.Time) {
	d.now = now
}

// LastActivity returns when the display last changed from a DAW message
func (d *Display) LastActivity() time.Time {
	return d.lastActivity
}

func (d *Display) touch() {
	d.lastActivity = d.now()
}

// SetStripLED applies a note 0x00-0x1F. Returns false for other notes.
func (d *Display) SetStripLED(note, velocity uint8) bool {
	if note > NoteStripLast {
		return false
	}
	s := &d.Strips[note&0x7]
	on := velocity != 0
	switch note >> 3 {
	case 0:
		s.Rec = on
	case 1:
		s.Solo = on
	case 2:
		s.Mute = on
	case 3:
		s.Select = on
	}
	d.touch()
	return true
}

// SetTimecodeLED applies the SMPTE and BEATS indicator notes
func (d *Display) SetTimecodeLED(note, velocity uint8) bool {
	on := velocity == 0x01 || velocity == 0x7F
	switch note {
	case NoteSMPTELED:
		d.Seven.SMPTE = on
	case NoteBeatsLED:
		d.Seven.Beats = on
	default:
		return false
	}
	d.touch()
	return true
}

// SetVPot applies a ring CC to a channel
func (d *Display) SetVPot(channel int, value uint8) {
	if channel < 0 || channel >= NumChannels {
		return
	}
	d.Strips[channel].VPot.SetByCC(value)
	d.touch()
}

// SetMeter applies a channel pressure meter byte
func (d *Display) SetMeter(data uint8) {
	d.Strips[(data>>4)&0x7].Meter.SetByPressure(data, d.now())
	d.touch()
}

// SetDigit applies a timecode CC 0x40-0x4B. Returns false for other CCs.
func (d *Display) SetDigit(cc, value uint8) bool {
	if cc < CCDigitFirst || cc > CCDigitLast {
		return false
	}
	digit := cc & 0xF
	d.Seven.Digits[digit] = DigitSymbol(value)
	d.Seven.Dots[digit] = value&0x40 != 0
	d.touch()
	return true
}

// SetDigits writes a run of digits starting at the rightmost one
func (d *Display) SetDigits(values []byte) {
	for i, v := range values {
		if i >= NumDigits {
			break
		}
		d.SetDigit(CCDigitFirst|uint8(i), v)
	}
}

// SetText writes characters into the 112-cell text area starting at
// offset. Cell c is line c/56, channel (c%56)/7, column c%7. Characters
// that fall past the last cell are ignored. Returns true if any cell
// was written.
func (d *Display) SetText(offset int, text []byte) bool {
	wrote := false
	for i, ch := range text {
		c := offset + i
		if c < 0 {
			continue
		}
		if c >= TextCells {
			break
		}
		line := c / TextLineCells
		channel := (c % TextLineCells) / TextColumns
		d.Strips[channel].Text[line][c%TextColumns] = ch
		wrote = true
	}
	if wrote {
		d.touch()
	}
	return wrote
}

// Decay steps every meter down that has held its level for a full
// interval. Overload flags are left alone. Returns true if any meter changed.
func (d *Display) Decay(now time.Time) bool {
	changed := false
	for i := range d.Strips {
		if d.Strips[i].Meter.decay(now) {
			changed = true
		}
	}
	return changed
}

// SetButtonMode records the channel button mode selected on the panel
func (d *Display) SetButtonMode(m bridgecmd.ChannelButtonMode) {
	d.ButtonMode = m
}

// SetNav records the most recent nav button bitmap
func (d *Display) SetNav(bitmap uint8) {
	d.Nav = bitmap
}

// SetActiveCable records which cable carries Mackie Control traffic
func (d *Display) SetActiveCable(cable uint8) {
	d.ActiveCable = cable
	d.CableKnown = true
}
