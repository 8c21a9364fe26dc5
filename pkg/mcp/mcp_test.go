// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/mcbridge/pkg/fadersync"
)

var testSerial = [SerialLength]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}

func newTestClassifier(t *testing.T) (*Classifier, *time.Time) {
	t.Helper()
	c := NewClassifier(NewResponderWithSerial(testSerial))
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Display().SetClock(func() time.Time { return now })
	return c, &now
}

func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func textSysEx(offset byte, text string) []byte {
	msg := []byte{0xF0, 0x00, 0x00, 0x66, ModelMain, SubChannelText, offset}
	msg = append(msg, text...)
	return append(msg, 0xF7)
}

// ============================================================
// LED Notes
// ============================================================

func TestClassify_StripLEDs(t *testing.T) {
	tests := []struct {
		name    string
		msg     []byte
		channel int
		check   func(s *ChannelStrip) bool
	}{
		{"rec ch1", []byte{0x90, 0x00, 0x7F}, 0, func(s *ChannelStrip) bool { return s.Rec }},
		{"solo ch3", []byte{0x90, 0x0A, 0x7F}, 2, func(s *ChannelStrip) bool { return s.Solo }},
		{"mute ch8", []byte{0x90, 0x17, 0x01}, 7, func(s *ChannelStrip) bool { return s.Mute }},
		{"select ch5", []byte{0x90, 0x1C, 0x7F}, 4, func(s *ChannelStrip) bool { return s.Select }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClassifier(t)
			res := c.Classify(tt.msg)
			if res.Route != ConsumedAndForwarded {
				t.Errorf("route = %s, want CONSUMED_AND_FORWARDED", res.Route)
			}
			if !res.Route.Forward() {
				t.Error("LED notes must still be forwarded")
			}
			if !tt.check(&c.Display().Strips[tt.channel]) {
				t.Error("LED not set")
			}
			off := []byte{tt.msg[0], tt.msg[1], 0x00}
			c.Classify(off)
			if tt.check(&c.Display().Strips[tt.channel]) {
				t.Error("velocity 0 should turn LED off")
			}
		})
	}
}

func TestClassify_OtherNotesPass(t *testing.T) {
	c, _ := newTestClassifier(t)
	for _, note := range []byte{0x20, 0x28, 0x34, 0x5E, 0x70} {
		if res := c.Classify([]byte{0x90, note, 0x7F}); res.Route != PassThrough {
			t.Errorf("note 0x%02X route = %s", note, res.Route)
		}
	}
}

func TestClassify_TimecodeLEDs(t *testing.T) {
	c, _ := newTestClassifier(t)
	seven := &c.Display().Seven

	c.Classify([]byte{0x90, NoteSMPTELED, 0x7F})
	c.Classify([]byte{0x90, NoteBeatsLED, 0x01})
	if !seven.SMPTE || !seven.Beats {
		t.Fatalf("SMPTE=%v Beats=%v", seven.SMPTE, seven.Beats)
	}
	// only 0x01 and 0x7F light the LEDs
	c.Classify([]byte{0x90, NoteSMPTELED, 0x40})
	if seven.SMPTE {
		t.Error("velocity 0x40 should turn SMPTE LED off")
	}
}

// ============================================================
// VPot / Meter
// ============================================================

func TestClassify_VPot(t *testing.T) {
	tests := []struct {
		value uint8
		pled  bool
		mode  VPotMode
		pos   uint8
	}{
		{0x4A, true, VPotSingleDot, 10},
		{0x5A, true, VPotBoostCut, 10},
		{0x26, false, VPotWrap, 6},
		{0x3B, false, VPotSpread, 11},
		{0x0C, false, VPotSingleDot, 0}, // out of range position
	}

	for _, tt := range tests {
		c, _ := newTestClassifier(t)
		res := c.Classify([]byte{0xB0, 0x32, tt.value})
		if res.Route != ConsumedByDisplay {
			t.Errorf("0x%02X: route = %s", tt.value, res.Route)
		}
		v := c.Display().Strips[2].VPot
		if v.PLED != tt.pled || v.Mode != tt.mode || v.Value != tt.pos {
			t.Errorf("0x%02X: got %+v", tt.value, v)
		}
	}
}

func TestVPot_Ring(t *testing.T) {
	tests := []struct {
		v    VPot
		want uint16
	}{
		{VPot{Mode: VPotSingleDot, Value: 6}, 1 << 6},
		{VPot{Mode: VPotWrap, Value: 3}, 0b1110},
		{VPot{Mode: VPotBoostCut, Value: 4}, 1<<4 | 1<<5 | 1<<6},
		{VPot{Mode: VPotBoostCut, Value: 8}, 1<<6 | 1<<7 | 1<<8},
		{VPot{Mode: VPotSpread, Value: 8}, 1<<4 | 1<<5 | 1<<6 | 1<<7 | 1<<8},
		{VPot{Mode: VPotSpread, Value: 0}, 0},
	}
	for _, tt := range tests {
		if got := tt.v.Ring(); got != tt.want {
			t.Errorf("%s %d: ring = %012b, want %012b", tt.v.Mode, tt.v.Value, got, tt.want)
		}
	}
}

func TestClassify_Meter(t *testing.T) {
	c, now := newTestClassifier(t)
	m := &c.Display().Strips[2].Meter

	if res := c.Classify([]byte{0xD0, 0x2C}); res.Route != ConsumedByDisplay {
		t.Fatalf("route = %s", res.Route)
	}
	if m.Level != 12 || m.Overload {
		t.Errorf("after 0x2C: level=%d overload=%v", m.Level, m.Overload)
	}

	c.Classify([]byte{0xD0, 0x2E})
	if m.Level != 12 || !m.Overload {
		t.Errorf("after 0x2E: level=%d overload=%v", m.Level, m.Overload)
	}

	c.Classify([]byte{0xD0, 0x2D})
	if m.Level != 12 || !m.Overload {
		t.Error("0xD must not change the meter")
	}

	c.Classify([]byte{0xD0, 0x25})
	c.Classify([]byte{0xD0, 0x2F})
	if m.Level != 5 || m.Overload {
		t.Errorf("after 0x25,0x2F: level=%d overload=%v", m.Level, m.Overload)
	}

	if c.Tick(now.Add(100 * time.Millisecond)) {
		t.Error("meter should hold for one decay interval")
	}
	if !c.Tick(now.Add(MeterDecayInterval)) || m.Level != 4 {
		t.Errorf("level after one interval = %d, want 4", m.Level)
	}
	if !c.Tick(now.Add(2*MeterDecayInterval)) || m.Level != 3 {
		t.Errorf("level after two intervals = %d, want 3", m.Level)
	}
}

func TestMeter_DecayKeepsOverload(t *testing.T) {
	c, now := newTestClassifier(t)
	c.Classify([]byte{0xD0, 0x0E})
	m := &c.Display().Strips[0].Meter
	for i := 1; i <= 20; i++ {
		c.Tick(now.Add(time.Duration(i) * MeterDecayInterval))
	}
	if m.Level != 0 || !m.Overload {
		t.Errorf("level=%d overload=%v", m.Level, m.Overload)
	}
}

// ============================================================
// Seven Segment
// ============================================================

func TestDigitSymbol(t *testing.T) {
	tests := []struct {
		v    uint8
		want byte
	}{
		{0x01, 'A'},
		{0x02, 'b'},
		{0x04, 'd'},
		{0x05, 'E'},
		{0x08, 'h'},
		{0x0E, 'n'},
		{0x0F, 'o'},
		{0x12, 'r'},
		{0x14, 't'},
		{0x15, 'u'},
		{0x20, ' '},
		{0x30, '0'},
		{0x39, '9'},
		{0x70, '0'}, // decimal point stripped
	}
	for _, tt := range tests {
		if got := DigitSymbol(tt.v); got != tt.want {
			t.Errorf("DigitSymbol(0x%02X) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestClassify_Digits(t *testing.T) {
	c, _ := newTestClassifier(t)
	seven := &c.Display().Seven

	for i, v := range []byte{0x31, 0x32, 0x33} {
		if res := c.Classify([]byte{0xB0, 0x40 + byte(i), v}); res.Route != ConsumedByDisplay {
			t.Fatalf("route = %s", res.Route)
		}
	}
	c.Classify([]byte{0xBF, 0x4B, 0x01})
	c.Classify([]byte{0xBF, 0x4A, 0x75})

	if got := seven.Timecode(); got != "       321" {
		t.Errorf("timecode = %q", got)
	}
	if got := seven.Assignment(); got != "A5" {
		t.Errorf("assignment = %q", got)
	}
	if !seven.Dots[10] {
		t.Error("decimal point not recorded")
	}
	if res := c.Classify([]byte{0xB0, 0x4C, 0x30}); res.Route != PassThrough {
		t.Errorf("CC 0x4C route = %s", res.Route)
	}
	if res := c.Classify([]byte{0xB1, 0x40, 0x30}); res.Route != PassThrough {
		t.Errorf("channel 2 CC route = %s", res.Route)
	}
}

func TestClassify_BulkDigits(t *testing.T) {
	c, _ := newTestClassifier(t)
	msg := []byte{0xF0, 0x00, 0x00, 0x66, ModelMain, SubTimecodeBulk, 0x34, 0x33, 0x32, 0x31, 0xF7}
	if res := c.Classify(msg); res.Route != ConsumedByDisplay {
		t.Fatalf("route = %s", res.Route)
	}
	if got := c.Display().Seven.Timecode(); got != "      1234" {
		t.Errorf("timecode = %q", got)
	}
}

// ============================================================
// Faders
// ============================================================

func TestClassify_Fader(t *testing.T) {
	c, _ := newTestClassifier(t)
	res := c.Classify([]byte{0xE3, 0x00, 0x40})
	if res.Route != ConsumedBySync {
		t.Fatalf("route = %s", res.Route)
	}
	if got := c.Faders().Fader(3).Target(); got != 8192 {
		t.Errorf("target = %d, want 8192", got)
	}
	// no physical position yet, so the fader still has to be learned
	if got := c.Faders().Fader(3).State(); got != fadersync.Unknown {
		t.Errorf("state = %s, want UNKNOWN", got)
	}
	if _, ok := c.Faders().UpdateFader(3, 8192); !ok {
		t.Error("matching surface position should synchronize")
	}
	if res := c.Classify([]byte{0xE9, 0x00, 0x40}); res.Route != PassThrough {
		t.Errorf("pitch bend channel 10 route = %s", res.Route)
	}
}

// ============================================================
// SysEx
// ============================================================

func TestClassify_DeviceQuery(t *testing.T) {
	c, _ := newTestClassifier(t)
	res := c.Classify([]byte{0xF0, 0x00, 0x00, 0x66, 0x14, 0x00, 0xF7})
	want := []byte{0xF0, 0x00, 0x00, 0x66, 0x14, 0x01,
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
		0x01, 0x02, 0x03, 0x04, 0xF7}
	if res.Route != ConsumedByDisplay || !bytes.Equal(res.Reply, want) {
		t.Errorf("route=%s reply=% X", res.Route, res.Reply)
	}
}

func TestClassify_SerialQuery(t *testing.T) {
	c, _ := newTestClassifier(t)
	res := c.Classify([]byte{0xF0, 0x00, 0x00, 0x66, 0x14, 0x1A, 0x00, 0xF7})
	want := []byte{0xF0, 0x00, 0x00, 0x66, 0x14, 0x1B, 0x58, 0x59, 0x5A, 0x11, 0x22, 0x33, 0x44, 0xF7}
	if !bytes.Equal(res.Reply, want) {
		t.Errorf("reply = % X", res.Reply)
	}
}

func TestResponder_RandomSerial(t *testing.T) {
	r := NewResponder()
	for i, b := range r.Serial() {
		if b > 0x7F {
			t.Errorf("serial byte %d = 0x%02X is not a data byte", i, b)
		}
	}
}

func TestClassify_ExtenderDropped(t *testing.T) {
	c, _ := newTestClassifier(t)
	res := c.Classify([]byte{0xF0, 0x00, 0x00, 0x66, 0x15, 0x12, 0x00, 'H', 'i', 0xF7})
	if res.Route != ConsumedByDisplay || res.Reply != nil {
		t.Errorf("route=%s reply=% X", res.Route, res.Reply)
	}
	if c.Display().Strips[0].Line(0) != "       " {
		t.Error("extender text must not reach the display")
	}
}

func TestClassify_UnknownSysExPasses(t *testing.T) {
	c, _ := newTestClassifier(t)
	for _, msg := range [][]byte{
		{0xF0, 0x00, 0x00, 0x66, 0x14, 0x0A, 0x01, 0xF7},
		{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7},
		{0xF0, 0x00, 0x00, 0x66, 0x14, 0x12, 0x00, 0xF7}, // text without characters
	} {
		if res := c.Classify(msg); res.Route != PassThrough {
			t.Errorf("% X: route = %s", msg, res.Route)
		}
	}
}

// ============================================================
// Channel Text
// ============================================================

func TestChannelText_Defaults(t *testing.T) {
	d := NewDisplay()
	for i := 0; i < NumChannels; i++ {
		if got := d.Strips[i].Line(0); got != "       " {
			t.Errorf("ch%d line 0 = %q", i+1, got)
		}
		if got := d.Strips[i].Line(1); got != "Ch "+strconv.Itoa(i+1)+"   " {
			t.Errorf("ch%d line 1 = %q", i+1, got)
		}
	}
}

func TestClassify_ChannelText(t *testing.T) {
	tests := []struct {
		name    string
		offset  byte
		text    string
		channel int
		line    int
		want    string
	}{
		{"first cell", 0, "Volume", 0, 0, "Volume "},
		{"second channel", 7, "Pan", 1, 0, "Pan    "},
		{"mid field", 9, "xy", 1, 0, "  xy   "},
		{"lower line", 56, "-12.5", 0, 1, "-12.5  "},
		{"last channel lower", 105, "Master!", 7, 1, "Master!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClassifier(t)
			if tt.line == 1 {
				c.Display().Strips[tt.channel].Text[1] = [7]byte{' ', ' ', ' ', ' ', ' ', ' ', ' '}
			}
			if tt.line == 0 && tt.offset%7 != 0 {
				c.Display().Strips[tt.channel].Text[0] = [7]byte{' ', ' ', ' ', ' ', ' ', ' ', ' '}
			}
			res := c.Classify(textSysEx(tt.offset, tt.text))
			if res.Route != ConsumedByDisplay {
				t.Fatalf("route = %s", res.Route)
			}
			if got := c.Display().Strips[tt.channel].Line(tt.line); got != tt.want {
				t.Errorf("line = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_ChannelTextSpansChannels(t *testing.T) {
	c, _ := newTestClassifier(t)
	c.Classify(textSysEx(0, strings.Repeat("a", 7)+strings.Repeat("b", 7)+"cc"))
	d := c.Display()
	if d.Strips[0].Line(0) != "aaaaaaa" || d.Strips[1].Line(0) != "bbbbbbb" || d.Strips[2].Line(0) != "cc     " {
		t.Errorf("lines: %q %q %q", d.Strips[0].Line(0), d.Strips[1].Line(0), d.Strips[2].Line(0))
	}
}

func TestClassify_ChannelTextOutOfRangePasses(t *testing.T) {
	c, _ := newTestClassifier(t)
	before := c.Snapshot()
	res := c.Classify(textSysEx(112, "Lost"))
	if res.Route != PassThrough || res.Reply != nil {
		t.Errorf("offset 112: route = %s, reply = % X", res.Route, res.Reply)
	}
	if c.Snapshot() != before {
		t.Error("offset 112 changed the display")
	}
}

func TestClassify_ChannelTextTruncatesAtLastCell(t *testing.T) {
	c, _ := newTestClassifier(t)
	c.Classify(textSysEx(110, "XYZW"))
	if got := c.Display().Strips[7].Line(1); got != "Ch 8 XY" {
		t.Errorf("last strip lower = %q", got)
	}
	if got := c.Display().Strips[0].Line(0); got != "       " {
		t.Errorf("overflow wrapped into strip 1: %q", got)
	}
}

// TestFuzz_ChannelText checks every offset 0..111 with random text
// lengths against a flat 112-cell reference.
func TestFuzz_ChannelText(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for offset := 0; offset < TextCells; offset++ {
		for r := 0; r < rounds/TextCells+1; r++ {
			d := NewDisplay()
			var ref [TextCells]byte
			for c := 0; c < TextCells; c++ {
				ref[c] = d.Strips[(c%TextLineCells)/TextColumns].Text[c/TextLineCells][c%TextColumns]
			}

			text := make([]byte, rng.Intn(2*TextCells)+1)
			for i := range text {
				text[i] = byte(0x20 + rng.Intn(0x5F))
			}
			for i, ch := range text {
				if offset+i < TextCells {
					ref[offset+i] = ch
				}
			}

			if !d.SetText(offset, text) {
				t.Fatalf("offset %d len %d: nothing written", offset, len(text))
			}
			for c := 0; c < TextCells; c++ {
				got := d.Strips[(c%TextLineCells)/TextColumns].Text[c/TextLineCells][c%TextColumns]
				if got != ref[c] {
					t.Fatalf("offset %d len %d: cell %d = %q, want %q", offset, len(text), c, got, ref[c])
				}
			}
		}
	}
}

func TestSetText_OffsetPastEnd(t *testing.T) {
	d := NewDisplay()
	if d.SetText(TextCells, []byte("abc")) {
		t.Error("offset 112 should write nothing")
	}
}

// ============================================================
// Idempotence / Snapshot
// ============================================================

func TestClassify_Idempotent(t *testing.T) {
	msgs := [][]byte{
		{0x90, 0x08, 0x7F},
		{0x90, 0x71, 0x7F},
		{0xB0, 0x33, 0x5A},
		{0xB0, 0x45, 0x33},
		{0xD0, 0x47},
		{0xE2, 0x10, 0x20},
		textSysEx(20, "Idem"),
		{0xF0, 0x00, 0x00, 0x66, 0x14, 0x00, 0xF7},
		{0x80, 0x10, 0x00},
	}

	for _, msg := range msgs {
		c, _ := newTestClassifier(t)
		first := c.Classify(msg)
		snap1 := c.Snapshot()
		second := c.Classify(msg)
		snap2 := c.Snapshot()
		if first.Route != second.Route || !bytes.Equal(first.Reply, second.Reply) {
			t.Errorf("% X: results differ %s / %s", msg, first.Route, second.Route)
		}
		if snap1 != snap2 {
			t.Errorf("% X: state changed on second application", msg)
		}
	}
}

func TestSnapshot_CBOR(t *testing.T) {
	c, _ := newTestClassifier(t)
	c.Classify(textSysEx(0, "Kick"))
	c.Classify([]byte{0xD0, 0x09})
	c.Classify([]byte{0x90, 0x10, 0x7F})

	data, err := EncodeSnapshot(c.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Strips[0].Upper != "Kick   " || snap.Strips[0].Meter != 9 || !snap.Strips[0].Mute {
		t.Errorf("decoded strip = %+v", snap.Strips[0])
	}
	if snap.FaderStates[0] != fadersync.Unknown.String() {
		t.Errorf("fader state = %s", snap.FaderStates[0])
	}
}

func TestSnapshot_LastActivity(t *testing.T) {
	c, now := newTestClassifier(t)
	if !c.Snapshot().LastActivity.IsZero() {
		t.Fatal("fresh display reports activity")
	}

	*now = now.Add(5 * time.Second)
	c.Classify([]byte{0xB0, 0x31, 0x05})
	changed := *now
	if got := c.Snapshot().LastActivity; !got.Equal(changed) {
		t.Errorf("last activity = %v, want %v", got, changed)
	}

	// pass-through traffic leaves the display alone
	*now = now.Add(time.Second)
	c.Classify([]byte{0xB0, 0x3C, 0x01})
	if got := c.Snapshot().LastActivity; !got.Equal(changed) {
		t.Errorf("jog moved last activity to %v", got)
	}
}

// ============================================================
// Formatting
// ============================================================

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		msg  []byte
		want string
	}{
		{[]byte{0x90, 0x11, 0x7F}, "MUTE ch2 ON"},
		{[]byte{0x90, 0x35, 0x00}, "SMPTE/BEATS OFF"},
		{[]byte{0xB0, 0x41, 0x02}, "DIGIT 1 'b'"},
		{[]byte{0xB0, 0x12, 0x41}, "VPOT_TURN ch3 -1"},
		{[]byte{0xD0, 0x3C}, "METER ch4 0xC"},
		{[]byte{0xE8, 0x7F, 0x7F}, "FADER 8 pos=16383"},
		{[]byte{0xF0, 0x00, 0x00, 0x66, 0x14, 0x00, 0xF7}, "MCU DEVICE_QUERY"},
	}
	for _, tt := range tests {
		if got := FormatMessage(tt.msg); got != tt.want {
			t.Errorf("FormatMessage(% X) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
