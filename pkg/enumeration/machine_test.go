// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package enumeration

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
)

type sentFrame struct {
	header  uint8
	payload []byte
}

type recorder struct {
	sent []sentFrame
}

func (r *recorder) SendCommand(header uint8, payload []byte) error {
	r.sent = append(r.sent, sentFrame{header, append([]byte(nil), payload...)})
	return nil
}

func (r *recorder) last() sentFrame {
	if len(r.sent) == 0 {
		return sentFrame{header: 0xFF}
	}
	return r.sent[len(r.sent)-1]
}

func (r *recorder) count(header uint8) int {
	n := 0
	for _, f := range r.sent {
		if f.header == header {
			n++
		}
	}
	return n
}

var testDevDesc = []byte{
	0x12, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x40,
	0x34, 0x12, // VID 0x1234
	0x78, 0x56, // PID 0x5678
	0x00, 0x01, 0x01, 0x02, 0x03, 0x01,
}

// makeConfig builds a configuration descriptor with a 2-jack OUT endpoint,
// a 1-jack IN endpoint, padded with class-specific interface descriptors
// to exactly total bytes.
func makeConfig(total int) []byte {
	cfg := []byte{0x09, 0x02, 0x00, 0x00, 0x02, 0x01, 0x00, 0x80, 0x32}
	cfg = append(cfg, 0x07, 0x05, 0x01, 0x02, 0x40, 0x00, 0x00) // EP 1 OUT
	cfg = append(cfg, 0x06, 0x25, 0x01, 0x02, 0x01, 0x02)       // MS general, 2 jacks
	cfg = append(cfg, 0x07, 0x05, 0x81, 0x02, 0x40, 0x00, 0x00) // EP 1 IN
	cfg = append(cfg, 0x05, 0x25, 0x01, 0x01, 0x03)             // MS general, 1 jack
	for rem := total - len(cfg); rem > 0; rem = total - len(cfg) {
		n := min(rem, 100)
		if rem-n == 1 {
			n--
		}
		pad := make([]byte, n)
		pad[0] = byte(n)
		pad[1] = 0x24
		cfg = append(cfg, pad...)
	}
	binary.LittleEndian.PutUint16(cfg[2:], uint16(len(cfg)))
	return cfg
}

// fakeHost answers requests the way the host unit does
type fakeHost struct {
	devDesc []byte
	config  []byte
	langids []uint16
	indices []uint8
	strings map[StringKey]string
}

func newFakeHost(configLen int) *fakeHost {
	return &fakeHost{
		devDesc: testDevDesc,
		config:  makeConfig(configLen),
		langids: []uint16{0x0409, 0x0407},
		indices: []uint8{1, 2, 3},
		strings: map[StringKey]string{
			{1, 0x0409}: "Thermoquad",
			{2, 0x0409}: "Mixing Surface",
			{3, 0x0409}: "SN0001",
			{1, 0x0407}: "Thermoquad",
			{2, 0x0407}: "Mischpult",
			{3, 0x0407}: "SN0001",
		},
	}
}

func (h *fakeHost) respond(req sentFrame) (uint8, []byte, bool) {
	chunk := func(i int) []byte {
		start := i * bridgecmd.ConfigDescMaxPayload
		end := min(start+bridgecmd.ConfigDescMaxPayload, len(h.config))
		return h.config[start:end]
	}
	switch req.header {
	case bridgecmd.RequestDevDesc:
		return bridgecmd.ReturnDevDesc, h.devDesc, true
	case bridgecmd.RequestConfDesc0:
		return bridgecmd.ReturnConfDesc0, chunk(0), true
	case bridgecmd.RequestConfDesc1:
		return bridgecmd.ReturnConfDesc1, chunk(1), true
	case bridgecmd.RequestConfDesc2:
		return bridgecmd.ReturnConfDesc2, chunk(2), true
	case bridgecmd.RequestDevLangids:
		var p []byte
		for _, id := range h.langids {
			p = binary.LittleEndian.AppendUint16(p, id)
		}
		return bridgecmd.ReturnDevLangids, p, true
	case bridgecmd.RequestDevStringIdxs:
		return bridgecmd.ReturnDevStringIdxs, h.indices, true
	case bridgecmd.RequestDevString:
		key := StringKey{req.payload[0], binary.LittleEndian.Uint16(req.payload[1:])}
		p := append([]byte{}, req.payload...)
		return bridgecmd.ReturnDevString, append(p, EncodeUTF16LE(h.strings[key])...), true
	}
	return 0, nil, false
}

// run answers every request in order until the machine stops asking
func run(t *testing.T, m *Machine, r *recorder, h *fakeHost, now time.Time) {
	t.Helper()
	for i := 0; i < len(r.sent); i++ {
		header, payload, ok := h.respond(r.sent[i])
		if !ok {
			continue
		}
		if err := m.HandleResponse(header, payload, now); err != nil {
			t.Fatalf("response %s: %v", bridgecmd.FormatHeader(header), err)
		}
	}
}

// ============================================================
// Descriptor Helpers
// ============================================================

func TestParseDeviceDescriptor(t *testing.T) {
	d, err := ParseDeviceDescriptor(testDevDesc)
	if err != nil {
		t.Fatal(err)
	}
	if d.VendorID != 0x1234 || d.ProductID != 0x5678 || d.ProductIndex != 2 {
		t.Errorf("parsed %+v", d)
	}
	bad := append([]byte{}, testDevDesc...)
	bad[1] = DescriptorTypeConfiguration
	if _, err := ParseDeviceDescriptor(bad); !errors.Is(err, ErrDescriptorTypeMismatch) {
		t.Errorf("expected type mismatch, got %v", err)
	}
	if _, err := ParseDeviceDescriptor(testDevDesc[:10]); !errors.Is(err, ErrDescriptorTooShort) {
		t.Errorf("expected too short, got %v", err)
	}
}

func TestCountCables(t *testing.T) {
	for _, total := range []int{34, 150, 450} {
		rx, tx := CountCables(makeConfig(total))
		if rx != 2 || tx != 1 {
			t.Errorf("total %d: rx=%d tx=%d, want 2/1", total, rx, tx)
		}
	}
	// truncated descriptors must not panic
	cfg := makeConfig(60)
	for n := 0; n < len(cfg); n++ {
		CountCables(cfg[:n])
	}
}

func TestUTF16LE(t *testing.T) {
	for _, s := range []string{"", "MCU Pro", "Mischpult ä", "🎚"} {
		if got := DecodeUTF16LE(EncodeUTF16LE(s)); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

// ============================================================
// Canonical Sequence
// ============================================================

func TestMachine_CanonicalSequence(t *testing.T) {
	for _, configLen := range []int{101, 200, 201, 400, 401, 600} {
		r := &recorder{}
		var completed, configured int
		var info DeviceInfo
		m := New(r,
			WithOnConfigured(func(DeviceInfo) { configured++ }),
			WithOnComplete(func(i DeviceInfo) { completed++; info = i }))
		h := newFakeHost(configLen)
		now := time.Now()

		if err := m.Start(now); err != nil {
			t.Fatal(err)
		}
		run(t, m, r, h, now)

		if m.State() != Operating {
			t.Fatalf("config %d: state = %s", configLen, m.State())
		}
		if n := r.count(bridgecmd.Resynchronize); n != 1 {
			t.Errorf("config %d: RESYNCHRONIZE sent %d times", configLen, n)
		}
		if completed != 1 || configured != 1 {
			t.Errorf("config %d: callbacks configured=%d complete=%d", configLen, configured, completed)
		}
		wantChunks := (configLen + bridgecmd.ConfigDescMaxPayload - 1) / bridgecmd.ConfigDescMaxPayload
		gotChunks := r.count(bridgecmd.RequestConfDesc0) + r.count(bridgecmd.RequestConfDesc1) + r.count(bridgecmd.RequestConfDesc2)
		if gotChunks != wantChunks {
			t.Errorf("config %d: %d chunk requests, want %d", configLen, gotChunks, wantChunks)
		}
		if !bytes.Equal(m.ConfigDescriptor(), h.config) {
			t.Errorf("config %d: reassembled descriptor differs", configLen)
		}
		if info.VendorID != 0x1234 || info.ProductID != 0x5678 || info.RxCables != 2 || info.TxCables != 1 {
			t.Errorf("config %d: info %+v", configLen, info)
		}
		if info.Product != "Mixing Surface" || info.Manufacturer != "Thermoquad" {
			t.Errorf("config %d: strings %q %q", configLen, info.Manufacturer, info.Product)
		}
		if r.count(bridgecmd.RequestDevString) != len(h.indices)*len(h.langids) {
			t.Errorf("config %d: %d string requests", configLen, r.count(bridgecmd.RequestDevString))
		}
	}
}

func TestMachine_StringOrder(t *testing.T) {
	r := &recorder{}
	m := New(r)
	h := newFakeHost(50)
	now := time.Now()
	m.Start(now)
	run(t, m, r, h, now)

	var keys []StringKey
	for _, f := range r.sent {
		if f.header == bridgecmd.RequestDevString {
			keys = append(keys, StringKey{f.payload[0], binary.LittleEndian.Uint16(f.payload[1:])})
		}
	}
	want := []StringKey{
		{1, 0x0409}, {2, 0x0409}, {3, 0x0409},
		{1, 0x0407}, {2, 0x0407}, {3, 0x0407},
	}
	if len(keys) != len(want) {
		t.Fatalf("requested %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("request %d = %+v, want %+v", i, keys[i], want[i])
		}
	}
}

func TestMachine_EmptyListsGoStraightToOperating(t *testing.T) {
	tests := []struct {
		name    string
		langids []uint16
		indices []uint8
	}{
		{"no strings", []uint16{0x0409}, nil},
		{"no languages", nil, []uint8{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			m := New(r)
			h := newFakeHost(40)
			h.langids = tt.langids
			h.indices = tt.indices
			now := time.Now()
			m.Start(now)
			run(t, m, r, h, now)
			if m.State() != Operating {
				t.Fatalf("state = %s", m.State())
			}
			if r.count(bridgecmd.RequestDevString) != 0 {
				t.Error("no string should be requested")
			}
			if r.count(bridgecmd.Resynchronize) != 1 {
				t.Error("RESYNCHRONIZE should be sent once")
			}
		})
	}
}

// ============================================================
// Stale / Fatal
// ============================================================

func TestMachine_StaleResponsesIgnored(t *testing.T) {
	r := &recorder{}
	m := New(r)
	h := newFakeHost(450)
	now := time.Now()
	m.Start(now)

	// responses for later states arrive first
	for _, header := range []uint8{bridgecmd.ReturnConfDesc2, bridgecmd.ReturnConfDesc1, bridgecmd.ReturnDevLangids, bridgecmd.ReturnDevString} {
		if err := m.HandleResponse(header, []byte{0x09, 0x04, 0x00}, now); !errors.Is(err, ErrStale) {
			t.Errorf("%s: expected ErrStale, got %v", bridgecmd.FormatHeader(header), err)
		}
	}
	if m.State() != DevDescriptor {
		t.Fatalf("state moved to %s", m.State())
	}

	m.HandleResponse(bridgecmd.ReturnDevDesc, h.devDesc, now)
	// duplicate device descriptor
	if err := m.HandleResponse(bridgecmd.ReturnDevDesc, h.devDesc, now); !errors.Is(err, ErrStale) {
		t.Errorf("duplicate: expected ErrStale, got %v", err)
	}
	// chunk 1 before chunk 0
	if err := m.HandleResponse(bridgecmd.ReturnConfDesc1, h.config[200:400], now); !errors.Is(err, ErrStale) {
		t.Errorf("out of order chunk: expected ErrStale, got %v", err)
	}
	if m.StaleResponses() != 6 {
		t.Errorf("stale count = %d", m.StaleResponses())
	}

	// the in-order sequence still completes
	r.sent = r.sent[len(r.sent)-1:]
	run(t, m, r, h, now)
	if m.State() != Operating {
		t.Errorf("state = %s", m.State())
	}
}

func TestMachine_WrongStringIgnored(t *testing.T) {
	r := &recorder{}
	m := New(r)
	h := newFakeHost(40)
	h.indices = []uint8{1, 2}
	h.langids = []uint16{0x0409}
	now := time.Now()
	m.Start(now)
	for i := 0; i < len(r.sent) && r.sent[i].header != bridgecmd.RequestDevString; i++ {
		header, payload, _ := h.respond(r.sent[i])
		m.HandleResponse(header, payload, now)
	}
	if m.State() != AllStrings {
		t.Fatalf("state = %s", m.State())
	}
	// answer for index 2 while index 1 is outstanding
	if err := m.HandleResponse(bridgecmd.ReturnDevString, []byte{2, 0x09, 0x04, 'x', 0}, now); !errors.Is(err, ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}
	if _, ok := m.Text(2, 0x0409); ok {
		t.Error("stale string must not be stored")
	}
}

func TestMachine_FatalDeviceDescriptor(t *testing.T) {
	r := &recorder{}
	m := New(r)
	now := time.Now()
	m.Start(now)
	err := m.HandleResponse(bridgecmd.ReturnDevDesc, testDevDesc[:17], now)
	if !errors.Is(err, ErrFatal) {
		t.Fatalf("expected ErrFatal, got %v", err)
	}
	if m.State() != DevDescriptor {
		t.Errorf("state advanced to %s", m.State())
	}
}

func TestMachine_FatalConfigLength(t *testing.T) {
	for _, total := range []int{601, 8} {
		r := &recorder{}
		m := New(r)
		now := time.Now()
		m.Start(now)
		m.HandleResponse(bridgecmd.ReturnDevDesc, testDevDesc, now)
		chunk := make([]byte, 200)
		chunk[0], chunk[1] = 9, DescriptorTypeConfiguration
		binary.LittleEndian.PutUint16(chunk[2:], uint16(total))
		if err := m.HandleResponse(bridgecmd.ReturnConfDesc0, chunk, now); !errors.Is(err, ErrFatal) {
			t.Errorf("total %d: expected ErrFatal, got %v", total, err)
		}
		if m.State() != ConfDescriptor {
			t.Errorf("total %d: state = %s", total, m.State())
		}
	}
}

// ============================================================
// Retry / Resynchronize
// ============================================================

func TestMachine_RetryOnlyInDevDescriptor(t *testing.T) {
	r := &recorder{}
	m := New(r)
	start := time.Now()

	m.Tick(start.Add(5 * time.Second))
	if len(r.sent) != 0 {
		t.Fatal("Tick before Start should not send")
	}

	m.Start(start)
	m.Tick(start.Add(500 * time.Millisecond))
	m.Tick(start.Add(time.Second))
	m.Tick(start.Add(1500 * time.Millisecond))
	m.Tick(start.Add(2 * time.Second))
	if n := r.count(bridgecmd.RequestDevDesc); n != 3 {
		t.Errorf("REQUEST_DEV_DESC sent %d times, want 3", n)
	}

	m.HandleResponse(bridgecmd.ReturnDevDesc, testDevDesc, start.Add(2*time.Second))
	before := len(r.sent)
	m.Tick(start.Add(10 * time.Second))
	if len(r.sent) != before {
		t.Error("no retry outside DevDescriptor")
	}
}

func TestMachine_ResynchronizeRestarts(t *testing.T) {
	r := &recorder{}
	m := New(r)
	h := newFakeHost(300)
	now := time.Now()
	m.Start(now)
	run(t, m, r, h, now)
	if !m.Operating() {
		t.Fatal("not operating")
	}

	r.sent = nil
	if err := m.HandleResponse(bridgecmd.Resynchronize, nil, now); err != nil {
		t.Fatal(err)
	}
	if m.State() != DevDescriptor || r.last().header != bridgecmd.RequestDevDesc {
		t.Errorf("state=%s last=%s", m.State(), bridgecmd.FormatHeader(r.last().header))
	}
	if m.DeviceDescriptor() != nil {
		t.Error("descriptors should be forgotten")
	}

	h.strings[StringKey{2, 0x0409}] = "Other Surface"
	run(t, m, r, h, now)
	if m.Info().Product != "Other Surface" || m.Restarts() != 1 {
		t.Errorf("product=%q restarts=%d", m.Info().Product, m.Restarts())
	}
}

// ============================================================
// Lookup
// ============================================================

func TestMachine_Lookup(t *testing.T) {
	r := &recorder{}
	m := New(r)
	h := newFakeHost(40)
	now := time.Now()

	if _, ok := m.Lookup(0, 0); ok {
		t.Error("langid list should be unknown before enumeration")
	}
	m.Start(now)
	run(t, m, r, h, now)

	desc, ok := m.Lookup(0, 0)
	if !ok || !bytes.Equal(desc, []byte{6, DescriptorTypeString, 0x09, 0x04, 0x07, 0x04}) {
		t.Errorf("langid descriptor = % X", desc)
	}

	desc, ok = m.Lookup(2, 0x0407)
	if !ok || desc[0] != byte(len(desc)) || desc[1] != DescriptorTypeString {
		t.Fatalf("string descriptor = % X", desc)
	}
	if got := DecodeUTF16LE(desc[2:]); got != "Mischpult" {
		t.Errorf("string = %q", got)
	}

	if _, ok := m.Lookup(9, 0x0409); ok {
		t.Error("unknown index should miss")
	}
}

func TestMachine_TextMatchesLookup(t *testing.T) {
	r := &recorder{}
	m := New(r)
	h := newFakeHost(40)
	now := time.Now()
	m.Start(now)
	run(t, m, r, h, now)

	if got, ok := m.Text(2, 0x0407); !ok || got != "Mischpult" {
		t.Errorf("Text(2, 0x0407) = %q, %v", got, ok)
	}
	if _, ok := m.Text(0, 0x0409); ok {
		t.Error("the langid list is not text")
	}
	if got := m.Info().Product; got != "Mixing Surface" {
		t.Errorf("product = %q", got)
	}
}
