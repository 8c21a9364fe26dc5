// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fadersync

import (
	"bytes"
	"testing"
)

// ============================================================
// Transition Tests
// ============================================================

func TestNewFaderIsUnknown(t *testing.T) {
	f := New(3)
	if f.State() != Unknown || f.Position() != Impossible || f.Target() != Impossible {
		t.Errorf("new fader: state=%v pos=%d target=%d", f.State(), f.Position(), f.Target())
	}
	if f.Forward() {
		t.Error("unknown fader must not forward")
	}
}

func TestFaderWithoutTargetStaysUnknown(t *testing.T) {
	f := New(0)
	for _, pos := range []uint16{0, 100, 16383} {
		if s := f.UpdateFaderPosition(pos); s != Unknown {
			t.Errorf("pos %d: state %v, want UNKNOWN", pos, s)
		}
	}
}

func TestTargetWithoutFaderIsUnknown(t *testing.T) {
	f := New(0)
	if s := f.UpdateTargetPosition(8000); s != Unknown {
		t.Errorf("state %v, want UNKNOWN", s)
	}
}

func TestSoftPickup(t *testing.T) {
	tests := []struct {
		name   string
		target uint16
		moves  []uint16
		want   []State
	}{
		{
			name:   "moving up through target",
			target: 8000,
			moves:  []uint16{1000, 4000, 7999, 8001, 9000},
			want:   []State{Increase, Increase, Increase, Synchronized, Synchronized},
		},
		{
			name:   "moving down onto target",
			target: 2000,
			moves:  []uint16{9000, 5000, 2000, 1000},
			want:   []State{Decrease, Decrease, Synchronized, Synchronized},
		},
		{
			name:   "first report equals target",
			target: 500,
			moves:  []uint16{500, 600},
			want:   []State{Synchronized, Synchronized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(1)
			f.UpdateTargetPosition(tt.target)
			for i, pos := range tt.moves {
				if s := f.UpdateFaderPosition(pos); s != tt.want[i] {
					t.Fatalf("move %d (pos %d): state %v, want %v", i, pos, s, tt.want[i])
				}
			}
		})
	}
}

func TestSynchronizedForwardsUntilNewTarget(t *testing.T) {
	f := New(2)
	f.UpdateTargetPosition(4000)
	f.UpdateFaderPosition(3000)
	f.UpdateFaderPosition(4100)
	if !f.Forward() {
		t.Fatal("expected synchronized")
	}

	for _, pos := range []uint16{5000, 100, 16383} {
		f.UpdateFaderPosition(pos)
		if !f.Forward() {
			t.Fatalf("pos %d: synchronized state must be sticky", pos)
		}
	}

	// Same target as the current position keeps sync
	f.UpdateTargetPosition(16383)
	if !f.Forward() {
		t.Error("target equal to fader position should stay synchronized")
	}

	// A different target invalidates the physical position
	if s := f.UpdateTargetPosition(200); s != Unknown {
		t.Errorf("state %v, want UNKNOWN", s)
	}
	if f.Position() != Impossible {
		t.Errorf("fader position %d, want Impossible", f.Position())
	}
}

func TestStartSync(t *testing.T) {
	f := New(4)
	f.UpdateTargetPosition(10)
	f.UpdateFaderPosition(10)
	f.StartSync()
	if f.State() != Unknown || f.Position() != Impossible || f.Target() != Impossible {
		t.Error("StartSync must forget both positions")
	}
}

func TestMessage(t *testing.T) {
	f := New(8)
	f.UpdateTargetPosition(0x2345)
	f.UpdateFaderPosition(0x2345)
	want := []byte{0xE8, 0x45, 0x46}
	if got := f.Message(); !bytes.Equal(got, want) {
		t.Errorf("Message() = % X, want % X", got, want)
	}
}

// ============================================================
// Bank Tests
// ============================================================

func TestBankForwardsOnlySynchronized(t *testing.T) {
	b := NewBank()
	if _, ok := b.UpdateFader(0, 100); ok {
		t.Error("fader without target must not forward")
	}
	if err := b.UpdateTarget(0, 300); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.UpdateFader(0, 200); ok {
		t.Error("fader below target must not forward")
	}
	msg, ok := b.UpdateFader(0, 300)
	if !ok {
		t.Fatal("fader at target must forward")
	}
	if !bytes.Equal(msg, []byte{0xE0, 300 & 0x7F, 300 >> 7}) {
		t.Errorf("msg = % X", msg)
	}
	if b.States()[0] != Synchronized {
		t.Errorf("bank state %v", b.States()[0])
	}
}

func TestBankRange(t *testing.T) {
	b := NewBank()
	if b.Fader(9) != nil {
		t.Error("fader 9 must not exist")
	}
	if err := b.UpdateTarget(9, 0); err == nil {
		t.Error("expected range error")
	}
	if _, ok := b.UpdateFader(12, 0); ok {
		t.Error("out of range fader must not forward")
	}
}
