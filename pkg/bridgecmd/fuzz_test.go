// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridgecmd

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS or 1000
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

// ============================================================
// Fuzz Tests
// ============================================================

// TestFuzz_RoundTrip encodes random frames back to back and checks
// that one decoder recovers every one of them in order.
func TestFuzz_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	var stream []byte
	headers := make([]uint8, rounds)
	payloads := make([][]byte, rounds)
	for i := 0; i < rounds; i++ {
		headers[i] = uint8(rng.Intn(256))
		payloads[i] = make([]byte, rng.Intn(MaxPayloadSize+1))
		rng.Read(payloads[i])
		stream = append(stream, mustEncode(t, headers[i], payloads[i])...)
	}

	frames := decodeAll(t, NewDecoder(), stream)
	if len(frames) != rounds {
		t.Fatalf("decoded %d frames, want %d", len(frames), rounds)
	}
	for i, f := range frames {
		if f.Header() != headers[i] || !bytes.Equal(f.Payload(), payloads[i]) {
			t.Fatalf("frame %d mismatch: header 0x%02X len %d", i, f.Header(), f.Length())
		}
	}
}

// TestFuzz_Garbage feeds random bytes and checks the decoder never
// panics and still decodes a valid frame afterwards.
func TestFuzz_Garbage(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	d := NewDecoder()
	stats := NewStatistics()

	for i := 0; i < rounds; i++ {
		garbage := make([]byte, rng.Intn(64))
		rng.Read(garbage)
		for _, b := range garbage {
			f, err := d.DecodeByte(b)
			if f != nil || err != nil {
				stats.Update(f, err)
			}
		}

		var got *Frame
		for _, b := range mustEncode(t, NavButtons, []byte{NavChanged | NavDown}) {
			f, _ := d.DecodeByte(b)
			if f != nil {
				got = f
			}
		}
		if got == nil || got.Header() != NavButtons {
			t.Fatalf("round %d: decoder did not recover after % X", i, garbage)
		}
	}
	t.Logf("garbage stats: valid=%d errors=%d", stats.ValidFrames, stats.Errors())
}
