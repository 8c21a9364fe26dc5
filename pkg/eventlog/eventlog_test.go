// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
)

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// ============================================================================
// Encoding
// ============================================================================

// readAll returns every event in the log at path
func readAll(t *testing.T, path string) []Event {
	t.Helper()
	r, err := NewFilteredReader(path, Filter{})
	require.NoError(t, err)
	defer r.Close()

	var events []Event
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, e)
	}
}

func TestFrameEventRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.cbor")
	l, err := NewFileLogger(path)
	require.NoError(t, err)
	e := NewFrameEvent("s1", UnitDevice, DirectionOut, bridgecmd.RequestDevString, []byte{1, 0x09, 0x04})
	l.Log(e)
	require.NoError(t, l.Close())

	events := readAll(t, path)
	require.Len(t, events, 1)
	got := events[0]
	assert.True(t, e.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, DirectionOut, got.Direction)
	assert.Equal(t, CategoryFrame, got.Category)
	require.NotNil(t, got.Frame)
	assert.Equal(t, uint8(bridgecmd.RequestDevString), got.Frame.Header)
	assert.Equal(t, []byte{1, 0x09, 0x04}, got.Frame.Payload)
	assert.Nil(t, got.StateChange)
	assert.Nil(t, got.Error)

	f := got.Frame.Frame()
	assert.Equal(t, 3, f.Length())
}

func TestEncodeCanonical(t *testing.T) {
	e := NewStateEvent("s", UnitHost, "enumeration", "LANGIDS", "STRING_LIST", "")
	a, err := encMode.Marshal(e)
	require.NoError(t, err)
	b, err := encMode.Marshal(e)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewErrorEvent(t *testing.T) {
	e := NewErrorEvent("s", UnitDevice, "FRAMING", errors.New("crc"), "rx")
	assert.Equal(t, CategoryError, e.Category)
	require.NotNil(t, e.Error)
	assert.Equal(t, "crc", e.Error.Message)
	assert.Equal(t, "rx", e.Error.Context)
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "DEVICE", UnitDevice.String())
	assert.Equal(t, "HOST", UnitHost.String())
	assert.Equal(t, "UNKNOWN", Unit(9).String())
	assert.Equal(t, "IN", DirectionIn.String())
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "STATE", CategoryState.String())
	assert.Equal(t, "UNKNOWN", Category(7).String())
}

// ============================================================================
// FileLogger and Reader
// ============================================================================

func TestFileLogger_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.cbor")
	l, err := NewFileLogger(path)
	require.NoError(t, err)

	l.Log(NewFrameEvent("a", UnitDevice, DirectionIn, 0x02, []byte{0x90, 0x3C, 0x7F}))
	l.Log(NewStateEvent("a", UnitDevice, "enumeration", "DEV_DESCRIPTOR", "CONF_DESCRIPTOR", ""))
	l.Log(NewErrorEvent("a", UnitDevice, "PROTOCOL", errors.New("stale"), ""))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	l.Log(NewStateEvent("a", UnitDevice, "x", "y", "z", "")) // ignored after close
	assert.Equal(t, uint64(0), l.Dropped())

	got := readAll(t, path)
	require.Len(t, got, 3)
	assert.Equal(t, CategoryFrame, got[0].Category)
	assert.Equal(t, CategoryState, got[1].Category)
	assert.Equal(t, CategoryError, got[2].Category)
}

func TestFileLogger_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.cbor")
	for i := 0; i < 2; i++ {
		l, err := NewFileLogger(path)
		require.NoError(t, err)
		l.Log(NewStateEvent("s", UnitHost, "host", "A", "B", ""))
		require.NoError(t, l.Close())
	}

	assert.Len(t, readAll(t, path), 2)
}

func TestFileLogger_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.cbor")
	l, err := NewFileLogger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				l.Log(NewFrameEvent("c", UnitHost, DirectionOut, 0x50, []byte{0x81}))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, l.Close())

	assert.Len(t, readAll(t, path), 100)
}

func TestReader_Filter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.cbor")
	l, err := NewFileLogger(path)
	require.NoError(t, err)
	l.Log(NewFrameEvent("a", UnitDevice, DirectionOut, bridgecmd.RequestDevDesc, nil))
	l.Log(NewFrameEvent("a", UnitDevice, DirectionIn, bridgecmd.ReturnDevDesc, make([]byte, 18)))
	l.Log(NewFrameEvent("b", UnitHost, DirectionIn, bridgecmd.RequestDevDesc, nil))
	l.Log(NewStateEvent("a", UnitDevice, "enumeration", "DEV_DESCRIPTOR", "CONF_DESCRIPTOR", ""))
	require.NoError(t, l.Close())

	header := uint8(bridgecmd.RequestDevDesc)
	host := UnitHost
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"session", Filter{SessionID: "a"}, 3},
		{"unit", Filter{Unit: &host}, 1},
		{"header", Filter{Header: &header}, 2},
		{"time start", Filter{TimeStart: &future}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			require.NoError(t, err)
			defer r.Close()
			n := 0
			for {
				if _, err := r.Next(); err != nil {
					require.ErrorIs(t, err, io.EOF)
					break
				}
				n++
			}
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestReader_Missing(t *testing.T) {
	_, err := NewFilteredReader(filepath.Join(t.TempDir(), "none"), Filter{})
	assert.True(t, os.IsNotExist(err))
}

// ============================================================================
// Adapters
// ============================================================================

func TestMultiLogger(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b)
	m.Log(NewStateEvent("s", UnitDevice, "e", "1", "2", ""))
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)

	NoopLogger{}.Log(Event{})
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := NewSlogAdapter(logger)

	a.Log(NewFrameEvent("s", UnitDevice, DirectionOut, bridgecmd.RequestDevDesc, nil))
	assert.Contains(t, buf.String(), "REQUEST_DEV_DESC")
	assert.Contains(t, buf.String(), "direction=OUT")

	buf.Reset()
	a.Log(NewStateEvent("s", UnitHost, "host", "DISCONNECTED", "DEVICE_SETUP", "descriptor ready"))
	assert.Contains(t, buf.String(), "new_state=DEVICE_SETUP")
	assert.Contains(t, buf.String(), "reason=\"descriptor ready\"")

	buf.Reset()
	a.Log(NewErrorEvent("s", UnitHost, "FRAMING", errors.New("CRC mismatch"), ""))
	assert.Contains(t, buf.String(), "kind=FRAMING")
}
