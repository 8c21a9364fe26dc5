// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridgecmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/Thermoquad/mcbridge/pkg/logging"
)

// DefaultQueueDepth is the number of frames the TX queue holds
const DefaultQueueDepth = 64

// ErrQueueFull is returned when a frame is dropped for lack of space
var ErrQueueFull = errors.New("tx queue full")

// Queue is the bounded outbound frame queue. Producers enqueue fully
// encoded frames; the poll loop drains it once per tick. When full, the
// newest frame is dropped and counted.
type Queue struct {
	frames  [][]byte
	head    int
	count   int
	dropped uint64
	sent    uint64
}

// NewQueue creates a queue holding up to depth frames
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Queue{frames: make([][]byte, depth)}
}

// Len returns the number of queued frames
func (q *Queue) Len() int {
	return q.count
}

// Dropped returns the number of frames dropped because the queue was full
func (q *Queue) Dropped() uint64 {
	return q.dropped
}

// Sent returns the number of frames written by Drain
func (q *Queue) Sent() uint64 {
	return q.sent
}

// Enqueue adds an encoded frame
func (q *Queue) Enqueue(frame []byte) error {
	if q.count == len(q.frames) {
		q.dropped++
		logging.LogWarn(logging.ComponentChannel, "tx queue full, dropping frame", "dropped", q.dropped)
		return ErrQueueFull
	}
	q.frames[(q.head+q.count)%len(q.frames)] = frame
	q.count++
	return nil
}

// SendCommand encodes and enqueues a command frame
func (q *Queue) SendCommand(header uint8, payload []byte) error {
	frame, err := Encode(header, payload)
	if err != nil {
		return err
	}
	return q.Enqueue(frame)
}

// SendMIDI encodes and enqueues MIDI bytes for a cable
func (q *Queue) SendMIDI(cable uint8, data []byte) error {
	frames, err := EncodeMIDI(cable, data)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := q.Enqueue(f); err != nil {
			return err
		}
	}
	return nil
}

// Drain writes every queued frame to w. Frames that could not be written
// stay queued.
func (q *Queue) Drain(w io.Writer) error {
	for q.count > 0 {
		frame := q.frames[q.head]
		if _, err := w.Write(frame); err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		q.frames[q.head] = nil
		q.head = (q.head + 1) % len(q.frames)
		q.count--
		q.sent++
	}
	return nil
}

// Pop removes and returns the oldest frame
func (q *Queue) Pop() ([]byte, bool) {
	if q.count == 0 {
		return nil, false
	}
	frame := q.frames[q.head]
	q.frames[q.head] = nil
	q.head = (q.head + 1) % len(q.frames)
	q.count--
	return frame, true
}
