// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridgecmd

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks command channel frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	MIDIFrames      uint64
	CommandFrames   uint64
	UnknownCommands uint64
	CRCErrors       uint64
	FramingErrors   uint64
	OversizeFrames  uint64
	TxDropped       uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a decoded frame or decode error
func (s *Statistics) Update(frame *Frame, decodeErr error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrCRC):
			s.CRCErrors++
		case errors.Is(decodeErr, ErrPayloadTooLarge):
			s.OversizeFrames++
		default:
			s.FramingErrors++
		}
		return
	}
	if frame == nil {
		return
	}

	s.ValidFrames++
	switch {
	case frame.IsMIDI():
		s.MIDIFrames++
	case IsKnownHeader(frame.Header()):
		s.CommandFrames++
	default:
		s.UnknownCommands++
	}
}

// SetTxDropped records the TX queue drop counter
func (s *Statistics) SetTxDropped(n uint64) {
	s.TxDropped = n
}

// Errors returns the total number of receive errors
func (s *Statistics) Errors() uint64 {
	return s.CRCErrors + s.FramingErrors + s.OversizeFrames
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, errorPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		errorPercent = float64(s.Errors()) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	result += fmt.Sprintf("  MIDI:             %5d\n", s.MIDIFrames)
	result += fmt.Sprintf("  Commands:         %5d\n", s.CommandFrames)
	if s.UnknownCommands > 0 {
		result += fmt.Sprintf("  Unknown:          %5d\n", s.UnknownCommands)
	}

	if s.Errors() > 0 {
		result += fmt.Sprintf("Errors:          %8d (%.1f%%)\n", s.Errors(), errorPercent)
		if s.CRCErrors > 0 {
			result += fmt.Sprintf("  CRC:              %5d\n", s.CRCErrors)
		}
		if s.FramingErrors > 0 {
			result += fmt.Sprintf("  Framing:          %5d\n", s.FramingErrors)
		}
		if s.OversizeFrames > 0 {
			result += fmt.Sprintf("  Oversize:         %5d\n", s.OversizeFrames)
		}
	}
	if s.TxDropped > 0 {
		result += fmt.Sprintf("TX Dropped:      %8d\n", s.TxDropped)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
