// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eventlog

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	SessionID string
	Unit      *Unit
	Header    *uint8
	TimeStart *time.Time
}

func (f *Filter) matches(e Event) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Unit != nil && e.Unit != *f.Unit {
		return false
	}
	if f.Header != nil && (e.Frame == nil || e.Frame.Header != *f.Header) {
		return false
	}
	if f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart) {
		return false
	}
	return true
}

// Reader streams events from a log file
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewFilteredReader opens a log file for reading matching events
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: decMode.NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.decoder.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

// Close closes the file
func (r *Reader) Close() error {
	return r.file.Close()
}
