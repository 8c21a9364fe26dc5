// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"bytes"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/Thermoquad/mcbridge/pkg/fadersync"
	"github.com/Thermoquad/mcbridge/pkg/logging"
)

// Route says what happened to a classified message
type Route int

// Message routes
const (
	PassThrough Route = iota
	ConsumedByDisplay
	ConsumedBySync
	ConsumedAndForwarded
)

func (r Route) String() string {
	switch r {
	case PassThrough:
		return "PASS_THROUGH"
	case ConsumedByDisplay:
		return "CONSUMED_BY_DISPLAY"
	case ConsumedBySync:
		return "CONSUMED_BY_SYNC"
	case ConsumedAndForwarded:
		return "CONSUMED_AND_FORWARDED"
	}
	return "UNKNOWN"
}

// Forward reports whether the message still travels on to the surface
func (r Route) Forward() bool {
	return r == PassThrough || r == ConsumedAndForwarded
}

// Result is the outcome of classifying one complete MIDI message
type Result struct {
	Route Route
	Reply []byte // answer for the DAW, if any
}

// Classifier routes complete DAW-to-surface messages. It owns the
// mirrored display, the fader bank and the query responder; it is not
// safe for concurrent use.
type Classifier struct {
	display   *Display
	faders    *fadersync.Bank
	responder *Responder
}

// NewClassifier creates a classifier. A nil responder gets a random serial.
func NewClassifier(responder *Responder) *Classifier {
	if responder == nil {
		responder = NewResponder()
	}
	return &Classifier{
		display:   NewDisplay(),
		faders:    fadersync.NewBank(),
		responder: responder,
	}
}

// Display returns the mirrored display state
func (c *Classifier) Display() *Display { return c.display }

// Faders returns the fader synchronizers
func (c *Classifier) Faders() *fadersync.Bank { return c.faders }

// Responder returns the query responder
func (c *Classifier) Responder() *Responder { return c.responder }

// Tick runs the periodic display tasks. Returns true if the display changed.
func (c *Classifier) Tick(now time.Time) bool {
	return c.display.Decay(now)
}

// Snapshot captures the display and fader state
func (c *Classifier) Snapshot() Snapshot {
	snap := c.display.Snapshot()
	for i := 0; i < fadersync.NumFaders; i++ {
		f := c.faders.Fader(uint8(i))
		snap.Faders[i] = f.Target()
		snap.FaderStates[i] = f.State().String()
	}
	return snap
}

// Classify applies one complete MIDI message. Checks run in priority
// order: LED notes, timecode digits, VPot rings, meters, faders, SysEx.
func (c *Classifier) Classify(msg []byte) Result {
	if len(msg) == 0 {
		return Result{Route: PassThrough}
	}
	var res Result
	switch status := msg[0]; {
	case status == StatusNoteOn:
		res = c.classifyNote(msg)
	case status == StatusCC || status == StatusCCAlt:
		res = c.classifyCC(msg)
	case status == StatusChanPressure:
		res = c.classifyMeter(msg)
	case status >= StatusPitchBend && status < StatusPitchBend+fadersync.NumFaders:
		res = c.classifyFader(msg)
	case status == StatusSysEx:
		res = c.classifySysEx(msg)
	default:
		res = Result{Route: PassThrough}
	}
	if res.Route != PassThrough {
		logging.LogDebug(logging.ComponentMCP, "classified", "msg", FormatMessage(msg), "route", res.Route.String())
	}
	return res
}

func (c *Classifier) classifyNote(msg []byte) Result {
	// raw bytes rather than the note-on getter so velocity 0 still
	// counts as an LED off
	if len(msg) != 3 {
		return Result{Route: PassThrough}
	}
	note, velocity := msg[1], msg[2]
	if c.display.SetTimecodeLED(note, velocity) || c.display.SetStripLED(note, velocity) {
		return Result{Route: ConsumedAndForwarded}
	}
	return Result{Route: PassThrough}
}

func (c *Classifier) classifyCC(msg []byte) Result {
	var channel, cc, value uint8
	if !midi.Message(msg).GetControlChange(&channel, &cc, &value) {
		return Result{Route: PassThrough}
	}
	if c.display.SetDigit(cc, value) {
		return Result{Route: ConsumedByDisplay}
	}
	if msg[0] == StatusCC && cc >= CCVPotRingFirst && cc <= CCVPotRingLast {
		c.display.SetVPot(int(cc&0x7), value)
		return Result{Route: ConsumedByDisplay}
	}
	return Result{Route: PassThrough}
}

func (c *Classifier) classifyMeter(msg []byte) Result {
	var channel, pressure uint8
	if !midi.Message(msg).GetAfterTouch(&channel, &pressure) {
		return Result{Route: PassThrough}
	}
	c.display.SetMeter(pressure)
	return Result{Route: ConsumedByDisplay}
}

func (c *Classifier) classifyFader(msg []byte) Result {
	var channel uint8
	var rel int16
	var abs uint16
	if !midi.Message(msg).GetPitchBend(&channel, &rel, &abs) {
		return Result{Route: PassThrough}
	}
	if err := c.faders.UpdateTarget(channel, abs); err != nil {
		return Result{Route: PassThrough}
	}
	return Result{Route: ConsumedBySync}
}

func (c *Classifier) classifySysEx(msg []byte) Result {
	n := len(msg)
	if n < 6 || !bytes.HasPrefix(msg, sysexHeader) || msg[n-1] != StatusEOX {
		return Result{Route: PassThrough}
	}
	var data []byte
	if !midi.Message(msg).GetSysEx(&data) {
		return Result{Route: PassThrough}
	}
	model, sub := msg[4], msg[5]

	if model == ModelExtender {
		// extender traffic has no display here
		return Result{Route: ConsumedByDisplay}
	}
	if reply := c.responder.Reply(msg); reply != nil {
		logging.LogInfo(logging.ComponentMCP, "answered query", "query", FormatMessage(msg))
		return Result{Route: ConsumedByDisplay, Reply: reply}
	}

	switch {
	case model == ModelMain && sub == SubChannelText && n > 8:
		if c.display.SetText(int(msg[6]), msg[7:n-1]) {
			return Result{Route: ConsumedByDisplay}
		}
	case (model == ModelMain || model == ModelLegacy) && sub == SubTimecodeBulk && n > 7:
		c.display.SetDigits(msg[6 : n-1])
		return Result{Route: ConsumedByDisplay}
	}
	return Result{Route: PassThrough}
}
