// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"time"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
	"github.com/Thermoquad/mcbridge/pkg/mcp"
)

// NumChannelButtons is the number of channel buttons on the panel
const NumChannelButtons = 8

// channelNoteBase is the first note of each channel button mode
var channelNoteBase = [...]uint8{
	bridgecmd.ModeSelect: mcp.NoteSelectFirst,
	bridgecmd.ModeSolo:   mcp.NoteSoloFirst,
	bridgecmd.ModeMute:   mcp.NoteMuteFirst,
	bridgecmd.ModeRec:    mcp.NoteRecFirst,
	bridgecmd.ModeVPot:   mcp.NoteVPotFirst,
}

// ChannelButtons turns panel button presses into Mackie Control notes.
// Mode buttons pick what the eight channel buttons send.
type ChannelButtons struct {
	mode bridgecmd.ChannelButtonMode
}

// NewChannelButtons starts in select mode
func NewChannelButtons() *ChannelButtons {
	return &ChannelButtons{mode: bridgecmd.ModeSelect}
}

// Mode returns the current channel button mode
func (b *ChannelButtons) Mode() bridgecmd.ChannelButtonMode {
	return b.mode
}

// ToggleMode handles a press of a mode button. Pressing the button of
// the active mode returns to select mode.
func (b *ChannelButtons) ToggleMode(m bridgecmd.ChannelButtonMode) bridgecmd.ChannelButtonMode {
	if int(m) >= len(channelNoteBase) || m == bridgecmd.ModeSelect {
		return b.mode
	}
	if b.mode == m {
		b.mode = bridgecmd.ModeSelect
	} else {
		b.mode = m
	}
	return b.mode
}

// ChannelMessage returns the note for a channel button press or release,
// or nil for an invalid channel
func (b *ChannelButtons) ChannelMessage(channel int, pressed bool) []byte {
	if channel < 0 || channel >= NumChannelButtons {
		return nil
	}
	return buttonNote(channelNoteBase[b.mode]+uint8(channel), pressed)
}

// BeatsSMPTEMessage returns the BEATS/SMPTE button note
func BeatsSMPTEMessage(pressed bool) []byte {
	return buttonNote(mcp.NoteSMPTEBeats, pressed)
}

// NameValueMessage returns the NAME/VALUE button note
func NameValueMessage(pressed bool) []byte {
	return buttonNote(mcp.NoteNameValue, pressed)
}

func buttonNote(note uint8, pressed bool) []byte {
	velocity := uint8(0)
	if pressed {
		velocity = 0x7F
	}
	return []byte{mcp.StatusNoteOn, note, velocity}
}

// Nav button auto-repeat
const (
	NavRepeatInitial    = 400 * time.Millisecond
	NavRepeatMin        = 100 * time.Millisecond
	navRepeatStep       = 100 * time.Millisecond
	navAccelerateRepeat = 10
)

// NavButtons tracks the held navigation buttons and produces the
// NAV_BUTTONS bitmap, repeating it with acceleration while held
type NavButtons struct {
	held     uint8
	next     time.Time
	interval time.Duration
	repeats  int
}

// NewNavButtons creates a panel with nothing held
func NewNavButtons() *NavButtons {
	return &NavButtons{interval: NavRepeatInitial}
}

// Held returns the held button bits
func (n *NavButtons) Held() uint8 {
	return n.held
}

// Update sets the held buttons. It returns the bitmap to send, with the
// change bit set, when the set of held buttons changed.
func (n *NavButtons) Update(buttons uint8, now time.Time) (uint8, bool) {
	buttons &^= bridgecmd.NavChanged
	if buttons == n.held {
		return 0, false
	}
	n.held = buttons
	n.interval = NavRepeatInitial
	n.repeats = 0
	n.next = now.Add(n.interval)
	return buttons | bridgecmd.NavChanged, true
}

// Repeat returns the bitmap again once the repeat interval of a held
// button has passed
func (n *NavButtons) Repeat(now time.Time) (uint8, bool) {
	if n.held == 0 || now.Before(n.next) {
		return 0, false
	}
	n.repeats++
	if n.repeats%navAccelerateRepeat == 0 {
		n.interval = max(n.interval-navRepeatStep, NavRepeatMin)
	}
	n.next = now.Add(n.interval)
	return n.held | bridgecmd.NavChanged, true
}
