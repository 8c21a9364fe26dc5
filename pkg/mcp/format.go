// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mcp

import (
	"bytes"
	"fmt"
	"strings"
)

var stripFunctions = [4]string{"REC", "SOLO", "MUTE", "SELECT"}

// FormatMessage returns a readable Mackie Control name for a MIDI message
func FormatMessage(msg []byte) string {
	if len(msg) == 0 {
		return "EMPTY"
	}
	status := msg[0]
	switch {
	case status == StatusNoteOn && len(msg) == 3:
		return formatNote(msg[1], msg[2])
	case (status == StatusCC || status == StatusCCAlt) && len(msg) == 3:
		cc, v := msg[1], msg[2]
		switch {
		case cc >= CCDigitFirst && cc <= CCDigitLast:
			return fmt.Sprintf("DIGIT %d '%c'", cc&0xF, DigitSymbol(v))
		case cc >= CCVPotRingFirst && cc <= CCVPotRingLast:
			var p VPot
			p.SetByCC(v)
			return fmt.Sprintf("VPOT_RING ch%d %s %d", cc&0x7+1, p.Mode, p.Value)
		case cc >= 0x10 && cc <= 0x17:
			return fmt.Sprintf("VPOT_TURN ch%d %+d", cc&0x7+1, vpotDelta(v))
		}
		return fmt.Sprintf("CC 0x%02X=0x%02X", cc, v)
	case status == StatusChanPressure && len(msg) == 2:
		return fmt.Sprintf("METER ch%d 0x%X", (msg[1]>>4)&0x7+1, msg[1]&0xF)
	case status&0xF0 == StatusPitchBend && len(msg) == 3:
		pos := uint16(msg[1]) | uint16(msg[2])<<7
		return fmt.Sprintf("FADER %d pos=%d", status&0xF, pos)
	case status == StatusSysEx:
		return formatSysEx(msg)
	}
	return fmt.Sprintf("% X", msg)
}

func formatNote(note, velocity uint8) string {
	state := "OFF"
	if velocity != 0 {
		state = "ON"
	}
	switch {
	case note <= NoteStripLast:
		return fmt.Sprintf("%s ch%d %s", stripFunctions[note>>3], note&0x7+1, state)
	case note < NoteVPotFirst+8:
		return fmt.Sprintf("VPOT_SELECT ch%d %s", note-NoteVPotFirst+1, state)
	case note == NoteNameValue:
		return "NAME/VALUE " + state
	case note == NoteSMPTEBeats:
		return "SMPTE/BEATS " + state
	case note == NoteSMPTELED:
		return "SMPTE_LED " + state
	case note == NoteBeatsLED:
		return "BEATS_LED " + state
	}
	return fmt.Sprintf("NOTE 0x%02X %s", note, state)
}

// vpotDelta decodes a relative encoder CC: bit 6 is the sign
func vpotDelta(v uint8) int {
	if v&0x40 != 0 {
		return -int(v & 0x3F)
	}
	return int(v & 0x3F)
}

func formatSysEx(msg []byte) string {
	n := len(msg)
	if n < 6 || !bytes.HasPrefix(msg, sysexHeader) {
		return fmt.Sprintf("SYSEX (%d bytes)", n)
	}
	model := "MCU"
	if msg[4] == ModelExtender {
		model = "XT"
	}
	switch msg[5] {
	case SubDeviceQuery:
		return model + " DEVICE_QUERY"
	case SubHostQuery:
		return model + " HOST_QUERY"
	case SubSerialRequest:
		return model + " SERIAL_REQUEST"
	case SubSerialResponse:
		return model + " SERIAL_RESPONSE"
	case SubTimecodeBulk:
		return fmt.Sprintf("%s TIMECODE_BULK (%d digits)", model, n-7)
	case SubChannelText:
		if n > 8 {
			text := strings.Map(func(r rune) rune {
				if r < 0x20 || r > 0x7E {
					return '.'
				}
				return r
			}, string(msg[7:n-1]))
			return fmt.Sprintf("%s CHANNEL_TEXT @%d %q", model, msg[6], text)
		}
	}
	return fmt.Sprintf("%s SYSEX 0x%02X (%d bytes)", model, msg[5], n)
}
