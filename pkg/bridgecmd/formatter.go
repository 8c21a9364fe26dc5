// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridgecmd

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

var headerNames = map[uint8]string{
	RequestDevDesc:       "REQUEST_DEV_DESC",
	ReturnDevDesc:        "RETURN_DEV_DESC",
	RequestDevStringIdxs: "REQUEST_DEV_STRING_IDXS",
	ReturnDevStringIdxs:  "RETURN_DEV_STRING_IDXS",
	RequestDevLangids:    "REQUEST_DEV_LANGIDS",
	ReturnDevLangids:     "RETURN_DEV_LANGIDS",
	RequestDevString:     "REQUEST_DEV_STRING",
	ReturnDevString:      "RETURN_DEV_STRING",
	Resynchronize:        "RESYNCHRONIZE",
	RequestConfDesc0:     "REQUEST_CONF_DESC_0",
	ReturnConfDesc0:      "RETURN_CONF_DESC_0",
	RequestConfDesc1:     "REQUEST_CONF_DESC_1",
	ReturnConfDesc1:      "RETURN_CONF_DESC_1",
	RequestConfDesc2:     "REQUEST_CONF_DESC_2",
	ReturnConfDesc2:      "RETURN_CONF_DESC_2",
	NavButtons:           "NAV_BUTTONS",
	ActiveCable:          "ACTIVE_CABLE",
	ChannelBtnMode:       "CHANNEL_BUTTON_MODE",
}

// IsKnownHeader reports whether a header is a defined command
func IsKnownHeader(h uint8) bool {
	_, ok := headerNames[h]
	return ok
}

// FormatHeader returns a human-readable name for a frame header
func FormatHeader(h uint8) string {
	if IsMIDIHeader(h) {
		return fmt.Sprintf("MIDI_CABLE_%d", h)
	}
	if name, ok := headerNames[h]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_0x%02X", h)
}

// FormatNavButtons describes a nav button bitmap
func FormatNavButtons(bitmap uint8) string {
	names := []struct {
		bit  uint8
		name string
	}{
		{NavUp, "UP"}, {NavDown, "DOWN"}, {NavLeft, "LEFT"}, {NavRight, "RIGHT"},
		{NavSelect, "ENTER"}, {NavBack, "BACK"}, {NavShift, "HOME"},
	}
	var pressed []string
	for _, n := range names {
		if bitmap&n.bit != 0 {
			pressed = append(pressed, n.name)
		}
	}
	if len(pressed) == 0 {
		return "NONE PRESSED"
	}
	return strings.Join(pressed, "+")
}

// FormatPayload decodes the payload of known commands for display
func FormatPayload(h uint8, payload []byte) string {
	switch h {
	case ReturnDevDesc:
		if len(payload) != 18 {
			return fmt.Sprintf("invalid length %d", len(payload))
		}
		return fmt.Sprintf("VID=0x%04X PID=0x%04X bcdDevice=0x%04X",
			binary.LittleEndian.Uint16(payload[8:]),
			binary.LittleEndian.Uint16(payload[10:]),
			binary.LittleEndian.Uint16(payload[12:]))
	case ReturnConfDesc0:
		if len(payload) >= 4 {
			return fmt.Sprintf("%d bytes, wTotalLength=%d", len(payload), binary.LittleEndian.Uint16(payload[2:]))
		}
		return fmt.Sprintf("%d bytes", len(payload))
	case ReturnConfDesc1, ReturnConfDesc2, ReturnDevStringIdxs:
		return fmt.Sprintf("%d bytes % X", len(payload), payload)
	case ReturnDevLangids:
		ids := make([]string, 0, len(payload)/2)
		for i := 0; i+1 < len(payload); i += 2 {
			ids = append(ids, fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(payload[i:])))
		}
		return strings.Join(ids, ",")
	case RequestDevString:
		if len(payload) >= 3 {
			return fmt.Sprintf("index=%d langid=0x%04X", payload[0], binary.LittleEndian.Uint16(payload[1:]))
		}
	case ReturnDevString:
		if len(payload) >= 3 {
			u := make([]uint16, 0, (len(payload)-3)/2)
			for i := 3; i+1 < len(payload); i += 2 {
				u = append(u, binary.LittleEndian.Uint16(payload[i:]))
			}
			return fmt.Sprintf("index=%d langid=0x%04X %q", payload[0],
				binary.LittleEndian.Uint16(payload[1:]), string(utf16.Decode(u)))
		}
	case NavButtons:
		if len(payload) == 1 {
			return FormatNavButtons(payload[0])
		}
	case ActiveCable:
		if len(payload) == 1 {
			return fmt.Sprintf("cable=%d", payload[0])
		}
	case ChannelBtnMode:
		if len(payload) == 1 {
			return ChannelButtonMode(payload[0]).String()
		}
	}
	if len(payload) == 0 {
		return ""
	}
	return fmt.Sprintf("% X", payload)
}

// FormatFrame formats a frame as one log line
func FormatFrame(f *Frame) string {
	ts := f.Timestamp().Format("15:04:05.000")
	detail := FormatPayload(f.Header(), f.Payload())
	if f.IsMIDI() {
		detail = fmt.Sprintf("% X", f.Payload())
	}
	if detail == "" {
		return fmt.Sprintf("[%s] %s\n", ts, FormatHeader(f.Header()))
	}
	return fmt.Sprintf("[%s] %s (%d) %s\n", ts, FormatHeader(f.Header()), f.Length(), detail)
}
