// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
	"github.com/Thermoquad/mcbridge/pkg/eventlog"
)

var (
	replayPath    string
	replaySession string
	replayUnit    string
	replayHeader  string
	replaySince   string
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display command channel frames in human-readable format",
	Long: `Continuously decode and display command channel frames as they arrive.

Each frame is shown with its timestamp, header name, length and decoded
payload. MIDI frames are shown as raw bytes.

With --replay, frames and events are read from a CBOR event log written
by --event-log instead of a live connection. Replay can be narrowed by
session, unit, header and start time.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&replayPath, "replay", "", "Read events from a CBOR event log")
	rawLogCmd.Flags().StringVar(&replaySession, "session", "", "Replay only this session id")
	rawLogCmd.Flags().StringVar(&replayUnit, "unit", "", "Replay only this unit (device, host)")
	rawLogCmd.Flags().StringVar(&replayHeader, "header", "", "Replay only frames with this header (e.g. 0x50)")
	rawLogCmd.Flags().StringVar(&replaySince, "since", "", "Replay only events at or after this RFC3339 time")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	if replayPath != "" {
		return runReplay()
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("mcbridge - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := bridgecmd.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// A read error on either transport means the link is gone
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			return err
		}

		for i := 0; i < n; i++ {
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Print(formatDecodeError(err, decoder.GetRawBytes()))
				continue
			}
			if frame != nil {
				fmt.Print(bridgecmd.FormatFrame(frame))
			}
		}
	}
}

// formatDecodeError shows a dropped frame with the wire bytes it had
func formatDecodeError(err error, raw []byte) string {
	line := fmt.Sprintf("[ERROR] %v\n", err)
	if len(raw) > 0 {
		line += fmt.Sprintf("        raw: % X\n", raw)
	}
	return line
}

func replayFilter() (eventlog.Filter, error) {
	var f eventlog.Filter
	f.SessionID = replaySession

	switch replayUnit {
	case "":
	case "device":
		u := eventlog.UnitDevice
		f.Unit = &u
	case "host":
		u := eventlog.UnitHost
		f.Unit = &u
	default:
		return f, fmt.Errorf("unknown unit %q (use device or host)", replayUnit)
	}

	if replayHeader != "" {
		h, err := strconv.ParseUint(replayHeader, 0, 8)
		if err != nil {
			return f, fmt.Errorf("invalid header %q: %v", replayHeader, err)
		}
		header := uint8(h)
		f.Header = &header
	}

	if replaySince != "" {
		t, err := time.Parse(time.RFC3339, replaySince)
		if err != nil {
			return f, fmt.Errorf("invalid time %q: %v", replaySince, err)
		}
		f.TimeStart = &t
	}
	return f, nil
}

func runReplay() error {
	filter, err := replayFilter()
	if err != nil {
		return err
	}
	reader, err := eventlog.NewFilteredReader(replayPath, filter)
	if err != nil {
		return fmt.Errorf("failed to open event log %s: %v", replayPath, err)
	}
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("event %d: %v", count+1, err)
		}
		count++
		fmt.Print(formatEvent(event))
	}
	fmt.Printf("\n%d events\n", count)
	return nil
}

// formatEvent renders one logged event in the raw log's line format
func formatEvent(e eventlog.Event) string {
	ts := e.Timestamp.Format("15:04:05.000")
	switch {
	case e.Frame != nil:
		f := e.Frame.Frame()
		detail := bridgecmd.FormatPayload(f.Header(), f.Payload())
		if f.IsMIDI() {
			detail = fmt.Sprintf("% X", f.Payload())
		}
		return fmt.Sprintf("[%s] %s %-3s %s (%d) %s\n", ts, e.Unit, e.Direction,
			bridgecmd.FormatHeader(f.Header()), f.Length(), detail)
	case e.StateChange != nil:
		sc := e.StateChange
		line := fmt.Sprintf("[%s] %s %s: %s -> %s", ts, e.Unit, sc.Entity, sc.OldState, sc.NewState)
		if sc.Reason != "" {
			line += " (" + sc.Reason + ")"
		}
		return line + "\n"
	case e.Error != nil:
		line := fmt.Sprintf("[%s] %s [ERROR] %s: %s", ts, e.Unit, e.Error.Kind, e.Error.Message)
		if e.Error.Context != "" {
			line += " in " + e.Error.Context
		}
		return line + "\n"
	}
	return fmt.Sprintf("[%s] %s %s\n", ts, e.Unit, e.Category)
}
