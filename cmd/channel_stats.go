// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var channelStatsCmd = &cobra.Command{
	Use:   "channel_stats",
	Short: "Track framing errors and traffic on the command channel",
	Long: `Decode command channel traffic and keep error statistics.

This command detects:
  - CRC errors
  - Framing errors (bad stuffing, truncated or oversize frames)
  - Frames with unknown headers
  - Frame and error rates per second

Decode errors before the first valid frame are counted as skipped bytes,
not errors. By default, only errors are displayed. Use --show-all to
display valid frames too.

Statistics are shown live in the terminal UI, or printed at a configurable
interval in text mode.`,
	RunE: runChannelStats,
}

func init() {
	rootCmd.AddCommand(channelStatsCmd)
	channelStatsCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	channelStatsCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds, text mode)")
	channelStatsCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runChannelStats(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runStatsTUI(conn, connInfo)
	}
	return runStatsText(cmd, conn, connInfo)
}

// syncTracker drops decode errors until the first valid frame. Before
// that the reader may have started mid-frame.
type syncTracker struct {
	decoder      *bridgecmd.Decoder
	synchronized bool
	invalidBytes int
}

// feed decodes one byte. synced is true on the byte that completed the
// first valid frame.
func (t *syncTracker) feed(b byte) (frame *bridgecmd.Frame, synced bool, err error) {
	frame, err = t.decoder.DecodeByte(b)
	if err != nil {
		if !t.synchronized {
			t.invalidBytes++
			return nil, false, nil
		}
		return nil, false, err
	}
	if frame != nil && !t.synchronized {
		t.synchronized = true
		return frame, true, nil
	}
	return frame, false, nil
}

// runStatsTUI runs channel_stats in TUI mode
func runStatsTUI(conn Connection, connInfo string) error {
	m := initialStatsModel(connInfo, showAll)
	p := tea.NewProgram(m)

	go func() {
		tracker := &syncTracker{decoder: bridgecmd.NewDecoder()}
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				p.Send(linkClosedMsg{err: err})
				return
			}
			for i := 0; i < n; i++ {
				frame, synced, decodeErr := tracker.feed(buf[i])
				if synced {
					p.Send(syncMsg{invalidBytes: tracker.invalidBytes})
				}
				if frame != nil || decodeErr != nil {
					p.Send(frameDataMsg{frame: frame, decodeErr: decodeErr})
				}
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runStatsText prints errors as they happen and a summary every interval
func runStatsText(cmd *cobra.Command, conn Connection, connInfo string) error {
	fmt.Printf("mcbridge - Channel Statistics\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := bridgecmd.NewStatistics()
	tracker := &syncTracker{decoder: bridgecmd.NewDecoder()}

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking reads
	rx := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				readErr <- err
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			rx <- data
		}
	}()

	for {
		select {
		case data := <-rx:
			for _, b := range data {
				frame, synced, decodeErr := tracker.feed(b)
				if synced {
					if tracker.invalidBytes > 0 {
						fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", tracker.invalidBytes)
					} else {
						fmt.Printf("[SYNC] Synchronized\n\n")
					}
				}
				if frame == nil && decodeErr == nil {
					continue
				}
				stats.Update(frame, decodeErr)
				switch {
				case decodeErr != nil:
					timestamp := time.Now().Format("15:04:05.000")
					fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n\n", timestamp, decodeErr)
				case !frame.IsMIDI() && !bridgecmd.IsKnownHeader(frame.Header()):
					timestamp := frame.Timestamp().Format("15:04:05.000")
					fmt.Printf("[%s] \033[1;33mUNKNOWN HEADER:\033[0m 0x%02X (%d bytes)\n\n", timestamp, frame.Header(), frame.Length())
				case showAll:
					fmt.Print(bridgecmd.FormatFrame(frame))
				}
			}

		case err := <-readErr:
			fmt.Println()
			fmt.Print(stats.String())
			return fmt.Errorf("read error: %v", err)

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case <-cmd.Context().Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil
		}
	}
}
