// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
)

var (
	linkTestTimeout int
	linkTestProbe   bool
)

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test the link by waiting for a valid command frame",
	Long: `Wait for a valid command channel frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
frame. It ignores invalid bytes and waits for a complete frame that passes
the CRC check.

A device unit that has not finished enumeration sends REQUEST_DEV_DESC once
a second, so a healthy link shows a frame within a few seconds. With --probe
a RESYNCHRONIZE is sent first, which makes a device unit start over.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runLinkTest,
}

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	linkTestCmd.Flags().BoolVar(&linkTestProbe, "probe", false, "Send RESYNCHRONIZE before waiting")
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("mcbridge - Link Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", linkTestTimeout)

	if linkTestProbe {
		frame, err := bridgecmd.Encode(bridgecmd.Resynchronize, nil)
		if err == nil {
			_, err = conn.Write(frame)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}
		fmt.Printf("Sent RESYNCHRONIZE\n")
	}
	fmt.Printf("Waiting for valid frame...\n\n")

	decoder := bridgecmd.NewDecoder()
	buf := make([]byte, 128)

	frameChan := make(chan *bridgecmd.Frame, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		invalidBytes := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				frame, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					invalidBytes++
					continue
				}
				if frame != nil {
					if invalidBytes > 0 {
						fmt.Printf("(skipped %d invalid bytes before sync)\n", invalidBytes)
					}
					frameChan <- frame
					return
				}
			}
		}
	}()

	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Header: %s (0x%02X)\n", bridgecmd.FormatHeader(frame.Header()), frame.Header())
		fmt.Printf("  Length: %d bytes\n", frame.Length())
		fmt.Printf("  CRC: 0x%04X\n", frame.CRC())
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(linkTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", linkTestTimeout)
		os.Exit(1)
	}

	return nil
}
