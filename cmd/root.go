// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mcbridge/pkg/eventlog"
	"github.com/Thermoquad/mcbridge/pkg/logging"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
	listenAddr    string

	// Diagnostics
	logLevel     string
	logFormat    string
	eventLogPath string
)

var rootCmd = &cobra.Command{
	Use:   "mcbridge",
	Short: "Mackie Control USB bridge",
	Long: `mcbridge - Split a Mackie Control surface across a command channel link.

The host unit sits next to the control surface and answers descriptor
requests for it. The device unit faces the DAW, enumerates the surface
through the host, mirrors the Mackie Control display and keeps the faders
in sync. The two talk over a framed command channel.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  Listen:    --listen :8080 (accept one WebSocket peer)

For WebSocket authentication, the password is read from the MCBRIDGE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	PersistentPreRunE: setupLogging,
	SilenceUsage:      true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "Accept the peer as a WebSocket client on this address")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&eventLogPath, "event-log", "", "Append bridge events to this CBOR file")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(logFormat)
	if err != nil {
		return err
	}
	logging.SetLogFormat(os.Stderr, format)
	logging.SetLogLevel(level)
	return nil
}

// openEventLog returns the event sink for a bridge unit. Events always go
// to the debug log; --event-log also appends them to a file.
func openEventLog() (eventlog.Logger, func(), error) {
	adapter := eventlog.NewSlogAdapter(logging.DefaultLogger)
	if eventLogPath == "" {
		return adapter, func() {}, nil
	}
	file, err := eventlog.NewFileLogger(eventLogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open event log %s: %v", eventLogPath, err)
	}
	closeLog := func() {
		if n := file.Dropped(); n > 0 {
			log.Printf("Event log dropped %d events", n)
		}
		file.Close()
	}
	return eventlog.NewMultiLogger(adapter, file), closeLog, nil
}

// Execute runs the root command. Interrupts cancel the command's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
