// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/mcbridge/pkg/bridge"
	"github.com/Thermoquad/mcbridge/pkg/mcp"
	"github.com/Thermoquad/mcbridge/pkg/midiport"
	"github.com/Thermoquad/mcbridge/pkg/settings"
)

var (
	settingsDir string
	monitorAddr string
	virtualName string
	serialCode  string
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Run the DAW-facing bridge unit",
	Long: `Run the device unit of the bridge.

The device unit enumerates the control surface through the host unit on
the other end of the link. Once enumeration completes it opens one virtual
MIDI port pair per cable, named after the surface, for the DAW to use.

Mackie Control traffic from the DAW is mirrored into a local display model;
display-only messages are not sent over the link. Faders are held back
until the physical fader reaches the DAW position (soft pickup).

Per-surface settings (MC cable, button remaps) are kept as YAML under
--settings-dir. With --monitor the display state is served to 'mcbridge
monitor' clients over WebSocket.

Examples:
  # Serial link to the host unit
  mcbridge device --port /dev/ttyUSB0

  # Accept the host unit over WebSocket and serve a monitor feed
  mcbridge device --listen :8080 --monitor :8081`,
	RunE: runDevice,
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.Flags().StringVar(&settingsDir, "settings-dir", settings.DefaultDir(), "Directory for per-surface settings")
	deviceCmd.Flags().StringVar(&monitorAddr, "monitor", "", "Serve display snapshots to monitors on this address")
	deviceCmd.Flags().StringVar(&virtualName, "virtual-name", "", "Name of the virtual MIDI ports (default: surface product name)")
	deviceCmd.Flags().StringVar(&serialCode, "serial", "", "Seven character serial reported to Mackie Control queries (default: random)")
}

func parseSerial(s string) (*mcp.Responder, error) {
	if s == "" {
		return mcp.NewResponder(), nil
	}
	if len(s) != mcp.SerialLength {
		return nil, fmt.Errorf("serial must be %d characters, got %d", mcp.SerialLength, len(s))
	}
	var serial [mcp.SerialLength]byte
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return nil, fmt.Errorf("serial must be printable ASCII")
		}
		serial[i] = s[i]
	}
	return mcp.NewResponderWithSerial(serial), nil
}

func runDevice(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	responder, err := parseSerial(serialCode)
	if err != nil {
		return err
	}

	events, closeEvents, err := openEventLog()
	if err != nil {
		return err
	}
	defer closeEvents()

	drv, err := midiport.Open()
	if err != nil {
		return err
	}
	defer drv.Close()
	drv.VirtualName = virtualName

	cfg := bridge.DeviceConfig{
		Opener:    drv,
		Store:     settings.NewStore(settingsDir),
		Responder: responder,
		EventLog:  events,
	}

	if monitorAddr != "" {
		hub := newSnapshotHub()
		addr, err := hub.serve(ctx, monitorAddr)
		if err != nil {
			return fmt.Errorf("failed to start monitor server: %v", err)
		}
		cfg.OnSnapshot = hub.publish
		fmt.Printf("Monitor: ws://%s/\n", addr)
	}

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("mcbridge - Device Unit\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Settings: %s\n", settingsDir)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	dev := bridge.NewDevice(cfg)
	log.Printf("Session %s", dev.Session())

	err = dev.Run(ctx, conn)

	fmt.Println()
	fmt.Printf("Enumeration: %s\n", dev.Enumeration().State())
	if dev.Enumeration().Operating() {
		info := dev.Enumeration().Info()
		fmt.Printf("Surface: %s %s (%04x:%04x)\n", info.Manufacturer, info.Product, info.VendorID, info.ProductID)
	}
	fmt.Print(dev.Statistics().String())
	printErrorCounts(dev.Errors())

	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printErrorCounts(c bridge.ErrorCounts) {
	if c.Total() == 0 {
		return
	}
	fmt.Printf("Bridge errors:   %8d\n", c.Total())
	fmt.Printf("  Framing:          %5d\n", c.Framing)
	fmt.Printf("  Capacity:         %5d\n", c.Capacity)
	fmt.Printf("  Protocol:         %5d\n", c.Protocol)
	fmt.Printf("  Backpressure:     %5d\n", c.Backpressure)
	fmt.Printf("  Transport:        %5d\n", c.Transport)
}
