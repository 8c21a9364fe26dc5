// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mcbridge/pkg/mcp"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <url>",
	Short: "Mirror a device unit's Mackie Control display",
	Long: `Show the display state of a device unit started with --monitor.

The device unit consumes display traffic from the DAW (scribble strips,
LED rings, meters, timecode) instead of sending it over the link. This
command shows what that display currently looks like, along with fader
targets and soft pickup state.

Example:
  mcbridge device --port /dev/ttyUSB0 --monitor :8081
  mcbridge monitor ws://localhost:8081/`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	password := ""
	if wsUsername != "" {
		var err error
		password, err = GetPassword()
		if err != nil {
			return err
		}
	}
	conn, err := dialWebSocket(args[0], wsUsername, password, wsNoSSLVerify)
	if err != nil {
		return err
	}
	defer conn.Close()

	p := tea.NewProgram(initialMonitorModel(args[0]))

	go func() {
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				p.Send(linkClosedMsg{err: err})
				return
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			snap, err := mcp.DecodeSnapshot(data)
			if err != nil {
				p.Send(snapshotErrMsg{err: err})
				continue
			}
			p.Send(snapshotMsg(snap))
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
