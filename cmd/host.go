// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/mcbridge/pkg/bridge"
	"github.com/Thermoquad/mcbridge/pkg/eventlog"
	"github.com/Thermoquad/mcbridge/pkg/midiport"
	"github.com/Thermoquad/mcbridge/pkg/settings"
)

var (
	profilePath string
	surfaceIn   string
	surfaceOut  string
	usePanel    bool
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Run the surface-facing bridge unit",
	Long: `Run the host unit of the bridge.

The host unit answers the device unit's descriptor requests from a surface
profile (YAML, see --profile) and carries MIDI between the control surface
and the link. Without --profile a generic single-cable Mackie Control
profile is served.

The surface is reached through MIDI ports matched by name (exact, or a
case-insensitive substring). With --panel a terminal button panel provides
the channel, mode and navigation buttons; without surface ports the panel
alone acts as the surface.

Examples:
  # Physical surface on a serial link
  mcbridge host --port /dev/ttyUSB0 --surface-in "X-Touch" --surface-out "X-Touch"

  # Panel only, connecting to a device unit listening on the network
  mcbridge host --url ws://bridge.local:8080/ --panel`,
	RunE: runHost,
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.Flags().StringVar(&profilePath, "profile", "", "Surface profile (YAML)")
	hostCmd.Flags().StringVar(&surfaceIn, "surface-in", "", "MIDI input port of the control surface")
	hostCmd.Flags().StringVar(&surfaceOut, "surface-out", "", "MIDI output port of the control surface (default: --surface-in)")
	hostCmd.Flags().BoolVar(&usePanel, "panel", false, "Show the terminal button panel")
}

func loadProfile() (*settings.Profile, error) {
	if profilePath == "" {
		return settings.DefaultProfile(), nil
	}
	return settings.LoadProfile(profilePath)
}

func runHost(cmd *cobra.Command, args []string) error {
	if surfaceIn == "" && !usePanel {
		return errors.New("--surface-in or --panel is required")
	}
	if surfaceOut == "" {
		surfaceOut = surfaceIn
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	profile, err := loadProfile()
	if err != nil {
		return err
	}

	events, closeEvents, err := openEventLog()
	if err != nil {
		return err
	}
	defer closeEvents()

	var drv *midiport.Driver
	if surfaceIn != "" {
		drv, err = midiport.Open()
		if err != nil {
			return err
		}
		defer drv.Close()
	}

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if usePanel {
		return runHostPanel(ctx, cancel, conn, connInfo, profile, events, drv)
	}

	fmt.Printf("mcbridge - Host Unit\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Profile: %s\n", profile.Name)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	host, err := bridge.NewHost(bridge.HostConfig{
		Profile:  profile,
		EventLog: events,
		OnChange: func(s bridge.HostStatus) {
			log.Printf("Host %s, active cable %d, buttons %s", s.State, s.ActiveCable, s.ButtonMode)
		},
	})
	if err != nil {
		return err
	}
	log.Printf("Session %s", host.Session())

	var surfaceErr error
	err = host.Run(ctx, conn, func(post func(func())) {
		port, err := drv.OpenSurface(surfaceIn, surfaceOut, host.SurfaceSink())
		if err != nil {
			surfaceErr = err
			cancel()
			return
		}
		post(func() { host.AttachSurface(port) })
	})
	host.DetachSurface()

	fmt.Println()
	fmt.Print(host.Statistics().String())
	printErrorCounts(host.Errors())

	if surfaceErr != nil {
		return surfaceErr
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// runHostPanel runs the host unit behind the button panel TUI
func runHostPanel(ctx context.Context, cancel context.CancelFunc, conn Connection, connInfo string,
	profile *settings.Profile, events eventlog.Logger, drv *midiport.Driver) error {
	var p *tea.Program

	host, err := bridge.NewHost(bridge.HostConfig{
		Profile:  profile,
		EventLog: events,
		OnChange: func(s bridge.HostStatus) {
			p.Send(hostStatusMsg(s))
		},
	})
	if err != nil {
		return err
	}

	p = tea.NewProgram(initialPanelModel(host, connInfo, profile.Name))

	done := make(chan error, 1)
	go func() {
		err := host.Run(ctx, conn, func(post func(func())) {
			var port bridge.SurfacePort = panelSurface{p: p}
			if drv != nil {
				sp, err := drv.OpenSurface(surfaceIn, surfaceOut, host.SurfaceSink())
				if err != nil {
					p.Send(surfaceErrMsg{err: err})
				} else {
					port = sp
				}
			}
			p.Send(panelReadyMsg{post: post})
			post(func() { host.AttachSurface(port) })
		})
		host.DetachSurface()
		p.Send(linkClosedMsg{err: err})
		done <- err
	}()

	_, tuiErr := p.Run()
	cancel()
	err = <-done

	if tuiErr != nil {
		return fmt.Errorf("TUI error: %v", tuiErr)
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// panelSurface stands in for a physical surface when only the panel is
// used. DAW feedback is shown in the panel's event log.
type panelSurface struct {
	p *tea.Program
}

func (s panelSurface) WriteMIDI(cable uint8, data []byte) error {
	s.p.Send(surfaceMIDIMsg{cable: cable, data: append([]byte(nil), data...)})
	return nil
}

func (s panelSurface) Close() error { return nil }
