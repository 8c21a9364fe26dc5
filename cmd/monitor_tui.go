// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
	"github.com/Thermoquad/mcbridge/pkg/fadersync"
	"github.com/Thermoquad/mcbridge/pkg/mcp"
)

const stripWidth = 12

// Messages
type snapshotMsg mcp.Snapshot
type snapshotErrMsg struct {
	err error
}

// monitorModel mirrors the device unit's display
type monitorModel struct {
	url       string
	snap      mcp.Snapshot
	hasSnap   bool
	snapshots uint64
	lastErr   error
	linkErr   error
	meter     progress.Model
	fader     progress.Model
	width     int
	height    int
	quitting  bool
	st        styles
}

func initialMonitorModel(url string) monitorModel {
	return monitorModel{
		url: url,
		meter: progress.New(
			progress.WithGradient("#00AF00", "#FF0000"),
			progress.WithWidth(stripWidth-2),
			progress.WithoutPercentage(),
		),
		fader: progress.New(
			progress.WithSolidFill("12"),
			progress.WithWidth(stripWidth-2),
			progress.WithoutPercentage(),
		),
		width:  80,
		height: 24,
		st:     newStyles(),
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.EnterAltScreen
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case snapshotMsg:
		m.snap = mcp.Snapshot(msg)
		m.hasSnap = true
		m.snapshots++

	case snapshotErrMsg:
		m.lastErr = msg.err

	case linkClosedMsg:
		m.linkErr = msg.err
	}
	return m, nil
}

// ring draws a VPot LED ring as 11 cells
func ring(s mcp.StripSnapshot) string {
	bits := mcp.VPot{Mode: s.VPotMode, Value: s.VPot}.Ring()
	var b strings.Builder
	for led := 1; led <= 11; led++ {
		if bits&(1<<led) != 0 {
			b.WriteRune('●')
		} else {
			b.WriteRune('·')
		}
	}
	return b.String()
}

// faderLabel shows a fader target and its pickup state
func faderLabel(target uint16, state string) string {
	if target >= fadersync.Impossible {
		return "  --  "
	}
	if state == "" {
		state = "?"
	}
	return fmt.Sprintf("%5d %s", target, state[:1])
}

func (m monitorModel) strip(i int) string {
	st := m.st
	s := m.snap.Strips[i]
	cell := lipgloss.NewStyle().Width(stripWidth)

	flag := func(label string, on bool) string {
		if on {
			return st.lit.Padding(0).Render(label)
		}
		return st.unlit.Padding(0).Render(label)
	}

	lines := []string{
		st.label.Render(fmt.Sprintf("CH %d", i+1)),
		st.value.Render(fmt.Sprintf("%-7s", s.Upper)),
		st.value.Render(fmt.Sprintf("%-7s", s.Lower)),
		st.header.Render(ring(s)),
		flag("R", s.Rec) + " " + flag("S", s.Solo) + " " + flag("M", s.Mute),
		flag("SEL", s.Select),
		m.meter.ViewAs(float64(s.Meter) / float64(mcp.MaxMeterLevel)),
	}
	if s.Overload {
		lines = append(lines, st.err.Render("CLIP"))
	} else {
		lines = append(lines, "")
	}
	target := m.snap.Faders[i]
	ratio := 0.0
	if target < fadersync.Impossible {
		ratio = float64(target) / float64(fadersync.Impossible-1)
	}
	lines = append(lines, m.fader.ViewAs(ratio), st.header.Render(faderLabel(target, m.snap.FaderStates[i])))
	return cell.Render(strings.Join(lines, "\n"))
}

// idleLabel is the time since the DAW last changed the display, as of
// the snapshot
func idleLabel(snap mcp.Snapshot) string {
	if snap.LastActivity.IsZero() {
		return "never"
	}
	idle := snap.Timestamp.Sub(snap.LastActivity)
	if idle < 0 {
		idle = 0
	}
	return idle.Truncate(time.Second).String()
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := m.st

	var s strings.Builder
	s.WriteString(st.title.Render("MCBRIDGE - DISPLAY MONITOR"))
	s.WriteString(" ")
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | q=quit", m.url)))
	s.WriteString("\n\n")

	switch {
	case m.linkErr != nil:
		s.WriteString(st.err.Render(fmt.Sprintf("✗ Monitor connection closed: %v", m.linkErr)))
		s.WriteString("\n\n")
	case !m.hasSnap:
		s.WriteString(st.warning.Render("⏳ Waiting for display state..."))
		s.WriteString("\n")
		return s.String()
	}

	snap := m.snap
	mode := "BEATS"
	if snap.SMPTE {
		mode = "SMPTE"
	}
	fmt.Fprintf(&s, "%s %s   %s %s %s   %s %s   %s %s\n",
		st.label.Render("Assignment:"), st.value.Render(snap.Assignment),
		st.label.Render("Time:"), st.value.Render(snap.Timecode), st.header.Render(mode),
		st.label.Render("Buttons:"), st.value.Render(bridgecmd.ChannelButtonMode(snap.ButtonMode).String()),
		st.label.Render("Cable:"), st.value.Render(fmt.Sprintf("%d", snap.ActiveCable)),
	)

	strips := make([]string, mcp.NumChannels)
	for i := range strips {
		strips[i] = m.strip(i)
	}
	s.WriteString(st.box.Render(lipgloss.JoinHorizontal(lipgloss.Top, strips...)))
	s.WriteString("\n")

	master := snap.Faders[mcp.NumChannels]
	fmt.Fprintf(&s, "%s %s   %s %s   %s %s   %s %s\n",
		st.label.Render("Master:"), st.value.Render(faderLabel(master, snap.FaderStates[mcp.NumChannels])),
		st.label.Render("Updated:"), st.header.Render(snap.Timestamp.Format(time.TimeOnly)),
		st.label.Render("DAW idle:"), st.header.Render(idleLabel(snap)),
		st.label.Render("Snapshots:"), st.value.Render(fmt.Sprintf("%d", m.snapshots)),
	)
	if m.lastErr != nil {
		s.WriteString(st.err.Render(fmt.Sprintf("✗ %v", m.lastErr)))
		s.WriteString("\n")
	}
	return s.String()
}
