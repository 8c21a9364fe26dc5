// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Thermoquad/mcbridge/pkg/bridge"
	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
	"github.com/Thermoquad/mcbridge/pkg/mcp"
)

// navHold is how long a navigation key counts as held after the last
// key event. Terminal key repeat keeps it held.
const navHold = 150 * time.Millisecond

// Messages
type hostStatusMsg bridge.HostStatus
type panelReadyMsg struct {
	post func(func())
}
type surfaceErrMsg struct {
	err error
}
type surfaceMIDIMsg struct {
	cable uint8
	data  []byte
}
type hostStatsMsg struct {
	stats bridgecmd.Statistics
	errs  bridge.ErrorCounts
}
type navReleaseMsg struct {
	seq int
}

type panelKeyMap struct {
	Channel    key.Binding
	Solo       key.Binding
	Mute       key.Binding
	Rec        key.Binding
	VPot       key.Binding
	Nav        key.Binding
	Select     key.Binding
	Back       key.Binding
	BeatsSMPTE key.Binding
	NameValue  key.Binding
	Quit       key.Binding
}

func (k panelKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Channel, k.Nav, k.Quit}
}

func (k panelKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Channel, k.Solo, k.Mute, k.Rec, k.VPot},
		{k.Nav, k.Select, k.Back},
		{k.BeatsSMPTE, k.NameValue, k.Quit},
	}
}

var panelKeys = panelKeyMap{
	Channel:    key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8"), key.WithHelp("1-8", "channel")),
	Solo:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "solo mode")),
	Mute:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute mode")),
	Rec:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rec mode")),
	VPot:       key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "vpot mode")),
	Nav:        key.NewBinding(key.WithKeys("up", "down", "left", "right", "shift+up", "shift+down", "shift+left", "shift+right"), key.WithHelp("←↑→↓", "navigate (shift)")),
	Select:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Back:       key.NewBinding(key.WithKeys("backspace", "esc"), key.WithHelp("esc", "back")),
	BeatsSMPTE: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "beats/smpte")),
	NameValue:  key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "name/value")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// navBits maps navigation keys to the NAV_BUTTONS bitmap
var navBits = map[string]uint8{
	"up":          bridgecmd.NavUp,
	"down":        bridgecmd.NavDown,
	"left":        bridgecmd.NavLeft,
	"right":       bridgecmd.NavRight,
	"shift+up":    bridgecmd.NavUp | bridgecmd.NavShift,
	"shift+down":  bridgecmd.NavDown | bridgecmd.NavShift,
	"shift+left":  bridgecmd.NavLeft | bridgecmd.NavShift,
	"shift+right": bridgecmd.NavRight | bridgecmd.NavShift,
	"enter":       bridgecmd.NavSelect,
	"backspace":   bridgecmd.NavBack,
	"esc":         bridgecmd.NavBack,
}

// panelModel is the host unit's button panel. The host is only touched
// through post, on its own loop.
type panelModel struct {
	host        *bridge.Host
	post        func(func())
	connInfo    string
	profileName string

	status   bridge.HostStatus
	stats    bridgecmd.Statistics
	errs     bridge.ErrorCounts
	hasStats bool
	navSeq   int
	log      eventLog
	linkErr  error

	width    int
	height   int
	quitting bool
	help     help.Model
	st       styles
}

func initialPanelModel(host *bridge.Host, connInfo, profileName string) panelModel {
	h := help.New()
	h.ShowAll = true
	return panelModel{
		host:        host,
		connInfo:    connInfo,
		profileName: profileName,
		log:         eventLog{max: 100},
		width:       80,
		height:      24,
		help:        h,
		st:          newStyles(),
	}
}

func (m panelModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

// do runs fn on the host loop once the host is running
func (m panelModel) do(fn func(h *bridge.Host)) {
	if m.post == nil || m.linkErr != nil {
		return
	}
	h := m.host
	m.post(func() { fn(h) })
}

// statsCmd fetches a copy of the host statistics from its loop
func (m panelModel) statsCmd() tea.Cmd {
	if m.post == nil || m.linkErr != nil {
		return nil
	}
	post, host := m.post, m.host
	return func() tea.Msg {
		ch := make(chan hostStatsMsg, 1)
		post(func() {
			ch <- hostStatsMsg{stats: *host.Statistics(), errs: host.Errors()}
		})
		select {
		case msg := <-ch:
			return msg
		case <-time.After(time.Second):
			return nil
		}
	}
}

func (m panelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(tickCmd(), m.statsCmd())

	case panelReadyMsg:
		m.post = msg.post
		m.log.add("Host running", false)

	case hostStatusMsg:
		prev := m.status
		m.status = bridge.HostStatus(msg)
		if prev.State != m.status.State {
			m.log.add(fmt.Sprintf("State %s", m.status.State), false)
		}
		if prev.ActiveCable != m.status.ActiveCable {
			m.log.add(fmt.Sprintf("Active cable %d", m.status.ActiveCable), false)
		}

	case hostStatsMsg:
		m.stats = msg.stats
		m.errs = msg.errs
		m.hasStats = true

	case surfaceErrMsg:
		m.log.add(fmt.Sprintf("Surface: %v (panel only)", msg.err), true)

	case surfaceMIDIMsg:
		m.log.add(fmt.Sprintf("DAW cable %d: %s", msg.cable, mcp.FormatMessage(msg.data)), false)

	case navReleaseMsg:
		if msg.seq == m.navSeq {
			m.do(func(h *bridge.Host) { h.SetNav(0, time.Now()) })
		}

	case linkClosedMsg:
		m.linkErr = msg.err
		if msg.err != nil {
			m.log.add(fmt.Sprintf("Link closed: %v", msg.err), true)
		} else {
			m.log.add("Link closed", true)
		}
	}

	return m, nil
}

func (m panelModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, panelKeys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, panelKeys.Channel):
		channel := int(msg.String()[0] - '1')
		m.do(func(h *bridge.Host) {
			h.PressChannel(channel, true)
			h.PressChannel(channel, false)
		})

	case key.Matches(msg, panelKeys.Solo):
		m.pressMode(bridgecmd.ModeSolo)
	case key.Matches(msg, panelKeys.Mute):
		m.pressMode(bridgecmd.ModeMute)
	case key.Matches(msg, panelKeys.Rec):
		m.pressMode(bridgecmd.ModeRec)
	case key.Matches(msg, panelKeys.VPot):
		m.pressMode(bridgecmd.ModeVPot)

	case key.Matches(msg, panelKeys.BeatsSMPTE):
		m.do(func(h *bridge.Host) {
			h.PressBeatsSMPTE(true)
			h.PressBeatsSMPTE(false)
		})
	case key.Matches(msg, panelKeys.NameValue):
		m.do(func(h *bridge.Host) {
			h.PressNameValue(true)
			h.PressNameValue(false)
		})

	case key.Matches(msg, panelKeys.Nav, panelKeys.Select, panelKeys.Back):
		bits := navBits[msg.String()]
		m.navSeq++
		seq := m.navSeq
		m.do(func(h *bridge.Host) { h.SetNav(bits, time.Now()) })
		return m, tea.Tick(navHold, func(time.Time) tea.Msg {
			return navReleaseMsg{seq: seq}
		})
	}
	return m, nil
}

func (m panelModel) pressMode(mode bridgecmd.ChannelButtonMode) {
	m.do(func(h *bridge.Host) { h.PressMode(mode) })
}

// button renders a lit or unlit panel button
func (m panelModel) button(label string, lit bool) string {
	if lit {
		return m.st.lit.Render(label)
	}
	return m.st.unlit.Render(label)
}

func (m panelModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := m.st

	var s strings.Builder
	s.WriteString(st.title.Render("MCBRIDGE HOST PANEL"))
	s.WriteString(" ")
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | %s", m.connInfo, m.profileName)))
	s.WriteString("\n\n")

	// Link state
	state := st.warning.Render(m.status.State.String())
	switch {
	case m.linkErr != nil:
		state = st.err.Render("LINK CLOSED")
	case m.status.State == bridge.HostOperating:
		state = st.value.Render(m.status.State.String())
	}
	fmt.Fprintf(&s, "%s %s   %s %s\n\n",
		st.label.Render("State:"), state,
		st.label.Render("Active Cable:"), st.value.Render(fmt.Sprintf("%d", m.status.ActiveCable)))

	// Buttons
	var panel strings.Builder
	modes := []bridgecmd.ChannelButtonMode{
		bridgecmd.ModeSelect, bridgecmd.ModeSolo, bridgecmd.ModeMute, bridgecmd.ModeRec, bridgecmd.ModeVPot,
	}
	panel.WriteString(st.label.Render("Mode:    "))
	for _, mode := range modes {
		panel.WriteString(m.button(mode.String(), m.status.ButtonMode == mode))
		panel.WriteString(" ")
	}
	panel.WriteString("\n")
	panel.WriteString(st.label.Render("Channel: "))
	for ch := 1; ch <= bridge.NumChannelButtons; ch++ {
		panel.WriteString(m.button(fmt.Sprintf("%d", ch), false))
		panel.WriteString(" ")
	}
	panel.WriteString("\n")
	held := m.status.NavHeld
	panel.WriteString(st.label.Render("Nav:     "))
	for _, b := range []struct {
		label string
		bit   uint8
	}{
		{"◀", bridgecmd.NavLeft}, {"▲", bridgecmd.NavUp}, {"▼", bridgecmd.NavDown}, {"▶", bridgecmd.NavRight},
		{"SEL", bridgecmd.NavSelect}, {"BACK", bridgecmd.NavBack}, {"SHIFT", bridgecmd.NavShift},
	} {
		panel.WriteString(m.button(b.label, held&b.bit != 0))
		panel.WriteString(" ")
	}
	s.WriteString(st.box.Render(strings.TrimRight(panel.String(), " ")))
	s.WriteString("\n\n")

	// Statistics
	if m.hasStats {
		stats := m.stats
		fmt.Fprintf(&s, "%s %s   %s %s   %s %s   %s %s\n\n",
			st.label.Render("Frames:"), st.value.Render(fmt.Sprintf("%d", stats.ValidFrames)),
			st.label.Render("Channel Errors:"), st.err.Render(fmt.Sprintf("%d", stats.Errors())),
			st.label.Render("TX Dropped:"), st.warning.Render(fmt.Sprintf("%d", stats.TxDropped)),
			st.label.Render("Bridge Errors:"), st.err.Render(fmt.Sprintf("%d", m.errs.Total())),
		)
	}

	// Event log
	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")
	logHeight := max(m.height-22, 5)
	s.WriteString(st.box.Width(m.width - 4).Render(m.log.render(st, logHeight)))
	s.WriteString("\n")
	s.WriteString(m.help.View(panelKeys))

	return s.String()
}
