// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
)

// styles shared by the terminal UIs
type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	err     lipgloss.Style
	warning lipgloss.Style
	box     lipgloss.Style
	lit     lipgloss.Style
	unlit   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		err: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true),
		warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		lit: lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("10")).
			Padding(0, 1),
		unlit: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
	}
}

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// eventLog keeps the most recent entries for display
type eventLog struct {
	entries []logEntry
	max     int
}

func (l *eventLog) add(message string, isError bool) {
	l.entries = append(l.entries, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// render shows the last lines entries
func (l *eventLog) render(st styles, lines int) string {
	if len(l.entries) == 0 {
		return st.header.Render("  (no events yet)")
	}
	var b strings.Builder
	start := max(len(l.entries)-lines, 0)
	for _, entry := range l.entries[start:] {
		timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", st.header.Render(timestamp), st.err.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", st.header.Render(timestamp), st.warning.Render("ℹ "+entry.message))
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	seconds := uint64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

// Messages
type tickMsg time.Time
type frameDataMsg struct {
	frame     *bridgecmd.Frame
	decodeErr error
}
type syncMsg struct {
	invalidBytes int
}
type linkClosedMsg struct {
	err error
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type statsKeyMap struct {
	Reset key.Binding
	Quit  key.Binding
}

func (k statsKeyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Reset, k.Quit} }
func (k statsKeyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var statsKeys = statsKeyMap{
	Reset: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset stats")),
	Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// statsModel is the channel_stats TUI
type statsModel struct {
	connInfo     string
	showAll      bool
	stats        *bridgecmd.Statistics
	headers      map[uint8]uint64
	log          eventLog
	synchronized bool
	invalidBytes int
	linkErr      error
	width        int
	height       int
	quitting     bool
	valid        progress.Model
	help         help.Model
	st           styles
}

func initialStatsModel(connInfo string, showAll bool) statsModel {
	return statsModel{
		connInfo: connInfo,
		showAll:  showAll,
		stats:    bridgecmd.NewStatistics(),
		headers:  make(map[uint8]uint64),
		log:      eventLog{max: 100},
		width:    80,
		height:   24,
		valid:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:     help.New(),
		st:       newStyles(),
	}
}

func (m statsModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func (m statsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, statsKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, statsKeys.Reset):
			m.stats.Reset()
			clear(m.headers)
			m.log.add("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.valid.Width = min(max(msg.Width-30, 10), 60)

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.log.add(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.log.add("Synchronized", false)
		}

	case frameDataMsg:
		m.stats.Update(msg.frame, msg.decodeErr)
		if msg.decodeErr != nil {
			m.log.add(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		} else if msg.frame != nil {
			m.headers[msg.frame.Header()]++
			if !bridgecmd.IsKnownHeader(msg.frame.Header()) && !msg.frame.IsMIDI() {
				m.log.add(fmt.Sprintf("Unknown header 0x%02X", msg.frame.Header()), true)
			} else if m.showAll {
				m.log.add(strings.TrimSpace(bridgecmd.FormatFrame(msg.frame)), false)
			}
		}

	case linkClosedMsg:
		m.linkErr = msg.err
		m.log.add(fmt.Sprintf("Link closed: %v", msg.err), true)
	}

	return m, nil
}

// headerSummary lists per-header frame counts, MIDI cables first
func (m statsModel) headerSummary() string {
	var midi, cmds []string
	for h := 0; h <= 0xFF; h++ {
		n, ok := m.headers[uint8(h)]
		if !ok {
			continue
		}
		if bridgecmd.IsMIDIHeader(uint8(h)) {
			midi = append(midi, fmt.Sprintf("cable %d: %d", h, n))
		} else {
			cmds = append(cmds, fmt.Sprintf("%s: %d", bridgecmd.FormatHeader(uint8(h)), n))
		}
	}
	var b strings.Builder
	if len(midi) > 0 {
		fmt.Fprintf(&b, "%s %s\n", m.st.label.Render("MIDI:"), strings.Join(midi, "  "))
	}
	for _, c := range cmds {
		fmt.Fprintf(&b, "  %s\n", c)
	}
	if b.Len() == 0 {
		return m.st.header.Render("  (no frames yet)")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m statsModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	st := m.st

	// Header
	var s strings.Builder
	s.WriteString(st.title.Render("MCBRIDGE - CHANNEL STATISTICS"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Mode: %s | Up %s",
		m.connInfo, mode, formatUptime(time.Since(m.stats.StartTime)))))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.linkErr != nil:
		s.WriteString(st.err.Render("✗ Link closed"))
	case !m.synchronized:
		s.WriteString(st.warning.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(st.value.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(st.header.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	stats := m.stats
	stats.CalculateRates()
	var validRatio, errorPercent float64
	if stats.TotalFrames > 0 {
		validRatio = float64(stats.ValidFrames) / float64(stats.TotalFrames)
		errorPercent = float64(stats.Errors()) * 100.0 / float64(stats.TotalFrames)
	}

	var content strings.Builder
	fmt.Fprintf(&content, "%s %s   %s %s   %s %s\n",
		st.label.Render("Total:"), st.value.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		st.label.Render("MIDI:"), st.value.Render(fmt.Sprintf("%d", stats.MIDIFrames)),
		st.label.Render("Commands:"), st.value.Render(fmt.Sprintf("%d", stats.CommandFrames)),
	)
	fmt.Fprintf(&content, "%s %s\n", st.label.Render("Valid:"), m.valid.ViewAs(validRatio))
	fmt.Fprintf(&content, "%s %s", st.label.Render("Errors:"),
		st.err.Render(fmt.Sprintf("%d (%.1f%%)", stats.Errors(), errorPercent)))
	if stats.Errors() > 0 {
		fmt.Fprintf(&content, " (%s: %d, %s: %d, %s: %d)",
			st.header.Render("CRC"), stats.CRCErrors,
			st.header.Render("framing"), stats.FramingErrors,
			st.header.Render("oversize"), stats.OversizeFrames,
		)
	}
	content.WriteString("\n")
	if stats.UnknownCommands > 0 {
		fmt.Fprintf(&content, "%s %s\n", st.label.Render("Unknown:"),
			st.warning.Render(fmt.Sprintf("%d", stats.UnknownCommands)))
	}
	errRate := st.value.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	if stats.ErrorRate > 0 {
		errRate = st.err.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	}
	fmt.Fprintf(&content, "%s %s   %s %s",
		st.label.Render("Frame Rate:"), st.value.Render(fmt.Sprintf("%.1f frames/s", stats.FrameRate)),
		st.label.Render("Error Rate:"), errRate,
	)

	s.WriteString(st.box.Render(content.String()))
	s.WriteString("\n\n")

	s.WriteString(st.label.Render("Frames by Header:"))
	s.WriteString("\n")
	s.WriteString(st.box.Render(m.headerSummary()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")
	logHeight := max(m.height-22-len(m.headers), 5)
	s.WriteString(st.box.Width(m.width - 4).Render(m.log.render(st, logHeight)))
	s.WriteString("\n")
	s.WriteString(m.help.View(statsKeys))

	return s.String()
}
