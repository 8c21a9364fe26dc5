// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
	"github.com/Thermoquad/mcbridge/pkg/enumeration"
	"github.com/Thermoquad/mcbridge/pkg/eventlog"
	"github.com/Thermoquad/mcbridge/pkg/logging"
	"github.com/Thermoquad/mcbridge/pkg/settings"
)

// HostState is the host unit's view of the link
type HostState int

// Host states
const (
	HostDisconnected HostState = iota
	HostDeviceSetup
	HostOperating
)

func (s HostState) String() string {
	switch s {
	case HostDisconnected:
		return "DISCONNECTED"
	case HostDeviceSetup:
		return "DEVICE_SETUP"
	case HostOperating:
		return "OPERATING"
	}
	return fmt.Sprintf("HOST_STATE(%d)", int(s))
}

// maxStringPayload bounds a RETURN_DEV_STRING payload
const maxStringPayload = 255

// HostConfig configures a host unit
type HostConfig struct {
	Profile    *settings.Profile
	EventLog   eventlog.Logger
	QueueDepth int

	// OnChange runs on the poll loop goroutine after the state, the
	// active cable or the button mode changed
	OnChange func(HostStatus)
}

// HostStatus is a summary of the host unit for display
type HostStatus struct {
	State       HostState
	ActiveCable uint8
	ButtonMode  bridgecmd.ChannelButtonMode
	NavHeld     uint8
}

// Host is the surface-facing unit. It answers descriptor requests from
// its profile and carries MIDI between the surface and the device unit.
type Host struct {
	cfg     HostConfig
	session string
	log     eventlog.Logger

	queue   *bridgecmd.Queue
	decoder *bridgecmd.Decoder
	stats   *bridgecmd.Statistics

	state    HostState
	devDesc  []byte
	confDesc []byte
	indices  []uint8

	surface     SurfacePort
	activeCable uint8
	channels    *ChannelButtons
	nav         *NavButtons
	errs        ErrorCounts
	sink        SurfaceSink
}

// NewHost creates a host unit serving profile
func NewHost(cfg HostConfig) (*Host, error) {
	if cfg.Profile == nil {
		cfg.Profile = settings.DefaultProfile()
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if cfg.EventLog == nil {
		cfg.EventLog = eventlog.NoopLogger{}
	}
	dev, _ := cfg.Profile.DeviceBytes()
	conf, _ := cfg.Profile.ConfigBytes()
	h := &Host{
		cfg:      cfg,
		session:  uuid.New().String(),
		log:      cfg.EventLog,
		queue:    bridgecmd.NewQueue(cfg.QueueDepth),
		decoder:  bridgecmd.NewDecoder(),
		stats:    bridgecmd.NewStatistics(),
		devDesc:  dev,
		confDesc: conf,
		indices:  cfg.Profile.StringIndices(),
		channels: NewChannelButtons(),
		nav:      NewNavButtons(),
	}
	h.sink = h
	return h, nil
}

// Session returns the unit's session id
func (h *Host) Session() string { return h.session }

// State returns the link state
func (h *Host) State() HostState { return h.state }

// ActiveCable returns the cable panel buttons are sent on
func (h *Host) ActiveCable() uint8 { return h.activeCable }

// Statistics returns the command channel statistics
func (h *Host) Statistics() *bridgecmd.Statistics { return h.stats }

// Errors returns the error tally
func (h *Host) Errors() ErrorCounts { return h.errs }

// Queue returns the outbound frame queue
func (h *Host) Queue() *bridgecmd.Queue { return h.queue }

// Status summarizes the host for display
func (h *Host) Status() HostStatus {
	return HostStatus{
		State:       h.state,
		ActiveCable: h.activeCable,
		ButtonMode:  h.channels.Mode(),
		NavHeld:     h.nav.Held(),
	}
}

// SurfaceSink returns the sink surface ports must deliver MIDI to
func (h *Host) SurfaceSink() SurfaceSink { return h.sink }

// AttachSurface connects the control surface; requests are answered
// from then on
func (h *Host) AttachSurface(port SurfacePort) {
	h.surface = port
	if h.state == HostDisconnected {
		h.setState(HostDeviceSetup, "surface attached")
	}
}

// DetachSurface disconnects the control surface
func (h *Host) DetachSurface() {
	if h.surface != nil {
		if err := h.surface.Close(); err != nil {
			h.recordError(err, "surface close")
		}
		h.surface = nil
	}
	h.setState(HostDisconnected, "surface detached")
}

func (h *Host) setState(s HostState, reason string) {
	if s == h.state {
		return
	}
	h.log.Log(eventlog.NewStateEvent(h.session, eventlog.UnitHost, "host", h.state.String(), s.String(), reason))
	logging.LogInfo(logging.ComponentHost, "state change", "from", h.state.String(), "to", s.String(), "reason", reason)
	h.state = s
	h.changed()
}

func (h *Host) changed() {
	if h.cfg.OnChange != nil {
		h.cfg.OnChange(h.Status())
	}
}

func (h *Host) sendCommand(header uint8, payload []byte) {
	h.log.Log(eventlog.NewFrameEvent(h.session, eventlog.UnitHost, eventlog.DirectionOut, header, payload))
	if err := h.queue.SendCommand(header, payload); err != nil {
		h.recordError(err, bridgecmd.FormatHeader(header))
	}
}

func (h *Host) sendMIDI(cable uint8, data []byte) {
	h.log.Log(eventlog.NewFrameEvent(h.session, eventlog.UnitHost, eventlog.DirectionOut, cable, data))
	if err := h.queue.SendMIDI(cable, data); err != nil {
		h.recordError(err, "midi to device")
	}
}

// Feed decodes bytes received from the device unit
func (h *Host) Feed(data []byte, now time.Time) {
	for _, b := range data {
		frame, err := h.decoder.DecodeByte(b)
		if frame == nil && err == nil {
			continue
		}
		h.stats.Update(frame, err)
		if err != nil {
			h.recordError(err, "command channel rx")
			continue
		}
		h.HandleFrame(frame)
	}
}

// HandleFrame applies one frame from the device unit
func (h *Host) HandleFrame(f *bridgecmd.Frame) {
	header, payload := f.Header(), f.Payload()
	h.log.Log(eventlog.NewFrameEvent(h.session, eventlog.UnitHost, eventlog.DirectionIn, header, payload))

	if f.IsMIDI() {
		if h.state != HostOperating || h.surface == nil {
			return
		}
		if err := h.surface.WriteMIDI(f.Cable(), payload); err != nil {
			h.recordError(err, "surface write")
		}
		return
	}
	if header == bridgecmd.ActiveCable {
		if len(payload) >= 1 {
			h.activeCable = payload[0]
			if h.activeCable == settings.AllCables {
				h.activeCable = 0
			}
			h.changed()
		}
		return
	}
	if h.state == HostDisconnected {
		return
	}

	switch header {
	case bridgecmd.RequestDevDesc:
		h.sendCommand(bridgecmd.ReturnDevDesc, h.devDesc)
	case bridgecmd.RequestConfDesc0, bridgecmd.RequestConfDesc1, bridgecmd.RequestConfDesc2:
		h.sendCommand(header+1, h.confChunk(header))
	case bridgecmd.RequestDevLangids:
		ids := make([]byte, 0, 2*len(h.cfg.Profile.LangIDs))
		for _, id := range h.cfg.Profile.LangIDs {
			ids = binary.LittleEndian.AppendUint16(ids, id)
		}
		h.sendCommand(bridgecmd.ReturnDevLangids, ids)
	case bridgecmd.RequestDevStringIdxs:
		h.sendCommand(bridgecmd.ReturnDevStringIdxs, h.indices[:min(len(h.indices), maxStringPayload)])
	case bridgecmd.RequestDevString:
		if len(payload) < 3 {
			h.recordError(fmt.Errorf("%w: string request of %d bytes", enumeration.ErrFatal, len(payload)), "string request")
			return
		}
		h.sendCommand(bridgecmd.ReturnDevString, h.stringPayload(payload[0], binary.LittleEndian.Uint16(payload[1:3])))
	case bridgecmd.Resynchronize:
		if h.state == HostDeviceSetup {
			h.setState(HostOperating, "resynchronize")
		}
	default:
		logging.LogDebug(logging.ComponentHost, "ignoring frame", "header", bridgecmd.FormatHeader(header))
	}
}

func (h *Host) confChunk(header uint8) []byte {
	chunk := int(header-bridgecmd.RequestConfDesc0) / 2
	offset := chunk * bridgecmd.ConfigDescMaxPayload
	if offset >= len(h.confDesc) {
		return nil
	}
	end := min(offset+bridgecmd.ConfigDescMaxPayload, len(h.confDesc))
	return h.confDesc[offset:end]
}

// stringPayload builds a RETURN_DEV_STRING payload. Unknown strings are
// answered empty so enumeration can move on.
func (h *Host) stringPayload(index uint8, langid uint16) []byte {
	out := []byte{index, byte(langid), byte(langid >> 8)}
	text, ok := h.cfg.Profile.Lookup(index, langid)
	if !ok {
		logging.LogWarn(logging.ComponentHost, "unknown string requested", "index", index, "langid", fmt.Sprintf("0x%04X", langid))
		return out
	}
	out = append(out, enumeration.EncodeUTF16LE(text)...)
	if len(out) > maxStringPayload {
		out = out[:maxStringPayload]
	}
	return out
}

// OnSurfaceMIDI forwards surface MIDI to the device unit
func (h *Host) OnSurfaceMIDI(cable uint8, data []byte) {
	if h.state != HostOperating || len(data) == 0 {
		return
	}
	h.sendMIDI(cable, data)
}

// PressChannel handles a channel button press or release
func (h *Host) PressChannel(channel int, pressed bool) {
	if msg := h.channels.ChannelMessage(channel, pressed); msg != nil {
		h.OnSurfaceMIDI(h.activeCable, msg)
	}
}

// PressMode handles a press of a channel mode button
func (h *Host) PressMode(m bridgecmd.ChannelButtonMode) {
	prev := h.channels.Mode()
	mode := h.channels.ToggleMode(m)
	if mode == prev {
		return
	}
	h.sendCommand(bridgecmd.ChannelBtnMode, []byte{byte(mode)})
	h.changed()
}

// PressBeatsSMPTE handles the BEATS/SMPTE button
func (h *Host) PressBeatsSMPTE(pressed bool) {
	h.OnSurfaceMIDI(h.activeCable, BeatsSMPTEMessage(pressed))
}

// PressNameValue handles the NAME/VALUE button
func (h *Host) PressNameValue(pressed bool) {
	h.OnSurfaceMIDI(h.activeCable, NameValueMessage(pressed))
}

// SetNav sets the held navigation buttons
func (h *Host) SetNav(buttons uint8, now time.Time) {
	if bitmap, ok := h.nav.Update(buttons, now); ok {
		h.sendCommand(bridgecmd.NavButtons, []byte{bitmap})
		h.changed()
	}
}

// Tick repeats held navigation buttons
func (h *Host) Tick(now time.Time) {
	if bitmap, ok := h.nav.Repeat(now); ok {
		h.sendCommand(bridgecmd.NavButtons, []byte{bitmap})
	}
	h.stats.SetTxDropped(h.queue.Dropped())
}

// Drain writes queued frames to the device unit
func (h *Host) Drain(w io.Writer) error {
	if err := h.queue.Drain(w); err != nil {
		h.recordError(err, "command channel tx")
		return err
	}
	return nil
}

// Run drives the host unit until ctx is done or conn fails. ready is
// called once the surface sink is installed, with a function that runs
// work on the loop goroutine.
func (h *Host) Run(ctx context.Context, conn io.ReadWriter, ready func(post func(func()))) error {
	p := newPoster(ctx)
	h.sink = postingSurfaceSink{target: h, post: p.post}
	defer func() { h.sink = h }()
	if ready != nil {
		ready(p.post)
	}
	return runLoop(ctx, conn, h, p)
}

func (h *Host) recordError(err error, where string) {
	kind := h.errs.Add(err)
	h.log.Log(eventlog.NewErrorEvent(h.session, eventlog.UnitHost, kind.String(), err, where))
	if kind == KindTransport {
		logging.LogWarn(logging.ComponentHost, "error", "context", where, "error", err)
		return
	}
	logging.LogDebug(logging.ComponentHost, "error", "kind", kind.String(), "context", where, "error", err)
}
