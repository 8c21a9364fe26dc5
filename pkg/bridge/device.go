// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge wires the protocol components into the two units of
// the display bridge. Each unit is one context object driven by a single
// poll loop goroutine; no component is shared between goroutines.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
	"github.com/Thermoquad/mcbridge/pkg/enumeration"
	"github.com/Thermoquad/mcbridge/pkg/eventlog"
	"github.com/Thermoquad/mcbridge/pkg/fadersync"
	"github.com/Thermoquad/mcbridge/pkg/logging"
	"github.com/Thermoquad/mcbridge/pkg/mcp"
	"github.com/Thermoquad/mcbridge/pkg/settings"
	"github.com/Thermoquad/mcbridge/pkg/sysex"
	"github.com/Thermoquad/mcbridge/pkg/usbmidi"
)

// DeviceConfig configures a device unit
type DeviceConfig struct {
	// Opener opens the DAW-facing port when enumeration completes
	Opener UsbOpener
	// Store persists settings per surface; nil keeps them in memory
	Store *settings.Store
	// Responder answers Mackie Control queries; nil picks a random serial
	Responder *mcp.Responder
	EventLog  eventlog.Logger

	QueueDepth    int
	RetryInterval time.Duration

	// OnSnapshot receives the display state after it changed, at most
	// once per tick. It runs on the poll loop goroutine.
	OnSnapshot func(mcp.Snapshot)
}

// Device is the DAW-facing unit. It enumerates the surface through the
// host unit, mirrors the Mackie Control display and synchronizes faders.
type Device struct {
	cfg     DeviceConfig
	session string
	log     eventlog.Logger

	queue   *bridgecmd.Queue
	decoder *bridgecmd.Decoder
	stats   *bridgecmd.Statistics

	enum       *enumeration.Machine
	classifier *mcp.Classifier
	settings   *settings.Model

	surfaceCodec *usbmidi.Codec // surface to DAW
	replyCodec   *usbmidi.Codec
	accum        [usbmidi.NumCables]*sysex.Accumulator

	sink    UsbEventSink
	usb     UsbPort
	mounted bool
	dirty   bool
	errs    ErrorCounts
}

// NewDevice creates a device unit. Call Start or Run to begin enumeration.
func NewDevice(cfg DeviceConfig) *Device {
	if cfg.EventLog == nil {
		cfg.EventLog = eventlog.NoopLogger{}
	}
	d := &Device{
		cfg:          cfg,
		session:      uuid.New().String(),
		log:          cfg.EventLog,
		queue:        bridgecmd.NewQueue(cfg.QueueDepth),
		decoder:      bridgecmd.NewDecoder(),
		stats:        bridgecmd.NewStatistics(),
		classifier:   mcp.NewClassifier(cfg.Responder),
		settings:     settings.NewModel(),
		surfaceCodec: usbmidi.NewCodec(),
		replyCodec:   usbmidi.NewCodec(),
	}
	d.sink = d
	for i := range d.accum {
		d.accum[i] = sysex.New(sysex.DefaultCapacity)
	}
	opts := []enumeration.Option{
		enumeration.WithOnConfigured(d.onConfigured),
		enumeration.WithOnComplete(d.onComplete),
	}
	if cfg.RetryInterval > 0 {
		opts = append(opts, enumeration.WithRetryInterval(cfg.RetryInterval))
	}
	d.enum = enumeration.New(d, opts...)
	return d
}

// Session returns the unit's session id
func (d *Device) Session() string { return d.session }

// Enumeration returns the enumeration state machine
func (d *Device) Enumeration() *enumeration.Machine { return d.enum }

// Classifier returns the MCP classifier and the display it owns
func (d *Device) Classifier() *mcp.Classifier { return d.classifier }

// Settings returns the settings of the connected surface
func (d *Device) Settings() *settings.Model { return d.settings }

// Statistics returns the command channel statistics
func (d *Device) Statistics() *bridgecmd.Statistics { return d.stats }

// Errors returns the error tally
func (d *Device) Errors() ErrorCounts { return d.errs }

// Queue returns the outbound frame queue
func (d *Device) Queue() *bridgecmd.Queue { return d.queue }

// USBOpen reports whether the DAW-facing port is open
func (d *Device) USBOpen() bool { return d.usb != nil }

// Mounted reports whether the DAW has the port open
func (d *Device) Mounted() bool { return d.mounted }

// Start begins enumeration
func (d *Device) Start(now time.Time) error {
	d.logState("enumeration", "", d.enum.State().String(), "start")
	err := d.enum.Start(now)
	if err != nil {
		d.recordError(err, "start")
	}
	return err
}

// SendCommand queues a command frame for the host unit
func (d *Device) SendCommand(header uint8, payload []byte) error {
	d.log.Log(eventlog.NewFrameEvent(d.session, eventlog.UnitDevice, eventlog.DirectionOut, header, payload))
	return d.queue.SendCommand(header, payload)
}

// Feed decodes bytes received from the host unit
func (d *Device) Feed(data []byte, now time.Time) {
	for _, b := range data {
		frame, err := d.decoder.DecodeByte(b)
		if frame == nil && err == nil {
			continue
		}
		d.stats.Update(frame, err)
		if err != nil {
			d.recordError(err, "command channel rx")
			continue
		}
		d.HandleFrame(frame, now)
	}
}

// HandleFrame applies one frame from the host unit
func (d *Device) HandleFrame(f *bridgecmd.Frame, now time.Time) {
	h, payload := f.Header(), f.Payload()
	d.log.Log(eventlog.NewFrameEvent(d.session, eventlog.UnitDevice, eventlog.DirectionIn, h, payload))

	switch {
	case f.IsMIDI():
		d.handleSurfaceMIDI(f.Cable(), payload)
	case h == bridgecmd.NavButtons:
		if len(payload) >= 1 {
			d.classifier.Display().SetNav(payload[0])
			d.dirty = true
		}
	case h == bridgecmd.ChannelBtnMode:
		if len(payload) >= 1 {
			d.classifier.Display().SetButtonMode(bridgecmd.ChannelButtonMode(payload[0]))
			d.dirty = true
		}
	case h >= bridgecmd.RequestDevDesc && h <= bridgecmd.ReturnConfDesc2:
		d.handleEnumeration(h, payload, now)
	default:
		logging.LogDebug(logging.ComponentDevice, "ignoring frame", "header", bridgecmd.FormatHeader(h))
	}
}

func (d *Device) handleEnumeration(h uint8, payload []byte, now time.Time) {
	prev := d.enum.State()
	if h == bridgecmd.Resynchronize {
		d.resetSurface()
	}
	err := d.enum.HandleResponse(h, payload, now)
	if next := d.enum.State(); next != prev || h == bridgecmd.Resynchronize {
		d.logState("enumeration", prev.String(), next.String(), bridgecmd.FormatHeader(h))
	}
	if err != nil {
		d.recordError(err, bridgecmd.FormatHeader(h))
	}
}

// resetSurface drops everything tied to the previous enumeration
func (d *Device) resetSurface() {
	if d.usb != nil {
		if err := d.usb.Close(); err != nil {
			d.recordError(err, "usb close")
		}
		d.usb = nil
	}
	d.mounted = false
	d.classifier.Display().Clear()
	d.classifier.Faders().StartSync()
	for i := range d.accum {
		d.accum[i].Reset()
		d.surfaceCodec.Reset(uint8(i))
		d.replyCodec.Reset(uint8(i))
	}
	d.dirty = true
}

func (d *Device) onConfigured(info enumeration.DeviceInfo) {
	d.settings.SetNumCables(info.TxCables, info.RxCables)
	d.settings.LoadDefaults()
	if d.cfg.Store == nil {
		return
	}
	if err := d.cfg.Store.LoadOrCreate(info.VendorID, info.ProductID, "", d.settings); err != nil {
		d.recordError(err, "settings")
	}
}

func (d *Device) onComplete(info enumeration.DeviceInfo) {
	in, _ := d.settings.MCCable()
	d.classifier.Display().SetActiveCable(in)
	if err := d.SendCommand(bridgecmd.ActiveCable, []byte{in}); err != nil {
		d.recordError(err, "active cable")
	}

	if d.cfg.Opener == nil {
		return
	}
	port, err := d.cfg.Opener.OpenUSB(info, d.sink)
	if err != nil {
		d.recordError(fmt.Errorf("open usb: %w", err), "usb open")
		return
	}
	d.usb = port
	logging.LogInfo(logging.ComponentDevice, "usb port open", "product", info.Product,
		"rx_cables", info.RxCables, "tx_cables", info.TxCables)
}

// handleSurfaceMIDI forwards surface MIDI to the DAW. On the Mackie
// Control cable faders go through soft pickup and button notes through
// the button map.
func (d *Device) handleSurfaceMIDI(cable uint8, data []byte) {
	if !d.enum.Operating() || d.usb == nil {
		logging.LogDebug(logging.ComponentDevice, "dropping surface midi before usb is up", "cable", cable, "bytes", len(data))
		return
	}
	mc := d.settings.IsMCCableIn(cable)
	for _, b := range data {
		p, ok, err := d.surfaceCodec.FeedByte(cable, b)
		if err != nil {
			d.recordError(err, "surface midi")
		}
		if !ok {
			continue
		}
		if mc {
			if p, ok = d.filterSurfacePacket(p); !ok {
				continue
			}
		}
		d.writeUSB(p)
	}
}

func (d *Device) filterSurfacePacket(p usbmidi.Packet) (usbmidi.Packet, bool) {
	switch p.CIN() {
	case usbmidi.CINPitchBend:
		id := p[1] & 0x0F
		if int(id) >= fadersync.NumFaders {
			return p, true
		}
		pos := uint16(p[2]) | uint16(p[3])<<7
		msg, ok := d.classifier.Faders().UpdateFader(id, pos)
		d.dirty = true
		if !ok {
			return p, false
		}
		return usbmidi.NewPacket(p.Cable(), usbmidi.CINPitchBend, msg[0], msg[1], msg[2]), true
	case usbmidi.CINNoteOn, usbmidi.CINNoteOff:
		p[2] = d.settings.MapToDAW(p[2])
	}
	return p, true
}

func (d *Device) writeUSB(p usbmidi.Packet) {
	if d.usb == nil {
		return
	}
	if err := d.usb.WritePacket(p); err != nil {
		d.recordError(err, "usb tx")
	}
}

// OnUSBPacket handles one packet from the DAW
func (d *Device) OnUSBPacket(p usbmidi.Packet) {
	if !d.enum.Operating() {
		return
	}
	cable := p.Cable()
	switch p.CIN() {
	case usbmidi.CINMisc, usbmidi.CINCableEvent:
		return
	case usbmidi.CINSysExStart, usbmidi.CINSysExEnd2, usbmidi.CINSysExEnd3:
		d.appendSysEx(cable, p.Bytes())
		return
	case usbmidi.CINSysExEnd1:
		if p[1] == sysex.EOX || d.accum[cable].Active() {
			d.appendSysEx(cable, p.Bytes())
			return
		}
	}
	if acc := d.accum[cable]; acc.Active() && p.CIN() != usbmidi.CINSingleByte {
		// An embedded EOX still ends the message; anything else breaks it
		if bytes.IndexByte(p.Bytes(), sysex.EOX) >= 0 {
			d.appendSysEx(cable, []byte{sysex.EOX})
			return
		}
		acc.Reset()
		d.recordError(fmt.Errorf("%w: 0x%02X interrupted SysEx on cable %d", ErrSysExAborted, p[1], cable), "usb rx")
	}
	d.handleMessage(cable, p.Bytes())
}

// appendSysEx accumulates SysEx bytes. Real time bytes never reach here
// because they travel in their own packets.
func (d *Device) appendSysEx(cable uint8, data []byte) {
	acc := d.accum[cable]
	switch acc.Append(data...) {
	case sysex.Complete:
		msg := acc.Bytes()
		if n := acc.Dropped(); n > 0 {
			d.recordError(fmt.Errorf("%w: %d bytes dropped on cable %d", ErrSysExTruncated, n, cable), "usb rx")
		}
		acc.Reset()
		d.handleMessage(cable, msg)
	case sysex.Aborted:
		d.recordError(fmt.Errorf("%w on cable %d", ErrSysExAborted, cable), "usb rx")
		acc.Reset()
	}
}

// handleMessage routes one complete message from the DAW
func (d *Device) handleMessage(cable uint8, msg []byte) {
	if len(msg) == 0 {
		return
	}
	if !d.settings.IsMCCable(cable) {
		d.forward(cable, msg)
		return
	}
	res := d.classifier.Classify(msg)
	if res.Route != mcp.PassThrough {
		d.dirty = true
	}
	if res.Reply != nil {
		d.reply(cable, res.Reply)
	}
	if !res.Route.Forward() {
		return
	}
	if len(msg) == 3 && (msg[0]&0xF0 == 0x90 || msg[0]&0xF0 == 0x80) {
		msg = []byte{msg[0], d.settings.MapToSurface(msg[1]), msg[2]}
	}
	d.forward(cable, msg)
}

func (d *Device) forward(cable uint8, msg []byte) {
	d.log.Log(eventlog.NewFrameEvent(d.session, eventlog.UnitDevice, eventlog.DirectionOut, cable, msg))
	if err := d.queue.SendMIDI(cable, msg); err != nil {
		d.recordError(err, "forward to surface")
	}
}

func (d *Device) reply(cable uint8, msg []byte) {
	packets, err := d.replyCodec.FeedBytes(cable, msg)
	if err != nil {
		d.recordError(err, "reply")
	}
	for _, p := range packets {
		d.writeUSB(p)
	}
}

// OnUSBMounted restarts fader pickup when the DAW opens the port
func (d *Device) OnUSBMounted() {
	d.mounted = true
	d.classifier.Faders().StartSync()
	d.logState("usb", "UNMOUNTED", "MOUNTED", "")
}

// OnUSBUnmounted drops partial SysEx state
func (d *Device) OnUSBUnmounted() {
	d.mounted = false
	for _, acc := range d.accum {
		acc.Reset()
	}
	d.logState("usb", "MOUNTED", "UNMOUNTED", "")
}

// Tick runs the periodic tasks
func (d *Device) Tick(now time.Time) {
	if err := d.enum.Tick(now); err != nil {
		d.recordError(err, "enumeration retry")
	}
	if d.classifier.Tick(now) {
		d.dirty = true
	}
	d.saveSettings()
	d.stats.SetTxDropped(d.queue.Dropped())

	if d.dirty && d.cfg.OnSnapshot != nil {
		d.cfg.OnSnapshot(d.classifier.Snapshot())
	}
	d.dirty = false
}

func (d *Device) saveSettings() {
	if d.cfg.Store == nil || !d.settings.NeedsSave() || d.enum.State() <= enumeration.ConfDescriptor {
		return
	}
	info := d.enum.Info()
	if err := d.cfg.Store.Save(info.VendorID, info.ProductID, info.Product, d.settings); err != nil {
		d.recordError(err, "settings")
		// retried on the next change, not every tick
		d.settings.ClearNeedsSave()
	}
}

// Drain writes queued frames to the host unit
func (d *Device) Drain(w io.Writer) error {
	if err := d.queue.Drain(w); err != nil {
		d.recordError(err, "command channel tx")
		return err
	}
	return nil
}

// Run drives the device unit until ctx is done or conn fails
func (d *Device) Run(ctx context.Context, conn io.ReadWriter) error {
	p := newPoster(ctx)
	d.sink = postingSink{target: d, post: p.post}
	defer func() {
		d.sink = d
		if d.usb != nil {
			_ = d.usb.Close()
			d.usb = nil
		}
	}()

	if err := d.Start(time.Now()); err != nil && !errors.Is(err, bridgecmd.ErrQueueFull) {
		return fmt.Errorf("start enumeration: %w", err)
	}
	return runLoop(ctx, conn, d, p)
}

func (d *Device) logState(entity, from, to, reason string) {
	d.log.Log(eventlog.NewStateEvent(d.session, eventlog.UnitDevice, entity, from, to, reason))
}

func (d *Device) recordError(err error, where string) {
	kind := d.errs.Add(err)
	d.log.Log(eventlog.NewErrorEvent(d.session, eventlog.UnitDevice, kind.String(), err, where))
	switch kind {
	case KindTransport:
		logging.LogWarn(logging.ComponentDevice, "error", "context", where, "error", err)
	default:
		logging.LogDebug(logging.ComponentDevice, "error", "kind", kind.String(), "context", where, "error", err)
	}
}
