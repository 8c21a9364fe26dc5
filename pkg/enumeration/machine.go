// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package enumeration fetches the control surface's USB descriptors and
// strings from the peer unit, one bounded request at a time, so the
// device unit can present the same identity to the DAW.
package enumeration

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/mcbridge/pkg/bridgecmd"
	"github.com/Thermoquad/mcbridge/pkg/logging"
)

// State is the enumeration progress
type State int

// Enumeration states, in order
const (
	DevDescriptor State = iota
	ConfDescriptor
	Langids
	StringList
	AllStrings
	Operating
)

func (s State) String() string {
	switch s {
	case DevDescriptor:
		return "DEV_DESCRIPTOR"
	case ConfDescriptor:
		return "CONF_DESCRIPTOR"
	case Langids:
		return "LANGIDS"
	case StringList:
		return "STRING_LIST"
	case AllStrings:
		return "ALL_STRINGS"
	case Operating:
		return "OPERATING"
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// Enumeration errors
var (
	// ErrStale marks a response that does not belong to the current state.
	// Callers count and ignore it.
	ErrStale = errors.New("stale response")
	// ErrFatal marks a malformed response the bridge cannot proceed without
	ErrFatal = errors.New("fatal enumeration error")
)

// DefaultRetryInterval is how often REQUEST_DEV_DESC is repeated while
// the peer has not answered
const DefaultRetryInterval = time.Second

// Sender queues a command frame for the peer unit
type Sender interface {
	SendCommand(header uint8, payload []byte) error
}

// StringKey identifies one string descriptor
type StringKey struct {
	Index  uint8
	LangID uint16
}

// DeviceInfo is the identity of the enumerated surface
type DeviceInfo struct {
	VendorID     uint16
	ProductID    uint16
	RxCables     uint8
	TxCables     uint8
	Manufacturer string
	Product      string
	Device       DeviceDescriptor
}

// Option configures a Machine
type Option func(*Machine)

// WithOnConfigured registers a callback run once the device and
// configuration descriptors are known. Product strings are not yet set.
func WithOnConfigured(fn func(DeviceInfo)) Option {
	return func(m *Machine) { m.onConfigured = fn }
}

// WithOnComplete registers a callback run when every string is known
func WithOnComplete(fn func(DeviceInfo)) Option {
	return func(m *Machine) { m.onComplete = fn }
}

// WithRetryInterval overrides the device descriptor retry interval
func WithRetryInterval(d time.Duration) Option {
	return func(m *Machine) { m.retry = d }
}

// Machine is the enumeration state machine. It is not safe for
// concurrent use; the poll loop owns it.
type Machine struct {
	sender  Sender
	state   State
	started bool
	retry   time.Duration
	lastReq time.Time

	devDesc   []byte
	device    DeviceDescriptor
	config    []byte
	nextChunk int

	langids []uint16
	indices []uint8
	idxPos  int
	langPos int
	strings map[StringKey][]byte

	info     DeviceInfo
	stale    uint64
	restarts uint64

	onConfigured func(DeviceInfo)
	onComplete   func(DeviceInfo)
}

// New creates a machine that sends its requests through sender
func New(sender Sender, opts ...Option) *Machine {
	m := &Machine{
		sender:  sender,
		retry:   DefaultRetryInterval,
		strings: make(map[StringKey][]byte),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state
func (m *Machine) State() State { return m.state }

// Operating reports whether enumeration has finished
func (m *Machine) Operating() bool { return m.state == Operating }

// Info returns the enumerated device identity
func (m *Machine) Info() DeviceInfo { return m.info }

// StaleResponses returns the number of ignored out-of-state responses
func (m *Machine) StaleResponses() uint64 { return m.stale }

// Restarts returns how many times enumeration was restarted
func (m *Machine) Restarts() uint64 { return m.restarts }

// DeviceDescriptor returns the raw 18 byte device descriptor, or nil
func (m *Machine) DeviceDescriptor() []byte { return m.devDesc }

// ConfigDescriptor returns the reassembled configuration descriptor once complete
func (m *Machine) ConfigDescriptor() []byte {
	if m.state <= ConfDescriptor {
		return nil
	}
	return m.config
}

// Start begins enumeration from DevDescriptor
func (m *Machine) Start(now time.Time) error {
	m.reset()
	m.started = true
	return m.request(now, bridgecmd.RequestDevDesc, nil)
}

// Resynchronize discards everything learned and starts over
func (m *Machine) Resynchronize(now time.Time) error {
	m.restarts++
	logging.LogInfo(logging.ComponentEnumeration, "restarting enumeration", "from", m.state.String())
	return m.Start(now)
}

// Tick repeats the device descriptor request while the peer is silent
func (m *Machine) Tick(now time.Time) error {
	if !m.started || m.state != DevDescriptor || now.Sub(m.lastReq) < m.retry {
		return nil
	}
	logging.LogDebug(logging.ComponentEnumeration, "retrying device descriptor request")
	return m.request(now, bridgecmd.RequestDevDesc, nil)
}

func (m *Machine) reset() {
	m.state = DevDescriptor
	m.devDesc = nil
	m.device = DeviceDescriptor{}
	m.config = nil
	m.nextChunk = 0
	m.langids = nil
	m.indices = nil
	m.idxPos = 0
	m.langPos = 0
	m.strings = make(map[StringKey][]byte)
	m.info = DeviceInfo{}
}

func (m *Machine) request(now time.Time, header uint8, payload []byte) error {
	m.lastReq = now
	if err := m.sender.SendCommand(header, payload); err != nil {
		return fmt.Errorf("send %s: %w", bridgecmd.FormatHeader(header), err)
	}
	return nil
}

func (m *Machine) fatal(format string, args ...any) error {
	err := fmt.Errorf("%w: "+format, append([]any{ErrFatal}, args...)...)
	logging.LogError(logging.ComponentEnumeration, "enumeration halted", "state", m.state.String(), "error", err)
	return err
}

func (m *Machine) staleResponse(header uint8) error {
	m.stale++
	logging.LogDebug(logging.ComponentEnumeration, "ignoring stale response",
		"header", bridgecmd.FormatHeader(header), "state", m.state.String())
	return fmt.Errorf("%w: %s in %s", ErrStale, bridgecmd.FormatHeader(header), m.state)
}

// HandleResponse applies one command frame from the peer. Responses that
// do not match the current state return ErrStale; malformed ones return
// ErrFatal and leave the state unchanged.
func (m *Machine) HandleResponse(header uint8, payload []byte, now time.Time) error {
	switch header {
	case bridgecmd.Resynchronize:
		return m.Resynchronize(now)
	case bridgecmd.ReturnDevDesc:
		return m.handleDevDesc(payload, now)
	case bridgecmd.ReturnConfDesc0:
		return m.handleConfChunk(0, header, payload, now)
	case bridgecmd.ReturnConfDesc1:
		return m.handleConfChunk(1, header, payload, now)
	case bridgecmd.ReturnConfDesc2:
		return m.handleConfChunk(2, header, payload, now)
	case bridgecmd.ReturnDevLangids:
		return m.handleLangids(payload, now)
	case bridgecmd.ReturnDevStringIdxs:
		return m.handleStringIdxs(payload, now)
	case bridgecmd.ReturnDevString:
		return m.handleString(payload, now)
	}
	return m.staleResponse(header)
}

func (m *Machine) handleDevDesc(payload []byte, now time.Time) error {
	if m.state != DevDescriptor {
		return m.staleResponse(bridgecmd.ReturnDevDesc)
	}
	if len(payload) != DeviceDescriptorSize {
		return m.fatal("device descriptor is %d bytes, want %d", len(payload), DeviceDescriptorSize)
	}
	dev, err := ParseDeviceDescriptor(payload)
	if err != nil {
		return m.fatal("device descriptor: %v", err)
	}
	m.devDesc = append([]byte(nil), payload...)
	m.device = dev
	m.state = ConfDescriptor
	m.nextChunk = 0
	logging.LogInfo(logging.ComponentEnumeration, "device descriptor",
		"vid", fmt.Sprintf("0x%04X", dev.VendorID), "pid", fmt.Sprintf("0x%04X", dev.ProductID))
	return m.request(now, bridgecmd.RequestConfDesc0, nil)
}

var confRequests = [3]uint8{bridgecmd.RequestConfDesc0, bridgecmd.RequestConfDesc1, bridgecmd.RequestConfDesc2}

func (m *Machine) handleConfChunk(chunk int, header uint8, payload []byte, now time.Time) error {
	if m.state != ConfDescriptor || chunk != m.nextChunk {
		return m.staleResponse(header)
	}
	offset := chunk * bridgecmd.ConfigDescMaxPayload

	if chunk == 0 {
		total, err := ConfigTotalLength(payload)
		if err != nil {
			return m.fatal("configuration descriptor: %v", err)
		}
		if total < ConfigurationDescriptorSize || total > bridgecmd.ConfigDescMaxLength {
			return m.fatal("configuration descriptor length %d out of range", total)
		}
		want := min(total, bridgecmd.ConfigDescMaxPayload)
		if len(payload) < want {
			return m.fatal("configuration chunk 0 is %d bytes, want %d", len(payload), want)
		}
		m.config = make([]byte, total)
		copy(m.config, payload[:want])
	} else {
		want := min(len(m.config)-offset, bridgecmd.ConfigDescMaxPayload)
		if len(payload) != want {
			return m.fatal("configuration chunk %d is %d bytes, want %d", chunk, len(payload), want)
		}
		copy(m.config[offset:], payload)
	}

	end := offset + bridgecmd.ConfigDescMaxPayload
	if end < len(m.config) {
		m.nextChunk = chunk + 1
		return m.request(now, confRequests[m.nextChunk], nil)
	}

	rx, tx := CountCables(m.config)
	m.info = DeviceInfo{
		VendorID:  m.device.VendorID,
		ProductID: m.device.ProductID,
		RxCables:  rx,
		TxCables:  tx,
		Device:    m.device,
	}
	m.state = Langids
	logging.LogInfo(logging.ComponentEnumeration, "configuration descriptor",
		"length", len(m.config), "rx_cables", rx, "tx_cables", tx)
	if m.onConfigured != nil {
		m.onConfigured(m.info)
	}
	return m.request(now, bridgecmd.RequestDevLangids, nil)
}

func (m *Machine) handleLangids(payload []byte, now time.Time) error {
	if m.state != Langids {
		return m.staleResponse(bridgecmd.ReturnDevLangids)
	}
	if len(payload)%2 != 0 {
		return m.fatal("language id list has odd length %d", len(payload))
	}
	m.langids = make([]uint16, 0, len(payload)/2)
	for i := 0; i+1 < len(payload); i += 2 {
		m.langids = append(m.langids, binary.LittleEndian.Uint16(payload[i:]))
	}
	m.state = StringList
	return m.request(now, bridgecmd.RequestDevStringIdxs, nil)
}

func (m *Machine) handleStringIdxs(payload []byte, now time.Time) error {
	if m.state != StringList {
		return m.staleResponse(bridgecmd.ReturnDevStringIdxs)
	}
	m.indices = append([]uint8(nil), payload...)
	if len(m.indices) == 0 || len(m.langids) == 0 {
		return m.complete(now)
	}
	m.state = AllStrings
	m.idxPos, m.langPos = 0, 0
	return m.requestString(now)
}

func (m *Machine) currentKey() StringKey {
	return StringKey{Index: m.indices[m.idxPos], LangID: m.langids[m.langPos]}
}

func (m *Machine) requestString(now time.Time) error {
	k := m.currentKey()
	return m.request(now, bridgecmd.RequestDevString, []byte{k.Index, byte(k.LangID), byte(k.LangID >> 8)})
}

func (m *Machine) handleString(payload []byte, now time.Time) error {
	if m.state != AllStrings {
		return m.staleResponse(bridgecmd.ReturnDevString)
	}
	if len(payload) < 3 {
		return m.fatal("string response is %d bytes", len(payload))
	}
	got := StringKey{Index: payload[0], LangID: binary.LittleEndian.Uint16(payload[1:3])}
	if got != m.currentKey() {
		return m.staleResponse(bridgecmd.ReturnDevString)
	}
	m.strings[got] = append([]byte(nil), payload[3:]...)

	m.idxPos++
	if m.idxPos >= len(m.indices) {
		m.idxPos = 0
		m.langPos++
		if m.langPos >= len(m.langids) {
			return m.complete(now)
		}
	}
	return m.requestString(now)
}

func (m *Machine) complete(now time.Time) error {
	if len(m.langids) > 0 {
		lang := m.langids[0]
		m.info.Product, _ = m.Text(m.device.ProductIndex, lang)
		m.info.Manufacturer, _ = m.Text(m.device.ManufacturerIndex, lang)
	}
	m.state = Operating
	logging.LogInfo(logging.ComponentEnumeration, "enumeration complete",
		"product", m.info.Product, "strings", len(m.strings))
	err := m.request(now, bridgecmd.Resynchronize, nil)
	if m.onComplete != nil {
		m.onComplete(m.info)
	}
	return err
}

// Text returns a fetched string descriptor as text, as the DAW would
// read it through Lookup
func (m *Machine) Text(index uint8, langid uint16) (string, bool) {
	if index == 0 {
		return "", false
	}
	desc, ok := m.Lookup(index, langid)
	if !ok {
		return "", false
	}
	return DecodeUTF16LE(desc[2:]), true
}

// Lookup returns a string descriptor ready to hand to the DAW. Index 0 is
// the language id list.
func (m *Machine) Lookup(index uint8, langid uint16) ([]byte, bool) {
	if index == 0 {
		if m.state < StringList {
			return nil, false
		}
		desc := make([]byte, 2, 2+2*len(m.langids))
		for _, id := range m.langids {
			desc = binary.LittleEndian.AppendUint16(desc, id)
		}
		desc[0] = byte(len(desc))
		desc[1] = DescriptorTypeString
		return desc, true
	}
	b, ok := m.strings[StringKey{Index: index, LangID: langid}]
	if !ok {
		return nil, false
	}
	n := min(len(b), 252)
	desc := make([]byte, 2+n)
	desc[0] = byte(2 + n)
	desc[1] = DescriptorTypeString
	copy(desc[2:], b[:n])
	return desc, true
}
