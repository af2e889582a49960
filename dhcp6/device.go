/*
Copyright 2026 jr42.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package dhcp6

import (
	"sync"
	"time"
)

// State names one FSM state (spec §4.5). Defined here rather than in
// fsm.go because Device carries its own current State.
type State string

const (
	StateInit          State = "Init"
	StateWaitReady     State = "WaitReady"
	StateSelecting     State = "Selecting"
	StateRequesting    State = "Requesting"
	StateValidateOffer State = "ValidateOffer"
	StateBound         State = "Bound"
	StateRenewing      State = "Renewing"
	StateRebinding     State = "Rebinding"
	StateConfirming    State = "Confirming"
	StateDeclining     State = "Declining"
	StateInfoRequest   State = "InfoRequest"
	StateReleasing     State = "Releasing"
	StateStopped       State = "Stopped"
)

// Device is the engine's per-interface unit of state: exactly one per
// ifindex exists at a time (enforced by Registry), reference-counted so
// concurrent callers sharing an interface don't tear it down from under
// each other. All mutable fields are guarded by mu; Device has no
// goroutine of its own; events are delivered into it by Engine's
// single-threaded pump (intake.go) and out of it via outbox.
type Device struct {
	mu sync.Mutex

	ifindex int
	ifname  string

	clock Clock
	timer *FSMTimer

	refcount int

	duid DUID
	iaid uint32

	state   State
	config  *Config
	request *Request
	lease   *Lease
	best    BestOffer

	linkUp    bool
	addrReady bool

	startedAt time.Time

	outbox chan DeviceEvent
}

// DeviceEvent is one state-change notification a Device emits for the
// host or for Engine's own bookkeeping (metrics, logging).
type DeviceEvent struct {
	Ifindex int
	From    State
	To      State
	Result  *LeaseResult
}

// NewDevice constructs a Device for ifindex in StateInit. It does not
// register itself; callers go through Registry.GetOrCreate so the
// at-most-one-per-ifindex invariant holds.
func NewDevice(ifindex int, ifname string, clock Clock) *Device {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Device{
		ifindex: ifindex,
		ifname:  ifname,
		clock:   clock,
		timer:   NewFSMTimer(clock),
		state:   StateInit,
		best:    NoOffer,
		outbox:  make(chan DeviceEvent, 16),
	}
}

// Ifindex returns the interface index this Device is bound to.
func (d *Device) Ifindex() int { return d.ifindex }

// Ifname returns the interface name currently recorded for this Device.
func (d *Device) Ifname() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ifname
}

// Rename updates the Device's recorded interface name without otherwise
// disturbing its state, for a device_event(DEVICE_UP) that reports the
// interface was renamed (spec §4.6).
func (d *Device) Rename(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ifname = name
}

// Events returns the channel of DeviceEvents the host or Engine should
// drain. Never closed while the Device is registered.
func (d *Device) Events() <-chan DeviceEvent { return d.outbox }

// State returns the Device's current FSM state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// setState transitions the Device and emits a DeviceEvent. Called by the
// FSM, which holds the transition table, and by Stop and terminate.
func (d *Device) setState(to State, result *LeaseResult) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.mu.Unlock()

	if from == to && result == nil {
		return
	}
	select {
	case d.outbox <- DeviceEvent{Ifindex: d.ifindex, From: from, To: to, Result: result}:
	default:
		// Outbox full: the host is behind. Dropping a transition
		// notification is preferable to blocking the event loop.
	}
}

// SetIdentity records the DUID/IAID resolved for this device (spec §4.2).
// Called once before the first Solicit is built.
func (d *Device) SetIdentity(duid DUID, iaid uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.duid = duid
	d.iaid = iaid
}

// Identity returns the device's resolved DUID and IAID.
func (d *Device) Identity() (DUID, uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duid, d.iaid
}

// SetConfig atomically replaces the Device's Config, e.g. when a fresh
// Acquire request supersedes one in flight. The FSM observes this by
// polling Config() at its next decision point; it never reaches into a
// partially-updated Config.
func (d *Device) SetConfig(cfg *Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = cfg
}

// Config returns the Device's current Config, or nil if none was set.
func (d *Device) Config() *Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// SetRequest persists the raw Request behind the current Config, so a
// reload can replay the acquisition (spec §4.3).
func (d *Device) SetRequest(req *Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.request = req
}

// Request returns the Device's persisted Request, or nil.
func (d *Device) Request() *Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.request
}

// SetLease atomically replaces the Device's current Lease. A nil lease
// means the Device currently holds no valid configuration (expired,
// declined, or released).
func (d *Device) SetLease(lease *Lease) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lease = lease
}

// Lease returns the Device's current Lease, or nil.
func (d *Device) Lease() *Lease {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lease
}

// BestOffer returns the Selecting state's current winning offer.
func (d *Device) BestOffer() BestOffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.best
}

// SetBestOffer replaces the Selecting state's current winning offer.
func (d *Device) SetBestOffer(b BestOffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.best = b
}

// ResetBestOffer clears the Selecting winner back to NoOffer, per
// invariant I5: on leaving Selecting (success or otherwise) or on lease
// drop, the best-offer tracker does not carry stale state into the next
// Selecting pass.
func (d *Device) ResetBestOffer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.best = NoOffer
}

// SetLinkState records the latest link-up/address-ready bits NetInfo
// reported for this interface (spec §4.6 device/address/link events).
func (d *Device) SetLinkState(linkUp, addrReady bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linkUp = linkUp
	d.addrReady = addrReady
}

// SetLinkUp updates only the link-up bit, leaving address readiness as
// last reported, and returns the resulting overall Ready() value.
func (d *Device) SetLinkUp(up bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linkUp = up
	return d.linkUp && d.addrReady
}

// SetAddrReady updates only the address-readiness bit, leaving link
// state as last reported, and returns the resulting overall Ready()
// value.
func (d *Device) SetAddrReady(ready bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addrReady = ready
	return d.linkUp && d.addrReady
}

// Ready reports whether the interface is up and has a usable link-local
// address, the gate WaitReady waits on before entering Selecting.
func (d *Device) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linkUp && d.addrReady
}

// MarkStarted records the time the Device first left Init, so Uptime
// can report elapsed time for logging/metrics.
func (d *Device) MarkStarted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startedAt.IsZero() {
		sec, usec := d.clock.Now()
		d.startedAt = time.Unix(sec, usec*int64(time.Microsecond)/int64(time.Nanosecond))
	}
}

// Uptime returns how long the Device has been running, clamped to zero
// if it has not yet started.
func (d *Device) Uptime(now time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startedAt.IsZero() {
		return 0
	}
	up := now.Sub(d.startedAt)
	if up < 0 {
		return 0
	}
	return up
}

// Timer returns the Device's single FSM timer slot. Arming it cancels
// whatever timer was previously armed (see FSMTimer.Arm).
func (d *Device) Timer() *FSMTimer { return d.timer }

// Stop cancels any pending timer and drops the Device's lease, best
// offer, Config and Request, then resets it to Init (spec §4.4): the
// Device stays registered and can be re-Acquired, but carries no
// residual acquisition state across the stop. This is what a
// device_event(DEVICE_DOWN) invokes (intake.go).
func (d *Device) Stop() {
	d.timer.Cancel()
	d.mu.Lock()
	d.lease = nil
	d.best = NoOffer
	d.config = nil
	d.request = nil
	d.mu.Unlock()
	d.setState(StateInit, nil)
}

// terminate fully retires the Device: same cleanup as Stop, but ends in
// Stopped rather than Init and closes outbox so a drain loop ranging
// over Events() returns. Only Registry.Put calls this, once refcount
// reaches zero (spec §4.4's "put", as distinct from the lighter "stop").
func (d *Device) terminate() {
	d.timer.Cancel()
	d.mu.Lock()
	d.lease = nil
	d.best = NoOffer
	d.config = nil
	d.request = nil
	d.mu.Unlock()
	d.setState(StateStopped, nil)
	close(d.outbox)
}

// Registry is the process-wide table of live Devices, keyed by ifindex,
// enforcing at most one Device per interface. Devices are reference
// counted: Get increments, Put decrements and removes the entry at zero.
type Registry struct {
	mu      sync.Mutex
	devices map[int]*Device
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[int]*Device)}
}

// GetOrCreate returns the Device for ifindex, creating it via newDevice
// if none exists yet, and increments its refcount.
func (r *Registry) GetOrCreate(ifindex int, newDevice func() *Device) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[ifindex]
	if !ok {
		dev = newDevice()
		r.devices[ifindex] = dev
	}
	dev.refcount++
	return dev
}

// Lookup returns the Device for ifindex without changing its refcount,
// or nil if none is registered.
func (r *Registry) Lookup(ifindex int) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices[ifindex]
}

// Put decrements ifindex's refcount and, once it reaches zero, stops and
// removes the Device. Returns true if the Device was removed.
func (r *Registry) Put(ifindex int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[ifindex]
	if !ok {
		return false
	}
	dev.refcount--
	if dev.refcount > 0 {
		return false
	}
	delete(r.devices, ifindex)
	dev.terminate()
	return true
}

// Len returns the number of currently registered Devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}
