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
	"context"
	"sync"

	"github.com/go-logr/logr"
)

// TransportFactory opens a Transport bound to one interface. Engine
// calls it once per Device, when the Device is first created.
type TransportFactory func(ifindex int, ifname string) (Transport, error)

// EngineConfig bundles the external collaborators and policy an Engine
// needs. Codec, NetInfo and Transports are mandatory; the rest default
// to sane values.
type EngineConfig struct {
	Codec      MessageCodec
	NetInfo    NetInfo
	Transports TransportFactory
	Identity   *IdentitySource
	Policy     *ServerPolicy
	Clock      Clock
	Metrics    *Metrics
	Log        logr.Logger
}

// acquireCmd is an Acquire call queued onto the event loop.
type acquireCmd struct {
	ifindex int
	ifname  string
	req     *Request
}

// Engine is the facade tying every per-interface component (Device,
// FSM, Identity, Policy, Intake) into one running process. It pumps a
// single event loop goroutine in the composite receiver's mergeEvents
// style: every external event funnels through one goroutine so no
// Device's state is ever touched
// concurrently.
type Engine struct {
	cfg EngineConfig

	registry *Registry

	mu        sync.Mutex
	fsms      map[int]*FSM
	transports map[int]Transport

	acquireCh chan acquireCmd
	releaseCh chan int
	linkCh    chan LinkEvent
	addrCh    chan AddressEvent
	packetCh  chan PacketEvent
	deviceCh  chan DeviceLifecycleEvent
	resultsCh chan LeaseResult

	wg              sync.WaitGroup
	cancel          context.CancelFunc
	identityWatcher *FileWatcher
}

// NewEngine constructs an Engine from cfg. Call Start to begin pumping
// events.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Policy == nil {
		cfg.Policy = &ServerPolicy{}
	}
	if cfg.Identity == nil {
		cfg.Identity = &IdentitySource{NetInfo: cfg.NetInfo}
	}
	return &Engine{
		cfg:        cfg,
		registry:   NewRegistry(),
		fsms:       make(map[int]*FSM),
		transports: make(map[int]Transport),
		acquireCh:  make(chan acquireCmd, 16),
		releaseCh:  make(chan int, 16),
		linkCh:     make(chan LinkEvent, 64),
		addrCh:     make(chan AddressEvent, 64),
		packetCh:   make(chan PacketEvent, 256),
		deviceCh:   make(chan DeviceLifecycleEvent, 16),
		resultsCh:  make(chan LeaseResult, 64),
	}
}

// Results returns the channel of LeaseResults the host should drain: one
// each time a Device enters Bound and one per terminal failure. A
// Release produces no LeaseResult.
func (e *Engine) Results() <-chan LeaseResult { return e.resultsCh }

// Start begins the Engine's event loop. It returns once the loop
// goroutine has been launched; Stop(ctx) tears it down.
func (e *Engine) Start(ctx context.Context) {
	if w, err := e.cfg.Identity.Watch(); err != nil {
		e.cfg.Log.Error(err, "failed to watch DUID file for out-of-band changes")
	} else {
		e.identityWatcher = w
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.wg.Add(1)
	go e.run(loopCtx)
}

// Stop cancels the event loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.identityWatcher.Close()
}

// Acquire starts (or restarts) acquisition on the interface named by
// ifindex/ifname for req. Safe to call before or after Start; the
// command queues until the loop is running.
func (e *Engine) Acquire(ifindex int, ifname string, req *Request) {
	e.acquireCh <- acquireCmd{ifindex: ifindex, ifname: ifname, req: req}
}

// Release starts the Releasing exchange for ifindex; once it completes
// the Device is left in Stopped with no lease. The Device stays
// registered until the Engine stops.
func (e *Engine) Release(ifindex int) {
	e.releaseCh <- ifindex
}

// NotifyLink feeds a link-state change observed by the host's NetInfo
// watcher into the event loop.
func (e *Engine) NotifyLink(ev LinkEvent) { e.linkCh <- ev }

// NotifyAddress feeds an address-state change observed by the host's
// NetInfo watcher into the event loop.
func (e *Engine) NotifyAddress(ev AddressEvent) { e.addrCh <- ev }

// NotifyDevice feeds a device_event (interface rename or removal)
// observed by the host's NetInfo watcher into the event loop.
func (e *Engine) NotifyDevice(ev DeviceLifecycleEvent) { e.deviceCh <- ev }

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	intake := NewIntake(e.lookupFSM, e.cfg.Codec)

	for {
		select {
		case <-ctx.Done():
			e.teardownAll()
			return
		case cmd := <-e.acquireCh:
			e.handleAcquire(ctx, cmd)
		case ifindex := <-e.releaseCh:
			e.handleRelease(ctx, ifindex)
		case ev := <-e.linkCh:
			intake.HandleLink(ctx, ev)
		case ev := <-e.addrCh:
			intake.HandleAddress(ctx, ev)
		case ev := <-e.packetCh:
			intake.HandlePacket(ctx, ev)
		case ev := <-e.deviceCh:
			intake.HandleDevice(ctx, ev)
		}
	}
}

func (e *Engine) lookupFSM(ifindex int) *FSM {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fsms[ifindex]
}

func (e *Engine) handleAcquire(ctx context.Context, cmd acquireCmd) {
	fsm, err := e.ensureFSM(cmd.ifindex, cmd.ifname)
	if err != nil {
		e.resultsCh <- LeaseResult{RequestUUID: cmd.req.UUID, Err: err}
		return
	}
	fsm.Handle(ctx, FSMEvent{Kind: EventAcquire, Request: cmd.req})
}

func (e *Engine) handleRelease(ctx context.Context, ifindex int) {
	fsm := e.lookupFSM(ifindex)
	if fsm == nil {
		return
	}
	fsm.Release(ctx)
}

// ensureFSM returns the FSM for ifindex, creating the Device, Transport
// and FSM on first use. Identity resolution happens here so it only
// runs once per interface (spec §4.2).
func (e *Engine) ensureFSM(ifindex int, ifname string) (*FSM, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if fsm, ok := e.fsms[ifindex]; ok {
		return fsm, nil
	}

	dev := e.registry.GetOrCreate(ifindex, func() *Device {
		return NewDevice(ifindex, ifname, e.cfg.Clock)
	})

	iface, err := e.cfg.NetInfo.ByIndex(ifindex)
	if err != nil {
		return nil, err
	}
	duid, err := e.cfg.Identity.Resolve(iface, nil)
	if err != nil {
		return nil, err
	}
	iaid, err := DeriveIAID(iface)
	if err != nil {
		return nil, err
	}
	dev.SetIdentity(duid, iaid)
	dev.SetLinkState(iface.LinkUp, addressReady(iface))

	transport, err := e.cfg.Transports(ifindex, ifname)
	if err != nil {
		return nil, err
	}
	e.transports[ifindex] = transport

	fsm := NewFSM(dev, transport, e.cfg.Codec, e.cfg.NetInfo, e.cfg.Policy, e.cfg.Clock, e.cfg.Log).WithMetrics(e.cfg.Metrics)
	e.fsms[ifindex] = fsm
	e.cfg.Metrics.setDevicesActive(len(e.fsms))

	e.wg.Add(2)
	go e.pumpPackets(ifindex, transport)
	go e.pumpResults(dev)

	return fsm, nil
}

func addressReady(iface Iface) bool {
	for _, a := range iface.Addrs {
		if !a.Flags.Tentative && !a.Flags.Duplicate {
			return true
		}
	}
	return false
}

// pumpPackets forwards one Device's Transport.Recv() into the shared
// packet channel the event loop serializes on. This goroutine does no
// decoding or FSM work itself; it is a dumb pipe, keeping all FSM state
// changes on the single loop goroutine.
func (e *Engine) pumpPackets(ifindex int, transport Transport) {
	defer e.wg.Done()
	for dg := range transport.Recv() {
		e.packetCh <- PacketEvent{Ifindex: ifindex, Data: dg.Data, From: dg.From}
	}
}

// pumpResults forwards one Device's terminal DeviceEvents into the
// shared results channel the host drains. It runs until outbox is
// closed, which only happens once the Device is fully retired by
// Registry.Put (spec §4.4's "put") — resetting to Init via Device.Stop
// (the lighter "stop") or reaching Stopped via the FSM does not close it,
// since that Device stays registered.
func (e *Engine) pumpResults(dev *Device) {
	defer e.wg.Done()
	for ev := range dev.Events() {
		if ev.Result != nil {
			e.resultsCh <- *ev.Result
		}
	}
}

func (e *Engine) teardownAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ifindex, transport := range e.transports {
		_ = transport.Close()
		e.registry.Put(ifindex)
	}
}
