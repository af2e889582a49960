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
	"net/netip"
)

// LinkEvent reports an interface's administrative/operational state
// changing, as NetInfo's watcher observes it.
type LinkEvent struct {
	Ifindex int
	Up      bool
}

// AddressEvent reports one interface address appearing, changing DAD
// state, or disappearing.
type AddressEvent struct {
	Ifindex int
	Addr    IfaceAddr
	Removed bool
}

// PacketEvent is one inbound datagram read off a Device's Transport,
// still in wire form; Intake decodes it before handing it to the FSM.
// From is the datagram's source address, threaded through so Server
// Policy can match a candidate by IPv6 address as well as by DUID.
type PacketEvent struct {
	Ifindex int
	Data    []byte
	From    netip.Addr
}

// DeviceLifecycleEvent reports a device_event observed by the host (spec
// §4.6): DEVICE_UP, optionally carrying a new Ifname if the kernel
// renamed the interface, or DEVICE_DOWN, which invokes Device.Stop.
type DeviceLifecycleEvent struct {
	Ifindex int
	Up      bool
	Ifname  string // only meaningful when Up; empty means unchanged
}

// Intake turns the raw device/address/link/packet events a host or
// NetInfo watcher observes into FSMEvents delivered to the matching
// Device's FSM, implementing spec §4.6. It performs no serialization of
// its own: Engine's single event-loop pump calls these methods one at a
// time, so ordering per Device is exactly the order events arrive here.
type Intake struct {
	lookup func(ifindex int) *FSM
	codec  MessageCodec
}

// NewIntake builds an Intake that resolves events to FSMs via lookup.
func NewIntake(lookup func(ifindex int) *FSM, codec MessageCodec) *Intake {
	return &Intake{lookup: lookup, codec: codec}
}

// HandleLink reacts to an interface's link state changing.
func (in *Intake) HandleLink(ctx context.Context, ev LinkEvent) {
	fsm := in.lookup(ev.Ifindex)
	if fsm == nil {
		return
	}
	if !ev.Up {
		fsm.Handle(ctx, FSMEvent{Kind: EventLinkDown})
		return
	}
	if fsm.dev.SetLinkUp(true) {
		fsm.Handle(ctx, FSMEvent{Kind: EventReady})
	}
}

// HandleAddress reacts to an address appearing or changing DAD state on a
// Device's interface. A newly-confirmed (non-tentative, non-duplicate)
// address satisfies WaitReady's gate; a duplicate address on a bound
// lease starts the Declining exchange. An address removal is ignored:
// address readiness is left as it was and the FSM is not notified.
func (in *Intake) HandleAddress(ctx context.Context, ev AddressEvent) {
	fsm := in.lookup(ev.Ifindex)
	if fsm == nil {
		return
	}

	if ev.Removed {
		return
	}

	if ev.Addr.Flags.Duplicate {
		fsm.DeclineAddress(ctx, ev.Addr.Addr)
		return
	}

	if !ev.Addr.Flags.Tentative && fsm.dev.SetAddrReady(true) {
		fsm.Handle(ctx, FSMEvent{Kind: EventReady})
	}
}

// HandlePacket decodes an inbound datagram and, on success, delivers it
// to the owning Device's FSM. A packet that fails to decode or that
// belongs to no registered Device is dropped (spec §4.6: malformed or
// unsolicited traffic is silently ignored).
func (in *Intake) HandlePacket(ctx context.Context, ev PacketEvent) {
	fsm := in.lookup(ev.Ifindex)
	if fsm == nil {
		return
	}
	msg, err := in.codec.Decode(ev.Data)
	if err != nil {
		return
	}
	fsm.metrics.observeReceived(msg.Type)
	fsm.Handle(ctx, FSMEvent{Kind: EventMessage, Msg: &msg, From: ev.From})
}

// HandleDevice reacts to a device_event: DEVICE_UP updates the Device's
// recorded ifname when the interface was renamed; DEVICE_DOWN invokes
// Device.Stop, which drops the Device's lease/best-offer/Config/Request
// and resets it to Init (spec §4.6, §4.4).
func (in *Intake) HandleDevice(ctx context.Context, ev DeviceLifecycleEvent) {
	fsm := in.lookup(ev.Ifindex)
	if fsm == nil {
		return
	}
	if ev.Up {
		if ev.Ifname != "" {
			fsm.dev.Rename(ev.Ifname)
		}
		return
	}
	fsm.dev.Stop()
}
