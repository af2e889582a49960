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
	"testing"
)

func newTestFSM(t *testing.T) (*FSM, *fakeTransport, *fakeCodec) {
	t.Helper()
	dev := NewDevice(4, "eth0", &fakeClock{})
	dev.SetIdentity(DUIDFromBytes([]byte{0, 3, 1, 2, 3, 4}), 1)
	tr := &fakeTransport{recv: make(chan Datagram, 4)}
	codec := &fakeCodec{}
	fsm := NewFSM(dev, tr, codec, fakeNetInfo{}, &ServerPolicy{}, &fakeClock{}, testLogger())
	return fsm, tr, codec
}

func TestIntakeHandleLinkBringsDeviceReady(t *testing.T) {
	fsm, _, _ := newTestFSM(t)
	fsm.dev.SetConfig(&Config{})
	fsm.dev.setState(StateWaitReady, nil)
	fsm.dev.SetAddrReady(true)

	in := NewIntake(func(int) *FSM { return fsm }, &fakeCodec{})
	in.HandleLink(context.Background(), LinkEvent{Ifindex: 4, Up: true})

	if !fsm.dev.Ready() {
		t.Errorf("device not Ready() after link-up with address already ready")
	}
}

func TestIntakeHandleLinkDownResetsToWaitReady(t *testing.T) {
	fsm, _, _ := newTestFSM(t)
	fsm.dev.SetLinkState(true, true)
	fsm.dev.setState(StateSelecting, nil)
	fsm.dev.SetBestOffer(BestOffer{Weight: 10, Lease: &Lease{}})

	in := NewIntake(func(int) *FSM { return fsm }, &fakeCodec{})
	in.HandleLink(context.Background(), LinkEvent{Ifindex: 4, Up: false})

	if fsm.dev.State() != StateWaitReady {
		t.Errorf("state after link down = %v, want WaitReady", fsm.dev.State())
	}
	if fsm.dev.BestOffer() != NoOffer {
		t.Errorf("best offer not reset on link down")
	}
}

func TestIntakeHandleLinkDownLeavesBoundDeviceInPlace(t *testing.T) {
	fsm, _, _ := newTestFSM(t)
	fsm.dev.SetLinkState(true, true)
	fsm.dev.SetLease(&Lease{ServerDUID: DUIDFromBytes([]byte{0, 3, 9, 9})})
	fsm.dev.setState(StateBound, nil)

	in := NewIntake(func(int) *FSM { return fsm }, &fakeCodec{})
	in.HandleLink(context.Background(), LinkEvent{Ifindex: 4, Up: false})

	if fsm.dev.State() != StateBound {
		t.Errorf("state after link down on a Bound device = %v, want Bound", fsm.dev.State())
	}
	if fsm.dev.Lease() == nil {
		t.Errorf("lease dropped on link down while Bound")
	}
}

func TestIntakeHandleLinkUpAfterBoundFlapSendsConfirm(t *testing.T) {
	fsm, tr, _ := newTestFSM(t)
	fsm.dev.SetLinkState(true, true)
	fsm.dev.SetLease(&Lease{ServerDUID: DUIDFromBytes([]byte{0, 3, 9, 9})})
	fsm.dev.setState(StateBound, nil)

	in := NewIntake(func(int) *FSM { return fsm }, &fakeCodec{})
	in.HandleLink(context.Background(), LinkEvent{Ifindex: 4, Up: false})
	in.HandleLink(context.Background(), LinkEvent{Ifindex: 4, Up: true})

	if fsm.dev.State() != StateConfirming {
		t.Errorf("state after link recovers from a Bound flap = %v, want Confirming", fsm.dev.State())
	}
	if len(tr.sent) == 0 {
		t.Errorf("no Confirm transmitted on link recovery")
	}
}

func TestIntakeHandleDeviceRename(t *testing.T) {
	fsm, _, _ := newTestFSM(t)
	in := NewIntake(func(int) *FSM { return fsm }, &fakeCodec{})

	in.HandleDevice(context.Background(), DeviceLifecycleEvent{Ifindex: 4, Up: true, Ifname: "eth1"})

	if got := fsm.dev.Ifname(); got != "eth1" {
		t.Errorf("ifname after rename = %q, want eth1", got)
	}
}

func TestIntakeHandleDeviceDownResetsToInit(t *testing.T) {
	fsm, _, _ := newTestFSM(t)
	fsm.dev.SetLease(&Lease{ServerDUID: DUIDFromBytes([]byte{0, 3, 9, 9})})
	fsm.dev.setState(StateBound, nil)
	in := NewIntake(func(int) *FSM { return fsm }, &fakeCodec{})

	in.HandleDevice(context.Background(), DeviceLifecycleEvent{Ifindex: 4, Up: false})

	if fsm.dev.State() != StateInit {
		t.Errorf("state after device down = %v, want Init", fsm.dev.State())
	}
	if fsm.dev.Lease() != nil {
		t.Errorf("lease not dropped on device down")
	}
}

func TestIntakeHandleAddressDuplicateTriggersDecline(t *testing.T) {
	fsm, tr, _ := newTestFSM(t)
	fsm.dev.SetLease(&Lease{ServerDUID: DUIDFromBytes([]byte{0, 3, 9, 9})})
	fsm.dev.setState(StateBound, nil)

	in := NewIntake(func(int) *FSM { return fsm }, &fakeCodec{})
	in.HandleAddress(context.Background(), AddressEvent{Ifindex: 4, Addr: IfaceAddr{Flags: AddressFlags{Duplicate: true}}})

	if fsm.dev.State() != StateDeclining {
		t.Errorf("state after duplicate address = %v, want Declining", fsm.dev.State())
	}
	if len(tr.sent) == 0 {
		t.Errorf("no Decline transmitted")
	}
}

func TestIntakeHandlePacketDropsUndecodable(t *testing.T) {
	fsm, _, _ := newTestFSM(t)
	fsm.dev.setState(StateSelecting, nil)
	before := fsm.dev.State()

	in := NewIntake(func(int) *FSM { return fsm }, &fakeCodec{failDecode: true})
	in.HandlePacket(context.Background(), PacketEvent{Ifindex: 4, Data: []byte("garbage")})

	if fsm.dev.State() != before {
		t.Errorf("state changed on undecodable packet: %v -> %v", before, fsm.dev.State())
	}
}

func TestIntakeUnknownIfindexIsNoop(t *testing.T) {
	in := NewIntake(func(int) *FSM { return nil }, &fakeCodec{})
	in.HandleLink(context.Background(), LinkEvent{Ifindex: 999, Up: true})
	in.HandleAddress(context.Background(), AddressEvent{Ifindex: 999})
	in.HandlePacket(context.Background(), PacketEvent{Ifindex: 999})
}
