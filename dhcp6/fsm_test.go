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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func preferenceOf(v uint8) *uint8 { return &v }

var _ = Describe("FSM acquisition", func() {
	var (
		ctx    context.Context
		dev    *Device
		fsm    *FSM
		tr     *fakeTransport
		codec  *fakeCodec
		server DUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		dev = NewDevice(9, "eth0", &fakeClock{})
		dev.SetIdentity(DUIDFromBytes([]byte{0, 3, 1, 2, 3, 4}), 7)
		tr = &fakeTransport{recv: make(chan Datagram, 8)}
		codec = &fakeCodec{}
		fsm = NewFSM(dev, tr, codec, fakeNetInfo{}, &ServerPolicy{}, &fakeClock{}, testLogger())
		server = DUIDFromBytes([]byte{0, 3, 9, 9, 9, 9})
	})

	Context("the happy path", func() {
		It("moves Init -> WaitReady -> Selecting -> Requesting -> Bound", func() {
			fsm.Handle(ctx, FSMEvent{Kind: EventAcquire, Request: &Request{UUID: "r1"}})
			Expect(dev.State()).To(Equal(StateWaitReady))

			dev.SetLinkUp(true)
			dev.SetAddrReady(true)
			fsm.Handle(ctx, FSMEvent{Kind: EventReady})
			Expect(dev.State()).To(Equal(StateSelecting))
			Expect(tr.sent).NotTo(BeEmpty())

			addr := netip.MustParseAddr("2001:db8::1")
			advertise := &Message{
				Type:       MessageAdvertise,
				ServerID:   &server,
				Preference: preferenceOf(100),
				IAs: []MessageIA{{
					Type:      IATypeNA,
					IAID:      7,
					Addresses: []IAAddrOption{{Addr: addr}},
				}},
			}
			fsm.Handle(ctx, FSMEvent{Kind: EventMessage, Msg: advertise, From: netip.MustParseAddr("2001:db8::ffff")})
			Expect(dev.State()).To(Equal(StateSelecting), "a single non-255 offer should not shortcut Selecting")

			dev.Timer().Cancel()
			fsm.enterRequesting(ctx, ServerCandidate{DUID: server, Lease: leaseFromMessage(advertise, netip.MustParseAddr("2001:db8::ffff"))})
			Expect(dev.State()).To(Equal(StateRequesting))

			reply := &Message{
				Type:     MessageReply,
				ServerID: &server,
				IAs:      advertise.IAs,
			}
			fsm.Handle(ctx, FSMEvent{Kind: EventMessage, Msg: reply})

			Expect(dev.State()).To(Equal(StateBound))
			Expect(dev.Lease()).NotTo(BeNil())
			Expect(dev.Lease().IAs[0].Addresses).To(ContainElement(addr))
		})
	})

	Context("a preference-255 offer", func() {
		It("shortcuts Selecting immediately", func() {
			dev.setState(StateSelecting, nil)
			dev.SetConfig(&Config{})

			advertise := &Message{
				Type:       MessageAdvertise,
				ServerID:   &server,
				Preference: preferenceOf(255),
				IAs:        []MessageIA{{Type: IATypeNA, IAID: 7}},
			}
			fsm.Handle(ctx, FSMEvent{Kind: EventMessage, Msg: advertise})

			Expect(dev.State()).To(Equal(StateRequesting))
		})
	})

	Context("exhausting retries in Requesting", func() {
		It("drops the candidate and restarts Selecting instead of giving up", func() {
			dev.SetConfig(&Config{RequestUUID: "r2"})
			dev.setState(StateRequesting, nil)
			dev.SetBestOffer(BestOffer{Weight: 10, Lease: &Lease{ServerDUID: server}})
			fsm.retx = NewRetransmitController(MessageRequest, false, fsm.now())

			for i := 0; i < defaultRetransmitParams[MessageRequest].MRC+1; i++ {
				fsm.Handle(ctx, FSMEvent{Kind: EventTimerFired})
			}

			Expect(dev.State()).To(Equal(StateSelecting))
			Expect(dev.BestOffer()).To(Equal(NoOffer))
		})
	})

	Context("a link flap while acquiring", func() {
		It("resets to WaitReady and clears the best offer", func() {
			dev.setState(StateSelecting, nil)
			dev.SetBestOffer(BestOffer{Weight: 50, Lease: &Lease{}})

			fsm.Handle(ctx, FSMEvent{Kind: EventLinkDown})

			Expect(dev.State()).To(Equal(StateWaitReady))
			Expect(dev.BestOffer()).To(Equal(NoOffer))
		})
	})

	Context("a link flap while Bound", func() {
		It("suspends in place and recovers via Confirm, not a fresh Solicit", func() {
			dev.SetLinkState(true, true)
			dev.SetLease(&Lease{ServerDUID: server})
			dev.setState(StateBound, nil)

			fsm.Handle(ctx, FSMEvent{Kind: EventLinkDown})
			Expect(dev.State()).To(Equal(StateBound), "a Bound device must not drop state on link down")
			Expect(dev.Lease()).NotTo(BeNil())

			dev.SetLinkUp(true)
			fsm.Handle(ctx, FSMEvent{Kind: EventReady})

			Expect(dev.State()).To(Equal(StateConfirming))
			Expect(tr.sent).NotTo(BeEmpty())
		})
	})

	Context("WaitReady timing out", func() {
		It("declares the Device failed if no usable address ever arrives", func() {
			fsm.Handle(ctx, FSMEvent{Kind: EventAcquire, Request: &Request{UUID: "r3"}})
			Expect(dev.State()).To(Equal(StateWaitReady))

			var lastResult *LeaseResult
			go func() {
				for ev := range dev.Events() {
					if ev.Result != nil {
						lastResult = ev.Result
					}
				}
			}()

			fsm.Handle(ctx, FSMEvent{Kind: EventTimerFired})

			Eventually(func() State { return dev.State() }).Should(Equal(StateStopped))
			Eventually(func() *LeaseResult { return lastResult }).ShouldNot(BeNil())
		})
	})

	Context("Release with a known server address", func() {
		It("unicasts to the server that granted the lease", func() {
			serverAddr := netip.MustParseAddr("2001:db8::9")
			dev.SetLease(&Lease{ServerDUID: server, ServerAddr: serverAddr})
			dev.setState(StateBound, nil)

			fsm.Release(ctx)

			Expect(tr.sent).NotTo(BeEmpty())
			last := tr.sent[len(tr.sent)-1]
			Expect(last.Dest.Multicast).To(BeFalse())
			Expect(last.Dest.Unicast).To(Equal(serverAddr))
		})
	})
})
