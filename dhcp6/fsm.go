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
	"math/rand"
	"net/netip"
	"time"

	"github.com/go-logr/logr"
)

// EventKind names one input the FSM reacts to.
type EventKind int

const (
	EventAcquire EventKind = iota
	EventReady
	EventNotReady
	EventMessage
	EventTimerFired
	EventCancel
	EventLinkDown
)

// FSMEvent is one input delivered to FSM.Handle, dispatched by Engine's
// single-threaded pump (intake.go). Which fields are meaningful depends
// on Kind: Request for EventAcquire, Msg and From for EventMessage.
type FSMEvent struct {
	Kind    EventKind
	Request *Request
	Msg     *Message
	// From is the source address of the datagram that produced Msg, when
	// Kind is EventMessage. Used to populate ServerCandidate.Address and
	// Lease.ServerAddr for address-based Server Policy matching and
	// unicast Renew/Release/Decline.
	From netip.Addr
}

// FSM drives one Device through the 13-state machine of spec §4.5. It
// owns no goroutine: every call to Handle runs to completion on the
// caller's goroutine (the engine's single event-loop pump), so Device's
// fields never need a lock beyond what Device itself already provides.
type FSM struct {
	dev       *Device
	transport Transport
	codec     MessageCodec
	netinfo   NetInfo
	policy    *ServerPolicy
	clock     Clock
	log       logr.Logger

	retx    *RetransmitController
	xid     uint32
	metrics *Metrics
}

// NewFSM builds an FSM bound to dev and its external collaborators.
func NewFSM(dev *Device, transport Transport, codec MessageCodec, netinfo NetInfo, policy *ServerPolicy, clock Clock, log logr.Logger) *FSM {
	if clock == nil {
		clock = SystemClock{}
	}
	if policy == nil {
		policy = &ServerPolicy{}
	}
	return &FSM{dev: dev, transport: transport, codec: codec, netinfo: netinfo, policy: policy, clock: clock, log: log}
}

// WithMetrics attaches a Metrics sink; nil is valid and disables
// observation (Metrics' own methods no-op on a nil receiver).
func (f *FSM) WithMetrics(m *Metrics) *FSM {
	f.metrics = m
	return f
}

// now returns the FSM's notion of the current instant, derived from its
// Clock so retransmission timing and MRD/lease-expiry arithmetic are
// testable without wall-clock sleeps.
func (f *FSM) now() time.Time { return time.Unix(0, 0).Add(NowDuration(f.clock)) }

// setState transitions dev and reports it to the metrics sink, so every
// state change is observed the same way regardless of call site.
func (f *FSM) setState(s State, result *LeaseResult) {
	f.dev.setState(s, result)
	f.metrics.observeTransition(s)
}

func (f *FSM) nextXID() uint32 {
	f.xid = rand.Uint32() & 0x00ffffff
	return f.xid
}

// Handle processes one event against the Device's current state,
// performing whatever sends, timer arms, and state transitions the
// current state's transition table calls for.
func (f *FSM) Handle(ctx context.Context, ev FSMEvent) {
	state := f.dev.State()

	switch ev.Kind {
	case EventCancel:
		f.dev.Timer().Cancel()
		f.finish(nil, ErrCanceled)
		return
	case EventLinkDown:
		f.dev.SetLinkUp(false)
		f.dev.Timer().Cancel()
		if state == StateBound {
			// Spec §7/§8 scenario 4: a Bound Device suspends in place on
			// link-down (no lease drop, no re-Solicit); the matching
			// link-up below resumes it with a Confirm, not a fresh
			// acquisition.
			return
		}
		f.dev.ResetBestOffer()
		f.enterWaitReady(ctx)
		return
	}

	switch state {
	case StateInit:
		f.handleInit(ctx, ev)
	case StateWaitReady:
		f.handleWaitReady(ctx, ev)
	case StateSelecting:
		f.handleSelecting(ctx, ev)
	case StateRequesting:
		f.handleRequesting(ctx, ev)
	case StateBound:
		f.handleBound(ctx, ev)
	case StateRenewing:
		f.handleRenewing(ctx, ev)
	case StateRebinding:
		f.handleRebinding(ctx, ev)
	case StateConfirming:
		f.handleConfirming(ctx, ev)
	case StateInfoRequest:
		f.handleInfoRequest(ctx, ev)
	case StateDeclining:
		f.handleDeclining(ctx, ev)
	case StateReleasing:
		f.handleReleasing(ctx, ev)
	default:
		// ValidateOffer and Stopped take no further FSM-driven action
		// outside of what Handle already short-circuited above.
	}
}

// waitReadyTimeout is spec §6's WAIT_READY_MSEC: how long a Device may
// sit in WaitReady for a usable link-local address before the engine
// declares acquisition failed.
const waitReadyTimeout = 2000 * time.Millisecond

func (f *FSM) handleInit(ctx context.Context, ev FSMEvent) {
	if ev.Kind != EventAcquire {
		return
	}
	f.dev.SetRequest(ev.Request)
	f.dev.MarkStarted()

	cfg, err := f.buildConfig(ev.Request)
	if err != nil {
		f.finish(nil, err)
		return
	}
	f.dev.SetConfig(cfg)

	if f.dev.Ready() {
		f.enterSelecting(ctx)
		return
	}
	f.enterWaitReady(ctx)
}

// enterWaitReady transitions to WaitReady and arms WAIT_READY_MSEC: if
// the interface never reports a usable link-local address within that
// window, the Device declares itself failed (spec §4.5, §8 scenario 3).
func (f *FSM) enterWaitReady(ctx context.Context) {
	f.setState(StateWaitReady, nil)
	f.dev.Timer().Arm(waitReadyTimeout, func() {
		f.Handle(ctx, FSMEvent{Kind: EventTimerFired})
	})
}

func (f *FSM) handleWaitReady(ctx context.Context, ev FSMEvent) {
	switch ev.Kind {
	case EventReady:
		f.dev.Timer().Cancel()
		f.dev.SetLinkState(true, true)
		if f.dev.Config() != nil {
			f.enterSelecting(ctx)
		}
	case EventAcquire:
		f.dev.SetRequest(ev.Request)
		cfg, err := f.buildConfig(ev.Request)
		if err != nil {
			f.finish(nil, err)
			return
		}
		f.dev.SetConfig(cfg)
		if f.dev.Ready() {
			f.dev.Timer().Cancel()
			f.enterSelecting(ctx)
		}
	case EventTimerFired:
		f.finish(nil, ErrNoLinklocal)
	}
}

// buildConfig sanitizes a Request into a Config. It neither resolves a
// DUID nor derives an IAID: Config.ClientDUID stays empty, the Request's
// PreferredDUID is not consulted, and messages carry the identity the
// Engine recorded on the Device when it created it. An invalid hostname is dropped
// silently (spec §6: it must not fail the whole acquisition), logged at
// debug level.
func (f *FSM) buildConfig(req *Request) (*Config, error) {
	if req == nil {
		return nil, ErrNoInterface
	}
	hostname, err := ValidateHostname(req.Hostname)
	if err != nil {
		f.log.V(1).Info("dropping invalid hostname", "hostname", req.Hostname, "reason", err.Error())
		hostname = ""
	}
	return &Config{
		RequestUUID:       req.UUID,
		UpdateMask:        req.UpdateMask,
		InfoOnly:          req.InfoOnly,
		RapidCommit:       req.RapidCommit,
		PreferredLifetime: req.PreferredLifetime,
		IAs:               req.IAs,
		Hostname:          hostname,
		UserClasses:       req.UserClasses,
		VendorClass:       req.VendorClass,
		VendorOpts:        req.VendorOpts,
	}, nil
}

func (f *FSM) enterSelecting(ctx context.Context) {
	cfg := f.dev.Config()
	f.dev.ResetBestOffer()

	if cfg.InfoOnly {
		f.setState(StateInfoRequest, nil)
		f.sendInformationRequest(ctx)
		return
	}

	f.setState(StateSelecting, nil)
	f.retx = NewRetransmitController(MessageSolicit, true, f.now())
	f.sendSolicit(ctx)
}

func (f *FSM) sendSolicit(ctx context.Context) {
	cfg := f.dev.Config()
	duid, iaid := f.dev.Identity()
	msg := f.baseMessage(MessageSolicit, duid, nil)
	msg.RapidCommit = cfg.RapidCommit
	msg.IAs = f.buildIAs(cfg, iaid)
	applyConfigOptions(&msg, cfg)
	f.transmit(ctx, msg, AllDHCPRelayAgentsAndServers)
	f.armRetransmit(ctx, msg.Type)
}

func (f *FSM) buildIAs(cfg *Config, defaultIAID uint32) []MessageIA {
	if len(cfg.IAs) == 0 {
		return []MessageIA{{Type: IATypeNA, IAID: defaultIAID}}
	}
	ias := make([]MessageIA, 0, len(cfg.IAs))
	for _, req := range cfg.IAs {
		ia := MessageIA{Type: req.Type, IAID: req.IAID, T1: req.T1Hint, T2: req.T2Hint}
		for _, a := range req.HintedAddresses {
			ia.Addresses = append(ia.Addresses, IAAddrOption{Addr: a, PreferredLifetime: cfg.PreferredLifetime})
		}
		for _, p := range req.HintedPrefixes {
			ia.Prefixes = append(ia.Prefixes, IAPrefixOption{Prefix: p, PreferredLifetime: cfg.PreferredLifetime})
		}
		ias = append(ias, ia)
	}
	return ias
}

// applyConfigOptions copies the caller-supplied Hostname/User-Class/
// Vendor-Class/Vendor-Opts from cfg onto an outbound message (spec §6).
// cfg is nil only when no acquisition has ever started on this Device,
// which none of this FSM's send paths can reach.
func applyConfigOptions(msg *Message, cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Hostname != "" {
		msg.Hostname = cfg.Hostname
		msg.FQDN = true
	}
	msg.UserClasses = cfg.UserClasses
	msg.VendorClass = cfg.VendorClass
	msg.VendorOpts = cfg.VendorOpts
}

func (f *FSM) baseMessage(kind MessageType, clientID DUID, serverID *DUID) Message {
	c := clientID
	msg := Message{
		Type:              kind,
		XID:               f.nextXID(),
		ClientID:          &c,
		ServerID:          serverID,
		ElapsedTime:       clampElapsed(f.dev.Uptime(f.now())),
		ReconfigureAccept: true,
	}
	return msg
}

func clampElapsed(d time.Duration) time.Duration {
	const maxHundredths = 65535
	h := d / (10 * time.Millisecond)
	if h > maxHundredths {
		h = maxHundredths
	}
	return h * 10 * time.Millisecond
}

func (f *FSM) transmit(ctx context.Context, msg Message, dest Destination) {
	buf, err := f.codec.Encode(msg)
	if err != nil {
		f.log.Error(err, "encode failed", "type", msg.Type.String())
		return
	}
	if _, err := f.transport.Send(ctx, buf, dest); err != nil {
		f.log.Error(err, "send failed", "type", msg.Type.String())
		return
	}
	f.metrics.observeSent(msg.Type)
}

// armRetransmit arms the next retransmission timeout, or ends the
// exchange once the retransmission controller is exhausted. MRC exceeded
// while Requesting does not fail the Device outright: spec §4.5/§8
// scenario 5 requires dropping the current offer and restarting
// Selecting, since another server may still answer.
func (f *FSM) armRetransmit(ctx context.Context, kind MessageType) {
	d, ok := f.retx.Next(f.now())
	if !ok {
		if f.retx.MRCExceeded(f.now()) && f.dev.State() == StateRequesting {
			f.dev.SetBestOffer(NoOffer)
			f.enterSelecting(ctx)
			return
		}
		if f.retx.MRCExceeded(f.now()) {
			f.finish(nil, ErrMRCExceeded)
		} else {
			f.finish(nil, ErrMRDExpired)
		}
		return
	}
	f.dev.Timer().Arm(d, func() {
		f.Handle(ctx, FSMEvent{Kind: EventTimerFired})
	})
}

func (f *FSM) handleSelecting(ctx context.Context, ev FSMEvent) {
	switch ev.Kind {
	case EventTimerFired:
		// RFC 3315 §17.1.2: a client need not wait for all servers to
		// respond before Selecting times out; once the first
		// retransmission timeout expires, any offer collected so far
		// is good enough to proceed on.
		if best := f.dev.BestOffer(); best.Lease != nil {
			f.dev.Timer().Cancel()
			f.enterRequesting(ctx, ServerCandidate{DUID: best.Lease.ServerDUID, Lease: best.Lease})
			return
		}
		f.sendSolicit(ctx)
	case EventMessage:
		f.onAdvertise(ctx, ev.Msg, ev.From)
	}
}

func (f *FSM) onAdvertise(ctx context.Context, msg *Message, from netip.Addr) {
	if msg == nil || msg.Type != MessageAdvertise || msg.ServerID == nil {
		return
	}
	lease := leaseFromMessage(msg, from)
	pref := uint8(0)
	if msg.Preference != nil {
		pref = *msg.Preference
	}
	cand := ServerCandidate{DUID: *msg.ServerID, Address: from, Preference: pref, ReceivedAt: f.now(), Lease: lease}

	best, shortcut := f.policy.Evaluate(cand, f.dev.BestOffer())
	f.dev.SetBestOffer(best)

	cfg := f.dev.Config()
	if shortcut || (cfg != nil && cfg.RapidCommit && msg.RapidCommit) {
		f.dev.Timer().Cancel()
		f.enterRequesting(ctx, cand)
	}
}

func leaseFromMessage(msg *Message, from netip.Addr) *Lease {
	l := &Lease{Source: LeaseSourceFresh, ReceivedAt: time.Now(), ServerAddr: from}
	if msg.ServerID != nil {
		l.ServerDUID = *msg.ServerID
	}
	for _, ia := range msg.IAs {
		assigned := AssignedIA{Type: ia.Type, IAID: ia.IAID, T1: ia.T1, T2: ia.T2}
		for _, a := range ia.Addresses {
			assigned.Addresses = append(assigned.Addresses, a.Addr)
			if a.ValidLifetime > assigned.ValidLifetime {
				assigned.ValidLifetime = a.ValidLifetime
			}
			if a.PreferredLifetime > assigned.PreferredLifetime {
				assigned.PreferredLifetime = a.PreferredLifetime
			}
		}
		for _, p := range ia.Prefixes {
			assigned.Prefixes = append(assigned.Prefixes, p.Prefix)
			if p.ValidLifetime > assigned.ValidLifetime {
				assigned.ValidLifetime = p.ValidLifetime
			}
			if p.PreferredLifetime > assigned.PreferredLifetime {
				assigned.PreferredLifetime = p.PreferredLifetime
			}
		}
		l.IAs = append(l.IAs, assigned)
	}
	return l
}

func (f *FSM) enterRequesting(ctx context.Context, cand ServerCandidate) {
	f.setState(StateRequesting, nil)
	f.retx = NewRetransmitController(MessageRequest, false, f.now())
	f.sendRequest(ctx, cand)
}

func (f *FSM) sendRequest(ctx context.Context, cand ServerCandidate) {
	cfg := f.dev.Config()
	duid, iaid := f.dev.Identity()
	serverID := cand.DUID
	msg := f.baseMessage(MessageRequest, duid, &serverID)
	msg.IAs = f.buildIAs(cfg, iaid)
	applyConfigOptions(&msg, cfg)
	f.transmit(ctx, msg, AllDHCPRelayAgentsAndServers)
	f.armRetransmit(ctx, msg.Type)
}

func (f *FSM) handleRequesting(ctx context.Context, ev FSMEvent) {
	switch ev.Kind {
	case EventTimerFired:
		best := f.dev.BestOffer()
		if best.Lease != nil {
			f.sendRequest(ctx, ServerCandidate{DUID: best.Lease.ServerDUID, Address: best.Lease.ServerAddr})
			return
		}
		// No candidate left to retry: drop back to Selecting rather
		// than failing outright (spec §4.5/§8 scenario 5).
		f.enterSelecting(ctx)
	case EventMessage:
		f.onRequestReply(ctx, ev.Msg, ev.From)
	}
}

func (f *FSM) onRequestReply(ctx context.Context, msg *Message, from netip.Addr) {
	if msg == nil || msg.Type != MessageReply {
		return
	}
	if msg.Status != nil && msg.Status.Code != 0 {
		f.dev.Timer().Cancel()
		f.finish(nil, &StatusError{Code: msg.Status.Code, Message: msg.Status.Message})
		return
	}
	lease := leaseFromMessage(msg, from)
	f.dev.Timer().Cancel()
	f.enterBound(ctx, lease)
}

func (f *FSM) enterBound(ctx context.Context, lease *Lease) {
	f.dev.SetLease(lease)
	f.dev.ResetBestOffer()
	result := &LeaseResult{Lease: lease}
	if cfg := f.dev.Config(); cfg != nil {
		result.RequestUUID = cfg.RequestUUID
	}
	f.metrics.observeLeaseResult(result)
	f.setState(StateBound, result)

	t1 := lease.MinT1()
	if t1 <= 0 {
		t1 = lease.MaxValidLifetime() / 2
	}
	if t1 > 0 {
		f.dev.Timer().Arm(t1, func() {
			f.Handle(ctx, FSMEvent{Kind: EventTimerFired})
		})
	}
}

func (f *FSM) handleBound(ctx context.Context, ev FSMEvent) {
	switch ev.Kind {
	case EventTimerFired:
		f.enterRenewing(ctx)
	case EventReady:
		// Link recovered after a Bound Device suspended on link-down
		// (spec §7/§8 scenario 4): confirm the lease is still valid on
		// this link rather than re-Soliciting from scratch.
		f.enterConfirming(ctx)
	case EventAcquire:
		f.dev.SetRequest(ev.Request)
		cfg, err := f.buildConfig(ev.Request)
		if err != nil {
			f.finish(nil, err)
			return
		}
		f.dev.SetConfig(cfg)
		f.enterSelecting(ctx)
	}
}

// enterConfirming starts the Confirm exchange of RFC 3315 §18.1.2,
// moving out of Bound without dropping the current lease.
func (f *FSM) enterConfirming(ctx context.Context) {
	f.setState(StateConfirming, nil)
	f.retx = NewRetransmitController(MessageConfirm, false, f.now())
	f.sendConfirm(ctx)
	if d, ok := f.retx.Next(f.now()); ok {
		f.dev.Timer().Arm(d, func() { f.Handle(ctx, FSMEvent{Kind: EventTimerFired}) })
	}
}

func (f *FSM) enterRenewing(ctx context.Context) {
	f.setState(StateRenewing, nil)
	f.retx = NewRetransmitController(MessageRenew, false, f.now())
	f.sendRenew(ctx)
}

// serverDestination returns the unicast Destination for a known server
// (RFC 3315 §18.1.3/§18.1.6/§18.1.7: Renew/Release/Decline go straight
// to the server that granted the lease); falls back to multicast if no
// source address was ever recorded for it.
func serverDestination(lease *Lease) Destination {
	if lease == nil || !lease.ServerAddr.IsValid() {
		return AllDHCPRelayAgentsAndServers
	}
	return Destination{Unicast: lease.ServerAddr}
}

func (f *FSM) sendRenew(ctx context.Context) {
	lease := f.dev.Lease()
	if lease == nil {
		f.enterRebinding(ctx)
		return
	}
	cfg := f.dev.Config()
	duid, _ := f.dev.Identity()
	serverID := lease.ServerDUID
	msg := f.baseMessage(MessageRenew, duid, &serverID)
	msg.IAs = iasFromLease(lease)
	applyConfigOptions(&msg, cfg)
	f.transmit(ctx, msg, serverDestination(lease))

	t2 := lease.MinT2()
	if d, ok := f.retx.Next(f.now()); ok {
		if t2 > 0 && d > t2 {
			d = t2
		}
		f.dev.Timer().Arm(d, func() { f.Handle(ctx, FSMEvent{Kind: EventTimerFired}) })
	} else {
		f.enterRebinding(ctx)
	}
}

func iasFromLease(lease *Lease) []MessageIA {
	ias := make([]MessageIA, 0, len(lease.IAs))
	for _, ia := range lease.IAs {
		m := MessageIA{Type: ia.Type, IAID: ia.IAID, T1: ia.T1, T2: ia.T2}
		for _, a := range ia.Addresses {
			m.Addresses = append(m.Addresses, IAAddrOption{Addr: a, PreferredLifetime: ia.PreferredLifetime, ValidLifetime: ia.ValidLifetime})
		}
		for _, p := range ia.Prefixes {
			m.Prefixes = append(m.Prefixes, IAPrefixOption{Prefix: p, PreferredLifetime: ia.PreferredLifetime, ValidLifetime: ia.ValidLifetime})
		}
		ias = append(ias, m)
	}
	return ias
}

func (f *FSM) handleRenewing(ctx context.Context, ev FSMEvent) {
	switch ev.Kind {
	case EventTimerFired:
		lease := f.dev.Lease()
		if lease != nil && f.now().Sub(lease.ReceivedAt) >= lease.MinT2() && lease.MinT2() > 0 {
			f.enterRebinding(ctx)
			return
		}
		f.sendRenew(ctx)
	case EventMessage:
		f.onRenewReply(ctx, ev.Msg, ev.From)
	}
}

func (f *FSM) onRenewReply(ctx context.Context, msg *Message, from netip.Addr) {
	if msg == nil || msg.Type != MessageReply {
		return
	}
	if msg.Status != nil && msg.Status.Code != 0 {
		f.enterRebinding(ctx)
		return
	}
	lease := leaseFromMessage(msg, from)
	f.dev.Timer().Cancel()
	f.enterBound(ctx, lease)
}

func (f *FSM) enterRebinding(ctx context.Context) {
	f.setState(StateRebinding, nil)
	f.retx = NewRetransmitController(MessageRebind, false, f.now())
	f.sendRebind(ctx)
}

func (f *FSM) sendRebind(ctx context.Context) {
	lease := f.dev.Lease()
	if lease == nil {
		f.finish(nil, ErrMRDExpired)
		return
	}
	cfg := f.dev.Config()
	duid, _ := f.dev.Identity()
	msg := f.baseMessage(MessageRebind, duid, nil)
	msg.IAs = iasFromLease(lease)
	applyConfigOptions(&msg, cfg)
	f.transmit(ctx, msg, AllDHCPRelayAgentsAndServers)

	valid := lease.MaxValidLifetime()
	if d, ok := f.retx.Next(f.now()); ok {
		if valid > 0 && d > valid {
			d = valid
		}
		f.dev.Timer().Arm(d, func() { f.Handle(ctx, FSMEvent{Kind: EventTimerFired}) })
	} else {
		f.dev.SetLease(nil)
		f.finish(nil, ErrMRDExpired)
	}
}

func (f *FSM) handleRebinding(ctx context.Context, ev FSMEvent) {
	switch ev.Kind {
	case EventTimerFired:
		lease := f.dev.Lease()
		if lease != nil && f.now().Sub(lease.ReceivedAt) >= lease.MaxValidLifetime() && lease.MaxValidLifetime() > 0 {
			f.dev.SetLease(nil)
			f.setState(StateInit, nil)
			f.enterSelecting(ctx)
			return
		}
		f.sendRebind(ctx)
	case EventMessage:
		if ev.Msg == nil || ev.Msg.Type != MessageReply {
			return
		}
		if ev.Msg.Status != nil && ev.Msg.Status.Code != 0 {
			return
		}
		lease := leaseFromMessage(ev.Msg, ev.From)
		f.dev.Timer().Cancel()
		f.enterBound(ctx, lease)
	}
}

func (f *FSM) handleConfirming(ctx context.Context, ev FSMEvent) {
	switch ev.Kind {
	case EventTimerFired:
		if d, ok := f.retx.Next(f.now()); ok {
			f.sendConfirm(ctx)
			f.dev.Timer().Arm(d, func() { f.Handle(ctx, FSMEvent{Kind: EventTimerFired}) })
			return
		}
		// No authoritative answer within MRD: RFC 3315 §18.1.2 says
		// continue using the lease as if Confirm succeeded.
		f.setState(StateBound, nil)
	case EventMessage:
		if ev.Msg == nil || ev.Msg.Type != MessageReply {
			return
		}
		f.dev.Timer().Cancel()
		if ev.Msg.Status != nil && ev.Msg.Status.Code != 0 {
			f.dev.SetLease(nil)
			f.setState(StateInit, nil)
			f.enterSelecting(ctx)
			return
		}
		f.setState(StateBound, nil)
	}
}

func (f *FSM) sendConfirm(ctx context.Context) {
	lease := f.dev.Lease()
	duid, _ := f.dev.Identity()
	msg := f.baseMessage(MessageConfirm, duid, nil)
	if lease != nil {
		msg.IAs = iasFromLease(lease)
	}
	applyConfigOptions(&msg, f.dev.Config())
	f.transmit(ctx, msg, AllDHCPRelayAgentsAndServers)
}

func (f *FSM) handleInfoRequest(ctx context.Context, ev FSMEvent) {
	switch ev.Kind {
	case EventTimerFired:
		f.sendInformationRequest(ctx)
	case EventMessage:
		if ev.Msg == nil || ev.Msg.Type != MessageReply {
			return
		}
		f.dev.Timer().Cancel()
		f.finish(nil, nil)
	}
}

func (f *FSM) sendInformationRequest(ctx context.Context) {
	duid, _ := f.dev.Identity()
	msg := f.baseMessage(MessageInformationRequest, duid, nil)
	applyConfigOptions(&msg, f.dev.Config())
	f.transmit(ctx, msg, AllDHCPRelayAgentsAndServers)
	if f.retx == nil {
		f.retx = NewRetransmitController(MessageInformationRequest, false, f.now())
	}
	f.armRetransmit(ctx, msg.Type)
}

func (f *FSM) handleDeclining(ctx context.Context, ev FSMEvent) {
	switch ev.Kind {
	case EventTimerFired:
		if d, ok := f.retx.Next(f.now()); ok {
			f.sendDecline(ctx)
			f.dev.Timer().Arm(d, func() { f.Handle(ctx, FSMEvent{Kind: EventTimerFired}) })
			return
		}
		f.dev.SetLease(nil)
		f.setState(StateInit, nil)
	case EventMessage:
		if ev.Msg == nil || ev.Msg.Type != MessageReply {
			return
		}
		f.dev.Timer().Cancel()
		f.dev.SetLease(nil)
		f.setState(StateInit, nil)
	}
}

func (f *FSM) sendDecline(ctx context.Context) {
	lease := f.dev.Lease()
	duid, _ := f.dev.Identity()
	serverID := lease.ServerDUID
	msg := f.baseMessage(MessageDecline, duid, &serverID)
	msg.IAs = iasFromLease(lease)
	f.transmit(ctx, msg, serverDestination(lease))
}

// DeclineAddress starts the Declining exchange for a duplicate address
// reported by NetInfo (spec §4.6), per RFC 3315 §18.1.7.
func (f *FSM) DeclineAddress(ctx context.Context, addr netip.Addr) {
	lease := f.dev.Lease()
	if lease == nil {
		return
	}
	f.setState(StateDeclining, nil)
	f.retx = NewRetransmitController(MessageDecline, false, f.now())
	f.sendDecline(ctx)
	if d, ok := f.retx.Next(f.now()); ok {
		f.dev.Timer().Arm(d, func() { f.Handle(ctx, FSMEvent{Kind: EventTimerFired}) })
	}
}

func (f *FSM) handleReleasing(ctx context.Context, ev FSMEvent) {
	switch ev.Kind {
	case EventTimerFired:
		if d, ok := f.retx.Next(f.now()); ok {
			f.sendRelease(ctx)
			f.dev.Timer().Arm(d, func() { f.Handle(ctx, FSMEvent{Kind: EventTimerFired}) })
			return
		}
		f.finishRelease()
	case EventMessage:
		if ev.Msg != nil && ev.Msg.Type == MessageReply {
			f.dev.Timer().Cancel()
			f.finishRelease()
		}
	}
}

func (f *FSM) sendRelease(ctx context.Context) {
	lease := f.dev.Lease()
	if lease == nil {
		return
	}
	duid, _ := f.dev.Identity()
	serverID := lease.ServerDUID
	msg := f.baseMessage(MessageRelease, duid, &serverID)
	msg.IAs = iasFromLease(lease)
	f.transmit(ctx, msg, serverDestination(lease))
}

// Release starts the Releasing exchange (host-initiated, spec §4.3).
// RFC 3315 §18.1.8: the client does not wait indefinitely for a Reply;
// the retransmission params (MRC=5, no MRT) bound how long this runs.
func (f *FSM) Release(ctx context.Context) {
	if f.dev.Lease() == nil {
		f.finishRelease()
		return
	}
	f.setState(StateReleasing, nil)
	f.retx = NewRetransmitController(MessageRelease, false, f.now())
	f.sendRelease(ctx)
	if d, ok := f.retx.Next(f.now()); ok {
		f.dev.Timer().Arm(d, func() { f.Handle(ctx, FSMEvent{Kind: EventTimerFired}) })
	} else {
		f.finishRelease()
	}
}

func (f *FSM) finishRelease() {
	f.dev.SetLease(nil)
	f.setState(StateStopped, nil)
}

// finish transitions to Stopped and surfaces a terminal LeaseResult
// carrying lease and err to the host.
func (f *FSM) finish(lease *Lease, err error) {
	cfg := f.dev.Config()
	result := &LeaseResult{Err: err, Lease: lease}
	if cfg != nil {
		result.RequestUUID = cfg.RequestUUID
	}
	f.metrics.observeLeaseResult(result)
	f.setState(StateStopped, result)
}
