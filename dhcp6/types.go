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

// Package dhcp6 implements the per-interface DHCPv6 client engine: the
// finite-state machine, retransmission controller, identity management and
// event intake described for a single network interface speaking RFC 3315.
//
// The engine does not own a socket or a wire codec. Callers supply a
// Transport, a MessageCodec and a NetInfo reader (see contracts.go); the
// codec and transport subpackages of this module provide reference
// implementations usable in production and in tests.
package dhcp6

import (
	"net/netip"
	"time"
)

// IAType names the kind of Identity Association an IA entry requests.
type IAType string

const (
	IATypeNA IAType = "IA_NA" // non-temporary address
	IATypeTA IAType = "IA_TA" // temporary address
	IATypePD IAType = "IA_PD" // prefix delegation
)

// IARequest is one Identity Association entry inside a Config, as named by
// an Acquire request: its type, IAID, and any hints the host supplied.
type IARequest struct {
	Type IAType
	IAID uint32

	// HintedAddresses/HintedPrefixes are addresses or prefixes the host
	// would like re-assigned (e.g. across a client restart). Empty unless
	// the host's Request named a prior lease.
	HintedAddresses []netip.Addr
	HintedPrefixes  []netip.Prefix

	// T1Hint/T2Hint, when non-zero, are sent as hints in the IA header;
	// the server is free to ignore them (RFC 3315 §22.4).
	T1Hint time.Duration
	T2Hint time.Duration
}

// VendorOpts carries an enterprise-numbered vendor-specific option with
// name/value sub-options, per RFC 3315 §22.17.
type VendorOpts struct {
	EnterpriseNumber uint32
	Options          map[string]string
}

// VendorClass carries an enterprise-numbered vendor class, per RFC 3315
// §22.16.
type VendorClass struct {
	EnterpriseNumber uint32
	Strings          []string
}

// UpdateMask selects which categories of host configuration an accepted
// lease should be applied to. The engine never applies these itself (that
// is the host's job); it only records the mask on the Config. LeaseResult
// does not carry it.
type UpdateMask struct {
	Resolver bool
	NIS      bool
	NTP      bool
	Routes   bool
}

// Request holds the raw acquisition parameters as handed to Acquire,
// before DUID defaulting (see Identity) and hostname sanitization. It is
// persisted on the Device so a restart or reload can replay the
// acquisition without the host resupplying it.
type Request struct {
	UUID         string
	UpdateMask   UpdateMask
	InfoOnly     bool
	RapidCommit  bool
	PreferredDUID []byte // hex-decoded "preferred" DUID, may be empty
	IAs          []IARequest
	Hostname     string
	UserClasses  [][]byte
	VendorClass  *VendorClass
	VendorOpts   *VendorOpts
	PreferredLifetime time.Duration
}

// Config is the sanitized, immutable snapshot of a Request at the start of
// one lease-attempt, with the hostname validated. ClientDUID is not filled
// in by the FSM, and IAs stay as requested (the default IA_NA is added
// when a message is built). A
// Device has at most one Config at a time; re-Acquire replaces it
// atomically (see Device.SetConfig).
type Config struct {
	RequestUUID       string
	UpdateMask        UpdateMask
	InfoOnly          bool
	RapidCommit       bool
	PreferredLifetime time.Duration
	ClientDUID        DUID
	IAs               []IARequest
	Hostname          string
	UserClasses       [][]byte
	VendorClass       *VendorClass
	VendorOpts        *VendorOpts
}

// LeaseSource distinguishes how a Lease was populated: fresh acquisition
// versus a lease file reloaded by the host at startup.
type LeaseSource string

const (
	LeaseSourceFresh    LeaseSource = "fresh"
	LeaseSourceReloaded LeaseSource = "reloaded"
)

// AssignedIA is one granted Identity Association: its IAID, assigned
// addresses/prefixes, and T1/T2/lifetime bookkeeping.
type AssignedIA struct {
	Type              IAType
	IAID              uint32
	Addresses         []netip.Addr
	Prefixes          []netip.Prefix
	T1                time.Duration
	T2                time.Duration
	PreferredLifetime time.Duration
	ValidLifetime     time.Duration
}

// Lease is an address-configuration record tagged with its source. The
// spec treats leases as opaque to the engine beyond these fields.
type Lease struct {
	UUID       string
	Source     LeaseSource
	ServerDUID DUID
	ServerAddr netip.Addr
	IAs        []AssignedIA
	ReceivedAt time.Time
}

// Valid reports whether the lease has at least one IA with a non-expired
// valid lifetime, relative to now.
func (l *Lease) Valid(now time.Time) bool {
	if l == nil {
		return false
	}
	for _, ia := range l.IAs {
		if ia.ValidLifetime > 0 && now.Before(l.ReceivedAt.Add(ia.ValidLifetime)) {
			return true
		}
	}
	return false
}

// MinT1 returns the smallest non-zero T1 across the lease's IAs, or zero
// if none is set (the FSM then falls back to 0.5*valid per RFC 3315 §22.4).
func (l *Lease) MinT1() time.Duration {
	var min time.Duration
	for _, ia := range l.IAs {
		if ia.T1 <= 0 {
			continue
		}
		if min == 0 || ia.T1 < min {
			min = ia.T1
		}
	}
	return min
}

// MinT2 returns the smallest non-zero T2 across the lease's IAs.
func (l *Lease) MinT2() time.Duration {
	var min time.Duration
	for _, ia := range l.IAs {
		if ia.T2 <= 0 {
			continue
		}
		if min == 0 || ia.T2 < min {
			min = ia.T2
		}
	}
	return min
}

// MaxValidLifetime returns the largest valid lifetime across the lease's IAs.
func (l *Lease) MaxValidLifetime() time.Duration {
	var max time.Duration
	for _, ia := range l.IAs {
		if ia.ValidLifetime > max {
			max = ia.ValidLifetime
		}
	}
	return max
}

// ServerCandidate is one Advertise seen during Selecting, scored by Policy.
// BestOffer tracks the highest-weighted ServerCandidate plus the lease it
// would yield if chosen; Weight -1 means "no offer yet".
type ServerCandidate struct {
	Address    netip.Addr
	DUID       DUID
	Preference uint8
	Weight     int
	ReceivedAt time.Time
	Lease      *Lease
}

// BestOffer tracks the Selecting state's current winner. Reset to
// {nil, -1} on state exit from Selecting or on lease drop (invariant I5).
type BestOffer struct {
	Lease  *Lease
	Weight int
}

// NoOffer is the zero value of BestOffer: weight -1 means no offer seen yet.
var NoOffer = BestOffer{Weight: -1}

// LeaseResult is delivered to the host each time a Device enters Bound
// (including after a Renew or Rebind) and once per terminal failure:
// success carries a Lease, failure carries an error that matches an
// ErrorKind under errors.Is. A completed Information-Request exchange
// delivers one with neither Lease nor Err.
type LeaseResult struct {
	RequestUUID string
	Lease       *Lease
	Err         error
}
