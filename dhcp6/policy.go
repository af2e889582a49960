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

import "net/netip"

// preferredServerWeight is added on top of the advertised preference for
// a server matching ServerPolicy's Preferred or PreferredAddr, so a configured preference
// always outranks an unconfigured one short of the preference-255
// shortcut itself.
const preferredServerWeight = 1 << 16

// ServerPolicy filters and scores Advertise messages seen during
// Selecting (spec §4.4 / RFC 3315 §17.1.3): servers on the ignore list
// are never considered, a configured preferred server is weighted above
// any other non-255 offer, and preference 255 always short-circuits
// Selecting regardless of other servers still outstanding.
type ServerPolicy struct {
	// Ignore lists server DUIDs that must never be selected, even if no
	// other offer arrives.
	Ignore []DUID

	// IgnoreAddrs lists server IPv6 addresses that must never be
	// selected, matched against the source address the Advertise/Reply
	// arrived from (RFC 3315 §17.1.3: "reject if server IPv6... is in
	// the ignore_servers list").
	IgnoreAddrs []netip.Addr

	// Preferred, when non-zero, is given a weight bonus over any other
	// server advertising less than preference 255.
	Preferred DUID

	// PreferredAddr, when valid, gives the same bonus as Preferred but
	// matched by the server's source IPv6 address instead of its DUID.
	PreferredAddr netip.Addr
}

func (p *ServerPolicy) isIgnored(cand ServerCandidate) bool {
	for _, ig := range p.Ignore {
		if ig.Equal(cand.DUID) {
			return true
		}
	}
	if cand.Address.IsValid() {
		for _, addr := range p.IgnoreAddrs {
			if addr == cand.Address {
				return true
			}
		}
	}
	return false
}

// Weight scores one ServerCandidate. Ignored servers score -1 (never
// beats NoOffer, whose weight is also -1, so they simply never win).
// Preference 255 always scores above preferredServerWeight so it beats
// even a preferred-but-ignored-preference server; ties go to whichever
// the caller already holds (Evaluate only swaps on strictly-greater
// weight, implementing first-arrival-wins).
func (p *ServerPolicy) Weight(cand ServerCandidate) int {
	if p.isIgnored(cand) {
		return -1
	}
	weight := int(cand.Preference)
	if cand.Preference == 255 {
		return weight + preferredServerWeight + 1
	}
	if p.matchesPreferred(cand) {
		weight += preferredServerWeight
	}
	return weight
}

// matchesPreferred reports whether cand matches the configured preferred
// server by DUID or by IPv6 address (RFC 3315 §17.1.3).
func (p *ServerPolicy) matchesPreferred(cand ServerCandidate) bool {
	if !p.Preferred.IsZero() && p.Preferred.Equal(cand.DUID) {
		return true
	}
	return p.PreferredAddr.IsValid() && cand.Address.IsValid() && p.PreferredAddr == cand.Address
}

// Evaluate scores cand against the current best offer and returns the
// (possibly unchanged) BestOffer plus whether Selecting should end
// immediately: the preference-255 shortcut of RFC 3315 §17.1.3.
//
// A strictly greater weight is required to replace current, so among
// equally-weighted offers the one that arrived first is kept (spec's
// earliest-arrival tie-break).
func (p *ServerPolicy) Evaluate(cand ServerCandidate, current BestOffer) (BestOffer, bool) {
	w := p.Weight(cand)
	if w <= current.Weight {
		return current, false
	}
	best := BestOffer{Lease: cand.Lease, Weight: w}
	return best, cand.Preference == 255
}
