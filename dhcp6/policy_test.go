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
	"net/netip"
	"testing"
)

func TestServerPolicyIgnoreList(t *testing.T) {
	bad := DUIDFromBytes([]byte{0, 1, 1})
	p := &ServerPolicy{Ignore: []DUID{bad}}

	cand := ServerCandidate{DUID: bad, Preference: 200}
	best, shortcut := p.Evaluate(cand, NoOffer)
	if best.Weight != NoOffer.Weight {
		t.Errorf("ignored candidate changed BestOffer: %+v", best)
	}
	if shortcut {
		t.Errorf("ignored candidate triggered shortcut")
	}
}

func TestServerPolicyPreferredServerOutranksHigherRawPreference(t *testing.T) {
	pref := DUIDFromBytes([]byte{0, 1, 2})
	other := DUIDFromBytes([]byte{0, 1, 3})
	p := &ServerPolicy{Preferred: pref}

	current, _ := p.Evaluate(ServerCandidate{DUID: other, Preference: 200}, NoOffer)
	current, shortcut := p.Evaluate(ServerCandidate{DUID: pref, Preference: 10}, current)

	if current.Weight <= 200 {
		t.Errorf("preferred server weight %d did not outrank raw preference 200", current.Weight)
	}
	if shortcut {
		t.Errorf("non-255 preferred server should not trigger the shortcut")
	}
}

func TestServerPolicyPreference255Shortcuts(t *testing.T) {
	p := &ServerPolicy{}
	cand := ServerCandidate{DUID: DUIDFromBytes([]byte{0, 1, 4}), Preference: 255}

	best, shortcut := p.Evaluate(cand, NoOffer)
	if !shortcut {
		t.Errorf("preference-255 candidate did not trigger shortcut")
	}
	if best.Weight <= 254 {
		t.Errorf("preference-255 weight %d too low", best.Weight)
	}
}

func TestServerPolicyIgnoreListByAddress(t *testing.T) {
	badAddr := netip.MustParseAddr("2001:db8::bad")
	p := &ServerPolicy{IgnoreAddrs: []netip.Addr{badAddr}}

	cand := ServerCandidate{DUID: DUIDFromBytes([]byte{0, 1, 7}), Address: badAddr, Preference: 200}
	best, _ := p.Evaluate(cand, NoOffer)

	if best.Weight != NoOffer.Weight {
		t.Errorf("candidate ignored by address still changed BestOffer: %+v", best)
	}
}

func TestServerPolicyPreferredServerByAddressOutranksHigherRawPreference(t *testing.T) {
	prefAddr := netip.MustParseAddr("2001:db8::1")
	p := &ServerPolicy{PreferredAddr: prefAddr}

	current, _ := p.Evaluate(ServerCandidate{DUID: DUIDFromBytes([]byte{0, 1, 8}), Preference: 200}, NoOffer)
	current, shortcut := p.Evaluate(ServerCandidate{DUID: DUIDFromBytes([]byte{0, 1, 9}), Address: prefAddr, Preference: 10}, current)

	if current.Weight <= 200 {
		t.Errorf("address-preferred server weight %d did not outrank raw preference 200", current.Weight)
	}
	if shortcut {
		t.Errorf("non-255 address-preferred server should not trigger the shortcut")
	}
}

func TestServerPolicyTieBreakKeepsEarliestArrival(t *testing.T) {
	p := &ServerPolicy{}
	first := ServerCandidate{DUID: DUIDFromBytes([]byte{0, 1, 5}), Preference: 100, Lease: &Lease{UUID: "first"}}
	second := ServerCandidate{DUID: DUIDFromBytes([]byte{0, 1, 6}), Preference: 100, Lease: &Lease{UUID: "second"}}

	best, _ := p.Evaluate(first, NoOffer)
	best, _ = p.Evaluate(second, best)

	if best.Lease == nil || best.Lease.UUID != "first" {
		t.Errorf("tie-break did not keep earliest arrival: got %+v", best.Lease)
	}
}
