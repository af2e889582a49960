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

// Package static implements dhcp6.NetInfo from a fixed, in-memory
// interface table, for tests and for hosts that already maintain their
// own view of interface state and just need to hand it to the engine.
package static

import (
	"sync"

	"github.com/dhcp6client/engine/dhcp6"
)

// NetInfo is a dhcp6.NetInfo backed by an explicit, mutable interface
// table, in the MockISP style of a test double
// whose state a test can push changes into.
type NetInfo struct {
	mu     sync.RWMutex
	byIdx  map[int]dhcp6.Iface
}

// New creates an empty NetInfo; use Set to populate it.
func New() *NetInfo {
	return &NetInfo{byIdx: make(map[int]dhcp6.Iface)}
}

var _ dhcp6.NetInfo = (*NetInfo)(nil)

// Set installs or replaces the record for iface.Index.
func (n *NetInfo) Set(iface dhcp6.Iface) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.byIdx[iface.Index] = iface
}

// Remove deletes the record for ifindex, simulating an interface
// disappearing.
func (n *NetInfo) Remove(ifindex int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.byIdx, ifindex)
}

func (n *NetInfo) ByIndex(ifindex int) (dhcp6.Iface, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	iface, ok := n.byIdx[ifindex]
	if !ok {
		return dhcp6.Iface{}, dhcp6.ErrNoInterface
	}
	return iface, nil
}

func (n *NetInfo) All() ([]dhcp6.Iface, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]dhcp6.Iface, 0, len(n.byIdx))
	for _, iface := range n.byIdx {
		out = append(out, iface)
	}
	return out, nil
}
