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
	"time"
)

// MessageType names a DHCPv6 message kind (RFC 3315 §5.3).
type MessageType uint8

const (
	MessageSolicit           MessageType = 1
	MessageAdvertise         MessageType = 2
	MessageRequest           MessageType = 3
	MessageConfirm           MessageType = 4
	MessageRenew             MessageType = 5
	MessageRebind            MessageType = 6
	MessageReply             MessageType = 7
	MessageRelease           MessageType = 8
	MessageDecline           MessageType = 9
	MessageReconfigure       MessageType = 10
	MessageInformationRequest MessageType = 11
)

func (t MessageType) String() string {
	switch t {
	case MessageSolicit:
		return "SOLICIT"
	case MessageAdvertise:
		return "ADVERTISE"
	case MessageRequest:
		return "REQUEST"
	case MessageConfirm:
		return "CONFIRM"
	case MessageRenew:
		return "RENEW"
	case MessageRebind:
		return "REBIND"
	case MessageReply:
		return "REPLY"
	case MessageRelease:
		return "RELEASE"
	case MessageDecline:
		return "DECLINE"
	case MessageReconfigure:
		return "RECONFIGURE"
	case MessageInformationRequest:
		return "INFORMATION-REQUEST"
	default:
		return "UNKNOWN"
	}
}

// IAAddrOption is one IAADDR sub-option inside an IA_NA/IA_TA.
type IAAddrOption struct {
	Addr              netip.Addr
	PreferredLifetime time.Duration
	ValidLifetime     time.Duration
}

// IAPrefixOption is one IAPREFIX sub-option inside an IA_PD.
type IAPrefixOption struct {
	Prefix            netip.Prefix
	PreferredLifetime time.Duration
	ValidLifetime     time.Duration
}

// StatusOption is a Status-Code option (RFC 3315 §22.13), either top-level
// or nested inside an IA.
type StatusOption struct {
	Code    uint16
	Message string
}

// MessageIA is one IA_NA/IA_TA/IA_PD option as built for an outbound
// message or as decoded from an inbound one.
type MessageIA struct {
	Type      IAType
	IAID      uint32
	T1        time.Duration
	T2        time.Duration
	Addresses []IAAddrOption
	Prefixes  []IAPrefixOption
	Status    *StatusOption
}

// Message is the engine's codec-agnostic view of a DHCPv6 message: the set
// of options named in spec §6 that the engine must be able to produce or
// consume.
type Message struct {
	Type MessageType
	XID  uint32 // 24 bits significant, top byte zero

	ClientID *DUID
	ServerID *DUID

	IAs []MessageIA

	OptionRequest []uint16
	ElapsedTime   time.Duration // clamped to 65535 hundredths of a second
	RapidCommit   bool

	UserClasses []([]byte)
	VendorClass *VendorClass
	VendorOpts  *VendorOpts

	ReconfigureAccept bool
	Status            *StatusOption
	Preference        *uint8

	Hostname string
	FQDN     bool
}

// MessageCodec serializes and parses DHCPv6 messages. It is an external
// collaborator: the engine never encodes or decodes bytes itself, it only
// builds and reads Message values. See codec/dhcpv6codec for a reference
// implementation built on github.com/insomniacslk/dhcp.
type MessageCodec interface {
	Encode(msg Message) ([]byte, error)
	Decode(buf []byte) (Message, error)
}

// Destination selects where a Transport.Send call delivers a message:
// either the All_DHCP_Relay_Agents_and_Servers multicast group, or a
// specific unicast server address carried by the FSM (Renew/Release/
// Decline to a known server).
type Destination struct {
	Multicast bool
	Unicast   netip.Addr
}

// AllDHCPRelayAgentsAndServers is the well-known multicast destination
// (ff02::1:2, UDP port 547) used for Solicit, Confirm, Rebind and
// Information-Request.
var AllDHCPRelayAgentsAndServers = Destination{Multicast: true}

// Datagram is one inbound payload a Transport surfaces on Recv, tagged
// with the source address it arrived from so Server Policy can match
// ignore/preferred rules by IPv6 address as well as by DUID (spec §4.7).
type Datagram struct {
	Data []byte
	From netip.Addr
}

// Transport sends to and receives from the DHCPv6 multicast group on one
// bound interface. It is an external collaborator: the engine never opens
// a socket itself. See transport/udp6 for the production implementation
// and transport/fake for a test double.
type Transport interface {
	Send(ctx context.Context, buf []byte, dest Destination) (int, error)
	// Recv returns a channel of inbound datagrams; it is closed when the
	// transport is closed. Implementations must not block Close().
	Recv() <-chan Datagram
	Close() error
}

// AddressFlags describes the DAD/lifecycle state of one interface address,
// as reported by NetInfo.
type AddressFlags struct {
	Tentative  bool
	Duplicate  bool
	Permanent  bool
	Deprecated bool
}

// IfaceAddr is one address NetInfo reports for an interface.
type IfaceAddr struct {
	Addr       netip.Addr
	PrefixLen  int
	Flags      AddressFlags
}

// ARPType mirrors the kernel ARPHRD_* constants NetInfo reports, used by
// Identity's DUID-generation fallback (spec §4.2).
type ARPType int

const (
	ARPTypeUnknown    ARPType = 0
	ARPTypeEther      ARPType = 1
	ARPTypeIEEE802    ARPType = 6
	ARPTypeInfiniband ARPType = 32
)

// Iface is the interface metadata NetInfo reports for one ifindex.
type Iface struct {
	Index      int
	Name       string
	HWAddr     []byte
	ARPType    ARPType
	VLAN       int // 0 if not a VLAN device
	LinkUp     bool
	NetworkUp  bool
	Addrs      []IfaceAddr
}

// NetInfo is the read-only, host-supplied source of interface/address
// state. The engine never caches it beyond a single lookup.
type NetInfo interface {
	ByIndex(ifindex int) (Iface, error)
	// All supports the Identity DUID-generation fallback, which
	// iterates *other* interfaces looking for a usable hardware address.
	All() ([]Iface, error)
}
