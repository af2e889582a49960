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

// Package udp6 implements dhcp6.Transport over a real UDP/IPv6 socket
// bound to one interface, multicasting to the All_DHCP_Relay_Agents_
// and_Servers group (ff02::1:2) on port 547 per RFC 3315 §5.2.
package udp6

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv6"

	"github.com/dhcp6client/engine/dhcp6"
)

// ClientPort and ServerPort are the well-known DHCPv6 UDP ports.
const (
	ClientPort = 546
	ServerPort = 547
)

var allRelayAgentsAndServers = net.ParseIP("ff02::1:2")

// Transport binds a UDP/IPv6 socket to one interface and joins the
// DHCPv6 multicast group on it.
type Transport struct {
	conn   *net.UDPConn
	pc     *ipv6.PacketConn
	iface  *net.Interface
	recv   chan dhcp6.Datagram
	cancel context.CancelFunc
}

// New opens a Transport on the named interface. recvBuf sizes the
// channel Recv returns; a closed socket read loop closes it.
func New(ifname string, recvBuf int) (*Transport, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("udp6: interface %s: %w", ifname, err)
	}

	conn, err := net.ListenUDP("udp6", &net.UDPAddr{Port: ClientPort, Zone: ifname})
	if err != nil {
		return nil, fmt.Errorf("udp6: listen on %s: %w", ifname, err)
	}

	pc := ipv6.NewPacketConn(conn)
	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: allRelayAgentsAndServers}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("udp6: join multicast group on %s: %w", ifname, err)
	}
	if err := pc.SetMulticastInterface(ifi); err != nil {
		conn.Close()
		return nil, fmt.Errorf("udp6: set multicast interface %s: %w", ifname, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{conn: conn, pc: pc, iface: ifi, recv: make(chan dhcp6.Datagram, recvBuf), cancel: cancel}
	go t.readLoop(ctx)
	return t, nil
}

var _ dhcp6.Transport = (*Transport)(nil)

func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.recv)
	buf := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, _, src, err := t.pc.ReadFrom(buf)
		if err != nil {
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case t.recv <- dhcp6.Datagram{Data: cp, From: addrFromNetAddr(src)}:
		case <-ctx.Done():
			return
		}
	}
}

// addrFromNetAddr extracts the IPv6 address from a net.Addr returned by
// ipv6.PacketConn.ReadFrom, or the zero netip.Addr if it isn't a usable
// UDP address.
func addrFromNetAddr(a net.Addr) netip.Addr {
	udpAddr, ok := a.(*net.UDPAddr)
	if !ok || udpAddr == nil {
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(udpAddr.IP)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func (t *Transport) Send(ctx context.Context, buf []byte, dest dhcp6.Destination) (int, error) {
	addr := &net.UDPAddr{IP: allRelayAgentsAndServers, Port: ServerPort, Zone: t.iface.Name}
	if !dest.Multicast && dest.Unicast.IsValid() {
		addr = &net.UDPAddr{IP: dest.Unicast.AsSlice(), Port: ServerPort, Zone: t.iface.Name}
	}
	return t.conn.WriteTo(buf, addr)
}

func (t *Transport) Recv() <-chan dhcp6.Datagram { return t.recv }

func (t *Transport) Close() error {
	t.cancel()
	return t.conn.Close()
}
