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

// Package fake implements dhcp6.Transport in memory, for tests that
// need to simulate a server exchange without a socket.
package fake

import (
	"context"
	"net/netip"
	"sync"

	"github.com/dhcp6client/engine/dhcp6"
)

// Transport is an in-memory dhcp6.Transport: Send records every
// outbound datagram, and a test feeds inbound datagrams by calling
// Deliver, which Recv then surfaces.
type Transport struct {
	mu     sync.Mutex
	sent   [][]byte
	recv   chan dhcp6.Datagram
	closed bool
}

// New creates a Transport with a buffered inbound queue of depth recvBuf.
func New(recvBuf int) *Transport {
	return &Transport{recv: make(chan dhcp6.Datagram, recvBuf)}
}

var _ dhcp6.Transport = (*Transport)(nil)

func (t *Transport) Send(_ context.Context, buf []byte, _ dhcp6.Destination) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, append([]byte(nil), buf...))
	return len(buf), nil
}

func (t *Transport) Recv() <-chan dhcp6.Datagram { return t.recv }

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.recv)
	}
	return nil
}

// Sent returns a copy of every datagram handed to Send so far.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// Deliver simulates an inbound datagram arriving from the network, with
// no particular source address (most tests don't care).
func (t *Transport) Deliver(buf []byte) {
	t.DeliverFrom(buf, netip.Addr{})
}

// DeliverFrom simulates an inbound datagram arriving from from, for
// tests exercising address-based Server Policy matching.
func (t *Transport) DeliverFrom(buf []byte, from netip.Addr) {
	t.recv <- dhcp6.Datagram{Data: buf, From: from}
}

// Server simulates a DHCPv6 server driven by test code: it watches a
// fake Transport's outbound sends and answers each with a canned
// response, in the MockISP request/response simulation pattern.
type Server struct {
	transport *Transport
	Respond   func(sent []byte) (reply []byte, ok bool)
	// From, if set, is used as the source address attached to every
	// delivered reply.
	From netip.Addr
}

// NewServer wires resp as the reply function for every datagram sent on
// transport, run synchronously by Drive.
func NewServer(transport *Transport, resp func(sent []byte) ([]byte, bool)) *Server {
	return &Server{transport: transport, Respond: resp}
}

// Drive answers every outbound datagram recorded so far, delivering
// replies back into the transport. It keeps no record of earlier calls:
// a datagram answered by a previous Drive is answered again.
func (s *Server) Drive() {
	for _, sent := range s.transport.Sent() {
		if reply, ok := s.Respond(sent); ok {
			s.transport.DeliverFrom(reply, s.From)
		}
	}
}
