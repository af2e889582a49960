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
	"errors"
	"sync"

	"github.com/go-logr/logr"
)

// sentDatagram records one Send call's payload and destination, so tests
// can assert on unicast vs. multicast routing as well as on send counts.
type sentDatagram struct {
	Data []byte
	Dest Destination
}

// fakeTransport is a Transport test double recording every Send and
// replaying Recv from a channel the test feeds directly, grounded on
// MockReceiver-style test doubles.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []sentDatagram
	recv   chan Datagram
	closed bool
}

func (t *fakeTransport) Send(_ context.Context, buf []byte, dest Destination) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := append([]byte(nil), buf...)
	t.sent = append(t.sent, sentDatagram{Data: cp, Dest: dest})
	return len(buf), nil
}

func (t *fakeTransport) Recv() <-chan Datagram { return t.recv }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.recv)
	}
	return nil
}

// fakeCodec is a MessageCodec test double. Encode just tags the message
// kind so tests can assert on send counts without a real wire format;
// Decode returns a preconfigured Message or fails on demand.
type fakeCodec struct {
	mu         sync.Mutex
	failDecode bool
	nextDecode *Message
}

func (c *fakeCodec) Encode(msg Message) ([]byte, error) {
	return []byte{byte(msg.Type)}, nil
}

func (c *fakeCodec) Decode(buf []byte) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failDecode {
		return Message{}, errors.New("fake decode failure")
	}
	if c.nextDecode != nil {
		return *c.nextDecode, nil
	}
	if len(buf) == 0 {
		return Message{}, errors.New("empty buffer")
	}
	return Message{Type: MessageType(buf[0])}, nil
}

func testLogger() logr.Logger { return logr.Discard() }
