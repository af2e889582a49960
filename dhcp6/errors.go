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

import "errors"

// ErrorKind is a sentinel identifying the class of failure the engine
// reports, independent of which exchange or interface triggered it.
// Callers compare with errors.Is, never by message text.
type ErrorKind error

var (
	// ErrNoInterface means NetInfo has no record of the device's ifindex.
	ErrNoInterface ErrorKind = errors.New("dhcp6: no such interface")
	// ErrLinkDown means the interface is administratively or physically down.
	ErrLinkDown ErrorKind = errors.New("dhcp6: link down")
	// ErrNoLinklocal means the interface has no usable link-local address yet.
	ErrNoLinklocal ErrorKind = errors.New("dhcp6: no link-local address")
	// ErrDuplicateLinklocal means the only link-local candidate failed DAD.
	ErrDuplicateLinklocal ErrorKind = errors.New("dhcp6: duplicate link-local address")
	// ErrNoIdentity means no DUID could be loaded, configured, or generated.
	ErrNoIdentity ErrorKind = errors.New("dhcp6: no identity (DUID) available")
	// ErrNoIAID means IAID derivation had no hardware address or ifname to use.
	ErrNoIAID ErrorKind = errors.New("dhcp6: cannot derive IAID")
	// ErrSendFailed means the transport could not write the outbound message.
	ErrSendFailed ErrorKind = errors.New("dhcp6: send failed")
	// ErrRecvFailed means the transport returned an error reading a packet.
	ErrRecvFailed ErrorKind = errors.New("dhcp6: recv failed")
	// ErrParseFailed means the codec could not decode an inbound packet.
	ErrParseFailed ErrorKind = errors.New("dhcp6: parse failed")
	// ErrMRCExceeded means the retransmission controller hit its retry cap.
	ErrMRCExceeded ErrorKind = errors.New("dhcp6: max retry count exceeded")
	// ErrMRDExpired means the retransmission controller hit its duration cap.
	ErrMRDExpired ErrorKind = errors.New("dhcp6: max retry duration expired")
	// ErrServerRejected means a server replied with a non-success status code.
	ErrServerRejected ErrorKind = errors.New("dhcp6: server rejected request")
	// ErrCanceled means the acquisition was canceled by the host.
	ErrCanceled ErrorKind = errors.New("dhcp6: canceled")
	// ErrInvalidHostname means the requested hostname fails RFC 1035 label rules.
	ErrInvalidHostname ErrorKind = errors.New("dhcp6: invalid hostname")
)

// StatusError wraps ErrServerRejected with the DHCPv6 status code and
// message reported by the server, so callers can still errors.Is against
// ErrServerRejected while logging the detail.
type StatusError struct {
	Code    uint16
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "dhcp6: server rejected request (status " + itoa(e.Code) + ")"
	}
	return "dhcp6: server rejected request (status " + itoa(e.Code) + "): " + e.Message
}

func (e *StatusError) Unwrap() error { return ErrServerRejected }

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
