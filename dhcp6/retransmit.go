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
	"math/rand"
	"time"
)

// RetransmitParams are the four knobs RFC 3315 §14 names per message kind:
// initial/max retransmission timeout, max retry count and max retry
// duration. A zero MRC or MRD means "no cap" for that dimension.
type RetransmitParams struct {
	IRT time.Duration
	MRT time.Duration
	MRC int
	MRD time.Duration
}

// defaultRetransmitParams holds the RFC 3315 §5.5 defaults per message
// kind the FSM retransmits. Request caps both MRT and MRC; Release and
// Decline cap only MRC; Confirm is bounded by MRD; Solicit, Renew, Rebind
// and Information-Request have neither an MRC nor an MRD.
var defaultRetransmitParams = map[MessageType]RetransmitParams{
	MessageSolicit:            {IRT: time.Second, MRT: 120 * time.Second, MRC: 0, MRD: 0},
	MessageRequest:            {IRT: time.Second, MRT: 30 * time.Second, MRC: 10, MRD: 0},
	MessageConfirm:            {IRT: time.Second, MRT: 4 * time.Second, MRC: 0, MRD: 10 * time.Second},
	MessageRenew:              {IRT: 10 * time.Second, MRT: 600 * time.Second, MRC: 0, MRD: 0},
	MessageRebind:             {IRT: 10 * time.Second, MRT: 600 * time.Second, MRC: 0, MRD: 0},
	MessageRelease:            {IRT: time.Second, MRT: 0, MRC: 5, MRD: 0},
	MessageDecline:            {IRT: time.Second, MRT: 0, MRC: 5, MRD: 0},
	MessageInformationRequest: {IRT: time.Second, MRT: 120 * time.Second, MRC: 0, MRD: 0},
}

// RetransmitController tracks one in-flight message exchange's
// retransmission timer state, implementing the backoff formula of RFC
// 3315 §14:
//
//	RT(0)   = IRT + RAND*IRT
//	RT(n+1) = 2*RT(n) + RAND*RT(n), capped so RT(n+1) <= MRT*(1+RAND) when MRT > 0
//
// RAND is drawn uniformly from [-0.1, 0.1], except the very first
// transmission of a message sent from the Selecting state, where RFC
// 3315 §17.1.2 requires RAND to be chosen strictly greater than zero so
// clients rebooting in lock-step do not retransmit in lock-step.
type RetransmitController struct {
	params    RetransmitParams
	selecting bool

	rand func() float64

	count   int
	started time.Time
	current time.Duration
}

// NewRetransmitController creates a controller for one message exchange.
// selecting must be true only for the Solicit sent from the Selecting
// state, to apply the strictly-positive first-jitter rule.
func NewRetransmitController(kind MessageType, selecting bool, now time.Time) *RetransmitController {
	params, ok := defaultRetransmitParams[kind]
	if !ok {
		params = RetransmitParams{IRT: time.Second, MRT: 120 * time.Second}
	}
	return &RetransmitController{
		params:    params,
		selecting: selecting,
		rand:      rand.Float64,
		started:   now,
	}
}

// WithParams overrides the message-kind defaults, e.g. when a Request
// carries host-configured timeouts.
func (c *RetransmitController) WithParams(p RetransmitParams) *RetransmitController {
	c.params = p
	return c
}

// jitter returns a value in [-0.1, 0.1], or in (0, 0.1] for the first
// Solicit transmission from Selecting (RFC 3315 §17.1.2).
func (c *RetransmitController) jitter() float64 {
	r := c.rand()
	if c.count == 0 && c.selecting {
		return (1 - r) * 0.1 // rand.Float64 in [0,1) -> (0, 0.1]
	}
	return -0.1 + r*0.2
}

// Next computes the delay until the next (re)transmission and reports
// whether the exchange may still retransmit at all: false means MRC or
// MRD has been exhausted and the caller must give up (ErrMRCExceeded /
// ErrMRDExpired, distinguished by the caller checking MRCExceeded).
func (c *RetransmitController) Next(now time.Time) (time.Duration, bool) {
	if c.params.MRC > 0 && c.count >= c.params.MRC {
		return 0, false
	}
	if c.params.MRD > 0 && now.Sub(c.started) >= c.params.MRD {
		return 0, false
	}

	var rt time.Duration
	if c.count == 0 {
		rt = c.params.IRT + scale(c.params.IRT, c.jitter())
	} else {
		rt = 2*c.current + scale(c.current, c.jitter())
		if c.params.MRT > 0 && rt > c.params.MRT {
			rt = c.params.MRT + scale(c.params.MRT, c.jitter())
		}
	}
	if rt < 0 {
		rt = 0
	}

	c.current = rt
	c.count++

	if c.params.MRD > 0 {
		if remaining := c.params.MRD - now.Sub(c.started); remaining < rt {
			rt = remaining
		}
	}
	return rt, true
}

// MRCExceeded reports whether the last Next() false result was due to the
// retry-count cap rather than the duration cap.
func (c *RetransmitController) MRCExceeded(now time.Time) bool {
	if c.params.MRC > 0 && c.count >= c.params.MRC {
		return true
	}
	return false
}

// Count returns the number of transmissions scheduled so far (including
// the initial one counted by the first Next() call).
func (c *RetransmitController) Count() int { return c.count }

func scale(d time.Duration, frac float64) time.Duration {
	return time.Duration(float64(d) * frac)
}
