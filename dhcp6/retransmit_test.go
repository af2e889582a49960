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
	"testing"
	"time"
)

func TestRetransmitControllerSelectingFirstJitterIsStrictlyPositive(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewRetransmitController(MessageSolicit, true, now)
	c.rand = func() float64 { return 0 } // worst case: rand.Float64 returns its minimum

	rt, ok := c.Next(now)
	if !ok {
		t.Fatalf("Next() ok = false, want true")
	}
	if rt <= c.params.IRT {
		t.Errorf("first Selecting RT = %v, want strictly greater than IRT %v", rt, c.params.IRT)
	}
}

func TestRetransmitControllerNonSelectingFirstJitterCanBeNegative(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewRetransmitController(MessageRenew, false, now)
	c.rand = func() float64 { return 0 } // jitter() -> -0.1

	rt, ok := c.Next(now)
	if !ok {
		t.Fatalf("Next() ok = false, want true")
	}
	if rt >= c.params.IRT {
		t.Errorf("first Renew RT = %v, want less than IRT %v under minimum jitter", rt, c.params.IRT)
	}
}

func TestRetransmitControllerDoublesAndCapsAtMRT(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewRetransmitController(MessageRequest, false, now)
	c.rand = func() float64 { return 0.5 } // jitter() -> 0

	var last time.Duration
	for i := 0; i < 6; i++ {
		rt, ok := c.Next(now)
		if !ok {
			t.Fatalf("Next() call %d: ok = false", i)
		}
		if i > 0 && rt < last {
			t.Errorf("call %d: RT %v did not grow from previous %v", i, rt, last)
		}
		if rt > c.params.MRT {
			t.Errorf("call %d: RT %v exceeds MRT %v", i, rt, c.params.MRT)
		}
		last = rt
	}
}

func TestRetransmitControllerStopsAtMRC(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewRetransmitController(MessageRequest, false, now) // MRC = 10

	count := 0
	for {
		_, ok := c.Next(now)
		if !ok {
			break
		}
		count++
		if count > 100 {
			t.Fatalf("retransmit controller never stopped")
		}
	}
	if count != c.params.MRC {
		t.Errorf("transmitted %d times, want MRC = %d", count, c.params.MRC)
	}
	if !c.MRCExceeded(now) {
		t.Errorf("MRCExceeded() = false after hitting MRC")
	}
}

func TestRetransmitControllerStopsAtMRD(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewRetransmitController(MessageConfirm, false, start) // MRD = 10s, MRC = 0

	now := start
	count := 0
	for {
		rt, ok := c.Next(now)
		if !ok {
			break
		}
		now = now.Add(rt)
		count++
		if count > 1000 {
			t.Fatalf("retransmit controller never stopped on MRD")
		}
	}
	if now.Sub(start) > c.params.MRD+time.Second {
		t.Errorf("ran past MRD: elapsed %v, MRD %v", now.Sub(start), c.params.MRD)
	}
	if count == 0 {
		t.Errorf("expected at least one transmission before MRD expiry")
	}
}

func TestRetransmitControllerNoCapsRunsIndefinitely(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewRetransmitController(MessageRenew, false, now) // MRC=0, MRD=0
	for i := 0; i < 50; i++ {
		if _, ok := c.Next(now); !ok {
			t.Fatalf("Next() stopped at call %d with no MRC/MRD configured", i)
		}
	}
}
