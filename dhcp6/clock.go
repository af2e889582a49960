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
	"sync"
	"time"
)

// Clock is the engine's monotonic time source. Production code uses
// SystemClock; tests stub it out, mirroring the Fuchsia netstack DHCP
// client's stubbable `now func() time.Time` field so retransmission tests
// don't depend on wall-clock jitter.
type Clock interface {
	// Now returns (seconds, microseconds) since an arbitrary fixed epoch,
	// monotonic within a process lifetime.
	Now() (int64, int64)
	// AfterFunc schedules fn to run once after d elapses, returning a
	// Timer that can cancel it.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a one-shot, cancellable alarm. Cancellation is synchronous: once
// Stop returns, fn will not subsequently fire (spec §4.1).
type Timer interface {
	Stop() bool
}

// SystemClock is the production Clock, backed by time.Now and time.AfterFunc.
type SystemClock struct{}

var epoch = time.Now()

// Now returns seconds/microseconds elapsed since the package-level epoch,
// recorded when the package is initialized, giving monotonic deltas
// within a process lifetime.
func (SystemClock) Now() (int64, int64) {
	d := time.Since(epoch)
	return int64(d / time.Second), int64((d % time.Second) / time.Microsecond)
}

func (SystemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return &systemTimer{t: time.AfterFunc(d, fn)}
}

type systemTimer struct{ t *time.Timer }

func (s *systemTimer) Stop() bool { return s.t.Stop() }

// NowDuration is a convenience for components that want a single
// comparable value rather than a (sec, usec) pair.
func NowDuration(c Clock) time.Duration {
	sec, usec := c.Now()
	return time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond
}

// FSMTimer enforces "at most one in-flight FSM timer per Device"
// (invariant I... / spec §4.1, §5): arming a new timeout cancels any
// prior one before the new one is scheduled.
type FSMTimer struct {
	mu      sync.Mutex
	clock   Clock
	current Timer
}

// NewFSMTimer creates an FSMTimer bound to clock.
func NewFSMTimer(clock Clock) *FSMTimer {
	return &FSMTimer{clock: clock}
}

// Arm cancels any pending timer and schedules fn after d.
func (f *FSMTimer) Arm(d time.Duration, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil {
		f.current.Stop()
	}
	f.current = f.clock.AfterFunc(d, fn)
}

// Cancel stops any pending timer without scheduling a new one.
func (f *FSMTimer) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil {
		f.current.Stop()
		f.current = nil
	}
}
