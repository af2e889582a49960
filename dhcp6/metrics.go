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

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's prometheus collectors. A nil *Metrics is
// valid and every method becomes a no-op, so callers that don't want
// metrics don't need a stub implementation.
type Metrics struct {
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	leasesAcquired   prometheus.Counter
	leaseFailures    *prometheus.CounterVec
	devicesActive    prometheus.Gauge
	stateTransitions *prometheus.CounterVec
}

// NewMetrics creates and registers the engine's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcp6",
			Name:      "messages_sent_total",
			Help:      "DHCPv6 messages transmitted, by message type.",
		}, []string{"type"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcp6",
			Name:      "messages_received_total",
			Help:      "DHCPv6 messages accepted by the FSM, by message type.",
		}, []string{"type"}),
		leasesAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dhcp6",
			Name:      "leases_acquired_total",
			Help:      "Lease grants that moved a Device to Bound, including renewals and rebinds.",
		}),
		leaseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcp6",
			Name:      "lease_failures_total",
			Help:      "Terminal acquisition failures, by error kind.",
		}, []string{"reason"}),
		devicesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dhcp6",
			Name:      "devices_active",
			Help:      "Number of Devices currently registered.",
		}),
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhcp6",
			Name:      "fsm_transitions_total",
			Help:      "FSM state transitions, by destination state.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.messagesSent, m.messagesReceived, m.leasesAcquired, m.leaseFailures, m.devicesActive, m.stateTransitions)
	}
	return m
}

func (m *Metrics) observeSent(kind MessageType) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeReceived(kind MessageType) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeTransition(to State) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) observeLeaseResult(result *LeaseResult) {
	if m == nil || result == nil {
		return
	}
	if result.Err != nil {
		m.leaseFailures.WithLabelValues(result.Err.Error()).Inc()
		return
	}
	if result.Lease != nil {
		m.leasesAcquired.Inc()
	}
}

func (m *Metrics) setDevicesActive(n int) {
	if m == nil {
		return
	}
	m.devicesActive.Set(float64(n))
}
