// Copyright 2025 the MetaMCP authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metamcp_tool_invocations_total",
			Help: "Total tool invocations by server, tool, and outcome",
		},
		[]string{"server", "tool", "status"},
	)

	invocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metamcp_tool_invocation_duration_seconds",
			Help:    "Tool invocation latency by server",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server"},
	)

	refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metamcp_tool_refreshes_total",
			Help: "Total tool discovery refreshes by server and outcome",
		},
		[]string{"server", "status"},
	)

	toolsDiscovered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "metamcp_tools_discovered",
			Help: "Number of tools reported by the last refresh of each server",
		},
		[]string{"server"},
	)
)

// RecordInvocation records one tool invocation outcome and its latency.
// status should be "success" or "error".
func RecordInvocation(server, tool, status string, elapsed time.Duration) {
	invocations.WithLabelValues(server, tool, status).Inc()
	invocationDuration.WithLabelValues(server).Observe(elapsed.Seconds())
}

// RecordRefresh records one discovery refresh outcome.
// status should be "success" or "error".
func RecordRefresh(server, status string, toolCount int) {
	refreshes.WithLabelValues(server, status).Inc()
	if status == "success" {
		toolsDiscovered.WithLabelValues(server).Set(float64(toolCount))
	}
}
