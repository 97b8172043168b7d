/* Copyright 2025, Pulumi Corporation.

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

// Package metrics exports per-call Prometheus metrics for a proxmox.API.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// Collector counts calls and records their latency. Register it on an API
// with proxmox.WithObserver or client.WithObserver.
type Collector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ proxmox.RequestObserver = (*Collector)(nil)

// NewCollector creates the metric vectors and registers them on reg. A nil
// reg leaves them unregistered.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxmoxer_requests_total",
			Help: "Proxmox API calls by backend, method and status code. Code 0 is a transport failure.",
		}, []string{"backend", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proxmoxer_request_duration_seconds",
			Help:    "Latency of Proxmox API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "method"}),
	}

	if reg != nil {
		for _, collector := range c.Collectors() {
			if err := reg.Register(collector); err != nil {
				return nil, fmt.Errorf("failed to register metrics: %w", err)
			}
		}
	}
	return c, nil
}

// Collectors returns the metric vectors, for registering on another registry.
func (c *Collector) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.requests, c.duration}
}

// ObserveRequest implements proxmox.RequestObserver.
func (c *Collector) ObserveRequest(backend proxmox.BackendKind, method string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(string(backend), method, strconv.Itoa(status)).Inc()
	c.duration.WithLabelValues(string(backend), method).Observe(elapsed.Seconds())
}
