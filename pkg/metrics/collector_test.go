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

package metrics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hctamu/goproxmoxer/pkg/metrics"
	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

type sessionFunc func() *proxmox.Response

func (f sessionFunc) Request(
	_ context.Context, _, _ string, _, _ proxmox.Params,
) (*proxmox.Response, error) {
	return f(), nil
}

func TestCollectorCountsRequests(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	collector.ObserveRequest(proxmox.BackendHTTPS, "GET", 200, 10*time.Millisecond)
	collector.ObserveRequest(proxmox.BackendHTTPS, "GET", 200, 20*time.Millisecond)
	collector.ObserveRequest(proxmox.BackendHTTPS, "POST", 500, time.Millisecond)
	collector.ObserveRequest(proxmox.BackendSSH, "GET", 0, time.Second)

	expected := `
# HELP proxmoxer_requests_total Proxmox API calls by backend, method and status code. Code 0 is a transport failure.
# TYPE proxmoxer_requests_total counter
proxmoxer_requests_total{backend="https",code="200",method="GET"} 2
proxmoxer_requests_total{backend="https",code="500",method="POST"} 1
proxmoxer_requests_total{backend="ssh",code="0",method="GET"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "proxmoxer_requests_total"))

	series, err := testutil.GatherAndCount(reg, "proxmoxer_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, series)
}

func TestCollectorDoubleRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	_, err = metrics.NewCollector(reg)
	assert.ErrorContains(t, err, "failed to register metrics")
}

func TestCollectorOnAPI(t *testing.T) {
	t.Parallel()

	collector, err := metrics.NewCollector(nil)
	require.NoError(t, err)

	root := proxmox.NewResource("", sessionFunc(func() *proxmox.Response {
		return proxmox.NewResponse([]byte(`{"version":"8.2"}`), 200)
	}), proxmox.JSONSimpleSerializer{}, proxmox.WithObserver(collector))

	_, err = root.Resource("version").Get(context.Background(), nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collector.Collectors()...)
	series, err := testutil.GatherAndCount(reg, "proxmoxer_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}
