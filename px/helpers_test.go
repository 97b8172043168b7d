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

package px_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
	"github.com/hctamu/goproxmoxer/px"
	"github.com/stretchr/testify/require"
)

// call is one request received by routeSession.
type call struct {
	method string
	url    string
	data   proxmox.Params
	params proxmox.Params
}

// routeSession answers "METHOD /path" keys with canned bodies. A key with more
// than one body answers them in order and then keeps repeating the last one.
// Unknown routes fail like pvesh does for a missing object.
type routeSession struct {
	mu     sync.Mutex
	routes map[string][]string
	calls  []call
}

func newRouteSession(routes map[string][]string) *routeSession {
	return &routeSession{routes: routes}
}

func (s *routeSession) Request(
	_ context.Context, method, url string, data, params proxmox.Params,
) (*proxmox.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, call{method: method, url: url, data: data, params: params})

	key := method + " " + url
	bodies, ok := s.routes[key]
	if !ok || len(bodies) == 0 {
		return proxmox.NewResponse([]byte("Configuration file '"+url+"' does not exist"), 500), nil
	}
	body := bodies[0]
	if len(bodies) > 1 {
		s.routes[key] = bodies[1:]
	}
	return proxmox.NewResponse([]byte(body), 200), nil
}

func (s *routeSession) find(t *testing.T, method, prefix string) call {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.method == method && strings.HasPrefix(c.url, prefix) {
			return c
		}
	}
	require.Failf(t, "call not found", "%s %s", method, prefix)
	return call{}
}

func (s *routeSession) count(method, url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.method == method && c.url == url {
			n++
		}
	}
	return n
}

// shellBackend mimics a pvesh transport: empty base URL and raw data bodies.
type shellBackend struct {
	session *routeSession
}

func (b *shellBackend) BaseURL() string                { return "" }
func (b *shellBackend) Session() proxmox.Session       { return b.session }
func (b *shellBackend) Serializer() proxmox.Serializer { return proxmox.JSONSimpleSerializer{} }
func (b *shellBackend) Target() string                 { return "localhost" }
func (b *shellBackend) Tokens() (ticket, csrf string)  { return "", "" }
func (b *shellBackend) Close() error                   { return nil }

func newTestClient(routes map[string][]string) (*px.Client, *routeSession) {
	session := newRouteSession(routes)
	return px.New(proxmox.NewAPI(proxmox.BackendLocal, &shellBackend{session: session})), session
}
