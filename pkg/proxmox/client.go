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

// Package proxmox provides the transport-independent core for talking to the
// Proxmox management API: the resource path builder, the API facade, the
// normalized Response, serializers, service descriptors and the error types.
package proxmox

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Params carries the form data or query parameters of a single call.
// Values may be strings, numbers, bools, string slices or io.Readers (file
// uploads). Nil values are stripped before a Session sees them.
type Params map[string]any

// Session is the general interface for a transport to the Proxmox API.
// It turns one method+url+payload triple into a normalized Response.
type Session interface {
	// Request performs a single call. data carries the body fields of
	// POST/PUT calls, params the query parameters of GET/DELETE calls.
	Request(ctx context.Context, method, url string, data, params Params) (*Response, error)
}

// Backend bundles the Session, Serializer and base URL of one transport.
type Backend interface {
	// BaseURL is the prefix every resource path is appended to.
	BaseURL() string

	// Session returns the transport session shared by every resource.
	Session() Session

	// Serializer returns the decoder matching the session's wire format.
	Serializer() Serializer

	// Target names the machine the backend talks to, for display.
	Target() string

	// Tokens returns the auth ticket and CSRF token in use. Backends that do
	// not use password authentication return empty strings.
	Tokens() (ticket, csrf string)

	// Close releases the transport's connection, if any.
	Close() error
}

// RequestObserver is notified once per dispatched call.
type RequestObserver interface {
	ObserveRequest(backend BackendKind, method string, status int, elapsed time.Duration)
}

// BackendKind identifies one of the supported transports.
type BackendKind string

const (
	// BackendHTTPS talks JSON over HTTPS to the REST API.
	BackendHTTPS BackendKind = "https"
	// BackendLocal runs the management shell on the local machine.
	BackendLocal BackendKind = "local"
	// BackendOpenSSH runs the management shell through the ssh binary.
	BackendOpenSSH BackendKind = "openssh"
	// BackendSSH runs the management shell over an in-process SSH client.
	BackendSSH BackendKind = "ssh"
)

// ParseBackendKind resolves a backend name case-insensitively.
func ParseBackendKind(name string) (BackendKind, error) {
	switch kind := BackendKind(strings.ToLower(strings.TrimSpace(name))); kind {
	case BackendHTTPS, BackendLocal, BackendOpenSSH, BackendSSH:
		return kind, nil
	case "ssh_paramiko":
		return BackendSSH, nil
	default:
		return "", &ConfigError{Message: fmt.Sprintf("%s backend is not supported", kind)}
	}
}
