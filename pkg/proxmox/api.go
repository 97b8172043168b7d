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

package proxmox

import "fmt"

// API is the root resource of a Proxmox service bound to one backend.
type API struct {
	*Resource
	kind    BackendKind
	backend Backend
}

// NewAPI wraps backend. The kind is used in log output, metrics and String.
func NewAPI(kind BackendKind, backend Backend, opts ...Option) *API {
	opts = append([]Option{withBackendKind(kind)}, opts...)
	return &API{
		Resource: NewResource(backend.BaseURL(), backend.Session(), backend.Serializer(), opts...),
		kind:     kind,
		backend:  backend,
	}
}

// Kind returns the backend kind the API was built with.
func (a *API) Kind() BackendKind {
	return a.kind
}

// Backend returns the transport behind the API.
func (a *API) Backend() Backend {
	return a.backend
}

// Tokens returns the current ticket and CSRF token. Both are empty unless
// the API uses the https backend with ticket authentication.
func (a *API) Tokens() (ticket, csrf string) {
	if a.kind != BackendHTTPS {
		return "", ""
	}
	return a.backend.Tokens()
}

func (a *API) String() string {
	return fmt.Sprintf("ProxmoxAPI (%s backend for %s)", a.kind, a.backend.Target())
}

// Close releases the backend's connections.
func (a *API) Close() error {
	return a.backend.Close()
}
