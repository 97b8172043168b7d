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

import (
	"strings"

	"golang.org/x/exp/slices"
)

// AuthMode is an HTTPS authentication mode.
type AuthMode string

const (
	// AuthPassword logs in with username/password and renews a ticket.
	AuthPassword AuthMode = "password"
	// AuthToken stamps a static API token on every request.
	AuthToken AuthMode = "token"
)

// ServiceDescriptor is the static configuration of one Proxmox product.
type ServiceDescriptor struct {
	Name              string
	SupportedBackends []BackendKind
	SupportedAuths    []AuthMode
	DefaultPort       int
	// TokenSeparator joins the token name and value in the API token header.
	TokenSeparator string
	// CLIAdditionalOptions are appended to every shell command line.
	CLIAdditionalOptions []string
}

// services is read-only after package initialization.
var services = map[string]ServiceDescriptor{
	"PVE": {
		Name:                 "PVE",
		SupportedBackends:    []BackendKind{BackendLocal, BackendHTTPS, BackendOpenSSH, BackendSSH},
		SupportedAuths:       []AuthMode{AuthPassword, AuthToken},
		DefaultPort:          8006,
		TokenSeparator:       "=",
		CLIAdditionalOptions: []string{"--output-format", "json"},
	},
	"PMG": {
		Name:              "PMG",
		SupportedBackends: []BackendKind{BackendLocal, BackendHTTPS, BackendOpenSSH, BackendSSH},
		SupportedAuths:    []AuthMode{AuthPassword},
		DefaultPort:       8006,
	},
	"PBS": {
		Name:              "PBS",
		SupportedBackends: []BackendKind{BackendHTTPS},
		SupportedAuths:    []AuthMode{AuthPassword, AuthToken},
		DefaultPort:       8007,
		TokenSeparator:    ":",
	},
}

// LookupService returns the descriptor of a service, matching its name
// case-insensitively.
func LookupService(name string) (ServiceDescriptor, error) {
	svc, ok := services[strings.ToUpper(name)]
	if !ok {
		return ServiceDescriptor{}, configErrorf("%s service is not supported", strings.ToUpper(name))
	}
	return svc, nil
}

// SupportsBackend reports whether the service can be reached through kind.
func (svc ServiceDescriptor) SupportsBackend(kind BackendKind) bool {
	return slices.Contains(svc.SupportedBackends, kind)
}

// SupportsAuth reports whether the service accepts the HTTPS auth mode.
func (svc ServiceDescriptor) SupportsAuth(mode AuthMode) bool {
	return slices.Contains(svc.SupportedAuths, mode)
}

// ShellCommand is the name of the service's management shell, e.g. "pvesh".
func (svc ServiceDescriptor) ShellCommand() string {
	return strings.ToLower(svc.Name) + "sh"
}
