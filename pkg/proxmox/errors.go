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
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrPayloadTooLarge is returned when a buffered multipart upload would exceed
// the transport's signed 32-bit length limit.
var ErrPayloadTooLarge = errors.New("unable to upload a payload larger than 2 GiB")

// anyEventStatusCodes are the out-of-range codes the Proxmox daemons use for
// connection-level failures.
var anyEventStatusCodes = map[int]string{
	595: "Errors during connection establishment, proxy handshake",
	596: "Errors during TLS negotiation, request sending and header processing",
	597: "Errors during body receiving or processing",
	598: "User aborted request via on_header or on_body",
	599: "Other, usually nonretryable, errors (garbled URL etc.)",
}

// StatusText returns the phrase for an HTTP status code, including the
// vendor-specific 595-599 range. Unknown codes yield "".
func StatusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return anyEventStatusCodes[code]
}

// ConfigError reports an invalid client configuration. It is raised at
// construction time and never retried.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// AuthenticationError reports a failed login.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// AttributeError reports a resource name reserved for internal use.
type AttributeError struct {
	Name string
}

func (e *AttributeError) Error() string {
	return e.Name
}

// ResourceError is returned for every response with a status code of 400 or
// above.
type ResourceError struct {
	StatusCode    int
	StatusMessage string
	Content       string
	// Errors holds the serializer-decoded error payload, if any.
	Errors any
}

func (e *ResourceError) Error() string {
	content := e.Content
	if e.Errors != nil {
		content += fmt.Sprintf(" - %v", e.Errors)
	}
	return strings.TrimSpace(fmt.Sprintf("%d %s: %s", e.StatusCode, e.StatusMessage, content))
}

// IsNotFound reports whether err is a ResourceError with status 404.
func IsNotFound(err error) bool {
	var resErr *ResourceError
	return errors.As(err, &resErr) && resErr.StatusCode == http.StatusNotFound
}
