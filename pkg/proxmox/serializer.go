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
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Serializer decodes a Response into a payload. Decoding never fails: content
// that is not valid JSON degrades to an error map wrapping the raw content, so
// a parse problem never hides the real status of the call.
type Serializer interface {
	// Loads decodes the payload of a successful response.
	Loads(resp *Response) any

	// LoadsErrors extracts the error detail of a failed response.
	LoadsErrors(resp *Response) any

	// AcceptTypes lists the content types the serializer understands, in
	// Accept header form.
	AcceptTypes() string
}

var jsonContentTypes = []string{
	"application/json",
	"application/x-javascript",
	"text/javascript",
	"text/x-javascript",
	"text/x-json",
}

// JSONSerializer decodes the REST API's {"data": ...} envelope.
type JSONSerializer struct{}

var _ Serializer = JSONSerializer{}

// AcceptTypes returns the JSON content types joined for an Accept header.
func (JSONSerializer) AcceptTypes() string {
	return strings.Join(jsonContentTypes, ", ")
}

// Loads returns the value of the "data" key.
func (JSONSerializer) Loads(resp *Response) any {
	decoded, ok := decodeJSON(resp.Content)
	if !ok {
		return errorMap(resp)
	}
	envelope, ok := decoded.(map[string]any)
	if !ok {
		return errorMap(resp)
	}
	return envelope["data"]
}

// LoadsErrors returns the value of the "errors" key of the response text.
func (JSONSerializer) LoadsErrors(resp *Response) any {
	return loadsErrors(resp)
}

// JSONSimpleSerializer decodes the unwrapped JSON printed by the management
// shell's JSON output mode.
type JSONSimpleSerializer struct{}

var _ Serializer = JSONSimpleSerializer{}

// AcceptTypes returns the JSON content types joined for an Accept header.
func (JSONSimpleSerializer) AcceptTypes() string {
	return strings.Join(jsonContentTypes, ", ")
}

// Loads returns the whole decoded content.
func (JSONSimpleSerializer) Loads(resp *Response) any {
	decoded, ok := decodeJSON(resp.Content)
	if !ok {
		return errorMap(resp)
	}
	return decoded
}

// LoadsErrors returns the value of the "errors" key of the response text.
func (JSONSimpleSerializer) LoadsErrors(resp *Response) any {
	return loadsErrors(resp)
}

func loadsErrors(resp *Response) any {
	decoded, ok := decodeJSON([]byte(resp.Text()))
	if !ok {
		return errorMap(resp)
	}
	envelope, ok := decoded.(map[string]any)
	if !ok {
		return errorMap(resp)
	}
	return envelope["errors"]
}

func decodeJSON(content []byte) (any, bool) {
	if !utf8.Valid(content) {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(content, &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

func errorMap(resp *Response) map[string]any {
	return map[string]any{"errors": string(resp.Content)}
}
