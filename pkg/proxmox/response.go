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

// Response is the normalized result of one call, whatever the transport.
// Shell transports synthesize StatusCode from the command output.
type Response struct {
	StatusCode int
	Content    []byte
	// Reason is the HTTP reason phrase. Shell transports leave it empty.
	Reason  string
	Headers map[string]string
}

// NewResponse builds a Response with the JSON content type header used by the
// shell transports.
func NewResponse(content []byte, statusCode int) *Response {
	return &Response{
		StatusCode: statusCode,
		Content:    content,
		Headers:    map[string]string{"content-type": "application/json"},
	}
}

// Text returns the content as a string.
func (r *Response) Text() string {
	return string(r.Content)
}

func (r *Response) String() string {
	return fmt.Sprintf("Response (%d) %s", r.StatusCode, r.Content)
}
