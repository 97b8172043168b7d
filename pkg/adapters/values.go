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

package adapters

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// formValues renders one parameter value as the strings sent on the wire.
// Slices produce one value per element, bools become 1 or 0.
func formValues(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case bool:
		if v {
			return []string{"1"}
		}
		return []string{"0"}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			out = append(out, formValues(elem)...)
		}
		return out
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out
	case fmt.Stringer:
		return []string{v.String()}
	default:
		return []string{fmt.Sprint(v)}
	}
}

// isAgentExec reports whether url targets the guest agent exec endpoint,
// whose command field must be sent as one value per argument.
func isAgentExec(url string) bool {
	return strings.HasSuffix(strings.TrimSuffix(url, "/"), "agent/exec")
}

// agentCommand splits a guest agent command into its arguments. Slices are
// taken as already split.
func agentCommand(value any) ([]string, error) {
	s, ok := value.(string)
	if !ok {
		return formValues(value), nil
	}
	args, err := shellquote.Split(s)
	if err != nil {
		return nil, fmt.Errorf("failed to split command %q: %w", s, err)
	}
	return args, nil
}

func sortedKeys(params proxmox.Params) []string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// fileName is the name a reader is uploaded under: the base name of its
// Name() when it has one, fallback otherwise.
func fileName(r io.Reader, fallback string) string {
	if named, ok := r.(interface{ Name() string }); ok && named.Name() != "" {
		return filepath.Base(named.Name())
	}
	return fallback
}

// readerSize returns the number of bytes left in r, or -1 when unknown.
func readerSize(r io.Reader) int64 {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len())
	case *os.File:
		info, err := v.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return -1
		}
		pos, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return info.Size()
		}
		return info.Size() - pos
	case io.Seeker:
		pos, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return -1
		}
		end, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return -1
		}
		if _, err := v.Seek(pos, io.SeekStart); err != nil {
			return -1
		}
		return end - pos
	default:
		return -1
	}
}
