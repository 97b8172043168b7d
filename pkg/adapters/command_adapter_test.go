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
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// execResult is one scripted answer of fakeExecutor.
type execResult struct {
	stdout string
	stderr string
	err    error
}

// fakeExecutor records every command and answers from a script. Once the
// script is exhausted it answers with fallback.
type fakeExecutor struct {
	script   []execResult
	fallback execResult
	calls    [][]string
	uploads  map[string]string
	closed   bool
}

func (e *fakeExecutor) Exec(_ context.Context, argv []string) (string, string, error) {
	e.calls = append(e.calls, argv)
	res := e.fallback
	if len(e.script) > 0 {
		res, e.script = e.script[0], e.script[1:]
	}
	return res.stdout, res.stderr, res.err
}

func (e *fakeExecutor) UploadFileObj(_ context.Context, r io.Reader, remotePath string) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if e.uploads == nil {
		e.uploads = map[string]string{}
	}
	e.uploads[remotePath] = string(body)
	return nil
}

func (e *fakeExecutor) Close() error {
	e.closed = true
	return nil
}

func (e *fakeExecutor) lastCall(t *testing.T) []string {
	t.Helper()
	require.NotEmpty(t, e.calls)
	return e.calls[len(e.calls)-1]
}

func TestCommandSessionArgv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		service string
		sudo    bool
		method  string
		url     string
		data    proxmox.Params
		params  proxmox.Params
		want    []string
	}{
		{
			name:    "sudo delete",
			service: "PVE",
			sudo:    true,
			method:  http.MethodDelete,
			url:     "/nodes/proxmox/openvz/100",
			want:    []string{"sudo", "pvesh", "delete", "/nodes/proxmox/openvz/100", "--output-format", "json"},
		},
		{
			name:    "get with params",
			service: "PVE",
			method:  http.MethodGet,
			url:     "/cluster/resources",
			params:  proxmox.Params{"type": "vm"},
			want:    []string{"pvesh", "get", "/cluster/resources", "-type", "vm", "--output-format", "json"},
		},
		{
			name:    "post maps to create with sorted data then params",
			service: "PVE",
			method:  http.MethodPost,
			url:     "/nodes/n1/qemu",
			data:    proxmox.Params{"vmid": 100, "name": "web", "start": true},
			params:  proxmox.Params{"full": false},
			want: []string{
				"pvesh", "create", "/nodes/n1/qemu",
				"-name", "web", "-start", "1", "-vmid", "100", "-full", "0",
				"--output-format", "json",
			},
		},
		{
			name:    "put maps to set",
			service: "PVE",
			method:  http.MethodPut,
			url:     " /pools/p1 ",
			data:    proxmox.Params{"comment": "two words"},
			want:    []string{"pvesh", "set", "/pools/p1", "-comment", "two words", "--output-format", "json"},
		},
		{
			name:    "slice values repeat the flag",
			service: "PVE",
			method:  http.MethodPut,
			url:     "/access/acl",
			data:    proxmox.Params{"roles": []string{"PVEAdmin", "PVEAuditor"}},
			want: []string{
				"pvesh", "set", "/access/acl", "-roles", "PVEAdmin", "-roles", "PVEAuditor",
				"--output-format", "json",
			},
		},
		{
			name:    "pmg has no trailing flags",
			service: "PMG",
			method:  http.MethodGet,
			url:     "/version",
			want:    []string{"pmgsh", "get", "/version"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exec := &fakeExecutor{fallback: execResult{stdout: "{}"}}
			session := NewCommandSession(exec, pveService(t, tt.service), tt.sudo, nil)

			_, err := session.Request(context.Background(), tt.method, tt.url, tt.data, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, exec.lastCall(t))
		})
	}
}

func TestCommandSessionAgentExec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command any
		want    []string
	}{
		{"string is shell split", `echo "hello world"`, []string{"-command", "echo", "-command", "hello world"}},
		{"slice kept", []string{"uname", "-a"}, []string{"-command", "uname", "-command", "-a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exec := &fakeExecutor{fallback: execResult{stdout: `{"pid":42}`}}
			session := NewCommandSession(exec, pveService(t, "PVE"), false, nil)
			data := proxmox.Params{"command": tt.command, "input-data": "x"}

			_, err := session.Request(context.Background(), http.MethodPost, "/nodes/n1/qemu/100/agent/exec", data, nil)
			require.NoError(t, err)

			want := append([]string{"pvesh", "create", "/nodes/n1/qemu/100/agent/exec", "-input-data", "x"}, tt.want...)
			want = append(want, "--output-format", "json")
			assert.Equal(t, want, exec.lastCall(t))
			assert.Contains(t, data, "command", "caller data must not be mutated")
		})
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stdout string
		stderr string
		want   int
	}{
		{"empty stderr", `{"a":1}`, "", 200},
		{"lock then status", "", "trying to acquire lock...OK\n500 Internal Server Error", 500},
		{"first status line wins", "", "400 Parameter verification failed.\n500 later", 400},
		{"no status line", "", "something went wrong", 500},
		{"status needs a word", "", "404", 500},
		{"task id in stdout", "UPID:pve1:003CD2C9:09F4C2B3:63F4A1E8:vzdump:100:root@pam:", "INFO: starting", 200},
		{"task id in stderr", "", "UPID:pve1:003CD2C9:09F4C2B3:63F4A1E8:qmstart:100:root@pam:\n", 200},
		{"crlf lines", "", "warning\r\n403 Permission check failed\r\n", 403},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseStatus(tt.stdout, tt.stderr))
		})
	}
}

func TestCommandSessionResponses(t *testing.T) {
	t.Parallel()

	t.Run("stdout is the content", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{fallback: execResult{stdout: `[{"node":"pve1"}]`}}
		resp, err := NewCommandSession(exec, pveService(t, "PVE"), false, nil).
			Request(context.Background(), http.MethodGet, "/nodes", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, `[{"node":"pve1"}]`, resp.Text())
		assert.Equal(t, "application/json", resp.Headers["content-type"])
		assert.Empty(t, resp.Reason)
	})

	t.Run("stderr is the content when stdout is empty", func(t *testing.T) {
		t.Parallel()
		stderr := "trying to acquire lock...OK\n500 Internal Server Error"
		exec := &fakeExecutor{fallback: execResult{stderr: stderr}}
		pve := proxmox.NewAPI(proxmox.BackendLocal, NewCommandBackend(exec, pveService(t, "PVE"), false, "localhost", nil))

		_, err := pve.Nodes("n1").Resource("qemu").Delete(context.Background(), nil, 100)
		var resErr *proxmox.ResourceError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, 500, resErr.StatusCode)
		assert.Equal(t, stderr, resErr.Content)
	})

	t.Run("exec failure", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{fallback: execResult{err: errors.New("connection reset")}}
		_, err := NewCommandSession(exec, pveService(t, "PVE"), false, nil).
			Request(context.Background(), http.MethodGet, "/nodes", nil, nil)
		assert.ErrorContains(t, err, "failed to run pvesh: connection reset")
	})
}

func TestCommandSessionUpload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "debian.iso")
	require.NoError(t, os.WriteFile(path, []byte("iso bytes"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	exec := &fakeExecutor{
		script:   []execResult{{stdout: "/tmp/tmpx1y2z3\n"}},
		fallback: execResult{stdout: `"UPID:pve1:00000001:00000002:00000003:imgcopy::root@pam:"`},
	}
	session := NewCommandSession(exec, pveService(t, "PVE"), false, nil)

	resp, err := session.Request(context.Background(), http.MethodPost, "/nodes/n1/storage/local/upload",
		proxmox.Params{"content": "iso", "filename": file}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	require.Len(t, exec.calls, 2)
	assert.Equal(t, tempFileScript, exec.calls[0])
	assert.Equal(t, map[string]string{"/tmp/tmpx1y2z3": "iso bytes"}, exec.uploads)
	assert.Equal(t, []string{
		"pvesh", "create", "/nodes/n1/storage/local/upload",
		"-content", "iso", "-filename", "debian.iso", "-tmpfilename", "/tmp/tmpx1y2z3",
		"--output-format", "json",
	}, exec.calls[1])
}

func TestCommandSessionUploadNeedsReader(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	_, err := NewCommandSession(exec, pveService(t, "PVE"), false, nil).
		Request(context.Background(), http.MethodPost, "/nodes/n1/storage/local/upload",
			proxmox.Params{"filename": "debian.iso"}, nil)
	assert.ErrorContains(t, err, "filename must be a readable file")
	assert.Empty(t, exec.calls)
}

func TestCommandSessionRejectsFilesOutsideUpload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		url    string
		data   proxmox.Params
		params proxmox.Params
		want   string
	}{
		{
			name: "data on a config path",
			url:  "/nodes/n1/qemu/100/config",
			data: proxmox.Params{"description": strings.NewReader("notes")},
			want: "parameter description cannot be a file outside an upload path",
		},
		{
			name:   "query parameter",
			url:    "/nodes/n1/storage",
			params: proxmox.Params{"content": strings.NewReader("iso")},
			want:   "parameter content cannot be a file outside an upload path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			exec := &fakeExecutor{}
			_, err := NewCommandSession(exec, pveService(t, "PVE"), false, nil).
				Request(context.Background(), http.MethodPost, tt.url, tt.data, tt.params)
			assert.EqualError(t, err, tt.want)
			assert.Empty(t, exec.calls)
		})
	}
}

func TestShellVerb(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "create", shellVerb("post"))
	assert.Equal(t, "set", shellVerb("PUT"))
	assert.Equal(t, "get", shellVerb("GET"))
	assert.Equal(t, "delete", shellVerb("DELETE"))
}

func TestCommandBackend(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	backend := NewCommandBackend(exec, pveService(t, "PVE"), false, "pve1", nil)

	assert.Empty(t, backend.BaseURL())
	assert.Equal(t, "pve1", backend.Target())
	assert.IsType(t, proxmox.JSONSimpleSerializer{}, backend.Serializer())
	ticket, csrf := backend.Tokens()
	assert.Empty(t, ticket)
	assert.Empty(t, csrf)

	require.NoError(t, backend.Close())
	assert.True(t, exec.closed)
	assert.True(t, strings.HasPrefix(proxmox.NewAPI(proxmox.BackendSSH, backend).String(), "ProxmoxAPI (ssh backend for pve1)"))
}
