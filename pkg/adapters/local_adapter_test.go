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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// writeScript creates an executable shell script in dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestLocalExecutorExec(t *testing.T) {
	t.Parallel()

	exec := NewLocalExecutor(5*time.Second, nil)
	stdout, stderr, err := exec.Exec(context.Background(), []string{"sh", "-c", "echo out; echo err >&2; exit 3"})
	require.NoError(t, err, "a non-zero exit status is not an error")
	assert.Equal(t, "out\n", stdout)
	assert.Equal(t, "err\n", stderr)
}

func TestLocalExecutorTimeout(t *testing.T) {
	t.Parallel()

	exec := NewLocalExecutor(200*time.Millisecond, nil)
	start := time.Now()
	stdout, _, err := exec.Exec(context.Background(), []string{"sh", "-c", "echo partial; sleep 10"})
	require.NoError(t, err)
	assert.Equal(t, "partial\n", stdout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLocalExecutorErrors(t *testing.T) {
	t.Parallel()

	exec := NewLocalExecutor(time.Second, nil)

	_, _, err := exec.Exec(context.Background(), []string{"/nonexistent/pvesh"})
	assert.Error(t, err)

	_, _, err = exec.Exec(context.Background(), nil)
	assert.ErrorContains(t, err, "empty argument vector")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = exec.Exec(ctx, []string{"sh", "-c", "sleep 1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalExecutorUpload(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "tmpupload")
	exec := NewLocalExecutor(time.Second, nil)
	require.NoError(t, exec.UploadFileObj(context.Background(), strings.NewReader("payload"), dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestLocalBackendWithFakeShell(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	shell := writeScript(t, dir, "pvesh",
		`printf '%s\n' "$@" > `+argsFile+`
echo '[{"node":"pve1","status":"online"}]'
`)

	svc := pveService(t, "PVE")
	exec := NewLocalExecutor(5*time.Second, nil)
	session := NewCommandSession(&pathExecutor{Executor: exec, shell: shell}, svc, false, nil)

	resp, err := session.Request(context.Background(), "GET", "/nodes", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []any{map[string]any{"node": "pve1", "status": "online"}}, proxmox.JSONSimpleSerializer{}.Loads(resp))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, "get\n/nodes\n--output-format\njson\n", string(args))
}

// pathExecutor runs the management shell from an explicit path.
type pathExecutor struct {
	Executor
	shell string
}

func (e *pathExecutor) Exec(ctx context.Context, argv []string) (string, string, error) {
	argv = append([]string{e.shell}, argv[1:]...)
	return e.Executor.Exec(ctx, argv)
}
