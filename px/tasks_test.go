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
	"errors"
	"testing"
	"time"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
	"github.com/hctamu/goproxmoxer/px"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUPID = "UPID:pve1:0000C530:0A2B3C4D:5F5E1000:qmstart:100:root@pam!automation:"

func TestDecodeUPID(t *testing.T) {
	t.Parallel()

	upid, err := px.DecodeUPID(testUPID)
	require.NoError(t, err)

	assert.Equal(t, testUPID, upid.UPID)
	assert.Equal(t, "pve1", upid.Node)
	assert.Equal(t, int64(0xC530), upid.PID)
	assert.Equal(t, int64(0x0A2B3C4D), upid.PStart)
	assert.Equal(t, time.Unix(1600000000, 0).UTC(), upid.StartTime)
	assert.Equal(t, "qmstart", upid.Type)
	assert.Equal(t, "100", upid.ID)
	assert.Equal(t, "root@pam", upid.User)
	assert.Equal(t, "automation", upid.Token)
	assert.Empty(t, upid.Comment)
}

func TestDecodeUPIDEmptyFields(t *testing.T) {
	t.Parallel()

	upid, err := px.DecodeUPID("UPID:pve1:1:2:3:vzdump::root@pam:note")
	require.NoError(t, err)
	assert.Equal(t, "note", upid.Comment)
	assert.Empty(t, upid.ID)
	assert.Empty(t, upid.Token)
}

func TestDecodeUPIDErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		upid string
	}{
		{"empty", ""},
		{"too few fields", "UPID:pve1:1:2:3"},
		{"too many fields", "UPID:pve1:1:2:3:vzdump::root@pam:note:with:colons"},
		{"wrong prefix", "TASK:pve1:1:2:3:qmstart:100:root@pam:"},
		{"bad pid", "UPID:pve1:zz:2:3:qmstart:100:root@pam:"},
		{"bad pstart", "UPID:pve1:1:zz:3:qmstart:100:root@pam:"},
		{"bad starttime", "UPID:pve1:1:2:zz:qmstart:100:root@pam:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := px.DecodeUPID(tt.upid)
			assert.ErrorIs(t, err, px.ErrInvalidUPID)
		})
	}
}

func TestDecodeLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []px.LogLine
		want  string
	}{
		{"empty", nil, ""},
		{"ordered", []px.LogLine{{N: 1, T: "a"}, {N: 2, T: "b"}}, "a\nb"},
		{"unordered", []px.LogLine{{N: 3, T: "c"}, {N: 1, T: "a"}, {N: 2, T: "b"}}, "a\nb\nc"},
		{"gap", []px.LogLine{{N: 1, T: "a"}, {N: 3, T: "c"}}, "a\n\nc"},
		{"zero line skipped", []px.LogLine{{N: 0, T: "x"}, {N: 1, T: "a"}}, "a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, px.DecodeLog(tt.lines))
		})
	}
}

func TestTaskStatusPath(t *testing.T) {
	t.Parallel()

	statusURL := "/nodes/pve1/tasks/" + testUPID + "/status"
	client, session := newTestClient(map[string][]string{
		"GET " + statusURL: {`{"status":"stopped","exitstatus":"OK","node":"pve1","upid":"` + testUPID + `"}`},
	})

	status, err := client.TaskStatus(context.Background(), testUPID)
	require.NoError(t, err)
	assert.True(t, status.Stopped())
	assert.True(t, status.Succeeded())
	assert.Equal(t, "pve1", status.Node)
	assert.Equal(t, 1, session.count("GET", statusURL))
}

func TestTaskStatusInvalidUPID(t *testing.T) {
	t.Parallel()

	client, session := newTestClient(nil)

	_, err := client.TaskStatus(context.Background(), "not-a-upid")
	require.ErrorIs(t, err, px.ErrInvalidUPID)
	assert.Empty(t, session.calls)
}

func TestTaskLog(t *testing.T) {
	t.Parallel()

	logURL := "/nodes/pve1/tasks/" + testUPID + "/log"
	client, session := newTestClient(map[string][]string{
		"GET " + logURL: {`[{"n":2,"t":"TASK OK"},{"n":1,"t":"starting VM 100"}]`},
	})

	text, err := client.TaskLog(context.Background(), testUPID)
	require.NoError(t, err)
	assert.Equal(t, "starting VM 100\nTASK OK", text)
	assert.Equal(t, proxmox.Params{"limit": 0}, session.find(t, "GET", logURL).params)
}

func TestBlockingStatusWaitsForStop(t *testing.T) {
	t.Parallel()

	statusURL := "/nodes/pve1/tasks/" + testUPID + "/status"
	client, session := newTestClient(map[string][]string{
		"GET " + statusURL: {
			`{"status":"running"}`,
			`{"status":"running"}`,
			`{"status":"stopped","exitstatus":"interrupted by signal"}`,
		},
	})

	status, err := client.BlockingStatus(context.Background(), testUPID, 5*time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, status.Stopped())
	assert.False(t, status.Succeeded())
	assert.Equal(t, 3, session.count("GET", statusURL))
}

func TestBlockingStatusTimeout(t *testing.T) {
	t.Parallel()

	statusURL := "/nodes/pve1/tasks/" + testUPID + "/status"
	client, _ := newTestClient(map[string][]string{
		"GET " + statusURL: {`{"status":"running"}`},
	})

	status, err := client.BlockingStatus(context.Background(), testUPID, 20*time.Millisecond, 5*time.Millisecond)
	assert.Nil(t, status)
	assert.ErrorIs(t, err, px.ErrTaskTimeout)
}

func TestBlockingStatusContextCanceled(t *testing.T) {
	t.Parallel()

	statusURL := "/nodes/pve1/tasks/" + testUPID + "/status"
	client, _ := newTestClient(map[string][]string{
		"GET " + statusURL: {`{"status":"running"}`},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.BlockingStatus(ctx, testUPID, time.Minute, 5*time.Millisecond)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBlockingStatusRequestError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(nil)

	_, err := client.BlockingStatus(context.Background(), testUPID, time.Second, time.Millisecond)
	var resErr *proxmox.ResourceError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, 500, resErr.StatusCode)
}
