// Copyright 2025, Pulumi Corporation.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

// 	http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package px

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
	"pkt.systems/pslog"
)

// ErrTaskTimeout is returned by BlockingStatus when the task is still running
// after the timeout elapsed.
var ErrTaskTimeout = errors.New("task did not stop before the timeout")

// ErrInvalidUPID is returned when a task id does not have the UPID layout.
var ErrInvalidUPID = errors.New("invalid UPID")

const (
	// DefaultTaskTimeout bounds BlockingStatus when no timeout is given.
	DefaultTaskTimeout = 300 * time.Second
	// DefaultPollInterval is the wait between two status polls.
	DefaultPollInterval = time.Second
)

// UPID is a decoded unique process id of a Proxmox task, in the form
// UPID:node:pid:pstart:starttime:type:id:user:comment
type UPID struct {
	UPID      string
	Node      string
	PID       int64
	PStart    int64
	StartTime time.Time
	Type      string
	ID        string
	User      string
	Token     string
	Comment   string
}

// DecodeUPID splits a task id into exactly nine fields. pid, pstart and
// starttime are hexadecimal. The user field carries an optional "!token"
// suffix.
func DecodeUPID(upid string) (*UPID, error) {
	parts := strings.Split(upid, ":")
	if len(parts) != 9 || parts[0] != "UPID" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUPID, upid)
	}

	hex := func(field, value string) (int64, error) {
		n, err := strconv.ParseInt(value, 16, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad %s %q", ErrInvalidUPID, field, value)
		}
		return n, nil
	}

	pid, err := hex("pid", parts[2])
	if err != nil {
		return nil, err
	}
	pstart, err := hex("pstart", parts[3])
	if err != nil {
		return nil, err
	}
	start, err := hex("starttime", parts[4])
	if err != nil {
		return nil, err
	}

	user, token, _ := strings.Cut(parts[7], "!")

	return &UPID{
		UPID:      upid,
		Node:      parts[1],
		PID:       pid,
		PStart:    pstart,
		StartTime: time.Unix(start, 0).UTC(),
		Type:      parts[5],
		ID:        parts[6],
		User:      user,
		Token:     token,
		Comment:   parts[8],
	}, nil
}

// LogLine is one entry of a task log as returned by /nodes/{node}/tasks/{upid}/log.
type LogLine struct {
	N int    `json:"n"`
	T string `json:"t"`
}

// DecodeLog orders log lines by their line number and joins them.
func DecodeLog(lines []LogLine) string {
	size := len(lines)
	for _, line := range lines {
		if line.N > size {
			size = line.N
		}
	}

	out := make([]string, size)
	for _, line := range lines {
		if line.N < 1 {
			continue
		}
		out[line.N-1] = line.T
	}
	return strings.Join(out, "\n")
}

// TaskStatus is the payload of /nodes/{node}/tasks/{upid}/status.
type TaskStatus struct {
	UPID       string `json:"upid"`
	Node       string `json:"node"`
	PID        int64  `json:"pid"`
	PStart     int64  `json:"pstart"`
	StartTime  int64  `json:"starttime"`
	Type       string `json:"type"`
	ID         string `json:"id"`
	User       string `json:"user"`
	Status     string `json:"status"`
	ExitStatus string `json:"exitstatus,omitempty"`
}

// Stopped reports whether the task has finished.
func (s *TaskStatus) Stopped() bool {
	return s.Status == "stopped"
}

// Succeeded reports whether the task finished with exit status OK.
func (s *TaskStatus) Succeeded() bool {
	return s.Stopped() && s.ExitStatus == "OK"
}

func (c *Client) task(upid string) (*proxmox.Resource, error) {
	decoded, err := DecodeUPID(upid)
	if err != nil {
		return nil, err
	}
	return c.Nodes(decoded.Node).Resource("tasks").Call(upid), nil
}

// TaskStatus fetches the current status of the task.
func (c *Client) TaskStatus(ctx context.Context, upid string) (*TaskStatus, error) {
	res, err := c.task(upid)
	if err != nil {
		return nil, err
	}

	payload, err := res.Get(ctx, nil, "status")
	if err != nil {
		return nil, fmt.Errorf("failed to get status of task %s: %w", upid, err)
	}

	status := &TaskStatus{}
	if err := proxmox.Unmarshal(payload, status); err != nil {
		return nil, err
	}
	return status, nil
}

// TaskLog fetches the full log of the task and joins it into one string.
func (c *Client) TaskLog(ctx context.Context, upid string) (string, error) {
	res, err := c.task(upid)
	if err != nil {
		return "", err
	}

	payload, err := res.Get(ctx, proxmox.Params{"limit": 0}, "log")
	if err != nil {
		return "", fmt.Errorf("failed to get log of task %s: %w", upid, err)
	}

	var lines []LogLine
	if err := proxmox.Unmarshal(payload, &lines); err != nil {
		return "", err
	}
	return DecodeLog(lines), nil
}

// BlockingStatus polls the task status every interval until the task stops.
// It returns ErrTaskTimeout once timeout elapsed without the task stopping.
// Zero durations select DefaultTaskTimeout and DefaultPollInterval.
func (c *Client) BlockingStatus(
	ctx context.Context, upid string, timeout, interval time.Duration,
) (*TaskStatus, error) {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var logger pslog.Base = pslog.NoopLogger()
	if l := pslog.LoggerFromContext(ctx); l != nil {
		logger = l
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.TaskStatus(ctx, upid)
		if err != nil {
			return nil, err
		}
		if status.Stopped() {
			logger.Debug("px.task.stopped", "upid", upid, "exitstatus", status.ExitStatus)
			return status, nil
		}
		if !time.Now().Before(deadline) {
			logger.Warn("px.task.timeout", "upid", upid, "timeout", timeout)
			return nil, fmt.Errorf("%w: %s after %s", ErrTaskTimeout, upid, timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
