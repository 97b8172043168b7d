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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"pkt.systems/pslog"
)

// waitDelay bounds how long output pipes are drained after a kill.
const waitDelay = 500 * time.Millisecond

var _ Executor = (*LocalExecutor)(nil)

// LocalExecutor runs the management shell on this machine.
type LocalExecutor struct {
	// Timeout is the wall-clock limit of one command. Zero means none.
	Timeout time.Duration
	logger  pslog.Base
}

// NewLocalExecutor returns an executor killing commands after timeout.
func NewLocalExecutor(timeout time.Duration, logger pslog.Base) *LocalExecutor {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &LocalExecutor{Timeout: timeout, logger: logger}
}

// Exec runs argv. When the timeout expires the process is killed and the
// output captured so far is returned without error.
func (e *LocalExecutor) Exec(ctx context.Context, argv []string) (string, string, error) {
	res, err := runProcess(ctx, e.Timeout, e.logger, nil, argv)
	return res.stdout, res.stderr, err
}

// UploadFileObj copies r to the local path remotePath.
func (e *LocalExecutor) UploadFileObj(_ context.Context, r io.Reader, remotePath string) error {
	dest, err := os.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", remotePath, err)
	}
	if _, err := io.Copy(dest, r); err != nil {
		dest.Close()
		return fmt.Errorf("failed to write %s: %w", remotePath, err)
	}
	return dest.Close()
}

// processResult is the captured outcome of one process.
type processResult struct {
	stdout   string
	stderr   string
	exitCode int
}

// runProcess runs argv with optional stdin and a wall-clock timeout. Exit
// statuses are not errors; the caller decides from the output.
func runProcess(
	ctx context.Context, timeout time.Duration, logger pslog.Base, stdin io.Reader, argv []string,
) (processResult, error) {
	if len(argv) == 0 {
		return processResult{}, errors.New("failed to run command: empty argument vector")
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	res := processResult{stdout: stdout.String(), stderr: stderr.String()}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("proxmox.shell.timeout", "command", argv[0], "timeout", timeout.String())
		res.exitCode = -1
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.exitCode = exitErr.ExitCode()
	case err != nil:
		return processResult{}, err
	}
	return res, nil
}
