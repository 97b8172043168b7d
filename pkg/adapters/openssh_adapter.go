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
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"pkt.systems/pslog"

	"github.com/hctamu/goproxmoxer/pkg/config"
)

var _ Executor = (*OpenSSHExecutor)(nil)

// OpenSSHExecutor runs the management shell through the ssh binary, so the
// user's ssh configuration, agent and ControlMaster settings apply.
type OpenSSHExecutor struct {
	Binary       string
	Host         string
	User         string
	Port         int
	ConfigFile   string
	IdentityFile string
	ForwardAgent bool
	Timeout      time.Duration
	logger       pslog.Base
}

// NewOpenSSHExecutor reads the SSH settings from cfg.
func NewOpenSSHExecutor(cfg config.Config, logger pslog.Base) *OpenSSHExecutor {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	binary := cfg.SSHBinary
	if binary == "" {
		binary = "ssh"
	}
	return &OpenSSHExecutor{
		Binary:       binary,
		Host:         cfg.Host,
		User:         cfg.User,
		Port:         cfg.SSHPort(),
		ConfigFile:   cfg.SSHConfigFile,
		IdentityFile: cfg.IdentityFile,
		ForwardAgent: cfg.ForwardAgent,
		Timeout:      cfg.Timeout,
		logger:       logger,
	}
}

// sshArgs returns the ssh invocation running remote on the target.
func (e *OpenSSHExecutor) sshArgs(remote string) []string {
	connectTimeout := int(math.Ceil(e.Timeout.Seconds()))
	if connectTimeout < 1 {
		connectTimeout = 1
	}
	args := []string{e.Binary, "-o", "ConnectTimeout=" + strconv.Itoa(connectTimeout), "-p", strconv.Itoa(e.Port)}
	if e.User != "" {
		args = append(args, "-l", e.User)
	}
	if e.ConfigFile != "" {
		args = append(args, "-F", e.ConfigFile)
	}
	if e.IdentityFile != "" {
		args = append(args, "-i", e.IdentityFile)
	}
	if e.ForwardAgent {
		args = append(args, "-A")
	}
	return append(args, e.Host, "--", remote)
}

// Exec runs argv on the target. The arguments are shell-quoted since the
// remote side hands them to a shell.
func (e *OpenSSHExecutor) Exec(ctx context.Context, argv []string) (string, string, error) {
	res, err := runProcess(ctx, 0, e.logger, nil, e.sshArgs(shellquote.Join(argv...)))
	return res.stdout, res.stderr, err
}

// UploadFileObj streams r into remotePath with "cat".
func (e *OpenSSHExecutor) UploadFileObj(ctx context.Context, r io.Reader, remotePath string) error {
	argv := e.sshArgs("cat > " + shellquote.Join(remotePath))
	res, err := runProcess(ctx, 0, e.logger, r, argv)
	if err != nil {
		return fmt.Errorf("failed to copy to %s:%s: %w", e.Host, remotePath, err)
	}
	if res.exitCode != 0 {
		return fmt.Errorf("failed to copy to %s:%s: exit status %d: %s",
			e.Host, remotePath, res.exitCode, strings.TrimSpace(res.stderr))
	}
	return nil
}
