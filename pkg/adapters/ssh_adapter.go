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
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"pkt.systems/pslog"

	"github.com/hctamu/goproxmoxer/pkg/config"
)

var _ Executor = (*SSHExecutor)(nil)

// SSHExecutor runs the management shell over one in-process SSH connection.
// Every command gets a fresh session on that connection.
type SSHExecutor struct {
	client  *ssh.Client
	host    string
	timeout time.Duration
	agent   agent.ExtendedAgent
	// agentConn is the ssh-agent socket behind agent.
	agentConn net.Conn
	forward   bool
	logger    pslog.Base
}

// NewSSHExecutor connects to cfg.Host. It authenticates with the identity
// file and password when configured, and with the running ssh-agent when no
// password is given. Host keys are checked against KnownHostsFile when set.
func NewSSHExecutor(ctx context.Context, cfg config.Config, logger pslog.Base) (*SSHExecutor, error) {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	e := &SSHExecutor{
		host:    strings.Trim(cfg.Host, "[]"),
		timeout: cfg.Timeout,
		forward: cfg.ForwardAgent,
		logger:  logger,
	}

	auth, err := e.authMethods(cfg)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := hostKeyCallback(cfg.KnownHostsFile)
	if err != nil {
		e.closeAgent()
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}

	addr := net.JoinHostPort(e.host, strconv.Itoa(cfg.SSHPort()))
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		e.closeAgent()
		return nil, fmt.Errorf("error dialing %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		e.closeAgent()
		return nil, fmt.Errorf("error creating ssh client: %w", err)
	}
	e.client = ssh.NewClient(sshConn, chans, reqs)

	if e.forward && e.agent != nil {
		if err := agent.ForwardToAgent(e.client, e.agent); err != nil {
			e.client.Close()
			e.closeAgent()
			return nil, fmt.Errorf("error forwarding ssh agent: %w", err)
		}
	}
	logger.Debug("proxmox.ssh.connected", "addr", addr, "user", cfg.User)
	return e, nil
}

func (e *SSHExecutor) authMethods(cfg config.Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.IdentityFile != "" {
		key, err := os.ReadFile(cfg.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("error reading identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && cfg.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(cfg.Password))
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing identity file: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" && (cfg.Password == "" || cfg.ForwardAgent) {
		if conn, err := net.Dial("unix", sock); err == nil {
			e.agentConn = conn
			e.agent = agent.NewClient(conn)
			if cfg.Password == "" {
				methods = append(methods, ssh.PublicKeysCallback(e.agent.Signers))
			}
		} else {
			e.logger.Warn("proxmox.ssh.agent.unavailable", "socket", sock, "error", err)
		}
	}

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	return methods, nil
}

func hostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		//nolint:gosec // Proxmox nodes are commonly reached without a known_hosts entry
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("error reading known hosts: %w", err)
	}
	return callback, nil
}

// Exec runs argv on a new session. When the timeout expires the session is
// closed and the output captured so far is returned without error.
func (e *SSHExecutor) Exec(ctx context.Context, argv []string) (string, string, error) {
	session, err := e.client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("error creating new ssh session: %w", err)
	}
	defer session.Close()

	if e.forward && e.agent != nil {
		if err := agent.RequestAgentForwarding(session); err != nil {
			return "", "", fmt.Errorf("error requesting agent forwarding: %w", err)
		}
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(shellquote.Join(argv...))
	}()

	select {
	case err = <-done:
	case <-runCtx.Done():
		session.Close()
		<-done
		if ctx.Err() != nil {
			return stdout.String(), stderr.String(), ctx.Err()
		}
		e.logger.Warn("proxmox.shell.timeout", "command", argv[0], "timeout", e.timeout.String())
		return stdout.String(), stderr.String(), nil
	}

	var exitErr *ssh.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", "", fmt.Errorf("error executing command: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

// UploadFileObj writes r to remotePath over SFTP.
func (e *SSHExecutor) UploadFileObj(_ context.Context, r io.Reader, remotePath string) error {
	client, err := sftp.NewClient(e.client)
	if err != nil {
		return fmt.Errorf("error starting sftp: %w", err)
	}
	defer client.Close()

	dest, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", remotePath, err)
	}
	if _, err := io.Copy(dest, r); err != nil {
		dest.Close()
		return fmt.Errorf("error writing %s: %w", remotePath, err)
	}
	return dest.Close()
}

// Close closes the SSH connection and the ssh-agent socket.
func (e *SSHExecutor) Close() error {
	return errors.Join(e.client.Close(), e.closeAgent())
}

func (e *SSHExecutor) closeAgent() error {
	if e.agentConn == nil {
		return nil
	}
	err := e.agentConn.Close()
	e.agentConn = nil
	return err
}
