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
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"pkt.systems/pslog"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// Executor runs the management shell on the machine hosting the service.
type Executor interface {
	// Exec runs argv and returns its captured output. A non-zero exit status
	// is not an error; err reports only a failure to run the command.
	Exec(ctx context.Context, argv []string) (stdout, stderr string, err error)

	// UploadFileObj copies r to remotePath on the target machine.
	UploadFileObj(ctx context.Context, r io.Reader, remotePath string) error
}

// Ensure the shell types implement the proxmox interfaces
var (
	_ proxmox.Backend = (*CommandBackend)(nil)
	_ proxmox.Session = (*CommandSession)(nil)
)

// tempFileScript prints the path of a fresh temporary file on the target.
var tempFileScript = []string{
	"python3", "-c",
	"import tempfile; import sys; tf = tempfile.NamedTemporaryFile(); sys.stdout.write(tf.name)",
}

var (
	upidPattern       = regexp.MustCompile(`UPID:[\w-]+:[0-9a-fA-F]{8}:[0-9a-fA-F]{8}:[0-9a-fA-F]{8}:\w+:[\w\._-]+:[\w\.@_-]+:\w*`)
	statusLinePattern = regexp.MustCompile(`^\d\d\d [a-zA-Z]`)
)

// CommandSession translates calls into management shell invocations such as
// "pvesh get /nodes --output-format json".
type CommandSession struct {
	executor Executor
	service  proxmox.ServiceDescriptor
	sudo     bool
	logger   pslog.Base
}

// NewCommandSession returns a session running the service's shell through
// executor, prefixed with sudo when requested.
func NewCommandSession(executor Executor, svc proxmox.ServiceDescriptor, sudo bool, logger pslog.Base) *CommandSession {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &CommandSession{executor: executor, service: svc, sudo: sudo, logger: logger}
}

// shellVerb maps an HTTP method to a shell sub-command.
func shellVerb(method string) string {
	switch strings.ToUpper(method) {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "set"
	default:
		return strings.ToLower(method)
	}
}

// Request runs one shell command and synthesizes a Response from its output.
func (s *CommandSession) Request(
	ctx context.Context, method, url string, data, params proxmox.Params,
) (*proxmox.Response, error) {
	url = strings.TrimSpace(url)
	data = copyParams(data)

	var agentArgs []string
	if strings.Contains(url, "/agent/exec") {
		if command, ok := data["command"]; ok {
			delete(data, "command")
			args, err := agentCommand(command)
			if err != nil {
				return nil, err
			}
			agentArgs = args
		}
	}

	if strings.HasSuffix(url, "upload") {
		if err := s.stageUpload(ctx, data); err != nil {
			return nil, err
		}
	}

	if err := rejectFiles(data, params); err != nil {
		return nil, err
	}

	argv := s.argv(url, shellVerb(method), data, params, agentArgs)
	stdout, stderr, err := s.executor.Exec(ctx, argv)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", argv[0], err)
	}

	status := parseStatus(stdout, stderr)
	if status >= 400 {
		s.logger.Debug("proxmox.shell.failed", "status", status, "stderr", stderr)
	}
	if stdout != "" {
		return proxmox.NewResponse([]byte(stdout), status), nil
	}
	return proxmox.NewResponse([]byte(stderr), status), nil
}

// argv builds [sudo] <svc>sh <verb> <path> -k v ... -command a ... <trailing flags>.
func (s *CommandSession) argv(url, verb string, data, params proxmox.Params, agentArgs []string) []string {
	argv := []string{s.service.ShellCommand(), verb, url}
	for _, src := range []proxmox.Params{data, params} {
		for _, key := range sortedKeys(src) {
			for _, value := range formValues(src[key]) {
				argv = append(argv, "-"+key, value)
			}
		}
	}
	for _, arg := range agentArgs {
		argv = append(argv, "-command", arg)
	}
	argv = append(argv, s.service.CLIAdditionalOptions...)
	if s.sudo {
		argv = append([]string{"sudo"}, argv...)
	}
	return argv
}

// rejectFiles fails on readers left in the arguments. Only the filename of
// an upload path is staged on the target.
func rejectFiles(data, params proxmox.Params) error {
	for _, src := range []proxmox.Params{data, params} {
		for _, key := range sortedKeys(src) {
			if _, ok := src[key].(io.Reader); ok {
				return fmt.Errorf("parameter %s cannot be a file outside an upload path", key)
			}
		}
	}
	return nil
}

// stageUpload copies data["filename"] to a temporary file on the target and
// points the call at it.
func (s *CommandSession) stageUpload(ctx context.Context, data proxmox.Params) error {
	r, ok := data["filename"].(io.Reader)
	if !ok {
		return fmt.Errorf("failed to upload: filename must be a readable file, got %T", data["filename"])
	}

	stdout, _, err := s.executor.Exec(ctx, tempFileScript)
	if err != nil {
		return fmt.Errorf("failed to allocate remote temporary file: %w", err)
	}
	tmpFile := strings.TrimSpace(stdout)
	if tmpFile == "" {
		return fmt.Errorf("failed to allocate remote temporary file: empty path")
	}

	s.logger.Debug("proxmox.shell.upload", "tmpfilename", tmpFile, "size", uploadSize(readerSize(r)))
	if err := s.executor.UploadFileObj(ctx, r, tmpFile); err != nil {
		return fmt.Errorf("failed to upload to %s: %w", tmpFile, err)
	}
	data["filename"] = fileName(r, "filename")
	data["tmpfilename"] = tmpFile
	return nil
}

// parseStatus derives an HTTP status from shell output. Any stderr output
// means failure unless a task id was printed; the status is then taken from
// the first stderr line that looks like "500 Internal Server Error".
func parseStatus(stdout, stderr string) int {
	if stderr == "" {
		return http.StatusOK
	}
	if upidPattern.MatchString(stdout) || upidPattern.MatchString(stderr) {
		return http.StatusOK
	}
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !statusLinePattern.MatchString(line) {
			continue
		}
		if code, err := strconv.Atoi(line[:3]); err == nil {
			return code
		}
	}
	return http.StatusInternalServerError
}

func copyParams(in proxmox.Params) proxmox.Params {
	out := make(proxmox.Params, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// CommandBackend runs the management shell through an Executor.
type CommandBackend struct {
	executor Executor
	session  *CommandSession
	target   string
}

// NewCommandBackend wraps executor. target names the machine for display.
func NewCommandBackend(
	executor Executor, svc proxmox.ServiceDescriptor, sudo bool, target string, logger pslog.Base,
) *CommandBackend {
	return &CommandBackend{
		executor: executor,
		session:  NewCommandSession(executor, svc, sudo, logger),
		target:   target,
	}
}

// BaseURL is empty: shell commands take the bare resource path.
func (b *CommandBackend) BaseURL() string { return "" }

// Session returns the shell session.
func (b *CommandBackend) Session() proxmox.Session { return b.session }

// Serializer decodes the unwrapped JSON printed by the shell.
func (b *CommandBackend) Serializer() proxmox.Serializer { return proxmox.JSONSimpleSerializer{} }

// Target returns the host the shell runs on.
func (b *CommandBackend) Target() string { return b.target }

// Tokens returns empty strings.
func (b *CommandBackend) Tokens() (ticket, csrf string) { return "", "" }

// Close closes the executor when it holds a connection.
func (b *CommandBackend) Close() error {
	if closer, ok := b.executor.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
