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
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"pkt.systems/pslog"

	"github.com/hctamu/goproxmoxer/pkg/config"
	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// Ensure the HTTPS types implement the proxmox interfaces
var (
	_ proxmox.Backend = (*HTTPSBackend)(nil)
	_ proxmox.Session = (*HTTPSession)(nil)
)

// HTTPSBackend talks to the JSON REST API.
type HTTPSBackend struct {
	baseURL string
	session *HTTPSession
}

// NewHTTPSBackend resolves the base URL, builds the HTTP client and selects
// the credential: an API token when a token name is configured, otherwise a
// ticket obtained by logging in with the password.
func NewHTTPSBackend(
	ctx context.Context, cfg config.Config, svc proxmox.ServiceDescriptor, logger pslog.Base,
) (*HTTPSBackend, error) {
	if logger == nil {
		logger = pslog.NoopLogger()
	}

	mode := cfg.Mode
	if mode == "" {
		mode = "json"
	}
	if mode != "json" {
		return nil, &proxmox.ConfigError{Message: fmt.Sprintf("Unsupported mode %s", mode)}
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	host, port := parseHost(cfg.Host, cfg.Port, svc.DefaultPort)
	baseURL := fmt.Sprintf("%s://%s:%d", scheme, host, port)
	if prefix := strings.Trim(cfg.PathPrefix, "/"); prefix != "" {
		baseURL += "/" + prefix
	}
	baseURL += "/api2/" + mode

	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	var auth Credential
	switch {
	case cfg.TokenName != "":
		if !svc.SupportsAuth(proxmox.AuthToken) {
			return nil, &proxmox.ConfigError{Message: fmt.Sprintf("%s does not support API Token authentication", svc.Name)}
		}
		auth = NewTokenAuth(svc.Name, cfg.User, cfg.TokenName, cfg.TokenValue, svc.TokenSeparator)
	case cfg.Password != "":
		if !svc.SupportsAuth(proxmox.AuthPassword) {
			return nil, &proxmox.ConfigError{Message: fmt.Sprintf("%s does not support password authentication", svc.Name)}
		}
		logger.Debug("proxmox.https.login", "user", cfg.User, "url", baseURL)
		auth, err = NewTicketAuth(ctx, client, baseURL, svc.Name, cfg.User, cfg.Password, cfg.OTP)
		if err != nil {
			return nil, err
		}
	default:
		return nil, &proxmox.ConfigError{Message: "No valid authentication credentials were supplied"}
	}

	return &HTTPSBackend{
		baseURL: baseURL,
		session: NewHTTPSession(client, auth, cfg, logger),
	}, nil
}

// parseHost splits an optional port off host. Bare IPv6 addresses are
// bracketed. A numeric port in host wins over port, which in turn wins over
// defaultPort.
func parseHost(host string, port, defaultPort int) (string, int) {
	hostPort := ""
	if strings.Count(host, ":") > 1 {
		if strings.HasPrefix(host, "[") {
			if strings.Contains(host, "]:") {
				i := strings.LastIndex(host, ":")
				host, hostPort = host[:i], host[i+1:]
			}
		} else {
			host = "[" + host + "]"
		}
	} else if h, p, ok := strings.Cut(host, ":"); ok {
		host, hostPort = h, p
	}

	if isDigits(hostPort) {
		if n, err := strconv.Atoi(hostPort); err == nil {
			port = n
		}
	}
	if port == 0 {
		port = defaultPort
	}
	return host, port
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func newHTTPClient(cfg config.Config) (*http.Client, error) {
	var client *http.Client
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		client = &c
	} else {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		//nolint:gosec // Proxmox nodes commonly use self-signed certificates
		tlsConfig := &tls.Config{InsecureSkipVerify: !cfg.VerifySSL}
		if cfg.CertFile != "" {
			keyFile := cfg.KeyFile
			if keyFile == "" {
				keyFile = cfg.CertFile
			}
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, keyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		transport.TLSClientConfig = tlsConfig
		client = &http.Client{Transport: transport, Timeout: cfg.Timeout}
	}

	if cfg.Tracing {
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client.Transport = otelhttp.NewTransport(base)
	}
	return client, nil
}

// BaseURL returns <scheme>://host:port[/prefix]/api2/json.
func (b *HTTPSBackend) BaseURL() string { return b.baseURL }

// Session returns the HTTP session.
func (b *HTTPSBackend) Session() proxmox.Session { return b.session }

// Serializer returns the envelope-unwrapping JSON serializer.
func (b *HTTPSBackend) Serializer() proxmox.Serializer { return proxmox.JSONSerializer{} }

// Target returns the base URL.
func (b *HTTPSBackend) Target() string { return b.baseURL }

// Tokens returns the ticket and CSRF token of password authentication.
func (b *HTTPSBackend) Tokens() (ticket, csrf string) { return b.session.auth.Tokens() }

// Close drops idle keep-alive connections.
func (b *HTTPSBackend) Close() error {
	b.session.client.CloseIdleConnections()
	return nil
}

// HTTPSession sends calls as HTTP requests.
type HTTPSession struct {
	client             *http.Client
	auth               Credential
	serializer         proxmox.Serializer
	streamingThreshold int64
	disableStreaming   bool
	logger             pslog.Base
}

// NewHTTPSession builds a session around an HTTP client. A nil auth sends
// unauthenticated requests.
func NewHTTPSession(client *http.Client, auth Credential, cfg config.Config, logger pslog.Base) *HTTPSession {
	if auth == nil {
		auth = NoAuth{}
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	threshold := cfg.StreamingThreshold
	if threshold <= 0 {
		threshold = config.DefaultStreamingThreshold
	}
	return &HTTPSession{
		client:             client,
		auth:               auth,
		serializer:         proxmox.JSONSerializer{},
		streamingThreshold: threshold,
		disableStreaming:   cfg.DisableStreaming,
		logger:             logger,
	}
}

// Request performs one HTTP round trip. Credentials are stamped before the
// body is encoded, so a failed renewal never starts a streaming upload.
func (s *HTTPSession) Request(
	ctx context.Context, method, url string, data, params proxmox.Params,
) (*proxmox.Response, error) {
	path := url
	if len(params) > 0 {
		query, err := newFormBody(path, params)
		if err != nil {
			return nil, err
		}
		if query.hasFiles() {
			return nil, fmt.Errorf("query parameter %s cannot be a file", query.files[0].field)
		}
		url += "?" + query.fields.Encode()
	}

	var form *formBody
	if len(data) > 0 {
		var err error
		if form, err = newFormBody(path, data); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", s.serializer.AcceptTypes())
	if err := s.auth.Stamp(ctx, req); err != nil {
		return nil, err
	}

	if form != nil {
		if form.hasFiles() {
			s.logger.Debug("proxmox.https.upload",
				"url", url, "files", len(form.files), "size", uploadSize(form.total),
				"streamed", form.streamed(s.streamingThreshold, s.disableStreaming))
		}
		body, contentType, err := form.encode(s.streamingThreshold, s.disableStreaming)
		if err != nil {
			return nil, err
		}
		setBody(req, body)
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[strings.ToLower(key)] = resp.Header.Get(key)
	}
	return &proxmox.Response{
		StatusCode: resp.StatusCode,
		Content:    content,
		Reason:     strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))),
		Headers:    headers,
	}, nil
}

// setBody attaches body the way http.NewRequest would. Pipes stay
// unsized and are sent chunked; the transport closes them.
func setBody(req *http.Request, body io.Reader) {
	if sized, ok := body.(interface{ Len() int }); ok {
		if sized.Len() == 0 {
			req.Body = http.NoBody
			return
		}
		req.ContentLength = int64(sized.Len())
	}
	rc, ok := body.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(body)
	}
	req.Body = rc
}

func uploadSize(total int64) string {
	if total < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(total))
}
