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

// Package config holds the connection settings shared by every backend.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultStreamingThreshold is the total upload size above which multipart
// bodies are streamed instead of buffered.
const DefaultStreamingThreshold int64 = 10 * 1024 * 1024

// Config describes how to reach a Proxmox service. Fields that do not apply
// to the selected backend are ignored.
type Config struct {
	Host    string `yaml:"host"`
	Backend string `yaml:"backend"`
	Service string `yaml:"service"`
	User    string `yaml:"user"`
	// Port of the API (https) or of the SSH daemon. Zero selects the default.
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
	Sudo    bool          `yaml:"sudo"`

	// HTTPS settings.
	Password           string `yaml:"password"`
	OTP                string `yaml:"otp"`
	TokenName          string `yaml:"token_name"`
	TokenValue         string `yaml:"token_value"`
	Scheme             string `yaml:"scheme"`
	PathPrefix         string `yaml:"path_prefix"`
	Mode               string `yaml:"mode"`
	VerifySSL          bool   `yaml:"verify_ssl"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	StreamingThreshold int64  `yaml:"streaming_threshold"`
	DisableStreaming   bool   `yaml:"disable_streaming"`
	Tracing            bool   `yaml:"tracing"`
	// HTTPClient replaces the client built from the TLS settings.
	HTTPClient *http.Client `yaml:"-"`

	// SSH settings.
	IdentityFile   string `yaml:"identity_file"`
	SSHConfigFile  string `yaml:"ssh_config_file"`
	ForwardAgent   bool   `yaml:"forward_agent"`
	KnownHostsFile string `yaml:"known_hosts_file"`
	SSHBinary      string `yaml:"ssh_binary"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Backend:            "https",
		Service:            "PVE",
		Timeout:            5 * time.Second,
		Scheme:             "https",
		Mode:               "json",
		VerifySSL:          true,
		StreamingThreshold: DefaultStreamingThreshold,
		SSHBinary:          "ssh",
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads environment files without overriding variables that are
// already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from PVE_* environment variables. PVE_API_URL, when
// set, supplies scheme, host, port and path prefix in one value.
func (c *Config) ApplyEnv() error {
	if raw := os.Getenv("PVE_API_URL"); raw != "" {
		if err := c.applyURL(raw); err != nil {
			return err
		}
	}

	strs := map[string]*string{
		"PVE_HOST":             &c.Host,
		"PVE_BACKEND":          &c.Backend,
		"PVE_SERVICE":          &c.Service,
		"PVE_USER":             &c.User,
		"PVE_PASSWORD":         &c.Password,
		"PVE_OTP":              &c.OTP,
		"PVE_TOKEN_NAME":       &c.TokenName,
		"PVE_TOKEN_VALUE":      &c.TokenValue,
		"PVE_IDENTITY_FILE":    &c.IdentityFile,
		"PVE_KNOWN_HOSTS_FILE": &c.KnownHostsFile,
	}
	for name, field := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*field = v
		}
	}

	if v := os.Getenv("PVE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("failed to parse PVE_PORT: %w", err)
		}
		c.Port = port
	}
	if v := os.Getenv("PVE_VERIFY_SSL"); v != "" {
		verify, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("failed to parse PVE_VERIFY_SSL: %w", err)
		}
		c.VerifySSL = verify
	}
	if v := os.Getenv("PVE_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("failed to parse PVE_TIMEOUT: %w", err)
		}
		c.Timeout = timeout
	}
	return nil
}

func (c *Config) applyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse PVE_API_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("failed to parse PVE_API_URL: missing host in %q", raw)
	}
	if u.Scheme != "" {
		c.Scheme = u.Scheme
	}
	c.Host = u.Hostname()
	if strings.Contains(c.Host, ":") {
		c.Host = "[" + c.Host + "]"
	}
	if p := u.Port(); p != "" {
		if c.Port, err = strconv.Atoi(p); err != nil {
			return fmt.Errorf("failed to parse PVE_API_URL port: %w", err)
		}
	}
	prefix := strings.TrimSuffix(u.Path, "/")
	prefix = strings.TrimSuffix(prefix, "/api2/json")
	c.PathPrefix = strings.Trim(prefix, "/")
	return nil
}

// SSHPort is the port the SSH backends dial.
func (c Config) SSHPort() int {
	if c.Port == 0 {
		return 22
	}
	return c.Port
}
