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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/hctamu/goproxmoxer/pkg/client"
	"github.com/hctamu/goproxmoxer/pkg/config"
	"github.com/hctamu/goproxmoxer/pkg/metrics"
	"github.com/hctamu/goproxmoxer/px"
)

// app carries the state shared by the subcommands of one invocation.
type app struct {
	v        *viper.Viper
	registry *prometheus.Registry
	api      *px.Client
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "proxmoxctl",
		Short:         "Call the Proxmox VE, Mail Gateway and Backup Server APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.finish(cmd.OutOrStdout())
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "YAML config file")
	flags.StringSlice("env-file", []string{".env"}, "environment files loaded before PVE_* variables are read")
	flags.StringP("host", "H", "", "host[:port] of the service")
	flags.StringP("backend", "b", "", "https, local, openssh or ssh")
	flags.String("service", "", "PVE, PMG or PBS")
	flags.StringP("user", "u", "", "user, e.g. root@pam")
	flags.String("password", "", "password for ticket authentication")
	flags.String("otp", "", "one time password for two factor authentication")
	flags.String("token-name", "", "API token name")
	flags.String("token-value", "", "API token secret")
	flags.IntP("port", "p", 0, "API or SSH port")
	flags.String("scheme", "", "http or https")
	flags.Bool("verify-ssl", true, "verify the server certificate")
	flags.Duration("timeout", 0, "request timeout")
	flags.StringP("identity-file", "i", "", "SSH private key")
	flags.String("known-hosts-file", "", "SSH known_hosts file")
	flags.Bool("sudo", false, "run the management shell through sudo")
	flags.String("log-level", "none", "log level (none, trace, debug, info, warn, error)")
	flags.StringP("output", "o", "json", "output format (json or table)")
	flags.Bool("metrics", false, "print request metrics after the command")

	flags.VisitAll(func(flag *pflag.Flag) {
		if err := a.v.BindPFlag(flag.Name, flag); err != nil {
			panic(err)
		}
	})
	a.v.SetEnvPrefix("PROXMOXCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newCallCommand(a, "get", "GET a resource", nil),
		newCallCommand(a, "create", "POST to a resource", []string{"post"}),
		newCallCommand(a, "set", "PUT to a resource", []string{"put"}),
		newCallCommand(a, "delete", "DELETE a resource", []string{"rm"}),
		newTaskCommand(a),
		newVMCommand(a),
	)
	return root
}

// loadConfig layers the YAML file, the environment files, PVE_* variables and
// finally flags or PROXMOXCTL_* variables.
func (a *app) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := config.LoadDotEnv(a.v.GetStringSlice("env-file")...); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	for key, field := range map[string]*string{
		"host":             &cfg.Host,
		"backend":          &cfg.Backend,
		"service":          &cfg.Service,
		"user":             &cfg.User,
		"password":         &cfg.Password,
		"otp":              &cfg.OTP,
		"token-name":       &cfg.TokenName,
		"token-value":      &cfg.TokenValue,
		"scheme":           &cfg.Scheme,
		"identity-file":    &cfg.IdentityFile,
		"known-hosts-file": &cfg.KnownHostsFile,
	} {
		if a.v.IsSet(key) {
			*field = a.v.GetString(key)
		}
	}
	if a.v.IsSet("port") {
		cfg.Port = a.v.GetInt("port")
	}
	if a.v.IsSet("verify-ssl") {
		cfg.VerifySSL = a.v.GetBool("verify-ssl")
	}
	if a.v.IsSet("sudo") {
		cfg.Sudo = a.v.GetBool("sudo")
	}
	if a.v.IsSet("timeout") {
		cfg.Timeout = a.v.GetDuration("timeout")
	}
	return cfg, nil
}

func (a *app) logger(ctx context.Context) (pslog.Base, error) {
	name := strings.ToLower(strings.TrimSpace(a.v.GetString("log-level")))
	if name == "" || name == "none" || name == "off" {
		return nil, nil
	}
	level, ok := pslog.ParseLevel(name)
	if !ok {
		return nil, fmt.Errorf("invalid log level %q", name)
	}
	return pslog.NewWithOptions(ctx, os.Stderr, pslog.Options{
		Mode:     pslog.ModeConsole,
		MinLevel: level,
	}).With("app", "proxmoxctl"), nil
}

// connect builds the client on first use.
func (a *app) connect(ctx context.Context) (*px.Client, error) {
	if a.api != nil {
		return a.api, nil
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	var opts []client.Option
	logger, err := a.logger(ctx)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		opts = append(opts, client.WithLogger(logger))
	}
	if a.v.GetBool("metrics") {
		a.registry = prometheus.NewRegistry()
		collector, err := metrics.NewCollector(a.registry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithObserver(collector))
	}

	api, err := client.New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.api = px.New(api)
	return a.api, nil
}

func (a *app) finish(out io.Writer) error {
	if a.api == nil {
		return nil
	}
	defer func() {
		_ = a.api.Close()
	}()
	if a.registry == nil {
		return nil
	}
	return printMetrics(out, a.registry)
}
