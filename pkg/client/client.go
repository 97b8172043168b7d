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

// Package client builds a proxmox.API from a config.Config.
package client

import (
	"context"
	"fmt"
	"strings"

	"pkt.systems/pslog"

	"github.com/hctamu/goproxmoxer/pkg/adapters"
	"github.com/hctamu/goproxmoxer/pkg/config"
	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// backendFactory builds the transport of one backend kind.
type backendFactory func(
	ctx context.Context, cfg config.Config, svc proxmox.ServiceDescriptor, logger pslog.Base,
) (proxmox.Backend, error)

// backends is read-only after package initialization.
var backends = map[proxmox.BackendKind]backendFactory{
	proxmox.BackendHTTPS: func(
		ctx context.Context, cfg config.Config, svc proxmox.ServiceDescriptor, logger pslog.Base,
	) (proxmox.Backend, error) {
		backend, err := adapters.NewHTTPSBackend(ctx, cfg, svc, logger)
		if err != nil {
			return nil, err
		}
		return backend, nil
	},
	proxmox.BackendLocal: func(
		_ context.Context, cfg config.Config, svc proxmox.ServiceDescriptor, logger pslog.Base,
	) (proxmox.Backend, error) {
		executor := adapters.NewLocalExecutor(cfg.Timeout, logger)
		return adapters.NewCommandBackend(executor, svc, cfg.Sudo, "localhost", logger), nil
	},
	proxmox.BackendOpenSSH: func(
		_ context.Context, cfg config.Config, svc proxmox.ServiceDescriptor, logger pslog.Base,
	) (proxmox.Backend, error) {
		executor := adapters.NewOpenSSHExecutor(cfg, logger)
		return adapters.NewCommandBackend(executor, svc, cfg.Sudo, cfg.Host, logger), nil
	},
	proxmox.BackendSSH: func(
		ctx context.Context, cfg config.Config, svc proxmox.ServiceDescriptor, logger pslog.Base,
	) (proxmox.Backend, error) {
		executor, err := adapters.NewSSHExecutor(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return adapters.NewCommandBackend(executor, svc, cfg.Sudo, cfg.Host, logger), nil
	},
}

type options struct {
	logger   pslog.Base
	observer proxmox.RequestObserver
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger used by the API and its transport.
func WithLogger(logger pslog.Base) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithObserver registers an observer notified after every call.
func WithObserver(observer proxmox.RequestObserver) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// New validates the service and backend of cfg and connects the backend.
// Password authentication over https logs in before New returns, and the ssh
// backend dials its connection.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*proxmox.API, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		if logger := pslog.LoggerFromContext(ctx); logger != nil {
			o.logger = logger
		}
	}
	var apiOpts []proxmox.Option
	if o.logger != nil {
		apiOpts = append(apiOpts, proxmox.WithLogger(o.logger))
	} else {
		o.logger = pslog.NoopLogger()
	}
	if o.observer != nil {
		apiOpts = append(apiOpts, proxmox.WithObserver(o.observer))
	}

	svc, err := proxmox.LookupService(cfg.Service)
	if err != nil {
		return nil, err
	}
	name := strings.ToLower(cfg.Backend)
	kind, err := proxmox.ParseBackendKind(name)
	if err != nil || !svc.SupportsBackend(kind) {
		return nil, &proxmox.ConfigError{Message: fmt.Sprintf("%s service does not support %s backend", svc.Name, name)}
	}
	if cfg.Host != "" && kind == proxmox.BackendLocal {
		return nil, &proxmox.ConfigError{Message: "local backend does not support host keyword"}
	}

	factory, ok := backends[kind]
	if !ok {
		return nil, &proxmox.ConfigError{Message: fmt.Sprintf("%s backend is not supported", kind)}
	}
	backend, err := factory(ctx, cfg, svc, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", kind, err)
	}

	o.logger.Debug("proxmox.client.created", "service", svc.Name, "backend", string(kind), "target", backend.Target())
	return proxmox.NewAPI(kind, backend, apiOpts...), nil
}
