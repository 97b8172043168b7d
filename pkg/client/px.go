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

package client

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"github.com/hctamu/goproxmoxer/pkg/config"
	"github.com/hctamu/goproxmoxer/px"
)

var (
	client *px.Client
	once   sync.Once
	// errClient holds the outcome of the first initialization.
	errClient error
)

// newClient reads the environment (and a .env file, when present) on top of
// the defaults and connects.
func newClient(ctx context.Context) (*px.Client, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg := config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	api, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return px.New(api), nil
}

// GetProxmoxClientFn is the constructor used by GetProxmoxClient. Tests swap it.
var GetProxmoxClientFn = newClient

// GetProxmoxClient returns the process-wide client configured from the
// environment. It is created on first use; a failed creation is not retried.
func GetProxmoxClient(ctx context.Context) (*px.Client, error) {
	once.Do(func() {
		if logger := pslog.LoggerFromContext(ctx); logger != nil {
			logger.Debug("proxmox.client.init")
		}
		client, errClient = GetProxmoxClientFn(ctx)
	})

	if errClient != nil {
		if logger := pslog.LoggerFromContext(ctx); logger != nil {
			logger.Error("proxmox.client.init.failed", "error", errClient)
		}
		return nil, errClient
	}
	return client, nil
}
