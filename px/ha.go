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

package px

import (
	"context"
	"fmt"
	"strings"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
	"pkt.systems/pslog"
)

// HaResource represents a high availability resource in the Proxmox cluster.
type HaResource struct {
	Group  string   `json:"group,omitempty"`
	State  string   `json:"state,omitempty"`
	Sid    string   `json:"sid"`
	Delete []string `json:"delete,omitempty"`
}

// HAState represents the state of the HA resource
type HAState string

const (
	// HAStateIgnored represents the "ignored" state for HA.
	HAStateIgnored HAState = "ignored"
	// HAStateStarted represents the "started" state for HA (default).
	HAStateStarted HAState = "started"
	// HAStateStopped represents the "stopped" state for HA.
	HAStateStopped HAState = "stopped"
)

// ValidateState validates the HA state
func (state HAState) ValidateState(ctx context.Context) error {
	switch state {
	case HAStateIgnored, HAStateStarted, HAStateStopped:
		return nil
	default:
		err := fmt.Errorf("invalid state: %s", state)
		if logger := pslog.LoggerFromContext(ctx); logger != nil {
			logger.Error("px.ha.state.invalid", "state", string(state))
		}
		return err
	}
}

func (ha *HaResource) params(withSid bool) proxmox.Params {
	params := proxmox.Params{}
	if withSid {
		params["sid"] = ha.Sid
	}
	if ha.Group != "" {
		params["group"] = ha.Group
	}
	if ha.State != "" {
		params["state"] = ha.State
	}
	if len(ha.Delete) > 0 {
		params["delete"] = strings.Join(ha.Delete, ",")
	}
	return params
}

func (client *Client) haResources() *proxmox.Resource {
	return client.Cluster().Resource("ha").Resource("resources")
}

// CreateHA creates a new HA resource
func (client *Client) CreateHA(ctx context.Context, ha *HaResource) error {
	if ha.State != "" {
		if err := HAState(ha.State).ValidateState(ctx); err != nil {
			return err
		}
	}
	if _, err := client.haResources().Post(ctx, ha.params(true)); err != nil {
		return fmt.Errorf("failed to create HA resource: %w", err)
	}
	return nil
}

// DeleteHA deletes an existing HA resource
func (client *Client) DeleteHA(ctx context.Context, id int) error {
	if _, err := client.haResources().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete HA resource: %w", err)
	}
	return nil
}

// UpdateHA updates an existing HA resource
func (client *Client) UpdateHA(ctx context.Context, id int, ha *HaResource) error {
	if ha.State != "" {
		if err := HAState(ha.State).ValidateState(ctx); err != nil {
			return err
		}
	}
	if _, err := client.haResources().Put(ctx, ha.params(false), id); err != nil {
		return fmt.Errorf("failed to update HA resource: %w", err)
	}
	return nil
}

// GetHA retrieves an existing HA resource
func (client *Client) GetHA(ctx context.Context, id int) (*HaResource, error) {
	payload, err := client.haResources().Get(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get HA resource: %w", err)
	}

	ha := &HaResource{}
	if err := proxmox.Unmarshal(payload, ha); err != nil {
		return nil, err
	}
	return ha, nil
}
