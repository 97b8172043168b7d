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

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// PoolResource represents a pool in the Proxmox cluster.
type PoolResource struct {
	PoolID  string `json:"poolid,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// CreatePool creates a new pool.
func (client *Client) CreatePool(ctx context.Context, pool *PoolResource) error {
	data := proxmox.Params{"poolid": pool.PoolID}
	if pool.Comment != "" {
		data["comment"] = pool.Comment
	}
	if _, err := client.Pools().Post(ctx, data); err != nil {
		return fmt.Errorf("failed to create pool %s: %w", pool.PoolID, err)
	}
	return nil
}

// GetPool retrieves a pool by its name.
func (client *Client) GetPool(ctx context.Context, name string) (*PoolResource, error) {
	payload, err := client.Pools(name).Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool %s: %w", name, err)
	}

	pool := &PoolResource{}
	if err := proxmox.Unmarshal(payload, pool); err != nil {
		return nil, err
	}
	if pool.PoolID == "" {
		pool.PoolID = name
	}
	return pool, nil
}

// UpdatePool replaces the comment of a pool.
func (client *Client) UpdatePool(ctx context.Context, name, comment string) error {
	if _, err := client.Pools(name).Put(ctx, proxmox.Params{"comment": comment}); err != nil {
		return fmt.Errorf("failed to update pool %s: %w", name, err)
	}
	return nil
}

// DeletePool deletes an empty pool.
func (client *Client) DeletePool(ctx context.Context, name string) error {
	if _, err := client.Pools(name).Delete(ctx, nil); err != nil {
		return fmt.Errorf("failed to delete pool %s: %w", name, err)
	}
	return nil
}
