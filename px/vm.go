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
	"errors"
	"fmt"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
	"pkt.systems/pslog"
)

// VirtualMachine is the subset of /nodes/{node}/qemu/{vmid}/status/current the
// lookups need.
type VirtualMachine struct {
	VMID   int    `json:"vmid"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
	Node   string `json:"-"`
}

// NodeStatus is one entry of the /nodes listing.
type NodeStatus struct {
	Node   string `json:"node"`
	Status string `json:"status,omitempty"`
}

// ListNodes returns the cluster members.
func (client *Client) ListNodes(ctx context.Context) ([]NodeStatus, error) {
	payload, err := client.Nodes().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	var nodes []NodeStatus
	if err := proxmox.Unmarshal(payload, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// FindVirtualMachine finds a virtual machine by its ID. The last known node is
// tried first, then every cluster member in listing order.
func (client *Client) FindVirtualMachine(ctx context.Context, vmID int, lastKnownNode *string) (
	*VirtualMachine, error,
) {
	var logger pslog.Base = pslog.NoopLogger()
	if l := pslog.LoggerFromContext(ctx); l != nil {
		logger = l
	}

	if lastKnownNode != nil {
		vm, err := client.FindVirtualMachineOnNode(ctx, vmID, *lastKnownNode)
		if err == nil {
			return vm, nil
		}
		logger.Debug("px.vm.lastnode.miss", "vmid", vmID, "node", *lastKnownNode, "err", err)
	}

	nodes, err := client.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	for _, node := range nodes {
		if lastKnownNode != nil && node.Node == *lastKnownNode {
			continue
		}
		vm, err := client.FindVirtualMachineOnNode(ctx, vmID, node.Node)
		if err == nil {
			return vm, nil
		}
		var resErr *proxmox.ResourceError
		if !errors.As(err, &resErr) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("VM with ID %d not found on any nodes", vmID)
}

// FindVirtualMachineOnNode finds a virtual machine by its ID on a specific node.
func (client *Client) FindVirtualMachineOnNode(ctx context.Context, vmID int, nodeName string) (
	*VirtualMachine, error,
) {
	payload, err := client.Nodes(nodeName).Resource("qemu").Call(vmID).Resource("status").Get(ctx, nil, "current")
	if err != nil {
		return nil, fmt.Errorf("VM with ID %d not found on '%v' node: %w", vmID, nodeName, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("VM with ID %d not found on '%v' node", vmID, nodeName)
	}

	vm := &VirtualMachine{}
	if err := proxmox.Unmarshal(payload, vm); err != nil {
		return nil, err
	}
	vm.Node = nodeName
	if vm.VMID == 0 {
		vm.VMID = vmID
	}
	return vm, nil
}
