// Copyright 2025, Pulumi Corporation.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

// 	http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package px provides typed helpers over the proxmox resource builder: task
// tracking, virtual machine lookup and cluster configuration objects.
package px

import (
	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// Client wraps a proxmox.API to provide typed helpers for common calls.
type Client struct {
	*proxmox.API
}

// New wraps api.
func New(api *proxmox.API) *Client {
	return &Client{API: api}
}
