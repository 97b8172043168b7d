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

	api "github.com/luthermonson/go-proxmox"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

// ErrACLNotFound is returned by FindACL when no entry matches.
var ErrACLNotFound = errors.New("ACL not found")

// ListACLs returns every access control entry of the cluster.
func (client *Client) ListACLs(ctx context.Context) ([]*api.ACL, error) {
	payload, err := client.Access().Get(ctx, nil, "acl")
	if err != nil {
		return nil, fmt.Errorf("failed to list ACLs: %w", err)
	}

	var acls []*api.ACL
	if err := proxmox.Unmarshal(payload, &acls); err != nil {
		return nil, err
	}
	return acls, nil
}

// FindACL returns the entry granting roleID on path to the user, group or
// token ugid.
func (client *Client) FindACL(ctx context.Context, path, roleID, aclType, ugid string) (*api.ACL, error) {
	acls, err := client.ListACLs(ctx)
	if err != nil {
		return nil, err
	}

	for _, acl := range acls {
		if acl.Path == path && acl.RoleID == roleID && acl.Type == aclType && acl.UGID == ugid {
			return acl, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s %s %s", ErrACLNotFound, path, roleID, aclType, ugid)
}

// UpdateACL adds or, with Delete set, removes access control entries.
func (client *Client) UpdateACL(ctx context.Context, opts api.ACLOptions) error {
	data := proxmox.Params{
		"path":      opts.Path,
		"roles":     opts.Roles,
		"propagate": bool(opts.Propagate),
	}
	if opts.Users != "" {
		data["users"] = opts.Users
	}
	if opts.Groups != "" {
		data["groups"] = opts.Groups
	}
	if opts.Tokens != "" {
		data["tokens"] = opts.Tokens
	}
	if bool(opts.Delete) {
		data["delete"] = true
	}

	if _, err := client.Access().Put(ctx, data, "acl"); err != nil {
		return fmt.Errorf("failed to update ACL on %s: %w", opts.Path, err)
	}
	return nil
}
