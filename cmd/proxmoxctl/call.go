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
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hctamu/goproxmoxer/pkg/proxmox"
)

var verbs = map[string]string{
	"get":    http.MethodGet,
	"create": http.MethodPost,
	"set":    http.MethodPut,
	"delete": http.MethodDelete,
}

func newCallCommand(a *app, name, short string, aliases []string) *cobra.Command {
	var data []string

	cmd := &cobra.Command{
		Use:     name + " <path>",
		Short:   short,
		Aliases: aliases,
		Args:    cobra.ExactArgs(1),
		Example: fmt.Sprintf("  proxmoxctl %s /nodes/pve1/qemu -d vmid=100", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, closeFiles, err := parseData(data)
			if err != nil {
				return err
			}
			defer closeFiles()

			api, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}

			res := api.Call(strings.TrimPrefix(args[0], "/"))
			var result any
			switch verbs[name] {
			case http.MethodGet:
				result, err = res.Get(cmd.Context(), params)
			case http.MethodPost:
				result, err = res.Post(cmd.Context(), params)
			case http.MethodPut:
				result, err = res.Put(cmd.Context(), params)
			case http.MethodDelete:
				result, err = res.Delete(cmd.Context(), params)
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.v.GetString("output"), result)
		},
	}

	cmd.Flags().StringArrayVarP(&data, "data", "d", nil,
		"key=value parameter, repeat for several; key=@file uploads a file")
	return cmd
}

// parseData turns key=value pairs into Params. A repeated key becomes a list
// and a value starting with "@" opens the named file for upload.
func parseData(pairs []string) (proxmox.Params, func(), error) {
	var files []*os.File
	closeFiles := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	if len(pairs) == 0 {
		return nil, closeFiles, nil
	}

	params := proxmox.Params{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			closeFiles()
			return nil, nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}

		if path, isFile := strings.CutPrefix(value, "@"); isFile {
			f, err := os.Open(path)
			if err != nil {
				closeFiles()
				return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
			}
			files = append(files, f)
			params[key] = f
			continue
		}

		switch existing := params[key].(type) {
		case nil:
			params[key] = value
		case string:
			params[key] = []string{existing, value}
		case []string:
			params[key] = append(existing, value)
		default:
			closeFiles()
			return nil, nil, fmt.Errorf("parameter %q given as file and value", key)
		}
	}
	return params, closeFiles, nil
}
