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
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/hctamu/goproxmoxer/px"
)

func newTaskCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and wait for tasks",
	}

	var timeout, interval time.Duration
	wait := &cobra.Command{
		Use:   "wait <upid>",
		Short: "Wait until a task stops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}

			status, err := api.BlockingStatus(cmd.Context(), args[0], timeout, interval)
			if err != nil {
				return err
			}
			if !status.Succeeded() {
				return fmt.Errorf("task %s failed: %s", args[0], status.ExitStatus)
			}
			fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintln("task", args[0], "finished"))
			return nil
		},
	}
	wait.Flags().DurationVar(&timeout, "timeout", px.DefaultTaskTimeout, "give up after this long")
	wait.Flags().DurationVar(&interval, "interval", px.DefaultPollInterval, "wait between status polls")

	decode := &cobra.Command{
		Use:   "decode <upid>",
		Short: "Print the fields of a task id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upid, err := px.DecodeUPID(args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.v.GetString("output"), map[string]any{
				"node":      upid.Node,
				"pid":       strconv.FormatInt(upid.PID, 10),
				"pstart":    strconv.FormatInt(upid.PStart, 10),
				"starttime": upid.StartTime.Format(time.RFC3339),
				"type":      upid.Type,
				"id":        upid.ID,
				"user":      upid.User,
				"token":     upid.Token,
				"comment":   upid.Comment,
			})
		},
	}

	log := &cobra.Command{
		Use:   "log <upid>",
		Short: "Print the log of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			text, err := api.TaskLog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}

	cmd.AddCommand(wait, decode, log)
	return cmd
}

func newVMCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vm",
		Short: "Virtual machine helpers",
	}

	var node string
	find := &cobra.Command{
		Use:   "find <vmid>",
		Short: "Find the node a virtual machine runs on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vmID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid vmid %q: %w", args[0], err)
			}

			api, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}

			var lastKnown *string
			if node != "" {
				lastKnown = &node
			}
			vm, err := api.FindVirtualMachine(cmd.Context(), vmID, lastKnown)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.v.GetString("output"), map[string]any{
				"vmid":   vm.VMID,
				"name":   vm.Name,
				"status": vm.Status,
				"node":   vm.Node,
			})
		},
	}
	find.Flags().StringVar(&node, "node", "", "node to try first")

	cmd.AddCommand(find)
	return cmd
}
