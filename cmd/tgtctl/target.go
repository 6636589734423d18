/*
Copyright 2026 The Kubernetes Authors.

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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/tgtlib"
)

func newTargetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target",
		Short: "List, create and delete targets",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show every target with its LUNs, ACL and accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := a.admin.ListTargets(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(targets, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "TID\tIQN\tLUNS\tACL\tACCOUNTS")
				for _, t := range targets {
					luns := make([]string, 0, len(t.LUNs))
					for _, l := range t.LUNs {
						luns = append(luns, fmt.Sprintf("%d:%s", l.ID, l.BackingPath))
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.TID, t.IQN,
						dash(strings.Join(luns, ",")), dash(strings.Join(t.ACL, ",")), dash(strings.Join(t.Accounts, ",")))
				}
			})
		},
	}

	var tid int
	create := &cobra.Command{
		Use:   "new <iqn>",
		Short: "Create a target",
		Long:  "Create a target. Without --tid the lowest unused tid above every existing one is picked.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := tid
			if id == 0 {
				targets, err := a.admin.ListTargets(cmd.Context())
				if err != nil {
					return err
				}
				id = tgtlib.NextTID(targets)
			}
			if err := a.admin.NewTarget(cmd.Context(), id, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, id)
			return nil
		},
	}
	create.Flags().IntVar(&tid, "tid", 0, "target id to use")

	del := &cobra.Command{
		Use:   "delete <tid>",
		Short: "Delete a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("tid", args[0])
			if err != nil {
				return err
			}
			return a.admin.DeleteTarget(cmd.Context(), id)
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

func newLUNCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lun",
		Short: "Attach and detach logical units",
	}

	add := &cobra.Command{
		Use:   "add <tid> <lun> <backing-path>",
		Short: "Attach a backing file or device as a LUN",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := parseID("tid", args[0])
			if err != nil {
				return err
			}
			lun, err := parseID("lun", args[1])
			if err != nil {
				return err
			}
			return a.admin.AddLUN(cmd.Context(), tid, lun, args[2])
		},
	}

	remove := &cobra.Command{
		Use:   "remove <tid> <lun>",
		Short: "Detach a LUN",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := parseID("tid", args[0])
			if err != nil {
				return err
			}
			lun, err := parseID("lun", args[1])
			if err != nil {
				return err
			}
			return a.admin.RemoveLUN(cmd.Context(), tid, lun)
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func newACLCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acl",
		Short: "Allow and disallow initiators",
	}

	run := func(bind bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			tid, err := parseID("tid", args[0])
			if err != nil {
				return err
			}
			initiator := ""
			if len(args) > 1 {
				initiator = args[1]
			}
			if bind {
				return a.admin.BindInitiator(cmd.Context(), tid, initiator)
			}
			return a.admin.UnbindInitiator(cmd.Context(), tid, initiator)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "bind <tid> [initiator]",
			Short: "Allow an initiator address or name, or everyone when omitted",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  run(true),
		},
		&cobra.Command{
			Use:   "unbind <tid> [initiator]",
			Short: "Remove an ACL entry, or the ALL entry when omitted",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  run(false),
		},
	)
	return cmd
}

func newPurgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every target and every account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.admin.Purge(cmd.Context())
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
