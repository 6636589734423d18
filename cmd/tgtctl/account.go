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
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/sets"
)

const passwordEnv = "TGTCTL_PASSWORD"

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage CHAP accounts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show every account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := a.admin.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			users := sets.List(accounts)
			return a.print(users, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "USER")
				for _, u := range users {
					fmt.Fprintln(w, u)
				}
			})
		},
	}

	var password string
	add := &cobra.Command{
		Use:   "add <user>",
		Short: "Create an account",
		Long:  "Create an account. The password is read from --password or from $" + passwordEnv + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := password
			if p == "" {
				p = os.Getenv(passwordEnv)
			}
			if p == "" {
				return errors.New("a password is required")
			}
			return a.admin.AddAccount(cmd.Context(), args[0], p)
		},
	}
	add.Flags().StringVar(&password, "password", "", "account password")

	remove := &cobra.Command{
		Use:   "remove <user>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.admin.RemoveAccount(cmd.Context(), args[0])
		},
	}

	var outgoing bool
	run := func(bind bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			tid, err := parseID("tid", args[0])
			if err != nil {
				return err
			}
			if bind {
				return a.admin.BindAccount(cmd.Context(), tid, args[1], outgoing)
			}
			return a.admin.UnbindAccount(cmd.Context(), tid, args[1], outgoing)
		}
	}
	bind := &cobra.Command{
		Use:   "bind <tid> <user>",
		Short: "Require an account for logins to a target",
		Args:  cobra.ExactArgs(2),
		RunE:  run(true),
	}
	unbind := &cobra.Command{
		Use:   "unbind <tid> <user>",
		Short: "Remove an account from a target",
		Args:  cobra.ExactArgs(2),
		RunE:  run(false),
	}
	for _, c := range []*cobra.Command{bind, unbind} {
		c.Flags().BoolVar(&outgoing, "outgoing", false, "the account is the target's outgoing (mutual CHAP) account")
	}

	cmd.AddCommand(list, add, remove, bind, unbind)
	return cmd
}
