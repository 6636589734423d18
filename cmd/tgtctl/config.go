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
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or write the configuration file",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.cfg
			return a.print(c, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "tgtadm.path\t%s\n", c.Tgtadm.Path)
				fmt.Fprintf(w, "tgtadm.lld\t%s\n", c.Tgtadm.LLD)
				fmt.Fprintf(w, "libiscsi.lsPath\t%s\n", c.Libiscsi.LsPath)
				fmt.Fprintf(w, "libiscsi.inqPath\t%s\n", c.Libiscsi.InqPath)
				fmt.Fprintf(w, "commandTimeout\t%v\n", c.CommandTimeout.Duration())
				fmt.Fprintf(w, "iqnPrefix\t%s\n", c.IQNPrefix)
				fmt.Fprintf(w, "portal\t%s\n", dash(c.Portal))
				fmt.Fprintf(w, "backingDir\t%s\n", c.BackingDir)
			})
		},
	}

	var force bool
	write := &cobra.Command{
		Use:   "write <path>",
		Short: "Write the effective configuration to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exists, err := afero.Exists(a.fs, args[0])
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", args[0])
			}
			return a.cfg.Save(a.fs, args[0])
		},
	}
	write.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(show, write)
	return cmd
}
