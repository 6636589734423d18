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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	klog "k8s.io/klog/v2"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/config"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/libiscsi"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/tgtlib"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// app carries the state shared by all subcommands.
type app struct {
	cfgFile string
	timeout time.Duration
	output  string

	fs     afero.Fs
	runner execlib.Runner
	out    io.Writer

	cfg    *config.Config
	admin  *tgtlib.Admin
	client *libiscsi.Client
}

func main() {
	a := &app{fs: afero.NewOsFs(), out: os.Stdout}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tgtctl",
		Short: "Manage tgtd iSCSI targets and inspect iSCSI portals",
		Long: `tgtctl drives a local tgtd through tgtadm and queries remote portals
through the libiscsi utilities iscsi-ls and iscsi-inq.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "path to the YAML configuration file")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "per-command timeout, overrides the configuration file")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", outputTable, "output format: table, json, yaml")

	goFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(goFlags)
	root.PersistentFlags().AddGoFlagSet(goFlags)

	root.AddCommand(
		newTargetCmd(a),
		newLUNCmd(a),
		newACLCmd(a),
		newAccountCmd(a),
		newPurgeCmd(a),
		newPortalCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	switch a.output {
	case outputTable, outputJSON, outputYAML:
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}

	cfg, err := config.Load(a.fs, a.cfgFile)
	if err != nil {
		return err
	}
	timeout := cfg.CommandTimeout.Duration()
	if a.timeout > 0 {
		timeout = a.timeout
	}
	if a.runner == nil {
		a.runner = execlib.NewExecRunner(timeout)
	}
	if a.out == nil {
		a.out = cmd.OutOrStdout()
	}

	a.cfg = cfg
	a.admin = tgtlib.NewAdmin(a.runner, cfg.Tgtadm.Path, cfg.Tgtadm.LLD)
	a.client = libiscsi.NewClient(a.runner, cfg.Libiscsi.LsPath, cfg.Libiscsi.InqPath)
	return nil
}

// print writes v in the structured formats, or calls table otherwise.
func (a *app) print(v interface{}, table func(w *tabwriter.Writer)) error {
	switch a.output {
	case outputJSON:
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	w := tabwriter.NewWriter(a.out, 0, 8, 2, ' ', 0)
	table(w)
	return w.Flush()
}

func parseID(what, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return n, nil
}
