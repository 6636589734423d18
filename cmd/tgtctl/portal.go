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
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	klog "k8s.io/klog/v2"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/libiscsi"
)

var errEmptyListing = errors.New("portal lists no targets")

type portalLUN struct {
	IQN  string `json:"iqn" yaml:"iqn"`
	LUN  int    `json:"lun" yaml:"lun"`
	Size uint64 `json:"size" yaml:"size"`
}

type inquiry struct {
	URL              string `json:"url" yaml:"url"`
	Vendor           string `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	UnitSerialNumber string `json:"unitSerialNumber,omitempty" yaml:"unitSerialNumber,omitempty"`
	DeviceIdentifier string `json:"deviceIdentifier,omitempty" yaml:"deviceIdentifier,omitempty"`
}

func newPortalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portal",
		Short: "Inspect a remote iSCSI portal",
	}

	var wait time.Duration
	list := &cobra.Command{
		Use:   "list <address>",
		Short: "List the targets and LUN sizes a portal exposes",
		Long: `List the targets and LUN sizes a portal exposes. With --wait the listing
is retried until the portal reports at least one target or the wait elapses.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listing, err := a.listPortal(cmd, args[0], wait)
			if err != nil {
				return err
			}
			luns := flatten(listing)
			return a.print(luns, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "IQN\tLUN\tSIZE")
				for _, l := range luns {
					fmt.Fprintf(w, "%s\t%d\t%s\n", l.IQN, l.LUN, humanize.IBytes(l.Size))
				}
			})
		},
	}
	list.Flags().DurationVar(&wait, "wait", 0, "keep retrying for this long while the portal lists nothing")

	inq := &cobra.Command{
		Use:   "inquiry <address> <iqn> <lun>",
		Short: "Show the vendor, serial number and device identifier of a LUN",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			lun, err := parseID("lun", args[2])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			res := inquiry{URL: libiscsi.LUNURL(args[0], args[1], lun)}
			if res.Vendor, _, err = a.client.Vendor(ctx, args[0], args[1], lun); err != nil {
				return err
			}
			if res.UnitSerialNumber, _, err = a.client.UnitSerialNumber(ctx, args[0], args[1], lun); err != nil {
				return err
			}
			if res.DeviceIdentifier, _, err = a.client.DeviceIdentifier(ctx, args[0], args[1], lun); err != nil {
				return err
			}
			return a.print(res, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "URL:\t%s\n", res.URL)
				fmt.Fprintf(w, "Vendor:\t%s\n", dash(res.Vendor))
				fmt.Fprintf(w, "Unit serial number:\t%s\n", dash(res.UnitSerialNumber))
				fmt.Fprintf(w, "Device identifier:\t%s\n", dash(res.DeviceIdentifier))
			})
		},
	}

	cmd.AddCommand(list, inq)
	return cmd
}

func (a *app) listPortal(cmd *cobra.Command, address string, wait time.Duration) (libiscsi.Listing, error) {
	if wait <= 0 {
		return a.client.ListPortal(cmd.Context(), address)
	}

	var listing libiscsi.Listing
	op := func() error {
		l, err := a.client.ListPortal(cmd.Context(), address)
		if err != nil {
			if execlib.IsParseError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(l) == 0 {
			return errEmptyListing
		}
		listing = l
		return nil
	}
	notify := func(err error, next time.Duration) {
		klog.V(2).Infof("Portal %s not ready, retrying in %v: %v", address, next, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = wait
	if err := backoff.RetryNotify(op, backoff.WithContext(b, cmd.Context()), notify); err != nil {
		return nil, err
	}
	return listing, nil
}

// flatten orders a listing by IQN and then by LUN.
func flatten(listing libiscsi.Listing) []portalLUN {
	iqns := make([]string, 0, len(listing))
	for iqn := range listing {
		iqns = append(iqns, iqn)
	}
	sort.Strings(iqns)

	luns := []portalLUN{}
	for _, iqn := range iqns {
		for _, l := range listing[iqn] {
			luns = append(luns, portalLUN{IQN: iqn, LUN: l.ID, Size: l.Size})
		}
	}
	return luns
}
