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

// Package libiscsi queries iSCSI portals with the libiscsi command line
// utilities.
package libiscsi

import (
	"context"
	"fmt"

	klog "k8s.io/klog/v2"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
)

const (
	DefaultLsPath  = "/usr/bin/iscsi-ls"
	DefaultInqPath = "/usr/bin/iscsi-inq"

	lsToolName = "iscsi-ls"

	pageUnitSerialNumber = "128"
	pageDeviceIdentifier = "131"
)

// Client runs iscsi-ls and iscsi-inq against remote portals.
type Client struct {
	runner  execlib.Runner
	lsTool  string
	inqTool string
}

// NewClient returns a Client. Empty tool paths select the defaults.
func NewClient(runner execlib.Runner, lsTool, inqTool string) *Client {
	if lsTool == "" {
		lsTool = DefaultLsPath
	}
	if inqTool == "" {
		inqTool = DefaultInqPath
	}
	return &Client{runner: runner, lsTool: lsTool, inqTool: inqTool}
}

// PortalURL returns the iSCSI URL of a portal.
func PortalURL(address string) string {
	return "iscsi://" + address
}

// LUNURL returns the iSCSI URL of a LUN behind a portal.
func LUNURL(address, iqn string, lun int) string {
	return fmt.Sprintf("iscsi://%s/%s/%d", address, iqn, lun)
}

// ListPortal returns the targets and LUN sizes a portal exposes.
func (c *Client) ListPortal(ctx context.Context, address string) (Listing, error) {
	klog.V(2).Infof("Begin ListPortal...")
	lines, err := c.runner.Run(ctx, c.lsTool, "-s", PortalURL(address))
	if err != nil {
		return nil, err
	}
	return ParseListing(lines)
}

// Vendor returns the vendor identification of a LUN. found is false when the
// inquiry data carries none.
func (c *Client) Vendor(ctx context.Context, address, iqn string, lun int) (string, bool, error) {
	klog.V(2).Infof("Begin Vendor...")
	lines, err := c.runner.Run(ctx, c.inqTool, LUNURL(address, iqn, lun))
	if err != nil {
		return "", false, err
	}
	v, found := ParseVendor(lines)
	return v, found, nil
}

// UnitSerialNumber returns the serial number from VPD page 0x80.
func (c *Client) UnitSerialNumber(ctx context.Context, address, iqn string, lun int) (string, bool, error) {
	klog.V(2).Infof("Begin UnitSerialNumber...")
	lines, err := c.inquiry(ctx, pageUnitSerialNumber, address, iqn, lun)
	if err != nil {
		return "", false, err
	}
	sn, found := ParseUnitSerialNumber(lines)
	return sn, found, nil
}

// DeviceIdentifier returns the first designator from VPD page 0x83.
func (c *Client) DeviceIdentifier(ctx context.Context, address, iqn string, lun int) (string, bool, error) {
	klog.V(2).Infof("Begin DeviceIdentifier...")
	lines, err := c.inquiry(ctx, pageDeviceIdentifier, address, iqn, lun)
	if err != nil {
		return "", false, err
	}
	id, found := ParseDesignator(lines)
	return id, found, nil
}

func (c *Client) inquiry(ctx context.Context, page, address, iqn string, lun int) ([]string, error) {
	return c.runner.Run(ctx, c.inqTool, "-e", "1", "-c", page, LUNURL(address, iqn, lun))
}
