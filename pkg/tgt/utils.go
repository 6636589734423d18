/*
Copyright 2017 The Kubernetes Authors.

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

package tgt

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/tgtlib"
)

const (
	// Volume context keys understood by the iSCSI node plugin.
	paramTargetPortal   = "targetPortal"
	paramIQN            = "iqn"
	paramLUN            = "lun"
	paramPortals        = "portals"
	paramISCSIInterface = "iscsiInterface"
	paramDiscoveryCHAP  = "discoveryCHAPAuth"
	paramSessionCHAP    = "sessionCHAPAuth"

	defaultISCSIInterface = "default"

	mib = int64(1) << 20
	gib = int64(1) << 30

	defaultVolumeSize = gib
)

func NewVolumeCapabilityAccessMode(mode csi.VolumeCapability_AccessMode_Mode) *csi.VolumeCapability_AccessMode {
	return &csi.VolumeCapability_AccessMode{Mode: mode}
}

func NewControllerServiceCapability(cap csi.ControllerServiceCapability_RPC_Type) *csi.ControllerServiceCapability {
	return &csi.ControllerServiceCapability{
		Type: &csi.ControllerServiceCapability_Rpc{
			Rpc: &csi.ControllerServiceCapability_RPC{
				Type: cap,
			},
		},
	}
}

// volumeContext returns the attributes the node plugin needs to log in to
// the target. Request parameters are passed through unless they clash.
func (d *driver) volumeContext(params map[string]string, iqn string) map[string]string {
	vc := map[string]string{
		paramPortals:        "[]",
		paramISCSIInterface: defaultISCSIInterface,
		paramDiscoveryCHAP:  "false",
		paramSessionCHAP:    "false",
	}
	for k, v := range params {
		vc[k] = v
	}
	vc[paramTargetPortal] = d.portal
	vc[paramIQN] = iqn
	vc[paramLUN] = strconv.Itoa(volumeLUN)
	return vc
}

// backingFile returns the file backing the volume name. name must satisfy
// tgtlib.IsValidIQNName.
func (d *driver) backingFile(name string) string {
	return filepath.Join(d.backingDir, name+".img")
}

// ownsBackingFile reports whether path lies below the backing directory.
func (d *driver) ownsBackingFile(path string) bool {
	if !filepath.IsAbs(path) {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(d.backingDir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (d *driver) isManaged(t *tgtlib.Target) bool {
	return strings.HasPrefix(t.IQN, d.iqnPrefix+":")
}

func (d *driver) isSupported(cap *csi.VolumeCapability) bool {
	if cap.GetBlock() == nil && cap.GetMount() == nil {
		return false
	}
	for _, c := range d.cap {
		if c.GetMode() == cap.GetAccessMode().GetMode() {
			return true
		}
	}
	return false
}

func (d *driver) validateCapabilities(caps []*csi.VolumeCapability) error {
	if len(caps) == 0 {
		return status.Error(codes.InvalidArgument, "Volume capabilities missing in request")
	}
	for _, c := range caps {
		if !d.isSupported(c) {
			return status.Errorf(codes.InvalidArgument, "Volume capability %v not supported", c)
		}
	}
	return nil
}

// capacityFor picks the size of a new volume: the required bytes rounded up
// to a whole MiB, or the default size when nothing is required. The result
// never exceeds a non-zero limit.
func capacityFor(cr *csi.CapacityRange) (int64, error) {
	required, limit := cr.GetRequiredBytes(), cr.GetLimitBytes()
	if required < 0 || limit < 0 {
		return 0, status.Errorf(codes.InvalidArgument, "Capacity range [%d, %d] must not be negative", required, limit)
	}
	if limit > 0 && required > limit {
		return 0, status.Errorf(codes.OutOfRange, "Required size %d exceeds limit %d", required, limit)
	}

	size := required
	if size == 0 {
		size = defaultVolumeSize
		if limit > 0 && limit < size {
			size = limit
		}
	}
	if size > math.MaxInt64-mib+1 {
		return 0, status.Errorf(codes.OutOfRange, "Volume size %d is too large", size)
	}
	size = roundUpSize(size)

	if limit > 0 && size > limit {
		// Round down instead when that still covers the required bytes.
		down := limit / mib * mib
		if down == 0 || down < required {
			return 0, status.Errorf(codes.OutOfRange, "No whole MiB size between %d and %d", required, limit)
		}
		size = down
	}
	return size, nil
}

// roundUpSize rounds bytes up to a whole number of MiB.
func roundUpSize(bytes int64) int64 {
	return (bytes + mib - 1) / mib * mib
}

// findBackingUser returns the target exporting path, if any.
func findBackingUser(targets []tgtlib.Target, path string) (*tgtlib.Target, bool) {
	for i := range targets {
		for _, l := range targets[i].LUNs {
			if filepath.Clean(l.BackingPath) == filepath.Clean(path) {
				return &targets[i], true
			}
		}
	}
	return nil, false
}

// toGRPCError maps errors from tgtadm runs to gRPC status errors.
func toGRPCError(err error, format string, args ...interface{}) error {
	code := codes.Internal
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case tgtlib.IsNotFound(err):
		code = codes.NotFound
	case tgtlib.IsAlreadyExists(err):
		code = codes.AlreadyExists
	case tgtlib.IsBusy(err):
		code = codes.FailedPrecondition
	case execlib.IsParseError(err):
		code = codes.Internal
	}
	return status.Errorf(code, format+": %v", append(args, err)...)
}
