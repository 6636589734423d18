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
	"os"
	"strconv"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"golang.org/x/net/context"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	klog "k8s.io/klog/v2"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/tgtlib"
)

func (d *driver) ControllerGetCapabilities(ctx context.Context, req *csi.ControllerGetCapabilitiesRequest) (*csi.ControllerGetCapabilitiesResponse, error) {
	return &csi.ControllerGetCapabilitiesResponse{
		Capabilities: d.cscap,
	}, nil
}

// CreateVolume provisions a sparse backing file and exports it as LUN 1 of a
// new target. The volume ID is the target IQN.
func (d *driver) CreateVolume(ctx context.Context, req *csi.CreateVolumeRequest) (*csi.CreateVolumeResponse, error) {
	name := req.GetName()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "Name missing in request")
	}
	if err := d.validateCapabilities(req.GetVolumeCapabilities()); err != nil {
		return nil, err
	}

	if !tgtlib.IsValidIQNName(name) {
		return nil, status.Errorf(codes.InvalidArgument, "Name %q may only contain lower-case letters, digits, '-', '.' and ':'", name)
	}
	iqn := tgtlib.MakeIQN(d.iqnPrefix, name)
	if len(iqn) > tgtlib.MaxIQNLength {
		return nil, status.Errorf(codes.InvalidArgument, "Target name %s is longer than %d bytes", iqn, tgtlib.MaxIQNLength)
	}

	size, err := capacityFor(req.GetCapacityRange())
	if err != nil {
		return nil, err
	}

	d.volumeLocks.LockKey(iqn)
	defer func() { _ = d.volumeLocks.UnlockKey(iqn) }()

	d.tidMutex.Lock()
	defer d.tidMutex.Unlock()

	targets, err := d.admin.ListTargets(ctx)
	if err != nil {
		return nil, toGRPCError(err, "Failed to list targets")
	}

	if t, ok := tgtlib.FindTargetByIQN(targets, iqn); ok {
		existing, err := d.volumeSize(t)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "Failed to inspect volume %s: %v", iqn, err)
		}
		if existing != size {
			return nil, status.Errorf(codes.AlreadyExists, "Volume %s exists with size %d", iqn, existing)
		}
		klog.Infof("Volume %s already exists", iqn)
		return d.createVolumeResponse(req, iqn, size), nil
	}

	path := d.backingFile(name)
	if t, ok := findBackingUser(targets, path); ok {
		return nil, status.Errorf(codes.AlreadyExists, "Backing file %s is in use by target %s", path, t.IQN)
	}
	klog.Infof("Creating volume %s of %s backed by %s", iqn, humanize.IBytes(uint64(size)), path)
	if err := d.createBackingFile(path, size); err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to create backing file %s: %v", path, err)
	}

	tid := tgtlib.NextTID(targets)
	if err := d.admin.NewTarget(ctx, tid, iqn); err != nil {
		d.cleanup(ctx, 0, path)
		return nil, toGRPCError(err, "Failed to create target %s", iqn)
	}
	if err := d.admin.AddLUN(ctx, tid, volumeLUN, path); err != nil {
		d.cleanup(ctx, tid, path)
		return nil, toGRPCError(err, "Failed to add LUN to target %s", iqn)
	}

	return d.createVolumeResponse(req, iqn, size), nil
}

func (d *driver) createVolumeResponse(req *csi.CreateVolumeRequest, iqn string, size int64) *csi.CreateVolumeResponse {
	return &csi.CreateVolumeResponse{
		Volume: &csi.Volume{
			VolumeId:      iqn,
			CapacityBytes: size,
			VolumeContext: d.volumeContext(req.GetParameters(), iqn),
		},
	}
}

func (d *driver) createBackingFile(path string, size int64) error {
	if err := d.fs.MkdirAll(d.backingDir, 0750); err != nil {
		return err
	}
	// A file left by an interrupted CreateVolume is not exported by any
	// target and is recreated.
	f, err := d.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		return multierr.Append(err, multierr.Append(f.Close(), d.fs.Remove(path)))
	}
	return f.Close()
}

// cleanup undoes a partial CreateVolume. A zero tid means no target exists.
func (d *driver) cleanup(ctx context.Context, tid int, path string) {
	var errs error
	if tid > 0 {
		errs = multierr.Append(errs, d.admin.DeleteTarget(ctx, tid))
	}
	errs = multierr.Append(errs, d.fs.Remove(path))
	if errs != nil {
		klog.Warningf("Failed to clean up after failed CreateVolume: %v", errs)
	}
}

func (d *driver) volumeSize(t *tgtlib.Target) (int64, error) {
	lun, ok := t.LUN(volumeLUN)
	if !ok {
		return 0, status.Errorf(codes.Internal, "target %s has no LUN %d", t.IQN, volumeLUN)
	}
	fi, err := d.fs.Stat(lun.BackingPath)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// DeleteVolume removes the target and its backing file. Deleting a volume
// that does not exist succeeds.
func (d *driver) DeleteVolume(ctx context.Context, req *csi.DeleteVolumeRequest) (*csi.DeleteVolumeResponse, error) {
	iqn := req.GetVolumeId()
	if iqn == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID missing in request")
	}

	d.volumeLocks.LockKey(iqn)
	defer func() { _ = d.volumeLocks.UnlockKey(iqn) }()

	targets, err := d.admin.ListTargets(ctx)
	if err != nil {
		return nil, toGRPCError(err, "Failed to list targets")
	}
	t, ok := tgtlib.FindTargetByIQN(targets, iqn)
	if !ok {
		klog.Infof("Volume %s not found, nothing to delete", iqn)
		return &csi.DeleteVolumeResponse{}, nil
	}

	if err := d.admin.DeleteTarget(ctx, t.TID); err != nil && !tgtlib.IsNotFound(err) {
		return nil, toGRPCError(err, "Failed to delete target %s", iqn)
	}

	for _, lun := range t.LUNs {
		if !d.ownsBackingFile(lun.BackingPath) {
			continue
		}
		if err := d.fs.Remove(lun.BackingPath); err != nil && !os.IsNotExist(err) {
			return nil, status.Errorf(codes.Internal, "Failed to remove backing file %s: %v", lun.BackingPath, err)
		}
	}

	return &csi.DeleteVolumeResponse{}, nil
}

// ControllerPublishVolume adds the node to the target ACL. The node ID must
// be an initiator address tgtd can match.
func (d *driver) ControllerPublishVolume(ctx context.Context, req *csi.ControllerPublishVolumeRequest) (*csi.ControllerPublishVolumeResponse, error) {
	iqn := req.GetVolumeId()
	if iqn == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID missing in request")
	}
	nodeID := req.GetNodeId()
	if nodeID == "" {
		return nil, status.Error(codes.InvalidArgument, "Node ID missing in request")
	}
	if req.GetVolumeCapability() == nil {
		return nil, status.Error(codes.InvalidArgument, "Volume capability missing in request")
	}
	if err := d.validateCapabilities([]*csi.VolumeCapability{req.GetVolumeCapability()}); err != nil {
		return nil, err
	}

	d.volumeLocks.LockKey(iqn)
	defer func() { _ = d.volumeLocks.UnlockKey(iqn) }()

	t, err := d.findTarget(ctx, iqn)
	if err != nil {
		return nil, err
	}

	if !t.AllowsAll() && !contains(t.ACL, nodeID) {
		if err := d.admin.BindInitiator(ctx, t.TID, nodeID); err != nil && !tgtlib.IsAlreadyExists(err) {
			return nil, toGRPCError(err, "Failed to allow %s on %s", nodeID, iqn)
		}
	}

	return &csi.ControllerPublishVolumeResponse{
		PublishContext: map[string]string{
			paramTargetPortal: d.portal,
			paramIQN:          iqn,
			paramLUN:          strconv.Itoa(volumeLUN),
		},
	}, nil
}

func (d *driver) ControllerUnpublishVolume(ctx context.Context, req *csi.ControllerUnpublishVolumeRequest) (*csi.ControllerUnpublishVolumeResponse, error) {
	iqn := req.GetVolumeId()
	if iqn == "" {
		return nil, status.Error(codes.InvalidArgument, "Volume ID missing in request")
	}
	nodeID := req.GetNodeId()

	d.volumeLocks.LockKey(iqn)
	defer func() { _ = d.volumeLocks.UnlockKey(iqn) }()

	t, err := d.findTarget(ctx, iqn)
	if status.Code(err) == codes.NotFound {
		return &csi.ControllerUnpublishVolumeResponse{}, nil
	}
	if err != nil {
		return nil, err
	}

	// An empty node ID means unpublish from every node.
	entries := t.ACL
	if nodeID != "" {
		entries = nil
		if contains(t.ACL, nodeID) {
			entries = []string{nodeID}
		}
	}
	for _, entry := range entries {
		if err := d.admin.UnbindInitiator(ctx, t.TID, entry); err != nil && !tgtlib.IsNotFound(err) {
			return nil, toGRPCError(err, "Failed to remove %s from %s", entry, iqn)
		}
	}

	return &csi.ControllerUnpublishVolumeResponse{}, nil
}

func (d *driver) ValidateVolumeCapabilities(ctx context.Context, req *csi.ValidateVolumeCapabilitiesRequest) (*csi.ValidateVolumeCapabilitiesResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "Empty volume ID in request")
	}

	if len(req.VolumeCapabilities) == 0 {
		return nil, status.Error(codes.InvalidArgument, "Empty volume capabilities in request")
	}

	if _, err := d.findTarget(ctx, req.GetVolumeId()); err != nil {
		return nil, err
	}

	for _, c := range req.GetVolumeCapabilities() {
		if !d.isSupported(c) {
			return &csi.ValidateVolumeCapabilitiesResponse{
				Message: "Volume capability " + c.String() + " not supported",
			}, nil
		}
	}

	return &csi.ValidateVolumeCapabilitiesResponse{
		Confirmed: &csi.ValidateVolumeCapabilitiesResponse_Confirmed{
			VolumeContext:      req.GetVolumeContext(),
			VolumeCapabilities: req.VolumeCapabilities,
			Parameters:         req.GetParameters(),
		},
	}, nil
}

// ListVolumes lists the targets this driver provisioned, in tid order.
// The starting token is the index of the first entry to return.
func (d *driver) ListVolumes(ctx context.Context, req *csi.ListVolumesRequest) (*csi.ListVolumesResponse, error) {
	targets, err := d.admin.ListTargets(ctx)
	if err != nil {
		return nil, toGRPCError(err, "Failed to list targets")
	}

	var entries []*csi.ListVolumesResponse_Entry
	for _, tid := range tgtlib.TIDs(targets) {
		t, _ := tgtlib.FindTarget(targets, tid)
		if !d.isManaged(t) {
			continue
		}
		size, err := d.volumeSize(t)
		if err != nil {
			klog.Warningf("Failed to get size of volume %s: %v", t.IQN, err)
		}
		entries = append(entries, &csi.ListVolumesResponse_Entry{
			Volume: &csi.Volume{
				VolumeId:      t.IQN,
				CapacityBytes: size,
				VolumeContext: d.volumeContext(nil, t.IQN),
			},
			Status: &csi.ListVolumesResponse_VolumeStatus{
				PublishedNodeIds: t.ACL,
			},
		})
	}

	start := 0
	if token := req.GetStartingToken(); token != "" {
		start, err = strconv.Atoi(token)
		if err != nil || start < 0 || start > len(entries) {
			return nil, status.Errorf(codes.Aborted, "Invalid starting token %q", token)
		}
	}
	end := len(entries)
	if n := int(req.GetMaxEntries()); n > 0 && start+n < end {
		end = start + n
	}

	resp := &csi.ListVolumesResponse{Entries: entries[start:end]}
	if end < len(entries) {
		resp.NextToken = strconv.Itoa(end)
	}
	return resp, nil
}

func (d *driver) findTarget(ctx context.Context, iqn string) (*tgtlib.Target, error) {
	targets, err := d.admin.ListTargets(ctx)
	if err != nil {
		return nil, toGRPCError(err, "Failed to list targets")
	}
	t, ok := tgtlib.FindTargetByIQN(targets, iqn)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Volume %s not found", iqn)
	}
	return t, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
