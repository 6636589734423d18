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
	"sync"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/spf13/afero"
	klog "k8s.io/klog/v2"
	"k8s.io/utils/keymutex"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/config"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/tgtlib"
)

type driver struct {
	csi.UnimplementedIdentityServer
	csi.UnimplementedControllerServer

	name    string
	nodeID  string
	version string

	endpoint string

	admin      *tgtlib.Admin
	fs         afero.Fs
	portal     string
	backingDir string
	iqnPrefix  string

	// volumeLocks serialises operations on one volume; tidMutex serialises
	// picking a free tid and creating the target with it.
	volumeLocks keymutex.KeyMutex
	tidMutex    sync.Mutex

	cap   []*csi.VolumeCapability_AccessMode
	cscap []*csi.ControllerServiceCapability

	server NonBlockingGRPCServer
}

const (
	driverName = "tgt.csi.k8s.io"

	// volumeLUN is the LUN every provisioned target exports its backing
	// file on.
	volumeLUN = 1
)

var (
	version = "0.1.0"
)

// NewDriver returns a CSI controller plugin managing the tgtd reached
// through runner. Backing files are created on fs.
func NewDriver(nodeID, endpoint string, cfg *config.Config, runner execlib.Runner, fs afero.Fs) *driver {
	klog.Infof("Driver: %v version: %v", driverName, version)

	d := &driver{
		name:        driverName,
		version:     version,
		nodeID:      nodeID,
		endpoint:    endpoint,
		admin:       tgtlib.NewAdmin(runner, cfg.Tgtadm.Path, cfg.Tgtadm.LLD),
		fs:          fs,
		portal:      cfg.Portal,
		backingDir:  cfg.BackingDir,
		iqnPrefix:   cfg.IQNPrefix,
		volumeLocks: keymutex.NewHashed(0),
	}

	d.AddVolumeCapabilityAccessModes([]csi.VolumeCapability_AccessMode_Mode{csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER})
	d.AddControllerServiceCapabilities([]csi.ControllerServiceCapability_RPC_Type{
		csi.ControllerServiceCapability_RPC_CREATE_DELETE_VOLUME,
		csi.ControllerServiceCapability_RPC_PUBLISH_UNPUBLISH_VOLUME,
		csi.ControllerServiceCapability_RPC_LIST_VOLUMES,
	})

	return d
}

// Run serves the identity and controller services until the server stops.
func (d *driver) Run() error {
	d.server = NewNonBlockingGRPCServer()
	if err := d.server.Start(d.endpoint, d, d); err != nil {
		return err
	}
	d.server.Wait()
	return nil
}

// Stop stops a running driver.
func (d *driver) Stop() {
	if d.server != nil {
		d.server.Stop()
	}
}

func (d *driver) AddVolumeCapabilityAccessModes(vc []csi.VolumeCapability_AccessMode_Mode) []*csi.VolumeCapability_AccessMode {
	var vca []*csi.VolumeCapability_AccessMode
	for _, c := range vc {
		klog.Infof("Enabling volume access mode: %v", c.String())
		vca = append(vca, NewVolumeCapabilityAccessMode(c))
	}
	d.cap = vca
	return vca
}

func (d *driver) AddControllerServiceCapabilities(cl []csi.ControllerServiceCapability_RPC_Type) {
	var csc []*csi.ControllerServiceCapability

	for _, c := range cl {
		klog.Infof("Enabling controller service capability: %v", c.String())
		csc = append(csc, NewControllerServiceCapability(c))
	}

	d.cscap = csc
}
