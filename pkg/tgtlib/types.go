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

package tgtlib

import "sort"

// ACLAll is the ACL entry tgtd reports when every initiator may connect.
const ACLAll = "ALL"

// LUN is a logical unit as reported by tgtd.
type LUN struct {
	ID int `json:"id"`
	// Type is the device type, e.g. "disk" or "controller".
	Type string `json:"type,omitempty"`
	// SCSIVendor and SCSIID are the two halves of the "SCSI ID:" line.
	SCSIVendor       string `json:"scsiVendor,omitempty"`
	SCSIID           string `json:"scsiID,omitempty"`
	SCSISN           string `json:"scsiSN,omitempty"`
	BackingStoreType string `json:"backingStoreType,omitempty"`
	BackingPath      string `json:"backingPath,omitempty"`
}

// Target is an iSCSI target as reported by tgtd.
type Target struct {
	TID int    `json:"tid"`
	IQN string `json:"iqn"`
	// LUNs holds the data LUNs in daemon order. The implicit LUN 0
	// controller is kept in Controller.
	LUNs       []LUN `json:"luns"`
	Controller *LUN  `json:"controller,omitempty"`
	// ACL lists initiator addresses or names allowed to log in, or ACLAll.
	// Empty means nobody may connect.
	ACL             []string `json:"acl"`
	Accounts        []string `json:"accounts"`
	OutgoingAccount string   `json:"outgoingAccount,omitempty"`
}

func newTarget(tid int, iqn string) *Target {
	return &Target{
		TID:      tid,
		IQN:      iqn,
		LUNs:     []LUN{},
		ACL:      []string{},
		Accounts: []string{},
	}
}

// LUN returns the data LUN with the given id.
func (t *Target) LUN(id int) (LUN, bool) {
	for _, l := range t.LUNs {
		if l.ID == id {
			return l, true
		}
	}
	return LUN{}, false
}

// AllowsAll reports whether the target accepts any initiator.
func (t *Target) AllowsAll() bool {
	for _, a := range t.ACL {
		if a == ACLAll {
			return true
		}
	}
	return false
}

// FindTarget returns the target with the given tid.
func FindTarget(targets []Target, tid int) (*Target, bool) {
	for i := range targets {
		if targets[i].TID == tid {
			return &targets[i], true
		}
	}
	return nil, false
}

// FindTargetByIQN returns the target with the given iqn.
func FindTargetByIQN(targets []Target, iqn string) (*Target, bool) {
	for i := range targets {
		if targets[i].IQN == iqn {
			return &targets[i], true
		}
	}
	return nil, false
}

// NextTID returns a tid not used by any of targets.
func NextTID(targets []Target) int {
	next := 1
	for _, t := range targets {
		if t.TID >= next {
			next = t.TID + 1
		}
	}
	return next
}

// TIDs returns the sorted tids of targets.
func TIDs(targets []Target) []int {
	tids := make([]int, 0, len(targets))
	for _, t := range targets {
		tids = append(tids, t.TID)
	}
	sort.Ints(tids)
	return tids
}
