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

import "github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"

// Exit statuses of tgtadm, from tgtadm_error in tgtd.
const (
	ExitNoTarget      = 4
	ExitNoLUN         = 5
	ExitNoBinding     = 8
	ExitTargetExists  = 9
	ExitBindingExists = 10
	ExitLUNExists     = 11
	ExitACLExists     = 12
	ExitACLMissing    = 13
	ExitUserExists    = 14
	ExitNoUser        = 15
	ExitTargetActive  = 19
)

// IsNotFound reports whether err is tgtadm refusing to act on something
// that does not exist.
func IsNotFound(err error) bool {
	code, ok := execlib.ExitCode(err)
	if !ok {
		return false
	}
	switch code {
	case ExitNoTarget, ExitNoLUN, ExitNoBinding, ExitACLMissing, ExitNoUser:
		return true
	}
	return false
}

// IsAlreadyExists reports whether err is tgtadm refusing to create something
// that already exists.
func IsAlreadyExists(err error) bool {
	code, ok := execlib.ExitCode(err)
	if !ok {
		return false
	}
	switch code {
	case ExitTargetExists, ExitBindingExists, ExitLUNExists, ExitACLExists, ExitUserExists:
		return true
	}
	return false
}

// IsBusy reports whether err is tgtadm refusing to delete a target that still
// has sessions.
func IsBusy(err error) bool {
	code, ok := execlib.ExitCode(err)
	return ok && code == ExitTargetActive
}
