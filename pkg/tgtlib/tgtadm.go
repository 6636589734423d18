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

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/sets"
	klog "k8s.io/klog/v2"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
)

const (
	// DefaultTgtadmPath is where distributions install tgtadm.
	DefaultTgtadmPath = "/usr/sbin/tgtadm"
	// DefaultLLD is the low level driver tgtd uses for iSCSI.
	DefaultLLD = "iscsi"
)

// Admin manages a running tgtd through tgtadm. Every method runs exactly one
// tgtadm command, except Purge.
type Admin struct {
	runner execlib.Runner
	tool   string
	lld    string
}

// NewAdmin returns an Admin running tool through runner. Empty tool and lld
// select the defaults.
func NewAdmin(runner execlib.Runner, tool, lld string) *Admin {
	if tool == "" {
		tool = DefaultTgtadmPath
	}
	if lld == "" {
		lld = DefaultLLD
	}
	return &Admin{runner: runner, tool: tool, lld: lld}
}

func (a *Admin) tgtadmCmd(ctx context.Context, args ...string) ([]string, error) {
	argv := append([]string{"--lld", a.lld}, args...)
	return a.runner.Run(ctx, a.tool, argv...)
}

// ListTargets returns every target tgtd knows about, in daemon order.
func (a *Admin) ListTargets(ctx context.Context) ([]Target, error) {
	klog.V(2).Infof("Begin ListTargets...")
	lines, err := a.tgtadmCmd(ctx, "--op", "show", "--mode", "target")
	if err != nil {
		return nil, err
	}
	return ParseTargets(lines)
}

// ListAccounts returns the names of every CHAP account tgtd knows about.
func (a *Admin) ListAccounts(ctx context.Context) (sets.Set[string], error) {
	klog.V(2).Infof("Begin ListAccounts...")
	lines, err := a.tgtadmCmd(ctx, "--op", "show", "--mode", "account")
	if err != nil {
		return nil, err
	}
	return ParseAccounts(lines), nil
}

// NewTarget creates a target with the given tid and iqn.
func (a *Admin) NewTarget(ctx context.Context, tid int, iqn string) error {
	klog.V(2).Infof("Begin NewTarget...")
	_, err := a.tgtadmCmd(ctx, "--op", "new", "--mode", "target", "--tid", strconv.Itoa(tid), "-T", iqn)
	return err
}

// DeleteTarget removes the target with the given tid.
func (a *Admin) DeleteTarget(ctx context.Context, tid int) error {
	klog.V(2).Infof("Begin DeleteTarget...")
	_, err := a.tgtadmCmd(ctx, "--op", "delete", "--mode", "target", fmt.Sprintf("--tid=%d", tid))
	return err
}

// AddLUN attaches path to target tid as LUN lun.
func (a *Admin) AddLUN(ctx context.Context, tid, lun int, path string) error {
	klog.V(2).Infof("Begin AddLUN...")
	_, err := a.tgtadmCmd(ctx, "--op", "new", "--mode", "logicalunit", "--tid", strconv.Itoa(tid), "--lun", strconv.Itoa(lun), "-b", path)
	return err
}

// RemoveLUN detaches LUN lun from target tid.
func (a *Admin) RemoveLUN(ctx context.Context, tid, lun int) error {
	klog.V(2).Infof("Begin RemoveLUN...")
	_, err := a.tgtadmCmd(ctx, "--op", "delete", "--mode", "logicalunit", "--tid", strconv.Itoa(tid), "--lun", strconv.Itoa(lun))
	return err
}

// BindInitiator allows initiator to log in to target tid. An empty initiator
// allows everyone.
func (a *Admin) BindInitiator(ctx context.Context, tid int, initiator string) error {
	klog.V(2).Infof("Begin BindInitiator...")
	_, err := a.tgtadmCmd(ctx, "--op", "bind", "--mode", "target", "--tid", strconv.Itoa(tid), "-I", aclEntry(initiator))
	return err
}

// UnbindInitiator reverses BindInitiator.
func (a *Admin) UnbindInitiator(ctx context.Context, tid int, initiator string) error {
	klog.V(2).Infof("Begin UnbindInitiator...")
	_, err := a.tgtadmCmd(ctx, "--op", "unbind", "--mode", "target", "--tid", strconv.Itoa(tid), "-I", aclEntry(initiator))
	return err
}

func aclEntry(initiator string) string {
	if initiator == "" {
		return ACLAll
	}
	return initiator
}

// AddAccount creates a CHAP account.
func (a *Admin) AddAccount(ctx context.Context, user, password string) error {
	klog.V(2).Infof("Begin AddAccount...")
	_, err := a.tgtadmCmd(ctx, "--op", "new", "--mode", "account", "--user", user, "--password", password)
	return err
}

// RemoveAccount deletes a CHAP account.
func (a *Admin) RemoveAccount(ctx context.Context, user string) error {
	klog.V(2).Infof("Begin RemoveAccount...")
	_, err := a.tgtadmCmd(ctx, "--op", "delete", "--mode", "account", "--user", user)
	return err
}

// BindAccount binds an existing account to target tid, as the outgoing
// account when outgoing is set.
func (a *Admin) BindAccount(ctx context.Context, tid int, user string, outgoing bool) error {
	klog.V(2).Infof("Begin BindAccount (outgoing=%t)...", outgoing)
	_, err := a.tgtadmCmd(ctx, accountBindArgs("bind", tid, user, outgoing)...)
	return err
}

// UnbindAccount reverses BindAccount.
func (a *Admin) UnbindAccount(ctx context.Context, tid int, user string, outgoing bool) error {
	klog.V(2).Infof("Begin UnbindAccount (outgoing=%t)...", outgoing)
	_, err := a.tgtadmCmd(ctx, accountBindArgs("unbind", tid, user, outgoing)...)
	return err
}

func accountBindArgs(op string, tid int, user string, outgoing bool) []string {
	args := []string{"--op", op, "--mode", "account", "--tid", strconv.Itoa(tid), "--user", user}
	if outgoing {
		args = append(args, "--outgoing")
	}
	return args
}

// Purge deletes every target and then every account. It keeps going after a
// failure and returns all failures combined.
func (a *Admin) Purge(ctx context.Context) error {
	klog.V(2).Infof("Begin Purge...")
	var errs error

	targets, err := a.ListTargets(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to list targets: %w", err))
	}
	for _, tid := range TIDs(targets) {
		if err := a.DeleteTarget(ctx, tid); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to delete target %d: %w", tid, err))
		}
	}

	accounts, err := a.ListAccounts(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("failed to list accounts: %w", err))
	}
	for _, user := range sets.List(accounts) {
		if err := a.RemoveAccount(ctx, user); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to remove account %s: %w", user, err))
		}
	}

	return errs
}
