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

// Package fake provides an in-memory tgtd that answers tgtadm command lines
// with the text tgtadm prints, for use in tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
)

// tgtadm exit codes.
const (
	ErrNoTarget        = 4
	ErrNoLUN           = 5
	ErrNoBinding       = 8
	ErrTargetExists    = 9
	ErrBindingExists   = 10
	ErrLUNExists       = 11
	ErrACLExists       = 12
	ErrACLMissing      = 13
	ErrUserExists      = 14
	ErrNoUser          = 15
	ErrInvalidRequest  = 17
	ErrOutgoingAccount = 18
)

var errorMessages = map[int]string{
	ErrNoTarget:        "can't find the target",
	ErrNoLUN:           "can't find the logical unit",
	ErrNoBinding:       "can't find the binding",
	ErrTargetExists:    "this target already exists",
	ErrBindingExists:   "this binding already exists",
	ErrLUNExists:       "this logical unit number already exists",
	ErrACLExists:       "this access control rule already exists",
	ErrACLMissing:      "this access control rule does not exist",
	ErrUserExists:      "this account already exists",
	ErrNoUser:          "can't find the account",
	ErrInvalidRequest:  "invalid request",
	ErrOutgoingAccount: "this target already has an outgoing account",
}

type target struct {
	iqn      string
	luns     map[int]string
	acl      []string
	accounts []string
	outgoing string
}

// Daemon is a simulated tgtd. It implements execlib.Runner and is safe for
// concurrent use.
type Daemon struct {
	mu       sync.Mutex
	targets  map[int]*target
	accounts map[string]string
	calls    [][]string

	// Fail, when set, is consulted before every command. A non-nil result
	// is returned instead of running the command.
	Fail func(args []string) error
}

// NewDaemon returns a daemon with no targets and no accounts.
func NewDaemon() *Daemon {
	return &Daemon{
		targets:  map[int]*target{},
		accounts: map[string]string{},
	}
}

// Calls returns the argument vectors seen so far, without the command name.
func (d *Daemon) Calls() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// Password returns the password an account was created with.
func (d *Daemon) Password(user string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.accounts[user]
	return p, ok
}

type request struct {
	op, mode string
	tid      int
	hasTID   bool
	lun      int
	hasLUN   bool
	iqn      string
	backing  string
	acl      string
	user     string
	password string
	outgoing bool
}

func parseRequest(args []string) (*request, bool) {
	r := &request{}
	value := func(i int) (string, bool) {
		if i+1 >= len(args) {
			return "", false
		}
		return args[i+1], true
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if v, ok := strings.CutPrefix(arg, "--tid="); ok {
			tid, err := strconv.Atoi(v)
			if err != nil {
				return nil, false
			}
			r.tid, r.hasTID = tid, true
			continue
		}
		switch arg {
		case "--outgoing":
			r.outgoing = true
			continue
		case "--lld", "--op", "--mode", "--tid", "--lun", "-T", "-b", "-I", "--user", "--password":
		default:
			return nil, false
		}
		v, ok := value(i)
		if !ok {
			return nil, false
		}
		i++
		switch arg {
		case "--op":
			r.op = v
		case "--mode":
			r.mode = v
		case "--tid", "--lun":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, false
			}
			if arg == "--tid" {
				r.tid, r.hasTID = n, true
			} else {
				r.lun, r.hasLUN = n, true
			}
		case "-T":
			r.iqn = v
		case "-b":
			r.backing = v
		case "-I":
			r.acl = v
		case "--user":
			r.user = v
		case "--password":
			r.password = v
		}
	}
	return r, true
}

// Run implements execlib.Runner.
func (d *Daemon) Run(ctx context.Context, command string, args ...string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, append([]string(nil), args...))
	if d.Fail != nil {
		if err := d.Fail(args); err != nil {
			return nil, err
		}
	}

	fail := func(code int) ([]string, error) {
		return nil, &execlib.ExecError{
			Command:  command,
			Args:     execlib.RedactArgs(args),
			ExitCode: code,
			Stderr:   "tgtadm: " + errorMessages[code],
		}
	}

	r, ok := parseRequest(args)
	if !ok {
		return fail(ErrInvalidRequest)
	}

	var code int
	switch r.mode + "/" + r.op {
	case "target/show":
		return execlib.SplitLines(d.showTargets()), nil
	case "account/show":
		return execlib.SplitLines(d.showAccounts()), nil
	case "target/new":
		code = d.newTarget(r)
	case "target/delete":
		code = d.deleteTarget(r)
	case "target/bind", "target/unbind":
		code = d.bindACL(r)
	case "logicalunit/new":
		code = d.newLUN(r)
	case "logicalunit/delete":
		code = d.deleteLUN(r)
	case "account/new":
		code = d.newAccount(r)
	case "account/delete":
		code = d.deleteAccount(r)
	case "account/bind", "account/unbind":
		code = d.bindAccount(r)
	default:
		code = ErrInvalidRequest
	}
	if code != 0 {
		return fail(code)
	}
	return nil, nil
}

func (d *Daemon) newTarget(r *request) int {
	if !r.hasTID || r.iqn == "" {
		return ErrInvalidRequest
	}
	if _, ok := d.targets[r.tid]; ok {
		return ErrTargetExists
	}
	for _, t := range d.targets {
		if t.iqn == r.iqn {
			return ErrTargetExists
		}
	}
	d.targets[r.tid] = &target{iqn: r.iqn, luns: map[int]string{}}
	return 0
}

func (d *Daemon) deleteTarget(r *request) int {
	if !r.hasTID {
		return ErrInvalidRequest
	}
	if _, ok := d.targets[r.tid]; !ok {
		return ErrNoTarget
	}
	delete(d.targets, r.tid)
	return 0
}

func (d *Daemon) newLUN(r *request) int {
	if !r.hasTID || !r.hasLUN || r.backing == "" {
		return ErrInvalidRequest
	}
	t, ok := d.targets[r.tid]
	if !ok {
		return ErrNoTarget
	}
	if _, ok := t.luns[r.lun]; ok || r.lun == 0 {
		return ErrLUNExists
	}
	t.luns[r.lun] = r.backing
	return 0
}

func (d *Daemon) deleteLUN(r *request) int {
	if !r.hasTID || !r.hasLUN {
		return ErrInvalidRequest
	}
	t, ok := d.targets[r.tid]
	if !ok {
		return ErrNoTarget
	}
	if _, ok := t.luns[r.lun]; !ok {
		return ErrNoLUN
	}
	delete(t.luns, r.lun)
	return 0
}

func (d *Daemon) bindACL(r *request) int {
	if !r.hasTID || r.acl == "" {
		return ErrInvalidRequest
	}
	t, ok := d.targets[r.tid]
	if !ok {
		return ErrNoTarget
	}
	i := indexOf(t.acl, r.acl)
	if r.op == "bind" {
		if i >= 0 {
			return ErrACLExists
		}
		t.acl = append(t.acl, r.acl)
		return 0
	}
	if i < 0 {
		return ErrACLMissing
	}
	t.acl = append(t.acl[:i], t.acl[i+1:]...)
	return 0
}

func (d *Daemon) newAccount(r *request) int {
	if r.user == "" || r.password == "" {
		return ErrInvalidRequest
	}
	if _, ok := d.accounts[r.user]; ok {
		return ErrUserExists
	}
	d.accounts[r.user] = r.password
	return 0
}

func (d *Daemon) deleteAccount(r *request) int {
	if r.user == "" {
		return ErrInvalidRequest
	}
	if _, ok := d.accounts[r.user]; !ok {
		return ErrNoUser
	}
	delete(d.accounts, r.user)
	for _, t := range d.targets {
		if i := indexOf(t.accounts, r.user); i >= 0 {
			t.accounts = append(t.accounts[:i], t.accounts[i+1:]...)
		}
		if t.outgoing == r.user {
			t.outgoing = ""
		}
	}
	return 0
}

func (d *Daemon) bindAccount(r *request) int {
	if !r.hasTID || r.user == "" {
		return ErrInvalidRequest
	}
	t, ok := d.targets[r.tid]
	if !ok {
		return ErrNoTarget
	}
	if _, ok := d.accounts[r.user]; !ok {
		return ErrNoUser
	}

	if r.outgoing {
		switch {
		case r.op == "bind" && t.outgoing == r.user:
			return ErrBindingExists
		case r.op == "bind" && t.outgoing != "":
			return ErrOutgoingAccount
		case r.op == "bind":
			t.outgoing = r.user
		case t.outgoing != r.user:
			return ErrNoBinding
		default:
			t.outgoing = ""
		}
		return 0
	}

	i := indexOf(t.accounts, r.user)
	if r.op == "bind" {
		if i >= 0 {
			return ErrBindingExists
		}
		t.accounts = append(t.accounts, r.user)
		return 0
	}
	if i < 0 {
		return ErrNoBinding
	}
	t.accounts = append(t.accounts[:i], t.accounts[i+1:]...)
	return 0
}

func (d *Daemon) showTargets() string {
	tids := make([]int, 0, len(d.targets))
	for tid := range d.targets {
		tids = append(tids, tid)
	}
	sort.Ints(tids)

	var b strings.Builder
	for _, tid := range tids {
		t := d.targets[tid]
		fmt.Fprintf(&b, "Target %d: %s\n", tid, t.iqn)
		b.WriteString("    System information:\n")
		b.WriteString("        Driver: iscsi\n")
		b.WriteString("        State: ready\n")
		b.WriteString("    I_T nexus information:\n")
		b.WriteString("    LUN information:\n")
		writeLUN(&b, tid, 0, "")

		ids := make([]int, 0, len(t.luns))
		for id := range t.luns {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			writeLUN(&b, tid, id, t.luns[id])
		}

		b.WriteString("    Account information:\n")
		for _, user := range t.accounts {
			fmt.Fprintf(&b, "        %s\n", user)
		}
		if t.outgoing != "" {
			fmt.Fprintf(&b, "        %s (outgoing)\n", t.outgoing)
		}
		b.WriteString("    ACL information:\n")
		for _, a := range t.acl {
			fmt.Fprintf(&b, "        %s\n", a)
		}
	}
	return b.String()
}

func writeLUN(b *strings.Builder, tid, id int, path string) {
	lunType, size, blockSize, storeType := "disk", "1 MB", 512, "rdwr"
	if id == 0 {
		lunType, size, blockSize, storeType, path = "controller", "0 MB", 1, "null", "None"
	}
	fmt.Fprintf(b, "        LUN: %d\n", id)
	fmt.Fprintf(b, "            Type: %s\n", lunType)
	fmt.Fprintf(b, "            SCSI ID: IET     %04x%04x\n", tid, id)
	fmt.Fprintf(b, "            SCSI SN: beaf%d%d\n", tid, id)
	fmt.Fprintf(b, "            Size: %s, Block size: %d\n", size, blockSize)
	b.WriteString("            Online: Yes\n")
	b.WriteString("            Removable media: No\n")
	b.WriteString("            Prevent removal: No\n")
	b.WriteString("            Readonly: No\n")
	b.WriteString("            SWP: No\n")
	b.WriteString("            Thin-provisioning: No\n")
	fmt.Fprintf(b, "            Backing store type: %s\n", storeType)
	fmt.Fprintf(b, "            Backing store path: %s\n", path)
	b.WriteString("            Backing store flags:\n")
}

func (d *Daemon) showAccounts() string {
	users := make([]string, 0, len(d.accounts))
	for u := range d.accounts {
		users = append(users, u)
	}
	sort.Strings(users)

	var b strings.Builder
	b.WriteString("Account list:\n")
	for _, u := range users {
		fmt.Fprintf(&b, "    %s\n", u)
	}
	return b.String()
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
