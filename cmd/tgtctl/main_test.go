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
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/config"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/libiscsi"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/tgtlib"
	"github.com/kubernetes-csi/csi-driver-tgt/pkg/tgtlib/fake"
)

const portalListing = `Target:iqn.2001-04.com.example:disk1 Portal:10.0.0.1:3260,1
Lun:1    Type:DIRECT_ACCESS (Size:1G)
Lun:2    Type:DIRECT_ACCESS (Size:512M)
Target:iqn.2001-04.com.example:disk0 Portal:10.0.0.1:3260,1
Lun:1    Type:DIRECT_ACCESS (Size:100k)
`

// toolRunner sends tgtadm to a fake daemon and answers the libiscsi tools
// from canned output.
type toolRunner struct {
	daemon *fake.Daemon
	ls     []string
	inq    map[string]string
	calls  [][]string
}

func (r *toolRunner) Run(ctx context.Context, command string, args ...string) ([]string, error) {
	switch command {
	case tgtlib.DefaultTgtadmPath:
		return r.daemon.Run(ctx, command, args...)
	case libiscsi.DefaultLsPath:
		r.calls = append(r.calls, args)
		if len(r.ls) == 0 {
			return nil, nil
		}
		out := r.ls[0]
		if len(r.ls) > 1 {
			r.ls = r.ls[1:]
		}
		return execlib.SplitLines(out), nil
	case libiscsi.DefaultInqPath:
		r.calls = append(r.calls, args)
		page := "standard"
		if len(args) > 1 {
			page = args[len(args)-2]
		}
		return execlib.SplitLines(r.inq[page]), nil
	}
	return nil, &execlib.ExecError{Command: command, Args: args, ExitCode: 127}
}

func runCtl(t *testing.T, r *toolRunner, args ...string) (string, error) {
	t.Helper()
	return runCtlOn(t, afero.NewMemMapFs(), r, args...)
}

func runCtlOn(t *testing.T, fs afero.Fs, r *toolRunner, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{fs: fs, runner: r, out: &out}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestTargetCommands(t *testing.T) {
	r := &toolRunner{daemon: fake.NewDaemon()}

	out, err := runCtl(t, r, "target", "new", "iqn.2001-04.com.example:a")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = runCtl(t, r, "target", "new", "--tid", "7", "iqn.2001-04.com.example:b")
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)

	_, err = runCtl(t, r, "lun", "add", "1", "1", "/srv/a.img")
	require.NoError(t, err)
	_, err = runCtl(t, r, "acl", "bind", "1")
	require.NoError(t, err)
	_, err = runCtl(t, r, "acl", "bind", "7", "10.0.0.7")
	require.NoError(t, err)

	out, err = runCtl(t, r, "target", "list", "-o", "json")
	require.NoError(t, err)
	var targets []tgtlib.Target
	require.NoError(t, json.Unmarshal([]byte(out), &targets))
	require.Len(t, targets, 2)
	assert.Equal(t, []string{"ALL"}, targets[0].ACL)
	assert.Equal(t, "/srv/a.img", targets[0].LUNs[0].BackingPath)
	assert.Equal(t, []string{"10.0.0.7"}, targets[1].ACL)

	out, err = runCtl(t, r, "target", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "TID"))
	assert.Contains(t, lines[1], "1:/srv/a.img")
	assert.Contains(t, lines[2], "iqn.2001-04.com.example:b")

	_, err = runCtl(t, r, "lun", "remove", "1", "1")
	require.NoError(t, err)
	_, err = runCtl(t, r, "acl", "unbind", "1")
	require.NoError(t, err)
	_, err = runCtl(t, r, "target", "delete", "1")
	require.NoError(t, err)

	_, err = runCtl(t, r, "target", "delete", "1")
	assert.True(t, tgtlib.IsNotFound(err))

	_, err = runCtl(t, r, "target", "delete", "one")
	assert.Error(t, err)
}

func TestAccountCommands(t *testing.T) {
	r := &toolRunner{daemon: fake.NewDaemon()}

	_, err := runCtl(t, r, "account", "add", "alice", "--password", "secret")
	require.NoError(t, err)
	p, ok := r.daemon.Password("alice")
	require.True(t, ok)
	assert.Equal(t, "secret", p)

	t.Setenv(passwordEnv, "fromenv")
	_, err = runCtl(t, r, "account", "add", "bob")
	require.NoError(t, err)
	p, _ = r.daemon.Password("bob")
	assert.Equal(t, "fromenv", p)

	out, err := runCtl(t, r, "account", "list", "-o", "json")
	require.NoError(t, err)
	var users []string
	require.NoError(t, json.Unmarshal([]byte(out), &users))
	assert.Equal(t, []string{"alice", "bob"}, users)

	_, err = runCtl(t, r, "target", "new", "iqn.2001-04.com.example:a")
	require.NoError(t, err)
	_, err = runCtl(t, r, "account", "bind", "1", "alice")
	require.NoError(t, err)
	_, err = runCtl(t, r, "account", "bind", "1", "bob", "--outgoing")
	require.NoError(t, err)

	out, err = runCtl(t, r, "target", "list", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "outgoingaccount: bob")

	_, err = runCtl(t, r, "account", "unbind", "1", "bob", "--outgoing")
	require.NoError(t, err)
	_, err = runCtl(t, r, "purge")
	require.NoError(t, err)

	out, err = runCtl(t, r, "account", "list")
	require.NoError(t, err)
	assert.Equal(t, "USER\n", out)
}

func TestPortalList(t *testing.T) {
	r := &toolRunner{ls: []string{portalListing}}

	out, err := runCtl(t, r, "portal", "list", "10.0.0.1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"iqn.2001-04.com.example:disk0", "1", "100", "KiB"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"iqn.2001-04.com.example:disk1", "1", "1.0", "GiB"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"iqn.2001-04.com.example:disk1", "2", "512", "MiB"}, strings.Fields(lines[3]))
	assert.Equal(t, [][]string{{"-s", "iscsi://10.0.0.1"}}, r.calls)
}

func TestPortalListWait(t *testing.T) {
	r := &toolRunner{ls: []string{"", portalListing}}

	out, err := runCtl(t, r, "portal", "list", "10.0.0.1", "--wait", "10s", "-o", "json")
	require.NoError(t, err)
	var luns []portalLUN
	require.NoError(t, json.Unmarshal([]byte(out), &luns))
	assert.Len(t, luns, 3)
	assert.Len(t, r.calls, 2)
}

func TestPortalListWaitParseError(t *testing.T) {
	r := &toolRunner{ls: []string{"Target:iqn.x Portal:p\nLun:1 Type:DIRECT_ACCESS (Size:12Q)\n"}}

	_, err := runCtl(t, r, "portal", "list", "10.0.0.1", "--wait", "10s")
	assert.True(t, execlib.IsParseError(err))
	assert.Len(t, r.calls, 1)
}

func TestPortalInquiry(t *testing.T) {
	r := &toolRunner{inq: map[string]string{
		"standard": "Peripheral Qualifier:0\nVendor:IET     \nProduct:VIRTUAL-DISK\n",
		"128":      "Page Code:0x80\nUnit Serial Number:[beaf11]\n",
		"131":      "Page Code:0x83\nDesignator:[IET     00010001]\n",
	}}

	out, err := runCtl(t, r, "portal", "inquiry", "10.0.0.1", "iqn.2001-04.com.example:disk1", "1", "-o", "json")
	require.NoError(t, err)
	var got inquiry
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, inquiry{
		URL:              "iscsi://10.0.0.1/iqn.2001-04.com.example:disk1/1",
		Vendor:           "IET",
		UnitSerialNumber: "beaf11",
		DeviceIdentifier: "IET     00010001",
	}, got)
}

func TestBadOutputFormat(t *testing.T) {
	r := &toolRunner{daemon: fake.NewDaemon()}

	_, err := runCtl(t, r, "target", "list", "-o", "xml")
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/tgt.yaml", []byte("portal: 10.0.0.1:3260\nbackingDir: /srv/tgt\n"), 0644))
	r := &toolRunner{daemon: fake.NewDaemon()}

	out, err := runCtlOn(t, fs, r, "--config", "/etc/tgt.yaml", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "portal")
	assert.Contains(t, out, "10.0.0.1:3260")
	assert.Contains(t, out, "/srv/tgt")

	_, err = runCtlOn(t, fs, r, "--config", "/etc/tgt.yaml", "config", "write", "/etc/copy.yaml")
	require.NoError(t, err)
	saved, err := config.Load(fs, "/etc/copy.yaml")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:3260", saved.Portal)
	assert.Equal(t, "/srv/tgt", saved.BackingDir)

	_, err = runCtlOn(t, fs, r, "config", "write", "/etc/copy.yaml")
	assert.ErrorContains(t, err, "already exists")

	_, err = runCtlOn(t, fs, r, "config", "write", "--force", "/etc/copy.yaml")
	require.NoError(t, err)
	saved, err = config.Load(fs, "/etc/copy.yaml")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), saved)
}
