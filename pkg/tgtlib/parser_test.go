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
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
)

const showTargetOutput = `Target 1: iqn.2001-04.com.example:storage.disk1
    System information:
        Driver: iscsi
        State: ready
    I_T nexus information:
        I_T nexus: 2
            Initiator: iqn.1994-05.com.redhat:8a3f2c1e alias: node1
            Connection: 0
                IP Address: 192.168.10.21
    LUN information:
        LUN: 0
            Type: controller
            SCSI ID: IET     00010000
            SCSI SN: beaf10
            Size: 0 MB, Block size: 1
            Online: Yes
            Removable media: No
            Prevent removal: No
            Readonly: No
            SWP: No
            Thin-provisioning: No
            Backing store type: null
            Backing store path: None
            Backing store flags:
        LUN: 1
            Type: disk
            SCSI ID: IET     00010001
            SCSI SN: beaf11
            Size: 1 MB, Block size: 512
            Online: Yes
            Removable media: No
            Prevent removal: No
            Readonly: No
            SWP: No
            Thin-provisioning: No
            Backing store type: rdwr
            Backing store path: /tmp/block
            Backing store flags:
        LUN: 2
            Type: disk
            SCSI ID: IET     00010002
            SCSI SN: beaf12
            Size: 1 MB, Block size: 512
            Backing store type: rdwr
            Backing store path: /var/lib/tgt/vol 2.img
            Backing store flags:
    Account information:
        alice
        bob (outgoing)
    ACL information:
        ALL
Target 3: iqn.2001-04.com.example:storage.disk3
    System information:
        Driver: iscsi
        State: ready
    I_T nexus information:
    LUN information:
        LUN: 0
            Type: controller
            SCSI ID: IET     00030000
            SCSI SN: beaf30
            Backing store type: null
            Backing store path: None
            Backing store flags:
    Account information:
    ACL information:
        192.168.10.0/24
        iqn.1994-05.com.redhat:8a3f2c1e
`

func TestParseTargets(t *testing.T) {
	assert := assert.New(t)

	targets, err := ParseTargets(execlib.SplitLines(showTargetOutput))
	require.NoError(t, err)
	require.Len(t, targets, 2)

	first := targets[0]
	assert.Equal(1, first.TID)
	assert.Equal("iqn.2001-04.com.example:storage.disk1", first.IQN)
	assert.Equal([]LUN{
		{ID: 1, Type: "disk", SCSIVendor: "IET", SCSIID: "00010001", SCSISN: "beaf11", BackingStoreType: "rdwr", BackingPath: "/tmp/block"},
		{ID: 2, Type: "disk", SCSIVendor: "IET", SCSIID: "00010002", SCSISN: "beaf12", BackingStoreType: "rdwr", BackingPath: "/var/lib/tgt/vol 2.img"},
	}, first.LUNs)
	require.NotNil(t, first.Controller)
	assert.Equal(0, first.Controller.ID)
	assert.Equal("controller", first.Controller.Type)
	assert.Equal([]string{"ALL"}, first.ACL)
	assert.True(first.AllowsAll())
	assert.Equal([]string{"alice", "bob"}, first.Accounts)
	assert.Equal("bob", first.OutgoingAccount)

	second := targets[1]
	assert.Equal(3, second.TID)
	assert.Empty(second.LUNs)
	assert.NotNil(second.LUNs)
	assert.Equal([]string{}, second.Accounts)
	assert.Equal("", second.OutgoingAccount)
	assert.Equal([]string{"192.168.10.0/24", "iqn.1994-05.com.redhat:8a3f2c1e"}, second.ACL)
	assert.False(second.AllowsAll())

	lun, ok := first.LUN(2)
	assert.True(ok)
	assert.Equal("/var/lib/tgt/vol 2.img", lun.BackingPath)
	_, ok = first.LUN(0)
	assert.False(ok)
}

func TestParseTargetsEdgeCases(t *testing.T) {
	tests := map[string]struct {
		input       string
		wantTargets []Target
	}{
		"EmptyOutput": {
			input:       "",
			wantTargets: []Target{},
		},
		"NoisyPreamble": {
			input: "tgtadm: some warning\nLUN: 4\nBacking store path: /dev/null\nTarget 2: iqn.x:y",
			wantTargets: []Target{
				{TID: 2, IQN: "iqn.x:y", LUNs: []LUN{}, ACL: []string{}, Accounts: []string{}},
			},
		},
		"LUNWithoutBackingPathFlushedAtNextLUN": {
			input: "Target 1: iqn.x:a\n  LUN: 3\n    SCSI SN: sn3\n  LUN: 4\n    Backing store path: /b",
			wantTargets: []Target{
				{TID: 1, IQN: "iqn.x:a", ACL: []string{}, Accounts: []string{}, LUNs: []LUN{
					{ID: 3, SCSISN: "sn3"},
					{ID: 4, BackingPath: "/b"},
				}},
			},
		},
		"LUNWithoutBackingPathFlushedAtEnd": {
			input: "Target 1: iqn.x:a\n  LUN: 3\n    Type: disk",
			wantTargets: []Target{
				{TID: 1, IQN: "iqn.x:a", ACL: []string{}, Accounts: []string{}, LUNs: []LUN{{ID: 3, Type: "disk"}}},
			},
		},
		"LUNFlushedAtACLHeader": {
			input: "Target 1: iqn.x:a\n  LUN: 3\n  ACL information:\n    10.0.0.1",
			wantTargets: []Target{
				{TID: 1, IQN: "iqn.x:a", ACL: []string{"10.0.0.1"}, Accounts: []string{}, LUNs: []LUN{{ID: 3}}},
			},
		},
		"FieldsAfterBackingPathIgnored": {
			input: "Target 1: iqn.x:a\n  LUN: 1\n    Backing store path: /b\n    SCSI ID: IET 1\n    SCSI SN: late",
			wantTargets: []Target{
				{TID: 1, IQN: "iqn.x:a", ACL: []string{}, Accounts: []string{}, LUNs: []LUN{{ID: 1, BackingPath: "/b"}}},
			},
		},
		"ACLEndsAtTarget": {
			input: "Target 1: iqn.x:a\nACL information:\n  ALL\nTarget 2: iqn.x:b\n  LUN: 1\n  Backing store path: /c",
			wantTargets: []Target{
				{TID: 1, IQN: "iqn.x:a", ACL: []string{"ALL"}, Accounts: []string{}, LUNs: []LUN{}},
				{TID: 2, IQN: "iqn.x:b", ACL: []string{}, Accounts: []string{}, LUNs: []LUN{{ID: 1, BackingPath: "/c"}}},
			},
		},
		"UnknownAccountLinesSkipped": {
			input: "Target 1: iqn.x:a\nAccount information:\n  carol\n  not an account\n  dave (Outgoing)",
			wantTargets: []Target{
				{TID: 1, IQN: "iqn.x:a", ACL: []string{}, LUNs: []LUN{}, Accounts: []string{"carol", "dave"}, OutgoingAccount: "dave"},
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			targets, err := ParseTargets(execlib.SplitLines(tt.input))
			assert.Nil(t, err)
			assert.Equal(t, tt.wantTargets, targets)
		})
	}
}

func TestParseTargetsErrors(t *testing.T) {
	tests := map[string]struct {
		input    string
		wantLine int
		wantText string
	}{
		"ExtraWordsInACL": {
			input:    "Target 1: iqn.x:a\nACL information:\n  ALL\n  foo bar",
			wantLine: 4,
			wantText: "  foo bar",
		},
		"BlankLineInACL": {
			input:    "Target 1: iqn.x:a\nACL information:\n\nTarget 2: iqn.x:b",
			wantLine: 3,
			wantText: "",
		},
		"HeaderInACL": {
			input:    "Target 1: iqn.x:a\nACL information:\nAccount information:",
			wantLine: 3,
			wantText: "Account information:",
		},
		"NonNumericTID": {
			input:    "Target one: iqn.x:a",
			wantLine: 1,
			wantText: "Target one: iqn.x:a",
		},
		"NonNumericLUN": {
			input:    "Target 1: iqn.x:a\n  LUN: x",
			wantLine: 2,
			wantText: "  LUN: x",
		},
		"DuplicateTID": {
			input:    "Target 1: iqn.x:a\nTarget 1: iqn.x:b",
			wantLine: 2,
			wantText: "Target 1: iqn.x:b",
		},
		"DuplicateLUN": {
			input:    "Target 1: iqn.x:a\n  LUN: 1\n  Backing store path: /a\n  LUN: 1",
			wantLine: 4,
			wantText: "  LUN: 1",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			targets, err := ParseTargets(strings.Split(tt.input, "\n"))
			assert.Nil(targets)

			var pe *execlib.ParseError
			if assert.True(errors.As(err, &pe)) {
				assert.Equal("tgtadm", pe.Tool)
				assert.Equal(tt.wantLine, pe.Line)
				assert.Equal(tt.wantText, pe.Text)
			}
		})
	}
}

func TestParseTargetsUniqueIDs(t *testing.T) {
	var b strings.Builder
	b.WriteString("Target 1: iqn.x:many\n")
	for i := 0; i < 100; i++ {
		b.WriteString("    LUN: " + strconv.Itoa(i) + "\n")
		if i == 0 {
			b.WriteString("        Backing store path: None\n")
			continue
		}
		b.WriteString("        Backing store path: /dev/sdb\n")
	}

	targets, err := ParseTargets(execlib.SplitLines(b.String()))
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Len(t, targets[0].LUNs, 99)

	seen := sets.New[int]()
	for _, l := range targets[0].LUNs {
		assert.False(t, seen.Has(l.ID))
		seen.Insert(l.ID)
		assert.Equal(t, "/dev/sdb", l.BackingPath)
	}
}

func TestParseAccounts(t *testing.T) {
	tests := map[string]struct {
		input string
		want  sets.Set[string]
	}{
		"Empty": {
			input: "",
			want:  sets.New[string](),
		},
		"HeaderOnly": {
			input: "Account list:",
			want:  sets.New[string](),
		},
		"TwoUsers": {
			input: "Account list:\n    root\n    root2\n",
			want:  sets.New("root", "root2"),
		},
		"LinesBeforeHeaderIgnored": {
			input: "stray\nAccount list:\n    root",
			want:  sets.New("root"),
		},
		"MultiWordLinesIgnored": {
			input: "Account list:\n    root\n    some noise here\n",
			want:  sets.New("root"),
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAccounts(execlib.SplitLines(tt.input)))
		})
	}
}

func TestLookups(t *testing.T) {
	assert := assert.New(t)
	targets := []Target{{TID: 4, IQN: "iqn.x:d"}, {TID: 2, IQN: "iqn.x:b"}}

	tgt, ok := FindTarget(targets, 2)
	assert.True(ok)
	assert.Equal("iqn.x:b", tgt.IQN)
	_, ok = FindTarget(targets, 3)
	assert.False(ok)

	tgt, ok = FindTargetByIQN(targets, "iqn.x:d")
	assert.True(ok)
	assert.Equal(4, tgt.TID)
	_, ok = FindTargetByIQN(targets, "iqn.x:z")
	assert.False(ok)

	assert.Equal(5, NextTID(targets))
	assert.Equal(1, NextTID(nil))
	assert.Equal([]int{2, 4}, TIDs(targets))
}
