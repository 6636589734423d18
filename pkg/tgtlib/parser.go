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
	"regexp"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
)

const (
	toolName = "tgtadm"

	// controllerBackingPath marks the implicit LUN 0 controller.
	controllerBackingPath = "None"
)

type parseState int

const (
	stateSeeking parseState = iota
	stateInTarget
	stateInLUN
	stateInACL
	stateInAccounts
)

type lineKind int

const (
	lineOther lineKind = iota
	lineTarget
	lineLUN
	lineType
	lineSCSIID
	lineSCSISN
	lineBackingType
	lineBackingPath
	lineACLHeader
	lineAccountHeader
	lineOutgoing
	lineToken
)

// Patterns are tried in order; the first match decides the line kind.
var linePatterns = []struct {
	kind lineKind
	re   *regexp.Regexp
}{
	{lineTarget, regexp.MustCompile(`^\s*Target (\S+): (\S+)$`)},
	{lineLUN, regexp.MustCompile(`^\s*LUN: (\S+)$`)},
	{lineType, regexp.MustCompile(`^\s*Type: (\S+)$`)},
	{lineSCSIID, regexp.MustCompile(`^\s*SCSI ID: (\S+)\s+(\S+)$`)},
	{lineSCSISN, regexp.MustCompile(`^\s*SCSI SN: (\S+)$`)},
	{lineBackingType, regexp.MustCompile(`^\s*Backing store type: (\S+)$`)},
	{lineBackingPath, regexp.MustCompile(`^\s*Backing store path: (\S.*)$`)},
	{lineACLHeader, regexp.MustCompile(`^\s*ACL information:$`)},
	{lineAccountHeader, regexp.MustCompile(`^\s*Account information:$`)},
	{lineOutgoing, regexp.MustCompile(`(?i)^\s*(\S+) \(outgoing\)$`)},
	{lineToken, regexp.MustCompile(`^\s*(\S+)$`)},
}

var accountListRe = regexp.MustCompile(`^\s*Account list:$`)

func classify(line string) (lineKind, []string) {
	line = strings.TrimRight(line, " \t")
	for _, p := range linePatterns {
		if m := p.re.FindStringSubmatch(line); m != nil {
			return p.kind, m
		}
	}
	return lineOther, nil
}

type action func(p *targetParser, m []string) error

// transitions maps each state to the line kinds it reacts to. A line kind
// missing from a state's row is skipped, except in stateInACL where it is a
// parse error.
var transitions = map[parseState]map[lineKind]action{
	stateSeeking: {
		lineTarget: (*targetParser).startTarget,
	},
	stateInTarget: {
		lineTarget:        (*targetParser).startTarget,
		lineLUN:           (*targetParser).startLUN,
		lineACLHeader:     (*targetParser).startACL,
		lineAccountHeader: (*targetParser).startAccounts,
	},
	stateInLUN: {
		lineTarget:        (*targetParser).startTarget,
		lineLUN:           (*targetParser).startLUN,
		lineACLHeader:     (*targetParser).startACL,
		lineAccountHeader: (*targetParser).startAccounts,
		lineType:          (*targetParser).setType,
		lineSCSIID:        (*targetParser).setSCSIID,
		lineSCSISN:        (*targetParser).setSCSISN,
		lineBackingType:   (*targetParser).setBackingType,
		lineBackingPath:   (*targetParser).setBackingPath,
	},
	stateInACL: {
		lineTarget: (*targetParser).startTarget,
		lineToken:  (*targetParser).appendACL,
	},
	stateInAccounts: {
		lineTarget:        (*targetParser).startTarget,
		lineLUN:           (*targetParser).startLUN,
		lineACLHeader:     (*targetParser).startACL,
		lineAccountHeader: (*targetParser).startAccounts,
		lineToken:         (*targetParser).appendAccount,
		lineOutgoing:      (*targetParser).setOutgoing,
	},
}

type targetParser struct {
	state   parseState
	lineNo  int
	line    string
	targets []Target
	tids    sets.Set[int]
	current *Target
	lunIDs  sets.Set[int]
	pending *LUN
}

// ParseTargets parses the output of "tgtadm --op show --mode target".
func ParseTargets(lines []string) ([]Target, error) {
	p := &targetParser{
		state:   stateSeeking,
		targets: []Target{},
		tids:    sets.New[int](),
	}

	for i, line := range lines {
		p.lineNo, p.line = i+1, line
		kind, m := classify(line)
		next, ok := transitions[p.state][kind]
		if !ok {
			if p.state == stateInACL {
				return nil, p.errorf("unexpected line in ACL section")
			}
			continue
		}
		if err := next(p, m); err != nil {
			return nil, err
		}
	}

	p.flushTarget()
	return p.targets, nil
}

func (p *targetParser) errorf(reason string) error {
	return &execlib.ParseError{Tool: toolName, Line: p.lineNo, Text: p.line, Reason: reason}
}

// flushLUN moves the pending LUN into the current target and clears it.
func (p *targetParser) flushLUN() {
	if p.pending == nil {
		return
	}
	if p.pending.BackingPath == controllerBackingPath {
		p.current.Controller = p.pending
	} else {
		p.current.LUNs = append(p.current.LUNs, *p.pending)
	}
	p.pending = nil
}

func (p *targetParser) flushTarget() {
	if p.current == nil {
		return
	}
	p.flushLUN()
	p.targets = append(p.targets, *p.current)
	p.current = nil
}

func (p *targetParser) startTarget(m []string) error {
	tid, err := strconv.Atoi(m[1])
	if err != nil {
		return p.errorf("invalid target id")
	}
	if p.tids.Has(tid) {
		return p.errorf("duplicate target id")
	}
	p.flushTarget()

	p.tids.Insert(tid)
	p.current = newTarget(tid, m[2])
	p.lunIDs = sets.New[int]()
	p.state = stateInTarget
	return nil
}

func (p *targetParser) startLUN(m []string) error {
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return p.errorf("invalid LUN id")
	}
	p.flushLUN()
	if p.lunIDs.Has(id) {
		return p.errorf("duplicate LUN id")
	}

	p.lunIDs.Insert(id)
	p.pending = &LUN{ID: id}
	p.state = stateInLUN
	return nil
}

func (p *targetParser) startACL(_ []string) error {
	p.flushLUN()
	p.current.ACL = []string{}
	p.state = stateInACL
	return nil
}

func (p *targetParser) startAccounts(_ []string) error {
	p.flushLUN()
	p.current.Accounts = []string{}
	p.state = stateInAccounts
	return nil
}

func (p *targetParser) setType(m []string) error {
	p.pending.Type = m[1]
	return nil
}

func (p *targetParser) setSCSIID(m []string) error {
	p.pending.SCSIVendor, p.pending.SCSIID = m[1], m[2]
	return nil
}

func (p *targetParser) setSCSISN(m []string) error {
	p.pending.SCSISN = m[1]
	return nil
}

func (p *targetParser) setBackingType(m []string) error {
	p.pending.BackingStoreType = m[1]
	return nil
}

func (p *targetParser) setBackingPath(m []string) error {
	p.pending.BackingPath = m[1]
	p.flushLUN()
	p.state = stateInTarget
	return nil
}

func (p *targetParser) appendACL(m []string) error {
	p.current.ACL = append(p.current.ACL, m[1])
	return nil
}

func (p *targetParser) appendAccount(m []string) error {
	p.current.Accounts = append(p.current.Accounts, m[1])
	return nil
}

func (p *targetParser) setOutgoing(m []string) error {
	p.current.Accounts = append(p.current.Accounts, m[1])
	p.current.OutgoingAccount = m[1]
	return nil
}

// ParseAccounts parses the output of "tgtadm --op show --mode account".
// Lines before "Account list:" and lines that are not a single user name are
// ignored.
func ParseAccounts(lines []string) sets.Set[string] {
	accounts := sets.New[string]()
	reading := false
	for _, line := range lines {
		if accountListRe.MatchString(strings.TrimRight(line, " \t")) {
			reading = true
			continue
		}
		if !reading {
			continue
		}
		if kind, m := classify(line); kind == lineToken {
			accounts.Insert(m[1])
		}
	}
	return accounts
}
