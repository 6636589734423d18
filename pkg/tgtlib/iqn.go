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
	"fmt"
	"strings"
	"sync"
)

const (
	// DefaultIQNPrefix is the naming authority used when none is configured.
	DefaultIQNPrefix = "iqn.2001-04.com.example"

	// MaxIQNLength is the longest iSCSI name allowed, in bytes.
	MaxIQNLength = 223
)

// IQNSequence hands out distinct target names "<prefix>:<n>".
type IQNSequence struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewIQNSequence returns a sequence whose first name ends in start.
func NewIQNSequence(prefix string, start int) *IQNSequence {
	if prefix == "" {
		prefix = DefaultIQNPrefix
	}
	return &IQNSequence{prefix: prefix, next: start}
}

// Next returns the next name in the sequence.
func (s *IQNSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	iqn := fmt.Sprintf("%s:%d", s.prefix, s.next)
	s.next++
	return iqn
}

// MakeIQN builds a target name from prefix and a free-form name. Characters
// not allowed in an IQN are replaced with '-'.
func MakeIQN(prefix, name string) string {
	if prefix == "" {
		prefix = DefaultIQNPrefix
	}
	return prefix + ":" + SanitizeIQNName(name)
}

// SanitizeIQNName lower-cases name and keeps only characters valid in the
// unique part of an IQN.
func SanitizeIQNName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.', r == ':':
			return r
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		case r == '/':
			return ':'
		default:
			return '-'
		}
	}, name)
}

// IsValidIQNName reports whether name can be used as the unique part of an
// IQN without rewriting, so that distinct names give distinct IQNs.
func IsValidIQNName(name string) bool {
	return name != "" && SanitizeIQNName(name) == name
}
