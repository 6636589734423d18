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

package libiscsi

import (
	"fmt"
	"math/bits"
	"regexp"
	"strconv"
	"strings"

	"github.com/kubernetes-csi/csi-driver-tgt/pkg/execlib"
)

// LUNSize is one LUN reported by a portal listing.
type LUNSize struct {
	ID   int    `json:"id"`
	Size uint64 `json:"size"`
}

// Listing maps target IQNs to the LUNs they expose, in listing order.
type Listing map[string][]LUNSize

var (
	targetRe      = regexp.MustCompile(`^Target:(\S+) Portal:(\S+)$`)
	lunRe         = regexp.MustCompile(`^Lun:(\d+)\s+.*\(Size:(.+)\)$`)
	vendorRe      = regexp.MustCompile(`^\s*Vendor:(.+)$`)
	unitSerialRe  = regexp.MustCompile(`^\s*Unit Serial Number:\[(.+)\]$`)
	designatorRe  = regexp.MustCompile(`^\s*Designator:\[(.+)\]$`)
	sizeMultiples = map[byte]uint{'k': 10, 'M': 20, 'G': 30, 'T': 40}
)

// ParseListing parses the output of "iscsi-ls -s". A target is only recorded
// once it has at least one LUN; a later target with the same IQN replaces
// the earlier one.
func ParseListing(lines []string) (Listing, error) {
	listing := Listing{}
	var (
		current string
		luns    []LUNSize
	)

	flush := func() {
		if len(luns) > 0 {
			listing[current] = luns
		}
		luns = nil
	}

	for i, line := range lines {
		if m := targetRe.FindStringSubmatch(line); m != nil {
			flush()
			current = m[1]
			continue
		}
		m := lunRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if current == "" {
			// LUNs reported before any target cannot be attributed.
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, &execlib.ParseError{Tool: lsToolName, Line: i + 1, Text: line, Reason: "invalid LUN id"}
		}
		size, err := ParseSize(m[2])
		if err != nil {
			return nil, &execlib.ParseError{Tool: lsToolName, Line: i + 1, Text: line, Reason: err.Error()}
		}
		luns = append(luns, LUNSize{ID: id, Size: size})
	}
	flush()

	return listing, nil
}

// ParseSize converts an iscsi-ls size such as "512", "4k" or "2G" to bytes.
// Suffixes are powers of 1024.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	var shift uint
	if n, ok := sizeMultiples[s[len(s)-1]]; ok {
		shift = n
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if shift > 0 && bits.LeadingZeros64(v) < int(shift) {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return v << shift, nil
}

func firstMatch(re *regexp.Regexp, lines []string) (string, bool) {
	for _, line := range lines {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ParseVendor returns the vendor reported by a standard inquiry. A blank
// vendor field counts as absent.
func ParseVendor(lines []string) (string, bool) {
	v, _ := firstMatch(vendorRe, lines)
	v = strings.TrimSpace(v)
	return v, v != ""
}

// ParseUnitSerialNumber returns the serial number from VPD page 0x80.
func ParseUnitSerialNumber(lines []string) (string, bool) {
	return firstMatch(unitSerialRe, lines)
}

// ParseDesignator returns the first designator from VPD page 0x83.
func ParseDesignator(lines []string) (string, bool) {
	return firstMatch(designatorRe, lines)
}
