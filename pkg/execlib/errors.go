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

package execlib

import (
	"errors"
	"fmt"
	"strings"
)

// ExecError reports a command that could not be started or exited non-zero.
type ExecError struct {
	Command string
	// Args has secrets already redacted.
	Args []string
	// ExitCode is -1 when the process never ran to completion.
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Command, strings.Join(e.Args, " "))
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s with exit code %d", msg, e.ExitCode)
	}
	switch {
	case e.Stderr != "":
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	case e.Err != nil:
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ParseError reports tool output that could not be turned into a record.
type ParseError struct {
	Tool string
	// Line is 1-based; zero means the error is not tied to a line.
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("invalid output from %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid output from %s at line %d: %s: %q", e.Tool, e.Line, e.Reason, e.Text)
}

// IsExecError reports whether err carries an *ExecError.
func IsExecError(err error) bool {
	var ee *ExecError
	return errors.As(err, &ee)
}

// IsParseError reports whether err carries a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// ExitCode returns the exit status carried by err, if any.
func ExitCode(err error) (int, bool) {
	var ee *ExecError
	if errors.As(err, &ee) && ee.ExitCode >= 0 {
		return ee.ExitCode, true
	}
	return 0, false
}
