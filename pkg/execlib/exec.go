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
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	klog "k8s.io/klog/v2"
)

var (
	execCommandContext = exec.CommandContext
	execWithTimeout    = ExecWithTimeout
)

// Runner runs an external tool and returns its standard output as lines.
// A non-zero exit status is reported as an *ExecError.
type Runner interface {
	Run(ctx context.Context, command string, args ...string) ([]string, error)
}

// ExecRunner runs commands on the local host.
type ExecRunner struct {
	// Timeout bounds each command. Zero waits until the process exits.
	Timeout time.Duration
}

// NewExecRunner returns a Runner executing local processes.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, command string, args ...string) ([]string, error) {
	stdout, err := execWithTimeout(ctx, command, args, r.Timeout)

	klog.V(2).Infof("Run command: %s", strings.Join(append([]string{command}, RedactArgs(args)...), " "))
	commandDebug(command, string(stdout), err)

	if err != nil {
		return nil, err
	}
	return SplitLines(string(stdout)), nil
}

func commandDebug(command, output string, cmdError error) {
	debugOutput := strings.Replace(output, "\n", "\\n", -1)
	klog.V(2).Infof("Output of %s command: {output: %s}", command, debugOutput)
	if cmdError != nil {
		klog.V(2).Infof("Error message returned from %s command: %s", command, cmdError.Error())
	}
}

// ExecWithTimeout executes a command and returns its standard output. A
// positive timeout bounds the run; when it expires, or ctx is done, the
// context error is returned and the output discarded.
func ExecWithTimeout(ctx context.Context, command string, args []string, timeout time.Duration) ([]byte, error) {
	klog.V(2).Infof("Executing command '%v' with args: '%v'.\n", command, RedactArgs(args))

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := execCommandContext(ctx, command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()

	// The error returned by cmd.Output() is OS specific when the process is
	// killed, so the context is checked first.
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			klog.V(2).Infof("Command '%s' timeout reached.\n", command)
		}
		return nil, ctxErr
	}

	if err != nil {
		klog.V(2).Infof("Non-zero exit code: %s\n", err)
		return out, &ExecError{
			Command:  command,
			Args:     RedactArgs(args),
			ExitCode: exitCode(err),
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}

	klog.V(2).Infof("Finished executing command.")
	return out, nil
}

// SplitLines splits raw tool output into lines, dropping trailing newlines
// and carriage returns.
func SplitLines(output string) []string {
	output = strings.TrimRight(output, "\r\n")
	if output == "" {
		return nil
	}

	lines := strings.Split(output, "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return lines
}

// RedactArgs returns a copy of args with the value following a --password
// flag masked.
func RedactArgs(args []string) []string {
	redacted := make([]string, len(args))
	copy(redacted, args)
	for i := 0; i < len(redacted); i++ {
		switch {
		case redacted[i] == "--password" && i+1 < len(redacted):
			redacted[i+1] = "******"
			i++
		case strings.HasPrefix(redacted[i], "--password="):
			redacted[i] = "--password=******"
		}
	}
	return redacted
}

func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
