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
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	commandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tgt",
		Name:      "command_duration_seconds",
		Help:      "Duration of external tool invocations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"command", "result"})

	commandFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tgt",
		Name:      "command_failures_total",
		Help:      "External tool invocations that failed, by failure kind.",
	}, []string{"command", "kind"})
)

// RegisterMetrics registers the command metrics with reg. Registering twice
// is not an error.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{commandDuration, commandFailures} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

type instrumentedRunner struct {
	next Runner
}

// Instrument wraps next so every command feeds the command metrics.
func Instrument(next Runner) Runner {
	return &instrumentedRunner{next: next}
}

func (r *instrumentedRunner) Run(ctx context.Context, command string, args ...string) ([]string, error) {
	start := time.Now()
	lines, err := r.next.Run(ctx, command, args...)

	name := filepath.Base(command)
	result := "success"
	if err != nil {
		result = "failure"
		commandFailures.WithLabelValues(name, failureKind(err)).Inc()
	}
	commandDuration.WithLabelValues(name, result).Observe(time.Since(start).Seconds())

	return lines, err
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case IsExecError(err):
		return "exit"
	default:
		return "other"
	}
}
