// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records execution measurements through OpenTelemetry
// instruments. It satisfies the runner's collector interface; methods
// are safe for concurrent use.
type Metrics struct {
	runsStarted  metric.Int64Counter
	runsTotal    metric.Int64Counter
	stepsTotal   metric.Int64Counter
	runDuration  metric.Float64Histogram
	stepDuration metric.Float64Histogram

	activeRunsMu sync.RWMutex
	activeRuns   int64

	queueDepthMu sync.RWMutex
	queueDepth   int64
}

// NewMetrics creates the collector and registers its instruments on
// the given meter provider.
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	meter := meterProvider.Meter("baton")

	m := &Metrics{}

	var err error

	m.runsStarted, err = meter.Int64Counter(
		"baton_runs_started_total",
		metric.WithDescription("Total number of workflow runs started"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.runsTotal, err = meter.Int64Counter(
		"baton_runs_total",
		metric.WithDescription("Total number of workflow runs reaching a terminal status"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.stepsTotal, err = meter.Int64Counter(
		"baton_steps_total",
		metric.WithDescription("Total number of workflow steps executed"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	m.runDuration, err = meter.Float64Histogram(
		"baton_run_duration_seconds",
		metric.WithDescription("Workflow run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.stepDuration, err = meter.Float64Histogram(
		"baton_step_duration_seconds",
		metric.WithDescription("Step execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"baton_active_runs",
		metric.WithDescription("Number of currently executing workflow runs"),
		metric.WithUnit("{run}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			m.activeRunsMu.RLock()
			count := m.activeRuns
			m.activeRunsMu.RUnlock()
			observer.Observe(count)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"baton_queue_depth",
		metric.WithDescription("Number of runs waiting for an execution slot"),
		metric.WithUnit("{run}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			m.queueDepthMu.RLock()
			depth := m.queueDepth
			m.queueDepthMu.RUnlock()
			observer.Observe(depth)
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRunStart counts a run taking the running edge.
func (m *Metrics) RecordRunStart(workflowID, triggerType string) {
	m.activeRunsMu.Lock()
	m.activeRuns++
	m.activeRunsMu.Unlock()

	m.runsStarted.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("trigger", triggerType),
	))
}

// RecordRunComplete counts a run reaching a terminal status.
func (m *Metrics) RecordRunComplete(workflowID, status string, elapsed time.Duration) {
	m.activeRunsMu.Lock()
	if m.activeRuns > 0 {
		m.activeRuns--
	}
	m.activeRunsMu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("status", status),
	)
	m.runsTotal.Add(context.Background(), 1, attrs)
	m.runDuration.Record(context.Background(), elapsed.Seconds(), attrs)
}

// RecordStepComplete counts one finished step record.
func (m *Metrics) RecordStepComplete(workflowID, blockID, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("block", blockID),
		attribute.String("status", status),
	)
	m.stepsTotal.Add(context.Background(), 1, attrs)
	m.stepDuration.Record(context.Background(), elapsed.Seconds(), attrs)
}

// IncrementQueueDepth counts a run entering the admission queue.
func (m *Metrics) IncrementQueueDepth() {
	m.queueDepthMu.Lock()
	m.queueDepth++
	m.queueDepthMu.Unlock()
}

// DecrementQueueDepth counts a run leaving the admission queue.
func (m *Metrics) DecrementQueueDepth() {
	m.queueDepthMu.Lock()
	if m.queueDepth > 0 {
		m.queueDepth--
	}
	m.queueDepthMu.Unlock()
}
