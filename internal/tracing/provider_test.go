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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestProviderBasicSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()

	provider, err := NewProvider(context.Background(), Config{
		Enabled:        true,
		ServiceName:    "baton-test",
		ServiceVersion: "0.0.1",
		Exporter:       "none",
		SampleRate:     1.0,
	}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	tracer := provider.Tracer("test")

	ctx := context.Background()
	_, span := tracer.Start(ctx, "test-operation")
	span.SetAttributes(attribute.String("test.key", "test-value"))
	span.SetStatus(codes.Ok, "")
	span.End()

	require.NoError(t, provider.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "test-operation", spans[0].Name)

	var found bool
	for _, attr := range spans[0].Attributes {
		if attr.Key == "test.key" {
			assert.Equal(t, "test-value", attr.Value.AsString())
			found = true
		}
	}
	assert.True(t, found, "test.key attribute not found")
}

func TestProviderDisabledRecordsNothing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()

	provider, err := NewProvider(context.Background(), Config{
		Enabled:     false,
		ServiceName: "baton-test",
		SampleRate:  1.0,
	}, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	_, span := provider.Tracer("test").Start(context.Background(), "dropped")
	span.End()

	require.NoError(t, provider.ForceFlush(context.Background()))
	assert.Empty(t, exporter.GetSpans())
}

func TestProviderMetricsHandler(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		ServiceName: "baton-test",
	})
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	assert.NotNil(t, provider.MetricsHandler())
	assert.NotNil(t, provider.Metrics())
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want string
	}{
		{name: "full rate always samples", rate: 1.0, want: "AlwaysOnSampler"},
		{name: "zero rate never samples", rate: 0, want: "AlwaysOffSampler"},
		{name: "fractional rate is parent based", rate: 0.25, want: "ParentBased"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, newSampler(tt.rate).Description(), tt.want)
		})
	}
}

func TestNewExporter(t *testing.T) {
	ctx := context.Background()

	exporter, err := newExporter(ctx, Config{Exporter: "none"})
	require.NoError(t, err)
	assert.Nil(t, exporter)

	exporter, err = newExporter(ctx, Config{Exporter: ""})
	require.NoError(t, err)
	assert.Nil(t, exporter)

	_, err = newExporter(ctx, Config{Exporter: "jaeger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown exporter type")

	exporter, err = newExporter(ctx, Config{Exporter: "stdout"})
	require.NoError(t, err)
	require.NotNil(t, exporter)
	require.NoError(t, exporter.Shutdown(ctx))
}

func TestMetricsCollector(t *testing.T) {
	mp := sdkmetric.NewMeterProvider()
	defer mp.Shutdown(context.Background())

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	m.RecordRunStart("wf-1", "api")
	m.RecordStepComplete("wf-1", "block-1", "completed", 10*time.Millisecond)
	m.RecordRunComplete("wf-1", "completed", 50*time.Millisecond)

	m.IncrementQueueDepth()
	m.IncrementQueueDepth()
	m.DecrementQueueDepth()
	assert.Equal(t, int64(1), m.queueDepth)

	// Draining below zero clamps instead of going negative.
	m.DecrementQueueDepth()
	m.DecrementQueueDepth()
	assert.Equal(t, int64(0), m.queueDepth)

	// A completion without a matching start clamps the gauge at zero.
	m.RecordRunComplete("wf-1", "failed", time.Millisecond)
	assert.Equal(t, int64(0), m.activeRuns)
}
