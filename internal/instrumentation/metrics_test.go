package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Counters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCalendarOperation(ctx, OperationCreate, StatusSuccess, 120*time.Millisecond)
	m.RecordCalendarOperation(ctx, OperationCreate, StatusError, 80*time.Millisecond)
	m.RecordCredentialRefresh(ctx, RefreshResultSuccess)
	m.RecordFlowOperation(ctx, "meeting", ActionCreate, StatusSuccess)
	m.RecordReminder(ctx, "ticketSale", "ticketSale:3", StatusSuccess)
	m.RecordReminder(ctx, "ticketSale", "ticketSale:1", StatusError)
	m.RecordToolInvocation(ctx, "reminders_trigger", StatusSuccess, time.Second)

	got := collect(t, reader)

	assert.Equal(t, int64(2), sumValue(t, got["calendar_api_operations_total"]))
	assert.Equal(t, int64(1), sumValue(t, got["credential_refresh_total"]))
	assert.Equal(t, int64(1), sumValue(t, got["sync_flow_operations_total"]))
	assert.Equal(t, int64(2), sumValue(t, got["reminders_dispatched_total"]))
	assert.Equal(t, int64(1), sumValue(t, got["mcp_tool_invocations_total"]))
	assert.Contains(t, got, "calendar_api_operation_duration_seconds")
}

func TestMetrics_ReauthorizationGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SetReauthorizationRequired(ctx, true)

	got := collect(t, reader)
	gauge, ok := got["credential_reauthorization_required"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(1), gauge.DataPoints[0].Value)

	m.SetReauthorizationRequired(ctx, false)
	got = collect(t, reader)
	gauge = got["credential_reauthorization_required"].Data.(metricdata.Gauge[int64])
	assert.Equal(t, int64(0), gauge.DataPoints[0].Value)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these may panic
	m.RecordCalendarOperation(ctx, OperationGet, StatusSuccess, time.Millisecond)
	m.RecordCredentialRefresh(ctx, RefreshResultTerminal)
	m.SetReauthorizationRequired(ctx, true)
	m.RecordFlowOperation(ctx, "eventDay", ActionDriftClear, StatusSuccess)
	m.RecordReminder(ctx, "meeting", "meeting:1", StatusSuccess)
	m.RecordScan(ctx, ScanPullDrift, StatusSuccess, time.Second)
	m.RecordToolInvocation(ctx, "calendar_probe", StatusError, time.Second)

	(&Metrics{}).RecordScan(ctx, ScanBatchPush, StatusSuccess, time.Second)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusSuccess, StatusFor(nil))
	assert.Equal(t, StatusError, StatusFor(errors.New("boom")))
}
