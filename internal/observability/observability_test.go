package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestNewLogger_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "clinic-api", "prod", "debug")
	logger.Debug().Str("doctor_id", "doc-001").Msg("booked")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "clinic-api", entry["service"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "doc-001", entry["doctor_id"])
	assert.Contains(t, entry, "caller")
}

func TestNewLogger_BadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "clinic-api", "prod", "loud")
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, "clinic-api", "prod", "info")

	LoggerFromContext(context.Background(), base).Info().Msg("no span")
	assert.NotContains(t, buf.String(), "trace_id")
	buf.Reset()

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	LoggerFromContext(ctx, base).Info().Msg("with span")
	assert.Contains(t, buf.String(), `"trace_id":"`+sc.TraceID().String()+`"`)
	assert.Contains(t, buf.String(), `"span_id":"`+sc.SpanID().String()+`"`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBooking("confirmed")
		m.ObserveClassification("opme")
		m.ObserveLLM("ok", 0.2)
		m.ObserveToolCall("book_appointment", "ok")
		m.ObserveSessionsEvicted(3)
		m.ObserveHTTP("GET", "/doctors", 200, 0.01)
	})
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveBooking("confirmed")
	m.ObserveBooking("confirmed")
	m.ObserveBooking("conflict")
	m.ObserveSessionsEvicted(2)
	m.ObserveSessionsEvicted(0)
	m.ObserveHTTP("POST", "/chat", 200, 0.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingAttempts.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingAttempts.WithLabelValues("conflict")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionsEvicted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/chat", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "clinic_booking_attempts_total")
	assert.Contains(t, names, "clinic_http_request_duration_seconds")
}
