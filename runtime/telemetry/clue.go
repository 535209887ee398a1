package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

type (
	// clueLogger delegates to goa.design/clue/log. LOG_FORMAT/LOG_LEVEL
	// configure the format and debug flag on the context via log.Context
	// before any of these are called; see internal/config.
	clueLogger struct{}

	// clueMetrics delegates counters and durations to OpenTelemetry metrics.
	clueMetrics struct {
		meter metric.Meter
	}

	// clueTracer delegates span creation to OpenTelemetry tracing.
	clueTracer struct {
		tracer trace.Tracer
	}
)

// NewClueProvider builds a Provider backed by goa.design/clue/log and
// OpenTelemetry, matching the production telemetry stack used throughout the
// engine's adapters.
func NewClueProvider() Provider {
	meter := otel.Meter("goa.design/apron-incident")
	tracer := otel.Tracer("goa.design/apron-incident")
	return Provider{
		Logger:  clueLogger{},
		Metrics: &clueMetrics{meter: meter},
		Tracer:  &clueTracer{tracer: tracer},
	}
}

func (clueLogger) Debug(ctx context.Context, msg string, kv ...any) {
	log.Debug(ctx, fielders(msg, kv)...)
}

func (clueLogger) Info(ctx context.Context, msg string, kv ...any) {
	log.Info(ctx, fielders(msg, kv)...)
}

func (clueLogger) Warn(ctx context.Context, msg string, kv ...any) {
	fs := append([]log.Fielder{log.KV{K: "msg", V: msg}, log.KV{K: "severity", V: "warning"}}, kvFielders(kv)...)
	log.Warn(ctx, fs...)
}

func (clueLogger) Error(ctx context.Context, msg string, kv ...any) {
	log.Error(ctx, nil, fielders(msg, kv)...)
}

func fielders(msg string, kv []any) []log.Fielder {
	return append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvFielders(kv)...)
}

func kvFielders(kv []any) []log.Fielder {
	var out []log.Fielder
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, log.KV{K: k, V: kv[i+1]})
	}
	return out
}

func (m *clueMetrics) IncCounter(name string, kv ...any) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), 1, metric.WithAttributes(attrs(kv)...))
}

func (m *clueMetrics) ObserveDuration(name string, seconds float64, kv ...any) {
	hist, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	hist.Record(context.Background(), seconds, metric.WithAttributes(attrs(kv)...))
}

func attrs(kv []any) []attribute.KeyValue {
	var out []attribute.KeyValue
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			out = append(out, attribute.String(k, v))
		case int:
			out = append(out, attribute.Int(k, v))
		case int64:
			out = append(out, attribute.Int64(k, v))
		case float64:
			out = append(out, attribute.Float64(k, v))
		case bool:
			out = append(out, attribute.Bool(k, v))
		default:
			out = append(out, attribute.String(k, ""))
		}
	}
	return out
}

func (t *clueTracer) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	newCtx, span := t.tracer.Start(ctx, name)
	return newCtx, func() { span.End() }
}
