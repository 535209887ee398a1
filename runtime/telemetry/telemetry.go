// Package telemetry defines the small logging/metrics/tracing seams the
// orchestration engine calls into. Every node and adapter takes a Logger,
// Metrics, and Tracer rather than reaching for a global.
package telemetry

import "context"

type (
	// Logger emits structured, append-only log records. Implementations must
	// be safe for concurrent use.
	Logger interface {
		Debug(ctx context.Context, msg string, kv ...any)
		Info(ctx context.Context, msg string, kv ...any)
		Warn(ctx context.Context, msg string, kv ...any)
		Error(ctx context.Context, msg string, kv ...any)
	}

	// Metrics records counters and durations for node executions, tool
	// invocations, and LLM calls.
	Metrics interface {
		IncCounter(name string, kv ...any)
		ObserveDuration(name string, seconds float64, kv ...any)
	}

	// Tracer starts spans around suspension points (LLM calls, tool I/O,
	// session-store access). Implementations may be backed by OpenTelemetry
	// or be a no-op.
	Tracer interface {
		StartSpan(ctx context.Context, name string) (context.Context, func())
	}

	// Provider groups the three seams so callers can pass a single value
	// through constructors.
	Provider struct {
		Logger  Logger
		Metrics Metrics
		Tracer  Tracer
	}
)

// NoOp returns a Provider whose Logger/Metrics/Tracer all discard input. Used
// by tests and by components that have not been wired to a real backend.
func NoOp() Provider {
	return Provider{Logger: noopLogger{}, Metrics: noopMetrics{}, Tracer: noopTracer{}}
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, ...any)            {}
func (noopMetrics) ObserveDuration(string, float64, ...any) {}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}
