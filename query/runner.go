// Package query wraps query execution against the graph store: it emits
// pre/post events carrying elapsed wall-clock time, records an OpenTelemetry
// span and duration histogram per query, and normalizes store errors into a
// single failure kind with the offending query and parameters attached.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/graphbound/neogm/event"
	"github.com/graphbound/neogm/graph"
)

// gremlinErrorMarker is the substring scanned for in a single-cell Gremlin
// result. The Gremlin endpoint reports some script failures as a result row
// rather than a protocol-level error, and the marker scan is the only way to
// tell those apart. It is a heuristic kept for behavioral compatibility: a
// legitimate single-cell result containing the marker is misreported as a
// failure.
const gremlinErrorMarker = "Exception"

// Runner executes queries through a graph.Client.
type Runner struct {
	client   graph.Client
	notifier event.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotifier sets the event notifier for pre/post query events.
func WithNotifier(n event.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithLogger sets a custom logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithTracer sets an OpenTelemetry tracer for query spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithMeter sets an OpenTelemetry meter for the query duration histogram.
func WithMeter(meter metric.Meter) Option {
	return func(r *Runner) {
		hist, err := meter.Float64Histogram("neogm.query.duration",
			metric.WithDescription("Query execution time"),
			metric.WithUnit("s"))
		if err == nil {
			r.duration = hist
		}
	}
}

// NewRunner creates a Runner around the client.
func NewRunner(client graph.Client, opts ...Option) *Runner {
	r := &Runner{
		client:   client,
		notifier: event.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("neogm/query")
	}
	if r.duration == nil {
		WithMeter(otel.Meter("neogm/query"))(r)
	}
	return r
}

// Run executes the query and returns the result rows. Any failure, protocol
// level or the Gremlin marker heuristic, comes back as a *Error wrapping
// ErrQueryFailed with the query text and parameters attached.
func (r *Runner) Run(ctx context.Context, dialect graph.Dialect, text string, params map[string]any) ([][]any, error) {
	ctx, span := r.tracer.Start(ctx, "neogm.query",
		trace.WithAttributes(attribute.String("query.dialect", dialect.String())))
	defer span.End()

	r.notify(ctx, event.Event{Kind: event.PreQuery, Query: text, Params: params})

	start := time.Now()
	rows, err := r.client.Query(ctx, dialect, text, params)
	elapsed := time.Since(start)

	if r.duration != nil {
		r.duration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("query.dialect", dialect.String())))
	}
	r.notify(ctx, event.Event{Kind: event.PostQuery, Query: text, Params: params, Elapsed: elapsed})

	if err != nil {
		span.RecordError(err)
		return nil, &Error{Dialect: dialect, Text: text, Params: params, Err: err}
	}

	if dialect == graph.Gremlin {
		if cell, ok := singleCell(rows); ok && strings.Contains(cell, gremlinErrorMarker) {
			err := fmt.Errorf("error returned as result data: %.200s", cell)
			span.RecordError(err)
			return nil, &Error{Dialect: dialect, Text: text, Params: params, Err: err}
		}
	}

	return rows, nil
}

// notify delivers an event, logging and swallowing notifier failures so a
// misbehaving observer cannot abort query execution.
func (r *Runner) notify(ctx context.Context, ev event.Event) {
	if err := r.notifier.Notify(ctx, ev); err != nil {
		r.logger.Warn("query event notifier failed",
			"event", ev.Kind.String(),
			"error", err)
	}
}

// singleCell extracts the only cell of a single-row, single-column string
// result.
func singleCell(rows [][]any) (string, bool) {
	if len(rows) != 1 || len(rows[0]) != 1 {
		return "", false
	}
	s, ok := rows[0][0].(string)
	return s, ok
}
