package neogm

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/graphbound/neogm/event"
	"github.com/graphbound/neogm/graph"
	"github.com/graphbound/neogm/meta"
)

// Option configures a Manager.
type Option func(*managerConfig)

// managerConfig holds configuration for a Manager instance.
type managerConfig struct {
	client   graph.Client
	provider meta.Provider
	notifier event.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	now      func() time.Time
}

// WithClient sets the graph store client. Required.
func WithClient(client graph.Client) Option {
	return func(c *managerConfig) {
		c.client = client
	}
}

// WithProvider sets the metadata provider.
// If not provided, the global meta.Default() registry is used.
func WithProvider(provider meta.Provider) Option {
	return func(c *managerConfig) {
		c.provider = provider
	}
}

// WithNotifier sets the event notifier invoked at the mapper's hook points.
// If not provided, events are discarded.
func WithNotifier(notifier event.Notifier) Option {
	return func(c *managerConfig) {
		c.notifier = notifier
	}
}

// WithLogger sets a custom logger for the manager.
// If not provided, a default JSON logger is created.
func WithLogger(logger *slog.Logger) Option {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for flush and query spans.
// If not provided, the globally registered tracer provider is used.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *managerConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter for flush and query metrics.
// If not provided, the globally registered meter provider is used.
func WithMeter(meter metric.Meter) Option {
	return func(c *managerConfig) {
		c.meter = meter
	}
}

// WithClock overrides the time source used for creation and update
// timestamps. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *managerConfig) {
		c.now = now
	}
}
