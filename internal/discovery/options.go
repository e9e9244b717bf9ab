package discovery

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/conduit-lang/uadiscover/internal/bsd"
	"github.com/conduit-lang/uadiscover/internal/factory"
)

// SchemaParser registers the types declared by a legacy schema document.
// ids maps the type names used in the document to their node identities.
type SchemaParser interface {
	Parse(ctx context.Context, raw string, ids factory.EncodingLookup, f *factory.DataTypeFactory) error
}

// Option configures discovery
type Option func(*options)

type options struct {
	logger      *zap.Logger
	tracer      trace.Tracer
	parser      SchemaParser
	concurrency int
	verify      bool
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer used for discovery spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithSchemaParser replaces the OPC Binary parser used by the legacy path
func WithSchemaParser(p SchemaParser) Option {
	return func(o *options) { o.parser = p }
}

// WithConcurrency limits how many dictionaries are extracted at once.
// Zero or less means no limit.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithVerify turns the constructor check after extraction on or off
func WithVerify(verify bool) Option {
	return func(o *options) { o.verify = verify }
}

func newOptions(opts []Option) *options {
	o := &options{verify: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("uadiscover/discovery")
	}
	if o.parser == nil {
		o.parser = bsd.NewParser(bsd.WithLogger(o.logger.Named("bsd")))
	}
	return o
}
