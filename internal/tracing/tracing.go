// Package tracing wires opentracing spans around monitoring ticks and
// elections, backed by a Jaeger tracer (opentracing-go paired with
// uber/jaeger-client-go).
package tracing

import (
	"context"
	"io"

	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// Init configures the global opentracing tracer from the given service name.
// An empty name disables tracing: the global tracer is left as opentracing's
// default no-op tracer and Init returns a no-op closer.
func Init(serviceName string) (io.Closer, error) {
	if serviceName == "" {
		return io.NopCloser(nil), nil
	}

	cfg := jaegercfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans: false,
		},
	}

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	return closer, nil
}

// StartSpan starts a span named operation as a child of any span already in
// ctx, returning the new context and a finish function.
func StartSpan(ctx context.Context, operation string) (context.Context, func()) {
	span, ctx := opentracing.StartSpanFromContext(ctx, operation)
	return ctx, span.Finish
}
