// Package tracing installs the OpenTelemetry tracer provider.
package tracing

import (
	"context"

	"github.com/ManuelReschke/NumeroFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(context.Context) error

// InitTracerProvider registers a Jaeger-backed provider as the global one. With
// an empty endpoint only the propagator is installed and spans stay no-ops.
func InitTracerProvider(serviceName, jaegerEndpoint string) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if jaegerEndpoint == "" {
		log.Info("[Tracing] JAEGER_ENDPOINT not set, tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(samplingRatio()))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)

	log.Infof("[Tracing] Service '%s' exporting to '%s'", serviceName, jaegerEndpoint)
	return tp.Shutdown, nil
}

func samplingRatio() float64 {
	switch env.GetEnv("TRACING_SAMPLER", "always") {
	case "never":
		return 0
	case "ratio":
		return 0.1
	default:
		return 1
	}
}
