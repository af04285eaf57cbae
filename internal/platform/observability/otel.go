package observability

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/tablemind/rulebook-backend/internal/platform/envutil"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
)

// ServiceName labels every span this service emits, including the ones the
// gin instrumentation creates.
const ServiceName = "rulebook-backend"

var (
	initOnce sync.Once
	shutdown func(context.Context) error
)

// Init sets up the global tracer provider when OTEL_ENABLED is set. It
// returns the provider's shutdown function, or nil when tracing is off.
// Exporter selection: OTLP over HTTP when OTEL_EXPORTER_OTLP_ENDPOINT is
// configured, pretty-printed stdout otherwise. Init never fails the boot;
// exporter problems are logged and tracing degrades to a no-op.
func Init(ctx context.Context, log *logger.Logger) func(context.Context) error {
	if !envutil.Bool("OTEL_ENABLED", false) {
		return nil
	}

	initOnce.Do(func() {
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(ServiceName),
			attribute.String("deployment.environment", envutil.String("APP_ENV", "development")),
		))
		if err != nil {
			log.Warn("Tracing resource init failed, continuing", "error", err.Error())
		}

		exporter, err := buildExporter(ctx, log)
		if err != nil {
			log.Warn("Tracing exporter init failed, spans will not export", "error", err.Error())
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio()))),
			sdktrace.WithResource(res),
		}
		if exporter != nil {
			opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
		}
		tp := sdktrace.NewTracerProvider(opts...)

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		shutdown = tp.Shutdown

		log.Info("Tracing initialized",
			"service", ServiceName,
			"endpoint", envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", "stdout"),
		)
	})
	return shutdown
}

func buildExporter(ctx context.Context, log *logger.Logger) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""))
	if endpoint == "" {
		log.Warn("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing to stdout")
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false) {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if headers := parseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")); len(headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(headers))
	}
	return otlptracehttp.New(ctx, opts...)
}

// sampleRatio reads OTEL_SAMPLER_RATIO clamped to [0, 1]; default 0.1.
func sampleRatio() float64 {
	raw := strings.TrimSpace(envutil.String("OTEL_SAMPLER_RATIO", ""))
	if raw == "" {
		return 0.1
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0.1
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// parseHeaders decodes the W3C-style "k1=v1,k2=v2" header list used by the
// OTLP exporter env convention.
func parseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if key == "" || val == "" {
			continue
		}
		headers[key] = val
	}
	return headers
}
