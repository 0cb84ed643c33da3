package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK.
type ProviderConfig struct {
	// ServiceName is reported in telemetry. Default: "livedetect".
	ServiceName string

	ServiceVersion string
}

// InitProvider registers a global [sdkmetric.MeterProvider] backed by a
// Prometheus exporter, which serves its data through the default Prometheus
// registry. The returned function flushes and closes the provider.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*sdkmetric.MeterProvider, func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "livedetect"
	}

	// Schemaless so the merge never conflicts with the SDK's default schema.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	return mp, mp.Shutdown, nil
}
