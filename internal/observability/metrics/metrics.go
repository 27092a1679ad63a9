package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookReceived   metric.Int64Counter
	webhookOutcomes   metric.Int64Counter
	paymentsRecorded  metric.Int64Counter
	invoicesIssued    metric.Int64Counter
	preferenceCreated metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "billing"
	}
	meter := provider.Meter(name)

	webhookReceived, err := meter.Int64Counter("billing_webhook_received_total")
	if err != nil {
		return nil, err
	}
	webhookOutcomes, err := meter.Int64Counter("billing_webhook_outcomes_total")
	if err != nil {
		return nil, err
	}
	paymentsRecorded, err := meter.Int64Counter("billing_payments_recorded_total")
	if err != nil {
		return nil, err
	}
	invoicesIssued, err := meter.Int64Counter("billing_invoices_issued_total")
	if err != nil {
		return nil, err
	}
	preferenceCreated, err := meter.Int64Counter("billing_preferences_created_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookReceived:   webhookReceived,
		webhookOutcomes:   webhookOutcomes,
		paymentsRecorded:  paymentsRecorded,
		invoicesIssued:    invoicesIssued,
		preferenceCreated: preferenceCreated,
	}, nil
}

// RecordWebhookReceived counts an accepted inbound notification.
func (m *Metrics) RecordWebhookReceived(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.webhookReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
	))
}

// RecordWebhookOutcome counts a reconciliation terminal outcome.
func (m *Metrics) RecordWebhookOutcome(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.webhookOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordPayment counts an applied payment record.
func (m *Metrics) RecordPayment(ctx context.Context, kind, status string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("status", strings.TrimSpace(status)),
	))
}

// RecordInvoiceIssued counts a persisted invoice.
func (m *Metrics) RecordInvoiceIssued(ctx context.Context, automatic bool) {
	if m == nil {
		return
	}
	m.invoicesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("automatic", automatic),
	))
}

// RecordPreferenceCreated counts an outbound checkout preference.
func (m *Metrics) RecordPreferenceCreated(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.preferenceCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
