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

// Metrics exposes domain instruments. A nil *Metrics is valid and records
// nothing, so services can take it as an optional dependency.
type Metrics struct {
	webhookEvents   metric.Int64Counter
	ledgerMutations metric.Int64Counter
	payoutsStarted  metric.Int64Counter
	payoutsSettled  metric.Int64Counter
	providerCalls   metric.Int64Counter
	providerLatency metric.Float64Histogram
	rateLimited     metric.Int64Counter
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
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "payoutd"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("payoutd_webhook_events_total")
	if err != nil {
		return nil, err
	}
	ledgerMutations, err := meter.Int64Counter("payoutd_ledger_mutations_total")
	if err != nil {
		return nil, err
	}
	payoutsStarted, err := meter.Int64Counter("payoutd_payouts_initiated_total")
	if err != nil {
		return nil, err
	}
	payoutsSettled, err := meter.Int64Counter("payoutd_payouts_settled_total")
	if err != nil {
		return nil, err
	}
	providerCalls, err := meter.Int64Counter("payoutd_provider_calls_total")
	if err != nil {
		return nil, err
	}
	providerLatency, err := meter.Float64Histogram("payoutd_provider_call_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	rateLimited, err := meter.Int64Counter("payoutd_rate_limit_decisions_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:   webhookEvents,
		ledgerMutations: ledgerMutations,
		payoutsStarted:  payoutsStarted,
		payoutsSettled:  payoutsSettled,
		providerCalls:   providerCalls,
		providerLatency: providerLatency,
		rateLimited:     rateLimited,
	}, nil
}

// RecordWebhookEvent counts webhook deliveries by type and processing outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", "paystack"),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordLedgerMutation(ctx context.Context, entryType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("entry_type", strings.TrimSpace(entryType)))
	m.ledgerMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPayoutInitiated(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.payoutsStarted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordPayoutSettled(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.payoutsSettled.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimit counts allow/deny decisions of the HTTP rate limiter.
func (m *Metrics) RecordRateLimit(ctx context.Context, endpoint, decision string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("decision", strings.TrimSpace(decision)),
	)
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProviderCall tracks outbound provider latency and failures.
func (m *Metrics) RecordProviderCall(ctx context.Context, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := FilterAttributes(
		attribute.String("provider", "paystack"),
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", outcome),
	)
	m.providerCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.providerLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":    {},
	"event_type":  {},
	"outcome":     {},
	"entry_type":  {},
	"status":      {},
	"operation":   {},
	"reason":      {},
	"status_code": {},
	"endpoint":    {},
	"decision":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
// User ids and payout references must never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
