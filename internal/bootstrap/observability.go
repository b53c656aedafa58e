package bootstrap

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/target/webfront-auth/config"
	"github.com/target/webfront-auth/internal/observability/metrics"
	"github.com/target/webfront-auth/internal/observability/statsd"
)

// Observability holds the metric sinks. Registry is nil when Prometheus is off.
type Observability struct {
	Sink     *statsd.Client
	Registry *prometheus.Registry
	Recorder *metrics.Recorder
}

// Close flushes the StatsD client.
func (o Observability) Close() error {
	if o.Sink == nil {
		return nil
	}
	return o.Sink.Close()
}

// BuildObservability creates the StatsD client and the Prometheus registry.
// A StatsD failure is logged and metrics continue without it.
func BuildObservability(ctx context.Context, cfg config.ObservabilityConfig, version string, logger *slog.Logger) Observability {
	if logger == nil {
		logger = slog.Default()
	}
	var obs Observability

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(ctx, statsd.Config{
			Enabled:    true,
			Address:    cfg.Metrics.StatsdAddress,
			Prefix:     cfg.Metrics.StatsdPrefix,
			Logger:     logger,
			GlobalTags: map[string]string{"version": version},
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to initialise statsd client", "error", err)
		} else {
			obs.Sink = client
		}
	}

	if cfg.Metrics.PrometheusEnabled {
		obs.Registry = prometheus.NewRegistry()
		obs.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var sink statsd.Sink
	if obs.Sink != nil {
		sink = obs.Sink
	}
	var reg prometheus.Registerer
	if obs.Registry != nil {
		reg = obs.Registry
	}
	obs.Recorder = metrics.NewRecorder(sink, reg)
	return obs
}
