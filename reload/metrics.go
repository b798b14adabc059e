package reload

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/kbukum/devreload/reload"

// Metric names.
const (
	MetricChannelsOpened        = "devreload.channels.opened"
	MetricReloads               = "devreload.reloads"
	MetricCapabilityUnavailable = "devreload.capability.unavailable"
)

type metrics struct {
	channelsOpened metric.Int64Counter
	reloads        metric.Int64Counter
	unsupported    metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(meterName)

	// Errors here only report invalid names.
	channelsOpened, _ := m.Int64Counter(MetricChannelsOpened,
		metric.WithDescription("Push channels opened by the notifier"))
	reloads, _ := m.Int64Counter(MetricReloads,
		metric.WithDescription("Page reloads triggered by push messages"))
	unsupported, _ := m.Int64Counter(MetricCapabilityUnavailable,
		metric.WithDescription("Page loads on hosts without server push"))

	return &metrics{
		channelsOpened: channelsOpened,
		reloads:        reloads,
		unsupported:    unsupported,
	}
}

func (m *metrics) add(c metric.Int64Counter) {
	if c != nil {
		c.Add(context.Background(), 1)
	}
}
