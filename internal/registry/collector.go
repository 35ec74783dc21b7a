package registry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"flowkeeper/internal/models"
)

var (
	deviceStateDesc = prometheus.NewDesc(
		"flowkeeper_device_state",
		"Last state reported by the device (numeric DeviceState)",
		[]string{"device"}, nil,
	)
	deviceMetricDesc = prometheus.NewDesc(
		"flowkeeper_device_metric_last",
		"Last numeric value of a metric reported by the device",
		[]string{"device", "key"}, nil,
	)
)

// Collector exposes the registry to Prometheus.
type Collector struct {
	reg *Registry
}

func NewCollector(reg *Registry) *Collector {
	return &Collector{reg: reg}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- deviceStateDesc
	ch <- deviceMetricDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for i := 0; i < c.reg.Len(); i++ {
		d := c.reg.Device(i)
		ch <- prometheus.MustNewConstMetric(deviceStateDesc, prometheus.GaugeValue, float64(d.State()), d.ID)

		m := c.reg.Metrics(i)
		for _, key := range m.Keys() {
			last, ok := m.Last(key)
			if !ok || last.Type == models.MetricString {
				continue
			}
			v, err := strconv.ParseFloat(last.Value, 64)
			if err != nil {
				continue
			}
			ch <- prometheus.MustNewConstMetric(deviceMetricDesc, prometheus.GaugeValue, v, d.ID, key)
		}
	}
}
