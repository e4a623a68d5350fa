package exporter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Guliveer/eaton-ups-exporter/internal/collector"
	"github.com/Guliveer/eaton-ups-exporter/internal/scraper"
)

// Metrics are the exporter's own metrics about its collection cycles.
type Metrics struct {
	scrapeDuration prometheus.Histogram
	deviceSuccess  *prometheus.GaugeVec
	deviceErrors   *prometheus.CounterVec
}

// NewMetrics creates the self-metrics. They are exported through the Exporter.
func NewMetrics() *Metrics {
	return &Metrics{
		scrapeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "exporter",
				Name:      "scrape_duration_seconds",
				Help:      "Time taken to scrape all configured devices",
				Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 10, 30},
			},
		),
		deviceSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "exporter",
				Name:      "device_scrape_success",
				Help:      "Whether the last scrape of a device produced measurements",
			},
			[]string{"device"},
		),
		deviceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "exporter",
				Name:      "device_errors_total",
				Help:      "Total number of failed device scrapes by error kind",
			},
			[]string{"device", "code"},
		),
	}
}

// ObserveFailure counts a classified device failure. It is meant to be
// passed to scraper.WithFailureHook.
func (m *Metrics) ObserveFailure(device string, err *scraper.Error) {
	m.deviceErrors.WithLabelValues(device, err.Code.String()).Inc()
}

func (m *Metrics) observe(res collector.Result) {
	if res.TimedOut {
		m.deviceErrors.WithLabelValues(res.Device, scraper.CodePoolTimeout.String()).Inc()
	}
	if res.Snapshot != nil {
		m.deviceSuccess.WithLabelValues(res.Device).Set(1)
	} else {
		m.deviceSuccess.WithLabelValues(res.Device).Set(0)
	}
}

func (m *Metrics) describe(ch chan<- *prometheus.Desc) {
	m.scrapeDuration.Describe(ch)
	m.deviceSuccess.Describe(ch)
	m.deviceErrors.Describe(ch)
}

func (m *Metrics) collect(ch chan<- prometheus.Metric) {
	m.scrapeDuration.Collect(ch)
	m.deviceSuccess.Collect(ch)
	m.deviceErrors.Collect(ch)
}
