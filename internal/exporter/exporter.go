// Package exporter turns UPS measurement snapshots into Prometheus gauges.
// Each Prometheus scrape triggers exactly one collection cycle; nothing is
// collected in the background.
package exporter

import (
	"context"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Guliveer/eaton-ups-exporter/internal/collector"
	"github.com/Guliveer/eaton-ups-exporter/internal/models"
)

const namespace = "eaton_ups"

// Source runs one collection cycle.
type Source interface {
	ScrapeAll(ctx context.Context) iter.Seq[collector.Result]
}

type gauge struct {
	desc  *prometheus.Desc
	value func(*models.Snapshot) float64
}

func newGauge(subsystem, name, help string, value func(*models.Snapshot) float64) gauge {
	return gauge{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, name),
			help, []string{"ups_id"}, nil),
		value: value,
	}
}

// gauges is the fixed set of measurements exported per device, in export order.
var gauges = []gauge{
	newGauge("input", "volts", "UPS input voltage (V)",
		func(s *models.Snapshot) float64 { return s.Inputs.Measures.Realtime.Voltage }),
	newGauge("input", "hertz", "UPS input frequency (Hz)",
		func(s *models.Snapshot) float64 { return s.Inputs.Measures.Realtime.Frequency }),
	newGauge("input", "amperes", "UPS input current (A)",
		func(s *models.Snapshot) float64 { return s.Inputs.Measures.Realtime.Current }),
	newGauge("input", "health", "UPS input health status (0 = ok)",
		func(s *models.Snapshot) float64 { return float64(s.Inputs.Status.Health) }),
	newGauge("output", "volts", "UPS output voltage (V)",
		func(s *models.Snapshot) float64 { return s.Outputs.Measures.Realtime.Voltage }),
	newGauge("output", "hertz", "UPS output frequency (Hz)",
		func(s *models.Snapshot) float64 { return s.Outputs.Measures.Realtime.Frequency }),
	newGauge("output", "amperes", "UPS output current (A)",
		func(s *models.Snapshot) float64 { return s.Outputs.Measures.Realtime.Current }),
	newGauge("output", "voltamperes", "UPS output apparent power (VA)",
		func(s *models.Snapshot) float64 { return s.Outputs.Measures.Realtime.ApparentPower }),
	newGauge("output", "watts", "UPS output active power (W)",
		func(s *models.Snapshot) float64 { return s.Outputs.Measures.Realtime.ActivePower }),
	newGauge("output", "power_factor", "UPS output power factor",
		func(s *models.Snapshot) float64 { return s.Outputs.Measures.Realtime.PowerFactor }),
	newGauge("output", "load_ratio", "Ratio of the output apparent power vs. the UPS's capacity in VA.",
		func(s *models.Snapshot) float64 { return s.Outputs.Measures.Realtime.PercentLoad / 100 }),
	newGauge("output", "health", "UPS output health status (0 = ok)",
		func(s *models.Snapshot) float64 { return float64(s.Outputs.Status.Health) }),
	newGauge("battery", "volts", "UPS battery voltage (V)",
		func(s *models.Snapshot) float64 { return s.PowerBank.Measures.Voltage }),
	newGauge("battery", "capacity_ratio", "Ratio of the remaining battery charge capacity.",
		func(s *models.Snapshot) float64 { return s.PowerBank.Measures.RemainingChargeCapacity / 100 }),
	newGauge("battery", "remaining_seconds", "UPS remaining battery time (s)",
		func(s *models.Snapshot) float64 { return s.PowerBank.Measures.RemainingTime }),
	newGauge("battery", "health", "UPS battery health status (0 = ok)",
		func(s *models.Snapshot) float64 { return float64(s.PowerBank.Status.Health) }),
}

// errorDesc is attached to invalid metrics emitted for unexpected faults.
var errorDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "exporter", "error"),
	"Unexpected fault while scraping a device.", []string{"device"}, nil)

// Exporter is a prometheus.Collector that scrapes all devices on every Collect.
type Exporter struct {
	source  Source
	metrics *Metrics
	logger  *zap.Logger
}

// New creates an Exporter reading from source.
func New(source Source, metrics *Metrics, logger *zap.Logger) *Exporter {
	return &Exporter{
		source:  source,
		metrics: metrics,
		logger:  logger,
	}
}

// Register registers the exporter on r.
func (e *Exporter) Register(r prometheus.Registerer) error {
	return r.Register(e)
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range gauges {
		ch <- g.desc
	}
	ch <- errorDesc
	e.metrics.describe(ch)
}

// Collect implements prometheus.Collector. An unexpected fault from a device
// fails the whole scrape through an invalid metric; expected failures only
// drop that device's gauges. Self-metrics are sent after the cycle so they
// describe the cycle that was just run.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	start := time.Now()
	for res := range e.source.ScrapeAll(context.Background()) {
		e.metrics.observe(res)

		if res.Err != nil {
			e.logger.Error("Unexpected scrape fault",
				zap.String("device", res.Device), zap.Error(res.Err))
			ch <- prometheus.NewInvalidMetric(errorDesc, res.Err)
			continue
		}
		if res.Snapshot == nil {
			continue
		}
		for _, g := range gauges {
			ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue,
				g.value(res.Snapshot), res.Snapshot.UPSID)
		}
	}
	e.metrics.scrapeDuration.Observe(time.Since(start).Seconds())
	e.metrics.collect(ch)
}
