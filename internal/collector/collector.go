// Package collector defines the Scraper interface and the Registry that runs
// all configured scrapers once per collection cycle.
package collector

import (
	"context"

	"github.com/Guliveer/eaton-ups-exporter/internal/models"
)

// Scraper is the unit of work of one collection cycle: one device.
type Scraper interface {
	// Name returns the identifier used in logs and self-metrics.
	Name() string

	// GetMeasures scrapes one snapshot. A nil snapshot with a nil error means
	// the device failed in an expected way and has already been logged.
	// A non-nil error is a defect and is passed on to the caller.
	GetMeasures(ctx context.Context) (*models.Snapshot, error)
}

// Result is what one device contributed to a collection cycle.
type Result struct {
	Device string

	// Snapshot is nil when the device failed or did not finish in time.
	Snapshot *models.Snapshot

	// TimedOut is set when the cycle deadline passed before the device finished.
	TimedOut bool

	// Err is an unclassified fault returned by the scraper.
	Err error
}
