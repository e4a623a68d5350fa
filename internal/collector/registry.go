package collector

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Guliveer/eaton-ups-exporter/internal/scraper"
)

// Options controls how a Registry runs its scrapers.
type Options struct {
	// Concurrent runs all scrapers in a worker pool instead of one by one.
	Concurrent bool

	// Workers caps the pool size. The pool never exceeds the number of scrapers.
	Workers int

	// Deadline bounds one concurrent cycle. Devices that have not finished
	// by then contribute a nil snapshot. Zero means no deadline.
	Deadline time.Duration
}

// Registry holds all device scrapers and orchestrates one collection cycle.
type Registry struct {
	scrapers []Scraper
	opts     Options
	logger   *zap.Logger
}

// NewRegistry creates a new registry with the given options and logger.
func NewRegistry(opts Options, logger *zap.Logger) *Registry {
	return &Registry{
		scrapers: make([]Scraper, 0),
		opts:     opts,
		logger:   logger,
	}
}

// Register adds a scraper. Scrapers are visited in registration order in
// sequential mode.
func (r *Registry) Register(s Scraper) {
	r.scrapers = append(r.scrapers, s)
	r.logger.Info("Registered device", zap.String("name", s.Name()))
}

// Scrapers returns a copy of all registered scrapers.
func (r *Registry) Scrapers() []Scraper {
	result := make([]Scraper, len(r.scrapers))
	copy(result, r.scrapers)
	return result
}

// ScrapeAll runs one collection cycle and yields one Result per device as it
// becomes available. Sequential mode yields in registration order; concurrent
// mode yields in completion order. Stopping the iteration early cancels the
// devices that are still running.
func (r *Registry) ScrapeAll(ctx context.Context) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		cycle := uuid.NewString()
		logger := r.logger.With(zap.String("cycle", cycle))
		start := time.Now()
		logger.Debug("Starting collection cycle",
			zap.Int("devices", len(r.scrapers)),
			zap.Bool("concurrent", r.opts.Concurrent))

		var n int
		if r.opts.Concurrent {
			n = r.scrapeConcurrent(ctx, logger, yield)
		} else {
			n = r.scrapeSequential(ctx, yield)
		}

		logger.Debug("Collection cycle complete",
			zap.Int("succeeded", n),
			zap.Duration("duration", time.Since(start)))
	}
}

func (r *Registry) scrapeSequential(ctx context.Context, yield func(Result) bool) int {
	succeeded := 0
	for _, s := range r.scrapers {
		snap, err := s.GetMeasures(ctx)
		if snap != nil {
			succeeded++
		}
		if !yield(Result{Device: s.Name(), Snapshot: snap, Err: err}) {
			break
		}
	}
	return succeeded
}

type indexedResult struct {
	index int
	Result
}

func (r *Registry) scrapeConcurrent(ctx context.Context, logger *zap.Logger, yield func(Result) bool) int {
	if len(r.scrapers) == 0 {
		return 0
	}

	var cancel context.CancelFunc
	if r.opts.Deadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.opts.Deadline)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// Buffered so that workers finishing after the deadline never block.
	results := make(chan indexedResult, len(r.scrapers))

	var g errgroup.Group
	g.SetLimit(r.poolSize())
	go func() {
		for i, s := range r.scrapers {
			if ctx.Err() != nil {
				return
			}
			g.Go(func() error {
				// Queued devices may only get a slot after the deadline.
				if ctx.Err() != nil {
					return nil
				}
				snap, err := s.GetMeasures(ctx)
				results <- indexedResult{index: i, Result: Result{Device: s.Name(), Snapshot: snap, Err: err}}
				return nil
			})
		}
	}()

	done := make([]bool, len(r.scrapers))
	succeeded := 0
	emit := func(res indexedResult) bool {
		done[res.index] = true
		if res.Snapshot != nil {
			succeeded++
		}
		return yield(res.Result)
	}

	for remaining := len(r.scrapers); remaining > 0; remaining-- {
		select {
		case res := <-results:
			if !emit(res) {
				return succeeded
			}
		case <-ctx.Done():
			// Results that arrived together with the deadline still count.
			for drained := false; !drained; {
				select {
				case res := <-results:
					if !emit(res) {
						return succeeded
					}
				default:
					drained = true
				}
			}
			r.reportTimeouts(logger, done, yield)
			return succeeded
		}
	}
	return succeeded
}

// reportTimeouts yields a nil snapshot for every device that missed the deadline.
func (r *Registry) reportTimeouts(logger *zap.Logger, done []bool, yield func(Result) bool) {
	var late []string
	for i, finished := range done {
		if !finished {
			late = append(late, r.scrapers[i].Name())
		}
	}
	if len(late) == 0 {
		return
	}

	err := scraper.NewError(scraper.CodePoolTimeout,
		fmt.Sprintf("collection deadline of %s exceeded", r.opts.Deadline))
	logger.Error("Collection timed out",
		zap.Strings("devices", late),
		zap.String("code", err.Code.String()),
		zap.String("error", err.Message))

	for _, name := range late {
		if !yield(Result{Device: name, TimedOut: true}) {
			return
		}
	}
}

func (r *Registry) poolSize() int {
	size := len(r.scrapers)
	if r.opts.Workers > 0 && r.opts.Workers < size {
		size = r.opts.Workers
	}
	return size
}
