package scan

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkers = 1
	maxWorkers = 100
)

// ClampWorkers bounds a configured worker count to [1, 100].
func ClampWorkers(n int) int {
	return min(max(n, minWorkers), maxWorkers)
}

// DefaultWorkers is min(32, NumCPU+4).
func DefaultWorkers() int {
	return min(32, runtime.NumCPU()+4)
}

// Pool loads units concurrently.
type Pool struct {
	Table  *UnitTable
	Logger *zap.Logger
}

// LoadAll loads every unit with at most ClampWorkers(workers) loads in
// flight and waits for all of them. The first failure is returned as a
// *LoadFailureError and cancels the context handed to loads not yet started.
func (p *Pool) LoadAll(ctx context.Context, units []Unit, workers int) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers = ClampWorkers(workers)
	total := len(units)
	start := time.Now()
	var done atomic.Int64

	logger.Debug("loading units", zap.Int("units", total), zap.Int("workers", workers))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for _, u := range units {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			if err := p.Table.Load(egctx, u); err != nil {
				logger.Error("unit load failed", zap.String("unit", u.ID), zap.Error(err))
				return err
			}
			n := done.Add(1)
			logger.Debug("unit loaded",
				zap.String("unit", u.ID),
				zap.Int64("done", n),
				zap.Int("total", total))
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	logger.Debug("units loaded", zap.Int("units", total), zap.Duration("took", time.Since(start)))
	return nil
}

// Scan discovers the units of c and loads them. It returns the discovered
// units, including when a load fails.
func (p *Pool) Scan(ctx context.Context, c *Catalog, workers int) ([]Unit, error) {
	units, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return units, p.LoadAll(ctx, units, workers)
}
