package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run executes all scanners concurrently and waits for every one of them.
// Results come back in the same order as scanners. A scanner that panics
// produces an empty result carrying the error instead of aborting the run.
func Run(ctx context.Context, scanners []Scanner, logger *zap.Logger) []ScanResult {
	if logger == nil {
		logger = zap.NewNop()
	}

	results := make([]ScanResult, len(scanners))
	g, groupCtx := errgroup.WithContext(ctx)

	for i, s := range scanners {
		g.Go(func() error {
			results[i] = runOne(groupCtx, s, logger)
			return nil
		})
	}

	// runOne never returns an error to the group, so Wait only acts as the join barrier.
	_ = g.Wait()
	return results
}

func runOne(ctx context.Context, s Scanner, logger *zap.Logger) (res ScanResult) {
	start := time.Now()
	name := s.Name()

	defer func() {
		if r := recover(); r != nil {
			res = ScanResult{Scanner: name, Err: fmt.Errorf("scanner %s panicked: %v", name, r)}
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			logger.Warn("Scanner finished with error", zap.String("scanner", name), zap.Error(res.Err))
			return
		}
		logger.Debug("Scanner finished",
			zap.String("scanner", name),
			zap.Int("findings", len(res.Findings)),
			zap.Duration("duration", res.Duration),
		)
	}()

	logger.Debug("Scanner started", zap.String("scanner", name))
	res = s.Scan(ctx)
	if res.Scanner == "" {
		res.Scanner = name
	}
	if res.Err != nil {
		res.Findings = nil
	}
	return res
}
