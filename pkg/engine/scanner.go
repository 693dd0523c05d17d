package engine

import (
	"context"
	"time"
)

// Scanner is implemented by every detection module. Scan must not fail the
// run: problems are reported through ScanResult.Err with no findings.
type Scanner interface {
	Name() string
	Description() string
	Scan(ctx context.Context) ScanResult
}

// ScanResult holds the ordered output of one scanner invocation.
type ScanResult struct {
	Scanner  string
	Findings []Finding
	Err      error
	Duration time.Duration
}

// Scanner names, in aggregation order.
const (
	ScannerSUID        = "suid"
	ScannerPermissions = "permissions"
	ScannerServices    = "services"
	ScannerCron        = "cron"
	ScannerKernel      = "kernel"
)

// AggregationOrder is the fixed order in which results are folded into a report.
var AggregationOrder = []string{
	ScannerSUID,
	ScannerPermissions,
	ScannerServices,
	ScannerCron,
	ScannerKernel,
}
