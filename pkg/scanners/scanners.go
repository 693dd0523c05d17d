// Package scanners implements the privilege-escalation detectors. Every
// scanner reads the host only through a hostfs.Inspector and is configured
// with explicit path tables, so tests run them against a hostfs.MemFS.
package scanners

import (
	"context"

	"go.uber.org/zap"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
)

// DefaultTransientPrefixes are world-writable scratch locations.
var DefaultTransientPrefixes = []string{"/tmp", "/var/tmp", "/dev/shm"}

// DefaultExcludedPrefixes are pseudo filesystems never reported as exec targets.
var DefaultExcludedPrefixes = []string{"/proc", "/sys", "/dev", "/run"}

func nopIfNil(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.Named(name)
}

func underAny(p string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hostfs.HasPathPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// result packs findings, reporting a cancelled context as the scanner error.
func result(ctx context.Context, name string, findings []engine.Finding) engine.ScanResult {
	if err := ctx.Err(); err != nil {
		return engine.ScanResult{Scanner: name, Err: err}
	}
	return engine.ScanResult{Scanner: name, Findings: findings}
}

// All returns the five scanners in aggregation order.
func All(fs hostfs.Inspector, cfg Config, logger *zap.Logger) []engine.Scanner {
	return []engine.Scanner{
		NewSUIDScanner(fs, cfg.KB, cfg.SUID, logger),
		NewPermissionScanner(fs, cfg.Permissions, logger),
		NewSystemdScanner(fs, cfg.Principal, cfg.Systemd, logger),
		NewCronScanner(fs, cfg.Cron, logger),
		NewKernelScanner(fs, cfg.KB, cfg.Kernel, logger),
	}
}
