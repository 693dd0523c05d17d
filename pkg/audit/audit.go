// Package audit wires configuration, the host inspector, the knowledge base
// and the scanners into one assessment run.
package audit

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/privaudit/pkg/config"
	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
	"github.com/user/privaudit/pkg/knowledge"
	"github.com/user/privaudit/pkg/report"
	"github.com/user/privaudit/pkg/scanners"
	"github.com/user/privaudit/pkg/sysinfo"
)

// Auditor runs a full assessment against one host view.
type Auditor struct {
	FS        hostfs.Inspector
	Config    *config.Config
	Principal hostfs.Principal
	Logger    *zap.Logger
	Version   string

	// Clock and Host are replaced in tests.
	Clock func() time.Time
	Host  func(hostfs.Inspector) engine.HostSnapshot
}

// New creates an Auditor that audits fs on behalf of any unprivileged user.
func New(fs hostfs.Inspector, cfg *config.Config, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		FS:        fs,
		Config:    cfg,
		Principal: hostfs.AnyUnprivileged(),
		Logger:    logger,
		Version:   "dev",
		Clock:     time.Now,
		Host:      sysinfo.Collect,
	}
}

// KnowledgeBase loads the configured tables. Problems are logged and the
// affected table is left empty, so a scan always proceeds.
func (a *Auditor) KnowledgeBase() *knowledge.Base {
	kb, err := knowledge.Load(a.Config.Knowledge.GTFOBins, a.Config.Knowledge.KernelCVEs)
	if err != nil {
		a.Logger.Warn("knowledge base incomplete", zap.Error(err))
	}
	bins, kernels := kb.Counts()
	a.Logger.Info("knowledge base loaded", zap.Int("binaries", bins), zap.Int("kernels", kernels))
	return kb
}

// ScannerConfig translates the user configuration into scanner settings.
func (a *Auditor) ScannerConfig(kb *knowledge.Base) scanners.Config {
	cfg := a.Config
	walk := hostfs.WalkOptions{
		Prune:        cfg.Sweep.Prune,
		MountPoints:  a.mountPoints(),
		CrossDevices: cfg.Sweep.CrossDevices,
	}

	sensitive := make([]scanners.SensitiveFile, 0, len(cfg.Paths.SensitiveFiles))
	for _, sf := range cfg.Paths.SensitiveFiles {
		sensitive = append(sensitive, scanners.SensitiveFile{Path: sf.Path, Reason: sf.Reason, Secret: sf.Secret})
	}

	return scanners.Config{
		KB:        kb,
		Principal: a.Principal,
		SUID: scanners.SUIDConfig{
			Root:             "/",
			Walk:             walk,
			IncludeUnmatched: cfg.SUID.IncludeUnmatched,
		},
		Cron: scanners.CronConfig{
			Crontab:           cfg.Paths.Crontab,
			PeriodicDirs:      cfg.Paths.CronDirs,
			CronD:             cfg.Paths.CronD,
			ParseCronD:        cfg.Cron.ParseCronD,
			TransientPrefixes: cfg.Paths.TransientPrefixes,
		},
		Systemd: scanners.SystemdConfig{
			UnitDirs:         cfg.Paths.SystemdDirs,
			ExcludedPrefixes: cfg.Paths.ExcludedPrefixes,
		},
		Permissions: scanners.PermissionConfig{
			Sensitive: sensitive,
			Root:      "/",
			Walk:      walk,
			SafeDirs:  cfg.Paths.SafeDirs,
		},
		Kernel: scanners.KernelConfig{
			Release:       cfg.Paths.KernelRelease,
			OSReleasePath: cfg.Paths.OSRelease,
		},
	}
}

func (a *Auditor) mountPoints() []string {
	if !a.Config.Sweep.SkipMountPoints || a.Config.Paths.MountInfo == "" {
		return nil
	}
	points, err := hostfs.MountPoints(a.FS, a.Config.Paths.MountInfo)
	if err != nil {
		a.Logger.Debug("mount table unavailable, walking bind mounts", zap.Error(err))
		return nil
	}
	return points
}

// Run executes every scanner and folds the results into a report.
func (a *Auditor) Run(ctx context.Context) engine.Report {
	kb := a.KnowledgeBase()
	sc := a.ScannerConfig(kb)
	all := scanners.All(a.FS, sc, a.Logger)

	meta := engine.ScanMetadata{
		ScanID:      uuid.NewString(),
		ToolName:    report.ToolName,
		ToolVersion: a.Version,
		ScanType:    report.ScanType,
		ScanTime:    a.Clock().UTC(),
	}
	a.Logger.Info("starting scan",
		zap.String("scan_id", meta.ScanID),
		zap.String("principal", a.Principal.String()),
		zap.Int("scanners", len(all)),
	)

	results := engine.Run(ctx, all, a.Logger)
	rep := engine.Aggregate(meta, a.hostSnapshot(sc.Kernel), results...)

	a.Logger.Info("scan complete",
		zap.Int("findings", rep.Summary.TotalFindings),
		zap.Stringer("overall_risk", rep.Summary.OverallRisk),
	)
	return rep
}

// hostSnapshot describes the host with the kernel release the kernel
// scanner assessed. An image root never reports the live kernel.
func (a *Auditor) hostSnapshot(kc scanners.KernelConfig) engine.HostSnapshot {
	snap := a.Host(a.FS)
	release, err := scanners.KernelRelease(a.FS, kc)
	switch {
	case err == nil:
		snap.Kernel = release
	case a.imageRoot():
		a.Logger.Warn("kernel release unknown for image root, set --kernel-release", zap.String("root", a.Config.Paths.Root))
		snap.Kernel = ""
	}
	return snap
}

func (a *Auditor) imageRoot() bool {
	return a.Config.Paths.Root != "" && filepath.Clean(a.Config.Paths.Root) != "/"
}
