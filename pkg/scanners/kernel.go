package scanners

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
	"github.com/user/privaudit/pkg/knowledge"
)

var errNoRelease = errors.New("kernel release unavailable")

// KernelScanner correlates the running kernel with known local CVEs.
type KernelScanner struct {
	FS     hostfs.Inspector
	KB     *knowledge.Base
	Config KernelConfig
	Logger *zap.Logger
}

// NewKernelScanner creates a new KernelScanner
func NewKernelScanner(fs hostfs.Inspector, kb *knowledge.Base, cfg KernelConfig, logger *zap.Logger) *KernelScanner {
	if kb == nil {
		kb = knowledge.Empty()
	}
	return &KernelScanner{FS: fs, KB: kb, Config: cfg, Logger: nopIfNil(logger, engine.ScannerKernel)}
}

func (s *KernelScanner) Name() string {
	return engine.ScannerKernel
}

func (s *KernelScanner) Description() string {
	return "Matches the running kernel series against known privilege escalation CVEs."
}

func (s *KernelScanner) Scan(ctx context.Context) engine.ScanResult {
	release, err := KernelRelease(s.FS, s.Config)
	if err != nil {
		return engine.ScanResult{Scanner: s.Name(), Err: err}
	}
	series := MajorMinor(release)

	entry, ok := s.KB.Kernel(series)
	if !ok {
		return result(ctx, s.Name(), []engine.Finding{{
			Category:                engine.CategoryKernel,
			Type:                    engine.TypeKernel,
			Severity:                engine.SeverityLow,
			Title:                   fmt.Sprintf("No known privilege escalation CVEs for kernel %s", series),
			AffectedComponent:       release,
			ExploitationPossibility: "No known privilege escalation CVEs in reference database",
			SuggestedMitigation:     "Maintain regular kernel updates",
		}})
	}

	sev, err := engine.ParseSeverity(entry.Risk)
	if err != nil {
		s.Logger.Debug("Unparseable kernel risk, assuming HIGH", zap.String("series", series), zap.String("risk", entry.Risk))
		sev = engine.SeverityHigh
	}
	return result(ctx, s.Name(), []engine.Finding{{
		Category:                engine.CategoryKernel,
		Type:                    engine.TypeKernel,
		Severity:                sev,
		Title:                   fmt.Sprintf("Kernel %s is affected by %d known privilege escalation CVEs", series, len(entry.CVEs)),
		AffectedComponent:       release,
		ExploitationPossibility: "Public exploits for these CVEs give a local user root: " + strings.Join(entry.CVEs, ", "),
		SuggestedMitigation:     entry.Note,
		References:              entry.CVEs,
	}})
}

// KernelRelease returns the release the kernel scanner assesses: the
// configured override, else the first line of cfg.OSReleasePath read
// through in. Under an image root that file is usually absent.
func KernelRelease(in hostfs.Inspector, cfg KernelConfig) (string, error) {
	if r := strings.TrimSpace(cfg.Release); r != "" {
		return r, nil
	}
	if cfg.OSReleasePath == "" {
		return "", errNoRelease
	}
	lines, err := in.ReadFileLines(cfg.OSReleasePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errNoRelease, err)
	}
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", errNoRelease
	}
	return strings.TrimSpace(lines[0]), nil
}

// MajorMinor reduces a release such as "5.15.0-91-generic" to "5.15".
func MajorMinor(release string) string {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return release
	}
	minor := parts[1]
	if i := strings.IndexFunc(minor, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minor = minor[:i]
	}
	return parts[0] + "." + minor
}
