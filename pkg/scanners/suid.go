package scanners

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
	"github.com/user/privaudit/pkg/knowledge"
)

// SUIDScanner finds root-owned setuid/setgid executables and matches them
// against known escalation techniques.
type SUIDScanner struct {
	FS     hostfs.Inspector
	KB     *knowledge.Base
	Config SUIDConfig
	Logger *zap.Logger
}

// NewSUIDScanner creates a new SUIDScanner
func NewSUIDScanner(fs hostfs.Inspector, kb *knowledge.Base, cfg SUIDConfig, logger *zap.Logger) *SUIDScanner {
	if kb == nil {
		kb = knowledge.Empty()
	}
	return &SUIDScanner{FS: fs, KB: kb, Config: cfg, Logger: nopIfNil(logger, engine.ScannerSUID)}
}

func (s *SUIDScanner) Name() string {
	return engine.ScannerSUID
}

func (s *SUIDScanner) Description() string {
	return "Finds root-owned SUID/SGID executables with a known GTFOBins escalation technique."
}

func (s *SUIDScanner) Scan(ctx context.Context) engine.ScanResult {
	var matched, unmatched []engine.Finding
	candidates := 0

	for fi := range hostfs.Walk(ctx, s.FS, s.Config.Root, s.Config.Walk) {
		if !isSpecialBinary(fi) {
			continue
		}
		candidates++
		name := path.Base(fi.Path)

		if technique, ok := s.KB.Technique(name); ok {
			matched = append(matched, engine.Finding{
				Category:                engine.CategorySUID,
				Type:                    engine.TypeSUIDBinary,
				Severity:                engine.SeverityHigh,
				Title:                   fmt.Sprintf("%s binary with known escalation technique: %s", specialBits(fi), name),
				AffectedComponent:       fi.Path,
				ExploitationPossibility: technique,
				SuggestedMitigation:     "Remove the SUID/SGID bit if not required or restrict execution to trusted users",
			})
			continue
		}
		if s.Config.IncludeUnmatched {
			unmatched = append(unmatched, engine.Finding{
				Category:                engine.CategorySUID,
				Type:                    engine.TypeSUIDBinary,
				Severity:                engine.SeverityLow,
				Title:                   fmt.Sprintf("%s binary: %s", specialBits(fi), name),
				AffectedComponent:       fi.Path,
				ExploitationPossibility: "No known escalation technique for this binary; it still runs with elevated privileges for every caller",
				SuggestedMitigation:     "Review necessity of special permission bits",
			})
		}
	}

	s.Logger.Debug("SUID sweep complete",
		zap.Int("candidates", candidates),
		zap.Int("matched", len(matched)),
	)
	return result(ctx, s.Name(), append(matched, unmatched...))
}

// isSpecialBinary selects regular, executable, root-owned files carrying
// the setuid or setgid bit.
func isSpecialBinary(fi hostfs.FileInfo) bool {
	if !fi.IsRegular() || !fi.IsExecutable() || fi.UID != 0 {
		return false
	}
	return fi.IsSetuid() || fi.IsSetgid()
}

func specialBits(fi hostfs.FileInfo) string {
	switch {
	case fi.IsSetuid() && fi.IsSetgid():
		return "SUID/SGID"
	case fi.IsSetuid():
		return "SUID"
	default:
		return "SGID"
	}
}
