package scanners

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
)

const serviceSuffix = ".service"

// SystemdScanner audits service units that run as root.
type SystemdScanner struct {
	FS        hostfs.Inspector
	Principal hostfs.Principal
	Config    SystemdConfig
	Logger    *zap.Logger
}

// NewSystemdScanner creates a new SystemdScanner
func NewSystemdScanner(fs hostfs.Inspector, p hostfs.Principal, cfg SystemdConfig, logger *zap.Logger) *SystemdScanner {
	return &SystemdScanner{FS: fs, Principal: p, Config: cfg, Logger: nopIfNil(logger, engine.ScannerServices)}
}

func (s *SystemdScanner) Name() string {
	return engine.ScannerServices
}

func (s *SystemdScanner) Description() string {
	return "Inspects root systemd services for writable unit files, ExecStart targets, PATH entries and EnvironmentFiles."
}

// unitFile holds the directives that decide how a service executes.
type unitFile struct {
	User     string
	Exec     []string
	EnvFiles []string
	Path     []string
}

func (u unitFile) runsAsRoot() bool {
	return u.User == "" || u.User == "root" || u.User == "0"
}

// parseUnit reads the directives out of a unit file. Later assignments of
// User= win, as in systemd.
func parseUnit(lines []string) unitFile {
	var u unitFile
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || line[0] == '#' || line[0] == ';' || line[0] == '[' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "ExecStart", "ExecStartPre", "ExecStartPost":
			// Prefixes like "-" or "+" change how systemd runs the command, not what it runs.
			fields := strings.Fields(strings.TrimLeft(value, "-@+!:"))
			if len(fields) > 0 {
				u.Exec = append(u.Exec, fields[0])
			}
		case "EnvironmentFile":
			if f := strings.TrimPrefix(value, "-"); f != "" {
				u.EnvFiles = append(u.EnvFiles, f)
			}
		case "Environment":
			for _, tok := range strings.Fields(value) {
				tok = strings.Trim(tok, `"'`)
				if dirs, ok := strings.CutPrefix(tok, "PATH="); ok {
					u.Path = strings.Split(dirs, ":")
				}
			}
		case "User":
			u.User = value
		}
	}
	return u
}

func (s *SystemdScanner) Scan(ctx context.Context) engine.ScanResult {
	var findings []engine.Finding
	var seen []hostfs.FileInfo

	for _, dir := range s.Config.UnitDirs {
		for fi := range hostfs.Walk(ctx, s.FS, dir, hostfs.WalkOptions{}) {
			if fi.IsDir() || !strings.HasSuffix(fi.Path, serviceSuffix) {
				continue
			}
			if fi.IsSymlink() {
				if target, err := s.FS.Readlink(fi.Path); err == nil && target == hostfs.NullDevice {
					s.Logger.Debug("Skipping masked unit", zap.String("unit", fi.Path))
				}
				continue
			}
			if !fi.IsRegular() || alreadySeen(seen, fi) {
				continue
			}
			seen = append(seen, fi)
			findings = append(findings, s.checkUnit(fi)...)
		}
	}
	return result(ctx, s.Name(), findings)
}

func alreadySeen(seen []hostfs.FileInfo, fi hostfs.FileInfo) bool {
	for _, prev := range seen {
		if hostfs.SameFile(prev, fi) {
			return true
		}
	}
	return false
}

func (s *SystemdScanner) checkUnit(fi hostfs.FileInfo) []engine.Finding {
	lines, err := s.FS.ReadFileLines(fi.Path)
	if err != nil {
		s.Logger.Debug("Skipping unreadable unit", zap.String("unit", fi.Path), zap.Error(err))
		return nil
	}
	unit := parseUnit(lines)
	if !unit.runsAsRoot() {
		return nil
	}

	unitName := path.Base(fi.Path)
	var findings []engine.Finding

	if fi.WorldWritable() || fi.GroupWritable() {
		findings = append(findings, engine.Finding{
			Category:                engine.CategoryService,
			Type:                    engine.TypeWritableService,
			Severity:                engine.SeverityHigh,
			Title:                   fmt.Sprintf("Unit file of root service %s is writable by group or others", unitName),
			AffectedComponent:       fi.Path,
			ExploitationPossibility: "Attacker can rewrite ExecStart or other directives that systemd executes as root on the next start",
			SuggestedMitigation:     "chmod 644 the unit file and keep it owned by root:root",
		})
	}

	reported := make(map[string]bool)
	for _, target := range unit.Exec {
		if reported[target] || !s.writableExecTarget(target) {
			continue
		}
		reported[target] = true
		findings = append(findings, engine.Finding{
			Category:                engine.CategoryService,
			Type:                    engine.TypeWritableExecStart,
			Severity:                engine.SeverityHigh,
			Title:                   fmt.Sprintf("Root service %s executes a file writable by %s", unitName, s.Principal),
			AffectedComponent:       target,
			ExploitationPossibility: "Modify the executable to gain a root shell when the service restarts",
			SuggestedMitigation:     "Remove write access for non-root users from the executable (chmod go-w)",
		})
	}

	for _, dir := range unit.Path {
		if !strings.HasPrefix(dir, "/") {
			continue
		}
		dfi, err := s.FS.Stat(dir)
		if err != nil || !dfi.IsDir() || !s.Principal.CanWrite(dfi) {
			continue
		}
		findings = append(findings, engine.Finding{
			Category:                engine.CategoryService,
			Type:                    engine.TypeInsecureServicePath,
			Severity:                engine.SeverityHigh,
			Title:                   fmt.Sprintf("PATH of root service %s contains a writable directory", unitName),
			AffectedComponent:       dir,
			ExploitationPossibility: "Place a malicious binary in the directory to hijack commands the service resolves through PATH",
			SuggestedMitigation:     "Drop the directory from the service PATH or make it root-only",
		})
	}

	for _, env := range unit.EnvFiles {
		efi, err := s.FS.Stat(env)
		if err != nil || !s.Principal.CanWrite(efi) {
			continue
		}
		findings = append(findings, engine.Finding{
			Category:                engine.CategoryService,
			Type:                    engine.TypeWritableEnvFile,
			Severity:                engine.SeverityHigh,
			Title:                   fmt.Sprintf("EnvironmentFile of root service %s is writable", unitName),
			AffectedComponent:       env,
			ExploitationPossibility: "Inject variables such as LD_PRELOAD or PATH that the root service picks up on start",
			SuggestedMitigation:     "Make the environment file owned by root with mode 0600 or 0644",
		})
	}
	return findings
}

// writableExecTarget reports an absolute, existing, root-owned regular file
// outside pseudo filesystems that the principal can modify.
func (s *SystemdScanner) writableExecTarget(target string) bool {
	if !strings.HasPrefix(target, "/") || underAny(target, s.Config.ExcludedPrefixes) {
		return false
	}
	fi, err := s.FS.Stat(target)
	if err != nil || !fi.IsRegular() || fi.UID != 0 {
		return false
	}
	return s.Principal.CanWrite(fi)
}
