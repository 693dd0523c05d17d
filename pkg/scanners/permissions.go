package scanners

import (
	"context"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
)

// LocationClass groups paths by how root makes use of them.
type LocationClass string

const (
	ClassCron       LocationClass = "CRON"
	ClassSystemd    LocationClass = "SYSTEMD"
	ClassInit       LocationClass = "INIT"
	ClassExecutable LocationClass = "EXECUTABLE"
	ClassConfig     LocationClass = "CONFIG"
	ClassUnknown    LocationClass = "UNKNOWN"
)

type classInfo struct {
	severity engine.Severity
	impact   string
}

var classes = map[LocationClass]classInfo{
	ClassCron:       {engine.SeverityHigh, "cron executes content from this location as root; a non-root user can plant or alter scheduled commands"},
	ClassSystemd:    {engine.SeverityHigh, "systemd loads service definitions from this location as root; a non-root user can change what services execute"},
	ClassInit:       {engine.SeverityMedium, "Init scripts here run as root at boot or runlevel change"},
	ClassExecutable: {engine.SeverityMedium, "Binaries and libraries here are executed by root and other users; replacing them hijacks execution"},
	ClassConfig:     {engine.SeverityMedium, "System configuration read by privileged services can be altered by non-root users"},
	ClassUnknown:    {engine.SeverityLow, "Root-owned object writable by non-root users; impact depends on how it is used"},
}

var (
	cronLocations    = []string{"/etc/crontab", "/var/spool/cron"}
	systemdLocations = []string{"/etc/systemd", "/lib/systemd", "/usr/lib/systemd", "/run/systemd"}
	initLocations    = []string{"/etc/init.d", "/etc/init", "/etc/rc.local"}
	execLocations    = []string{
		"/bin", "/sbin", "/usr/bin", "/usr/sbin", "/usr/local/bin", "/usr/local/sbin",
		"/lib", "/lib64", "/usr/lib", "/usr/libexec", "/opt",
	}
)

// Classify maps a path to the location class that decides its severity.
func Classify(p string) LocationClass {
	p = path.Clean(p)
	switch {
	case underAny(p, cronLocations) || strings.HasPrefix(p, "/etc/cron"):
		return ClassCron
	case underAny(p, systemdLocations):
		return ClassSystemd
	case underAny(p, initLocations) || isRcDir(p):
		return ClassInit
	case underAny(p, execLocations):
		return ClassExecutable
	case hostfs.HasPathPrefix(p, "/etc"):
		return ClassConfig
	default:
		return ClassUnknown
	}
}

// isRcDir matches /etc/rc0.d through /etc/rcS.d and their contents.
func isRcDir(p string) bool {
	rest, ok := strings.CutPrefix(p, "/etc/")
	if !ok {
		return false
	}
	first, _, _ := strings.Cut(rest, "/")
	matched, _ := path.Match("rc*.d", first)
	return matched
}

// PermissionScanner checks sensitive files and sweeps the filesystem for
// root-owned objects that others can write.
type PermissionScanner struct {
	FS     hostfs.Inspector
	Config PermissionConfig
	Logger *zap.Logger
}

// NewPermissionScanner creates a new PermissionScanner
func NewPermissionScanner(fs hostfs.Inspector, cfg PermissionConfig, logger *zap.Logger) *PermissionScanner {
	return &PermissionScanner{FS: fs, Config: cfg, Logger: nopIfNil(logger, engine.ScannerPermissions)}
}

func (s *PermissionScanner) Name() string {
	return engine.ScannerPermissions
}

func (s *PermissionScanner) Description() string {
	return "Checks sensitive account files and sweeps for root-owned files and directories writable by non-root users."
}

func (s *PermissionScanner) Scan(ctx context.Context) engine.ScanResult {
	findings := s.checkSensitive()
	if s.Config.Root != "" {
		findings = append(findings, s.sweep(ctx)...)
	}
	return result(ctx, s.Name(), findings)
}

func (s *PermissionScanner) checkSensitive() []engine.Finding {
	var findings []engine.Finding
	for _, sf := range s.Config.Sensitive {
		fi, err := s.FS.Stat(sf.Path)
		if err != nil {
			continue
		}
		if hostfs.WritableByNonRoot(fi) {
			findings = append(findings, engine.Finding{
				Category:                engine.CategoryPermissions,
				Type:                    engine.TypeSensitivePermission,
				Severity:                engine.SeverityCritical,
				Title:                   sf.Reason,
				AffectedComponent:       sf.Path,
				ExploitationPossibility: "File can be modified by a non-root user",
				SuggestedMitigation:     "Restore root ownership and remove group/world write permission (chmod go-w)",
			})
		}
		if sf.Secret && fi.WorldReadable() {
			findings = append(findings, engine.Finding{
				Category:                engine.CategoryPermissions,
				Type:                    engine.TypeSensitiveExposure,
				Severity:                engine.SeverityHigh,
				Title:                   "Secret file is readable by every user",
				AffectedComponent:       sf.Path,
				ExploitationPossibility: "Password hashes can be copied and cracked offline",
				SuggestedMitigation:     "chmod o-r the file; only root and the shadow group need to read it",
			})
		}
	}
	return findings
}

func (s *PermissionScanner) sweep(ctx context.Context) []engine.Finding {
	var findings []engine.Finding
	for fi := range hostfs.Walk(ctx, s.FS, s.Config.Root, s.Config.Walk) {
		if fi.IsSymlink() || fi.UID != 0 || !hostfs.WritableByNonRoot(fi) {
			continue
		}
		if s.isSensitive(fi.Path) {
			continue
		}
		if fi.IsDir() && fi.IsSticky() && underAny(fi.Path, s.Config.SafeDirs) {
			continue
		}
		findings = append(findings, sweepFinding(fi))
	}
	s.Logger.Debug("Permission sweep complete", zap.Int("findings", len(findings)))
	return findings
}

func (s *PermissionScanner) isSensitive(p string) bool {
	for _, sf := range s.Config.Sensitive {
		if path.Clean(sf.Path) == p {
			return true
		}
	}
	return false
}

func sweepFinding(fi hostfs.FileInfo) engine.Finding {
	class := Classify(fi.Path)
	info := classes[class]

	f := engine.Finding{
		Category:                engine.CategoryPermissions,
		Type:                    engine.TypeWritableRootPath,
		Severity:                info.severity,
		Title:                   "Root-owned " + kindOf(fi) + " writable by non-root users (" + string(class) + ")",
		AffectedComponent:       fi.Path,
		ExploitationPossibility: info.impact,
		SuggestedMitigation:     "Remove group/world write permission (chmod go-w) or restore the expected ownership",
	}

	if fi.IsDir() && fi.WorldWritable() && !fi.IsSticky() {
		f.Type = engine.TypeWorldWritableDir
		f.Title = "World-writable directory without sticky bit (" + string(class) + ")"
		f.ExploitationPossibility = info.impact + "; files inside can be replaced or hijacked by any user"
		f.SuggestedMitigation = "Set the sticky bit (chmod +t) or remove world write permission (chmod o-w)"
		f.Severity = max(f.Severity, engine.SeverityMedium)
	}
	return f
}

func kindOf(fi hostfs.FileInfo) string {
	if fi.IsDir() {
		return "directory"
	}
	return "file"
}
