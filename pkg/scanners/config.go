package scanners

import (
	"github.com/user/privaudit/pkg/hostfs"
	"github.com/user/privaudit/pkg/knowledge"
)

// Config bundles what every scanner needs for one run.
type Config struct {
	KB          *knowledge.Base
	Principal   hostfs.Principal
	SUID        SUIDConfig
	Cron        CronConfig
	Systemd     SystemdConfig
	Permissions PermissionConfig
	Kernel      KernelConfig
}

// DefaultConfig returns the standard Linux locations.
func DefaultConfig() Config {
	return Config{
		KB:          knowledge.Empty(),
		Principal:   hostfs.AnyUnprivileged(),
		SUID:        DefaultSUIDConfig(),
		Cron:        DefaultCronConfig(),
		Systemd:     DefaultSystemdConfig(),
		Permissions: DefaultPermissionConfig(),
		Kernel:      DefaultKernelConfig(),
	}
}

// SUIDConfig controls the setuid/setgid sweep.
type SUIDConfig struct {
	Root string
	Walk hostfs.WalkOptions
	// IncludeUnmatched also reports special-bit binaries without a known
	// technique, at LOW severity.
	IncludeUnmatched bool
}

func DefaultSUIDConfig() SUIDConfig {
	return SUIDConfig{Root: "/", Walk: hostfs.WalkOptions{Prune: hostfs.DefaultPrune}}
}

// CronConfig lists the cron locations to audit.
type CronConfig struct {
	Crontab      string
	PeriodicDirs []string
	// CronD is the periodic directory whose entries are crontab-format files.
	CronD             string
	ParseCronD        bool
	TransientPrefixes []string
}

func DefaultCronConfig() CronConfig {
	return CronConfig{
		Crontab: "/etc/crontab",
		PeriodicDirs: []string{
			"/etc/cron.hourly",
			"/etc/cron.daily",
			"/etc/cron.weekly",
			"/etc/cron.monthly",
			"/etc/cron.d",
		},
		CronD:             "/etc/cron.d",
		ParseCronD:        true,
		TransientPrefixes: DefaultTransientPrefixes,
	}
}

// SystemdConfig lists the unit search directories.
type SystemdConfig struct {
	UnitDirs         []string
	ExcludedPrefixes []string
}

func DefaultSystemdConfig() SystemdConfig {
	return SystemdConfig{
		UnitDirs: []string{
			"/etc/systemd/system",
			"/lib/systemd/system",
			"/usr/lib/systemd/system",
		},
		ExcludedPrefixes: DefaultExcludedPrefixes,
	}
}

// SensitiveFile is a file whose integrity the whole host depends on.
type SensitiveFile struct {
	Path   string
	Reason string
	// Secret files must also not be readable by everyone.
	Secret bool
}

// PermissionConfig controls both permission passes.
type PermissionConfig struct {
	Sensitive []SensitiveFile
	Root      string
	Walk      hostfs.WalkOptions
	// SafeDirs are shared scratch directories, benign when sticky.
	SafeDirs []string
}

func DefaultPermissionConfig() PermissionConfig {
	return PermissionConfig{
		Sensitive: []SensitiveFile{
			{Path: "/etc/passwd", Reason: "Writable passwd allows account takeover"},
			{Path: "/etc/shadow", Reason: "Writable shadow allows replacing any password hash", Secret: true},
			{Path: "/etc/sudoers", Reason: "Writable sudoers allows instant root"},
		},
		Root:     "/",
		Walk:     hostfs.WalkOptions{Prune: hostfs.DefaultPrune},
		SafeDirs: []string{"/tmp", "/var/tmp", "/dev/shm", "/run", "/run/lock"},
	}
}

// KernelConfig locates the running kernel release.
type KernelConfig struct {
	// Release overrides detection when set.
	Release       string
	OSReleasePath string
}

func DefaultKernelConfig() KernelConfig {
	return KernelConfig{OSReleasePath: "/proc/sys/kernel/osrelease"}
}
