package engine

import (
	"fmt"
	"strings"
)

// Severity is the ranked risk level of a finding. The zero value is LOW.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Severities lists every level from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity converts a case-insensitive level name into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText renders the severity by name in JSON and YAML.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Category groups findings by the subsystem they were found in.
type Category string

const (
	CategorySUID        Category = "SUID Binary"
	CategoryPermissions Category = "Weak File Permissions"
	CategoryService     Category = "Service Misconfiguration"
	CategoryCron        Category = "Cron Job Vulnerability"
	CategoryKernel      Category = "Kernel Analysis"
)

// Finding types, one per detectable condition.
const (
	TypeSUIDBinary            = "SUID/SGID Binary"
	TypeCronPathHijack        = "Cron PATH Hijack"
	TypeCronSymlink           = "Cron Symlink Execution"
	TypeWritableCronScript    = "Writable Cron Script"
	TypeCronTiming            = "Cron Timing Attack"
	TypeWritableCronDirectory = "Writable Cron Directory"
	TypeWritableService       = "Writable systemd Service"
	TypeWritableExecStart     = "Writable ExecStart target"
	TypeInsecureServicePath   = "Insecure PATH in service"
	TypeWritableEnvFile       = "Writable EnvironmentFile"
	TypeSensitivePermission   = "Sensitive File Permission"
	TypeSensitiveExposure     = "Sensitive File Exposure"
	TypeWritableRootPath      = "Writable Root-Owned Path"
	TypeWorldWritableDir      = "Exploitable World-Writable Directory"
	TypeKernel                = "Kernel Analysis"
)

// Finding represents a single privilege escalation weakness.
// Scanners build findings by value; only the aggregator assigns ID.
type Finding struct {
	ID                      string   `json:"id" yaml:"id"`
	Category                Category `json:"category" yaml:"category"`
	Type                    string   `json:"type" yaml:"type"`
	Severity                Severity `json:"severity" yaml:"severity"`
	Title                   string   `json:"title" yaml:"title"`
	AffectedComponent       string   `json:"affected_component" yaml:"affected_component"`
	ExploitationPossibility string   `json:"exploitation_possibility" yaml:"exploitation_possibility"`
	SuggestedMitigation     string   `json:"suggested_mitigation" yaml:"suggested_mitigation"`
	References              []string `json:"references,omitempty" yaml:"references,omitempty"`
	Location                string   `json:"location,omitempty" yaml:"location,omitempty"`
	Source                  string   `json:"source" yaml:"source"`
}

// Key identifies the same weakness across runs, independent of its id.
// Location is left out so that a line moving in a config file does not
// turn one weakness into a new and a fixed one.
func (f Finding) Key() string {
	return f.Type + "|" + f.AffectedComponent + "|" + f.Title
}
