package engine

import "time"

// ScanMetadata identifies one audit run.
type ScanMetadata struct {
	ScanID      string    `json:"scan_id" yaml:"scan_id"`
	ToolName    string    `json:"tool_name" yaml:"tool_name"`
	ToolVersion string    `json:"tool_version" yaml:"tool_version"`
	ScanType    string    `json:"scan_type" yaml:"scan_type"`
	ScanTime    time.Time `json:"scan_time" yaml:"scan_time"`
}

// HostSnapshot is the static description of the audited host.
type HostSnapshot struct {
	User         string `json:"user" yaml:"user"`
	UID          int    `json:"uid" yaml:"uid"`
	IsRoot       bool   `json:"is_root" yaml:"is_root"`
	OS           string `json:"os" yaml:"os"`
	Kernel       string `json:"kernel" yaml:"kernel"`
	Architecture string `json:"architecture" yaml:"architecture"`
	Hostname     string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
}

// Summary carries the headline numbers of a report.
type Summary struct {
	TotalFindings     int            `json:"total_findings" yaml:"total_findings"`
	SeverityBreakdown map[string]int `json:"severity_breakdown" yaml:"severity_breakdown"`
	OverallRisk       Severity       `json:"overall_risk" yaml:"overall_risk"`
}

// ScannerSummary records how each scanner fared.
type ScannerSummary struct {
	Name     string `json:"name" yaml:"name"`
	Findings int    `json:"findings" yaml:"findings"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report is the consolidated, severity-ranked result of one run.
type Report struct {
	Metadata ScanMetadata     `json:"scan_metadata" yaml:"scan_metadata"`
	System   HostSnapshot     `json:"system_information" yaml:"system_information"`
	Summary  Summary          `json:"summary" yaml:"summary"`
	Scanners []ScannerSummary `json:"scanners" yaml:"scanners"`
	Findings []Finding        `json:"findings" yaml:"findings"`
}

// Count returns how many findings carry the given severity.
func (r *Report) Count(s Severity) int {
	return r.Summary.SeverityBreakdown[s.String()]
}
