package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSnapshotPath is where a baseline report is kept unless told otherwise.
const DefaultSnapshotPath = ".privaudit-baseline.json"

// SnapshotDiff classifies findings of a current run against a baseline.
type SnapshotDiff struct {
	New       []Finding
	Fixed     []Finding
	Unchanged []Finding
}

// SaveSnapshot writes the report to path as indented JSON.
func SaveSnapshot(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	// Reports list weak spots on the host, keep them private.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// LoadSnapshot reads a report previously written by SaveSnapshot or the JSON renderer.
func LoadSnapshot(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return r, nil
}

// Compare matches findings by Key. Ids are ignored since they depend on
// what else was found in each run.
func Compare(current, baseline Report) SnapshotDiff {
	seen := make(map[string]bool, len(baseline.Findings))
	for _, f := range baseline.Findings {
		seen[f.Key()] = true
	}

	var diff SnapshotDiff
	present := make(map[string]bool, len(current.Findings))
	for _, f := range current.Findings {
		present[f.Key()] = true
		if seen[f.Key()] {
			diff.Unchanged = append(diff.Unchanged, f)
		} else {
			diff.New = append(diff.New, f)
		}
	}
	for _, f := range baseline.Findings {
		if !present[f.Key()] {
			diff.Fixed = append(diff.Fixed, f)
		}
	}
	return diff
}

// Text renders the diff for a terminal, listing at most maxUnchanged
// unchanged findings.
func (d SnapshotDiff) Text(maxUnchanged int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("NEW RISKS: %d\n", len(d.New)))
	for _, f := range d.New {
		sb.WriteString(fmt.Sprintf("  [+] [%s] %s - %s\n", f.Severity, f.Type, f.AffectedComponent))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("FIXED RISKS: %d\n", len(d.Fixed)))
	for _, f := range d.Fixed {
		sb.WriteString(fmt.Sprintf("  [-] [%s] %s - %s\n", f.Severity, f.Type, f.AffectedComponent))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("UNCHANGED RISKS: %d\n", len(d.Unchanged)))
	for i, f := range d.Unchanged {
		if i >= maxUnchanged {
			sb.WriteString(fmt.Sprintf("  ... and %d more.\n", len(d.Unchanged)-maxUnchanged))
			break
		}
		sb.WriteString(fmt.Sprintf("  [=] [%s] %s - %s\n", f.Severity, f.Type, f.AffectedComponent))
	}
	return sb.String()
}
