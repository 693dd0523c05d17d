package advisor

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/knowledge"
	"github.com/user/privaudit/pkg/scanners"
)

// ReportTools returns the tools that expose report to the model.
func ReportTools(report *engine.Report, kb *knowledge.Base) []Tool {
	return []Tool{
		&ListFindingsTool{Report: report},
		&GetFindingTool{Report: report},
		&GTFOBinsTool{KB: kb},
		&KernelTool{KB: kb},
	}
}

// ListFindingsTool summarises findings, optionally filtered.
type ListFindingsTool struct {
	Report *engine.Report
}

func (t *ListFindingsTool) Name() string { return "list_findings" }

func (t *ListFindingsTool) Description() string {
	return "List report findings as one line each, optionally filtered by minimum severity or category."
}

func (t *ListFindingsTool) Parameters() map[string]string {
	return map[string]string{
		"min_severity": "Lowest severity to include: LOW, MEDIUM, HIGH or CRITICAL",
		"category":     "Substring of the finding category, e.g. cron or SUID",
	}
}

func (t *ListFindingsTool) Execute(_ context.Context, args map[string]any) (string, error) {
	minSev := engine.SeverityLow
	if s := stringArg(args, "min_severity"); s != "" {
		parsed, err := engine.ParseSeverity(s)
		if err != nil {
			return "", err
		}
		minSev = parsed
	}
	category := strings.ToLower(stringArg(args, "category"))

	var b strings.Builder
	for _, f := range t.Report.Findings {
		if f.Severity < minSev {
			continue
		}
		if category != "" && !strings.Contains(strings.ToLower(string(f.Category)), category) {
			continue
		}
		fmt.Fprintf(&b, "%s [%s] %s: %s (%s)\n", f.ID, f.Severity, f.Type, f.Title, f.AffectedComponent)
	}
	if b.Len() == 0 {
		return "No matching findings.", nil
	}
	return b.String(), nil
}

// GetFindingTool returns every field of one finding.
type GetFindingTool struct {
	Report *engine.Report
}

func (t *GetFindingTool) Name() string { return "get_finding" }

func (t *GetFindingTool) Description() string {
	return "Show the full details of one finding by its id."
}

func (t *GetFindingTool) Parameters() map[string]string {
	return map[string]string{"id": "Finding id such as FND-001"}
}

func (t *GetFindingTool) Execute(_ context.Context, args map[string]any) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(stringArg(args, "id")))
	for _, f := range t.Report.Findings {
		if f.ID != id {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "ID: %s\nCategory: %s\nType: %s\nSeverity: %s\n", f.ID, f.Category, f.Type, f.Severity)
		fmt.Fprintf(&b, "Title: %s\nAffected: %s\n", f.Title, f.AffectedComponent)
		if f.Location != "" {
			fmt.Fprintf(&b, "Location: %s\n", f.Location)
		}
		fmt.Fprintf(&b, "Exploitation: %s\nMitigation: %s\n", f.ExploitationPossibility, f.SuggestedMitigation)
		if len(f.References) > 0 {
			fmt.Fprintf(&b, "References: %s\n", strings.Join(f.References, ", "))
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("finding %q not in report", id)
}

// GTFOBinsTool looks up a binary escape technique.
type GTFOBinsTool struct {
	KB *knowledge.Base
}

func (t *GTFOBinsTool) Name() string { return "lookup_gtfobins" }

func (t *GTFOBinsTool) Description() string {
	return "Look up the known privilege escalation technique for a binary name or path."
}

func (t *GTFOBinsTool) Parameters() map[string]string {
	return map[string]string{"binary": "Binary name or absolute path, e.g. find or /usr/bin/vim"}
}

func (t *GTFOBinsTool) Execute(_ context.Context, args map[string]any) (string, error) {
	name := path.Base(strings.TrimSpace(stringArg(args, "binary")))
	if technique, ok := t.KB.Technique(name); ok {
		return technique, nil
	}
	return fmt.Sprintf("No known technique for %s.", name), nil
}

// KernelTool looks up the CVE entry for a kernel release.
type KernelTool struct {
	KB *knowledge.Base
}

func (t *KernelTool) Name() string { return "lookup_kernel" }

func (t *KernelTool) Description() string {
	return "Look up known local privilege escalation CVEs for a kernel release."
}

func (t *KernelTool) Parameters() map[string]string {
	return map[string]string{"release": "Kernel release, e.g. 5.15.0-91-generic"}
}

func (t *KernelTool) Execute(_ context.Context, args map[string]any) (string, error) {
	mm := scanners.MajorMinor(strings.TrimSpace(stringArg(args, "release")))
	entry, ok := t.KB.Kernel(mm)
	if !ok {
		return fmt.Sprintf("No known CVEs for kernel %s.", mm), nil
	}
	return fmt.Sprintf("Kernel %s risk %s. CVEs: %s. %s", mm, entry.Risk, strings.Join(entry.CVEs, ", "), entry.Note), nil
}
