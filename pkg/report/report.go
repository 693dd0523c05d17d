// Package report renders an engine.Report as JSON and as a text document.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/user/privaudit/pkg/engine"
)

const (
	ToolName = "privaudit"
	ScanType = "Local Privilege Escalation Assessment"
)

// WriteJSON encodes the report with four-space indentation.
func WriteJSON(w io.Writer, r engine.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// TextOptions tune the human-readable rendering.
type TextOptions struct {
	Color bool
}

// WriteText renders the report as a sectioned document: header, system
// information, executive summary with a severity table, and every finding.
func WriteText(w io.Writer, r engine.Report, opts TextOptions) error {
	p := &printer{w: w, color: opts.Color}

	p.line("LINUX PRIVILEGE ESCALATION ASSESSMENT REPORT")
	p.rule("=", 55)
	p.field("Tool Name", r.Metadata.ToolName)
	p.field("Tool Version", r.Metadata.ToolVersion)
	p.field("Scan ID", r.Metadata.ScanID)
	p.field("Scan Type", r.Metadata.ScanType)
	p.field("Scan Time", r.Metadata.ScanTime.UTC().Format(time.RFC3339))
	p.line("")

	p.line("SYSTEM INFORMATION")
	p.rule("-", 25)
	p.field("User", r.System.User)
	p.field("UID", strconv.Itoa(r.System.UID))
	p.field("Is Root", strconv.FormatBool(r.System.IsRoot))
	p.field("Hostname", r.System.Hostname)
	p.field("Operating Sys", r.System.OS)
	p.field("Kernel", orUnknown(r.System.Kernel))
	p.field("Architecture", r.System.Architecture)
	p.line("")

	p.line("EXECUTIVE SUMMARY")
	p.rule("-", 25)
	p.field("Total Findings", strconv.Itoa(r.Summary.TotalFindings))
	p.field("Overall Risk", p.severity(r.Summary.OverallRisk))
	p.line("")
	if p.err != nil {
		return p.err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Severity", "Findings"})
	for _, s := range engine.Severities {
		table.Append([]string{s.String(), strconv.Itoa(r.Summary.SeverityBreakdown[s.String()])})
	}
	table.Render()
	p.line("")

	if failed := failedScanners(r); len(failed) > 0 {
		p.line("INCOMPLETE SCANNERS")
		p.rule("-", 25)
		for _, s := range failed {
			p.line(fmt.Sprintf("  %s: %s", s.Name, s.Error))
		}
		p.line("")
	}

	p.line("DETAILED FINDINGS")
	p.rule("=", 55)
	if len(r.Findings) == 0 {
		p.line("No findings.")
	}
	for _, f := range r.Findings {
		p.field("Finding ID", f.ID)
		p.field("Category", string(f.Category))
		p.field("Type", f.Type)
		p.field("Severity", p.severity(f.Severity))
		p.field("Title", f.Title)
		p.field("Affected Item", f.AffectedComponent)
		if f.Location != "" {
			p.field("Location", f.Location)
		}
		if len(f.References) > 0 {
			p.field("References", strings.Join(f.References, ", "))
		}
		p.line("")
		p.line("Exploitation Possibility:")
		p.line("  " + f.ExploitationPossibility)
		p.line("")
		p.line("Suggested Mitigation:")
		p.line("  " + f.SuggestedMitigation)
		p.rule("-", 55)
	}
	return p.err
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func failedScanners(r engine.Report) []engine.ScannerSummary {
	var failed []engine.ScannerSummary
	for _, s := range r.Scanners {
		if s.Error != "" {
			failed = append(failed, s)
		}
	}
	return failed
}

// printer remembers the first write error so rendering code stays linear.
type printer struct {
	w     io.Writer
	color bool
	err   error
}

func (p *printer) line(s string) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintln(p.w, s)
}

func (p *printer) rule(ch string, n int) {
	p.line(strings.Repeat(ch, n))
}

func (p *printer) field(label, value string) {
	p.line(fmt.Sprintf("%-14s: %s", label, value))
}

func (p *printer) severity(s engine.Severity) string {
	c := SeverityColor(s)
	if !p.color {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c.Sprint(s.String())
}

// SeverityColor returns the terminal color used for a severity.
func SeverityColor(s engine.Severity) *color.Color {
	switch s {
	case engine.SeverityCritical:
		return color.New(color.FgHiRed, color.Bold)
	case engine.SeverityHigh:
		return color.New(color.FgRed)
	case engine.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

// Writer saves reports into a directory.
type Writer struct {
	Dir      string
	JSONFile string
	TextFile string
}

// Save writes both renderings and returns their paths. Files are private to
// the owner since they map out weak spots of the host.
func (w Writer) Save(r engine.Report) (jsonPath, textPath string, err error) {
	if err := os.MkdirAll(w.Dir, 0o750); err != nil {
		return "", "", fmt.Errorf("create report dir: %w", err)
	}

	jsonPath = filepath.Join(w.Dir, w.JSONFile)
	if err := writeFile(jsonPath, func(out io.Writer) error { return WriteJSON(out, r) }); err != nil {
		return "", "", err
	}

	textPath = filepath.Join(w.Dir, w.TextFile)
	if err := writeFile(textPath, func(out io.Writer) error { return WriteText(out, r, TextOptions{}) }); err != nil {
		return "", "", err
	}
	return jsonPath, textPath, nil
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
