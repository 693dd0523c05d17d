package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/privaudit/pkg/engine"
)

func sampleReport() engine.Report {
	meta := engine.ScanMetadata{
		ScanID:      "0b7c6a52-0000-4000-8000-000000000000",
		ToolName:    ToolName,
		ToolVersion: "1.0.0",
		ScanType:    ScanType,
		ScanTime:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	host := engine.HostSnapshot{User: "alice", UID: 1000, OS: "Debian GNU/Linux 12", Kernel: "6.1.0-18-amd64", Architecture: "x86_64"}
	return engine.Aggregate(meta, host,
		engine.ScanResult{Scanner: engine.ScannerSUID, Findings: []engine.Finding{{
			Category:                engine.CategorySUID,
			Type:                    engine.TypeSUIDBinary,
			Severity:                engine.SeverityHigh,
			Title:                   "SUID binary with known escalation technique: find",
			AffectedComponent:       "/usr/bin/find",
			ExploitationPossibility: `./find . -exec /bin/sh -p \; -quit`,
			SuggestedMitigation:     "Remove the SUID bit",
		}}},
		engine.ScanResult{Scanner: engine.ScannerKernel, Findings: []engine.Finding{{
			Category:          engine.CategoryKernel,
			Type:              engine.TypeKernel,
			Severity:          engine.SeverityCritical,
			Title:             "Kernel 6.1 is affected",
			AffectedComponent: "6.1.0-18-amd64",
			References:        []string{"CVE-2024-1086"},
		}}},
		engine.ScanResult{Scanner: engine.ScannerCron, Err: assert.AnError},
	)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "\n    \"scan_metadata\": {\n        \"scan_id\"")
	assert.Contains(t, out, `"overall_risk": "CRITICAL"`)

	var decoded engine.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "FND-002", decoded.Findings[1].ID)
	assert.Equal(t, engine.SeverityCritical, decoded.Findings[1].Severity)
	assert.Equal(t, []string{"CVE-2024-1086"}, decoded.Findings[1].References)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleReport(), TextOptions{}))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "LINUX PRIVILEGE ESCALATION ASSESSMENT REPORT\n"))
	assert.Contains(t, out, "Scan Time     : 2026-01-02T03:04:05Z")
	assert.Contains(t, out, "Overall Risk  : CRITICAL")
	assert.Contains(t, out, "Finding ID    : FND-001")
	assert.Contains(t, out, "References    : CVE-2024-1086")
	assert.Contains(t, out, "cron: assert.AnError general error for testing")
	assert.NotContains(t, out, "\x1b[")
}

func TestWriteTextLocationAndUnknownKernel(t *testing.T) {
	rep := engine.Aggregate(engine.ScanMetadata{}, engine.HostSnapshot{},
		engine.ScanResult{Scanner: engine.ScannerCron, Findings: []engine.Finding{{
			Category:          engine.CategoryCron,
			Type:              engine.TypeCronPathHijack,
			Severity:          engine.SeverityHigh,
			Title:             `Root cron job runs "backup.sh" without an absolute path`,
			AffectedComponent: "backup.sh",
			Location:          "/etc/crontab:3",
		}}},
	)
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, rep, TextOptions{}))
	out := buf.String()

	assert.Contains(t, out, "Kernel        : unknown")
	assert.Contains(t, out, "Location      : /etc/crontab:3")
	assert.NotContains(t, sampleText(t), "Location      :")
}

func sampleText(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleReport(), TextOptions{}))
	return buf.String()
}

func TestWriteTextColor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleReport(), TextOptions{Color: true}))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestWriterSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	w := Writer{Dir: dir, JSONFile: "report.json", TextFile: "report.txt"}

	jsonPath, textPath, err := w.Save(sampleReport())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.json"), jsonPath)

	for _, p := range []string{jsonPath, textPath} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	loaded, err := engine.LoadSnapshot(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Summary.TotalFindings)
}
