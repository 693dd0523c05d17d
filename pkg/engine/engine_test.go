package engine

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeScanner struct {
	name     string
	findings []Finding
	err      error
	panics   bool
	delay    time.Duration
}

func (s *fakeScanner) Name() string        { return s.name }
func (s *fakeScanner) Description() string { return "fake " + s.name }

func (s *fakeScanner) Scan(ctx context.Context) ScanResult {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return ScanResult{Findings: s.findings, Err: s.err}
}

func finding(typ, component string, sev Severity) Finding {
	return Finding{Type: typ, AffectedComponent: component, Severity: sev, Title: typ + " " + component}
}

func TestSeverity(t *testing.T) {
	for _, s := range Severities {
		parsed, err := ParseSeverity(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	parsed, err := ParseSeverity(" high ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, parsed)

	_, err = ParseSeverity("severe")
	assert.Error(t, err)

	assert.True(t, SeverityCritical > SeverityHigh && SeverityHigh > SeverityMedium && SeverityMedium > SeverityLow)

	data, err := json.Marshal(struct{ S Severity }{SeverityMedium})
	require.NoError(t, err)
	assert.JSONEq(t, `{"S":"MEDIUM"}`, string(data))
}

func TestAggregate(t *testing.T) {
	meta := ScanMetadata{ScanID: "id"}
	rep := Aggregate(meta, HostSnapshot{User: "u"},
		ScanResult{Scanner: ScannerKernel, Findings: []Finding{finding("k", "6.1", SeverityCritical)}},
		ScanResult{Scanner: ScannerSUID, Findings: []Finding{
			finding("s", "/usr/bin/find", SeverityHigh),
			finding("s", "/usr/bin/vim", SeverityHigh),
		}},
		ScanResult{Scanner: ScannerCron, Err: errors.New("crontab unreadable")},
		ScanResult{Scanner: "custom", Findings: []Finding{finding("c", "x", SeverityLow)}},
	)

	var ids, components []string
	for _, f := range rep.Findings {
		ids = append(ids, f.ID)
		components = append(components, f.AffectedComponent)
	}
	assert.Equal(t, []string{"FND-001", "FND-002", "FND-003", "FND-004"}, ids)
	assert.Equal(t, []string{"/usr/bin/find", "/usr/bin/vim", "6.1", "x"}, components)
	assert.Equal(t, ScannerSUID, rep.Findings[0].Source)

	want := Summary{
		TotalFindings:     4,
		SeverityBreakdown: map[string]int{"CRITICAL": 1, "HIGH": 2, "MEDIUM": 0, "LOW": 1},
		OverallRisk:       SeverityCritical,
	}
	if diff := cmp.Diff(want, rep.Summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []ScannerSummary{
		{Name: ScannerSUID, Findings: 2},
		{Name: ScannerCron, Error: "crontab unreadable"},
		{Name: ScannerKernel, Findings: 1},
		{Name: "custom", Findings: 1},
	}, rep.Scanners)
	assert.Equal(t, 1, rep.Count(SeverityLow))
}

func TestAggregateEmpty(t *testing.T) {
	rep := Aggregate(ScanMetadata{}, HostSnapshot{})
	assert.Equal(t, 0, rep.Summary.TotalFindings)
	assert.Equal(t, SeverityLow, rep.Summary.OverallRisk)
	assert.NotNil(t, rep.Findings)
	assert.Len(t, rep.Summary.SeverityBreakdown, 4)

	data, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"findings":[]`)
}

func TestAggregateDoesNotAliasInput(t *testing.T) {
	refs := []string{"CVE-1"}
	res := ScanResult{Scanner: ScannerKernel, Findings: []Finding{{References: refs}}}
	rep := Aggregate(ScanMetadata{}, HostSnapshot{}, res)

	rep.Findings[0].References[0] = "changed"
	assert.Equal(t, "CVE-1", refs[0])
	assert.Empty(t, res.Findings[0].ID)
}

func TestRun(t *testing.T) {
	scanners := []Scanner{
		&fakeScanner{name: ScannerSUID, findings: []Finding{finding("s", "a", SeverityHigh)}, delay: 10 * time.Millisecond},
		&fakeScanner{name: ScannerCron, panics: true},
		&fakeScanner{name: ScannerKernel, findings: []Finding{finding("k", "b", SeverityLow)}, err: errors.New("no release")},
		&fakeScanner{name: ScannerServices},
	}

	results := Run(context.Background(), scanners, nil)
	require.Len(t, results, 4)

	assert.Equal(t, ScannerSUID, results[0].Scanner)
	assert.Len(t, results[0].Findings, 1)
	assert.Positive(t, results[0].Duration)

	assert.Equal(t, ScannerCron, results[1].Scanner)
	assert.ErrorContains(t, results[1].Err, "panicked")

	assert.Equal(t, ScannerKernel, results[2].Scanner)
	assert.Error(t, results[2].Err)
	assert.Empty(t, results[2].Findings, "a failed scanner reports no findings")

	assert.NoError(t, results[3].Err)
}

func TestSnapshotOperations(t *testing.T) {
	baseline := Aggregate(ScanMetadata{}, HostSnapshot{}, ScanResult{Scanner: ScannerSUID, Findings: []Finding{
		finding("T", "Asset1", SeverityMedium),
		finding("T", "Asset2", SeverityMedium),
	}})

	path := filepath.Join(t.TempDir(), "nested", "baseline.json")
	require.NoError(t, SaveSnapshot(path, baseline))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, loaded.Findings, 2)

	// Asset3 takes FND-001 in the new run; ids must not affect matching.
	current := Aggregate(ScanMetadata{}, HostSnapshot{}, ScanResult{Scanner: ScannerSUID, Findings: []Finding{
		finding("T", "Asset3", SeverityHigh),
		finding("T", "Asset1", SeverityMedium),
	}})

	diff := Compare(current, loaded)
	require.Len(t, diff.New, 1)
	assert.Equal(t, "Asset3", diff.New[0].AffectedComponent)
	require.Len(t, diff.Fixed, 1)
	assert.Equal(t, "Asset2", diff.Fixed[0].AffectedComponent)
	require.Len(t, diff.Unchanged, 1)
	assert.Equal(t, "Asset1", diff.Unchanged[0].AffectedComponent)

	text := diff.Text(0)
	assert.Contains(t, text, "NEW RISKS: 1\n  [+] [HIGH] T - Asset3\n")
	assert.Contains(t, text, "  ... and 1 more.\n")
}

func TestLoadSnapshotErrors(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read snapshot")
}
