package scanners

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// vulnerableHost has at least one finding for every scanner.
func vulnerableHost() *hostfs.MemFS {
	return baseHost().
		AddFile("/usr/bin/find", fs.ModeSetuid|0o755, 0, 0, "").
		AddFile("/usr/bin/vim.basic", fs.ModeSetuid|0o755, 0, 0, "").
		AddFile("/etc/crontab", 0o644, 0, 0, "*/5 * * * * root backup.sh\n").
		AddFile("/etc/systemd/system/app.service", 0o664, 0, 10, "[Service]\nExecStart=/usr/local/bin/app\n").
		AddFile("/usr/local/bin/app", 0o755, 0, 0, "").
		AddFile("/srv/share/readme", 0o666, 0, 0, "")
}

func runPipeline(t *testing.T, host hostfs.Inspector) engine.Report {
	t.Helper()
	cfg := DefaultConfig()
	cfg.KB = testKB(t)
	results := engine.Run(context.Background(), All(host, cfg, nil), nil)

	meta := engine.ScanMetadata{ScanID: "fixed", ToolName: "privaudit", ScanTime: time.Unix(0, 0).UTC()}
	return engine.Aggregate(meta, engine.HostSnapshot{User: "root"}, results...)
}

func TestPipelineIdempotent(t *testing.T) {
	host := vulnerableHost()
	first := runPipeline(t, host)
	second := runPipeline(t, host)

	a, err := json.Marshal(first.Findings)
	require.NoError(t, err)
	b, err := json.Marshal(second.Findings)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	if diff := cmp.Diff(first.Summary, second.Summary); diff != "" {
		t.Errorf("summary changed between runs (-first +second):\n%s", diff)
	}
}

func TestPipelineOrderingAndIDs(t *testing.T) {
	report := runPipeline(t, vulnerableHost())
	require.NotEmpty(t, report.Findings)

	first := report.Findings[0]
	assert.Equal(t, "FND-001", first.ID)
	assert.Equal(t, engine.ScannerSUID, first.Source)
	assert.Equal(t, "/usr/bin/find", first.AffectedComponent)

	for i, f := range report.Findings {
		assert.Equal(t, fmt.Sprintf("FND-%03d", i+1), f.ID)
	}

	var sources []string
	for _, f := range report.Findings {
		if len(sources) == 0 || sources[len(sources)-1] != f.Source {
			sources = append(sources, f.Source)
		}
	}
	assert.Equal(t, engine.AggregationOrder, sources)
}

func TestPipelineShadowMonotonic(t *testing.T) {
	host := vulnerableHost()
	before := runPipeline(t, host)
	require.NotEqual(t, engine.SeverityCritical, before.Summary.OverallRisk)

	require.NoError(t, host.Chmod("/etc/shadow", 0o642))
	after := runPipeline(t, host)

	assert.Equal(t, before.Count(engine.SeverityCritical)+1, after.Count(engine.SeverityCritical))
	assert.Equal(t, engine.SeverityCritical, after.Summary.OverallRisk)
}

func TestPipelineMaskedUnitWithoutUser(t *testing.T) {
	host := baseHost().AddSymlink("/etc/systemd/system/masked.service", hostfs.NullDevice)
	report := runPipeline(t, host)

	for _, f := range report.Findings {
		assert.NotEqual(t, engine.CategoryService, f.Category, f.Title)
	}
}

func TestPipelineQuietHost(t *testing.T) {
	report := runPipeline(t, baseHost())

	// Only the informational kernel finding remains.
	require.Len(t, report.Findings, 1)
	assert.Equal(t, engine.ScannerKernel, report.Findings[0].Source)
	assert.Equal(t, engine.SeverityLow, report.Summary.OverallRisk)
	assert.Len(t, report.Scanners, 5)
}
