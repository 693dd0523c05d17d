package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
	"github.com/user/privaudit/pkg/scanners"
)

func cronReport(t *testing.T, crontab string) engine.Report {
	t.Helper()
	host := hostfs.NewMemFS().AddFile("/etc/crontab", 0o644, 0, 0, crontab)
	res := scanners.NewCronScanner(host, scanners.DefaultCronConfig(), nil).Scan(context.Background())
	require.NoError(t, res.Err)
	return engine.Aggregate(engine.ScanMetadata{}, engine.HostSnapshot{}, res)
}

func TestCompareIgnoresLineShift(t *testing.T) {
	baseline := cronReport(t, "* * * * * root backup.sh\n")
	require.Len(t, baseline.Findings, 1)
	assert.Equal(t, "/etc/crontab:1", baseline.Findings[0].Location)

	shifted := cronReport(t, "# nightly\n* * * * * root backup.sh\n")
	diff := engine.Compare(shifted, baseline)
	assert.Empty(t, diff.New)
	assert.Empty(t, diff.Fixed)
	require.Len(t, diff.Unchanged, 1)
	assert.Equal(t, "/etc/crontab:2", diff.Unchanged[0].Location)

	changed := cronReport(t, "# nightly\n* * * * * root cleanup.sh\n")
	diff = engine.Compare(changed, baseline)
	require.Len(t, diff.New, 1)
	assert.Equal(t, "cleanup.sh", diff.New[0].AffectedComponent)
	require.Len(t, diff.Fixed, 1)
	assert.Equal(t, "backup.sh", diff.Fixed[0].AffectedComponent)
	assert.Empty(t, diff.Unchanged)
}
