package audit

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/user/privaudit/pkg/config"
	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testHost() *hostfs.MemFS {
	return hostfs.NewMemFS().
		AddDir("/tmp", fs.ModeSticky|0o777, 0, 0).
		AddFile("/etc/passwd", 0o666, 0, 0, "root:x:0:0:root:/root:/bin/bash\n").
		AddFile("/etc/shadow", 0o640, 0, 42, "").
		AddFile("/etc/crontab", 0o644, 0, 0, "* * * * * root cleanup\n").
		AddFile("/usr/bin/find", fs.ModeSetuid|0o755, 0, 0, "").
		AddDir("/mnt/data", 0o777, 0, 0).
		AddFile("/mnt/data/inner", 0o666, 0, 0, "").
		AddFile("/proc/self/mountinfo", 0o444, 0, 0,
			"22 1 8:1 / / rw - ext4 /dev/sda1 rw\n"+
				"40 22 8:2 / /mnt/data rw - ext4 /dev/sda2 rw\n").
		AddFile("/proc/sys/kernel/osrelease", 0o444, 0, 0, "5.8.0-63-generic\n")
}

func newTestAuditor(t *testing.T, host hostfs.Inspector, cfg *config.Config) *Auditor {
	t.Helper()
	a := New(host, cfg, nil)
	a.Version = "test"
	a.Clock = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)) }
	a.Host = func(hostfs.Inspector) engine.HostSnapshot { return engine.HostSnapshot{User: "tester"} }
	return a
}

func TestRun(t *testing.T) {
	rep := newTestAuditor(t, testHost(), config.NewDefaultConfig()).Run(context.Background())

	_, err := uuid.Parse(rep.Metadata.ScanID)
	require.NoError(t, err)
	assert.Equal(t, "privaudit", rep.Metadata.ToolName)
	assert.Equal(t, "test", rep.Metadata.ToolVersion)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), rep.Metadata.ScanTime)
	assert.Equal(t, "tester", rep.System.User)
	assert.Equal(t, "5.8.0-63-generic", rep.System.Kernel)

	assert.Equal(t, engine.SeverityCritical, rep.Summary.OverallRisk)
	require.Len(t, rep.Scanners, 5)
	for _, s := range rep.Scanners {
		assert.Empty(t, s.Error, s.Name)
	}

	var components []string
	for _, f := range rep.Findings {
		components = append(components, f.AffectedComponent)
	}
	assert.Contains(t, components, "/usr/bin/find")
	assert.Contains(t, components, "/etc/passwd")
	assert.Contains(t, components, "cleanup")
	assert.Contains(t, components, "/mnt/data")
	assert.NotContains(t, components, "/mnt/data/inner")
}

func TestRunCrossesMountsWhenAllowed(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Sweep.SkipMountPoints = false

	rep := newTestAuditor(t, testHost(), cfg).Run(context.Background())
	var components []string
	for _, f := range rep.Findings {
		components = append(components, f.AffectedComponent)
	}
	assert.Contains(t, components, "/mnt/data/inner")
}

func TestRunImageRootKernel(t *testing.T) {
	host := testHost()
	host.Remove("/proc/sys/kernel/osrelease")
	live := func(hostfs.Inspector) engine.HostSnapshot { return engine.HostSnapshot{Kernel: "6.8.0-live"} }

	cfg := config.NewDefaultConfig()
	cfg.Paths.Root = "/mnt/image"
	a := newTestAuditor(t, host, cfg)
	a.Host = live
	rep := a.Run(context.Background())

	assert.Empty(t, rep.System.Kernel)
	for _, s := range rep.Scanners {
		if s.Name == engine.ScannerKernel {
			assert.Contains(t, s.Error, "kernel release unavailable")
		}
	}

	cfg.Paths.KernelRelease = "5.8.0-63-generic"
	a = newTestAuditor(t, host, cfg)
	a.Host = live
	rep = a.Run(context.Background())
	assert.Equal(t, "5.8.0-63-generic", rep.System.Kernel)

	var kernel []engine.Finding
	for _, f := range rep.Findings {
		if f.Category == engine.CategoryKernel {
			kernel = append(kernel, f)
		}
	}
	require.Len(t, kernel, 1)
	assert.Equal(t, "5.8.0-63-generic", kernel[0].AffectedComponent)
}

func TestScannerConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.SUID.IncludeUnmatched = true
	cfg.Paths.KernelRelease = "6.1.0"

	a := newTestAuditor(t, testHost(), cfg)
	a.Principal = hostfs.Principal{UID: 1000, GIDs: []uint32{1000}}
	sc := a.ScannerConfig(nil)

	assert.True(t, sc.SUID.IncludeUnmatched)
	assert.Equal(t, []string{"/mnt/data"}, sc.SUID.Walk.MountPoints)
	assert.Equal(t, sc.SUID.Walk, sc.Permissions.Walk)
	assert.Equal(t, "/etc/crontab", sc.Cron.Crontab)
	assert.Equal(t, "6.1.0", sc.Kernel.Release)
	assert.Equal(t, uint32(1000), sc.Principal.UID)
	require.Len(t, sc.Permissions.Sensitive, 3)
	assert.True(t, sc.Permissions.Sensitive[1].Secret)
}

func TestKnowledgeBaseLogsBrokenFile(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := config.NewDefaultConfig()
	cfg.Knowledge.GTFOBins = writeTemp(t, "{not json")

	a := New(testHost(), cfg, zap.New(core))
	kb := a.KnowledgeBase()

	bins, kernels := kb.Counts()
	assert.Zero(t, bins)
	assert.NotZero(t, kernels)
	assert.Equal(t, 1, logs.FilterMessage("knowledge base incomplete").Len())
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "kb.json")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}
