package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "/", cfg.Paths.Root)
	assert.Equal(t, "/etc/crontab", cfg.Paths.Crontab)
	assert.Len(t, cfg.Paths.CronDirs, 5)
	require.Len(t, cfg.Paths.SensitiveFiles, 3)
	assert.True(t, cfg.Paths.SensitiveFiles[1].Secret)
	assert.False(t, cfg.SUID.IncludeUnmatched)
	assert.True(t, cfg.Cron.ParseCronD)
	assert.True(t, cfg.Sweep.SkipMountPoints)
	assert.Equal(t, "reports", cfg.Report.Dir)
	assert.NotNil(t, cfg.Advisor.Providers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	def := NewDefaultConfig()
	assert.Equal(t, def.Paths, cfg.Paths)
	assert.Equal(t, def.Logger, cfg.Logger)
	assert.Equal(t, def.Report, cfg.Report)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logger:
  level: debug
suid:
  include_unmatched: true
paths:
  root: /mnt/image
  systemd_dirs: [/etc/systemd/system]
report:
  fail_on: high
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("PRIVAUDIT_LOGGER_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.True(t, cfg.SUID.IncludeUnmatched)
	assert.Equal(t, "/mnt/image", cfg.Paths.Root)
	assert.Equal(t, []string{"/etc/systemd/system"}, cfg.Paths.SystemdDirs)
	assert.Equal(t, "high", cfg.Report.FailOn)
	// Untouched sections keep their defaults.
	assert.Equal(t, "/etc/crontab", cfg.Paths.Crontab)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"bad level":     func(c *Config) { c.Logger.Level = "loud" },
		"bad format":    func(c *Config) { c.Logger.Format = "xml" },
		"relative root": func(c *Config) { c.Paths.Root = "image" },
		"bad fail_on":   func(c *Config) { c.Report.FailOn = "severe" },
		"relative sensitive": func(c *Config) {
			c.Paths.SensitiveFiles = append(c.Paths.SensitiveFiles, SensitiveFile{Path: "etc/x"})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := NewDefaultConfig()
	cfg.SetAPIKey("gemini", "secret-key")
	cfg.Advisor.SelectedModel = "gemini-1.5-pro"

	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", loaded.GetAPIKey("gemini"))
	assert.Equal(t, "gemini-1.5-pro", loaded.Advisor.SelectedModel)
}
