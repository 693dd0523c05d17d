// Package config loads privaudit settings from defaults, a YAML file, the
// environment (PRIVAUDIT_*) and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/user/privaudit/pkg/engine"
)

// EnvPrefix prefixes every environment override, e.g. PRIVAUDIT_LOGGER_LEVEL.
const EnvPrefix = "PRIVAUDIT"

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge" yaml:"knowledge"`
	Paths     PathsConfig     `mapstructure:"paths" yaml:"paths"`
	SUID      SUIDConfig      `mapstructure:"suid" yaml:"suid"`
	Cron      CronConfig      `mapstructure:"cron" yaml:"cron"`
	Sweep     SweepConfig     `mapstructure:"sweep" yaml:"sweep"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report"`
	Advisor   AdvisorConfig   `mapstructure:"advisor" yaml:"advisor"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// KnowledgeConfig points at the lookup tables. Empty paths use the tables
// built into the binary.
type KnowledgeConfig struct {
	GTFOBins   string `mapstructure:"gtfobins" yaml:"gtfobins"`
	KernelCVEs string `mapstructure:"kernel_cves" yaml:"kernel_cves"`
}

type SensitiveFile struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Reason string `mapstructure:"reason" yaml:"reason"`
	Secret bool   `mapstructure:"secret" yaml:"secret"`
}

// PathsConfig holds every host location the scanners read.
type PathsConfig struct {
	// Root is where the audited filesystem is mounted; "/" audits the live host.
	Root              string          `mapstructure:"root" yaml:"root"`
	Crontab           string          `mapstructure:"crontab" yaml:"crontab"`
	CronDirs          []string        `mapstructure:"cron_dirs" yaml:"cron_dirs"`
	CronD             string          `mapstructure:"cron_d" yaml:"cron_d"`
	SystemdDirs       []string        `mapstructure:"systemd_dirs" yaml:"systemd_dirs"`
	SensitiveFiles    []SensitiveFile `mapstructure:"sensitive_files" yaml:"sensitive_files"`
	SafeDirs          []string        `mapstructure:"safe_dirs" yaml:"safe_dirs"`
	TransientPrefixes []string        `mapstructure:"transient_prefixes" yaml:"transient_prefixes"`
	ExcludedPrefixes  []string        `mapstructure:"excluded_prefixes" yaml:"excluded_prefixes"`
	MountInfo         string          `mapstructure:"mountinfo" yaml:"mountinfo"`
	OSRelease         string          `mapstructure:"osrelease" yaml:"osrelease"`
	// KernelRelease overrides the detected kernel release.
	KernelRelease string `mapstructure:"kernel_release" yaml:"kernel_release"`
}

type SUIDConfig struct {
	IncludeUnmatched bool `mapstructure:"include_unmatched" yaml:"include_unmatched"`
}

type CronConfig struct {
	ParseCronD bool `mapstructure:"parse_cron_d" yaml:"parse_cron_d"`
}

// SweepConfig bounds the filesystem walks.
type SweepConfig struct {
	Prune           []string `mapstructure:"prune" yaml:"prune"`
	SkipMountPoints bool     `mapstructure:"skip_mount_points" yaml:"skip_mount_points"`
	CrossDevices    bool     `mapstructure:"cross_devices" yaml:"cross_devices"`
}

type ReportConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	JSONFile string `mapstructure:"json_file" yaml:"json_file"`
	TextFile string `mapstructure:"text_file" yaml:"text_file"`
	Color    bool   `mapstructure:"color" yaml:"color"`
	// FailOn makes scan exit non-zero when overall risk reaches this level.
	FailOn   string `mapstructure:"fail_on" yaml:"fail_on"`
	Baseline string `mapstructure:"baseline" yaml:"baseline"`
}

type ProviderConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

type AdvisorConfig struct {
	SelectedProvider string                    `mapstructure:"selected_provider" yaml:"selected_provider"`
	SelectedModel    string                    `mapstructure:"selected_model" yaml:"selected_model"`
	Providers        map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// NewDefaultConfig returns the configuration used when nothing is overridden.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	cfg.normalize()
	return &cfg
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "privaudit")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Knowledge base --
	v.SetDefault("knowledge.gtfobins", "")
	v.SetDefault("knowledge.kernel_cves", "")

	// -- Host paths --
	v.SetDefault("paths.root", "/")
	v.SetDefault("paths.crontab", "/etc/crontab")
	v.SetDefault("paths.cron_dirs", []string{
		"/etc/cron.hourly", "/etc/cron.daily", "/etc/cron.weekly", "/etc/cron.monthly", "/etc/cron.d",
	})
	v.SetDefault("paths.cron_d", "/etc/cron.d")
	v.SetDefault("paths.systemd_dirs", []string{
		"/etc/systemd/system", "/lib/systemd/system", "/usr/lib/systemd/system",
	})
	v.SetDefault("paths.sensitive_files", []map[string]any{
		{"path": "/etc/passwd", "reason": "Writable passwd allows account takeover", "secret": false},
		{"path": "/etc/shadow", "reason": "Writable shadow allows replacing any password hash", "secret": true},
		{"path": "/etc/sudoers", "reason": "Writable sudoers allows instant root", "secret": false},
	})
	v.SetDefault("paths.safe_dirs", []string{"/tmp", "/var/tmp", "/dev/shm", "/run", "/run/lock"})
	v.SetDefault("paths.transient_prefixes", []string{"/tmp", "/var/tmp", "/dev/shm"})
	v.SetDefault("paths.excluded_prefixes", []string{"/proc", "/sys", "/dev", "/run"})
	v.SetDefault("paths.mountinfo", "/proc/self/mountinfo")
	v.SetDefault("paths.osrelease", "/proc/sys/kernel/osrelease")
	v.SetDefault("paths.kernel_release", "")

	// -- Scanners --
	v.SetDefault("suid.include_unmatched", false)
	v.SetDefault("cron.parse_cron_d", true)
	v.SetDefault("sweep.prune", []string{"/proc", "/sys", "/dev", "/run"})
	v.SetDefault("sweep.skip_mount_points", true)
	v.SetDefault("sweep.cross_devices", false)

	// -- Report --
	v.SetDefault("report.dir", "reports")
	v.SetDefault("report.json_file", "report.json")
	v.SetDefault("report.text_file", "report.txt")
	v.SetDefault("report.color", true)
	v.SetDefault("report.fail_on", "")
	v.SetDefault("report.baseline", engine.DefaultSnapshotPath)

	// -- Advisor --
	v.SetDefault("advisor.selected_provider", "gemini")
	v.SetDefault("advisor.selected_model", "gemini-1.5-flash")
}

// DefaultPath returns ~/.privaudit/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".privaudit", "config.yaml"), nil
}

// NewViper prepares a viper instance with defaults, environment bindings
// and, when it exists, the config file at path. A missing file is not an error.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("advisor.providers.gemini.api_key", "GEMINI_API_KEY")

	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("error reading config %s: %w", path, err)
	}
	return v, nil
}

// Load reads the configuration at path on top of the defaults.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper decodes and validates the settings held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.normalize()

	if key := v.GetString("advisor.providers.gemini.api_key"); key != "" && cfg.GetAPIKey("gemini") == "" {
		cfg.SetAPIKey("gemini", key)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Advisor.Providers == nil {
		c.Advisor.Providers = make(map[string]ProviderConfig)
	}
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("logger.level: %w", err)
	}
	if c.Logger.Format != "console" && c.Logger.Format != "json" {
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	if c.Paths.Root == "" || !filepath.IsAbs(c.Paths.Root) {
		return fmt.Errorf("paths.root must be an absolute path, got %q", c.Paths.Root)
	}
	for _, sf := range c.Paths.SensitiveFiles {
		if !filepath.IsAbs(sf.Path) {
			return fmt.Errorf("paths.sensitive_files: %q is not absolute", sf.Path)
		}
	}
	if c.Report.FailOn != "" {
		if _, err := engine.ParseSeverity(c.Report.FailOn); err != nil {
			return fmt.Errorf("report.fail_on: %w", err)
		}
	}
	return nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// 0600 permissions for security (api keys)
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) SetAPIKey(provider, key string) {
	c.normalize()
	p := c.Advisor.Providers[provider]
	p.APIKey = key
	c.Advisor.Providers[provider] = p
}

func (c *Config) GetAPIKey(provider string) string {
	return c.Advisor.Providers[provider].APIKey
}
