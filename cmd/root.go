package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/user/privaudit/pkg/config"
	"github.com/user/privaudit/pkg/observability"
)

var rootCmd = &cobra.Command{
	Use:   "privaudit",
	Short: "Local Linux privilege escalation auditor",
	Long: `privaudit inspects the local host for ways an unprivileged user could
become root: SUID/SGID binaries with known escapes, writable cron jobs and
systemd services, weak permissions on sensitive files and vulnerable kernels.

It only reads the filesystem and never modifies the host.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		observability.Sync()
	},
}

var (
	cfgFile   string
	DebugMode bool

	v   *viper.Viper
	cfg *config.Config
)

// flagKeys maps command-line flags onto configuration keys. Flags win over
// the environment, which wins over the config file.
var flagKeys = map[string]string{
	"root":              "paths.root",
	"fail-on":           "report.fail_on",
	"output-dir":        "report.dir",
	"baseline":          "report.baseline",
	"include-unmatched": "suid.include_unmatched",
	"kernel-release":    "paths.kernel_release",
	"gtfobins":          "knowledge.gtfobins",
	"kernel-cves":       "knowledge.kernel_cves",
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	var exit *exitError
	if errors.As(err, &exit) {
		fmt.Fprintln(os.Stderr, exit.msg)
		os.Exit(exit.code)
	}
	cobra.CheckErr(err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.privaudit/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&DebugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("root", "/", "Audit the filesystem mounted at this directory instead of the live host")
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

func loadConfig(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	v, err = config.NewViper(path)
	if err != nil {
		return err
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return fmt.Errorf("bind flags: %w", bindErr)
	}
	if DebugMode {
		v.Set("logger.level", "debug")
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		v.Set("report.color", false)
	}

	cfg, err = config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	if !cfg.Report.Color {
		color.NoColor = true
	}

	observability.InitializeLogger(cfg.Logger)
	return nil
}
