package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/privaudit/pkg/engine"
)

var diffCmd = &cobra.Command{
	Use:   "diff [baseline.json] [current.json]",
	Short: "Compare two saved reports",
	Long: `Shows findings that are new, fixed or unchanged between two JSON reports.
Without arguments the configured baseline is compared with the latest report.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		basePath := cfg.Report.Baseline
		curPath := filepath.Join(cfg.Report.Dir, cfg.Report.JSONFile)
		if len(args) > 0 {
			basePath = args[0]
		}
		if len(args) > 1 {
			curPath = args[1]
		}

		baseline, err := engine.LoadSnapshot(basePath)
		if err != nil {
			return err
		}
		current, err := engine.LoadSnapshot(curPath)
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("max-unchanged")
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Baseline: %s (%s)\nCurrent:  %s (%s)\n\n",
			basePath, baseline.Metadata.ScanTime.Format("2006-01-02 15:04"),
			curPath, current.Metadata.ScanTime.Format("2006-01-02 15:04"))
		fmt.Fprint(out, engine.Compare(current, baseline).Text(limit))
		return nil
	},
}

func init() {
	diffCmd.Flags().Int("max-unchanged", 10, "Maximum unchanged findings to list")
	rootCmd.AddCommand(diffCmd)
}
