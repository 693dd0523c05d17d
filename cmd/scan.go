package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/privaudit/pkg/audit"
	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
	"github.com/user/privaudit/pkg/observability"
	"github.com/user/privaudit/pkg/report"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Audit the host for privilege escalation vectors",
	Long: `Runs the SUID/SGID, permission, systemd, cron and kernel scanners,
writes report.json and report.txt to the report directory and prints a summary.`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	toStdout, _ := cmd.Flags().GetBool("stdout")
	asJSON, _ := cmd.Flags().GetBool("json")
	saveBaseline, _ := cmd.Flags().GetBool("save-baseline")
	compare, _ := cmd.Flags().GetBool("compare")

	in := hostfs.NewOS(cfg.Paths.Root)
	auditor := audit.New(in, cfg, logger)
	auditor.Principal = hostfs.CurrentPrincipal()
	auditor.Version = Version

	rep := auditor.Run(cmd.Context())
	if err := cmd.Context().Err(); err != nil {
		return fmt.Errorf("scan interrupted: %w", err)
	}

	out := cmd.OutOrStdout()
	writer := report.Writer{Dir: cfg.Report.Dir, JSONFile: cfg.Report.JSONFile, TextFile: cfg.Report.TextFile}
	jsonPath, textPath, err := writer.Save(rep)
	if err != nil {
		return err
	}
	logger.Info("reports written", zap.String("json", jsonPath), zap.String("text", textPath))

	switch {
	case asJSON:
		if err := report.WriteJSON(out, rep); err != nil {
			return err
		}
	case toStdout:
		if err := report.WriteText(out, rep, report.TextOptions{Color: !color.NoColor}); err != nil {
			return err
		}
	default:
		printSummary(cmd, rep, jsonPath, textPath)
	}

	if compare {
		baseline, err := engine.LoadSnapshot(cfg.Report.Baseline)
		if err != nil {
			logger.Warn("no baseline to compare against", zap.Error(err))
		} else {
			fmt.Fprintln(out)
			fmt.Fprint(out, engine.Compare(rep, baseline).Text(10))
		}
	}
	if saveBaseline {
		if err := engine.SaveSnapshot(cfg.Report.Baseline, rep); err != nil {
			return err
		}
		fmt.Fprintf(out, "Baseline saved to %s\n", cfg.Report.Baseline)
	}

	return checkFailOn(rep, cfg.Report.FailOn)
}

func printSummary(cmd *cobra.Command, rep engine.Report, jsonPath, textPath string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scan %s complete: %d findings, overall risk %s\n",
		rep.Metadata.ScanID, rep.Summary.TotalFindings,
		report.SeverityColor(rep.Summary.OverallRisk).Sprint(rep.Summary.OverallRisk))
	for _, s := range engine.Severities {
		if n := rep.Count(s); n > 0 {
			fmt.Fprintf(out, "  %-9s: %d\n", s, n)
		}
	}
	for _, s := range rep.Scanners {
		if s.Error != "" {
			fmt.Fprintf(out, "  scanner %s incomplete: %s\n", s.Name, s.Error)
		}
	}
	fmt.Fprintf(out, "Reports: %s, %s\n", jsonPath, textPath)
}

// checkFailOn returns an exit status 2 error when the overall risk reaches threshold.
func checkFailOn(rep engine.Report, threshold string) error {
	if threshold == "" || rep.Summary.TotalFindings == 0 {
		return nil
	}
	level, err := engine.ParseSeverity(threshold)
	if err != nil {
		return err
	}
	if rep.Summary.OverallRisk >= level {
		return &exitError{code: 2, msg: fmt.Sprintf("overall risk %s reaches --fail-on %s", rep.Summary.OverallRisk, level)}
	}
	return nil
}

func init() {
	scanCmd.Flags().Bool("stdout", false, "Print the text report to stdout")
	scanCmd.Flags().Bool("json", false, "Print the JSON report to stdout")
	scanCmd.Flags().Bool("no-color", false, "Disable coloured output")
	scanCmd.Flags().String("output-dir", "reports", "Directory for report.json and report.txt")
	scanCmd.Flags().String("fail-on", "", "Exit with status 2 when overall risk is at least this severity")
	scanCmd.Flags().String("baseline", engine.DefaultSnapshotPath, "Baseline report path")
	scanCmd.Flags().Bool("save-baseline", false, "Save this report as the new baseline")
	scanCmd.Flags().Bool("compare", false, "Compare this report with the baseline")
	scanCmd.Flags().Bool("include-unmatched", false, "Also report SUID/SGID binaries without a known technique")
	scanCmd.Flags().String("kernel-release", "", "Kernel release to assess instead of the running one")
	scanCmd.Flags().String("gtfobins", "", "GTFOBins table (JSON or YAML); empty uses the built-in table")
	scanCmd.Flags().String("kernel-cves", "", "Kernel CVE table (JSON or YAML); empty uses the built-in table")
	rootCmd.AddCommand(scanCmd)
}
