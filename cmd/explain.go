package cmd

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/privaudit/pkg/advisor"
	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/observability"
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Discuss a saved report with the AI advisor",
	Long: `Starts a chat session about a JSON report. The advisor can list and read
findings and consult the knowledge base. Use --question for a single answer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reportPath, _ := cmd.Flags().GetString("report")
		if reportPath == "" {
			reportPath = filepath.Join(cfg.Report.Dir, cfg.Report.JSONFile)
		}
		rep, err := engine.LoadSnapshot(reportPath)
		if err != nil {
			return fmt.Errorf("%w (run 'privaudit scan' first)", err)
		}

		providerName := cfg.Advisor.SelectedProvider
		apiKey := cfg.GetAPIKey(providerName)
		if apiKey == "" {
			return fmt.Errorf("no API key for %s, run 'privaudit config setup'", providerName)
		}

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		provider, err := advisor.NewProvider(ctx, providerName, apiKey, cfg.Advisor.SelectedModel)
		if err != nil {
			return fmt.Errorf("creating AI provider: %w", err)
		}
		if closer, ok := provider.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		agent := advisor.NewAgent(provider, observability.GetLogger())
		for _, tool := range advisor.ReportTools(&rep, loadKB()) {
			agent.RegisterTool(tool)
		}
		agent.SetSystemPrompt(advisor.GetSystemPrompt() + "\n\n" + reportContext(rep))

		if question, _ := cmd.Flags().GetString("question"); question != "" {
			resp, err := agent.Chat(ctx, question, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, resp)
			return nil
		}

		scanner := bufio.NewScanner(cmd.InOrStdin())
		fmt.Fprintln(out, "---------------------------------------------------------")
		fmt.Fprintf(out, "Advisor ready (%s, %s). Report: %s\n", providerName, cfg.Advisor.SelectedModel, reportPath)
		fmt.Fprintln(out, "Example: 'Which finding should I fix first?'")
		fmt.Fprintln(out, "Type 'quit' or 'exit' to stop.")
		fmt.Fprintln(out, "---------------------------------------------------------")

		for {
			fmt.Fprint(out, "\n> ")
			if !scanner.Scan() {
				break
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "quit" || input == "exit" {
				break
			}
			if input == "" {
				continue
			}

			fmt.Fprint(out, "Advisor thinking... ")
			resp, err := agent.Chat(ctx, input, func(msg string) {
				fmt.Fprintf(out, "\r\033[K[Progress]: %s\nAdvisor thinking... ", msg)
			})
			fmt.Fprint(out, "\r\033[K")

			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			} else {
				fmt.Fprintf(out, "\n[Advisor]: %s\n", resp)
			}
		}
		return scanner.Err()
	},
}

// reportContext gives the model the headline numbers up front.
func reportContext(rep engine.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report %s from %s on %s (%s, kernel %s), user %s.\n",
		rep.Metadata.ScanID, rep.Metadata.ScanTime.Format("2006-01-02 15:04 MST"),
		rep.System.Hostname, rep.System.OS, rep.System.Kernel, rep.System.User)
	fmt.Fprintf(&b, "%d findings, overall risk %s:", rep.Summary.TotalFindings, rep.Summary.OverallRisk)
	for _, s := range engine.Severities {
		fmt.Fprintf(&b, " %s=%d", s, rep.Count(s))
	}
	b.WriteString(".\n")
	return b.String()
}

func init() {
	explainCmd.Flags().String("report", "", "JSON report to discuss (default <report dir>/report.json)")
	explainCmd.Flags().StringP("question", "q", "", "Ask one question and exit")
	rootCmd.AddCommand(explainCmd)
}
