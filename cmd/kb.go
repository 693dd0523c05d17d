package cmd

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/privaudit/pkg/knowledge"
	"github.com/user/privaudit/pkg/observability"
	"github.com/user/privaudit/pkg/scanners"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect the exploit knowledge base",
}

func loadKB() *knowledge.Base {
	kb, err := knowledge.Load(cfg.Knowledge.GTFOBins, cfg.Knowledge.KernelCVEs)
	if err != nil {
		observability.GetLogger().Warn("knowledge base incomplete", zap.Error(err))
	}
	return kb
}

var kbListCmd = &cobra.Command{
	Use:       "list [gtfobins|kernels]",
	Short:     "List knowledge base entries",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"gtfobins", "kernels"},
	Run: func(cmd *cobra.Command, args []string) {
		kb := loadKB()
		which := ""
		if len(args) > 0 {
			which = args[0]
		}
		out := cmd.OutOrStdout()

		if which == "" || which == "gtfobins" {
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Binary", "Technique"})
			table.SetColWidth(80)
			for _, b := range kb.Binaries() {
				technique, _ := kb.Technique(b)
				table.Append([]string{b, technique})
			}
			table.Render()
		}
		if which == "" || which == "kernels" {
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Kernel", "Risk", "CVEs"})
			for _, k := range kb.KernelVersions() {
				entry, _ := kb.Kernel(k)
				table.Append([]string{k, entry.Risk, strings.Join(entry.CVEs, ", ")})
			}
			table.Render()
		}
	},
}

var kbLookupCmd = &cobra.Command{
	Use:   "lookup <binary|kernel-release>",
	Short: "Look up a binary name or kernel release",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kb := loadKB()
		out := cmd.OutOrStdout()
		if technique, ok := kb.Technique(args[0]); ok {
			fmt.Fprintf(out, "%s: %s\n", args[0], technique)
			return
		}
		mm := scanners.MajorMinor(args[0])
		if entry, ok := kb.Kernel(mm); ok {
			fmt.Fprintf(out, "kernel %s [%s]: %s\n  %s\n", mm, entry.Risk, strings.Join(entry.CVEs, ", "), entry.Note)
			return
		}
		fmt.Fprintf(out, "No entry for %s\n", args[0])
	},
}

func init() {
	kbCmd.PersistentFlags().String("gtfobins", "", "GTFOBins table (JSON or YAML); empty uses the built-in table")
	kbCmd.PersistentFlags().String("kernel-cves", "", "Kernel CVE table (JSON or YAML); empty uses the built-in table")
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbLookupCmd)
	rootCmd.AddCommand(kbCmd)
}
