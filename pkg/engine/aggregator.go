package engine

import (
	"fmt"
	"slices"
)

// Aggregate folds scanner results into an immutable Report.
//
// Results are merged in AggregationOrder regardless of the order they are
// passed in; results from scanners outside that order follow in the order
// given. Each finding receives a sequential FND-NNN id and is counted in the
// severity breakdown. A report is always produced, even with no results.
func Aggregate(meta ScanMetadata, host HostSnapshot, results ...ScanResult) Report {
	ordered := orderResults(results)

	breakdown := make(map[string]int, len(Severities))
	for _, s := range Severities {
		breakdown[s.String()] = 0
	}

	findings := make([]Finding, 0)
	scanners := make([]ScannerSummary, 0, len(ordered))
	overall := SeverityLow
	fid := 1

	for _, res := range ordered {
		summary := ScannerSummary{Name: res.Scanner, Findings: len(res.Findings)}
		if res.Err != nil {
			summary.Error = res.Err.Error()
		}
		scanners = append(scanners, summary)

		for _, f := range res.Findings {
			f.ID = fmt.Sprintf("FND-%03d", fid)
			fid++
			if f.Source == "" {
				f.Source = res.Scanner
			}
			if f.References != nil {
				f.References = slices.Clone(f.References)
			}
			breakdown[f.Severity.String()]++
			if f.Severity > overall {
				overall = f.Severity
			}
			findings = append(findings, f)
		}
	}

	return Report{
		Metadata: meta,
		System:   host,
		Summary: Summary{
			TotalFindings:     len(findings),
			SeverityBreakdown: breakdown,
			OverallRisk:       overall,
		},
		Scanners: scanners,
		Findings: findings,
	}
}

// orderResults sorts results into aggregation order without touching the input.
func orderResults(results []ScanResult) []ScanResult {
	rank := make(map[string]int, len(AggregationOrder))
	for i, name := range AggregationOrder {
		rank[name] = i
	}

	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, func(a, b ScanResult) int {
		ra, okA := rank[a.Scanner]
		rb, okB := rank[b.Scanner]
		switch {
		case okA && okB:
			return ra - rb
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
	return ordered
}
