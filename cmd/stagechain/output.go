package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/glimte/stagechain"
	"github.com/glimte/stagechain/internal/journal"
	"github.com/glimte/stagechain/metrics"
)

// Colors
var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	acceptedStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	rejectedStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)

func printResult(w io.Writer, result *stagechain.Result, err error) {
	if result == nil {
		fmt.Fprintf(w, "%s %v\n", failedStyle.Render("FAILED"), err)
		return
	}

	meta := mutedStyle.Render(fmt.Sprintf("run %s, %s, %d attempt(s), %s",
		result.RunID, result.Strategy, result.Attempts, result.Duration))

	switch {
	case err != nil:
		fmt.Fprintf(w, "%s %v\n", failedStyle.Render("FAILED"), err)
	case result.Rejection != nil:
		fmt.Fprintf(w, "%s by stage %d (%s)", rejectedStyle.Render("REJECTED"),
			result.Rejection.Index, result.Rejection.Stage)
		if result.Rejection.Reason != "" {
			fmt.Fprintf(w, ": %s", result.Rejection.Reason)
		}
		fmt.Fprintln(w)
	default:
		fmt.Fprintln(w, acceptedStyle.Render("ACCEPTED"))
	}

	for _, fragment := range result.Fragments {
		fmt.Fprintf(w, "  %s\n", fragment)
	}
	fmt.Fprintln(w, meta)
}

func printSummary(w io.Writer, summary metrics.Summary) {
	fmt.Fprintln(w, titleStyle.Render("Metrics"))
	if len(summary.Runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No runs recorded"))
		return
	}

	fmt.Fprintf(w, "%-20s %-8s %-8s %-12s %-12s %-12s\n", "Pipeline", "Runs", "Errors", "Rejections", "Avg", "P95")
	fmt.Fprintln(w, strings.Repeat("-", 76))

	names := make([]string, 0, len(summary.Runs))
	for name := range summary.Runs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		timing := summary.Timings[name]
		fmt.Fprintf(w, "%-20s %-8d %-8d %-12d %-12s %-12s\n",
			truncate(name, 20),
			summary.Runs[name],
			sum(summary.Errors[name]),
			sum(summary.Rejections[name]),
			timing.Avg,
			timing.P95,
		)
	}
}

func printHistory(w io.Writer, entries []*journal.Entry) {
	fmt.Fprintln(w, titleStyle.Render("History"))
	if len(entries) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No runs recorded"))
		return
	}

	for _, e := range entries {
		var outcome string
		switch e.Outcome {
		case journal.OutcomeAccepted:
			outcome = acceptedStyle.Render(string(e.Outcome))
		case journal.OutcomeRejected:
			outcome = rejectedStyle.Render(string(e.Outcome))
		default:
			outcome = failedStyle.Render(string(e.Outcome))
		}

		fmt.Fprintf(w, "%s %-14s %-13s %s %s\n",
			e.Timestamp.Format("15:04:05"),
			truncate(e.Pipeline, 14),
			e.Strategy,
			outcome,
			mutedStyle.Render(truncate(e.Request, 40)),
		)
	}
}

func sum(counts map[string]int64) int64 {
	var total int64
	for _, n := range counts {
		total += n
	}
	return total
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
