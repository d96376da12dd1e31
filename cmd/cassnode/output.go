package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cuemby/cassnode/pkg/events"
	"github.com/cuemby/cassnode/pkg/types"
	"github.com/fatih/color"
)

var (
	green   = color.New(color.FgGreen).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	red     = color.New(color.FgRed).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
	bold    = color.New(color.Bold).SprintFunc()
)

// printEvent prints live progress for the events worth a line
func printEvent(event *events.Event) {
	switch event.Type {
	case events.EventArtifactChanged:
		fmt.Printf("%s %s %s\n", yellow("~"), event.ArtifactID, faint(event.Message))
	case events.EventArtifactFailed:
		fmt.Printf("%s %s\n", red("✗"), event.ArtifactID)
	case events.EventArtifactSkipped:
		fmt.Printf("%s %s %s\n", magenta("-"), event.ArtifactID, faint(event.Message))
	case events.EventServiceRefreshed:
		fmt.Printf("%s %s restarted\n", yellow("↻"), event.ArtifactID)
	case events.EventGuardProbeFailed:
		fmt.Printf("%s %s %s\n", yellow("?"), event.ArtifactID, faint(event.Message))
	}
}

func outcomeLabel(outcome types.Outcome, dryRun bool) string {
	switch outcome {
	case types.OutcomeChanged:
		if dryRun {
			return yellow("would change")
		}
		return yellow("changed")
	case types.OutcomeFailed:
		return red("failed")
	case types.OutcomeSkipped:
		return magenta("skipped")
	default:
		return green("unchanged")
	}
}

// printReport prints a summary of a run. Unchanged artifacts are counted but
// not listed.
func printReport(w io.Writer, report *types.Report, diff, dryRun bool) {
	for _, res := range report.Results {
		if res.Outcome == types.OutcomeUnchanged {
			continue
		}
		gate := ""
		if !res.Mandatory {
			gate = faint(" [" + string(res.Feature) + "]")
		}
		fmt.Fprintf(w, "  %-14s %s%s\n", outcomeLabel(res.Outcome, dryRun), res.ID, gate)
		if len(res.Actions) > 0 {
			fmt.Fprintf(w, "      %s\n", faint(strings.Join(res.Actions, ", ")))
		}
		if res.GuardProbe != "" {
			fmt.Fprintf(w, "      %s %s\n", yellow("guard:"), res.GuardProbe)
		}
		if res.Error != "" {
			fmt.Fprintf(w, "      %s\n", red(res.Error))
		}
		if diff && res.Diff != "" {
			for _, line := range strings.SplitAfter(res.Diff, "\n") {
				switch {
				case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
					fmt.Fprint(w, "      "+bold(line))
				case strings.HasPrefix(line, "+"):
					fmt.Fprint(w, "      "+green(line))
				case strings.HasPrefix(line, "-"):
					fmt.Fprint(w, "      "+red(line))
				case line != "":
					fmt.Fprint(w, "      "+line)
				}
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run %s: %d changed, %d unchanged, %d failed, %d skipped (%s)\n",
		report.RunID,
		report.Count(types.OutcomeChanged),
		report.Count(types.OutcomeUnchanged),
		report.Count(types.OutcomeFailed),
		report.Count(types.OutcomeSkipped),
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)
	switch {
	case !report.Success():
		fmt.Fprintln(w, red("✗ Node did not converge"))
	case dryRun && !report.Converged():
		fmt.Fprintln(w, yellow("~ Node would change"))
	case report.Converged():
		fmt.Fprintln(w, green("✓ Node already converged"))
	default:
		fmt.Fprintln(w, green("✓ Node converged"))
	}
}
