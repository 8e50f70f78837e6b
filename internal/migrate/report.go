package migrate

import (
	"fmt"
	"io"
	"time"

	"github.com/propertybuilder/propsync/internal/ui"
)

const (
	summaryTitleConstant            = "Migration run summary"
	summaryEmptyMessageConstant     = "no migration units were run"
	summaryOutcomeTemplateConstant  = "%s [%s] %s"
	summaryReasonTemplateConstant   = "%s [%s]: %s"
	summaryTotalsTemplateConstant   = "%d succeeded, %d failed, %d skipped in %s"
	summaryDurationRoundingConstant = 10 * time.Millisecond
	outcomeStatusSuccessConstant    = "success"
	outcomeStatusFailureConstant    = "failure"
	outcomeStatusSkippedConstant    = "skipped"
	phaseDirectoryConstant          = "directory"
	phaseRootConstant               = "root"
)

// OutcomeStatus classifies the result of one unit.
type OutcomeStatus string

// Unit outcome statuses.
const (
	OutcomeSuccess OutcomeStatus = OutcomeStatus(outcomeStatusSuccessConstant)
	OutcomeFailure OutcomeStatus = OutcomeStatus(outcomeStatusFailureConstant)
	OutcomeSkipped OutcomeStatus = OutcomeStatus(outcomeStatusSkippedConstant)
)

// Phase identifies which unit set an outcome belongs to.
type Phase string

// Run phases.
const (
	PhaseDirectory Phase = Phase(phaseDirectoryConstant)
	PhaseRoot      Phase = Phase(phaseRootConstant)
)

// UnitOutcome records what happened to one unit. Reason is empty for successes.
type UnitOutcome struct {
	Name     string
	Phase    Phase
	Status   OutcomeStatus
	Reason   string
	Duration time.Duration
}

// RunReport aggregates unit outcomes in execution order.
type RunReport struct {
	Outcomes   []UnitOutcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded returns the outcomes of units that exited with code zero.
func (report RunReport) Succeeded() []UnitOutcome {
	return report.filter(OutcomeSuccess)
}

// Failed returns the outcomes of units that exited non-zero, timed out, or could not start.
func (report RunReport) Failed() []UnitOutcome {
	return report.filter(OutcomeFailure)
}

// Skipped returns the outcomes of units that were not run because the run was cancelled.
func (report RunReport) Skipped() []UnitOutcome {
	return report.filter(OutcomeSkipped)
}

// Duration reports the wall-clock time covered by the report.
func (report RunReport) Duration() time.Duration {
	if report.StartedAt.IsZero() || report.FinishedAt.Before(report.StartedAt) {
		return 0
	}
	return report.FinishedAt.Sub(report.StartedAt)
}

// Append returns a report covering both runs.
func (report RunReport) Append(other RunReport) RunReport {
	combined := RunReport{
		Outcomes:   append(append([]UnitOutcome{}, report.Outcomes...), other.Outcomes...),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if combined.StartedAt.IsZero() || (!other.StartedAt.IsZero() && other.StartedAt.Before(combined.StartedAt)) {
		combined.StartedAt = other.StartedAt
	}
	if other.FinishedAt.After(combined.FinishedAt) {
		combined.FinishedAt = other.FinishedAt
	}
	return combined
}

func (report RunReport) filter(status OutcomeStatus) []UnitOutcome {
	var matching []UnitOutcome
	for _, outcome := range report.Outcomes {
		if outcome.Status == status {
			matching = append(matching, outcome)
		}
	}
	return matching
}

// ReportPrinter renders a RunReport as a framed console summary.
type ReportPrinter struct {
	banner *ui.Banner
}

// NewReportPrinter constructs a printer writing to writer.
func NewReportPrinter(writer io.Writer, colorEnabled bool) *ReportPrinter {
	return &ReportPrinter{banner: ui.NewBanner(writer, colorEnabled)}
}

// Print writes one line per outcome followed by the totals.
func (printer *ReportPrinter) Print(report RunReport) {
	printer.banner.Title(summaryTitleConstant)
	if len(report.Outcomes) == 0 {
		printer.banner.Line(ui.LineStatusNeutral, summaryEmptyMessageConstant)
	}
	for _, outcome := range report.Outcomes {
		printer.banner.Line(lineStatus(outcome.Status), describeOutcome(outcome))
	}
	printer.banner.Rule()
	printer.banner.Line(ui.LineStatusNeutral, fmt.Sprintf(
		summaryTotalsTemplateConstant,
		len(report.Succeeded()),
		len(report.Failed()),
		len(report.Skipped()),
		report.Duration().Round(summaryDurationRoundingConstant),
	))
}

func describeOutcome(outcome UnitOutcome) string {
	if len(outcome.Reason) == 0 {
		return fmt.Sprintf(summaryOutcomeTemplateConstant, outcome.Name, outcome.Phase, outcome.Duration.Round(summaryDurationRoundingConstant))
	}
	return fmt.Sprintf(summaryReasonTemplateConstant, outcome.Name, outcome.Phase, outcome.Reason)
}

func lineStatus(status OutcomeStatus) ui.LineStatus {
	switch status {
	case OutcomeSuccess:
		return ui.LineStatusSuccess
	case OutcomeFailure:
		return ui.LineStatusFailure
	case OutcomeSkipped:
		return ui.LineStatusSkipped
	default:
		return ui.LineStatusNeutral
	}
}
