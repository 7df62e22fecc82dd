// Package tracker collects the per-unit results of a run so failures that were
// logged and skipped can still be summarized and counted at the end.
package tracker

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"autophish/models"
)

type Tracker struct {
	logger   *zap.Logger
	outcomes []models.DispatchOutcome
	skipped  []string
	errs     error
}

func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{logger: logger}
}

// RecordDispatch stores a dispatch outcome; failed outcomes count as errors.
func (t *Tracker) RecordDispatch(o models.DispatchOutcome) {
	t.outcomes = append(t.outcomes, o)
	if !o.Succeeded() {
		err := o.Err
		if err == nil {
			err = fmt.Errorf("dispatch failed")
		}
		t.errs = multierr.Append(t.errs, fmt.Errorf("template %q via %q: %w", o.Template, o.Profile, err))
	}
}

// RecordFailure stores a failure of a unit that is not a dispatch, such as a
// template file or a resource reconciliation.
func (t *Tracker) RecordFailure(unit string, err error) {
	t.logger.Error("Unit failed", zap.String("unit", unit), zap.Error(err))
	t.errs = multierr.Append(t.errs, fmt.Errorf("%s: %w", unit, err))
}

// RecordSkip notes a unit that was deliberately not processed.
func (t *Tracker) RecordSkip(unit, reason string) {
	t.logger.Warn("Unit skipped", zap.String("unit", unit), zap.String("reason", reason))
	t.skipped = append(t.skipped, unit)
}

func (t *Tracker) Outcomes() []models.DispatchOutcome {
	return t.outcomes
}

func (t *Tracker) Skipped() []string {
	return t.skipped
}

// Err combines every recorded failure, or nil.
func (t *Tracker) Err() error {
	return t.errs
}

func (t *Tracker) FailureCount() int {
	return len(multierr.Errors(t.errs))
}

func (t *Tracker) SentCount() int {
	n := 0
	for _, o := range t.outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// WriteSummary renders the dispatch outcomes as a table.
func (t *Tracker) WriteSummary(w io.Writer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Template", "Profile", "Campaign", "Status", "Notified", "Error"})
	for _, o := range t.outcomes {
		campaign := "-"
		if o.CampaignID != 0 {
			campaign = strconv.FormatInt(o.CampaignID, 10)
		}
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		tw.AppendRow(table.Row{o.Template, o.Profile, campaign, statusText(o.Status), o.Notified, errText})
	}
	tw.AppendFooter(table.Row{"", "", "", "sent", t.SentCount(), fmt.Sprintf("%d failures, %d skipped", t.FailureCount(), len(t.skipped))})
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Footer = text.FormatDefault
	tw.Render()
}

func statusText(s models.DispatchStatus) string {
	switch s {
	case models.DispatchSent:
		return color.GreenString(string(s))
	case models.DispatchFailed:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}
