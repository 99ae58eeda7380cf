package server

import (
	"time"

	"github.com/teemow/milestonesync/internal/instrumentation"
	"github.com/teemow/milestonesync/internal/reminder"
	"github.com/teemow/milestonesync/internal/syncer"
)

// ScanSummary is the last result of one periodic or manual scan, kept for
// /healthz/detailed and the status tool.
type ScanSummary struct {
	Scan     string         `json:"scan"`
	RunID    string         `json:"runId,omitempty"`
	Trigger  string         `json:"trigger,omitempty"`
	At       time.Time      `json:"at"`
	Counts   map[string]int `json:"counts,omitempty"`
	Disabled bool           `json:"disabled,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func summary(scan, runID string, err error) ScanSummary {
	s := ScanSummary{Scan: scan, RunID: runID, At: time.Now()}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// BatchSummary summarizes a batch push.
func BatchSummary(res syncer.BatchResult, err error) ScanSummary {
	s := summary(instrumentation.ScanBatchPush, res.RunID, err)
	s.Disabled = res.Disabled
	s.Counts = map[string]int{
		"created": res.Created,
		"failed":  res.Failed,
	}
	return s
}

// DriftSummary summarizes a drift pull.
func DriftSummary(res syncer.DriftResult, err error) ScanSummary {
	s := summary(instrumentation.ScanPullDrift, res.RunID, err)
	s.Disabled = res.Disabled
	s.Counts = map[string]int{
		"checked": res.Checked,
		"updated": res.Updated,
		"deleted": res.Deleted,
		"failed":  res.Failed,
	}
	return s
}

// ReminderSummary summarizes a reminder scan.
func ReminderSummary(res reminder.RunResult, err error) ScanSummary {
	s := summary(instrumentation.ScanReminders, res.RunID, err)
	s.Trigger = res.Trigger
	s.Disabled = res.Disabled
	s.Counts = map[string]int{
		"records": res.Records,
		"sent":    res.Sent,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	}
	return s
}
