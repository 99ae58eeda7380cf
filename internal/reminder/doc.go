// Package reminder dispatches chat reminders ahead of each flow's scheduled
// time.
//
// A scan walks every active record. For each flow with a scheduled time it
// computes the whole number of days left (rounded down) and compares it with
// the flow's thresholds. A due threshold without a marker is rendered, handed
// to the notifier and only then marked as sent. The marker write is a
// write-once compare-and-set in the record store, and each record is handled
// under a per-record lock, so overlapping scans from a timer, a manual trigger
// or another replica send a reminder at most once.
package reminder
