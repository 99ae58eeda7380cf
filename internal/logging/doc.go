// Package logging holds the slog helpers shared by milestonesync packages.
//
// Attribute constructors keep key names consistent (flow, threshold,
// event_id, run_id) so a scan can be followed through the logs by its run id:
//
//	logger := logging.WithRun(logging.WithComponent(slog.Default(), "reminder"), runID)
//	logger.Info("reminder dispatched",
//	    logging.RecordHash(record.ID),
//	    logging.Threshold("eventDay:7"),
//	    logging.Status(logging.StatusSuccess))
//
// Record ids are chat addresses. Log them through RecordHash or
// AnonymizeRecipient, never verbatim. OAuth tokens go through SanitizeToken.
package logging
