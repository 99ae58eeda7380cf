// Package syncer keeps the three milestone flows of each client record in step
// with the external calendar.
//
// Push creates an event for a flow that has a scheduled time but no external
// event, and stores the returned event id together with the scheduled time in
// one record update. Pull checks every linked flow against the calendar: a
// deleted event clears the local id so the flow can be pushed again, and a
// moved event overwrites the local scheduled time. Once an event exists, the
// calendar wins.
//
// Batch operations isolate failures per record and flow. One failing record is
// reported in the result and never stops the scan.
package syncer
