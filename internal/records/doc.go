// Package records holds the client record model shared by the synchronization
// and reminder components, and the stores that persist it.
//
// A ClientRecord carries one FlowState per milestone flow (meeting, ticket sale,
// event day) and a write-once set of reminder markers. Stores expose exactly the
// operations the rest of the system needs: GetOrCreate, Update, ListActive and
// the atomic marker write RecordReminder.
package records
