package syncer

import (
	"github.com/teemow/milestonesync/internal/records"
)

// Outcome statuses.
const (
	StatusCreated       = "created"
	StatusAlreadySynced = "already_synced"
	StatusUpdated       = "updated"
	StatusUnchanged     = "unchanged"
	StatusUnlinked      = "unlinked"
	StatusDeleted       = "deleted"
	StatusNotLinked     = "not_linked"
	StatusLocked        = "locked"
	StatusFailed        = "failed"
	StatusDisabled      = "disabled"
)

// Outcome is the result for one (record, flow) pair in a batch.
type Outcome struct {
	RecordID string           `json:"recordId"`
	Flow     records.FlowType `json:"flow"`
	Status   string           `json:"status"`
	EventID  string           `json:"eventId,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func successOutcome(id string, flow records.FlowType, status, eventID string) Outcome {
	return Outcome{RecordID: id, Flow: flow, Status: status, EventID: eventID}
}

func errorOutcome(id string, flow records.FlowType, eventID string, err error) Outcome {
	return Outcome{RecordID: id, Flow: flow, Status: StatusFailed, EventID: eventID, Error: err.Error()}
}

// PushResult is the result of PushFlow and RescheduleFlow.
type PushResult struct {
	RecordID string           `json:"recordId"`
	Flow     records.FlowType `json:"flow"`
	Status   string           `json:"status"`
	EventID  string           `json:"eventId,omitempty"`
	HTMLLink string           `json:"htmlLink,omitempty"`
	Disabled bool             `json:"disabled,omitempty"`
}

// DeleteResult is the result of DeleteFlow.
type DeleteResult struct {
	RecordID string           `json:"recordId"`
	Flow     records.FlowType `json:"flow"`
	Status   string           `json:"status"`
	EventID  string           `json:"eventId,omitempty"`
	// ExternallyDeleted is false when the calendar event was already gone.
	ExternallyDeleted bool `json:"externallyDeleted"`
	Disabled          bool `json:"disabled,omitempty"`
}

// BatchResult aggregates BatchPushPending.
type BatchResult struct {
	RunID    string    `json:"runId,omitempty"`
	Created  int       `json:"created"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
	Disabled bool      `json:"disabled,omitempty"`
	Canceled bool      `json:"canceled,omitempty"`
}

func (r *BatchResult) add(o Outcome) {
	switch o.Status {
	case StatusCreated:
		r.Created++
	case StatusFailed:
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}

// DriftResult aggregates PullDrift.
type DriftResult struct {
	RunID    string    `json:"runId,omitempty"`
	Checked  int       `json:"checked"`
	Updated  int       `json:"updated"`
	Deleted  int       `json:"deleted"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
	Disabled bool      `json:"disabled,omitempty"`
	Canceled bool      `json:"canceled,omitempty"`
}

func (r *DriftResult) add(o Outcome) {
	switch o.Status {
	case StatusUpdated:
		r.Updated++
		r.Checked++
	case StatusUnlinked:
		r.Deleted++
		r.Checked++
	case StatusUnchanged:
		r.Checked++
	case StatusFailed:
		r.Failed++
	}
	r.Outcomes = append(r.Outcomes, o)
}
