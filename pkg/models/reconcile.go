package models

// ReconcileAction is what the engine did for one record.
type ReconcileAction string

const (
	ActionCreated ReconcileAction = "created"
	ActionUpdated ReconcileAction = "updated"
	ActionNoop    ReconcileAction = "noop"
	ActionDeleted ReconcileAction = "deleted"
)

// ReconcileResult reports the outcome of reconciling one record.
type ReconcileResult struct {
	Kind              CandidateKind   `json:"kind"`
	Action            ReconcileAction `json:"action"`
	EventID           string          `json:"event_id,omitempty"`
	ClientID          *int64          `json:"client_id,omitempty"`
	CalendarWritten   bool            `json:"calendar_written"`
	RelationalWritten bool            `json:"relational_written"`
	Adopted           bool            `json:"adopted,omitempty"` // matched an un-mirrored calendar entry
}

// LocalSyncResult reports the outcome of pushing one local row to the calendar.
type LocalSyncResult struct {
	Summary    string `json:"summary"`
	Status     string `json:"status"` // synced | already_synced | sync_failed
	OldEventID string `json:"old_event_id,omitempty"`
	NewEventID string `json:"new_event_id,omitempty"`
	Error      string `json:"error,omitempty"`
}
