package model

import "time"

// CycleReport summarizes one ingestion pass.
type CycleReport struct {
	From    uint64 `json:"from"`
	To      uint64 `json:"to"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`

	Logs          int `json:"logs"`
	UnknownEvents int `json:"unknown_events"`
	LockedEvents  int `json:"locked_events"`

	EventsInserted  int `json:"events_inserted"`
	EventsDuplicate int `json:"events_duplicate"`
	EventsFailed    int `json:"events_failed"`

	TransactionsSaved  int `json:"transactions_saved"`
	TransactionsFailed int `json:"transactions_failed"`

	CursorBefore uint64        `json:"cursor_before"`
	CursorAfter  uint64        `json:"cursor_after"`
	Quarantined  bool          `json:"quarantined"`
	Duration     time.Duration `json:"duration"`
}

// Failed reports whether any item of the cycle failed to persist.
func (r CycleReport) Failed() bool {
	return r.EventsFailed > 0 || r.TransactionsFailed > 0
}
