package model

// CursorState is the persisted high-water mark plus the bookkeeping used to detect a
// window that keeps failing.
type CursorState struct {
	LastProcessedBlock uint64 `json:"last_processed_block"`
	FailedFrom         uint64 `json:"failed_from,omitempty"`
	FailedTo           uint64 `json:"failed_to,omitempty"`
	Failures           int    `json:"failures,omitempty"`
	UpdatedAt          string `json:"updated_at,omitempty"`
}

// FailuresFor returns the consecutive failure count recorded for [from, to].
func (s CursorState) FailuresFor(from, to uint64) int {
	if s.Failures == 0 || s.FailedFrom != from || s.FailedTo != to {
		return 0
	}
	return s.Failures
}

// QuarantineRecord describes a window that was skipped after repeated failures.
type QuarantineRecord struct {
	From          uint64 `json:"from"`
	To            uint64 `json:"to"`
	Failures      int    `json:"failures"`
	LastError     string `json:"last_error"`
	QuarantinedAt string `json:"quarantined_at"`
}
