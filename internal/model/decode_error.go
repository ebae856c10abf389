package model

// Decode stages reported in DecodeError.Stage.
const (
	StageParse    = "parse"
	StageValidate = "validate"
	StageDecode   = "decode"
)

// DecodeError is one line of the offline decode error file. Line is the
// 1-based input line; the log fields are empty when the line did not parse.
type DecodeError struct {
	Line        int    `json:"line"`
	Stage       string `json:"stage"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index,omitempty"`
	Address     string `json:"address,omitempty"`
	Topic0      string `json:"topic0,omitempty"`
	Error       string `json:"error"`
}
