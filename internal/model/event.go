package model

// EventParamCount is the number of positional parameters kept per event.
const EventParamCount = 4

const (
	// UnknownEventName names logs that match no known event schema.
	UnknownEventName = "Unknown event"
	// UnknownParam fills every positional parameter of an unknown event.
	UnknownParam = "0x"
	// TransferEventName is the only event shape considered by lock classification.
	TransferEventName = "Transfer"
	// BurnAddress is the zero address used as the token burn sentinel.
	BurnAddress = "0x0000000000000000000000000000000000000000"
)

// Decoded is a log decoded against a contract schema.
type Decoded struct {
	Name   string
	Values [EventParamCount]*string
}

// UnknownDecoded returns the placeholder record for logs that cannot be decoded.
func UnknownDecoded() Decoded {
	var d Decoded
	d.Name = UnknownEventName
	for i := range d.Values {
		v := UnknownParam
		d.Values[i] = &v
	}
	return d
}

// Event is one decoded log occurrence.
type Event struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Hash        string  `json:"hash"`
	P0          *string `json:"p0"`
	P1          *string `json:"p1"`
	P2          *string `json:"p2"`
	P3          *string `json:"p3"`
	Timestamp   uint64  `json:"timestamp"`
	BlockNumber uint64  `json:"blockNumber"`
	IsLock      *bool   `json:"isLock"`
	Address     string  `json:"address"`
	LogIndex    uint64  `json:"logIndex"`

	// BlockHash is only needed to resolve Timestamp during ingestion.
	BlockHash string `json:"-"`
}

// NewEvent pairs a decoded record with the metadata of the log it came from.
func NewEvent(log RawLog, decoded Decoded) Event {
	return Event{
		Name:        decoded.Name,
		Hash:        log.TxHash,
		P0:          decoded.Values[0],
		P1:          decoded.Values[1],
		P2:          decoded.Values[2],
		P3:          decoded.Values[3],
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		Address:     log.Address,
		LogIndex:    log.LogIndex,
	}
}

// Param returns the positional parameter i, or nil when absent.
func (e Event) Param(i int) *string {
	switch i {
	case 0:
		return e.P0
	case 1:
		return e.P1
	case 2:
		return e.P2
	case 3:
		return e.P3
	default:
		return nil
	}
}

// Locked reports whether the event was classified as a locked transfer.
func (e Event) Locked() bool {
	return e.IsLock != nil && *e.IsLock
}
