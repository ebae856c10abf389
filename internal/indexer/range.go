package indexer

import (
	"fmt"
	"math"
)

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange splits a block range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0)
	start := from
	for start <= to {
		remaining := to - start + 1
		var end uint64
		if remaining <= batchSize {
			end = to
		} else {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}

// SelectWindow computes the next block window to scan. Without a cursor the window
// starts at genesis, otherwise right after the cursor. The window never extends past
// head and never spans more than window blocks. ok is false when there is nothing to scan.
func SelectWindow(cursor uint64, hasCursor bool, genesis, head, window uint64) (BlockRange, bool) {
	if window == 0 {
		return BlockRange{}, false
	}

	from := genesis
	if hasCursor {
		if cursor == math.MaxUint64 {
			return BlockRange{}, false
		}
		from = cursor + 1
	}
	if from > head {
		return BlockRange{}, false
	}

	to := head
	if head-from >= window {
		to = from + window - 1
	}
	return BlockRange{From: from, To: to}, true
}
