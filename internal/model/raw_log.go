package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RawLog is the normalized representation of a contract log as returned by the ledger.
type RawLog struct {
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"tx_hash"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
}

// Topic0 returns the event signature topic, or an empty string for anonymous logs.
func (l RawLog) Topic0() string {
	if len(l.Topics) == 0 {
		return ""
	}
	return l.Topics[0]
}

// Validate rejects records whose identifying fields are malformed.
func (l RawLog) Validate() error {
	if !common.IsHexAddress(l.Address) {
		return fmt.Errorf("invalid log address: %q", l.Address)
	}
	if !isHash(l.TxHash) {
		return fmt.Errorf("invalid tx hash: %q", l.TxHash)
	}
	if !isHash(l.BlockHash) {
		return fmt.Errorf("invalid block hash: %q", l.BlockHash)
	}
	if l.Data != "" {
		if _, err := hexutil.Decode(l.Data); err != nil {
			return fmt.Errorf("invalid log data: %w", err)
		}
	}
	return nil
}

func isHash(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	data, err := hexutil.Decode(s)
	return err == nil && len(data) == common.HashLength
}
