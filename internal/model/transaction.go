package model

import "math/big"

// NoRecipient is stored as the recipient of contract-creation transactions.
const NoRecipient = "0x"

// TxDetail is the ledger's view of a transaction.
type TxDetail struct {
	Hash        string
	BlockHash   string
	BlockNumber uint64
	From        string
	To          *string
	Data        string
	Value       *big.Int
	GasPrice    *big.Int
	GasLimit    uint64
	Nonce       uint64
}

// Transaction is a ledger transaction that produced at least one ingested event.
// Value, GasPrice and GasLimit are hex strings to keep full precision.
type Transaction struct {
	Hash        string  `json:"hash"`
	BlockHash   string  `json:"blockHash"`
	BlockNumber uint64  `json:"blockNumber"`
	To          string  `json:"to"`
	Data        string  `json:"data"`
	From        string  `json:"from"`
	GasLimit    string  `json:"gasLimit"`
	GasPrice    string  `json:"gasPrice"`
	Nonce       uint64  `json:"nonce"`
	Value       string  `json:"value"`
	Events      []Event `json:"events"`
}
