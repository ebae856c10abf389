package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"txTracker/internal/model"
)

// rpcTransaction is the subset of eth_getTransactionByHash the tracker stores.
type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	BlockHash   *common.Hash    `json:"blockHash"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Input       hexutil.Bytes   `json:"input"`
	Value       *hexutil.Big    `json:"value"`
	GasPrice    *hexutil.Big    `json:"gasPrice"`
	Gas         hexutil.Uint64  `json:"gas"`
	Nonce       hexutil.Uint64  `json:"nonce"`
}

func (tx *rpcTransaction) toDetail() (model.TxDetail, error) {
	if tx.BlockHash == nil || tx.BlockNumber == nil {
		return model.TxDetail{}, fmt.Errorf("%s: %w", tx.Hash.Hex(), ErrPendingTransaction)
	}
	if tx.Value == nil {
		return model.TxDetail{}, fmt.Errorf("%s: missing value", tx.Hash.Hex())
	}
	if !tx.BlockNumber.ToInt().IsUint64() {
		return model.TxDetail{}, fmt.Errorf("%s: block number out of range", tx.Hash.Hex())
	}

	detail := model.TxDetail{
		Hash:        tx.Hash.Hex(),
		BlockHash:   tx.BlockHash.Hex(),
		BlockNumber: tx.BlockNumber.ToInt().Uint64(),
		From:        tx.From.Hex(),
		Data:        hexutil.Encode(tx.Input),
		Value:       tx.Value.ToInt(),
		GasLimit:    uint64(tx.Gas),
		Nonce:       uint64(tx.Nonce),
	}
	if tx.GasPrice != nil {
		detail.GasPrice = tx.GasPrice.ToInt()
	}
	if tx.To != nil {
		to := tx.To.Hex()
		detail.To = &to
	}
	return detail, nil
}
