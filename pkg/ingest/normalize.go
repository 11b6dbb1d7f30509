// Package ingest turns raw upstream blocks into normalized rows and commits them.
package ingest

import (
	"encoding/hex"
	"math/big"
	"sort"

	"github.com/chainsafe/evm-indexer/pkg/decoder"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

// Normalize converts one raw block into its row bundle. Transactions are
// ordered by in-block index and log-derived rows by log index. Every log
// becomes a contract event; logs recognized as token movements also become
// transfers. Decoding is best effort and leaves names unset on failure.
func Normalize(dec *decoder.Decoder, raw *model.RawBlock) *model.BlockBundle {
	bundle := &model.BlockBundle{
		Block: model.Block{
			Number:     raw.Number,
			Hash:       raw.Hash.Hex(),
			ParentHash: raw.ParentHash.Hex(),
			Timestamp:  raw.Timestamp.UTC(),
			TxCount:    len(raw.Transactions),
			GasUsed:    model.DecimalFromBig(bigUint(raw.GasUsed)),
			GasLimit:   model.DecimalFromBig(bigUint(raw.GasLimit)),
			BaseFee:    model.OptionalDecimal(raw.BaseFee),
			Miner:      model.HexAddress(raw.Miner),
		},
	}

	txs := make([]model.RawTransaction, len(raw.Transactions))
	copy(txs, raw.Transactions)
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Index < txs[j].Index })

	for i := range txs {
		rtx := &txs[i]
		tx := normalizeTransaction(dec, bundle.Block, rtx)
		bundle.Transactions = append(bundle.Transactions, tx)

		if rtx.Receipt == nil {
			continue
		}
		logs := make([]model.RawLog, len(rtx.Receipt.Logs))
		copy(logs, rtx.Receipt.Logs)
		sort.SliceStable(logs, func(i, j int) bool { return logs[i].Index < logs[j].Index })

		for j := range logs {
			lg := &logs[j]
			if tr, ok := decoder.ExtractTransfer(lg); ok {
				tr.TxHash = tx.Hash
				tr.LogIndex = lg.Index
				tr.BlockNumber = raw.Number
				tr.Timestamp = bundle.Block.Timestamp
				bundle.Transfers = append(bundle.Transfers, *tr)
			}
			bundle.Events = append(bundle.Events, normalizeEvent(dec, raw.Number, tx.Hash, lg))
		}
	}
	return bundle
}

func normalizeTransaction(dec *decoder.Decoder, blk model.Block, rtx *model.RawTransaction) model.Transaction {
	tx := model.Transaction{
		Hash:                 rtx.Hash.Hex(),
		BlockNumber:          blk.Number,
		Index:                rtx.Index,
		From:                 model.HexAddress(rtx.From),
		Value:                model.DecimalFromBig(rtx.Value),
		GasLimit:             model.DecimalFromBig(bigUint(rtx.Gas)),
		GasPrice:             model.OptionalDecimal(rtx.GasPrice),
		MaxFeePerGas:         model.OptionalDecimal(rtx.GasFeeCap),
		MaxPriorityFeePerGas: model.OptionalDecimal(rtx.GasTipCap),
		Nonce:                rtx.Nonce,
		Type:                 rtx.Type,
		Status:               model.TxStatusPending,
		MethodID:             decoder.MethodID(rtx.Input),
		Timestamp:            blk.Timestamp,
	}
	if rtx.To != nil {
		tx.To = model.HexAddress(*rtx.To)
	}

	if r := rtx.Receipt; r != nil {
		tx.Status = model.TxStatusFailed
		if r.Status == 1 {
			tx.Status = model.TxStatusSuccess
		}
		tx.GasUsed = model.OptionalDecimal(bigUint(r.GasUsed))
		if r.EffectiveGasPrice != nil {
			tx.GasPrice = model.OptionalDecimal(r.EffectiveGasPrice)
		}
		if r.ContractAddress != nil {
			tx.ContractAddress = model.HexAddress(*r.ContractAddress)
		}
	}

	if dec != nil && len(rtx.Input) >= 4 {
		if name, args, ok := dec.DecodeMethod(rtx.Input); ok {
			tx.DecodedMethod = name
			if len(args) > 0 {
				tx.Metadata = map[string]any{"method_args": args}
			}
		}
	}
	return tx
}

func normalizeEvent(dec *decoder.Decoder, number uint64, txHash string, lg *model.RawLog) model.ContractEvent {
	ev := model.ContractEvent{
		TxHash:          txHash,
		LogIndex:        lg.Index,
		BlockNumber:     number,
		ContractAddress: model.HexAddress(lg.Address),
		Topics:          make([]string, len(lg.Topics)),
		Data:            "0x" + hex.EncodeToString(lg.Data),
	}
	for i, topic := range lg.Topics {
		ev.Topics[i] = topic.Hex()
	}
	if dec != nil {
		if name, fields, ok := dec.DecodeEvent(lg.Topics, lg.Data); ok {
			ev.EventName = name
			ev.Decoded = fields
		}
	}
	return ev
}

func bigUint(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}
