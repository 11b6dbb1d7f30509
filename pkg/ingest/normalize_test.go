package ingest

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/evm-indexer/pkg/decoder"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

var (
	sender   = common.HexToAddress("0x0000000000000000000000000000000000000AAA")
	receiver = common.HexToAddress("0x0000000000000000000000000000000000000BBB")
	tokenCA  = common.HexToAddress("0x0000000000000000000000000000000000000CCC")
)

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}

func transferLog(index uint, amount int64) model.RawLog {
	return model.RawLog{
		Index:   index,
		Address: tokenCA,
		Topics:  []common.Hash{decoder.TopicTransfer, addrTopic(sender), addrTopic(receiver)},
		Data:    common.LeftPadBytes(big.NewInt(amount).Bytes(), 32),
	}
}

func rawBlock(number uint64, hash, parent common.Hash, txs ...model.RawTransaction) *model.RawBlock {
	return &model.RawBlock{
		Number:       number,
		Hash:         hash,
		ParentHash:   parent,
		Timestamp:    time.Unix(1_700_000_000+int64(number)*12, 0),
		GasUsed:      21_000,
		GasLimit:     30_000_000,
		BaseFee:      big.NewInt(7),
		Miner:        common.HexToAddress("0x01"),
		Transactions: txs,
	}
}

func rawTx(index uint, hash common.Hash, receipt *model.RawReceipt) model.RawTransaction {
	to := receiver
	return model.RawTransaction{
		Hash:     hash,
		Index:    index,
		From:     sender,
		To:       &to,
		Value:    big.NewInt(1),
		Gas:      50_000,
		GasPrice: big.NewInt(10),
		Nonce:    uint64(index),
		Type:     2,
		Input:    append(crypto.Keccak256([]byte("transfer(address,uint256)"))[:4:4], make([]byte, 64)...),
		Receipt:  receipt,
	}
}

func TestNormalize_OrderingAndTransfers(t *testing.T) {
	dec, err := decoder.New()
	require.NoError(t, err)

	receipt := &model.RawReceipt{
		Status:            1,
		GasUsed:           40_000,
		EffectiveGasPrice: big.NewInt(9),
		Logs: []model.RawLog{
			transferLog(5, 300),
			{Index: 2, Address: tokenCA, Topics: []common.Hash{common.HexToHash("0xfeed")}, Data: []byte{0x01}},
			transferLog(3, 100),
		},
	}
	raw := rawBlock(100, common.HexToHash("0x100"), common.HexToHash("0x99"),
		rawTx(1, common.HexToHash("0xb1"), nil),
		rawTx(0, common.HexToHash("0xa0"), receipt),
	)

	b := Normalize(dec, raw)

	assert.Equal(t, uint64(100), b.Block.Number)
	assert.Equal(t, 2, b.Block.TxCount)
	require.Len(t, b.Transactions, 2)
	assert.Equal(t, uint(0), b.Transactions[0].Index)
	assert.Equal(t, uint(1), b.Transactions[1].Index)

	first := b.Transactions[0]
	assert.Equal(t, model.TxStatusSuccess, first.Status)
	assert.Equal(t, "9", first.GasPrice.String(), "effective gas price wins")
	assert.Equal(t, "40000", first.GasUsed.String())
	assert.Equal(t, "0x0000000000000000000000000000000000000aaa", first.From)
	assert.Equal(t, "0xa9059cbb", first.MethodID)
	assert.Equal(t, "transfer", first.DecodedMethod)

	second := b.Transactions[1]
	assert.Equal(t, model.TxStatusPending, second.Status)
	assert.Nil(t, second.GasUsed)

	require.Len(t, b.Events, 3)
	assert.Equal(t, []uint{2, 3, 5}, []uint{b.Events[0].LogIndex, b.Events[1].LogIndex, b.Events[2].LogIndex})
	assert.Empty(t, b.Events[0].EventName)
	assert.Equal(t, "Transfer", b.Events[1].EventName)

	require.Len(t, b.Transfers, 2)
	assert.Equal(t, uint(3), b.Transfers[0].LogIndex)
	assert.Equal(t, "100", b.Transfers[0].Amount.String())
	assert.Equal(t, first.Hash, b.Transfers[0].TxHash)
	assert.Equal(t, uint(5), b.Transfers[1].LogIndex)
}

func TestNormalize_FailedAndContractCreation(t *testing.T) {
	created := common.HexToAddress("0x0000000000000000000000000000000000000DDD")
	tx := rawTx(0, common.HexToHash("0xc0"), &model.RawReceipt{Status: 0, GasUsed: 50_000, ContractAddress: &created})
	tx.To = nil
	tx.Input = []byte{0x60, 0x80}

	b := Normalize(nil, rawBlock(7, common.HexToHash("0x7"), common.HexToHash("0x6"), tx))

	require.Len(t, b.Transactions, 1)
	got := b.Transactions[0]
	assert.Equal(t, model.TxStatusFailed, got.Status)
	assert.Empty(t, got.To)
	assert.Equal(t, "0x0000000000000000000000000000000000000ddd", got.ContractAddress)
	assert.Empty(t, got.MethodID)
	assert.Empty(t, got.DecodedMethod)
	assert.Equal(t, []string{"0x0000000000000000000000000000000000000aaa", "0x0000000000000000000000000000000000000ddd"}, got.Addresses())
}

func TestNormalize_EmptyBlock(t *testing.T) {
	b := Normalize(nil, rawBlock(1, common.HexToHash("0x1"), common.HexToHash("0x0")))
	assert.True(t, b.Empty())
	assert.Equal(t, "7", b.Block.BaseFee.String())
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000001", b.Block.Hash)
}
