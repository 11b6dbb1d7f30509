// Package model holds the domain types shared by the indexer components.
package model

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TxStatus is the execution outcome of a transaction.
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
	TxStatusPending TxStatus = "pending"
)

// TokenStandard identifies the token interface a transfer was decoded from.
type TokenStandard string

const (
	StandardERC20   TokenStandard = "erc20"
	StandardERC721  TokenStandard = "erc721"
	StandardERC1155 TokenStandard = "erc1155"
)

// RawBlock is a block as delivered by the upstream source, before normalization.
type RawBlock struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	Timestamp    time.Time
	GasUsed      uint64
	GasLimit     uint64
	BaseFee      *big.Int
	Miner        common.Address
	Transactions []RawTransaction
}

// RawTransaction is a transaction together with its receipt, if one was available.
type RawTransaction struct {
	Hash      common.Hash
	Index     uint
	From      common.Address
	To        *common.Address
	Value     *big.Int
	Gas       uint64
	GasPrice  *big.Int
	GasFeeCap *big.Int
	GasTipCap *big.Int
	Nonce     uint64
	Type      uint8
	Input     []byte

	// Receipt is nil while the transaction outcome is unknown.
	Receipt *RawReceipt
}

// RawReceipt carries the execution result of a transaction.
type RawReceipt struct {
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	ContractAddress   *common.Address
	Logs              []RawLog
}

// RawLog is a single log entry emitted by a transaction.
type RawLog struct {
	Index   uint
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Block is the normalized block row.
type Block struct {
	Number     uint64
	Hash       string
	ParentHash string
	Timestamp  time.Time
	TxCount    int
	GasUsed    decimal.Decimal
	GasLimit   decimal.Decimal
	BaseFee    *decimal.Decimal
	Miner      string
}

// Transaction is the normalized transaction row.
type Transaction struct {
	Hash                 string
	BlockNumber          uint64
	Index                uint
	From                 string
	To                   string
	Value                decimal.Decimal
	GasLimit             decimal.Decimal
	GasPrice             *decimal.Decimal
	GasUsed              *decimal.Decimal
	MaxFeePerGas         *decimal.Decimal
	MaxPriorityFeePerGas *decimal.Decimal
	Nonce                uint64
	Status               TxStatus
	Type                 uint8
	ContractAddress      string
	MethodID             string
	DecodedMethod        string
	Metadata             map[string]any
	Timestamp            time.Time
}

// Addresses returns the distinct non-empty addresses the transaction touches.
func (t *Transaction) Addresses() []string {
	out := make([]string, 0, 3)
	for _, addr := range []string{t.From, t.To, t.ContractAddress} {
		if addr == "" {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen == addr {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, addr)
		}
	}
	return out
}

// TokenTransfer is a token movement decoded from a log.
type TokenTransfer struct {
	TxHash       string
	LogIndex     uint
	BlockNumber  uint64
	TokenAddress string
	From         string
	To           string
	Amount       decimal.Decimal
	TokenID      *decimal.Decimal
	Standard     TokenStandard
	Timestamp    time.Time
}

// ContractEvent is a raw log, optionally enriched with its decoded name and fields.
type ContractEvent struct {
	TxHash          string
	LogIndex        uint
	BlockNumber     uint64
	ContractAddress string
	Topics          []string
	Data            string
	EventName       string
	Decoded         map[string]any
}

// BlockBundle is one block's full set of normalized rows.
type BlockBundle struct {
	Block        Block
	Transactions []Transaction
	Transfers    []TokenTransfer
	Events       []ContractEvent
}

// Empty reports whether the bundle carries no child rows.
func (b *BlockBundle) Empty() bool {
	return len(b.Transactions) == 0 && len(b.Transfers) == 0 && len(b.Events) == 0
}

// NormalizeAddress lower-cases a hex address so that comparisons are case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// HexAddress formats an address in its normalized form.
func HexAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// DecimalFromBig converts an integer without loss of precision. A nil input yields zero.
func DecimalFromBig(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, 0)
}

// OptionalDecimal converts a nullable integer.
func OptionalDecimal(v *big.Int) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromBigInt(v, 0)
	return &d
}
