package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TransactionDao is a data access object that maps directly to the 'transactions' table in PostgreSQL.
type TransactionDao struct {
	bun.BaseModel        `bun:"table:transactions"`
	Hash                 string              `json:"hash" bun:"hash,pk,type:varchar(66)"`
	BlockNumber          int64               `json:"block_number" bun:"block_number,notnull"`
	TxIndex              int                 `json:"tx_index" bun:"tx_index,notnull"`
	FromAddress          string              `json:"from_address" bun:"from_address,notnull,type:varchar(42)"`
	ToAddress            *string             `json:"to_address,omitempty" bun:"to_address,type:varchar(42)"`
	Value                decimal.Decimal     `json:"value" bun:"value,notnull,type:numeric(78,0)"`
	GasLimit             decimal.Decimal     `json:"gas_limit" bun:"gas_limit,notnull,type:numeric(78,0)"`
	GasPrice             decimal.NullDecimal `json:"gas_price" bun:"gas_price,type:numeric(78,0)"`
	GasUsed              decimal.NullDecimal `json:"gas_used" bun:"gas_used,type:numeric(78,0)"`
	MaxFeePerGas         decimal.NullDecimal `json:"max_fee_per_gas" bun:"max_fee_per_gas,type:numeric(78,0)"`
	MaxPriorityFeePerGas decimal.NullDecimal `json:"max_priority_fee_per_gas" bun:"max_priority_fee_per_gas,type:numeric(78,0)"`
	Nonce                int64               `json:"nonce" bun:"nonce,notnull"`
	Status               string              `json:"status" bun:"status,notnull,type:varchar(16)"`
	TxType               int16               `json:"tx_type" bun:"tx_type,notnull"`
	ContractAddress      *string             `json:"contract_address,omitempty" bun:"contract_address,type:varchar(42)"`
	MethodID             *string             `json:"method_id,omitempty" bun:"method_id,type:varchar(10)"`
	DecodedMethod        *string             `json:"decoded_method,omitempty" bun:"decoded_method,type:varchar(255)"`
	Metadata             map[string]any      `json:"metadata,omitempty" bun:"metadata,type:jsonb"`
	CreatedAt            time.Time           `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time           `json:"updated_at" bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
