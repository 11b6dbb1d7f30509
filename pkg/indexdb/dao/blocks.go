package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// BlockDao is a data access object that maps directly to the 'blocks' table in PostgreSQL.
type BlockDao struct {
	bun.BaseModel `bun:"table:blocks"`
	Number        int64               `json:"number" bun:"number,pk"`
	Hash          string              `json:"hash" bun:"hash,notnull,unique,type:varchar(66)"`
	ParentHash    string              `json:"parent_hash" bun:"parent_hash,notnull,type:varchar(66)"`
	Timestamp     time.Time           `json:"timestamp" bun:"timestamp,notnull"`
	TxCount       int                 `json:"tx_count" bun:"tx_count,notnull"`
	GasUsed       decimal.Decimal     `json:"gas_used" bun:"gas_used,notnull,type:numeric(78,0)"`
	GasLimit      decimal.Decimal     `json:"gas_limit" bun:"gas_limit,notnull,type:numeric(78,0)"`
	BaseFee       decimal.NullDecimal `json:"base_fee" bun:"base_fee,type:numeric(78,0)"`
	Miner         string              `json:"miner" bun:"miner,type:varchar(42)"`
	CreatedAt     time.Time           `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
