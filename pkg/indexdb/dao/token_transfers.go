package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TokenTransferDao is a data access object that maps directly to the 'token_transfers' table in PostgreSQL.
type TokenTransferDao struct {
	bun.BaseModel `bun:"table:token_transfers"`
	TxHash        string              `json:"tx_hash" bun:"tx_hash,pk,type:varchar(66)"`
	LogIndex      int                 `json:"log_index" bun:"log_index,pk"`
	BlockNumber   int64               `json:"block_number" bun:"block_number,notnull"`
	TokenAddress  string              `json:"token_address" bun:"token_address,notnull,type:varchar(42)"`
	FromAddress   string              `json:"from_address" bun:"from_address,notnull,type:varchar(42)"`
	ToAddress     string              `json:"to_address" bun:"to_address,notnull,type:varchar(42)"`
	Amount        decimal.Decimal     `json:"amount" bun:"amount,notnull,type:numeric(78,0)"`
	TokenID       decimal.NullDecimal `json:"token_id" bun:"token_id,type:numeric(78,0)"`
	Standard      string              `json:"standard" bun:"standard,notnull,type:varchar(16)"`
	CreatedAt     time.Time           `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
