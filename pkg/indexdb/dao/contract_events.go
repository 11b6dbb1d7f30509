package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// ContractEventDao is a data access object that maps directly to the 'contract_events' table in PostgreSQL.
type ContractEventDao struct {
	bun.BaseModel   `bun:"table:contract_events"`
	TxHash          string         `json:"tx_hash" bun:"tx_hash,pk,type:varchar(66)"`
	LogIndex        int            `json:"log_index" bun:"log_index,pk"`
	BlockNumber     int64          `json:"block_number" bun:"block_number,notnull"`
	ContractAddress string         `json:"contract_address" bun:"contract_address,notnull,type:varchar(42)"`
	Topic0          *string        `json:"topic0,omitempty" bun:"topic0,type:varchar(66)"`
	Topic1          *string        `json:"topic1,omitempty" bun:"topic1,type:varchar(66)"`
	Topic2          *string        `json:"topic2,omitempty" bun:"topic2,type:varchar(66)"`
	Topic3          *string        `json:"topic3,omitempty" bun:"topic3,type:varchar(66)"`
	Data            string         `json:"data" bun:"data,notnull,type:text"`
	EventName       *string        `json:"event_name,omitempty" bun:"event_name,type:varchar(255)"`
	Decoded         map[string]any `json:"decoded,omitempty" bun:"decoded,type:jsonb"`
	CreatedAt       time.Time      `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
