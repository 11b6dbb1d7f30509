package dao

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// IndexerStateDao is a data access object that maps directly to the 'indexer_state' table in PostgreSQL.
type IndexerStateDao struct {
	bun.BaseModel `bun:"table:indexer_state"`
	Key           string          `json:"key" bun:"key,pk,type:varchar(64)"`
	Value         json.RawMessage `json:"value" bun:"value,notnull,type:jsonb"`
	UpdatedAt     time.Time       `json:"updated_at" bun:"updated_at,notnull"`
}
