package dao

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AlertDao is a data access object that maps directly to the 'alerts' table in PostgreSQL.
// Alerts carry no foreign key to transactions so that they survive reorg rollback.
type AlertDao struct {
	bun.BaseModel   `bun:"table:alerts"`
	ID              uuid.UUID      `json:"id" bun:"id,pk,type:uuid"`
	RuleName        string         `json:"rule_name" bun:"rule_name,notnull,type:varchar(100)"`
	AlertType       string         `json:"alert_type" bun:"alert_type,notnull,type:varchar(50)"`
	Severity        string         `json:"severity" bun:"severity,notnull,type:varchar(16)"`
	Title           string         `json:"title" bun:"title,notnull,type:varchar(255)"`
	Message         string         `json:"message" bun:"message,notnull,type:text"`
	TxHash          *string        `json:"tx_hash,omitempty" bun:"tx_hash,type:varchar(66)"`
	BlockNumber     *int64         `json:"block_number,omitempty" bun:"block_number"`
	Address         *string        `json:"address,omitempty" bun:"address,type:varchar(42)"`
	Metadata        map[string]any `json:"metadata,omitempty" bun:"metadata,type:jsonb"`
	DedupKey        string         `json:"dedup_key" bun:"dedup_key,notnull,unique,type:varchar(255)"`
	Acknowledged    bool           `json:"acknowledged" bun:"acknowledged,notnull"`
	AcknowledgedAt  *time.Time     `json:"acknowledged_at,omitempty" bun:"acknowledged_at"`
	AcknowledgedBy  *string        `json:"acknowledged_by,omitempty" bun:"acknowledged_by,type:varchar(100)"`
	Notified        bool           `json:"notified" bun:"notified,notnull"`
	NotifiedAt      *time.Time     `json:"notified_at,omitempty" bun:"notified_at"`
	NotifyAttempts  int            `json:"notify_attempts" bun:"notify_attempts,notnull"`
	LastNotifyError *string        `json:"last_notify_error,omitempty" bun:"last_notify_error,type:text"`
	CreatedAt       time.Time      `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
