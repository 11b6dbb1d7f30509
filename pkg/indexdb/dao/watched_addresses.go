package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// WatchedAddressDao is a data access object that maps directly to the 'watched_addresses' table in PostgreSQL.
type WatchedAddressDao struct {
	bun.BaseModel   `bun:"table:watched_addresses"`
	Address         string    `json:"address" bun:"address,pk,type:varchar(42)"`
	Label           string    `json:"label" bun:"label,type:varchar(100)"`
	Reason          string    `json:"reason" bun:"reason,type:text"`
	Severity        string    `json:"severity" bun:"severity,notnull,type:varchar(16)"`
	AlertOnActivity bool      `json:"alert_on_activity" bun:"alert_on_activity,notnull"`
	CreatedAt       time.Time `json:"created_at" bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `json:"updated_at" bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
