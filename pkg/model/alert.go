package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity is the ordered importance of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: info < warning < critical. Unknown values rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as floor.
func (s Severity) AtLeast(floor Severity) bool {
	return s.Rank() >= floor.Rank()
}

// ParseSeverity validates a severity string.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(v)
	if s.Rank() == 0 {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// Alert is an append-only alert record. Acknowledged and Notified only ever move from false to true.
type Alert struct {
	ID              uuid.UUID      `json:"id"`
	RuleName        string         `json:"rule_name"`
	Type            string         `json:"type"`
	Severity        Severity       `json:"severity"`
	Title           string         `json:"title"`
	Message         string         `json:"message"`
	TxHash          string         `json:"tx_hash,omitempty"`
	BlockNumber     *uint64        `json:"block_number,omitempty"`
	Address         string         `json:"address,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	DedupKey        string         `json:"dedup_key"`
	Acknowledged    bool           `json:"acknowledged"`
	AcknowledgedAt  *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string         `json:"acknowledged_by,omitempty"`
	Notified        bool           `json:"notified"`
	NotifiedAt      *time.Time     `json:"notified_at,omitempty"`
	NotifyAttempts  int            `json:"notify_attempts"`
	LastNotifyError string         `json:"last_notify_error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// WatchedAddress is an operator-maintained watch list entry.
type WatchedAddress struct {
	Address         string    `json:"address"`
	Label           string    `json:"label,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Severity        Severity  `json:"severity"`
	AlertOnActivity bool      `json:"alert_on_activity"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
