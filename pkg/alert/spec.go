package alert

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/chainsafe/evm-indexer/pkg/config"
)

// Built-in rule types.
const (
	TypeWatchedAddress = "watched_address"
	TypeFailedTxRate   = "failed_tx_rate"
	TypeLargeTransfer  = "large_transfer"
	TypeLargeValue     = "large_value"
)

// RuleSpec is the declarative form of a rule as read from the rules file.
type RuleSpec struct {
	Name     string `yaml:"name" validate:"required"`
	Type     string `yaml:"type" validate:"required"`
	Severity string `yaml:"severity" default:"warning" validate:"oneof=info warning critical"`
	Disabled bool   `yaml:"disabled"`

	// Threshold is an integer amount in base units for the value rules and a
	// transaction count for failed_tx_rate.
	Threshold string        `yaml:"threshold" validate:"omitempty,numeric"`
	Window    time.Duration `yaml:"window"`
	// Token restricts large_transfer to one token contract.
	Token string `yaml:"token"`
}

type rulesFile struct {
	Rules []RuleSpec `yaml:"rules" validate:"dive"`
}

// LoadRules reads rule specs from a YAML file.
func LoadRules(path string) ([]RuleSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(raw)
}

// ParseRules decodes and validates rule specs, filling in defaults.
func ParseRules(raw []byte) ([]RuleSpec, error) {
	var f rulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	for i := range f.Rules {
		if err := defaults.Set(&f.Rules[i]); err != nil {
			return nil, fmt.Errorf("failed to apply rule defaults: %w", err)
		}
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return f.Rules, nil
}

// DefaultRules derives the rule set from the alerts config section. Rules
// whose threshold is not configured are left out.
func DefaultRules(cfg *config.AlertsConfig) []RuleSpec {
	specs := []RuleSpec{{
		Name:     "watched-address-activity",
		Type:     TypeWatchedAddress,
		Severity: "warning",
	}}
	if cfg.FailedTxThreshold > 0 {
		specs = append(specs, RuleSpec{
			Name:      "failed-tx-rate",
			Type:      TypeFailedTxRate,
			Severity:  "warning",
			Threshold: fmt.Sprintf("%d", cfg.FailedTxThreshold),
			Window:    cfg.FailedTxWindow,
		})
	}
	if cfg.LargeTransferThreshold != "" {
		specs = append(specs, RuleSpec{
			Name:      "large-token-transfer",
			Type:      TypeLargeTransfer,
			Severity:  "info",
			Threshold: cfg.LargeTransferThreshold,
		})
	}
	if cfg.LargeValueThreshold != "" {
		specs = append(specs, RuleSpec{
			Name:      "large-native-value",
			Type:      TypeLargeValue,
			Severity:  "info",
			Threshold: cfg.LargeValueThreshold,
		})
	}
	return specs
}

// RulesFromConfig loads the rules file when one is configured, otherwise derives the defaults.
func RulesFromConfig(cfg *config.AlertsConfig) ([]RuleSpec, error) {
	if cfg.RulesFile != "" {
		return LoadRules(cfg.RulesFile)
	}
	return DefaultRules(cfg), nil
}
