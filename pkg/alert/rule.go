// Package alert evaluates committed rows against data-driven rules and
// dispatches the resulting alerts to notification channels.
package alert

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chainsafe/evm-indexer/pkg/model"
)

// FailureCounter counts committed failed transactions in a time range.
type FailureCounter interface {
	CountFailedBetween(ctx context.Context, from, to time.Time) (int, error)
}

// Input is what every rule sees for one committed batch.
type Input struct {
	Batch *model.BlockBundle
	// Watched is the watch list snapshot taken once for the batch, keyed by normalized address.
	Watched  map[string]model.WatchedAddress
	Failures FailureCounter
}

// Rule decides which alerts a batch raises. Rules are evaluated independently.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, in *Input) ([]*model.Alert, error)
}

// Factory builds a rule from its spec.
type Factory func(spec RuleSpec) (Rule, error)

// Registry maps rule types to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in rule types.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(TypeWatchedAddress, newWatchedAddressRule)
	r.Register(TypeFailedTxRate, newFailedTxRateRule)
	r.Register(TypeLargeTransfer, newLargeTransferRule)
	r.Register(TypeLargeValue, newLargeValueRule)
	return r
}

// Register adds or replaces a rule type.
func (r *Registry) Register(ruleType string, f Factory) {
	r.factories[ruleType] = f
}

// Types lists the registered rule types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Build instantiates every enabled spec. Rule names must be unique.
func (r *Registry) Build(specs []RuleSpec) ([]Rule, error) {
	seen := make(map[string]bool, len(specs))
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate rule name %q", spec.Name)
		}
		seen[spec.Name] = true
		if spec.Disabled {
			continue
		}
		f, ok := r.factories[spec.Type]
		if !ok {
			return nil, fmt.Errorf("rule %q: unknown type %q", spec.Name, spec.Type)
		}
		rule, err := f(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
