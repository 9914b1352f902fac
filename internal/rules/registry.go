package rules

import (
	"fmt"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// DefaultRuleRegistry holds a pack's rules in registration order.
type DefaultRuleRegistry struct {
	rules []Rule
	index map[string]int
}

// NewDefaultRuleRegistry returns an empty registry.
func NewDefaultRuleRegistry() *DefaultRuleRegistry {
	return &DefaultRuleRegistry{index: make(map[string]int)}
}

// NewRegistry returns a registry holding rs in order. It panics on a
// duplicate rule ID.
func NewRegistry(rs ...Rule) *DefaultRuleRegistry {
	reg := NewDefaultRuleRegistry()
	for _, r := range rs {
		reg.Register(r)
	}
	return reg
}

// Register appends rule. A second rule with the same ID is a wiring bug and
// panics.
func (r *DefaultRuleRegistry) Register(rule Rule) {
	id := rule.ID()
	if _, exists := r.index[id]; exists {
		panic(fmt.Sprintf("duplicate rule ID: %q", id))
	}
	r.index[id] = len(r.rules)
	r.rules = append(r.rules, rule)
}

// All returns the registered rules in registration order.
func (r *DefaultRuleRegistry) All() []Rule {
	return r.rules
}

// IDs returns the registered rule IDs in registration order.
func (r *DefaultRuleRegistry) IDs() []string {
	ids := make([]string, len(r.rules))
	for i, rule := range r.rules {
		ids[i] = rule.ID()
	}
	return ids
}

// Lookup returns the rule registered under id.
func (r *DefaultRuleRegistry) Lookup(id string) (Rule, bool) {
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.rules[i], true
}

// EvaluateAll runs every rule against ctx and concatenates the findings.
func (r *DefaultRuleRegistry) EvaluateAll(ctx RuleContext) []models.Finding {
	var findings []models.Finding
	for _, rule := range r.rules {
		findings = append(findings, rule.Evaluate(ctx)...)
	}
	return findings
}
