package rules

import (
	"time"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
)

// RuleContext carries all collected data for one audit run.
// It is the sole input to Rule.Evaluate and must contain everything a rule
// needs; rules must never make network calls or read external state.
type RuleContext struct {
	// Directory holds the identity, host and policy records for the domain.
	Directory *models.DirectoryData

	// Posture holds one record per probed host. Nil when probing was skipped.
	Posture []models.HostPostureRecord

	// AuthEvents is the classified authentication-event window. Nil when the
	// event source was not consulted.
	AuthEvents *AuthEventSummary

	// PrivilegedGroups is the configured set of privileged group names.
	// Empty means DefaultPrivilegedGroups.
	PrivilegedGroups []string

	// Policy holds the active PolicyConfig for threshold overrides. May be nil
	// when no policy file is loaded; rules must treat nil as "use defaults".
	Policy *policy.PolicyConfig

	// Now is the evaluation instant used for every age calculation.
	// Zero means time.Now().
	Now time.Time
}

// Clock returns the evaluation instant in UTC.
func (c RuleContext) Clock() time.Time {
	if c.Now.IsZero() {
		return time.Now().UTC()
	}
	return c.Now.UTC()
}

// Privileged returns the effective privileged group list.
func (c RuleContext) Privileged() []string {
	if len(c.PrivilegedGroups) == 0 {
		return DefaultPrivilegedGroups
	}
	return c.PrivilegedGroups
}

// Rule is a single deterministic risk-detection rule.
// Rules must be stateless and safe to call concurrently.
// They must never reach the directory, a host, or any external service.
type Rule interface {
	// ID returns the unique, stable identifier for this rule (e.g. "KERBEROASTABLE_ACCOUNT").
	ID() string

	// Name returns a short human-readable rule name.
	Name() string

	// Evaluate inspects the provided context and returns zero or more findings.
	// An empty slice means no issue was detected.
	Evaluate(ctx RuleContext) []models.Finding
}

// RuleRegistry manages the set of active rules and drives evaluation.
type RuleRegistry interface {
	// Register adds a rule to the registry. Panics on duplicate ID.
	Register(rule Rule)

	// All returns all registered rules in registration order.
	All() []Rule

	// IDs returns the registered rule IDs in registration order.
	IDs() []string

	// EvaluateAll runs every registered rule against ctx and merges results.
	EvaluateAll(ctx RuleContext) []models.Finding
}
