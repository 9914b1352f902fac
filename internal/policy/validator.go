package policy

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// Domains lists the policy domains in evaluation order.
var Domains = []string{DomainIdentity, DomainHosts, DomainInfrastructure}

const severityChoices = "CRITICAL, HIGH, MEDIUM, LOW, INFO"

// Validate reports every semantic problem in cfg, in a stable order: version,
// then domains, rules and enforcement, each sorted by key. Rule IDs are
// checked against knownRuleIDs. A nil or empty result means cfg is usable.
func Validate(cfg *PolicyConfig, knownRuleIDs []string) []error {
	if cfg == nil {
		return []error{fmt.Errorf("policy config is nil")}
	}
	var v validation

	if cfg.Version != 1 {
		v.addf("version: unsupported value %d; must be 1", cfg.Version)
	}

	for _, name := range sortedKeys(cfg.Domains) {
		v.domain("domains."+name, name)
		v.severity("domains."+name+".min_severity", cfg.Domains[name].MinSeverity)
	}

	for _, id := range sortedKeys(cfg.Rules) {
		rc := cfg.Rules[id]
		if !slices.Contains(knownRuleIDs, id) {
			v.addf("rules.%s: unknown rule ID", id)
		}
		v.severity("rules."+id+".severity", rc.Severity)
		for _, key := range sortedKeys(rc.Params) {
			val := rc.Params[key]
			switch {
			case math.IsNaN(val) || math.IsInf(val, 0):
				v.addf("rules.%s.params.%s: must be a finite number", id, key)
			case val < 0:
				v.addf("rules.%s.params.%s: must not be negative; got %v", id, key, val)
			}
		}
	}

	for _, name := range sortedKeys(cfg.Enforcement) {
		v.domain("enforcement."+name, name)
		v.severity("enforcement."+name+".fail_on_severity", cfg.Enforcement[name].FailOnSeverity)
	}
	return v.errs
}

type validation struct {
	errs []error
}

func (v *validation) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validation) domain(field, name string) {
	if !slices.Contains(Domains, name) {
		v.addf("%s: unknown domain; valid values: %s", field, strings.Join(Domains, ", "))
	}
}

// severity accepts an empty value, which means "not set".
func (v *validation) severity(field, value string) {
	if value == "" {
		return
	}
	if SeverityRank(models.Severity(strings.ToUpper(value))) == 0 {
		v.addf("%s: invalid value %q; valid values: %s", field, value, severityChoices)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
