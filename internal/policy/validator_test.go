package policy_test

import (
	"math"
	"strings"
	"testing"

	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
)

var knownRules = []string{"KERBEROASTABLE_ACCOUNT", "INACTIVE_ACCOUNT", "HOST_FIREWALL_DISABLED"}

func boolPtr(b bool) *bool { return &b }

func TestValidate_ValidConfigs(t *testing.T) {
	cases := map[string]*policy.PolicyConfig{
		"minimal": {Version: 1},
		"full": {
			Version: 1,
			Domains: map[string]policy.DomainConfig{
				"identity": {Enabled: true, MinSeverity: "medium"},
				"hosts":    {Enabled: true, MinSeverity: "HIGH"},
			},
			Rules: map[string]policy.RuleConfig{
				"KERBEROASTABLE_ACCOUNT": {Enabled: boolPtr(false)},
				"INACTIVE_ACCOUNT":       {Severity: "low", Params: map[string]float64{"inactive_days": 180}},
				"HOST_FIREWALL_DISABLED": {Severity: "Critical"},
			},
			Enforcement: map[string]policy.EnforcementConfig{
				"identity": {FailOnSeverity: "critical"},
				"hosts":    {FailOnSeverity: ""},
			},
		},
		"empty severities mean unset": {
			Version:     1,
			Domains:     map[string]policy.DomainConfig{"identity": {MinSeverity: ""}},
			Rules:       map[string]policy.RuleConfig{"INACTIVE_ACCOUNT": {Severity: ""}},
			Enforcement: map[string]policy.EnforcementConfig{"hosts": {}},
		},
	}
	for name, cfg := range cases {
		if errs := policy.Validate(cfg, knownRules); len(errs) != 0 {
			t.Errorf("%s: got %d errors: %v", name, len(errs), errs)
		}
	}
}

func TestValidate_SeverityCaseInsensitive(t *testing.T) {
	for _, sev := range []string{"critical", "High", "MEDIUM", "low", "Info"} {
		cfg := &policy.PolicyConfig{
			Version: 1,
			Rules:   map[string]policy.RuleConfig{"INACTIVE_ACCOUNT": {Severity: sev}},
		}
		if errs := policy.Validate(cfg, knownRules); len(errs) != 0 {
			t.Errorf("severity %q: got %v", sev, errs)
		}
	}
}

func TestValidate_SingleProblems(t *testing.T) {
	cases := []struct {
		name  string
		cfg   *policy.PolicyConfig
		field string
	}{
		{"version 2", &policy.PolicyConfig{Version: 2}, "version"},
		{"version 0", &policy.PolicyConfig{}, "version"},
		{"unknown domain", &policy.PolicyConfig{
			Version: 1,
			Domains: map[string]policy.DomainConfig{"cloud": {Enabled: true}},
		}, "domains.cloud"},
		{"bad min_severity", &policy.PolicyConfig{
			Version: 1,
			Domains: map[string]policy.DomainConfig{"identity": {MinSeverity: "severe"}},
		}, "domains.identity.min_severity"},
		{"unknown rule", &policy.PolicyConfig{
			Version: 1,
			Rules:   map[string]policy.RuleConfig{"EBS_UNATTACHED": {}},
		}, "rules.EBS_UNATTACHED"},
		{"bad rule severity", &policy.PolicyConfig{
			Version: 1,
			Rules:   map[string]policy.RuleConfig{"INACTIVE_ACCOUNT": {Severity: "urgent"}},
		}, "rules.INACTIVE_ACCOUNT.severity"},
		{"negative param", &policy.PolicyConfig{
			Version: 1,
			Rules:   map[string]policy.RuleConfig{"INACTIVE_ACCOUNT": {Params: map[string]float64{"inactive_days": -1}}},
		}, "rules.INACTIVE_ACCOUNT.params.inactive_days"},
		{"infinite param", &policy.PolicyConfig{
			Version: 1,
			Rules:   map[string]policy.RuleConfig{"INACTIVE_ACCOUNT": {Params: map[string]float64{"inactive_days": math.Inf(1)}}},
		}, "rules.INACTIVE_ACCOUNT.params.inactive_days"},
		{"unknown enforcement domain", &policy.PolicyConfig{
			Version:     1,
			Enforcement: map[string]policy.EnforcementConfig{"cloud": {FailOnSeverity: "critical"}},
		}, "enforcement.cloud"},
		{"bad fail_on_severity", &policy.PolicyConfig{
			Version:     1,
			Enforcement: map[string]policy.EnforcementConfig{"hosts": {FailOnSeverity: "blocker"}},
		}, "enforcement.hosts.fail_on_severity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := policy.Validate(tc.cfg, knownRules)
			if len(errs) != 1 {
				t.Fatalf("got %d errors; want 1: %v", len(errs), errs)
			}
			if !strings.HasPrefix(errs[0].Error(), tc.field+":") {
				t.Errorf("error %q does not name field %s", errs[0], tc.field)
			}
		})
	}
}

func TestValidate_AllErrorsInStableOrder(t *testing.T) {
	cfg := &policy.PolicyConfig{
		Version: 2,
		Domains: map[string]policy.DomainConfig{
			"network": {MinSeverity: "notavalue"},
		},
		Rules: map[string]policy.RuleConfig{
			"ZZZ_UNKNOWN": {},
			"AAA_UNKNOWN": {Severity: "blocker"},
		},
		Enforcement: map[string]policy.EnforcementConfig{"cloud": {}},
	}
	want := []string{
		"version",
		"domains.network",
		"domains.network.min_severity",
		"rules.AAA_UNKNOWN",
		"rules.AAA_UNKNOWN.severity",
		"rules.ZZZ_UNKNOWN",
		"enforcement.cloud",
	}
	for run := 0; run < 3; run++ {
		errs := policy.Validate(cfg, knownRules)
		if len(errs) != len(want) {
			t.Fatalf("got %d errors; want %d: %v", len(errs), len(want), errs)
		}
		for i, field := range want {
			if !strings.HasPrefix(errs[i].Error(), field+":") {
				t.Errorf("run %d error %d: got %q; want field %s", run, i, errs[i], field)
			}
		}
	}
}

func TestValidate_NilConfig(t *testing.T) {
	if errs := policy.Validate(nil, knownRules); len(errs) != 1 {
		t.Fatalf("got %v; want one error", errs)
	}
}

func TestValidate_UnknownDomainListsChoices(t *testing.T) {
	cfg := &policy.PolicyConfig{
		Version: 1,
		Domains: map[string]policy.DomainConfig{"cloud": {}},
	}
	errs := policy.Validate(cfg, knownRules)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "identity, hosts, infrastructure") {
		t.Errorf("got %v", errs)
	}
}
