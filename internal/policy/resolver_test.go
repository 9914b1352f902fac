package policy

import (
	"testing"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestApplyPolicy_DomainDisabled(t *testing.T) {
	cfg := &PolicyConfig{
		Domains: map[string]DomainConfig{
			"identity": {Enabled: false},
		},
	}

	findings := []models.Finding{
		{RuleID: "INACTIVE_ACCOUNT"},
	}

	result := ApplyPolicy(findings, "identity", cfg)

	if len(result) != 0 {
		t.Fatalf("expected all findings dropped")
	}
}

func TestApplyPolicy_RuleDisabled(t *testing.T) {
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"INACTIVE_ACCOUNT": {Enabled: boolPtr(false)},
		},
	}

	findings := []models.Finding{
		{RuleID: "INACTIVE_ACCOUNT"},
		{RuleID: "STALE_PASSWORD"},
	}

	result := ApplyPolicy(findings, "identity", cfg)

	if len(result) != 1 {
		t.Fatalf("expected one finding remaining")
	}
	if result[0].RuleID != "STALE_PASSWORD" {
		t.Fatalf("wrong finding kept")
	}
}

func TestApplyPolicy_SeverityOverride(t *testing.T) {
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"INACTIVE_ACCOUNT": {Severity: "CRITICAL"},
		},
	}

	findings := []models.Finding{
		{RuleID: "INACTIVE_ACCOUNT", Severity: "MEDIUM"},
	}

	result := ApplyPolicy(findings, "identity", cfg)

	if result[0].Severity != "CRITICAL" {
		t.Fatalf("severity override failed")
	}
}

func TestApplyPolicy_NoPolicy(t *testing.T) {
	findings := []models.Finding{
		{RuleID: "INACTIVE_ACCOUNT"},
	}

	result := ApplyPolicy(findings, "identity", nil)

	if len(result) != 1 {
		t.Fatalf("nil policy should not modify findings")
	}
}

func TestApplyPolicy_MinSeverityNotSet(t *testing.T) {
	// No min_severity → all findings pass through regardless of severity.
	cfg := &PolicyConfig{
		Domains: map[string]DomainConfig{
			"identity": {Enabled: true},
		},
	}
	findings := []models.Finding{
		{RuleID: "A", Severity: models.SeverityCritical},
		{RuleID: "B", Severity: models.SeverityHigh},
		{RuleID: "C", Severity: models.SeverityMedium},
		{RuleID: "D", Severity: models.SeverityLow},
		{RuleID: "E", Severity: models.SeverityInfo},
	}
	result := ApplyPolicy(findings, "identity", cfg)
	if len(result) != 5 {
		t.Fatalf("want 5 findings (no min_severity), got %d", len(result))
	}
}

func TestApplyPolicy_MinSeverityHigh(t *testing.T) {
	// min_severity=HIGH → MEDIUM, LOW, INFO are dropped; CRITICAL and HIGH survive.
	cfg := &PolicyConfig{
		Domains: map[string]DomainConfig{
			"identity": {Enabled: true, MinSeverity: "HIGH"},
		},
	}
	findings := []models.Finding{
		{RuleID: "A", Severity: models.SeverityCritical},
		{RuleID: "B", Severity: models.SeverityHigh},
		{RuleID: "C", Severity: models.SeverityMedium},
		{RuleID: "D", Severity: models.SeverityLow},
		{RuleID: "E", Severity: models.SeverityInfo},
	}
	result := ApplyPolicy(findings, "identity", cfg)
	if len(result) != 2 {
		t.Fatalf("want 2 findings (CRITICAL + HIGH), got %d", len(result))
	}
	for _, f := range result {
		if f.Severity != models.SeverityCritical && f.Severity != models.SeverityHigh {
			t.Errorf("unexpected severity %q survived min_severity=HIGH filter", f.Severity)
		}
	}
}

func TestApplyPolicy_MinSeverityCritical(t *testing.T) {
	// min_severity=CRITICAL → only CRITICAL findings survive.
	cfg := &PolicyConfig{
		Domains: map[string]DomainConfig{
			"hosts": {Enabled: true, MinSeverity: "CRITICAL"},
		},
	}
	findings := []models.Finding{
		{RuleID: "A", Severity: models.SeverityCritical},
		{RuleID: "B", Severity: models.SeverityHigh},
		{RuleID: "C", Severity: models.SeverityMedium},
	}
	result := ApplyPolicy(findings, "hosts", cfg)
	if len(result) != 1 {
		t.Fatalf("want 1 finding (CRITICAL only), got %d", len(result))
	}
	if result[0].Severity != models.SeverityCritical {
		t.Errorf("want CRITICAL, got %q", result[0].Severity)
	}
}

func TestApplyPolicy_SeverityOverrideThenMinSeverity(t *testing.T) {
	// Severity override elevates MEDIUM → CRITICAL; min_severity=HIGH then keeps it.
	cfg := &PolicyConfig{
		Domains: map[string]DomainConfig{
			"identity": {Enabled: true, MinSeverity: "HIGH"},
		},
		Rules: map[string]RuleConfig{
			"INACTIVE_ACCOUNT": {Severity: "CRITICAL"},
		},
	}
	findings := []models.Finding{
		{RuleID: "INACTIVE_ACCOUNT", Severity: models.SeverityMedium},
		{RuleID: "STALE_PASSWORD", Severity: models.SeverityLow},
	}
	result := ApplyPolicy(findings, "identity", cfg)
	// INACTIVE_ACCOUNT: overridden to CRITICAL (rank 5) ≥ HIGH (rank 4) → kept.
	// STALE_PASSWORD: stays LOW (rank 2) < HIGH (rank 4) → dropped.
	if len(result) != 1 {
		t.Fatalf("want 1 finding after override+min_severity filter, got %d", len(result))
	}
	if result[0].RuleID != "INACTIVE_ACCOUNT" {
		t.Errorf("wrong finding kept: %q", result[0].RuleID)
	}
	if result[0].Severity != models.SeverityCritical {
		t.Errorf("want CRITICAL after override, got %q", result[0].Severity)
	}
}

func TestApplyPolicy_MinSeverityInvalidValue(t *testing.T) {
	// An unrecognised min_severity string is ignored safely — no filtering applied.
	cfg := &PolicyConfig{
		Domains: map[string]DomainConfig{
			"identity": {Enabled: true, MinSeverity: "BOGUS"},
		},
	}
	findings := []models.Finding{
		{RuleID: "A", Severity: models.SeverityLow},
		{RuleID: "B", Severity: models.SeverityInfo},
	}
	result := ApplyPolicy(findings, "identity", cfg)
	if len(result) != 2 {
		t.Fatalf("invalid min_severity must not filter findings; got %d", len(result))
	}
}

func TestApplyPolicy_OverrideRecordsReason(t *testing.T) {
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"KERBEROASTABLE_ACCOUNT": {Severity: " critical "},
			"INACTIVE_ACCOUNT":       {Severity: "low"},
		},
	}
	orig := []models.Reason{{RuleID: "KERBEROASTABLE_ACCOUNT", Text: "SPNs: HTTP/web01"}}
	findings := []models.Finding{
		{RuleID: "KERBEROASTABLE_ACCOUNT", Severity: models.SeverityHigh, Reasons: make([]models.Reason, 1, 4)},
		{RuleID: "INACTIVE_ACCOUNT", Severity: models.SeverityLow},
	}
	copy(findings[0].Reasons, orig)

	result := ApplyPolicy(findings, DomainIdentity, cfg)
	if len(result) != 2 {
		t.Fatalf("got %d findings; want 2", len(result))
	}
	if result[0].Severity != models.SeverityCritical {
		t.Errorf("severity: got %s; want CRITICAL", result[0].Severity)
	}
	if len(result[0].Reasons) != 2 || result[0].Reasons[1].Text != "Severity set to CRITICAL by policy (rule default HIGH)" {
		t.Errorf("reasons: got %+v", result[0].Reasons)
	}
	if len(findings[0].Reasons) != 1 || findings[0].Reasons[:2][1].Text != "" {
		t.Error("ApplyPolicy must not write into the input's reasons")
	}
	// An override equal to the rule default adds nothing.
	if len(result[1].Reasons) != 0 {
		t.Errorf("unchanged severity must not add a reason; got %+v", result[1].Reasons)
	}
}
