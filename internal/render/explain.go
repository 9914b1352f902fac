// Package render provides presentation-layer helpers for adp CLI output.
// It is a pure rendering package: no collection, no scoring, no directory or
// WinRM calls.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
)

// RuleExplanation groups every finding one rule produced in a snapshot.
type RuleExplanation struct {
	RuleID string `json:"rule_id"`
	// Severity is the highest severity among Findings.
	Severity       models.Severity  `json:"severity"`
	Recommendation string           `json:"recommendation"`
	Findings       []models.Finding `json:"findings"`
}

// ExplainRule returns the explanation for ruleID (case-insensitive), or nil
// when the rule produced no findings. Findings are ordered by subject; the
// input slice is not modified.
func ExplainRule(findings []models.Finding, ruleID string) *RuleExplanation {
	var exp *RuleExplanation
	for _, f := range findings {
		if !strings.EqualFold(f.RuleID, ruleID) {
			continue
		}
		if exp == nil {
			exp = &RuleExplanation{RuleID: f.RuleID, Severity: f.Severity, Recommendation: f.Recommendation}
		}
		if policy.SeverityRank(f.Severity) > policy.SeverityRank(exp.Severity) {
			exp.Severity = f.Severity
		}
		exp.Findings = append(exp.Findings, f)
	}
	if exp == nil {
		return nil
	}
	sort.SliceStable(exp.Findings, func(i, j int) bool {
		return exp.Findings[i].Subject < exp.Findings[j].Subject
	})
	return exp
}

// RenderRuleExplanation writes a structured breakdown of exp to w.
//
// Example output:
//
//	RULE: KERBEROASTABLE_ACCOUNT (HIGH)
//	Recommendation: Move SPNs to group managed service accounts ...
//
//	Findings (1):
//
//	  ✓ svc_sql (USER)
//	    User "svc_sql" has 1 SPN(s) and is exposed to Kerberoasting.
//	    - SPNs: MSSQLSvc/sql01.corp.local:1433
func RenderRuleExplanation(w io.Writer, exp RuleExplanation) {
	fmt.Fprintf(w, "RULE: %s (%s)\n", exp.RuleID, exp.Severity)
	if exp.Recommendation != "" {
		fmt.Fprintf(w, "Recommendation: %s\n", exp.Recommendation)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Findings (%d):\n", len(exp.Findings))
	for _, f := range exp.Findings {
		fmt.Fprintln(w)
		kind := string(f.SubjectType)
		if f.Kind != "" {
			kind = f.Kind
		}
		fmt.Fprintf(w, "  ✓ %s (%s)\n", f.Subject, kind)
		if f.Severity != exp.Severity {
			fmt.Fprintf(w, "    Severity: %s\n", f.Severity)
		}
		if f.Explanation != "" {
			fmt.Fprintf(w, "    %s\n", f.Explanation)
		}
		for _, r := range f.Reasons {
			fmt.Fprintf(w, "    - %s\n", r.Text)
		}
	}
}

// WriteExplainJSON writes the rule explanation as indented JSON to w.
//
// When exp is non-nil, the output is:
//
//	{"rule": { ...explanation fields... }}
//
// When exp is nil (the rule produced no findings), the output is:
//
//	{"error": "No findings for rule RULE_ID"}
func WriteExplainJSON(w io.Writer, exp *RuleExplanation, ruleID string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if exp == nil {
		return enc.Encode(map[string]string{
			"error": fmt.Sprintf("No findings for rule %s", ruleID),
		})
	}
	return enc.Encode(map[string]any{
		"rule": exp,
	})
}
