package rules

import (
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

const (
	ServiceAccountRuleID = "SERVICE_ACCOUNT"

	// Kind labels distinguishing the two detection paths.
	KindServiceAccount        = "Service Account"
	KindManagedServiceAccount = "Managed Service Account"
)

// Indicator reason IDs, appended in this order when they fire.
const (
	reasonHasSPNs          = "HAS_SPNS"
	reasonNamingConvention = "NAMING_CONVENTION"
	reasonDescription      = "DESCRIPTION"
	reasonDelegation       = "DELEGATION_ENABLED"
	reasonManaged          = "MANAGED_SERVICE_ACCOUNT"
)

var (
	serviceNameMarkers        = []string{"svc_", "service", "svc"}
	serviceDescriptionMarkers = []string{"service", "application"}
)

// ClassifyServiceAccount runs the service-account heuristics over rec and
// returns every indicator that fired, in evaluation order. An empty result
// means rec does not look like a service account.
func ClassifyServiceAccount(rec models.IdentityRecord) []models.Reason {
	var reasons []models.Reason
	if len(rec.SPNs) > 0 {
		reasons = append(reasons, models.Reason{RuleID: reasonHasSPNs, Text: "Has SPNs"})
	}
	if containsAny(rec.SamAccountName, serviceNameMarkers) {
		reasons = append(reasons, models.Reason{RuleID: reasonNamingConvention, Text: "Naming convention"})
	}
	if containsAny(rec.Description, serviceDescriptionMarkers) {
		reasons = append(reasons, models.Reason{RuleID: reasonDescription, Text: "Description"})
	}
	if rec.HasDelegation() {
		reasons = append(reasons, models.Reason{RuleID: reasonDelegation, Text: "Delegation enabled"})
	}
	return reasons
}

func containsAny(s string, markers []string) bool {
	lower := strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// ServiceAccountRule inventories service accounts. Managed service accounts
// are reported unconditionally; ordinary accounts are reported when at least
// one heuristic indicator fires. The two paths are not deduplicated, so an
// account present in both inputs yields two findings.
type ServiceAccountRule struct{}

func (r ServiceAccountRule) ID() string   { return ServiceAccountRuleID }
func (r ServiceAccountRule) Name() string { return "Service Account Inventory" }

// Evaluate returns one INFO finding per managed service account followed by
// one per heuristically detected account.
func (r ServiceAccountRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()

	var findings []models.Finding
	for _, rec := range ctx.Directory.ServiceAccounts {
		if rec.Kind != models.IdentityManagedServiceAccount {
			continue
		}
		f := newFinding(r.ID(), rec.SamAccountName, models.SubjectServiceAccount, models.SeverityInfo, now)
		f.ID = fmt.Sprintf("%s-msa-%s", r.ID(), rec.SamAccountName)
		f.Kind = KindManagedServiceAccount
		f.Reasons = []models.Reason{{RuleID: reasonManaged, Text: "Managed service account"}}
		f.Explanation = fmt.Sprintf("%q is a directory-managed service account.", rec.SamAccountName)
		f.Recommendation = "No action required; managed service account passwords rotate automatically."
		findings = append(findings, f)
	}

	for _, rec := range ctx.Directory.Users {
		reasons := ClassifyServiceAccount(rec)
		if len(reasons) == 0 {
			continue
		}
		f := newFinding(r.ID(), rec.SamAccountName, models.SubjectUser, models.SeverityInfo, now)
		f.Kind = KindServiceAccount
		f.Reasons = reasons
		f.Explanation = fmt.Sprintf("Account %q looks like a service account (%s).", rec.SamAccountName, strings.Join(reasonTexts(reasons), ", "))
		f.Recommendation = "Migrate to a group managed service account where possible and keep SPNs off user objects."
		findings = append(findings, f)
	}
	return findings
}

func reasonTexts(reasons []models.Reason) []string {
	out := make([]string, len(reasons))
	for i, r := range reasons {
		out[i] = r.Text
	}
	return out
}
