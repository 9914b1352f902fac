package rules

import (
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
)

const (
	EmptyGroupsRuleID            = "EMPTY_GROUPS"
	LargeGroupRuleID             = "LARGE_GROUP"
	DeepGroupNestingRuleID       = "DEEP_GROUP_NESTING"
	TrustSIDFilteringRuleID      = "TRUST_SID_FILTERING_DISABLED"
	TrustSelectiveAuthRuleID     = "TRUST_SELECTIVE_AUTH_DISABLED"
	LegacyFunctionalLevelRuleID  = "LEGACY_FUNCTIONAL_LEVEL"
	LDAPSigningRuleID            = "LDAP_SIGNING_NOT_REQUIRED"
	SMBSigningRuleID             = "SMB_SIGNING_NOT_REQUIRED"
	CertTemplateAutoEnrollRuleID = "CERT_TEMPLATE_AUTO_ENROLL"
	ExpiredCARuleID              = "EXPIRED_CERTIFICATE_AUTHORITY"
	WeakFineGrainedPolicyRuleID  = "WEAK_FINE_GRAINED_POLICY"

	DefaultMaxEmptyGroups       = 10
	DefaultLargeGroupMembers    = 1000
	DefaultMaxNestingDepth      = 5
	DefaultCriticalNestingDepth = 7
	DefaultMinFunctionalLevel   = models.LevelWindows2016
)

// IsLargeGroup reports whether g has more than limit members.
func IsLargeGroup(g models.GroupRecord, limit int) bool {
	return g.MemberCount != nil && *g.MemberCount > limit
}

// IsLegacyFunctionalLevel reports whether level predates minLevel.
func IsLegacyFunctionalLevel(level *int, minLevel int) bool {
	return level != nil && *level < minLevel
}

// EmptyGroupsRule raises one domain finding when more than max_empty
// security groups have no members.
type EmptyGroupsRule struct{}

func (r EmptyGroupsRule) ID() string   { return EmptyGroupsRuleID }
func (r EmptyGroupsRule) Name() string { return "Unused Security Groups" }

func (r EmptyGroupsRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	limit := policy.IntParam(r.ID(), "max_empty", DefaultMaxEmptyGroups, ctx.Policy)

	var empty []string
	for _, g := range ctx.Directory.Groups {
		if g.Empty() {
			empty = append(empty, g.Name)
		}
	}
	if len(empty) <= limit {
		return nil
	}
	f := newFinding(r.ID(), domainSubject(ctx), models.SubjectDomain, models.SeverityLow, ctx.Clock())
	f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("%d empty groups", len(empty))}}
	f.Explanation = fmt.Sprintf("%d security groups have no members: %s.", len(empty), truncateList(empty, 10))
	f.Recommendation = "Review and remove unused groups to reduce attack surface."
	return []models.Finding{f}
}

// LargeGroupRule flags each security group with more than max_members
// direct members.
type LargeGroupRule struct{}

func (r LargeGroupRule) ID() string   { return LargeGroupRuleID }
func (r LargeGroupRule) Name() string { return "Oversized Security Group" }

func (r LargeGroupRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	limit := policy.IntParam(r.ID(), "max_members", DefaultLargeGroupMembers, ctx.Policy)
	now := ctx.Clock()

	var findings []models.Finding
	for _, g := range ctx.Directory.Groups {
		if !IsLargeGroup(g, limit) {
			continue
		}
		sev := models.SeverityLow
		if g.Privileged {
			sev = models.SeverityHigh
		}
		f := newFinding(r.ID(), g.Name, models.SubjectGroup, sev, now)
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("%d members", *g.MemberCount)}}
		f.Explanation = fmt.Sprintf("Group %q has %d members (limit %d).", g.Name, *g.MemberCount, limit)
		f.Recommendation = "Review for over-privileged access and implement least privilege."
		findings = append(findings, f)
	}
	return findings
}

// DeepGroupNestingRule flags groups whose nested membership chain is
// max_depth levels or deeper.
type DeepGroupNestingRule struct{}

func (r DeepGroupNestingRule) ID() string   { return DeepGroupNestingRuleID }
func (r DeepGroupNestingRule) Name() string { return "Deeply Nested Group" }

func (r DeepGroupNestingRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	depth := policy.IntParam(r.ID(), "max_depth", DefaultMaxNestingDepth, ctx.Policy)
	high := policy.IntParam(r.ID(), "high_depth", DefaultCriticalNestingDepth, ctx.Policy)
	now := ctx.Clock()

	var findings []models.Finding
	for _, g := range ctx.Directory.Groups {
		if g.NestingDepth < depth {
			continue
		}
		sev := models.SeverityMedium
		if g.NestingDepth >= high {
			sev = models.SeverityHigh
		}
		f := newFinding(r.ID(), g.Name, models.SubjectGroup, sev, now)
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("Nesting depth %d", g.NestingDepth)}}
		f.Explanation = fmt.Sprintf("Group %q nests other groups %d levels deep; effective membership is hard to audit.", g.Name, g.NestingDepth)
		f.Recommendation = "Flatten the group hierarchy and grant access through direct membership."
		findings = append(findings, f)
	}
	return findings
}

// externalTrusts yields the trusts that cross a forest boundary and are
// not disabled.
func externalTrusts(ctx RuleContext) []models.TrustRecord {
	if ctx.Directory == nil {
		return nil
	}
	var out []models.TrustRecord
	for _, t := range ctx.Directory.Trusts {
		if t.IntraForest || t.Direction == models.TrustDisabled {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TrustSIDFilteringRule flags cross-forest trusts that accept foreign SIDs.
type TrustSIDFilteringRule struct{}

func (r TrustSIDFilteringRule) ID() string   { return TrustSIDFilteringRuleID }
func (r TrustSIDFilteringRule) Name() string { return "Trust Without SID Filtering" }

func (r TrustSIDFilteringRule) Evaluate(ctx RuleContext) []models.Finding {
	now := ctx.Clock()
	var findings []models.Finding
	for _, t := range externalTrusts(ctx) {
		if t.SIDFilteringEnabled {
			continue
		}
		f := newFinding(r.ID(), t.Name, models.SubjectTrust, models.SeverityHigh, now)
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("%s %s trust, attributes 0x%x", t.Direction, t.TrustType, t.Attributes)}}
		f.Explanation = fmt.Sprintf("SID filtering is disabled for trust '%s'; SID history from the trusted side is honoured.", t.Name)
		f.Recommendation = "Enable SID filtering to prevent SID history attacks."
		findings = append(findings, f)
	}
	return findings
}

// TrustSelectiveAuthRule flags cross-forest trusts that authenticate every
// foreign principal.
type TrustSelectiveAuthRule struct{}

func (r TrustSelectiveAuthRule) ID() string   { return TrustSelectiveAuthRuleID }
func (r TrustSelectiveAuthRule) Name() string { return "Trust Without Selective Authentication" }

func (r TrustSelectiveAuthRule) Evaluate(ctx RuleContext) []models.Finding {
	now := ctx.Clock()
	var findings []models.Finding
	for _, t := range externalTrusts(ctx) {
		if t.SelectiveAuthentication {
			continue
		}
		f := newFinding(r.ID(), t.Name, models.SubjectTrust, models.SeverityMedium, now)
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("%s %s trust", t.Direction, t.TrustType)}}
		f.Explanation = fmt.Sprintf("Selective authentication is disabled for trust '%s'.", t.Name)
		f.Recommendation = "Enable selective authentication to restrict cross-trust access."
		findings = append(findings, f)
	}
	return findings
}

// LegacyFunctionalLevelRule flags domain or forest functional levels below
// min_level (default Windows Server 2016).
type LegacyFunctionalLevelRule struct{}

func (r LegacyFunctionalLevelRule) ID() string   { return LegacyFunctionalLevelRuleID }
func (r LegacyFunctionalLevelRule) Name() string { return "Legacy Functional Level" }

func (r LegacyFunctionalLevelRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil || ctx.Directory.FunctionalLevels == nil {
		return nil
	}
	lv := ctx.Directory.FunctionalLevels
	minLevel := policy.IntParam(r.ID(), "min_level", DefaultMinFunctionalLevel, ctx.Policy)

	var reasons []models.Reason
	lowest := minLevel
	if IsLegacyFunctionalLevel(lv.Domain, minLevel) {
		reasons = append(reasons, models.Reason{RuleID: "DOMAIN_LEVEL", Text: fmt.Sprintf("Domain is running in %sDomain mode", models.FunctionalLevelName(*lv.Domain))})
		lowest = *lv.Domain
	}
	if IsLegacyFunctionalLevel(lv.Forest, minLevel) {
		reasons = append(reasons, models.Reason{RuleID: "FOREST_LEVEL", Text: fmt.Sprintf("Forest is running in %sForest mode", models.FunctionalLevelName(*lv.Forest))})
		lowest = min(lowest, *lv.Forest)
	}
	if len(reasons) == 0 {
		return nil
	}
	sev := models.SeverityLow
	if lowest <= models.LevelWindows2008R2 {
		sev = models.SeverityMedium
	}
	f := newFinding(r.ID(), domainSubject(ctx), models.SubjectDomain, sev, ctx.Clock())
	f.Reasons = reasons
	f.Explanation = fmt.Sprintf("Functional level is below %s; newer Kerberos and credential protections are unavailable.", models.FunctionalLevelName(minLevel))
	f.Recommendation = "Consider upgrading to Windows Server 2016 or later for enhanced security features."
	return []models.Finding{f}
}

func signingSubject(ctx RuleContext) string {
	if s := ctx.Directory.Signing; s != nil && s.Source != "" && s.Source != "export" {
		return s.Source
	}
	return domainSubject(ctx)
}

// LDAPSigningRule flags a controller that does not require LDAP signing.
type LDAPSigningRule struct{}

func (r LDAPSigningRule) ID() string   { return LDAPSigningRuleID }
func (r LDAPSigningRule) Name() string { return "LDAP Signing Not Required" }

func (r LDAPSigningRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil || ctx.Directory.Signing == nil {
		return nil
	}
	req := ctx.Directory.Signing.LDAPSigningRequired
	if req == nil || *req {
		return nil
	}
	f := newFinding(r.ID(), signingSubject(ctx), models.SubjectDomain, models.SeverityHigh, ctx.Clock())
	f.Reasons = []models.Reason{{RuleID: r.ID(), Text: "LDAPServerIntegrity below 2"}}
	f.Explanation = "LDAP signing is not required; simple and unsigned SASL binds can be relayed or tampered with."
	f.Recommendation = "Enable LDAP signing to prevent man-in-the-middle attacks."
	return []models.Finding{f}
}

// SMBSigningRule flags a controller where SMB client or server signing is
// optional.
type SMBSigningRule struct{}

func (r SMBSigningRule) ID() string   { return SMBSigningRuleID }
func (r SMBSigningRule) Name() string { return "SMB Signing Not Required" }

func (r SMBSigningRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil || ctx.Directory.Signing == nil {
		return nil
	}
	s := ctx.Directory.Signing
	var reasons []models.Reason
	if s.SMBClientSigningRequired != nil && !*s.SMBClientSigningRequired {
		reasons = append(reasons, models.Reason{RuleID: "SMB_CLIENT", Text: "SMB client signing is not required"})
	}
	if s.SMBServerSigningRequired != nil && !*s.SMBServerSigningRequired {
		reasons = append(reasons, models.Reason{RuleID: "SMB_SERVER", Text: "SMB server signing is not required"})
	}
	if len(reasons) == 0 {
		return nil
	}
	f := newFinding(r.ID(), signingSubject(ctx), models.SubjectDomain, models.SeverityHigh, ctx.Clock())
	f.Reasons = reasons
	f.Explanation = "Unsigned SMB sessions can be relayed to the domain controller."
	f.Recommendation = "Enable SMB signing to prevent relay attacks."
	return []models.Finding{f}
}

// CertTemplateAutoEnrollRule flags templates that auto-enroll without
// manager approval.
type CertTemplateAutoEnrollRule struct{}

func (r CertTemplateAutoEnrollRule) ID() string   { return CertTemplateAutoEnrollRuleID }
func (r CertTemplateAutoEnrollRule) Name() string { return "Auto-Enrolling Certificate Template" }

func (r CertTemplateAutoEnrollRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	var findings []models.Finding
	for _, t := range ctx.Directory.CertificateTemplates {
		if !t.AutoEnrollment || t.RequiresManagerApproval {
			continue
		}
		f := newFinding(r.ID(), t.Name, models.SubjectCertificate, models.SeverityMedium, now)
		f.Kind = "Certificate Template"
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: "Auto-enrollment without manager approval"}}
		f.Explanation = fmt.Sprintf("Template %q issues certificates automatically with no approval step.", t.Name)
		f.Recommendation = "Require CA manager approval or restrict enrollment rights on the template."
		findings = append(findings, f)
	}
	return findings
}

// ExpiredCARule flags certification authorities whose certificate has
// expired.
type ExpiredCARule struct{}

func (r ExpiredCARule) ID() string   { return ExpiredCARuleID }
func (r ExpiredCARule) Name() string { return "Expired Certificate Authority" }

func (r ExpiredCARule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	var findings []models.Finding
	for _, ca := range ctx.Directory.CertificateAuthorities {
		if !ca.Expired(now) {
			continue
		}
		f := newFinding(r.ID(), ca.Name, models.SubjectCertificate, models.SeverityMedium, now)
		f.Kind = "Certificate Authority"
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("Certificate expired %s", ca.NotAfter)}}
		f.Explanation = fmt.Sprintf("Certificate authority %q is past its validity period.", ca.Name)
		f.Recommendation = "Renew or remove expired certificates."
		findings = append(findings, f)
	}
	return findings
}

// WeakFineGrainedPolicyRule checks each password settings object against
// the same baseline as the default domain policy.
type WeakFineGrainedPolicyRule struct{}

func (r WeakFineGrainedPolicyRule) ID() string   { return WeakFineGrainedPolicyRuleID }
func (r WeakFineGrainedPolicyRule) Name() string { return "Weak Fine-Grained Password Policy" }

func (r WeakFineGrainedPolicyRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	minLen := policy.IntParam(r.ID(), "min_length", DefaultMinPasswordLength, ctx.Policy)
	now := ctx.Clock()

	var findings []models.Finding
	for _, p := range ctx.Directory.FineGrainedPolicies {
		var reasons []models.Reason
		if p.MinPasswordLength < minLen {
			reasons = append(reasons, models.Reason{RuleID: "MIN_LENGTH", Text: fmt.Sprintf("Minimum password length is %d", p.MinPasswordLength)})
		}
		if p.ReversibleEncryptionEnabled {
			reasons = append(reasons, models.Reason{RuleID: "REVERSIBLE_ENCRYPTION", Text: "Reversible encryption enabled"})
		}
		if !p.ComplexityEnabled {
			reasons = append(reasons, models.Reason{RuleID: "COMPLEXITY_DISABLED", Text: "Password complexity disabled"})
		}
		if p.LockoutThreshold == 0 {
			reasons = append(reasons, models.Reason{RuleID: "NO_LOCKOUT", Text: "Account lockout threshold not set"})
		}
		if len(reasons) == 0 {
			continue
		}
		f := newFinding(r.ID(), p.Name, models.SubjectPolicy, models.SeverityMedium, now)
		f.Reasons = reasons
		f.Explanation = fmt.Sprintf("Password settings object %q applies to %s and is below baseline.", p.Name, truncateList(p.AppliesTo, 5))
		f.Recommendation = fmt.Sprintf("Require %d+ character complex passwords and a lockout threshold for every password settings object.", minLen)
		findings = append(findings, f)
	}
	return findings
}

// truncateList joins up to n items and notes how many were left out.
func truncateList(items []string, n int) string {
	if len(items) == 0 {
		return "no principals"
	}
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(items[:n], ", "), len(items)-n)
}
