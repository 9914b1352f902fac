package rules

import (
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
)

const (
	KerberoastableRuleID         = "KERBEROASTABLE_ACCOUNT"
	AccountDelegationRuleID      = "ACCOUNT_DELEGATION"
	WeakEncryptionRuleID         = "WEAK_KERBEROS_ENCRYPTION"
	PrivilegedNotProtectedRuleID = "PRIVILEGED_NOT_PROTECTED"
	InactiveAccountRuleID        = "INACTIVE_ACCOUNT"
	StalePasswordRuleID          = "STALE_PASSWORD"
	KrbtgtPasswordAgeRuleID      = "KRBTGT_PASSWORD_AGE"
	WeakPasswordPolicyRuleID     = "WEAK_PASSWORD_POLICY"

	DefaultInactiveDays      = 90
	DefaultStalePasswordDays = 365
	DefaultKrbtgtMaxAgeDays  = 180
	DefaultMinPasswordLength = 14
)

// IsWeakEncryption reports whether rec still accepts DES or RC4 keys.
func IsWeakEncryption(rec models.IdentityRecord) bool {
	types := rec.EncryptionTypes
	if len(types) == 0 {
		types = models.DecodeEncryptionTypes(rec.SupportedEncryptionTypes)
	}
	return rec.UseDESKeyOnly || models.HasWeakEncryption(types)
}

// IsUnprotectedAdmin reports whether rec belongs to one of groups but not to
// Protected Users.
func IsUnprotectedAdmin(rec models.IdentityRecord, groups ...string) bool {
	if rec.ProtectedUser || rec.InGroup(GroupProtectedUsers) {
		return false
	}
	for _, g := range groups {
		if rec.InGroup(g) {
			return true
		}
	}
	return false
}

// KerberoastableRule flags enabled user accounts that carry SPNs: any domain
// user can request a service ticket for them and crack it offline.
type KerberoastableRule struct{}

func (r KerberoastableRule) ID() string   { return KerberoastableRuleID }
func (r KerberoastableRule) Name() string { return "Kerberoastable User Account" }

func (r KerberoastableRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	var findings []models.Finding
	for _, u := range ctx.Directory.Users {
		if !u.Enabled || len(u.SPNs) == 0 {
			continue
		}
		if isBuiltin(u.SamAccountName, AccountKrbtgt) {
			continue // krbtgt always carries kadmin/changepw
		}
		f := newFinding(r.ID(), u.SamAccountName, models.SubjectUser, models.SeverityHigh, now)
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("SPNs: %s", strings.Join(u.SPNs, ", "))}}
		f.Explanation = fmt.Sprintf("User %q has %d SPN(s) and is exposed to Kerberoasting.", u.SamAccountName, len(u.SPNs))
		f.Recommendation = "Move SPNs to group managed service accounts or enforce a 25+ character password with AES-only encryption."
		findings = append(findings, f)
	}
	return findings
}

// AccountDelegationRule flags users with delegation and non-DC computers with
// any delegation configured. Unconstrained delegation on a member server is
// CRITICAL because any ticket presented to it can be replayed.
type AccountDelegationRule struct{}

func (r AccountDelegationRule) ID() string   { return AccountDelegationRuleID }
func (r AccountDelegationRule) Name() string { return "Kerberos Delegation Enabled" }

func (r AccountDelegationRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	var findings []models.Finding
	for _, u := range ctx.Directory.Users {
		if !u.HasDelegation() {
			continue
		}
		f := newFinding(r.ID(), u.SamAccountName, models.SubjectUser, models.SeverityHigh, now)
		f.Reasons = delegationReasons(u.TrustedForDelegation, u.TrustedToAuthForDelegation, nil)
		f.Explanation = fmt.Sprintf("User %q can impersonate other principals to services.", u.SamAccountName)
		f.Recommendation = "Disable delegation on user accounts or mark privileged accounts as sensitive and cannot be delegated."
		findings = append(findings, f)
	}
	for _, c := range ctx.Directory.Computers {
		if c.IsDomainController || !c.HasDelegation() {
			continue
		}
		sev := models.SeverityHigh
		if c.TrustedForDelegation {
			sev = models.SeverityCritical
		}
		f := newFinding(r.ID(), c.ComputerName(), models.SubjectComputer, sev, now)
		f.Reasons = delegationReasons(c.TrustedForDelegation, c.TrustedToAuthForDelegation, c.ConstrainedDelegation)
		f.Explanation = fmt.Sprintf("Computer %q is not a domain controller but is trusted for delegation.", c.ComputerName())
		f.Recommendation = "Replace unconstrained delegation with resource-based constrained delegation scoped to required services."
		findings = append(findings, f)
	}
	return findings
}

func delegationReasons(unconstrained, toAuth bool, allowedTo []string) []models.Reason {
	var reasons []models.Reason
	if unconstrained {
		reasons = append(reasons, models.Reason{RuleID: "UNCONSTRAINED_DELEGATION", Text: "Unconstrained delegation"})
	}
	if toAuth {
		reasons = append(reasons, models.Reason{RuleID: "PROTOCOL_TRANSITION", Text: "Trusted to authenticate for delegation"})
	}
	if len(allowedTo) > 0 {
		reasons = append(reasons, models.Reason{RuleID: "CONSTRAINED_DELEGATION", Text: fmt.Sprintf("Allowed to delegate to: %s", strings.Join(allowedTo, ", "))})
	}
	return reasons
}

// WeakKerberosEncryptionRule flags accounts that still accept DES or RC4.
type WeakKerberosEncryptionRule struct{}

func (r WeakKerberosEncryptionRule) ID() string   { return WeakEncryptionRuleID }
func (r WeakKerberosEncryptionRule) Name() string { return "Weak Kerberos Encryption" }

func (r WeakKerberosEncryptionRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	var findings []models.Finding
	for _, u := range ctx.Directory.Users {
		if !IsWeakEncryption(u) {
			continue
		}
		var reasons []models.Reason
		if u.UseDESKeyOnly {
			reasons = append(reasons, models.Reason{RuleID: "USE_DES_KEY_ONLY", Text: "Use DES key only"})
		}
		for _, et := range u.EncryptionTypes {
			if et == models.EncTypeDES || et == models.EncTypeRC4 {
				reasons = append(reasons, models.Reason{RuleID: "WEAK_ENCTYPE", Text: et + " supported"})
			}
		}
		f := newFinding(r.ID(), u.SamAccountName, models.SubjectUser, models.SeverityMedium, now)
		f.Reasons = reasons
		f.Explanation = fmt.Sprintf("Account %q supports %s.", u.SamAccountName, strings.Join(u.EncryptionTypes, ", "))
		f.Recommendation = "Restrict msDS-SupportedEncryptionTypes to AES and disable DES and RC4 via Group Policy."
		findings = append(findings, f)
	}
	return findings
}

// PrivilegedNotProtectedRule flags Domain and Enterprise Admins that are not
// members of Protected Users.
type PrivilegedNotProtectedRule struct{}

func (r PrivilegedNotProtectedRule) ID() string   { return PrivilegedNotProtectedRuleID }
func (r PrivilegedNotProtectedRule) Name() string { return "Privileged Account Not Protected" }

func (r PrivilegedNotProtectedRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	var findings []models.Finding
	for _, u := range ctx.Directory.Users {
		if !u.Enabled || !IsUnprotectedAdmin(u, GroupDomainAdmins, GroupEnterpriseAdmins) {
			continue
		}
		groups := privilegedMembership(u, []string{GroupDomainAdmins, GroupEnterpriseAdmins})
		f := newFinding(r.ID(), u.SamAccountName, models.SubjectUser, models.SeverityHigh, now)
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("Member of %s without Protected Users", strings.Join(groups, ", "))}}
		f.Explanation = fmt.Sprintf("Privileged account %q is not in Protected Users.", u.SamAccountName)
		f.Recommendation = "Add privileged accounts to Protected Users to block NTLM, DES/RC4 and delegation for them."
		findings = append(findings, f)
	}
	return findings
}

// InactiveAccountRule flags enabled users that have not logged on within the
// inactive_days threshold. Users with no recorded logon are skipped.
type InactiveAccountRule struct{}

func (r InactiveAccountRule) ID() string   { return InactiveAccountRuleID }
func (r InactiveAccountRule) Name() string { return "Inactive Account" }

func (r InactiveAccountRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	limit := policy.IntParam(r.ID(), "inactive_days", DefaultInactiveDays, ctx.Policy)
	var findings []models.Finding
	for _, u := range ctx.Directory.Users {
		if !u.Enabled {
			continue
		}
		days, ok := u.LastLogon.DaysSince(now)
		if !ok || days <= limit {
			continue
		}
		f := newFinding(r.ID(), u.SamAccountName, models.SubjectUser, models.SeverityLow, now)
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("Last logon %d days ago", days)}}
		f.Explanation = fmt.Sprintf("Account %q last logged on %s.", u.SamAccountName, u.LastLogon)
		f.Recommendation = "Disable or remove accounts that are no longer needed."
		findings = append(findings, f)
	}
	return findings
}

// StalePasswordRule flags enabled users whose password is older than the
// stale_password_days threshold.
type StalePasswordRule struct{}

func (r StalePasswordRule) ID() string   { return StalePasswordRuleID }
func (r StalePasswordRule) Name() string { return "Stale Password" }

func (r StalePasswordRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	limit := policy.IntParam(r.ID(), "stale_password_days", DefaultStalePasswordDays, ctx.Policy)
	var findings []models.Finding
	for _, u := range ctx.Directory.Users {
		if !u.Enabled || isBuiltin(u.SamAccountName, AccountKrbtgt) {
			continue
		}
		days, ok := u.PasswordLastSet.DaysSince(now)
		if !ok || days <= limit {
			continue
		}
		f := newFinding(r.ID(), u.SamAccountName, models.SubjectUser, models.SeverityLow, now)
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("Password set %d days ago", days)}}
		f.Explanation = fmt.Sprintf("Password for %q was last changed %s.", u.SamAccountName, u.PasswordLastSet)
		f.Recommendation = "Enforce password rotation for accounts with long-lived credentials."
		findings = append(findings, f)
	}
	return findings
}

// KrbtgtPasswordAgeRule flags a krbtgt password older than max_age_days.
type KrbtgtPasswordAgeRule struct{}

func (r KrbtgtPasswordAgeRule) ID() string   { return KrbtgtPasswordAgeRuleID }
func (r KrbtgtPasswordAgeRule) Name() string { return "krbtgt Password Age" }

func (r KrbtgtPasswordAgeRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	limit := policy.IntParam(r.ID(), "max_age_days", DefaultKrbtgtMaxAgeDays, ctx.Policy)
	for _, u := range ctx.Directory.Users {
		if !isBuiltin(u.SamAccountName, AccountKrbtgt) {
			continue
		}
		days, ok := u.PasswordLastSet.DaysSince(now)
		if !ok || days <= limit {
			return nil
		}
		f := newFinding(r.ID(), u.SamAccountName, models.SubjectUser, models.SeverityCritical, now)
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: fmt.Sprintf("krbtgt password is %d days old", days)}}
		f.Explanation = fmt.Sprintf("The krbtgt password was last rotated %s; forged tickets stay valid until it changes.", u.PasswordLastSet)
		f.Recommendation = "Rotate the krbtgt password twice, allowing replication between the resets."
		return []models.Finding{f}
	}
	return nil
}

// WeakPasswordPolicyRule checks the domain default password policy.
type WeakPasswordPolicyRule struct{}

func (r WeakPasswordPolicyRule) ID() string   { return WeakPasswordPolicyRuleID }
func (r WeakPasswordPolicyRule) Name() string { return "Weak Domain Password Policy" }

func (r WeakPasswordPolicyRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil || ctx.Directory.PasswordPolicy == nil {
		return nil
	}
	p := ctx.Directory.PasswordPolicy
	minLen := policy.IntParam(r.ID(), "min_length", DefaultMinPasswordLength, ctx.Policy)

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
		return nil
	}
	f := newFinding(r.ID(), domainSubject(ctx), models.SubjectDomain, models.SeverityHigh, ctx.Clock())
	f.Reasons = reasons
	f.Explanation = "The default domain password policy is below baseline."
	f.Recommendation = fmt.Sprintf("Require %d+ character complex passwords, disable reversible encryption and lock out after 3-10 failed attempts.", minLen)
	return []models.Finding{f}
}
