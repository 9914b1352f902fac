package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

const (
	SuspiciousAccountRuleID = "SUSPICIOUS_ACCOUNT"

	// suspiciousLogonDays is the idle period after which an enabled account
	// is considered abandoned.
	suspiciousLogonDays = 365
)

const (
	ReasonNeverExpiresPrivileged = "Password never expires in privileged group"
	ReasonPasswordNotRequired    = "Password not required"
	ReasonNoPreAuthPrivileged    = "Does not require pre-auth in privileged group"
	ReasonStaleLogon             = "Enabled but not logged in for >365 days"
)

// ClassifySuspiciousAccount evaluates the suspicious-account rules for rec.
// privileged is the set of privileged group names; membership is matched
// case-insensitively against rec.MemberOf. Every rule that fires contributes
// one reason. The built-in guest and ticket-granting accounts always yield
// nil. An unknown last-logon timestamp skips only the idle-account rule.
func ClassifySuspiciousAccount(rec models.IdentityRecord, privileged []string, now time.Time) []models.Reason {
	if isBuiltin(rec.SamAccountName, AccountGuest, AccountKrbtgt) {
		return nil
	}
	inPrivileged := len(privilegedMembership(rec, privileged)) > 0

	var reasons []models.Reason
	if rec.PasswordNeverExpires && inPrivileged {
		reasons = append(reasons, models.Reason{RuleID: "PASSWORD_NEVER_EXPIRES_PRIVILEGED", Text: ReasonNeverExpiresPrivileged})
	}
	if rec.PasswordNotRequired {
		reasons = append(reasons, models.Reason{RuleID: "PASSWORD_NOT_REQUIRED", Text: ReasonPasswordNotRequired})
	}
	if rec.DoesNotRequirePreAuth && inPrivileged {
		reasons = append(reasons, models.Reason{RuleID: "PREAUTH_NOT_REQUIRED_PRIVILEGED", Text: ReasonNoPreAuthPrivileged})
	}
	if rec.Enabled {
		if days, ok := rec.LastLogon.DaysSince(now); ok && days > suspiciousLogonDays {
			reasons = append(reasons, models.Reason{RuleID: "STALE_LOGON", Text: ReasonStaleLogon})
		}
	}
	return reasons
}

// SuspiciousAccountRule flags accounts whose password, pre-authentication or
// logon state suggests abuse or abandonment.
type SuspiciousAccountRule struct{}

func (r SuspiciousAccountRule) ID() string   { return SuspiciousAccountRuleID }
func (r SuspiciousAccountRule) Name() string { return "Suspicious Account" }

// Evaluate returns one HIGH finding per user with at least one fired rule.
func (r SuspiciousAccountRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	privileged := ctx.Privileged()

	var findings []models.Finding
	for _, rec := range ctx.Directory.Users {
		reasons := ClassifySuspiciousAccount(rec, privileged, now)
		if len(reasons) == 0 {
			continue
		}
		f := newFinding(r.ID(), rec.SamAccountName, identitySubjectType(rec), models.SeverityHigh, now)
		f.Reasons = reasons
		f.Explanation = fmt.Sprintf("Account %q: %s.", rec.SamAccountName, strings.Join(reasonTexts(reasons), "; "))
		f.Recommendation = "Review the account, require a password and pre-authentication, and disable it if no longer used."
		findings = append(findings, f)
	}
	return findings
}
