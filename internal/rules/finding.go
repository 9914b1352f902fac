package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// DefaultPrivilegedGroups are the built-in groups whose membership is
// resolved on every identity record.
var DefaultPrivilegedGroups = []string{
	"Domain Admins",
	"Enterprise Admins",
	"Schema Admins",
	"Administrators",
	"Account Operators",
	"Backup Operators",
	"Server Operators",
	"Print Operators",
}

// Group names with fixed meaning in the directory.
const (
	GroupDomainAdmins     = "Domain Admins"
	GroupEnterpriseAdmins = "Enterprise Admins"
	GroupProtectedUsers   = "Protected Users"
)

// Built-in account names.
const (
	AccountGuest  = "Guest"
	AccountKrbtgt = "krbtgt"
)

func newFinding(ruleID, subject string, st models.SubjectType, sev models.Severity, now time.Time) models.Finding {
	return models.Finding{
		ID:          fmt.Sprintf("%s-%s", ruleID, subject),
		RuleID:      ruleID,
		Subject:     subject,
		SubjectType: st,
		Severity:    sev,
		DetectedAt:  models.NewTimestamp(now),
	}
}

func isBuiltin(sam string, names ...string) bool {
	for _, n := range names {
		if strings.EqualFold(sam, n) {
			return true
		}
	}
	return false
}

// privilegedMembership returns the groups of rec that appear in privileged,
// compared case-insensitively, in rec.MemberOf order.
func privilegedMembership(rec models.IdentityRecord, privileged []string) []string {
	var out []string
	for _, g := range rec.MemberOf {
		for _, p := range privileged {
			if strings.EqualFold(g, p) {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

func identitySubjectType(rec models.IdentityRecord) models.SubjectType {
	if rec.Kind == models.IdentityManagedServiceAccount {
		return models.SubjectServiceAccount
	}
	return models.SubjectUser
}
